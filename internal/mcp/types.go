package mcp

import (
	"time"

	"github.com/rpggio/lanes/internal/domain/project"
	"github.com/rpggio/lanes/internal/domain/task"
	"github.com/rpggio/lanes/internal/identity"
	"github.com/rpggio/lanes/internal/navigation"
)

type EmptyParams struct{}

type BeginEmailLinkParams struct {
	Email string `json:"email" jsonschema:"address to send the sign-in link to"`
	URL   string `json:"url,omitempty" jsonschema:"page the link returns to (defaults to the configured link url)"`
}

type CompleteEmailLinkParams struct {
	Link  string `json:"link" jsonschema:"the sign-in link as received"`
	Email string `json:"email,omitempty" jsonschema:"address the link was sent to, when it was requested elsewhere"`
}

type NavigateParams struct {
	Path string `json:"path" jsonschema:"path to open, for example /projects/p1"`
}

type ProjectIDParams struct {
	ID string `json:"id" jsonschema:"project id"`
}

type ListProjectsParams struct {
	Archived bool `json:"archived,omitempty" jsonschema:"list archived projects instead of active ones"`
}

type CreateProjectParams struct {
	Title        string   `json:"title" jsonschema:"project title"`
	Description  string   `json:"description,omitempty" jsonschema:"project description"`
	Contributors []string `json:"contributors,omitempty" jsonschema:"contributor email addresses"`
}

type ProjectDraftParams struct {
	ID           string   `json:"id" jsonschema:"project id"`
	Title        string   `json:"title" jsonschema:"project title"`
	Description  string   `json:"description,omitempty" jsonschema:"project description"`
	Contributors []string `json:"contributors,omitempty" jsonschema:"contributor email addresses"`
}

type BoardParams struct {
	ProjectID string `json:"project_id" jsonschema:"project id"`
}

type CreateTaskParams struct {
	ProjectID string `json:"project_id" jsonschema:"project id"`
	Title     string `json:"title" jsonschema:"task title"`
}

type MoveTaskParams struct {
	ProjectID string `json:"project_id" jsonschema:"project id"`
	TaskID    string `json:"task_id" jsonschema:"task id"`
	To        string `json:"to" jsonschema:"target lane: backlog, in-progress or done"`
}

type IdentityResponse struct {
	State     string              `json:"state"`
	Principal *identity.Principal `json:"principal,omitempty"`
}

type EmailLinkResponse struct {
	Sent  bool   `json:"sent"`
	Email string `json:"email"`
}

type NavigationResponse struct {
	Requested string            `json:"requested"`
	Path      string            `json:"path"`
	Allowed   bool              `json:"allowed"`
	Route     string            `json:"route"`
	Params    map[string]string `json:"params,omitempty"`
}

type ProjectEntry struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	OwnerID      string   `json:"owner_id"`
	Contributors []string `json:"contributors"`
	Archived     bool     `json:"archived"`
	CreatedAt    string   `json:"created_at,omitempty"`
	UpdatedAt    string   `json:"updated_at,omitempty"`
	Pending      bool     `json:"pending,omitempty"`
}

type ProjectsResponse struct {
	Projects []ProjectEntry `json:"projects"`
}

type ProjectResponse struct {
	Project ProjectEntry `json:"project"`
}

type DeleteResponse struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

type TaskEntry struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Status    string `json:"status"`
	Moved     bool   `json:"moved"`
	CreatedAt string `json:"created_at,omitempty"`
	Pending   bool   `json:"pending,omitempty"`
}

type BoardResponse struct {
	ProjectID  string      `json:"project_id"`
	Backlog    []TaskEntry `json:"backlog"`
	InProgress []TaskEntry `json:"in_progress"`
	Done       []TaskEntry `json:"done"`
}

type TaskResponse struct {
	Task TaskEntry `json:"task"`
}

type MoveTaskResponse struct {
	Moved bool      `json:"moved"`
	Task  TaskEntry `json:"task"`
}

type DrawerResponse struct {
	Open bool `json:"open"`
}

func navigationResponse(d navigation.Decision) NavigationResponse {
	return NavigationResponse{
		Requested: d.Requested,
		Path:      d.Path,
		Allowed:   d.Allowed,
		Route:     d.Route,
		Params:    d.Params,
	}
}

func projectEntry(p project.Project) ProjectEntry {
	contributors := p.Contributors
	if contributors == nil {
		contributors = []string{}
	}
	return ProjectEntry{
		ID:           p.ID,
		Title:        p.Title,
		Description:  p.Description,
		OwnerID:      p.OwnerID,
		Contributors: contributors,
		Archived:     p.Archived,
		CreatedAt:    formatTime(p.CreatedAt),
		UpdatedAt:    formatTime(p.UpdatedAt),
		Pending:      p.Pending,
	}
}

func projectEntries(projects []project.Project) []ProjectEntry {
	entries := make([]ProjectEntry, 0, len(projects))
	for _, p := range projects {
		entries = append(entries, projectEntry(p))
	}
	return entries
}

func taskEntry(t task.Task) TaskEntry {
	return TaskEntry{
		ID:        t.ID,
		Title:     t.Title,
		Status:    string(t.Status),
		Moved:     t.Moved,
		CreatedAt: formatTime(t.CreatedAt),
		Pending:   t.Pending,
	}
}

func taskEntries(tasks []task.Task) []TaskEntry {
	entries := make([]TaskEntry, 0, len(tasks))
	for _, t := range tasks {
		entries = append(entries, taskEntry(t))
	}
	return entries
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
