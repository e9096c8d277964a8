package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rpggio/lanes/internal/app"
	"github.com/rpggio/lanes/internal/domain/project"
	"github.com/rpggio/lanes/internal/domain/task"
	"github.com/rpggio/lanes/internal/identity"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// tools binds the MCP tool surface to one workspace.
type tools struct {
	ws      *app.Workspace
	linkURL string
	logger  *slog.Logger
}

func registerTools(server *sdkmcp.Server, t *tools) {
	// Identity
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "whoami",
		Description: "Report the identity state and the signed-in principal",
	}, t.whoami)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "sign_in",
		Description: "Sign in through the configured identity provider",
	}, t.signIn)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "begin_email_link",
		Description: "Send a one-time sign-in link to an email address",
	}, t.beginEmailLink)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "complete_email_link",
		Description: "Complete sign-in with a link received by email",
	}, t.completeEmailLink)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "sign_out",
		Description: "Sign out, ending every live view of the session",
	}, t.signOut)

	// Navigation and view state
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "navigate",
		Description: "Open a path and report where the route guards land",
	}, t.navigate)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "toggle_drawer",
		Description: "Open or close the navigation drawer",
	}, t.toggleDrawer)

	// Projects
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "list_projects",
		Description: "List the projects you own or contribute to, newest first",
	}, t.listProjects)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_project",
		Description: "Get one project",
	}, t.getProject)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "create_project",
		Description: "Create a project owned by you; its id is assigned by the store",
	}, t.createProject)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "update_project",
		Description: "Replace the title, description and contributors of a project you own",
	}, t.updateProject)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "archive_project",
		Description: "Move a project to the archived list",
	}, t.archiveProject)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "restore_project",
		Description: "Move an archived project back to the active list",
	}, t.restoreProject)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "delete_project",
		Description: "Delete a project you own and all of its tasks",
	}, t.deleteProject)

	// Tasks
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_board",
		Description: "Get the backlog, in-progress and done lanes of a project",
	}, t.getBoard)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "create_task",
		Description: "Add a task to the backlog of a project",
	}, t.createTask)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "move_task",
		Description: "Drop a task into a lane; dropping into its own lane changes nothing",
	}, t.moveTask)
}

func (t *tools) whoami(ctx context.Context, _ *sdkmcp.CallToolRequest, _ EmptyParams) (*sdkmcp.CallToolResult, IdentityResponse, error) {
	return nil, identityResponse(t.ws.Session().Current()), nil
}

func (t *tools) signIn(ctx context.Context, _ *sdkmcp.CallToolRequest, _ EmptyParams) (*sdkmcp.CallToolResult, IdentityResponse, error) {
	principal, err := t.ws.Session().SignInInteractive(ctx)
	if err != nil {
		return nil, IdentityResponse{}, toolError(err)
	}
	return nil, IdentityResponse{State: "signed-in", Principal: principal}, nil
}

func (t *tools) beginEmailLink(ctx context.Context, _ *sdkmcp.CallToolRequest, in BeginEmailLinkParams) (*sdkmcp.CallToolResult, EmailLinkResponse, error) {
	url := in.URL
	if url == "" {
		url = t.linkURL
	}
	err := t.ws.Session().BeginEmailLinkSignIn(ctx, in.Email, identity.LinkSettings{URL: url, HandleCodeInApp: true})
	if err != nil {
		return nil, EmailLinkResponse{}, toolError(err)
	}
	email, _ := identity.NormalizeEmail(in.Email)
	return nil, EmailLinkResponse{Sent: true, Email: email}, nil
}

func (t *tools) completeEmailLink(ctx context.Context, _ *sdkmcp.CallToolRequest, in CompleteEmailLinkParams) (*sdkmcp.CallToolResult, IdentityResponse, error) {
	if !identity.IsSignInLink(in.Link) {
		return nil, IdentityResponse{}, &APIError{Code: "NOT_A_SIGN_IN_LINK", Message: "link is not a sign-in link"}
	}
	prompt := func(context.Context) (string, error) {
		if strings.TrimSpace(in.Email) == "" {
			return "", errors.New("no email supplied")
		}
		return in.Email, nil
	}
	principal, err := t.ws.Session().CompleteEmailLinkSignIn(ctx, in.Link, prompt)
	if err != nil {
		return nil, IdentityResponse{}, toolError(err)
	}
	return nil, IdentityResponse{State: "signed-in", Principal: principal}, nil
}

func (t *tools) signOut(ctx context.Context, _ *sdkmcp.CallToolRequest, _ EmptyParams) (*sdkmcp.CallToolResult, NavigationResponse, error) {
	decision, err := t.ws.SignOut(ctx)
	if err != nil {
		return nil, NavigationResponse{}, toolError(err)
	}
	return nil, navigationResponse(decision), nil
}

func (t *tools) navigate(ctx context.Context, _ *sdkmcp.CallToolRequest, in NavigateParams) (*sdkmcp.CallToolResult, NavigationResponse, error) {
	decision, err := t.ws.Navigate(ctx, in.Path)
	if err != nil {
		return nil, NavigationResponse{}, toolError(err)
	}
	return nil, navigationResponse(decision), nil
}

func (t *tools) toggleDrawer(ctx context.Context, _ *sdkmcp.CallToolRequest, _ EmptyParams) (*sdkmcp.CallToolResult, DrawerResponse, error) {
	return nil, DrawerResponse{Open: t.ws.UI().ToggleDrawer()}, nil
}

func (t *tools) listProjects(ctx context.Context, _ *sdkmcp.CallToolRequest, in ListProjectsParams) (*sdkmcp.CallToolResult, ProjectsResponse, error) {
	principal, err := t.ws.Principal()
	if err != nil {
		return nil, ProjectsResponse{}, toolError(err)
	}
	projects, err := t.ws.Projects().List(ctx, principal)
	if err != nil {
		return nil, ProjectsResponse{}, toolError(err)
	}
	views := project.Partition(projects)
	if in.Archived {
		return nil, ProjectsResponse{Projects: projectEntries(views.Archived)}, nil
	}
	return nil, ProjectsResponse{Projects: projectEntries(views.Active)}, nil
}

func (t *tools) getProject(ctx context.Context, _ *sdkmcp.CallToolRequest, in ProjectIDParams) (*sdkmcp.CallToolResult, ProjectResponse, error) {
	proj, err := t.visibleProject(ctx, in.ID)
	if err != nil {
		return nil, ProjectResponse{}, toolError(err)
	}
	return nil, ProjectResponse{Project: projectEntry(*proj)}, nil
}

func (t *tools) createProject(ctx context.Context, _ *sdkmcp.CallToolRequest, in CreateProjectParams) (*sdkmcp.CallToolResult, ProjectResponse, error) {
	proj, err := t.ws.CreateProject(ctx, project.Draft{
		Title:        in.Title,
		Description:  in.Description,
		Contributors: in.Contributors,
	})
	if err != nil {
		return nil, ProjectResponse{}, toolError(err)
	}
	t.logger.Info("project created", "project", proj.ID)
	return nil, ProjectResponse{Project: projectEntry(*proj)}, nil
}

func (t *tools) updateProject(ctx context.Context, _ *sdkmcp.CallToolRequest, in ProjectDraftParams) (*sdkmcp.CallToolResult, ProjectResponse, error) {
	proj, err := t.ws.UpdateProject(ctx, in.ID, project.Draft{
		Title:        in.Title,
		Description:  in.Description,
		Contributors: in.Contributors,
	})
	if err != nil {
		return nil, ProjectResponse{}, toolError(err)
	}
	return nil, ProjectResponse{Project: projectEntry(*proj)}, nil
}

func (t *tools) archiveProject(ctx context.Context, _ *sdkmcp.CallToolRequest, in ProjectIDParams) (*sdkmcp.CallToolResult, ProjectResponse, error) {
	return t.setArchived(ctx, in.ID, true)
}

func (t *tools) restoreProject(ctx context.Context, _ *sdkmcp.CallToolRequest, in ProjectIDParams) (*sdkmcp.CallToolResult, ProjectResponse, error) {
	return t.setArchived(ctx, in.ID, false)
}

func (t *tools) setArchived(ctx context.Context, id string, archived bool) (*sdkmcp.CallToolResult, ProjectResponse, error) {
	if _, err := t.visibleProject(ctx, id); err != nil {
		return nil, ProjectResponse{}, toolError(err)
	}
	if err := t.ws.Projects().SetArchived(ctx, id, archived); err != nil {
		return nil, ProjectResponse{}, toolError(err)
	}
	proj, err := t.ws.Projects().Get(ctx, id)
	if err != nil {
		return nil, ProjectResponse{}, toolError(err)
	}
	return nil, ProjectResponse{Project: projectEntry(*proj)}, nil
}

func (t *tools) deleteProject(ctx context.Context, _ *sdkmcp.CallToolRequest, in ProjectIDParams) (*sdkmcp.CallToolResult, DeleteResponse, error) {
	if err := t.ws.RemoveProject(ctx, in.ID); err != nil {
		return nil, DeleteResponse{}, toolError(err)
	}
	t.logger.Info("project deleted", "project", in.ID)
	return nil, DeleteResponse{ID: in.ID, Deleted: true}, nil
}

func (t *tools) getBoard(ctx context.Context, _ *sdkmcp.CallToolRequest, in BoardParams) (*sdkmcp.CallToolResult, BoardResponse, error) {
	if _, err := t.visibleProject(ctx, in.ProjectID); err != nil {
		return nil, BoardResponse{}, toolError(err)
	}
	board, err := t.ws.OpenBoard(ctx, in.ProjectID)
	if err != nil {
		return nil, BoardResponse{}, toolError(err)
	}
	// A tool call reads one snapshot, so the board is not kept open.
	defer t.ws.CloseBoard(in.ProjectID)

	// Lanes are filled by queued deliveries.
	if err := t.ws.Queue().Sync(ctx); err != nil {
		return nil, BoardResponse{}, err
	}
	if err := board.Err(); err != nil {
		return nil, BoardResponse{}, toolError(err)
	}
	lanes := board.Lanes()
	return nil, BoardResponse{
		ProjectID:  in.ProjectID,
		Backlog:    taskEntries(lanes.Backlog),
		InProgress: taskEntries(lanes.InProgress),
		Done:       taskEntries(lanes.Done),
	}, nil
}

func (t *tools) createTask(ctx context.Context, _ *sdkmcp.CallToolRequest, in CreateTaskParams) (*sdkmcp.CallToolResult, TaskResponse, error) {
	if _, err := t.visibleProject(ctx, in.ProjectID); err != nil {
		return nil, TaskResponse{}, toolError(err)
	}
	created, err := t.ws.Tasks().Upsert(ctx, in.ProjectID, task.Task{Title: in.Title})
	if err != nil {
		return nil, TaskResponse{}, toolError(err)
	}
	return nil, TaskResponse{Task: taskEntry(*created)}, nil
}

func (t *tools) moveTask(ctx context.Context, _ *sdkmcp.CallToolRequest, in MoveTaskParams) (*sdkmcp.CallToolResult, MoveTaskResponse, error) {
	to := task.Status(in.To)
	if !to.Valid() {
		return nil, MoveTaskResponse{}, toolError(fmt.Errorf("%w: %q", task.ErrInvalidStatus, in.To))
	}
	if _, err := t.visibleProject(ctx, in.ProjectID); err != nil {
		return nil, MoveTaskResponse{}, toolError(err)
	}
	current, err := t.ws.Tasks().Get(ctx, in.ProjectID, in.TaskID)
	if err != nil {
		return nil, MoveTaskResponse{}, toolError(err)
	}
	moved, err := t.ws.Tasks().Drop(ctx, in.ProjectID, *current, current.Status, to)
	if err != nil {
		return nil, MoveTaskResponse{}, toolError(err)
	}
	if moved {
		current.Status = to
		current.Moved = true
	}
	return nil, MoveTaskResponse{Moved: moved, Task: taskEntry(*current)}, nil
}

// visibleProject fetches a project the signed-in principal may see. Projects
// hidden from the principal are reported as missing.
func (t *tools) visibleProject(ctx context.Context, id string) (*project.Project, error) {
	principal, err := t.ws.Principal()
	if err != nil {
		return nil, err
	}
	proj, err := t.ws.Projects().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !proj.VisibleTo(principal) {
		return nil, project.ErrProjectNotFound
	}
	return proj, nil
}

func identityResponse(state identity.State) IdentityResponse {
	switch {
	case !state.Resolved:
		return IdentityResponse{State: "unknown"}
	case state.Principal == nil:
		return IdentityResponse{State: "signed-out"}
	default:
		principal := *state.Principal
		return IdentityResponse{State: "signed-in", Principal: &principal}
	}
}
