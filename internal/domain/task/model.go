package task

import (
	"time"

	"github.com/rpggio/lanes/internal/docstore"
)

// Status is the lane a task sits in.
type Status string

const (
	StatusBacklog    Status = "backlog"
	StatusInProgress Status = "in-progress"
	StatusDone       Status = "done"
)

// Statuses lists the lanes in board order.
var Statuses = []Status{StatusBacklog, StatusInProgress, StatusDone}

// Valid reports whether s names a lane.
func (s Status) Valid() bool {
	switch s {
	case StatusBacklog, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// Task is one card on a project board.
type Task struct {
	ID     string `doc:"id" json:"id"`
	Title  string `doc:"title" json:"title"`
	Status Status `doc:"status" json:"status"`
	// Moved is set once the task has changed lanes.
	Moved     bool      `doc:"moved" json:"moved"`
	CreatedAt time.Time `doc:"createdAt" json:"createdAt"`
	Pending   bool      `doc:"-" json:"pending,omitempty"`
}

// Collection returns the collection path of a project's tasks.
func Collection(projectID string) string {
	return docstore.CollectionPath("projects", projectID, "todos")
}

// Lanes holds the three lanes of a board.
type Lanes struct {
	Backlog    []Task `json:"backlog"`
	InProgress []Task `json:"inProgress"`
	Done       []Task `json:"done"`
}

// Lane returns the tasks of status.
func (l Lanes) Lane(status Status) []Task {
	switch status {
	case StatusBacklog:
		return l.Backlog
	case StatusInProgress:
		return l.InProgress
	case StatusDone:
		return l.Done
	}
	return nil
}

func (l *Lanes) set(status Status, tasks []Task) {
	switch status {
	case StatusBacklog:
		l.Backlog = tasks
	case StatusInProgress:
		l.InProgress = tasks
	case StatusDone:
		l.Done = tasks
	}
}

// Find returns the task with id and the lane holding it.
func (l Lanes) Find(id string) (Task, bool) {
	for _, status := range Statuses {
		for _, t := range l.Lane(status) {
			if t.ID == id {
				return t, true
			}
		}
	}
	return Task{}, false
}
