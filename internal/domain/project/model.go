package project

import (
	"slices"
	"time"

	"github.com/rpggio/lanes/internal/identity"
)

// Collection is the collection path of project documents.
const Collection = "projects"

// Project is a container of tasks shared between its owner and contributors.
type Project struct {
	ID           string    `doc:"id" json:"id"`
	Title        string    `doc:"title" json:"title"`
	Description  string    `doc:"description" json:"description,omitempty"`
	OwnerID      string    `doc:"ownerId" json:"ownerId"`
	Contributors []string  `doc:"contributors" json:"contributors"`
	Archived     bool      `doc:"archived" json:"archived"`
	CreatedAt    time.Time `doc:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time `doc:"updatedAt" json:"updatedAt"`
	// Pending is set while a local write to the project is unacknowledged.
	Pending bool `doc:"-" json:"pending,omitempty"`
}

// VisibleTo reports whether p may see the project: as its owner or as a
// contributor by email.
func (proj Project) VisibleTo(p identity.Principal) bool {
	if proj.OwnerID == p.ID {
		return true
	}
	return p.Email != "" && slices.Contains(proj.Contributors, p.Email)
}

// OwnedBy reports whether p owns the project. Only the owner edits or
// deletes it.
func (proj Project) OwnedBy(p identity.Principal) bool {
	return p.ID != "" && proj.OwnerID == p.ID
}

// Draft holds the owner-editable fields of a project.
type Draft struct {
	ID           string
	Title        string
	Description  string
	Contributors []string
}

// Views splits one project list into the active and archived views.
type Views struct {
	Active   []Project `json:"active"`
	Archived []Project `json:"archived"`
}

// Partition derives both views from projects, keeping their order.
func Partition(projects []Project) Views {
	views := Views{Active: []Project{}, Archived: []Project{}}
	for _, p := range projects {
		if p.Archived {
			views.Archived = append(views.Archived, p)
		} else {
			views.Active = append(views.Active, p)
		}
	}
	return views
}
