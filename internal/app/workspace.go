// Package app wires the identity session, project feed, task boards,
// navigation guard and view state of one client.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rpggio/lanes/internal/docstore"
	"github.com/rpggio/lanes/internal/domain/project"
	"github.com/rpggio/lanes/internal/domain/task"
	"github.com/rpggio/lanes/internal/identity"
	"github.com/rpggio/lanes/internal/live"
	"github.com/rpggio/lanes/internal/navigation"
	"github.com/rpggio/lanes/internal/uistate"
)

// ErrNotSignedIn is returned by operations that need a principal.
var ErrNotSignedIn = errors.New("not signed in")

// Workspace is one client session over a shared document store.
type Workspace struct {
	queue    *live.Queue
	session  *identity.Session
	projects *project.Service
	tasks    *task.Service
	feed     *project.Feed
	guard    *navigation.Guard
	ui       *uistate.State
	logger   *slog.Logger

	mu       sync.Mutex
	boards   map[string]*task.Board
	views    live.Set
	location string
	stateSub *live.Subscription
}

// Config wires a Workspace.
type Config struct {
	Queue   *live.Queue
	Store   docstore.Store
	Session *identity.Session
}

// New creates a workspace. Call Start before use.
func New(cfg Config, logger *slog.Logger) *Workspace {
	if logger == nil {
		logger = slog.Default()
	}
	tasks := task.NewService(cfg.Store, logger)
	projects := project.NewService(cfg.Store, tasks, logger)
	return &Workspace{
		queue:    cfg.Queue,
		session:  cfg.Session,
		projects: projects,
		tasks:    tasks,
		feed:     project.NewFeed(projects, cfg.Session, cfg.Queue, logger),
		guard:    navigation.NewGuard(cfg.Session),
		ui:       uistate.New(cfg.Queue),
		logger:   logger,
		boards:   make(map[string]*task.Board),
	}
}

// Start resolves the persisted identity and starts the project feed.
func (w *Workspace) Start(ctx context.Context) error {
	w.feed.Start(ctx)
	sub := w.session.Observe(func(s identity.State) {
		if s.Resolved && s.Principal == nil {
			w.releaseViews()
		}
	})
	w.mu.Lock()
	w.stateSub = sub
	w.mu.Unlock()

	if err := w.session.Start(ctx); err != nil {
		return fmt.Errorf("starting identity session: %w", err)
	}
	return nil
}

// Close releases everything the workspace holds.
func (w *Workspace) Close() {
	w.mu.Lock()
	sub := w.stateSub
	w.stateSub = nil
	w.mu.Unlock()
	if sub != nil {
		sub.Unsubscribe()
	}
	w.releaseViews()
	w.feed.Close()
}

func (w *Workspace) Session() *identity.Session { return w.session }
func (w *Workspace) Projects() *project.Service { return w.projects }
func (w *Workspace) Tasks() *task.Service { return w.tasks }
func (w *Workspace) Feed() *project.Feed { return w.feed }
func (w *Workspace) UI() *uistate.State { return w.ui }
func (w *Workspace) Queue() *live.Queue { return w.queue }
func (w *Workspace) Guard() *navigation.Guard { return w.guard }

// Location returns the path of the last navigation.
func (w *Workspace) Location() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.location
}

// Principal returns the signed-in principal.
func (w *Workspace) Principal() (identity.Principal, error) {
	state := w.session.Current()
	if !state.SignedIn() {
		return identity.Principal{}, ErrNotSignedIn
	}
	return *state.Principal, nil
}

// Navigate resolves path against the guard and records where the user lands.
func (w *Workspace) Navigate(ctx context.Context, path string) (navigation.Decision, error) {
	d, err := w.guard.Resolve(ctx, path)
	if err != nil {
		return navigation.Decision{}, err
	}
	w.mu.Lock()
	w.location = d.Path
	w.mu.Unlock()
	return d, nil
}

// CreateProject creates a project owned by the signed-in principal.
func (w *Workspace) CreateProject(ctx context.Context, draft project.Draft) (*project.Project, error) {
	p, err := w.Principal()
	if err != nil {
		return nil, err
	}
	return w.projects.Create(ctx, draft, p)
}

// OpenProject subscribes to one project for the project page. The
// subscription ends on sign-out.
func (w *Workspace) OpenProject(ctx context.Context, id string, onNext func(*project.Project), onError func(error)) (*live.Subscription, error) {
	if _, err := w.Principal(); err != nil {
		return nil, err
	}
	sub, err := w.projects.Observe(ctx, id, onNext, onError)
	if err != nil {
		return nil, err
	}
	w.views.Add(sub)
	return sub, nil
}

// OpenBoard returns the board of projectID, opening it if needed.
func (w *Workspace) OpenBoard(ctx context.Context, projectID string) (*task.Board, error) {
	if _, err := w.Principal(); err != nil {
		return nil, err
	}
	w.mu.Lock()
	if b, ok := w.boards[projectID]; ok && b.Active() {
		w.mu.Unlock()
		return b, nil
	}
	w.mu.Unlock()

	b, err := w.tasks.OpenBoard(ctx, w.queue, projectID)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if existing, ok := w.boards[projectID]; ok && existing.Active() {
		b.Close()
		return existing, nil
	}
	w.boards[projectID] = b
	return b, nil
}

// CloseBoard releases the board of projectID.
func (w *Workspace) CloseBoard(projectID string) {
	w.mu.Lock()
	b, ok := w.boards[projectID]
	delete(w.boards, projectID)
	w.mu.Unlock()
	if ok {
		b.Close()
	}
}

// UpdateProject rewrites the title, description and contributors of a
// project the signed-in principal owns.
func (w *Workspace) UpdateProject(ctx context.Context, id string, draft project.Draft) (*project.Project, error) {
	if _, err := w.ownedProject(ctx, id); err != nil {
		return nil, err
	}
	if err := w.projects.Update(ctx, id, draft); err != nil {
		return nil, err
	}
	return w.projects.Get(ctx, id)
}

// RemoveProject closes the project's board and deletes it with its tasks.
// Only the owner may remove a project.
func (w *Workspace) RemoveProject(ctx context.Context, id string) error {
	if _, err := w.ownedProject(ctx, id); err != nil {
		return err
	}
	w.CloseBoard(id)
	return w.projects.Remove(ctx, id)
}

// ownedProject fetches a project the signed-in principal owns. A project the
// principal cannot see is reported as missing.
func (w *Workspace) ownedProject(ctx context.Context, id string) (*project.Project, error) {
	p, err := w.Principal()
	if err != nil {
		return nil, err
	}
	proj, err := w.projects.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !proj.VisibleTo(p) {
		return nil, project.ErrProjectNotFound
	}
	if !proj.OwnedBy(p) {
		return nil, fmt.Errorf("%w: %s", project.ErrNotOwner, id)
	}
	return proj, nil
}

// SignOut ends every subscription of the session, resets view state and
// signs out. The returned decision is where a session-only view lands.
func (w *Workspace) SignOut(ctx context.Context) (navigation.Decision, error) {
	w.releaseViews()
	w.feed.Release()
	w.ui.Reset()
	if err := w.session.SignOut(ctx); err != nil {
		return navigation.Decision{}, err
	}

	location := w.Location()
	if location == "" {
		location = navigation.HomePath
	}
	return w.Navigate(ctx, location)
}

// OpenBoards returns the number of boards currently held.
func (w *Workspace) OpenBoards() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, b := range w.boards {
		if b.Active() {
			n++
		}
	}
	return n
}

func (w *Workspace) releaseViews() {
	w.mu.Lock()
	boards := w.boards
	w.boards = make(map[string]*task.Board)
	w.mu.Unlock()

	for _, b := range boards {
		b.Close()
	}
	w.views.Release()
	w.ui.Reset()
}
