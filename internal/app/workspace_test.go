package app_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rpggio/lanes/internal/app"
	"github.com/rpggio/lanes/internal/docstore"
	"github.com/rpggio/lanes/internal/domain/project"
	"github.com/rpggio/lanes/internal/domain/task"
	"github.com/rpggio/lanes/internal/identity"
	"github.com/rpggio/lanes/internal/live"
	"github.com/rpggio/lanes/internal/localstate"
	"github.com/stretchr/testify/require"
)

type staticProvider struct {
	principal identity.Principal
}

func (p staticProvider) SignIn(ctx context.Context) (*identity.Principal, error) {
	principal := p.principal
	return &principal, nil
}

type env struct {
	queue   *live.Queue
	backend *docstore.MemoryBackend
	ws      *app.Workspace
}

func newEnv(t *testing.T) *env {
	t.Helper()
	queue := live.NewQueue(nil)
	backend := docstore.NewMemoryBackend()
	t.Cleanup(queue.Close)
	ws := newWorkspaceOn(t, queue, backend, identity.Principal{ID: "u1", Email: "a@x.com"})
	return &env{queue: queue, backend: backend, ws: ws}
}

// newWorkspaceOn starts a workspace over backend whose interactive sign-in
// yields principal.
func newWorkspaceOn(t *testing.T, queue *live.Queue, backend *docstore.MemoryBackend, principal identity.Principal) *app.Workspace {
	t.Helper()
	client := docstore.NewClient(backend, queue, nil)
	tokens, err := identity.NewTokens("secret", "")
	require.NoError(t, err)
	session := identity.NewSession(identity.SessionConfig{
		Queue:       queue,
		Local:       localstate.NewFileStore(""),
		Tokens:      tokens,
		Interactive: staticProvider{principal: principal},
	}, nil)

	ws := app.New(app.Config{Queue: queue, Store: client, Session: session}, nil)
	require.NoError(t, ws.Start(context.Background()))
	t.Cleanup(func() {
		ws.Close()
		client.Close()
	})
	return ws
}

func (e *env) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, e.queue.Sync(ctx))
}

func TestWorkspace_GuardFollowsSession(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	d, err := e.ws.Navigate(ctx, "/projects")
	require.NoError(t, err)
	require.Equal(t, "/login", d.Path)
	require.False(t, d.Allowed)

	_, err = e.ws.CreateProject(ctx, project.Draft{Title: "Site"})
	require.ErrorIs(t, err, app.ErrNotSignedIn)

	_, err = e.ws.Session().SignInInteractive(ctx)
	require.NoError(t, err)

	d, err = e.ws.Navigate(ctx, "/login")
	require.NoError(t, err)
	require.Equal(t, "/projects", d.Path)

	d, err = e.ws.Navigate(ctx, "/project/p1")
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.Equal(t, "p1", d.Params["id"])
	require.Equal(t, "/project/p1", e.ws.Location())
}

func TestWorkspace_SignOutEndsSubscriptions(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	_, err := e.ws.Session().SignInInteractive(ctx)
	require.NoError(t, err)

	proj, err := e.ws.CreateProject(ctx, project.Draft{ID: "p1", Title: "Site"})
	require.NoError(t, err)
	_, err = e.ws.Tasks().Upsert(ctx, proj.ID, task.Task{Title: "t"})
	require.NoError(t, err)

	board, err := e.ws.OpenBoard(ctx, proj.ID)
	require.NoError(t, err)
	again, err := e.ws.OpenBoard(ctx, proj.ID)
	require.NoError(t, err)
	require.Same(t, board, again)

	var (
		mu         sync.Mutex
		boardCount int
		pageCount  int
	)
	boardSub := board.Subscribe(func(task.Lanes) {
		mu.Lock()
		boardCount++
		mu.Unlock()
	})
	defer boardSub.Unsubscribe()
	page, err := e.ws.OpenProject(ctx, proj.ID, func(*project.Project) {
		mu.Lock()
		pageCount++
		mu.Unlock()
	}, nil)
	require.NoError(t, err)

	require.Eventually(t, e.ws.Feed().Active, 2*time.Second, 10*time.Millisecond)
	e.ws.UI().ToggleDrawer()
	_, err = e.ws.Navigate(ctx, "/project/p1")
	require.NoError(t, err)
	e.drain(t)

	d, err := e.ws.SignOut(ctx)
	require.NoError(t, err)
	require.Equal(t, "/login", d.Path)
	require.False(t, d.Allowed)

	require.False(t, board.Active())
	require.False(t, page.Active())
	require.False(t, e.ws.Feed().Active())
	require.Zero(t, e.ws.OpenBoards())
	require.False(t, e.ws.UI().DrawerOpen())

	e.drain(t)
	mu.Lock()
	beforeBoard, beforePage := boardCount, pageCount
	mu.Unlock()

	// Writes from elsewhere no longer reach the released views.
	other := docstore.NewClient(e.backend, e.queue, nil)
	defer other.Close()
	require.NoError(t, other.Write(ctx, project.Collection, "p1", map[string]any{"title": "Renamed"}))
	require.NoError(t, other.Write(ctx, task.Collection("p1"), "x", map[string]any{
		"id": "x", "title": "x", "status": "backlog", "moved": false, "createdAt": time.Now(),
	}))
	e.drain(t)

	mu.Lock()
	require.Equal(t, beforeBoard, boardCount)
	require.Equal(t, beforePage, pageCount)
	mu.Unlock()

	require.Eventually(t, func() bool {
		return len(e.ws.Feed().Current()) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWorkspace_RemoveProjectCascades(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	_, err := e.ws.Session().SignInInteractive(ctx)
	require.NoError(t, err)

	proj, err := e.ws.CreateProject(ctx, project.Draft{ID: "p1", Title: "Site"})
	require.NoError(t, err)
	for _, title := range []string{"a", "b"} {
		_, err := e.ws.Tasks().Upsert(ctx, proj.ID, task.Task{Title: title})
		require.NoError(t, err)
	}

	e.backend.Reject(task.Collection(proj.ID), docstore.ErrPermissionDenied)
	err = e.ws.RemoveProject(ctx, proj.ID)
	require.ErrorIs(t, err, docstore.ErrPermissionDenied)
	_, err = e.ws.Projects().Get(ctx, proj.ID)
	require.NoError(t, err)

	e.backend.Reject(task.Collection(proj.ID), nil)
	require.NoError(t, e.ws.RemoveProject(ctx, proj.ID))
	_, err = e.ws.Projects().Get(ctx, proj.ID)
	require.ErrorIs(t, err, project.ErrProjectNotFound)
}

func TestWorkspace_OnlyOwnerEditsOrRemoves(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	_, err := e.ws.Session().SignInInteractive(ctx)
	require.NoError(t, err)
	proj, err := e.ws.CreateProject(ctx, project.Draft{Title: "Site", Contributors: []string{"b@x.com", "z@x.com"}})
	require.NoError(t, err)

	contributor := newWorkspaceOn(t, e.queue, e.backend, identity.Principal{ID: "u2", Email: "b@x.com"})
	_, err = contributor.Session().SignInInteractive(ctx)
	require.NoError(t, err)

	_, err = contributor.UpdateProject(ctx, proj.ID, project.Draft{Title: "Hijacked"})
	require.ErrorIs(t, err, project.ErrNotOwner)
	require.ErrorIs(t, contributor.RemoveProject(ctx, proj.ID), project.ErrNotOwner)

	stranger := newWorkspaceOn(t, e.queue, e.backend, identity.Principal{ID: "u3", Email: "c@x.com"})
	_, err = stranger.Session().SignInInteractive(ctx)
	require.NoError(t, err)
	require.ErrorIs(t, stranger.RemoveProject(ctx, proj.ID), project.ErrProjectNotFound)

	got, err := e.ws.Projects().Get(ctx, proj.ID)
	require.NoError(t, err)
	require.Equal(t, "Site", got.Title)
	require.Equal(t, []string{"b@x.com", "z@x.com"}, got.Contributors)

	// Contributors may still archive.
	require.NoError(t, contributor.Projects().SetArchived(ctx, proj.ID, true))

	updated, err := e.ws.UpdateProject(ctx, proj.ID, project.Draft{Title: "Site v2", Contributors: []string{"b@x.com"}})
	require.NoError(t, err)
	require.Equal(t, "Site v2", updated.Title)
	require.True(t, updated.Archived)
}
