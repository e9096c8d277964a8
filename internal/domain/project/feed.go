package project

import (
	"context"
	"log/slog"
	"sync"

	"github.com/rpggio/lanes/internal/identity"
	"github.com/rpggio/lanes/internal/live"
)

// Feed keeps the visible-projects stream pointed at whoever is signed in.
// Each identity change releases the previous query before issuing the next;
// while signed out the feed holds an empty list.
type Feed struct {
	svc     *Service
	session StateSource
	logger  *slog.Logger

	projects *live.Value[[]Project]
	states   chan identity.State

	mu         sync.Mutex
	following  bool
	key        string
	list       *live.Subscription
	sessionSub *live.Subscription
	err        error

	cancel context.CancelFunc
	done   chan struct{}
}

// NewFeed creates a feed. Call Start to begin following session.
func NewFeed(svc *Service, session StateSource, queue *live.Queue, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		svc:      svc,
		session:  session,
		logger:   logger,
		projects: live.NewValue[[]Project](queue, nil),
		states:   make(chan identity.State, 1),
	}
}

// Start follows the session until ctx is done or Close is called.
func (f *Feed) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.done = make(chan struct{})

	go func() {
		defer close(f.done)
		for {
			select {
			case <-ctx.Done():
				f.releaseList()
				return
			case state := <-f.states:
				f.follow(ctx, state)
			}
		}
	}()

	sub := f.session.Observe(f.push)
	f.mu.Lock()
	f.sessionSub = sub
	f.mu.Unlock()
}

// Close stops the feed and releases its subscriptions.
func (f *Feed) Close() {
	f.mu.Lock()
	sessionSub := f.sessionSub
	f.sessionSub = nil
	f.mu.Unlock()
	if sessionSub != nil {
		sessionSub.Unsubscribe()
	}
	if f.cancel != nil {
		f.cancel()
		<-f.done
	}
}

// Subscribe delivers the visible projects now and on every change.
func (f *Feed) Subscribe(onNext func([]Project)) *live.Subscription {
	return f.projects.Subscribe(onNext)
}

// SubscribeViews delivers the active and archived views of the same list.
func (f *Feed) SubscribeViews(onNext func(Views)) *live.Subscription {
	return f.projects.Subscribe(func(projects []Project) {
		onNext(Partition(projects))
	})
}

// Current returns the latest project list.
func (f *Feed) Current() []Project {
	return f.projects.Get()
}

// Err returns the error that ended the current query, if any.
func (f *Feed) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Active reports whether a visibility query is currently held.
func (f *Feed) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.list != nil && f.list.Active()
}

// Release drops the current query immediately. The feed re-subscribes on the
// next identity change.
func (f *Feed) Release() {
	f.mu.Lock()
	f.following = false
	f.key = ""
	f.mu.Unlock()
	f.releaseList()
}

// push runs on the event queue and keeps only the latest state.
func (f *Feed) push(state identity.State) {
	select {
	case <-f.states:
	default:
	}
	f.states <- state
}

func (f *Feed) follow(ctx context.Context, state identity.State) {
	if !state.Resolved {
		return
	}
	key := ""
	if state.Principal != nil {
		key = state.Principal.ID + "\x00" + state.Principal.Email
	}

	f.mu.Lock()
	if f.following && key == f.key && (key == "" || f.list != nil) {
		f.mu.Unlock()
		return
	}
	f.following = true
	f.key = key
	f.err = nil
	f.mu.Unlock()

	f.releaseList()
	if state.Principal == nil {
		f.projects.Set([]Project{})
		return
	}

	principal := *state.Principal
	sub, err := f.svc.ListVisible(ctx, principal, func(projects []Project) {
		f.projects.Set(projects)
	}, func(err error) {
		f.logger.Warn("project feed terminated", "principal", principal.ID, "error", err)
		f.mu.Lock()
		f.err = err
		f.mu.Unlock()
	})
	if err != nil {
		f.logger.Error("project feed failed", "principal", principal.ID, "error", err)
		f.mu.Lock()
		f.err = err
		f.mu.Unlock()
		return
	}

	f.mu.Lock()
	f.list = sub
	f.mu.Unlock()
}

func (f *Feed) releaseList() {
	f.mu.Lock()
	list := f.list
	f.list = nil
	f.mu.Unlock()
	if list != nil {
		list.Unsubscribe()
	}
}
