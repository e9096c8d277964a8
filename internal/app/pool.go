package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rpggio/lanes/internal/identity"
)

// Pool holds one Workspace per client session over a shared store, so each
// client signs in and out on its own. Workspaces left idle are closed.
type Pool struct {
	build  func() *Workspace
	idle   time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu      sync.Mutex
	members map[*Workspace]time.Time
	closed  bool
}

// NewPool creates a pool whose workspaces come from build. An idle timeout of
// zero keeps workspaces until Close.
func NewPool(build func() *Workspace, idle time.Duration, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		build:   build,
		idle:    idle,
		now:     time.Now,
		logger:  logger,
		members: make(map[*Workspace]time.Time),
	}
}

// Open builds and starts the workspace of a new client session. The
// workspace outlives ctx.
func (p *Pool) Open(ctx context.Context) (*Workspace, error) {
	ws := p.build()
	if err := ws.Start(context.WithoutCancel(ctx)); err != nil {
		ws.Close()
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		ws.Close()
		return nil, errors.New("workspace pool is closed")
	}
	p.members[ws] = p.now()
	p.logger.Debug("workspace opened", "workspaces", len(p.members))
	return ws, nil
}

// Touch records activity on ws.
func (p *Pool) Touch(ws *Workspace) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.members[ws]; ok {
		p.members[ws] = p.now()
	}
}

// Len returns the number of open workspaces.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.members)
}

// Sweep closes the workspaces idle for longer than the idle timeout and
// returns how many it closed.
func (p *Pool) Sweep() int {
	if p.idle <= 0 {
		return 0
	}
	p.mu.Lock()
	cutoff := p.now().Add(-p.idle)
	var stale []*Workspace
	for ws, last := range p.members {
		if last.Before(cutoff) {
			stale = append(stale, ws)
			delete(p.members, ws)
		}
	}
	p.mu.Unlock()

	for _, ws := range stale {
		ws.Close()
	}
	if len(stale) > 0 {
		p.logger.Info("idle workspaces closed", "count", len(stale))
	}
	return len(stale)
}

// Run sweeps idle workspaces on a schedule until ctx is done.
func (p *Pool) Run(ctx context.Context) {
	if p.idle <= 0 {
		return
	}
	interval := p.idle / 2
	if interval < time.Second {
		interval = time.Second
	}
	c := cron.New()
	c.Schedule(cron.Every(interval), cron.FuncJob(func() { p.Sweep() }))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
}

// Close closes every workspace. Open fails afterwards.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	members := p.members
	p.members = make(map[*Workspace]time.Time)
	p.mu.Unlock()

	for ws := range members {
		ws.Close()
	}
}

// CompleteEmailLinkSignIn signs in the session that requested the link in
// rawURL. Only sessions waiting for a link are tried, and the link is
// consumed by the first whose address it was sent to. It returns nil, nil
// when rawURL is not a sign-in link.
func (p *Pool) CompleteEmailLinkSignIn(ctx context.Context, rawURL string, _ identity.EmailPrompt) (*identity.Principal, error) {
	if !identity.IsSignInLink(rawURL) {
		return nil, nil
	}

	p.mu.Lock()
	var waiting []*Workspace
	for ws := range p.members {
		if ws.Session().AwaitingEmailLink() {
			waiting = append(waiting, ws)
		}
	}
	p.mu.Unlock()

	var lastErr error
	for _, ws := range waiting {
		principal, err := ws.Session().CompleteEmailLinkSignIn(ctx, rawURL, nil)
		if err == nil {
			p.Touch(ws)
			return principal, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = &identity.AuthError{Code: identity.CodeInvalidLink, Err: errors.New("no session is waiting for this sign-in link")}
	}
	return nil, lastErr
}
