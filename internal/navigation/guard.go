package navigation

import (
	"context"
	"errors"
	"fmt"

	"github.com/rpggio/lanes/internal/identity"
	"github.com/rpggio/lanes/internal/live"
)

// maxRedirects bounds redirect chains in the route table.
const maxRedirects = 8

var (
	// ErrUnresolved is returned by Check for the unknown identity state.
	ErrUnresolved = errors.New("identity state not resolved")
	// ErrRedirectLoop indicates a cycle in the route table.
	ErrRedirectLoop = errors.New("too many redirects")
)

// Decision is the outcome of navigating to a path.
type Decision struct {
	// Requested is the canonical requested path.
	Requested string `json:"requested"`
	// Path is where the user ends up.
	Path string `json:"path"`
	// Allowed is false when a guard turned the user away.
	Allowed bool `json:"allowed"`
	// Route names the route rendered at Path.
	Route  string            `json:"route"`
	Params map[string]string `json:"params,omitempty"`
}

// Redirected reports whether the user ends up somewhere other than the
// requested path.
func (d Decision) Redirected() bool {
	return d.Path != d.Requested
}

// StateSource is the live identity state the guard waits on.
type StateSource interface {
	Current() identity.State
	Observe(onNext func(identity.State)) *live.Subscription
}

// Guard gates navigation on the identity session.
type Guard struct {
	session StateSource
}

// NewGuard creates a guard over session.
func NewGuard(session StateSource) *Guard {
	return &Guard{session: session}
}

// Resolve waits until the identity state is known and then decides where a
// navigation to path lands. It never decides on the unknown state; if ctx
// ends first its error is returned.
func (g *Guard) Resolve(ctx context.Context, path string) (Decision, error) {
	state := g.session.Current()
	if !state.Resolved {
		var err error
		if state, err = g.awaitResolved(ctx); err != nil {
			return Decision{}, err
		}
	}
	return Check(state, path)
}

func (g *Guard) awaitResolved(ctx context.Context) (identity.State, error) {
	resolved := make(chan identity.State, 1)
	sub := g.session.Observe(func(s identity.State) {
		if !s.Resolved {
			return
		}
		select {
		case resolved <- s:
		default:
		}
	})
	defer sub.Unsubscribe()

	select {
	case s := <-resolved:
		return s, nil
	case <-ctx.Done():
		return identity.State{}, fmt.Errorf("waiting for identity: %w", ctx.Err())
	}
}

// Check decides a navigation for an already-resolved state.
func Check(state identity.State, path string) (Decision, error) {
	if !state.Resolved {
		return Decision{}, ErrUnresolved
	}
	requested := Canonical(path)
	d := Decision{Requested: requested, Allowed: true}

	current := requested
	for i := 0; ; i++ {
		if i == maxRedirects {
			return Decision{}, fmt.Errorf("%w: %s", ErrRedirectLoop, requested)
		}
		m, ok := matchRoutes(Routes, splitPath(current), nil, GuardNone)
		if !ok {
			current = HomePath
			continue
		}
		if m.redirect != "" {
			current = m.redirect
			continue
		}

		switch {
		case m.guard == RequiresSession && !state.SignedIn():
			d.Allowed = false
			current = LoginPath
			continue
		case m.guard == RequiresAnonymity && state.SignedIn():
			d.Allowed = false
			current = HomePath
			continue
		}

		d.Path = current
		d.Route = m.route.Name
		d.Params = m.params
		return d, nil
	}
}
