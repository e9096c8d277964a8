package navigation_test

import (
	"context"
	"testing"
	"time"

	"github.com/rpggio/lanes/internal/identity"
	"github.com/rpggio/lanes/internal/live"
	"github.com/rpggio/lanes/internal/navigation"
	"github.com/stretchr/testify/require"
)

type stateSource struct {
	value *live.Value[identity.State]
}

func (s stateSource) Current() identity.State { return s.value.Get() }

func (s stateSource) Observe(onNext func(identity.State)) *live.Subscription {
	return s.value.Subscribe(onNext)
}

func TestCheck(t *testing.T) {
	signedIn := identity.SignedIn(identity.Principal{ID: "u1", Email: "a@x.com"})
	signedOut := identity.SignedOut()

	tests := []struct {
		name    string
		state   identity.State
		path    string
		want    string
		route   string
		allowed bool
	}{
		{"root redirects to projects", signedIn, "/", "/projects", "projects", true},
		{"projects", signedIn, "/projects", "/projects", "projects", true},
		{"contributors default", signedIn, "/contributors", "/contributors/active", "contributors-active", true},
		{"contributors archived", signedIn, "/contributors/archived/", "/contributors/archived", "contributors-archived", true},
		{"project page", signedIn, "/project/p1", "/project/p1", "project", true},
		{"unknown path", signedIn, "/nope/deeper", "/projects", "projects", true},
		{"login while signed in", signedIn, "/login", "/projects", "projects", false},
		{"projects while signed out", signedOut, "/projects", "/login", "login", false},
		{"root while signed out", signedOut, "/", "/login", "login", false},
		{"project while signed out", signedOut, "/project/p1", "/login", "login", false},
		{"unknown while signed out", signedOut, "/nope", "/login", "login", false},
		{"login while signed out", signedOut, "login", "/login", "login", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := navigation.Check(tt.state, tt.path)
			require.NoError(t, err)
			require.Equal(t, tt.want, d.Path)
			require.Equal(t, tt.route, d.Route)
			require.Equal(t, tt.allowed, d.Allowed)
		})
	}
}

func TestCheck_Params(t *testing.T) {
	d, err := navigation.Check(identity.SignedIn(identity.Principal{ID: "u1"}), "/project/abc123")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"id": "abc123"}, d.Params)
	require.False(t, d.Redirected())
}

func TestCheck_Unresolved(t *testing.T) {
	_, err := navigation.Check(identity.Unknown(), "/projects")
	require.ErrorIs(t, err, navigation.ErrUnresolved)
}

func TestGuard_ResolveWaitsForIdentity(t *testing.T) {
	queue := live.NewQueue(nil)
	defer queue.Close()
	source := stateSource{value: live.NewValue(queue, identity.Unknown())}
	guard := navigation.NewGuard(source)

	result := make(chan navigation.Decision, 1)
	go func() {
		d, err := guard.Resolve(context.Background(), "/projects")
		if err == nil {
			result <- d
		}
	}()

	select {
	case <-result:
		t.Fatal("resolved before identity was known")
	case <-time.After(50 * time.Millisecond):
	}

	source.value.Set(identity.SignedOut())
	select {
	case d := <-result:
		require.Equal(t, "/login", d.Path)
	case <-time.After(2 * time.Second):
		t.Fatal("guard never resolved")
	}
}

func TestGuard_ResolveContextDone(t *testing.T) {
	queue := live.NewQueue(nil)
	defer queue.Close()
	guard := navigation.NewGuard(stateSource{value: live.NewValue(queue, identity.Unknown())})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := guard.Resolve(ctx, "/projects")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
