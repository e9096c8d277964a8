package identity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rpggio/lanes/internal/live"
	"github.com/rpggio/lanes/internal/localstate"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockMailer struct {
	mock.Mock
}

func (m *mockMailer) SendSignInLink(ctx context.Context, email, link string) error {
	args := m.Called(ctx, email, link)
	return args.Error(0)
}

type capturingMailer struct {
	mu    sync.Mutex
	links map[string]string
}

func (m *capturingMailer) SendSignInLink(ctx context.Context, email, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.links == nil {
		m.links = make(map[string]string)
	}
	m.links[email] = link
	return nil
}

func (m *capturingMailer) link(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.links[email]
}

type fakeInteractive struct {
	principal *Principal
	err       error
}

func (f fakeInteractive) SignIn(ctx context.Context) (*Principal, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.principal, nil
}

type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) record(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *stateRecorder) all() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

type fixture struct {
	queue   *live.Queue
	local   *localstate.FileStore
	tokens  *Tokens
	links   *EmailLinks
	mailer  *capturingMailer
	session *Session
}

func newFixture(t *testing.T, interactive InteractiveProvider) *fixture {
	t.Helper()
	f := &fixture{
		queue:  live.NewQueue(nil),
		local:  localstate.NewFileStore(""),
		mailer: &capturingMailer{},
	}
	t.Cleanup(f.queue.Close)

	var err error
	f.tokens, err = NewTokens("test-secret", "lanes-test")
	require.NoError(t, err)
	f.links, err = NewEmailLinks(f.tokens, f.mailer, EmailLinkConfig{BaseURL: "https://lanes.test/auth/email-link"})
	require.NoError(t, err)
	f.session = f.newSession(interactive)
	return f
}

func (f *fixture) newSession(interactive InteractiveProvider) *Session {
	return NewSession(SessionConfig{
		Queue:       f.queue,
		Local:       f.local,
		Tokens:      f.tokens,
		Interactive: interactive,
		EmailLinks:  f.links,
	}, nil)
}

func (f *fixture) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.queue.Sync(ctx))
}

func TestSession_StartResolvesSignedOut(t *testing.T) {
	f := newFixture(t, nil)
	rec := &stateRecorder{}
	sub := f.session.Observe(rec.record)
	defer sub.Unsubscribe()

	require.False(t, f.session.Current().Resolved)
	require.NoError(t, f.session.Start(context.Background()))
	require.NoError(t, f.session.Start(context.Background()))
	f.drain(t)

	states := rec.all()
	require.Len(t, states, 2)
	require.Equal(t, "unknown", states[0].String())
	require.Equal(t, "signed-out", states[1].String())
}

func TestSession_EmailLinkRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	require.NoError(t, f.session.Start(ctx))

	require.NoError(t, f.session.BeginEmailLinkSignIn(ctx, "Alice@Example.com", LinkSettings{URL: "https://lanes.test/projects"}))
	stored, ok, err := f.local.Get(localstate.KeyEmailForSignIn)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "alice@example.com", stored)

	link := f.mailer.link("alice@example.com")
	require.True(t, IsSignInLink(link))

	principal, err := f.session.CompleteEmailLinkSignIn(ctx, link, nil)
	require.NoError(t, err)
	require.Equal(t, PrincipalIDForEmail("alice@example.com"), principal.ID)
	require.Equal(t, "alice@example.com", principal.Email)
	require.True(t, f.session.Current().SignedIn())

	_, ok, err = f.local.Get(localstate.KeyEmailForSignIn)
	require.NoError(t, err)
	require.False(t, ok)

	// A second session over the same local storage restores the sign-in.
	restored := f.newSession(nil)
	require.NoError(t, restored.Start(ctx))
	require.Equal(t, principal.ID, restored.Current().PrincipalID())

	// Links are single use.
	_, err = f.session.CompleteEmailLinkSignIn(ctx, link, func(context.Context) (string, error) {
		return "alice@example.com", nil
	})
	require.Equal(t, CodeInvalidLink, CodeOf(err))
}

func TestSession_CompleteIgnoresOrdinaryURL(t *testing.T) {
	f := newFixture(t, nil)
	principal, err := f.session.CompleteEmailLinkSignIn(context.Background(), "https://lanes.test/projects", nil)
	require.NoError(t, err)
	require.Nil(t, principal)
}

func TestSession_CompletePromptsForEmail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	require.NoError(t, f.session.BeginEmailLinkSignIn(ctx, "bob@example.com", LinkSettings{}))
	require.NoError(t, f.local.Delete(localstate.KeyEmailForSignIn))

	prompted := false
	principal, err := f.session.CompleteEmailLinkSignIn(ctx, f.mailer.link("bob@example.com"), func(context.Context) (string, error) {
		prompted = true
		return "BOB@example.com", nil
	})
	require.NoError(t, err)
	require.True(t, prompted)
	require.Equal(t, "bob@example.com", principal.Email)
}

func TestSession_CompleteRejectsOtherEmail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	require.NoError(t, f.session.BeginEmailLinkSignIn(ctx, "bob@example.com", LinkSettings{}))
	require.NoError(t, f.local.Set(localstate.KeyEmailForSignIn, "eve@example.com"))

	_, err := f.session.CompleteEmailLinkSignIn(ctx, f.mailer.link("bob@example.com"), nil)
	require.ErrorIs(t, err, ErrAuth)
	require.Equal(t, CodeInvalidLink, CodeOf(err))
	require.False(t, f.session.Current().SignedIn())
}

func TestSession_ExpiredLink(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	start := time.Now()
	f.tokens.now = func() time.Time { return start }
	require.NoError(t, f.session.BeginEmailLinkSignIn(ctx, "bob@example.com", LinkSettings{}))

	f.tokens.now = func() time.Time { return start.Add(DefaultLinkTTL + time.Minute) }
	_, err := f.session.CompleteEmailLinkSignIn(ctx, f.mailer.link("bob@example.com"), nil)
	require.Equal(t, CodeExpiredLink, CodeOf(err))
}

func TestSession_BeginValidatesAndLimits(t *testing.T) {
	ctx := context.Background()
	tokens, err := NewTokens("secret", "")
	require.NoError(t, err)

	mailer := &mockMailer{}
	mailer.On("SendSignInLink", ctx, "a@example.com", mock.AnythingOfType("string")).Return(nil).Once()

	links, err := NewEmailLinks(tokens, mailer, EmailLinkConfig{
		BaseURL: "https://lanes.test/auth/email-link",
		Every:   time.Hour,
		Burst:   1,
	})
	require.NoError(t, err)
	queue := live.NewQueue(nil)
	defer queue.Close()
	session := NewSession(SessionConfig{
		Queue:      queue,
		Local:      localstate.NewFileStore(""),
		Tokens:     tokens,
		EmailLinks: links,
	}, nil)

	err = session.BeginEmailLinkSignIn(ctx, "not-an-email", LinkSettings{})
	require.Equal(t, CodeInvalidEmail, CodeOf(err))

	require.NoError(t, session.BeginEmailLinkSignIn(ctx, "a@example.com", LinkSettings{}))

	err = session.BeginEmailLinkSignIn(ctx, "a@example.com", LinkSettings{})
	require.Equal(t, CodeQuotaExceeded, CodeOf(err))

	mailer.AssertExpectations(t)
}

func TestSession_InteractiveAndSignOut(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fakeInteractive{principal: &Principal{ID: "u1", Email: "u1@example.com"}})
	require.NoError(t, f.session.Start(ctx))

	rec := &stateRecorder{}
	sub := f.session.Observe(rec.record)
	defer sub.Unsubscribe()

	p, err := f.session.SignInInteractive(ctx)
	require.NoError(t, err)
	require.Equal(t, "u1", p.ID)

	require.NoError(t, f.session.SignOut(ctx))
	f.drain(t)

	states := rec.all()
	require.Len(t, states, 3)
	require.Equal(t, "signed-out", states[0].String())
	require.Equal(t, "signed-in:u1", states[1].String())
	require.Equal(t, "signed-out", states[2].String())

	_, ok, err := f.local.Get(localstate.KeySessionToken)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSession_InteractiveFailure(t *testing.T) {
	cancelled := &AuthError{Code: CodeCancelled, Err: context.Canceled}
	f := newFixture(t, fakeInteractive{err: cancelled})

	_, err := f.session.SignInInteractive(context.Background())
	require.ErrorIs(t, err, ErrAuth)
	require.True(t, errors.Is(err, context.Canceled))
	require.Equal(t, CodeCancelled, CodeOf(err))

	unconfigured := newFixture(t, nil)
	_, err = unconfigured.session.SignInInteractive(context.Background())
	require.Equal(t, CodeProvider, CodeOf(err))
}

func TestSession_StartDiscardsBadToken(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.local.Set(localstate.KeySessionToken, "garbage"))
	require.NoError(t, f.session.Start(context.Background()))
	require.Equal(t, SignedOut(), f.session.Current())

	_, ok, err := f.local.Get(localstate.KeySessionToken)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPrincipalIDForEmail(t *testing.T) {
	require.Equal(t, PrincipalIDForEmail("a@example.com"), PrincipalIDForEmail(" A@Example.com "))
	require.NotEqual(t, PrincipalIDForEmail("a@example.com"), PrincipalIDForEmail("b@example.com"))
}
