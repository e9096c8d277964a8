// Package testserver runs the full HTTP stack over an in-memory SQLite
// database for end-to-end tests.
package testserver

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/lanes/internal/app"
	"github.com/rpggio/lanes/internal/docstore"
	"github.com/rpggio/lanes/internal/identity"
	"github.com/rpggio/lanes/internal/live"
	"github.com/rpggio/lanes/internal/localstate"
	"github.com/rpggio/lanes/internal/mcp"
	"github.com/rpggio/lanes/internal/sqlite"
	"github.com/rpggio/lanes/internal/transport"
	"github.com/stretchr/testify/require"
)

type TestServer struct {
	Server    *httptest.Server
	DB        *sqlite.DB
	Token     string
	Pool      *app.Pool
	Mailbox   *Mailbox
}

// Mailbox records sign-in links instead of sending them.
type Mailbox struct {
	mu    sync.Mutex
	links map[string]string
}

// SendSignInLink implements identity.Mailer.
func (m *Mailbox) SendSignInLink(_ context.Context, email, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links[email] = link
	return nil
}

// Link returns the last link sent to email.
func (m *Mailbox) Link(email string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	link, ok := m.links[email]
	return link, ok
}

type staticProvider struct {
	principal identity.Principal
}

func (p staticProvider) SignIn(context.Context) (*identity.Principal, error) {
	principal := p.principal
	return &principal, nil
}

// New starts a server whose sign_in tool signs in as principal. Each MCP
// session gets its own workspace. Requests to
// /mcp need token.
func New(t *testing.T, token string, principal identity.Principal) *TestServer {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := sqlite.New(dsn)
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())

	keys := sqlite.NewAPIKeyStore(db)
	require.NoError(t, keys.Put(context.Background(), "test", token, "test token"))

	queue := live.NewQueue(nil)
	store := docstore.NewClient(sqlite.NewDocumentBackend(db), queue, nil)

	tokens, err := identity.NewTokens("test-secret", "lanes")
	require.NoError(t, err)

	mailbox := &Mailbox{links: make(map[string]string)}
	ts := &TestServer{DB: db, Token: token, Mailbox: mailbox}

	// The link base needs the listener address, so the server starts once the
	// handler is built.
	ts.Server = httptest.NewUnstartedServer(nil)
	baseURL := "http://" + ts.Server.Listener.Addr().String()

	links, err := identity.NewEmailLinks(tokens, mailbox, identity.EmailLinkConfig{
		BaseURL: baseURL + "/auth/email-link",
		TTL:     time.Minute,
		Every:   time.Millisecond,
		Burst:   10,
	})
	require.NoError(t, err)

	pool := app.NewPool(func() *app.Workspace {
		session := identity.NewSession(identity.SessionConfig{
			Queue:       queue,
			Local:       localstate.NewFileStore(""),
			Tokens:      tokens,
			Interactive: staticProvider{principal: principal},
			EmailLinks:  links,
		}, nil)
		return app.New(app.Config{Queue: queue, Store: store, Session: session}, nil)
	}, time.Minute, nil)
	ts.Pool = pool

	ts.Server.Config.Handler = transport.NewServer(transport.Config{
		MCP: mcp.NewStreamableHandler(pool, mcp.Config{
			Verifier:      keys,
			AuthEnabled:   true,
			TransportMode: "http",
		}, &sdkmcp.StreamableHTTPOptions{SessionTimeout: time.Minute}),
		Auth:       transport.AuthMiddleware(keys),
		EmailLinks: pool,
	})
	ts.Server.Start()

	t.Cleanup(func() {
		ts.Server.Close()
		pool.Close()
		store.Close()
		queue.Close()
		_ = db.Close()
	})

	return ts
}

// Connect opens an MCP client session over HTTP using the server token.
func (ts *TestServer) Connect(t *testing.T) *sdkmcp.ClientSession {
	t.Helper()
	return ts.ConnectWithToken(t, ts.Token)
}

// ConnectWithToken opens an MCP client session that sends token.
func (ts *TestServer) ConnectWithToken(t *testing.T, token string) *sdkmcp.ClientSession {
	t.Helper()
	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	session, err := client.Connect(ctx, &sdkmcp.StreamableClientTransport{
		Endpoint:   ts.Server.URL + "/mcp",
		HTTPClient: &http.Client{Transport: bearer{token: token, next: http.DefaultTransport}},
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

type bearer struct {
	token string
	next  http.RoundTripper
}

func (b bearer) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Header.Set("Authorization", "Bearer "+b.token)
	return b.next.RoundTrip(r)
}
