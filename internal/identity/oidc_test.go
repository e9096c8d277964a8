package identity

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type fakeIssuer struct {
	t      *testing.T
	key    *rsa.PrivateKey
	server *httptest.Server

	mu    sync.Mutex
	nonce string
}

func newFakeIssuer(t *testing.T) *fakeIssuer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	f := &fakeIssuer{t: t, key: key}
	f.server = httptest.NewServer(http.HandlerFunc(f.token))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeIssuer) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil || r.Form.Get("code_verifier") == "" {
		http.Error(w, "missing verifier", http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	nonce := f.nonce
	f.mu.Unlock()

	now := time.Now()
	idToken, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":   f.server.URL,
		"aud":   "client",
		"sub":   "subject-1",
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
		"nonce": nonce,
		"email": "Carol@Example.com",
		"name":  "Carol",
	}).SignedString(f.key)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"access_token": "at",
		"token_type":   "Bearer",
		"expires_in":   3600,
		"id_token":     idToken,
	})
}

func (f *fakeIssuer) provider(opener Opener) *OIDCProvider {
	verifier := oidc.NewVerifier(f.server.URL, &oidc.StaticKeySet{
		PublicKeys: []crypto.PublicKey{&f.key.PublicKey},
	}, &oidc.Config{ClientID: "client"})
	cfg := oauth2.Config{
		ClientID:    "client",
		RedirectURL: "http://localhost/auth/callback",
		Endpoint: oauth2.Endpoint{
			AuthURL:   f.server.URL + "/authorize",
			TokenURL:  f.server.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		Scopes: []string{oidc.ScopeOpenID, "email"},
	}
	return newOIDCProvider(cfg, verifier, opener, nil)
}

func TestOIDCProvider_SignIn(t *testing.T) {
	issuer := newFakeIssuer(t)

	var p *OIDCProvider
	p = issuer.provider(func(ctx context.Context, authURL string) error {
		u, err := url.Parse(authURL)
		require.NoError(t, err)
		q := u.Query()
		require.Equal(t, "S256", q.Get("code_challenge_method"))

		issuer.mu.Lock()
		issuer.nonce = q.Get("nonce")
		issuer.mu.Unlock()

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&state="+url.QueryEscape(q.Get("state")), nil)
		p.Callback(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		return nil
	})

	principal, err := p.SignIn(context.Background())
	require.NoError(t, err)
	require.Equal(t, "subject-1", principal.ID)
	require.Equal(t, "carol@example.com", principal.Email)
	require.Equal(t, "Carol", principal.DisplayName)
}

func TestOIDCProvider_AccessDenied(t *testing.T) {
	issuer := newFakeIssuer(t)

	var p *OIDCProvider
	p = issuer.provider(func(ctx context.Context, authURL string) error {
		u, err := url.Parse(authURL)
		require.NoError(t, err)
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/auth/callback?error=access_denied&state="+url.QueryEscape(u.Query().Get("state")), nil)
		p.Callback(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		return nil
	})

	_, err := p.SignIn(context.Background())
	require.Equal(t, CodeCancelled, CodeOf(err))
}

func TestOIDCProvider_ContextCancelled(t *testing.T) {
	issuer := newFakeIssuer(t)
	ctx, cancel := context.WithCancel(context.Background())
	p := issuer.provider(func(context.Context, string) error {
		cancel()
		return nil
	})

	_, err := p.SignIn(ctx)
	require.Equal(t, CodeCancelled, CodeOf(err))
	require.ErrorIs(t, err, context.Canceled)
}

func TestOIDCProvider_UnknownState(t *testing.T) {
	issuer := newFakeIssuer(t)
	p := issuer.provider(nil)

	rec := httptest.NewRecorder()
	p.Callback(rec, httptest.NewRequest(http.MethodGet, "/auth/callback?state=nope&code=x", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
