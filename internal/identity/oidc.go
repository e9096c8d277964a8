package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// InteractiveProvider runs a provider-hosted sign-in flow.
type InteractiveProvider interface {
	SignIn(ctx context.Context) (*Principal, error)
}

// Opener presents an authorization URL to the user, e.g. by opening a
// browser or returning it to a remote caller.
type Opener func(ctx context.Context, authURL string) error

// OIDCConfig configures the OIDC authorization code flow.
type OIDCConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// OIDCProvider signs users in with an OpenID Connect provider using the
// authorization code flow with PKCE. The redirect is served by Callback.
type OIDCProvider struct {
	config   oauth2.Config
	verifier *oidc.IDTokenVerifier
	opener   Opener
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string]*pendingAuth
}

type pendingAuth struct {
	codeVerifier string
	nonce        string
	result       chan authResult
}

type authResult struct {
	principal *Principal
	err       error
}

// NewOIDCProvider discovers the issuer and builds the flow.
func NewOIDCProvider(ctx context.Context, cfg OIDCConfig, opener Opener, logger *slog.Logger) (*OIDCProvider, error) {
	if cfg.IssuerURL == "" || cfg.ClientID == "" {
		return nil, fmt.Errorf("oidc issuer and client id are required")
	}
	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("oidc provider discovery: %w", err)
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"email", "profile"}
	}
	oauthCfg := oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     provider.Endpoint(),
		Scopes:       append([]string{oidc.ScopeOpenID}, scopes...),
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})
	return newOIDCProvider(oauthCfg, verifier, opener, logger), nil
}

func newOIDCProvider(cfg oauth2.Config, verifier *oidc.IDTokenVerifier, opener Opener, logger *slog.Logger) *OIDCProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &OIDCProvider{
		config:   cfg,
		verifier: verifier,
		opener:   opener,
		logger:   logger,
		pending:  make(map[string]*pendingAuth),
	}
}

// SignIn opens the authorization URL and waits for the callback. Cancelling
// ctx abandons the flow with a cancelled AuthError.
func (p *OIDCProvider) SignIn(ctx context.Context) (*Principal, error) {
	state := uuid.NewString()
	auth := &pendingAuth{
		codeVerifier: oauth2.GenerateVerifier(),
		nonce:        uuid.NewString(),
		result:       make(chan authResult, 1),
	}

	p.mu.Lock()
	p.pending[state] = auth
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.pending, state)
		p.mu.Unlock()
	}()

	authURL := p.config.AuthCodeURL(state,
		oauth2.S256ChallengeOption(auth.codeVerifier),
		oidc.Nonce(auth.nonce),
	)
	if p.opener == nil {
		return nil, authError(CodeProvider, "no way to open the authorization url")
	}
	if err := p.opener(ctx, authURL); err != nil {
		return nil, &AuthError{Code: CodeProvider, Err: fmt.Errorf("opening authorization url: %w", err)}
	}

	select {
	case res := <-auth.result:
		return res.principal, res.err
	case <-ctx.Done():
		return nil, &AuthError{Code: CodeCancelled, Err: ctx.Err()}
	}
}

// Callback handles the provider redirect.
func (p *OIDCProvider) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	state := q.Get("state")

	p.mu.Lock()
	auth, ok := p.pending[state]
	delete(p.pending, state)
	p.mu.Unlock()
	if !ok {
		http.Error(w, "unknown or expired sign-in request", http.StatusBadRequest)
		return
	}

	principal, err := p.complete(r.Context(), auth, q.Get("code"), q.Get("error"), q.Get("error_description"))
	auth.result <- authResult{principal: principal, err: err}
	if err != nil {
		p.logger.Warn("oidc callback failed", "error", err)
		http.Error(w, "sign-in failed", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "Signed in. You can close this window.")
}

func (p *OIDCProvider) complete(ctx context.Context, auth *pendingAuth, code, errCode, errDesc string) (*Principal, error) {
	switch {
	case errCode == "access_denied":
		return nil, authError(CodeCancelled, "sign-in cancelled: %s", errDesc)
	case errCode != "":
		return nil, authError(CodeProvider, "%s: %s", errCode, errDesc)
	case code == "":
		return nil, authError(CodeProvider, "callback without authorization code")
	}

	token, err := p.config.Exchange(ctx, code, oauth2.VerifierOption(auth.codeVerifier))
	if err != nil {
		return nil, &AuthError{Code: CodeProvider, Err: fmt.Errorf("exchanging code: %w", err)}
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, authError(CodeProvider, "token response without id_token")
	}
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, &AuthError{Code: CodeProvider, Err: fmt.Errorf("verifying id token: %w", err)}
	}
	if idToken.Nonce != auth.nonce {
		return nil, &AuthError{Code: CodeProvider, Err: errors.New("id token nonce mismatch")}
	}

	var claims struct {
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, &AuthError{Code: CodeProvider, Err: fmt.Errorf("parse claims: %w", err)}
	}
	return &Principal{
		ID:          idToken.Subject,
		Email:       strings.ToLower(claims.Email),
		DisplayName: claims.Name,
		PhotoURL:    claims.Picture,
	}, nil
}
