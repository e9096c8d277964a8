package identity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rpggio/lanes/internal/live"
	"github.com/rpggio/lanes/internal/localstate"
)

// EmailPrompt asks the user for the address a sign-in link was sent to.
type EmailPrompt func(ctx context.Context) (string, error)

// Session is the identity session of one client. State changes are
// delivered on the client's event queue.
type Session struct {
	state       *live.Value[State]
	local       localstate.Store
	tokens      *Tokens
	interactive InteractiveProvider
	links       *EmailLinks
	sessionTTL  time.Duration
	logger      *slog.Logger

	startOnce sync.Once
	startErr  error
}

// SessionConfig wires a Session.
type SessionConfig struct {
	Queue       *live.Queue
	Local       localstate.Store
	Tokens      *Tokens
	Interactive InteractiveProvider
	EmailLinks  *EmailLinks
	// SessionTTL bounds persisted sessions. Zero keeps them until sign-out.
	SessionTTL time.Duration
}

// NewSession creates a session in the unknown state. Call Start to resolve it.
func NewSession(cfg SessionConfig, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		state:       live.NewValue(cfg.Queue, Unknown()),
		local:       cfg.Local,
		tokens:      cfg.Tokens,
		interactive: cfg.Interactive,
		links:       cfg.EmailLinks,
		sessionTTL:  cfg.SessionTTL,
		logger:      logger,
	}
}

// Observe delivers the current state and every change after it.
func (s *Session) Observe(onNext func(State)) *live.Subscription {
	return s.state.Subscribe(onNext)
}

// Current returns the state snapshot.
func (s *Session) Current() State {
	return s.state.Get()
}

// Start resolves the persisted session. It runs once; later calls return the
// first result.
func (s *Session) Start(ctx context.Context) error {
	s.startOnce.Do(func() {
		s.startErr = s.restore(ctx)
	})
	return s.startErr
}

func (s *Session) restore(ctx context.Context) error {
	if s.Current().Resolved {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	token, ok, err := s.local.Get(localstate.KeySessionToken)
	if err != nil {
		s.state.Set(SignedOut())
		return fmt.Errorf("reading session token: %w", err)
	}
	if !ok || s.tokens == nil {
		s.state.Set(SignedOut())
		return nil
	}

	principal, err := s.tokens.ParseSession(token)
	if err != nil {
		s.logger.Info("discarding persisted session", "error", err)
		if err := s.local.Delete(localstate.KeySessionToken); err != nil {
			s.logger.Warn("failed to clear session token", "error", err)
		}
		s.state.Set(SignedOut())
		return nil
	}
	s.logger.Info("session restored", "principal", principal.ID)
	s.state.Set(SignedIn(*principal))
	return nil
}

// SignInInteractive runs the provider-hosted flow.
func (s *Session) SignInInteractive(ctx context.Context) (*Principal, error) {
	if s.interactive == nil {
		return nil, authError(CodeProvider, "interactive sign-in is not configured")
	}
	principal, err := s.interactive.SignIn(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.signIn(*principal); err != nil {
		return nil, err
	}
	return principal, nil
}

// BeginEmailLinkSignIn sends a one-time sign-in link to email and remembers
// the address for CompleteEmailLinkSignIn.
func (s *Session) BeginEmailLinkSignIn(ctx context.Context, email string, settings LinkSettings) error {
	if s.links == nil {
		return authError(CodeProvider, "email link sign-in is not configured")
	}
	normalized, err := s.links.Send(ctx, email, settings)
	if err != nil {
		return err
	}
	if err := s.local.Set(localstate.KeyEmailForSignIn, normalized); err != nil {
		return fmt.Errorf("storing sign-in email: %w", err)
	}
	s.logger.Info("sign-in link sent", "email", normalized)
	return nil
}

// CompleteEmailLinkSignIn finishes an email-link sign-in if rawURL is a
// sign-in link. It returns nil, nil otherwise. When no email was stored by
// BeginEmailLinkSignIn, prompt supplies it.
func (s *Session) CompleteEmailLinkSignIn(ctx context.Context, rawURL string, prompt EmailPrompt) (*Principal, error) {
	if !IsSignInLink(rawURL) {
		return nil, nil
	}
	if s.links == nil {
		return nil, authError(CodeProvider, "email link sign-in is not configured")
	}

	email, ok, err := s.local.Get(localstate.KeyEmailForSignIn)
	if err != nil {
		return nil, fmt.Errorf("reading sign-in email: %w", err)
	}
	if !ok || email == "" {
		if prompt == nil {
			return nil, authError(CodeInvalidEmail, "email is required to complete sign-in")
		}
		if email, err = prompt(ctx); err != nil {
			return nil, &AuthError{Code: CodeCancelled, Err: err}
		}
	}

	principal, err := s.links.Redeem(rawURL, email)
	if err != nil {
		return nil, err
	}
	if err := s.local.Delete(localstate.KeyEmailForSignIn); err != nil {
		s.logger.Warn("failed to clear sign-in email", "error", err)
	}
	if err := s.signIn(*principal); err != nil {
		return nil, err
	}
	return principal, nil
}

// AwaitingEmailLink reports whether a sign-in link was sent from this session
// and has not been used yet.
func (s *Session) AwaitingEmailLink() bool {
	email, ok, err := s.local.Get(localstate.KeyEmailForSignIn)
	return err == nil && ok && email != ""
}

// SignOut clears the persisted session. Observers receive the signed-out
// state.
func (s *Session) SignOut(ctx context.Context) error {
	if err := s.local.Delete(localstate.KeySessionToken); err != nil {
		return &AuthError{Code: CodeProvider, Err: fmt.Errorf("clearing session token: %w", err)}
	}
	if p := s.Current().Principal; p != nil {
		s.logger.InfoContext(ctx, "signed out", "principal", p.ID)
	}
	s.state.Set(SignedOut())
	return nil
}

func (s *Session) signIn(p Principal) error {
	if s.tokens != nil {
		token, err := s.tokens.IssueSession(p, s.sessionTTL)
		if err != nil {
			return &AuthError{Code: CodeProvider, Err: err}
		}
		if err := s.local.Set(localstate.KeySessionToken, token); err != nil {
			return &AuthError{Code: CodeProvider, Err: fmt.Errorf("storing session token: %w", err)}
		}
	}
	s.logger.Info("signed in", "principal", p.ID)
	s.state.Set(SignedIn(p))
	return nil
}
