package identity

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	linkModeParam  = "mode"
	linkModeSignIn = "signIn"
	linkCodeParam  = "oobCode"
	continueParam  = "continueUrl"

	// DefaultLinkTTL is how long an email sign-in link stays valid.
	DefaultLinkTTL = 15 * time.Minute
)

// LinkSettings controls the link sent by BeginEmailLinkSignIn.
type LinkSettings struct {
	// URL is where the link lands after sign-in completes. Empty uses the
	// configured base URL.
	URL string
	// HandleCodeInApp marks links that must be completed by this client.
	HandleCodeInApp bool
}

// Mailer delivers sign-in links.
type Mailer interface {
	SendSignInLink(ctx context.Context, email, link string) error
}

// LogMailer writes sign-in links to the log instead of sending mail.
type LogMailer struct {
	Logger *slog.Logger
}

// SendSignInLink logs the link.
func (m LogMailer) SendSignInLink(ctx context.Context, email, link string) error {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "email sign-in link", "email", email, "link", link)
	return nil
}

// EmailLinkConfig configures EmailLinks.
type EmailLinkConfig struct {
	BaseURL string
	TTL     time.Duration
	// Every and Burst bound how many links may be sent.
	Every time.Duration
	Burst int
}

// EmailLinks issues and redeems one-time sign-in links.
type EmailLinks struct {
	tokens  *Tokens
	mailer  Mailer
	limiter *rate.Limiter
	baseURL string
	ttl     time.Duration

	mu   sync.Mutex
	used map[string]time.Time
}

// NewEmailLinks creates the email-link flow.
func NewEmailLinks(tokens *Tokens, mailer Mailer, cfg EmailLinkConfig) (*EmailLinks, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("email link base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parsing email link base url: %w", err)
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultLinkTTL
	}
	limit := rate.Inf
	if cfg.Every > 0 {
		limit = rate.Every(cfg.Every)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &EmailLinks{
		tokens:  tokens,
		mailer:  mailer,
		limiter: rate.NewLimiter(limit, cfg.Burst),
		baseURL: cfg.BaseURL,
		ttl:     cfg.TTL,
		used:    make(map[string]time.Time),
	}, nil
}

// Send validates email and mails it a sign-in link. It returns the
// normalized address.
func (l *EmailLinks) Send(ctx context.Context, email string, settings LinkSettings) (string, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return "", err
	}
	if !l.limiter.Allow() {
		return "", authError(CodeQuotaExceeded, "too many sign-in links requested")
	}

	token, _, err := l.tokens.issueLink(normalized, l.ttl)
	if err != nil {
		return "", &AuthError{Code: CodeProvider, Err: err}
	}
	link, err := l.buildURL(token, settings)
	if err != nil {
		return "", &AuthError{Code: CodeProvider, Err: err}
	}
	if err := l.mailer.SendSignInLink(ctx, normalized, link); err != nil {
		return "", &AuthError{Code: CodeProvider, Err: fmt.Errorf("sending sign-in link: %w", err)}
	}
	return normalized, nil
}

// IsSignInLink reports whether rawURL carries a sign-in code.
func IsSignInLink(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	q := u.Query()
	return q.Get(linkModeParam) == linkModeSignIn && q.Get(linkCodeParam) != ""
}

// Redeem checks the link in rawURL against email and consumes it.
func (l *EmailLinks) Redeem(rawURL, email string) (*Principal, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &AuthError{Code: CodeInvalidLink, Err: err}
	}
	claims, err := l.tokens.parseLink(u.Query().Get(linkCodeParam))
	if err != nil {
		return nil, err
	}

	normalized, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if normalized != claims.Email {
		return nil, authError(CodeInvalidLink, "sign-in link was sent to a different email")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.tokens.now()
	for id, exp := range l.used {
		if now.After(exp) {
			delete(l.used, id)
		}
	}
	if _, ok := l.used[claims.ID]; ok {
		return nil, authError(CodeInvalidLink, "sign-in link already used")
	}
	l.used[claims.ID] = claims.ExpiresAt.Time

	return &Principal{ID: PrincipalIDForEmail(normalized), Email: normalized}, nil
}

func (l *EmailLinks) buildURL(token string, settings LinkSettings) (string, error) {
	u, err := url.Parse(l.baseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base url: %w", err)
	}
	q := u.Query()
	q.Set(linkModeParam, linkModeSignIn)
	q.Set(linkCodeParam, token)
	if settings.URL != "" {
		q.Set(continueParam, settings.URL)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// NormalizeEmail validates an address and lower-cases it.
func NormalizeEmail(email string) (string, error) {
	trimmed := strings.TrimSpace(email)
	if trimmed == "" {
		return "", authError(CodeInvalidEmail, "email is required")
	}
	parsed, err := mail.ParseAddress(trimmed)
	if err != nil || parsed.Address != trimmed {
		return "", authError(CodeInvalidEmail, "email %q is invalid", trimmed)
	}
	return strings.ToLower(parsed.Address), nil
}
