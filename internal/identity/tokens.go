package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	sessionAudience = "lanes-session"
	linkAudience    = "lanes-email-link"
)

type sessionClaims struct {
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

type linkClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Tokens signs and verifies the HS256 tokens used for persisted sessions and
// email sign-in links.
type Tokens struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewTokens creates a signer for secret.
func NewTokens(secret, issuer string) (*Tokens, error) {
	if secret == "" {
		return nil, fmt.Errorf("token secret is required")
	}
	return &Tokens{secret: []byte(secret), issuer: issuer, now: time.Now}, nil
}

// IssueSession returns a session token for p valid for ttl. A zero ttl never
// expires.
func (t *Tokens) IssueSession(p Principal, ttl time.Duration) (string, error) {
	now := t.now()
	claims := sessionClaims{
		Email:   p.Email,
		Name:    p.DisplayName,
		Picture: p.PhotoURL,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  p.ID,
			Issuer:   t.issuer,
			Audience: jwt.ClaimStrings{sessionAudience},
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("signing session token: %w", err)
	}
	return signed, nil
}

// ParseSession verifies a session token and returns its principal.
func (t *Tokens) ParseSession(token string) (*Principal, error) {
	var claims sessionClaims
	if _, err := t.parse(token, sessionAudience, &claims); err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("session token without subject")
	}
	return &Principal{
		ID:          claims.Subject,
		Email:       claims.Email,
		DisplayName: claims.Name,
		PhotoURL:    claims.Picture,
	}, nil
}

// issueLink returns a one-time link token for email and its id.
func (t *Tokens) issueLink(email string, ttl time.Duration) (string, string, error) {
	now := t.now()
	id := uuid.NewString()
	claims := linkClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Issuer:    t.issuer,
			Audience:  jwt.ClaimStrings{linkAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", "", fmt.Errorf("signing link token: %w", err)
	}
	return signed, id, nil
}

func (t *Tokens) parseLink(token string) (*linkClaims, error) {
	var claims linkClaims
	if _, err := t.parse(token, linkAudience, &claims); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, authError(CodeExpiredLink, "sign-in link expired")
		}
		return nil, &AuthError{Code: CodeInvalidLink, Err: err}
	}
	return &claims, nil
}

func (t *Tokens) parse(token, audience string, claims jwt.Claims) (*jwt.Token, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithTimeFunc(t.now),
	}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}
	tok, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}
	return tok, nil
}
