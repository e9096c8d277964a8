package transport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rpggio/lanes/internal/identity"
)

// EmailLinkCompleter finishes an email-link sign-in.
type EmailLinkCompleter interface {
	CompleteEmailLinkSignIn(ctx context.Context, rawURL string, prompt identity.EmailPrompt) (*identity.Principal, error)
}

// Config lists the handlers the router mounts. Nil handlers are not mounted.
type Config struct {
	// MCP serves the streamable MCP endpoint.
	MCP http.Handler
	// Auth guards /mcp when set.
	Auth func(http.Handler) http.Handler
	// OIDCCallback serves the identity provider redirect.
	OIDCCallback http.Handler
	EmailLinks   EmailLinkCompleter
	Logger       *slog.Logger
}

// Server wires HTTP handlers.
type Server struct {
	links  EmailLinkCompleter
	logger *slog.Logger
}

// NewServer creates an HTTP server router with middleware.
func NewServer(cfg Config) *chi.Mux {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{links: cfg.EmailLinks, logger: logger}

	r := chi.NewRouter()
	r.Use(SessionMiddleware)

	r.Get("/health", srv.handleHealth)

	if cfg.MCP != nil {
		r.Group(func(r chi.Router) {
			if cfg.Auth != nil {
				r.Use(cfg.Auth)
			}
			r.Handle("/mcp", cfg.MCP)
		})
	}

	r.Route("/auth", func(r chi.Router) {
		if cfg.OIDCCallback != nil {
			r.Method(http.MethodGet, "/callback", cfg.OIDCCallback)
		}
		if cfg.EmailLinks != nil {
			r.Get("/email-link", srv.handleEmailLink)
		}
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleEmailLink completes a sign-in from the link a user clicked. A
// completer that has no stored address for the link reads it from the email
// query parameter.
func (s *Server) handleEmailLink(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	prompt := func(context.Context) (string, error) {
		if email == "" {
			return "", errors.New("email query parameter is required")
		}
		return email, nil
	}

	principal, err := s.links.CompleteEmailLinkSignIn(r.Context(), r.URL.String(), prompt)
	if err != nil {
		requestLogger(s.logger, r).Warn("email link sign-in failed", "error", err)
		writeError(w, statusForAuth(err), string(identity.CodeOf(err)), err.Error())
		return
	}
	if principal == nil {
		writeError(w, http.StatusBadRequest, string(identity.CodeInvalidLink), "not a sign-in link")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"principal": principal})
}

func statusForAuth(err error) int {
	switch identity.CodeOf(err) {
	case identity.CodeInvalidEmail, identity.CodeInvalidLink, identity.CodeCancelled:
		return http.StatusBadRequest
	case identity.CodeExpiredLink:
		return http.StatusGone
	case identity.CodeQuotaExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "message": message})
}
