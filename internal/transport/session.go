package transport

import (
	"context"
	"log/slog"
	"net/http"
)

// SessionHeader carries the MCP session id on HTTP requests.
const SessionHeader = "Mcp-Session-Id"

type sessionKey struct{}

// SessionIDFromContext returns the session ID from context, if present.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	sessionID, ok := ctx.Value(sessionKey{}).(string)
	return sessionID, ok
}

// SessionMiddleware extracts the MCP session id and stores it in context.
func SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sessionID := r.Header.Get(SessionHeader); sessionID != "" {
			r = r.WithContext(context.WithValue(r.Context(), sessionKey{}, sessionID))
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger tags logger with the request's session and caller.
func requestLogger(logger *slog.Logger, r *http.Request) *slog.Logger {
	if sessionID, ok := SessionIDFromContext(r.Context()); ok {
		logger = logger.With("session_id", sessionID)
	}
	if caller, ok := CallerFromContext(r.Context()); ok {
		logger = logger.With("caller", caller)
	}
	return logger.With("path", r.URL.Path)
}
