package mcp

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

type contextKey int

const (
	callerKey contextKey = iota
	sessionIDKey
)

// localCaller names callers on transports without authentication.
const localCaller = "local"

// getCaller extracts the authenticated caller from context.
func getCaller(ctx context.Context) string {
	v, _ := ctx.Value(callerKey).(string)
	return v
}

// getSessionID extracts session ID from context.
func getSessionID(ctx context.Context) string {
	v, _ := ctx.Value(sessionIDKey).(string)
	return v
}

// TokenVerifier resolves the caller a bearer token belongs to.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (string, error)
}

// StaticToken accepts exactly one API token.
type StaticToken struct {
	Token  string
	Caller string
}

// VerifyToken implements TokenVerifier.
func (s StaticToken) VerifyToken(_ context.Context, token string) (string, error) {
	if s.Token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.Token)) != 1 {
		return "", errors.New("invalid bearer token")
	}
	if s.Caller == "" {
		return "api", nil
	}
	return s.Caller, nil
}

// authMiddleware implements bearer token authentication as MCP middleware.
func authMiddleware(verifier TokenVerifier) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			// Skip auth for protocol methods
			if method == "initialize" || method == "ping" || strings.HasPrefix(method, "notifications/") {
				return next(ctx, method, req)
			}

			extra := req.GetExtra()
			if extra == nil || extra.Header == nil {
				return nil, fmt.Errorf("unauthorized: missing headers")
			}

			auth := extra.Header.Get("Authorization")
			token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
			if token == "" {
				return nil, fmt.Errorf("unauthorized: missing bearer token")
			}
			if verifier == nil {
				return nil, fmt.Errorf("unauthorized: no token verifier configured")
			}

			caller, err := verifier.VerifyToken(ctx, token)
			if err != nil {
				return nil, fmt.Errorf("unauthorized: %w", err)
			}

			ctx = context.WithValue(ctx, callerKey, caller)
			return next(ctx, method, req)
		}
	}
}

// noAuthMiddleware injects a fixed caller when auth is disabled.
func noAuthMiddleware(caller string) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			ctx = context.WithValue(ctx, callerKey, caller)
			return next(ctx, method, req)
		}
	}
}

// sessionMiddleware extracts session ID from Mcp-Session-Id header (HTTP) or metadata (stdio).
func sessionMiddleware() sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			var sessionID string

			// Try HTTP header first (HTTP transport)
			extra := req.GetExtra()
			if extra != nil && extra.Header != nil {
				sessionID = extra.Header.Get("Mcp-Session-Id")
			}

			// If not in header, check metadata (stdio transport)
			// Note: Some notifications (like "initialized") have nil params,
			// so we must check carefully to avoid nil pointer dereference.
			if sessionID == "" {
				if params := req.GetParams(); params != nil {
					// Use defer/recover to safely handle cases where GetMeta
					// is called on a nil underlying value (SDK quirk)
					func() {
						defer func() { recover() }()
						if meta := params.GetMeta(); meta != nil {
							if sid, ok := meta["session_id"].(string); ok {
								sessionID = sid
							}
						}
					}()
				}
			}

			// Inject session ID into context if present
			if sessionID != "" {
				ctx = context.WithValue(ctx, sessionIDKey, sessionID)
			}

			return next(ctx, method, req)
		}
	}
}
