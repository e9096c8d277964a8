package mcp

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/rpggio/lanes/internal/app"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Config contains server configuration.
type Config struct {
	Workspace     *app.Workspace
	Verifier      TokenVerifier
	AuthEnabled   bool
	TransportMode string // "stdio" or "http"
	// LinkURL is where email sign-in links return when a caller names none.
	LinkURL string
	Logger  *slog.Logger
}

// NewServer creates and configures an MCP server with all tools and middleware.
func NewServer(cfg Config) *sdkmcp.Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "lanes",
		Version: "0.1.0",
	}, &sdkmcp.ServerOptions{
		Instructions: serverInstructions,
		Logger:       logger,
	})

	registerDocResources(server)

	// Stdio mode: always disable auth (local use only)
	if cfg.TransportMode == "stdio" || !cfg.AuthEnabled {
		server.AddReceivingMiddleware(noAuthMiddleware(localCaller))
	} else {
		server.AddReceivingMiddleware(authMiddleware(cfg.Verifier))
	}
	server.AddReceivingMiddleware(sessionMiddleware())
	server.AddReceivingMiddleware(trafficLoggingMiddleware(logger, "inbound"))
	server.AddSendingMiddleware(trafficLoggingMiddleware(logger, "outbound"))

	registerTools(server, &tools{ws: cfg.Workspace, linkURL: cfg.LinkURL, logger: logger})

	return server
}

// NewStreamableHandler serves MCP over streamable HTTP. Each client session
// gets its own server bound to a fresh workspace from pool, so sign-in and
// sign-out stay with the client that made them. cfg.Workspace is ignored.
func NewStreamableHandler(pool *app.Pool, cfg Config, opts *sdkmcp.StreamableHTTPOptions) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return sdkmcp.NewStreamableHTTPHandler(func(r *http.Request) *sdkmcp.Server {
		ws, err := pool.Open(r.Context())
		if err != nil {
			logger.Error("failed to open workspace", "error", err)
			return nil
		}
		sessionCfg := cfg
		sessionCfg.Workspace = ws
		server := NewServer(sessionCfg)
		server.AddReceivingMiddleware(touchMiddleware(pool, ws))
		return server
	}, opts)
}

// touchMiddleware marks ws active on every inbound message.
func touchMiddleware(pool *app.Pool, ws *app.Workspace) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			pool.Touch(ws)
			return next(ctx, method, req)
		}
	}
}
