package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// trafficLoggingMiddleware logs every message at debug level. Failed tool
// calls are also logged at warn level.
func trafficLoggingMiddleware(logger *slog.Logger, direction string) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			if logger == nil {
				return next(ctx, method, req)
			}

			sessionID := safeSessionID(req)
			if sessionID == "" {
				sessionID = getSessionID(ctx)
			}
			attrs := []any{"direction", direction, "method", method, "session_id", sessionID, "caller", getCaller(ctx)}
			if tool := toolName(req); tool != "" {
				attrs = append(attrs, "tool", tool)
			}

			debug := logger.Enabled(ctx, slog.LevelDebug)
			if debug {
				logger.Debug("mcp traffic", append(attrs, "stage", "request", "params", formatPayload(safeParams(req)))...)
			}

			result, err := next(ctx, method, req)
			if res, ok := result.(*sdkmcp.CallToolResult); ok && res != nil && res.IsError {
				logger.Warn("tool call failed", append(attrs, "result", formatPayload(res.Content))...)
			}
			if debug && !strings.HasPrefix(method, "notifications/") {
				if err != nil {
					logger.Debug("mcp traffic", append(attrs, "stage", "response", "result", formatPayload(result), "error", err)...)
				} else {
					logger.Debug("mcp traffic", append(attrs, "stage", "response", "result", formatPayload(result))...)
				}
			}

			return result, err
		}
	}
}

func toolName(req sdkmcp.Request) string {
	call, ok := req.(*sdkmcp.CallToolRequest)
	if !ok || call == nil || call.Params == nil {
		return ""
	}
	return call.Params.Name
}

func safeSessionID(req sdkmcp.Request) string {
	if req == nil {
		return ""
	}
	defer func() { recover() }()
	session := req.GetSession()
	if session == nil {
		return ""
	}
	defer func() { recover() }()
	return session.ID()
}

func safeParams(req sdkmcp.Request) any {
	if req == nil {
		return nil
	}
	defer func() { recover() }()
	return req.GetParams()
}

func formatPayload(payload any) string {
	if payload == nil {
		return "<nil>"
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("%T", payload)
	}
	return string(data)
}
