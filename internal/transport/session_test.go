package transport

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSessionMiddleware(t *testing.T) {
	var got string
	var ok bool
	handler := SessionMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = SessionIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(SessionHeader, "sess1")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.True(t, ok)
	require.Equal(t, "sess1", got)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.False(t, ok)
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	handler := SessionMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestLogger(base, r).Info("hello")
	}))
	req := httptest.NewRequest(http.MethodGet, "/auth/email-link", nil)
	req.Header.Set(SessionHeader, "sess1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.Contains(t, buf.String(), "session_id=sess1")
	require.Contains(t, buf.String(), "path=/auth/email-link")
}
