package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/lanes/internal/app"
	"github.com/rpggio/lanes/internal/config"
	"github.com/rpggio/lanes/internal/docstore"
	"github.com/rpggio/lanes/internal/identity"
	"github.com/rpggio/lanes/internal/live"
	"github.com/rpggio/lanes/internal/localstate"
	"github.com/rpggio/lanes/internal/mcp"
	"github.com/rpggio/lanes/internal/sqlite"
	"github.com/rpggio/lanes/internal/transport"
)

// sessionTimeout closes idle streamable HTTP sessions.
const sessionTimeout = 30 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	// Use stderr for logs in stdio mode to keep stdout clean for JSON-RPC.
	logWriter := io.Writer(os.Stdout)
	if cfg.Transport.Mode == "stdio" {
		logWriter = os.Stderr
	}
	if logPath := os.Getenv("LANES_LOG_PATH"); logPath != "" {
		fileWriter, file, err := newLogFileWriter(logPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "log file error: %v\n", err)
		} else {
			defer file.Close()
			logWriter = fileWriter
		}
	}
	logger := slog.New(slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	backend, verifier, closeBackend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeBackend()

	queue := live.NewQueue(logger)
	defer queue.Close()
	store := docstore.NewClient(backend, queue, logger)
	defer store.Close()

	secret := cfg.Auth.SessionSecret
	if secret == "" {
		secret = randomSecret()
		logger.Warn("no session secret configured; sessions end when the server restarts")
	}
	tokens, err := identity.NewTokens(secret, "lanes")
	if err != nil {
		return fmt.Errorf("creating token issuer: %w", err)
	}

	publicURL := cfg.Server.PublicURL
	if publicURL == "" {
		publicURL = fmt.Sprintf("http://%s:%d", displayHost(cfg.Server.Host), cfg.Server.Port)
	}
	linkBase := cfg.Auth.EmailLink.BaseURL
	if linkBase == "" {
		linkBase = strings.TrimSuffix(publicURL, "/") + "/auth/email-link"
	}
	links, err := identity.NewEmailLinks(tokens, identity.LogMailer{Logger: logger}, identity.EmailLinkConfig{
		BaseURL: linkBase,
		TTL:     cfg.Auth.EmailLink.TTL,
		Every:   cfg.Auth.EmailLink.RateEvery,
		Burst:   cfg.Auth.EmailLink.RateBurst,
	})
	if err != nil {
		return fmt.Errorf("configuring email links: %w", err)
	}

	var oidcProvider *identity.OIDCProvider
	var interactive identity.InteractiveProvider
	if cfg.Auth.OIDC.Enabled() {
		redirect := cfg.Auth.OIDC.RedirectURL
		if redirect == "" {
			redirect = strings.TrimSuffix(publicURL, "/") + "/auth/callback"
		}
		oidcProvider, err = identity.NewOIDCProvider(ctx, identity.OIDCConfig{
			IssuerURL:    cfg.Auth.OIDC.Issuer,
			ClientID:     cfg.Auth.OIDC.ClientID,
			ClientSecret: cfg.Auth.OIDC.ClientSecret,
			RedirectURL:  redirect,
			Scopes:       cfg.Auth.OIDC.Scopes,
		}, logOpener(logger), logger)
		if err != nil {
			return fmt.Errorf("configuring oidc: %w", err)
		}
		interactive = oidcProvider
	}

	// newWorkspace builds one client's identity session and views over the
	// shared store.
	newWorkspace := func(local localstate.Store) *app.Workspace {
		session := identity.NewSession(identity.SessionConfig{
			Queue:       queue,
			Local:       local,
			Tokens:      tokens,
			Interactive: interactive,
			EmailLinks:  links,
			SessionTTL:  cfg.Auth.SessionTTL,
		}, logger)
		return app.New(app.Config{Queue: queue, Store: store, Session: session}, logger)
	}

	mcpConfig := mcp.Config{
		Verifier:      verifier,
		AuthEnabled:   cfg.Auth.Enabled,
		TransportMode: cfg.Transport.Mode,
		LinkURL:       cfg.Auth.EmailLink.ReturnURL,
		Logger:        logger,
	}
	routes := transport.Config{Logger: logger}
	if oidcProvider != nil {
		routes.OIDCCallback = http.HandlerFunc(oidcProvider.Callback)
	}
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	// Branch based on transport mode
	if cfg.Transport.Mode == "stdio" {
		// One local client, whose session persists in the state file.
		ws := newWorkspace(localstate.NewFileStore(cfg.State.Path))
		if err := ws.Start(ctx); err != nil {
			return err
		}
		defer ws.Close()
		mcpConfig.Workspace = ws
		routes.EmailLinks = ws.Session()

		// Sign-in redirects still need an HTTP listener.
		if oidcProvider != nil {
			httpServer := &http.Server{Addr: addr, Handler: transport.NewServer(routes)}
			go serveHTTP(logger, httpServer)
			defer shutdown(logger, httpServer)
		}
		return runStdioMode(ctx, logger, mcp.NewServer(mcpConfig))
	}

	// Every MCP session gets its own workspace; sessions live in memory only.
	pool := app.NewPool(func() *app.Workspace {
		return newWorkspace(localstate.NewFileStore(""))
	}, sessionTimeout+time.Minute, logger)
	defer pool.Close()
	go pool.Run(ctx)

	routes.EmailLinks = pool
	routes.MCP = mcp.NewStreamableHandler(pool, mcpConfig, &sdkmcp.StreamableHTTPOptions{
		Stateless:      false,
		SessionTimeout: sessionTimeout,
	})
	if cfg.Auth.Enabled {
		routes.Auth = transport.AuthMiddleware(verifier)
	}
	runHTTPMode(ctx, logger, &http.Server{Addr: addr, Handler: transport.NewServer(routes)})
	return nil
}

// openBackend opens the configured document backend and the verifier for
// HTTP bearer tokens.
func openBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (docstore.Backend, transport.TokenVerifier, func(), error) {
	if cfg.DB.Driver == "memory" {
		logger.Info("using in-memory document store")
		return docstore.NewMemoryBackend(), mcp.StaticToken{Token: cfg.Auth.APIToken}, func() {}, nil
	}

	if err := ensureDBDir(cfg.DB.Path); err != nil {
		return nil, nil, nil, fmt.Errorf("preparing database path: %w", err)
	}
	db, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.RunMigrations(); err != nil {
		db.Close()
		return nil, nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	keys := sqlite.NewAPIKeyStore(db)
	if cfg.Auth.APIToken != "" {
		if err := keys.Put(ctx, "api", cfg.Auth.APIToken, "configured api token"); err != nil {
			db.Close()
			return nil, nil, nil, err
		}
	}
	return sqlite.NewDocumentBackend(db), keys, func() { db.Close() }, nil
}

func runStdioMode(ctx context.Context, logger *slog.Logger, mcpServer *sdkmcp.Server) error {
	logger.Info("starting stdio transport", "auth", "disabled")

	// Run blocks until stdin closes or context is canceled
	if err := mcpServer.Run(ctx, &sdkmcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("stdio server: %w", err)
	}
	logger.Info("shutting down")
	return nil
}

func runHTTPMode(ctx context.Context, logger *slog.Logger, httpServer *http.Server) {
	go serveHTTP(logger, httpServer)
	<-ctx.Done()
	shutdown(logger, httpServer)
}

func serveHTTP(logger *slog.Logger, server *http.Server) {
	logger.Info("server listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
	}
}

func shutdown(logger *slog.Logger, server *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logger.Info("shutting down")
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

// logOpener hands the authorization URL to the operator through the log.
func logOpener(logger *slog.Logger) identity.Opener {
	return func(ctx context.Context, authURL string) error {
		logger.InfoContext(ctx, "open this URL to sign in", "url", authURL)
		return nil
	}
}

func randomSecret() string {
	buf := make([]byte, 32)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func displayHost(host string) string {
	if host == "" || host == "0.0.0.0" || host == "::" {
		return "localhost"
	}
	return host
}

func ensureDBDir(path string) error {
	if path == ":memory:" || path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

const (
	maxLogSizeBytes  = 6 * 1024 * 1024
	keepLogSizeBytes = 5 * 1024 * 1024
)

type logFileWriter struct {
	path string
	file *os.File
	mu   sync.Mutex
}

func newLogFileWriter(path string) (*logFileWriter, *os.File, error) {
	if err := ensureLogDir(path); err != nil {
		return nil, nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	writer := &logFileWriter{path: path, file: file}
	if err := writer.truncateIfNeeded(); err != nil {
		return nil, nil, err
	}
	return writer, file, nil
}

func ensureLogDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (w *logFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n, err := w.file.Write(p)
	if err != nil {
		return n, err
	}
	if err := w.truncateIfNeeded(); err != nil {
		return n, err
	}
	return n, nil
}

func (w *logFileWriter) truncateIfNeeded() error {
	info, err := w.file.Stat()
	if err != nil {
		return err
	}
	size := info.Size()
	if size <= maxLogSizeBytes {
		return nil
	}
	if size <= keepLogSizeBytes {
		return nil
	}

	buf := make([]byte, keepLogSizeBytes)
	if _, err := w.file.Seek(size-keepLogSizeBytes, io.SeekStart); err != nil {
		return err
	}
	n, err := w.file.Read(buf)
	if err != nil && err != io.EOF {
		return err
	}
	buf = buf[:n]

	if err := w.file.Truncate(0); err != nil {
		return err
	}
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := w.file.Write(buf); err != nil {
		return err
	}
	_, err = w.file.Seek(0, io.SeekEnd)
	return err
}
