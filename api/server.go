// Package api exposes the engine over HTTP: the push webhook, search (plain
// and websocket), manifest validation, bulk indexing and operational routes.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/synoet/spellbook/core"
	"github.com/synoet/spellbook/engine"
	"github.com/synoet/spellbook/ledger"
)

// Engine is the part of engine.Engine the server drives.
type Engine interface {
	HandlePush(ctx context.Context, event *core.PushEvent) (*engine.Report, error)
	IndexManifest(ctx context.Context, m *core.Manifest) (*engine.Report, error)
	Replay(ctx context.Context, limit int) (*engine.Report, error)
	Search(ctx context.Context, query string, k int) ([]engine.Result, error)
}

// StatusSource reports sync history for GET /status (see ledger.Ledger).
type StatusSource interface {
	LastSync(ctx context.Context, repo string) (*ledger.Sync, error)
	CountPending(ctx context.Context) (int, error)
}

// Options configures a Server.
type Options struct {
	Addr string
	// WebhookSecret enables X-Hub-Signature-256 verification when set.
	WebhookSecret string
	// AdminToken is the bearer token for POST /index and POST /admin/replay.
	// Without it those routes reject every request.
	AdminToken string
	// SyncTimeout bounds one webhook-triggered sync. Zero means no deadline.
	SyncTimeout time.Duration
	// Status is optional; without it /status only reports liveness.
	Status StatusSource
	// Gatherer backs /metrics. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// Server represents the HTTP API server
type Server struct {
	router   chi.Router
	server   *http.Server
	addr     string
	engine   Engine
	status   StatusSource
	gatherer prometheus.Gatherer
	secret   []byte
	admin    []byte
	timeout  time.Duration
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewServer creates a new HTTP server instance
func NewServer(eng Engine, opts Options) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		addr:     opts.Addr,
		engine:   eng,
		status:   opts.Status,
		gatherer: opts.Gatherer,
		timeout:  opts.SyncTimeout,
		logger:   opts.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	if opts.WebhookSecret != "" {
		s.secret = []byte(opts.WebhookSecret)
	}
	if opts.AdminToken != "" {
		s.admin = []byte(opts.AdminToken)
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s.logger = s.logger.With("component", "api")

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(accessLog(s.logger))
	s.router.Use(middleware.Recoverer)
	s.registerRoutes()

	// Webhook syncs may run up to the sync deadline before answering.
	writeTimeout := 15 * time.Second
	if opts.SyncTimeout > 0 {
		writeTimeout = max(writeTimeout, opts.SyncTimeout+5*time.Second)
	}
	s.server = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
