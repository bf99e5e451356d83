package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/raaihank/llm-anonymizer/internal/anonymizer"
	"github.com/raaihank/llm-anonymizer/internal/audit"
	"github.com/raaihank/llm-anonymizer/internal/config"
	"github.com/raaihank/llm-anonymizer/internal/logger"
	"github.com/raaihank/llm-anonymizer/internal/web"
	"github.com/raaihank/llm-anonymizer/internal/websocket"
	"go.uber.org/zap"
)

// Server exposes the anonymization pipeline over HTTP
type Server struct {
	config   *config.Config
	logger   *logger.Logger
	pipeline *anonymizer.Pipeline
	router   *mux.Router
	server   *http.Server
	limiter  *RateLimiter
	wsHub    *websocket.Hub
	audit    *audit.Store
	version  string
	started  time.Time
}

// Option configures optional server collaborators
type Option func(*Server)

// WithHub serves the event hub on the configured websocket path
func WithHub(hub *websocket.Hub) Option {
	return func(s *Server) { s.wsHub = hub }
}

// WithAudit exposes audit statistics
func WithAudit(store *audit.Store) Option {
	return func(s *Server) { s.audit = store }
}

// WithVersion sets the version reported by /info
func WithVersion(version string) Option {
	return func(s *Server) { s.version = version }
}

// New creates a new API server instance
func New(cfg *config.Config, pipeline *anonymizer.Pipeline, log *logger.Logger, opts ...Option) *Server {
	s := &Server{
		config:   cfg,
		logger:   log.WithComponent("server"),
		pipeline: pipeline,
		router:   mux.NewRouter(),
		version:  "dev",
		started:  time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.RateLimit.Enabled {
		s.limiter = NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, cfg.RateLimit.ClientTTL)
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)

	if s.wsHub != nil && s.config.WebSocket.Enabled {
		s.router.HandleFunc(s.config.WebSocket.Path, s.wsHub.HandleWebSocket).Methods(http.MethodGet)
		s.router.HandleFunc("/dashboard", web.DashboardHandler(s.config.WebSocket.Path)).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.rateLimitMiddleware)
	api.HandleFunc("/anonymize", s.handleAnonymize).Methods(http.MethodPost)
	api.HandleFunc("/detect", s.handleDetect).Methods(http.MethodPost)
	api.HandleFunc("/patterns", s.handleListPatterns).Methods(http.MethodGet)
	api.HandleFunc("/patterns", s.handleAddPattern).Methods(http.MethodPost)
	api.HandleFunc("/patterns/{name}", s.handleGetPattern).Methods(http.MethodGet)
	api.HandleFunc("/patterns/{name}", s.handleRemovePattern).Methods(http.MethodDelete)
	if s.audit != nil {
		api.HandleFunc("/audit/stats", s.handleAuditStats).Methods(http.MethodGet)
		api.HandleFunc("/audit/runs", s.handleAuditRuns).Methods(http.MethodGet)
	}

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("Starting anonymizer API server",
		zap.String("addr", s.server.Addr),
		zap.Bool("websocket", s.wsHub != nil && s.config.WebSocket.Enabled),
		zap.Bool("rate_limit", s.limiter != nil),
		zap.Bool("audit", s.audit != nil),
	)

	if s.limiter != nil {
		go s.limiter.Run(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Stopping anonymizer API server")
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}
