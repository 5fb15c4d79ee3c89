// Package api provides the HTTP REST API server for portwarden.
// It exposes monitoring control, one-shot scans, change-event history,
// and a WebSocket event stream over a gorilla/mux router.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	_ "github.com/mfolkes/portwarden/docs" // swagger docs
	"github.com/mfolkes/portwarden/internal/api/handlers"
	"github.com/mfolkes/portwarden/internal/api/middleware"
	"github.com/mfolkes/portwarden/internal/auth"
	"github.com/mfolkes/portwarden/internal/config"
	"github.com/mfolkes/portwarden/internal/metrics"
	"github.com/mfolkes/portwarden/internal/monitor"
	"github.com/mfolkes/portwarden/internal/scanning"
	"github.com/mfolkes/portwarden/internal/store"

	"github.com/gorilla/mux"
)

const (
	defaultReadTimeout     = 15 * time.Second
	defaultWriteTimeout    = 15 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultRateLimit       = 100
	defaultRateWindow      = time.Minute
)

// Server is the portwarden API server.
type Server struct {
	config     *config.Config
	monitor    *monitor.Monitor
	store      *store.Store
	keys       *auth.KeyStore
	logger     *slog.Logger
	registry   metrics.MetricsRegistry
	router     *mux.Router
	httpServer *http.Server
	websocket  *handlers.WebSocketHandler
}

// Option configures the server.
type Option func(*Server)

// WithStore wires persisted history into the API. Without it the server
// serves in-memory state only.
func WithStore(st *store.Store) Option {
	return func(s *Server) { s.store = st }
}

// WithKeyStore enables database-backed API key authentication.
func WithKeyStore(ks *auth.KeyStore) Option {
	return func(s *Server) { s.keys = ks }
}

// WithMetrics replaces the default metrics registry.
func WithMetrics(registry metrics.MetricsRegistry) Option {
	return func(s *Server) { s.registry = registry }
}

// New creates an API server for the given monitor.
func New(cfg *config.Config, mon *monitor.Monitor, logger *slog.Logger, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if mon == nil {
		return nil, fmt.Errorf("monitor is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config:   cfg,
		monitor:  mon,
		logger:   logger.With("component", "api"),
		registry: metrics.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	scanCfg, err := cfg.ScanConfig()
	if err != nil {
		return nil, fmt.Errorf("invalid scan configuration: %w", err)
	}

	s.router = mux.NewRouter()
	s.setupMiddleware()
	s.setupRoutes(scanCfg)

	s.httpServer = &http.Server{
		Addr:         cfg.GetAPIAddress(),
		Handler:      s.router,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		IdleTimeout:  defaultIdleTimeout,
	}

	return s, nil
}

// setupMiddleware attaches the middleware chain. Order matters: recovery
// wraps everything, logging tags requests before anything else reads the
// request ID.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recovery(s.logger))
	s.router.Use(middleware.Logging(s.logger))
	s.router.Use(middleware.Metrics(s.registry))
	s.router.Use(middleware.SecurityHeaders())
	s.router.Use(middleware.ContentType())
	s.router.Use(middleware.Compression())

	if s.config.API.RequestTimeout > 0 {
		s.router.Use(middleware.RequestTimeout(s.config.API.RequestTimeout))
	}

	s.router.Use(middleware.RateLimit(defaultRateLimit, defaultRateWindow, s.logger))

	if s.config.API.CORS.Enabled {
		s.router.Use(middleware.CORS(
			s.config.API.CORS.AllowedOrigins,
			s.config.API.CORS.AllowedHeaders,
			s.config.API.CORS.AllowedMethods))
	}

	if validate := s.keyValidator(); validate != nil {
		s.router.Use(middleware.Authentication(validate, s.logger))
	}
}

// keyValidator returns the API key check to use, or nil when
// authentication is not configured.
func (s *Server) keyValidator() middleware.KeyValidator {
	if s.keys != nil {
		keys := s.keys
		return func(ctx context.Context, apiKey string) bool {
			_, err := keys.Validate(ctx, apiKey)
			return err == nil
		}
	}
	if s.config.API.APIKey != "" {
		return middleware.StaticKeyValidator(s.config.API.APIKey)
	}
	return nil
}

// setupRoutes registers all API routes.
func (s *Server) setupRoutes(scanCfg scanning.ScanConfig) {
	health := handlers.NewHealthHandler(s.monitor, s.store, s.logger, s.registry)
	targets := handlers.NewTargetsHandler(s.monitor, s.store, s.logger, s.registry)
	scan := handlers.NewScanHandler(scanning.NewScanner(), scanCfg, s.logger, s.registry)
	events := handlers.NewEventsHandler(s.monitor, s.logger, s.registry)
	s.websocket = handlers.NewWebSocketHandler(s.logger, s.registry)

	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", health.Health).Methods(http.MethodGet)
	api.HandleFunc("/liveness", health.Liveness).Methods(http.MethodGet)
	api.HandleFunc("/version", health.Version).Methods(http.MethodGet)
	api.HandleFunc("/status", health.Status).Methods(http.MethodGet)
	api.Handle("/metrics", promhttp.HandlerFor(
		metrics.GetGlobalMetrics().GetRegistry(),
		promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api.HandleFunc("/targets", targets.ListTargets).Methods(http.MethodGet)
	api.HandleFunc("/targets", targets.AddTarget).Methods(http.MethodPost)
	api.HandleFunc("/targets/{host}", targets.GetTarget).Methods(http.MethodGet)
	api.HandleFunc("/targets/{host}", targets.RemoveTarget).Methods(http.MethodDelete)
	api.HandleFunc("/targets/{host}/snapshot", targets.GetSnapshot).Methods(http.MethodGet)
	api.HandleFunc("/targets/{host}/events", targets.GetEvents).Methods(http.MethodGet)

	api.HandleFunc("/scan", scan.Scan).Methods(http.MethodPost)

	api.HandleFunc("/events", events.ListEvents).Methods(http.MethodGet)
	api.HandleFunc("/events/ws", s.websocket.EventsWebSocket).Methods(http.MethodGet)

	s.router.PathPrefix("/swagger/").Handler(httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json")))
	s.router.HandleFunc("/docs", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/swagger/index.html", http.StatusMovedPermanently)
	})
}

// WebSocket returns the event-stream hub so the daemon can wire it as a
// monitor event sink.
func (s *Server) WebSocket() *handlers.WebSocketHandler {
	return s.websocket
}

// Router returns the configured router, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start begins serving. It blocks until the listener fails or Shutdown
// is called.
func (s *Server) Start() error {
	s.logger.Info("Starting API server",
		"address", s.httpServer.Addr,
		"tls", s.config.API.TLS.Enabled)

	var err error
	if s.config.API.TLS.Enabled {
		err = s.httpServer.ListenAndServeTLS(
			s.config.API.TLS.CertFile, s.config.API.TLS.KeyFile)
	} else {
		err = s.httpServer.ListenAndServe()
	}
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server failed: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully, bounded by the given context.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")

	if s.websocket != nil {
		_ = s.websocket.Close()
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultShutdownTimeout)
		defer cancel()
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("API server shutdown failed: %w", err)
	}
	return nil
}
