// Package api serves the snapshot store to clients and, inside the sync daemon,
// the local advisor to dashboards.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ramonehamilton/matchup-companion/internal/api/websocket"
	"github.com/ramonehamilton/matchup-companion/internal/matchup"
	"github.com/ramonehamilton/matchup-companion/internal/metrics"
	"github.com/ramonehamilton/matchup-companion/internal/remote"
)

// Server represents the REST API server.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	addr       string
	service    string
	logger     *slog.Logger

	wsHub *websocket.Hub

	snapshots remote.Store
	advisor   *matchup.Advisor
	metrics   *metrics.ServerMetrics
	ping      func(context.Context) error
}

// Config holds configuration for the API server.
type Config struct {
	// Addr is the listen address (default: ":8420")
	Addr string

	// Service names the server in health responses.
	Service string

	// RequestTimeout bounds every request (default: 30s)
	RequestTimeout time.Duration

	Logger *slog.Logger
}

// DefaultConfig returns the default API server configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr:           ":8420",
		Service:        "matchup-snapshot-server",
		RequestTimeout: 30 * time.Second,
	}
}

// Deps holds what the server serves. Route groups whose dependency is nil are
// not mounted.
type Deps struct {
	Snapshots remote.Store
	Advisor   *matchup.Advisor
	Metrics   *metrics.ServerMetrics

	// Ping backs the health check when set.
	Ping func(context.Context) error
}

// NewServer creates a new API server. The websocket hub runs until Shutdown.
func NewServer(cfg *Config, deps Deps) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	defaults := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = defaults.Addr
	}
	if cfg.Service == "" {
		cfg.Service = defaults.Service
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaults.RequestTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewServerMetrics()
	}

	s := &Server{
		router:    chi.NewRouter(),
		addr:      cfg.Addr,
		service:   cfg.Service,
		logger:    logger,
		wsHub:     websocket.NewHub(logger),
		snapshots: deps.Snapshots,
		advisor:   deps.Advisor,
		metrics:   deps.Metrics,
		ping:      deps.Ping,
	}

	s.setupMiddleware(cfg.RequestTimeout)
	s.setupRoutes()

	go s.wsHub.Run()

	return s
}

// setupMiddleware configures the middleware stack.
func (s *Server) setupMiddleware(timeout time.Duration) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(timeout))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*", "https://localhost:*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	s.router.Use(jsonContentTypeMiddleware)
}

// requestLogger logs each request at debug level and records its latency.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		s.metrics.RequestLatency.Record(elapsed)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", elapsed,
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// jsonContentTypeMiddleware enforces application/json content-type for requests with bodies.
func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			if r.ContentLength == 0 {
				next.ServeHTTP(w, r)
				return
			}

			contentType := r.Header.Get("Content-Type")
			if contentType != "application/json" && !strings.HasPrefix(contentType, "application/json;") {
				http.Error(w, "Content-Type must be application/json", http.StatusUnsupportedMediaType)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves in a goroutine. The
// listener is bound before Start returns so that callers see bind errors.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		s.logger.Info("API server listening", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.wsHub.Stop()
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}

// WebSocketHub returns the WebSocket hub for external integration.
func (s *Server) WebSocketHub() *websocket.Hub {
	return s.wsHub
}

// NewSyncForwarder returns an emitter that relays scheduler events to the
// server's websocket clients.
func (s *Server) NewSyncForwarder() *websocket.SyncForwarder {
	return websocket.NewSyncForwarder(s.wsHub)
}
