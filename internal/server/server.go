// Package server provides the HTTP server that exposes the filter, the
// runtime settings, and decision statistics.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lusochat/smart-search/internal/bus"
	"github.com/lusochat/smart-search/internal/filter"
	"github.com/lusochat/smart-search/internal/metrics"
	"github.com/lusochat/smart-search/internal/pkg/logger"
	"github.com/lusochat/smart-search/internal/pkg/middleware"
	"github.com/lusochat/smart-search/internal/settings"
)

// Config configures the server.
type Config struct {
	// Host is the address to bind to.
	Host string

	// Port is the HTTP port.
	Port int

	// Build information reported by /v1/version.
	Version   string
	Commit    string
	BuildDate string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// APIKey protects every route except health, version, and metrics.
	// Empty disables the check.
	APIKey string

	// RateLimit is requests per second per client IP. Zero disables it.
	RateLimit float64
	RateBurst int

	// TrustedProxies may set the client IP through forwarding headers.
	TrustedProxies []string

	// MetricsPath serves Prometheus metrics. Empty disables the endpoint.
	MetricsPath string
}

// DefaultConfig returns sensible server defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8090,
		Version:         "dev",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		MetricsPath:     "/metrics",
	}
}

// Deps are the services the server exposes. Filter and Settings are
// required; the rest may be nil.
type Deps struct {
	Filter   *filter.Filter
	Settings *settings.Service
	Tally    *metrics.Tally
	Metrics  *metrics.Metrics
	Events   *bus.EventLogger
}

// Server is the HTTP server.
type Server struct {
	cfg  Config
	deps Deps
	log  *logger.Logger

	httpServer  *http.Server
	rateLimiter *middleware.RateLimiter
	handler     http.Handler

	ready atomic.Bool

	mu      sync.Mutex
	started bool
}

// New creates a server and builds its handler.
func New(cfg Config, deps Deps, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Discard()
	}
	s := &Server{
		cfg:  cfg,
		deps: deps,
		log:  log.WithComponent("server"),
	}
	s.handler = s.buildHandler()
	s.ready.Store(true)
	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// buildHandler registers routes and wraps them, outermost first: recovery,
// request id, logging, CORS, API key, rate limit, metrics.
func (s *Server) buildHandler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	var handler http.Handler = mux
	if s.deps.Metrics != nil {
		// Innermost, so the mux has set r.Pattern when the label is read.
		handler = metrics.HTTPMiddleware(s.deps.Metrics, handler)
	}
	if s.cfg.RateLimit > 0 {
		burst := s.cfg.RateBurst
		if burst < 1 {
			burst = int(s.cfg.RateLimit * 2)
		}
		rlCfg := middleware.DefaultRateLimiterConfig()
		rlCfg.RequestsPerSecond = s.cfg.RateLimit
		rlCfg.Burst = burst
		rlCfg.TrustedProxies = s.cfg.TrustedProxies
		s.rateLimiter = middleware.NewRateLimiter(rlCfg)
		handler = s.rateLimiter.Middleware(handler)
	}
	handler = middleware.APIKey(s.cfg.APIKey, s.publicPaths()...)(handler)
	handler = middleware.CORS(handler)
	handler = loggingMiddleware(handler, s.log)
	handler = middleware.RequestID(handler)
	handler = recoveryMiddleware(handler, s.log)
	return handler
}

func (s *Server) publicPaths() []string {
	paths := []string{"/healthz", "/readyz", "/v1/version"}
	if s.cfg.MetricsPath != "" {
		paths = append(paths, s.cfg.MetricsPath)
	}
	return paths
}

// Start serves until Stop is called. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("server already started")
	}
	s.started = true

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.log.Info("Starting HTTP server", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ready.Store(false)
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	if !s.started {
		return nil
	}

	s.log.Info("Shutting down server...")

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := s.httpServer.Shutdown(shutdownCtx)
	if err != nil {
		s.log.Error("HTTP shutdown error", "error", err)
	}

	s.started = false
	s.log.Info("Server stopped")
	return err
}

// Ready reports whether the server accepts traffic.
func (s *Server) Ready() bool {
	return s.ready.Load()
}
