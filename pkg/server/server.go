// Package server exposes the tool registry over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/harun/toolhub/pkg/toolexecutor"
)

// Registry is the part of toolexecutor.Registry the server needs
type Registry interface {
	ExecuteTool(ctx context.Context, name string, input map[string]interface{}) (map[string]interface{}, error)
	ListForDiscovery(ctx context.Context) (toolexecutor.Discovery, error)
	Audit(ctx context.Context, rec *toolexecutor.RunRecord)
}

// Observer receives per-request counters. internal/metrics implements it.
type Observer interface {
	ObserveRequest(route string, code int)
	ObserveRateLimited()
}

// Options configures the server
type Options struct {
	Host               string
	Port               int
	RateLimitPerMinute int    // per client IP, 0 disables
	SharedSecret       string // empty disables authentication
	ReadTimeout        time.Duration
	ShutdownTimeout    time.Duration
	MaxBodyBytes       int64

	// Optional mounts
	Metrics http.Handler // GET /metrics
	SSE     http.Handler // /mcp/sse
	Gateway http.Handler // /ws and /rpc
}

// Server is the HTTP front end for the registry
type Server struct {
	options     Options
	registry    Registry
	observer    Observer
	rateLimiter *RateLimiter
	logger      zerolog.Logger
	router      chi.Router
	startTime   time.Time

	mu     sync.Mutex
	server *http.Server
}

// New creates a server. observer may be nil.
func New(options Options, registry Registry, observer Observer, logger zerolog.Logger) (*Server, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if options.Host == "" {
		options.Host = "127.0.0.1"
	}
	if options.Port == 0 {
		options.Port = 8080
	}
	if options.ReadTimeout == 0 {
		options.ReadTimeout = 30 * time.Second
	}
	if options.ShutdownTimeout == 0 {
		options.ShutdownTimeout = 30 * time.Second
	}
	if options.MaxBodyBytes == 0 {
		options.MaxBodyBytes = 1 << 20
	}

	s := &Server{
		options:   options,
		registry:  registry,
		observer:  observer,
		logger:    logger,
		startTime: time.Now(),
	}
	if options.RateLimitPerMinute > 0 {
		s.rateLimiter = NewRateLimiter(options.RateLimitPerMinute)
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.requestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)

	r.Get("/health", s.handleHealth)
	if s.options.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.options.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Use(s.rateLimit)

		r.Route("/mcp", func(r chi.Router) {
			r.Post("/run_tool", s.handleRunTool)
			r.Get("/tools", s.handleListTools)
			if s.options.SSE != nil {
				r.Handle("/sse", s.options.SSE)
				r.Handle("/sse/*", s.options.SSE)
			}
		})
	})

	// The gateway authenticates its own clients: websocket clients cannot
	// set headers, so they answer a challenge instead.
	if s.options.Gateway != nil {
		r.Group(func(r chi.Router) {
			r.Use(s.rateLimit)
			r.Handle("/ws", s.options.Gateway)
			r.Handle("/rpc", s.options.Gateway)
		})
	}

	return r
}

// Handler returns the routed handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the listen address
func (s *Server) Addr() string {
	return net.JoinHostPort(s.options.Host, strconv.Itoa(s.options.Port))
}

// Start listens and serves until Shutdown is called
func (s *Server) Start() error {
	s.mu.Lock()
	s.server = &http.Server{
		Addr:              s.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: s.options.ReadTimeout,
	}
	srv := s.server
	s.mu.Unlock()

	s.logger.Info().Str("addr", srv.Addr).Msg("Starting HTTP server")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests, bounded by the shutdown timeout
func (s *Server) Shutdown(ctx context.Context) error {
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	s.logger.Info().Msg("Shutting down HTTP server")

	ctx, cancel := context.WithTimeout(ctx, s.options.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}
