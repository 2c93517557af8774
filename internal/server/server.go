// Package server hosts the admin HTTP API: health probes, version info,
// Prometheus metrics, and read-only inspection of the proxy's upstream pool
// and rate limiter.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	apperrors "github.com/pivot-proxy/pivot/internal/errors"
	"github.com/pivot-proxy/pivot/internal/observability"
	"github.com/pivot-proxy/pivot/internal/server/handlers"
	servermw "github.com/pivot-proxy/pivot/internal/server/middleware"
)

// Server represents the admin HTTP server
type Server struct {
	router    *chi.Mux
	server    *http.Server
	host      string
	port      int
	health    *handlers.Health
	upstreams *handlers.Upstreams
}

// New creates a new admin server instance. The upstream and rate sources are
// the running proxy's registry and limiter.
func New(host string, port int, version string, upstreams handlers.UpstreamSource, rates handlers.RateSource) *Server {
	r := chi.NewRouter()

	// Standard chi middleware
	r.Use(middleware.RealIP)

	// Custom middleware in order: RequestID → Metrics → Recovery
	r.Use(servermw.RequestID)
	r.Use(servermw.RequestMetrics)
	r.Use(servermw.Recovery)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		err := apperrors.NewNotFoundError("The requested resource was not found")
		HandleError(w, req, err)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		err := apperrors.NewMethodNotAllowedError("The requested method is not allowed for this resource")
		HandleError(w, req, err)
	})

	s := &Server{
		router:    r,
		host:      host,
		port:      port,
		health:    handlers.NewHealth(version, upstreams),
		upstreams: handlers.NewUpstreams(upstreams, rates),
	}

	// Ensure handlers use the centralized error responder
	handlers.SetHTTPErrorResponder(HandleError)

	s.registerRoutes()

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	observability.ServerLogger.Info("Starting admin server",
		zap.String("host", s.host),
		zap.Int("port", s.port),
		zap.String("addr", addr))

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	observability.ServerLogger.Info("Shutting down admin server")
	return s.server.Shutdown(ctx)
}

// Handler exposes the underlying router for testing and instrumentation
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the server port for testing
func (s *Server) Port() int {
	return s.port
}
