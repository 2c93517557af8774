package server

import (
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pivot-proxy/pivot/internal/server/handlers"
)

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes() {
	// Standard health endpoints
	s.router.Get("/health", s.health.HealthHandler)
	s.router.Get("/health/live", s.health.LivenessHandler)
	s.router.Get("/health/ready", s.health.ReadinessHandler)

	// Version endpoint
	s.router.Get("/version", handlers.VersionHandler)

	// Prometheus metrics from the default registry
	s.router.Get("/metrics", promhttp.Handler().ServeHTTP)

	// Proxy state inspection
	s.router.Get("/api/v1/upstreams", s.upstreams.ListHandler)
	s.router.Get("/api/v1/ratelimit", s.upstreams.RateLimitHandler)
}
