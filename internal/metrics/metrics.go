// Package metrics defines the Prometheus instruments for the proxy data
// plane and the admin HTTP surface. Instruments are registered with the
// default registry via promauto and exposed by the admin server's /metrics
// endpoint.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts proxied requests by upstream and response status.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pivot_requests_total",
		Help: "Total number of proxied requests by upstream and status code",
	}, []string{"upstream", "status"})

	// RequestDuration observes time from reading a client request to
	// relaying the upstream response.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pivot_request_duration_seconds",
		Help:    "Proxied request duration in seconds by upstream",
		Buckets: prometheus.DefBuckets,
	}, []string{"upstream"})

	// ErrorResponsesTotal counts synthetic error responses sent to clients.
	ErrorResponsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pivot_error_responses_total",
		Help: "Total number of proxy-generated error responses by status code",
	}, []string{"status"})

	// RateLimitedTotal counts requests rejected by the rate limiter.
	RateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pivot_rate_limited_total",
		Help: "Total number of requests rejected by the per-client rate limit",
	})

	// RateWindowResets counts completed rate-limiting windows.
	RateWindowResets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pivot_rate_window_resets_total",
		Help: "Total number of rate limit window resets",
	})

	// UpstreamAlive reflects each upstream's liveness flag (1 = alive).
	UpstreamAlive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pivot_upstream_alive",
		Help: "Whether an upstream is currently considered alive (1 = alive, 0 = dead)",
	}, []string{"upstream"})

	// HealthChecksTotal counts active health-check probes by outcome.
	HealthChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pivot_health_checks_total",
		Help: "Total number of active health check probes by upstream and result",
	}, []string{"upstream", "result"})

	// OpenConnections tracks currently open client connections.
	OpenConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pivot_open_connections",
		Help: "Number of currently open client connections",
	})

	// ConnectionsTotal counts accepted client connections.
	ConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pivot_connections_total",
		Help: "Total number of accepted client connections",
	})

	// AdminRequestsTotal counts requests served by the admin HTTP server.
	AdminRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pivot_admin_requests_total",
		Help: "Total number of admin API requests by method, endpoint, and status",
	}, []string{"method", "endpoint", "status"})

	// AdminPanicsTotal counts panics recovered in the admin HTTP server.
	AdminPanicsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pivot_admin_panics_total",
		Help: "Total number of panics recovered while serving admin requests",
	})

	// AdminErrorsTotal counts admin API error responses by error code and
	// HTTP status.
	AdminErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pivot_admin_errors_total",
		Help: "Total number of admin API error responses by error code and status",
	}, []string{"code", "status"})
)

// RecordAdminError records an admin API error response.
func RecordAdminError(code string, status int) {
	AdminErrorsTotal.WithLabelValues(code, strconv.Itoa(status)).Inc()
}
