package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/pivot-proxy/pivot/internal/proxy"
)

// UpstreamSource exposes the proxy's upstream pool state.
type UpstreamSource interface {
	Snapshot() []proxy.UpstreamStatus
	LiveCount() int
}

// RateSource exposes the rate limiter's current window state.
type RateSource interface {
	Snapshot() map[string]int
	Limit() int
	Enabled() bool
}

// UpstreamsResponse lists each upstream with its liveness flag.
type UpstreamsResponse struct {
	Total     int                    `json:"total"`
	Live      int                    `json:"live"`
	Upstreams []proxy.UpstreamStatus `json:"upstreams"`
	Timestamp string                 `json:"timestamp"`
}

// RateLimitResponse reports the limiter configuration and the request counts
// observed in the current window.
type RateLimitResponse struct {
	Enabled              bool           `json:"enabled"`
	MaxRequestsPerMinute int            `json:"max_requests_per_minute"`
	Clients              map[string]int `json:"clients,omitempty"`
	Timestamp            string         `json:"timestamp"`
}

// Upstreams serves the upstream and rate limit inspection endpoints.
type Upstreams struct {
	upstreams UpstreamSource
	rates     RateSource
}

// NewUpstreams creates the inspection endpoint handler set.
func NewUpstreams(upstreams UpstreamSource, rates RateSource) *Upstreams {
	return &Upstreams{
		upstreams: upstreams,
		rates:     rates,
	}
}

// ListHandler handles GET /api/v1/upstreams.
func (u *Upstreams) ListHandler(w http.ResponseWriter, r *http.Request) {
	snapshot := u.upstreams.Snapshot()

	response := UpstreamsResponse{
		Total:     len(snapshot),
		Live:      u.upstreams.LiveCount(),
		Upstreams: snapshot,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

// RateLimitHandler handles GET /api/v1/ratelimit.
func (u *Upstreams) RateLimitHandler(w http.ResponseWriter, r *http.Request) {
	response := RateLimitResponse{
		Enabled:              u.rates.Enabled(),
		MaxRequestsPerMinute: u.rates.Limit(),
		Timestamp:            time.Now().UTC().Format(time.RFC3339),
	}
	if response.Enabled {
		response.Clients = u.rates.Snapshot()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}
