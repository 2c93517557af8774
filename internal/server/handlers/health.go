package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/errors"

	apperrors "github.com/pivot-proxy/pivot/internal/errors"
)

// HealthResponse represents the aggregate health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// ProbeResponse represents individual probe response
type ProbeResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadinessSource reports how many upstreams are currently serving.
type ReadinessSource interface {
	LiveCount() int
}

// Health serves the health and probe endpoints. Readiness is tied to the
// upstream pool: the proxy is ready only while at least one upstream is
// alive.
type Health struct {
	version   string
	upstreams ReadinessSource
}

// NewHealth creates the health endpoint handler set.
func NewHealth(version string, upstreams ReadinessSource) *Health {
	return &Health{
		version:   version,
		upstreams: upstreams,
	}
}

func (h *Health) runChecks() map[string]string {
	checks := make(map[string]string)

	if h.upstreams == nil {
		checks["upstreams"] = "unknown"
		return checks
	}

	if h.upstreams.LiveCount() > 0 {
		checks["upstreams"] = "healthy"
	} else {
		checks["upstreams"] = "unhealthy"
	}

	return checks
}

func determineOverallStatus(checks map[string]string) string {
	for _, status := range checks {
		if status != "healthy" {
			return "unhealthy"
		}
	}
	return "healthy"
}

// HealthHandler handles aggregate health check requests
func (h *Health) HealthHandler(w http.ResponseWriter, r *http.Request) {
	checks := h.runChecks()
	status := determineOverallStatus(checks)

	if status == "unhealthy" {
		envelope := apperrors.NewServiceUnavailableError("aggregate health check failed")
		envelope = enrichHealthEnvelope(envelope, "", status, checks)
		respondWithError(w, r, envelope)
		return
	}

	response := HealthResponse{
		Status:    status,
		Version:   h.version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

// LivenessHandler handles liveness probe requests.
// Liveness indicates the process is running and able to answer.
func (h *Health) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	response := ProbeResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

// ReadinessHandler handles readiness probe requests.
// The proxy is ready to accept traffic only while at least one upstream is alive.
func (h *Health) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	checks := h.runChecks()
	status := determineOverallStatus(checks)

	if status == "unhealthy" {
		envelope := apperrors.NewServiceUnavailableError("readiness probe failed")
		envelope = enrichHealthEnvelope(envelope, "ready", status, checks)
		respondWithError(w, r, envelope)
		return
	}

	response := ProbeResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

func enrichHealthEnvelope(envelope *errors.ErrorEnvelope, probe, status string, checks map[string]string) *errors.ErrorEnvelope {
	if envelope == nil {
		return nil
	}

	details := map[string]interface{}{
		"status": status,
	}
	if len(checks) > 0 {
		details["checks"] = checks
	}
	if probe != "" {
		details["probe"] = probe
	}
	envelope = envelope.WithDetails(details)

	contextData := map[string]interface{}{
		"status": status,
	}
	if probe != "" {
		contextData["probe"] = probe
	}

	var unhealthy []string
	for name, result := range checks {
		if result != "healthy" {
			unhealthy = append(unhealthy, name)
		}
	}
	if len(unhealthy) > 0 {
		contextData["unhealthy_checks"] = unhealthy
	}

	envelope, _ = envelope.WithContext(contextData)
	return envelope
}
