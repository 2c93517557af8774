package proxy

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/pivot-proxy/pivot/internal/metrics"
)

// HealthChecker probes every registered upstream on a fixed interval and
// writes the outcome into the registry. A dead upstream is revived only by
// a future successful probe, so outages longer than one interval disappear
// from routing without manual intervention.
type HealthChecker struct {
	registry *Registry
	interval time.Duration
	path     string
	timeout  time.Duration
	logger   Logger
}

// NewHealthChecker creates a checker probing path on each upstream every
// interval. timeout bounds each probe's dial and read; zero means no bound.
func NewHealthChecker(registry *Registry, interval time.Duration, path string, timeout time.Duration, logger Logger) *HealthChecker {
	if path == "" {
		path = "/"
	}
	return &HealthChecker{
		registry: registry,
		interval: interval,
		path:     path,
		timeout:  timeout,
		logger:   logger,
	}
}

// Run executes probe cycles until the context is canceled. The interval
// sleep is the only scheduling point; each cycle runs to completion.
func (h *HealthChecker) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.checkAll()
		}
	}
}

// checkAll probes every upstream in registration order and updates its
// liveness flag from the result alone, independent of prior state.
func (h *HealthChecker) checkAll() {
	for _, addr := range h.registry.Addresses() {
		if err := h.probe(addr); err != nil {
			h.markDead(addr, err)
			continue
		}
		h.registry.SetAlive(addr, true)
		metrics.UpstreamAlive.WithLabelValues(addr).Set(1)
		metrics.HealthChecksTotal.WithLabelValues(addr, "alive").Inc()
		h.logger.Debug("Upstream is alive", zap.String("upstream", addr))
	}
}

// probe opens a fresh connection, sends a synthetic GET to the probe path,
// and requires a well-formed 200 response. The connection is closed after
// the probe so a hung upstream cannot poison a later cycle.
func (h *HealthChecker) probe(addr string) error {
	conn, err := net.DialTimeout("tcp", addr, h.timeout)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	if h.timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(h.timeout)); err != nil {
			return fmt.Errorf("set deadline: %w", err)
		}
	}

	req, err := http.NewRequest(http.MethodGet, h.path, nil)
	if err != nil {
		return fmt.Errorf("build probe request: %w", err)
	}
	req.Host = addr
	if err := req.Write(conn); err != nil {
		return fmt.Errorf("write probe: %w", err)
	}

	resp, err := http.ReadResponse(bufio.NewReader(conn), req)
	if err != nil {
		return fmt.Errorf("read probe response: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("probe returned status %d", resp.StatusCode)
	}
	return nil
}

func (h *HealthChecker) markDead(addr string, err error) {
	h.registry.SetAlive(addr, false)
	metrics.UpstreamAlive.WithLabelValues(addr).Set(0)
	metrics.HealthChecksTotal.WithLabelValues(addr, "dead").Inc()
	h.logger.Warn("Upstream failed health check",
		zap.String("upstream", addr),
		zap.Error(err))
}
