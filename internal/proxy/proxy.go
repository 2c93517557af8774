// Package proxy implements the load-balancing reverse proxy core: the
// upstream registry, the active health checker, the per-client rate
// limiter, and the per-connection forwarding loop.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/pivot-proxy/pivot/internal/metrics"
)

// Options configures a Proxy.
type Options struct {
	// Upstreams is the fixed set of backend addresses (host:port).
	// At least one is required.
	Upstreams []string

	// HealthCheckInterval is the pause between active health-check cycles.
	HealthCheckInterval time.Duration

	// HealthCheckPath is the path probed on each upstream.
	HealthCheckPath string

	// HealthCheckTimeout bounds a single probe's dial and read. Zero
	// disables the bound.
	HealthCheckTimeout time.Duration

	// MaxRequestsPerMinute caps requests per client IP per window.
	// Zero disables rate limiting.
	MaxRequestsPerMinute int

	// MaxBodyBytes caps buffered request bodies. Zero selects
	// DefaultMaxBodyBytes.
	MaxBodyBytes int64

	// DialTimeout bounds upstream connection attempts. Zero disables the
	// bound.
	DialTimeout time.Duration

	// Logger receives proxy log output. Required.
	Logger Logger
}

// Proxy accepts client connections and forwards their requests across the
// live upstreams.
type Proxy struct {
	registry     *Registry
	limiter      *RateLimiter
	checker      *HealthChecker
	logger       Logger
	maxBodyBytes int64
	dialTimeout  time.Duration
}

// New validates the options and assembles a proxy. The background cycles do
// not start until Serve is called.
func New(opts Options) (*Proxy, error) {
	if len(opts.Upstreams) == 0 {
		return nil, errors.New("at least one upstream must be configured")
	}
	if opts.Logger == nil {
		return nil, errors.New("a logger is required")
	}
	if opts.HealthCheckInterval <= 0 {
		return nil, fmt.Errorf("health check interval must be positive, got %s", opts.HealthCheckInterval)
	}
	if opts.MaxRequestsPerMinute < 0 {
		return nil, fmt.Errorf("max requests per minute must not be negative, got %d", opts.MaxRequestsPerMinute)
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	registry := NewRegistry(opts.Upstreams)
	for _, addr := range registry.Addresses() {
		metrics.UpstreamAlive.WithLabelValues(addr).Set(1)
	}

	return &Proxy{
		registry: registry,
		limiter:  NewRateLimiter(opts.MaxRequestsPerMinute),
		checker: NewHealthChecker(registry, opts.HealthCheckInterval,
			opts.HealthCheckPath, opts.HealthCheckTimeout, opts.Logger),
		logger:       opts.Logger,
		maxBodyBytes: maxBody,
		dialTimeout:  opts.DialTimeout,
	}, nil
}

// Registry exposes the upstream registry for the admin surface.
func (p *Proxy) Registry() *Registry {
	return p.registry
}

// Limiter exposes the rate limiter for the admin surface.
func (p *Proxy) Limiter() *RateLimiter {
	return p.limiter
}

// ListenAndServe binds the given address and serves until the context is
// canceled. Bind failure is returned to the caller; it is the one startup
// error the process treats as fatal.
func (p *Proxy) ListenAndServe(ctx context.Context, bind string) error {
	ln, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("bind %s: %w", bind, err)
	}
	return p.Serve(ctx, ln)
}

// Serve runs the accept loop on ln, spawning one handler goroutine per
// connection, plus the health-check and rate-window cycles. It returns nil
// after the context is canceled and the listener closed. Accept errors
// never terminate the process; transient ones are logged and the loop
// continues.
func (p *Proxy) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go p.checker.Run(ctx)
	go p.limiter.Run(ctx, p.logger)
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	p.logger.Info("Listening for requests",
		zap.String("addr", ln.Addr().String()),
		zap.Int("upstreams", len(p.registry.Addresses())))

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			p.logger.Warn("Failed to accept connection", zap.Error(err))
			continue
		}
		metrics.ConnectionsTotal.Inc()
		metrics.OpenConnections.Inc()
		go func() {
			defer metrics.OpenConnections.Dec()
			p.handleConnection(conn)
		}()
	}
}
