package proxy

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pivot-proxy/pivot/internal/metrics"
)

// rateWindow is the length of the fixed rate-limiting window.
const rateWindow = 60 * time.Second

// RateLimiter applies a fixed-window request cap per client IP. Counts
// accumulate during a window and a background cycle zeroes every entry when
// the window rolls over, so a client can legally burst up to twice the
// limit across a window boundary. Entries are never removed.
type RateLimiter struct {
	limit int

	mu     sync.Mutex
	counts map[string]int
}

// NewRateLimiter creates a limiter admitting up to limit requests per client
// IP per window. A limit of 0 disables rate limiting entirely.
func NewRateLimiter(limit int) *RateLimiter {
	return &RateLimiter{
		limit:  limit,
		counts: make(map[string]int),
	}
}

// Enabled reports whether a request cap is configured.
func (l *RateLimiter) Enabled() bool {
	return l.limit > 0
}

// Limit returns the configured per-window request cap.
func (l *RateLimiter) Limit() int {
	return l.limit
}

// Register creates a zeroed entry for the client IP if it has not been seen
// before. No-op when limiting is disabled.
func (l *RateLimiter) Register(clientIP string) {
	if !l.Enabled() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.counts[clientIP]; !ok {
		l.counts[clientIP] = 0
	}
}

// Admit increments the client's count for the current window and reports
// whether the new count is still within the limit. When limiting is
// disabled it admits without touching any state.
func (l *RateLimiter) Admit(clientIP string) bool {
	if !l.Enabled() {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counts[clientIP]++
	return l.counts[clientIP] <= l.limit
}

// Reset zeroes every client's count, starting a fresh window.
func (l *RateLimiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip := range l.counts {
		l.counts[ip] = 0
	}
}

// Snapshot returns the current window's count per client IP.
func (l *RateLimiter) Snapshot() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]int, len(l.counts))
	for ip, n := range l.counts {
		out[ip] = n
	}
	return out
}

// Run resets all counts on a fixed interval until the context is canceled.
// It returns immediately when limiting is disabled.
func (l *RateLimiter) Run(ctx context.Context, logger Logger) {
	if !l.Enabled() {
		return
	}
	ticker := time.NewTicker(rateWindow)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Reset()
			metrics.RateWindowResets.Inc()
			if logger != nil {
				logger.Debug("Rate limit window reset", zap.Int("limit", l.limit))
			}
		}
	}
}
