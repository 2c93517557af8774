package config

import (
	"time"
)

// Config represents the complete application configuration.
type Config struct {
	Bind        string            `mapstructure:"bind" yaml:"bind"`
	Upstreams   []string          `mapstructure:"upstreams" yaml:"upstreams"`
	HealthCheck HealthCheckConfig `mapstructure:"health_check" yaml:"health_check"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit" yaml:"rate_limit"`
	Proxy       ProxyConfig       `mapstructure:"proxy" yaml:"proxy"`
	Admin       AdminConfig       `mapstructure:"admin" yaml:"admin"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
}

// HealthCheckConfig controls the active upstream health checker.
type HealthCheckConfig struct {
	// Interval is the delay between probe rounds
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`

	// Path is the request path probed on each upstream
	Path string `mapstructure:"path" yaml:"path"`

	// Timeout bounds a single probe, connect and response included
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// RateLimitConfig controls the per-client fixed-window rate limiter.
type RateLimitConfig struct {
	// MaxRequestsPerMinute caps requests per client IP per window.
	// 0 disables rate limiting.
	MaxRequestsPerMinute int `mapstructure:"max_requests_per_minute" yaml:"max_requests_per_minute"`
}

// ProxyConfig contains data-plane tunables.
type ProxyConfig struct {
	// MaxBodyBytes caps the size of a buffered request body
	MaxBodyBytes int64 `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`

	// DialTimeout bounds each upstream connection attempt
	DialTimeout time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`

	// ShutdownTimeout bounds graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// AdminConfig contains the admin HTTP server configuration.
type AdminConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Host    string `mapstructure:"host" yaml:"host"`
	Port    int    `mapstructure:"port" yaml:"port"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level" yaml:"level"`
}
