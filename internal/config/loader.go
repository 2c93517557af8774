// Package config provides typed configuration for the proxy, decoded from
// viper's merged view of defaults, config file, environment variables, and
// command-line flags.
package config

import (
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

var (
	// appConfig holds the current application configuration
	appConfig *Config
	configMu  sync.RWMutex
)

// FromViper decodes the merged viper settings into a typed Config and
// validates it. The decoded config becomes the process-wide configuration.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg, err := Decode(v)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	setConfig(cfg)

	return cfg, nil
}

// Decode unmarshals viper settings into a typed Config without validating.
func Decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for values the proxy cannot start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Bind) == "" {
		return fmt.Errorf("bind address is required")
	}
	if _, _, err := net.SplitHostPort(c.Bind); err != nil {
		return fmt.Errorf("invalid bind address %q: %w", c.Bind, err)
	}

	if len(c.Upstreams) == 0 {
		return fmt.Errorf("at least one upstream is required")
	}
	for _, upstream := range c.Upstreams {
		if _, _, err := net.SplitHostPort(upstream); err != nil {
			return fmt.Errorf("invalid upstream address %q: %w", upstream, err)
		}
	}

	if c.HealthCheck.Interval <= 0 {
		return fmt.Errorf("health check interval must be positive")
	}
	if !strings.HasPrefix(c.HealthCheck.Path, "/") {
		return fmt.Errorf("health check path must start with /")
	}

	if c.RateLimit.MaxRequestsPerMinute < 0 {
		return fmt.Errorf("max requests per minute must not be negative")
	}

	if c.Admin.Enabled {
		if c.Admin.Port <= 0 || c.Admin.Port > 65535 {
			return fmt.Errorf("invalid admin port %d", c.Admin.Port)
		}
	}

	return nil
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}
