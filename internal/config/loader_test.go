package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("bind", "0.0.0.0:1100")
	v.SetDefault("upstreams", []string{"127.0.0.1:8080"})
	v.SetDefault("health_check.interval", "10s")
	v.SetDefault("health_check.path", "/")
	v.SetDefault("health_check.timeout", "5s")
	v.SetDefault("rate_limit.max_requests_per_minute", 0)
	v.SetDefault("proxy.dial_timeout", "10s")
	v.SetDefault("proxy.shutdown_timeout", "15s")
	v.SetDefault("admin.enabled", true)
	v.SetDefault("admin.host", "127.0.0.1")
	v.SetDefault("admin.port", 9120)
	v.SetDefault("logging.level", "info")
	return v
}

func TestFromViper(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		cfg, err := FromViper(newTestViper())
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "0.0.0.0:1100", cfg.Bind)
		assert.Equal(t, []string{"127.0.0.1:8080"}, cfg.Upstreams)
		assert.Equal(t, 10*time.Second, cfg.HealthCheck.Interval)
		assert.Equal(t, "/", cfg.HealthCheck.Path)
		assert.Equal(t, 0, cfg.RateLimit.MaxRequestsPerMinute)
		assert.True(t, cfg.Admin.Enabled)
	})

	t.Run("DurationStrings", func(t *testing.T) {
		v := newTestViper()
		v.Set("health_check.interval", "250ms")
		v.Set("proxy.dial_timeout", "2s")

		cfg, err := FromViper(v)
		require.NoError(t, err)

		assert.Equal(t, 250*time.Millisecond, cfg.HealthCheck.Interval)
		assert.Equal(t, 2*time.Second, cfg.Proxy.DialTimeout)
	})

	t.Run("CommaSeparatedUpstreams", func(t *testing.T) {
		v := newTestViper()
		v.Set("upstreams", "10.0.0.1:80,10.0.0.2:80")

		cfg, err := FromViper(v)
		require.NoError(t, err)

		assert.Equal(t, []string{"10.0.0.1:80", "10.0.0.2:80"}, cfg.Upstreams)
	})

	t.Run("StoresGlobalConfig", func(t *testing.T) {
		cfg, err := FromViper(newTestViper())
		require.NoError(t, err)
		assert.Same(t, cfg, GetConfig())
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Bind:      "0.0.0.0:1100",
			Upstreams: []string{"127.0.0.1:8080"},
			HealthCheck: HealthCheckConfig{
				Interval: 10 * time.Second,
				Path:     "/",
			},
			Admin: AdminConfig{Enabled: true, Host: "127.0.0.1", Port: 9120},
		}
	}

	t.Run("Valid", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("MissingBind", func(t *testing.T) {
		cfg := valid()
		cfg.Bind = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("BindWithoutPort", func(t *testing.T) {
		cfg := valid()
		cfg.Bind = "0.0.0.0"
		assert.Error(t, cfg.Validate())
	})

	t.Run("NoUpstreams", func(t *testing.T) {
		cfg := valid()
		cfg.Upstreams = nil
		assert.Error(t, cfg.Validate())
	})

	t.Run("BadUpstreamAddress", func(t *testing.T) {
		cfg := valid()
		cfg.Upstreams = []string{"not-an-address"}
		assert.Error(t, cfg.Validate())
	})

	t.Run("NonPositiveInterval", func(t *testing.T) {
		cfg := valid()
		cfg.HealthCheck.Interval = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("RelativeHealthPath", func(t *testing.T) {
		cfg := valid()
		cfg.HealthCheck.Path = "status"
		assert.Error(t, cfg.Validate())
	})

	t.Run("NegativeRateLimit", func(t *testing.T) {
		cfg := valid()
		cfg.RateLimit.MaxRequestsPerMinute = -1
		assert.Error(t, cfg.Validate())
	})

	t.Run("BadAdminPort", func(t *testing.T) {
		cfg := valid()
		cfg.Admin.Port = 0
		assert.Error(t, cfg.Validate())
	})
}
