package cmd

import (
	"context"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pivot-proxy/pivot/internal/config"
	errwrap "github.com/pivot-proxy/pivot/internal/errors"
	"github.com/pivot-proxy/pivot/internal/observability"
	"github.com/pivot-proxy/pivot/internal/proxy"
	"github.com/pivot-proxy/pivot/internal/server"
)

var (
	serveBind                 string
	serveUpstreams            []string
	serveHealthCheckInterval  time.Duration
	serveHealthCheckPath      string
	serveMaxRequestsPerMinute int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the proxy",
	Long: `Start the load-balancing proxy with graceful shutdown support.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Config reload (placeholder - restart recommended)

On shutdown the listener stops accepting connections and logs are flushed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Initialize structured logger
		logLevel := viper.GetString("logging.level")
		if verbose {
			logLevel = "debug"
		}
		observability.InitServerLogger("pivot", logLevel)

		cfg, err := config.FromViper(viper.GetViper())
		if err != nil {
			ExitWithCode(observability.ServerLogger, foundry.ExitConfigInvalid,
				"Invalid configuration", errwrap.NewConfigInvalidError(err.Error()))
		}

		observability.ServerLogger.Info("Initializing proxy",
			zap.String("version", versionInfo.Version),
			zap.String("bind", cfg.Bind),
			zap.Strings("upstreams", cfg.Upstreams),
			zap.Duration("health_check_interval", cfg.HealthCheck.Interval),
			zap.Int("max_requests_per_minute", cfg.RateLimit.MaxRequestsPerMinute))

		pr, err := proxy.New(proxy.Options{
			Upstreams:            cfg.Upstreams,
			HealthCheckInterval:  cfg.HealthCheck.Interval,
			HealthCheckPath:      cfg.HealthCheck.Path,
			HealthCheckTimeout:   cfg.HealthCheck.Timeout,
			MaxRequestsPerMinute: cfg.RateLimit.MaxRequestsPerMinute,
			MaxBodyBytes:         cfg.Proxy.MaxBodyBytes,
			DialTimeout:          cfg.Proxy.DialTimeout,
			Logger:               observability.ServerLogger,
		})
		if err != nil {
			return errwrap.WrapInternal(cmd.Context(), err, "proxy initialization failed")
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		// Admin server exposes health probes, metrics, and pool inspection
		var adminSrv *server.Server
		if cfg.Admin.Enabled {
			adminSrv = server.New(cfg.Admin.Host, cfg.Admin.Port, versionInfo.Version, pr.Registry(), pr.Limiter())
		}

		shutdownTimeout := cfg.Proxy.ShutdownTimeout
		if shutdownTimeout == 0 {
			shutdownTimeout = 10 * time.Second
		}

		// Register graceful shutdown handlers (LIFO order - last registered, first executed)
		// Handler 1: Flush logger (executed last)
		signals.OnShutdown(func(ctx context.Context) error {
			observability.ServerLogger.Info("Flushing logger...")
			if err := observability.ServerLogger.Sync(); err != nil {
				// Sync errors are often benign (stdout/stderr already closed)
				observability.ServerLogger.Warn("Logger sync returned error (may be benign)",
					zap.Error(err))
			}
			return nil
		})

		// Handler 2: Stop the proxy listener and admin server (executed first)
		signals.OnShutdown(func(shutdownCtx context.Context) error {
			observability.ServerLogger.Info("Shutting down proxy...")
			cancel()

			if adminSrv != nil {
				adminCtx, adminCancel := context.WithTimeout(shutdownCtx, shutdownTimeout)
				defer adminCancel()
				if err := adminSrv.Shutdown(adminCtx); err != nil {
					return errwrap.WrapInternal(shutdownCtx, err, "admin server shutdown failed")
				}
			}

			observability.ServerLogger.Info("Proxy stopped gracefully")
			return nil
		})

		// Register config reload handler (SIGHUP)
		signals.OnReload(func(ctx context.Context) error {
			observability.ServerLogger.Info("Received SIGHUP: attempting config reload")

			if err := viper.ReadInConfig(); err != nil {
				if _, ok := err.(viper.ConfigFileNotFoundError); ok {
					observability.ServerLogger.Info("No config file found - using defaults and environment variables")
					return nil
				}
				observability.ServerLogger.Error("Failed to reload config file",
					zap.String("file", viper.ConfigFileUsed()),
					zap.Error(err))
				return errwrap.NewConfigInvalidError("config reload failed")
			}

			observability.ServerLogger.Info("Configuration reloaded successfully",
				zap.String("file", viper.ConfigFileUsed()))

			// Upstream pool and bind address changes require a restart.
			return nil
		})

		// Enable double-tap force quit (Ctrl+C within 2 seconds)
		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			observability.ServerLogger.Warn("Failed to enable double-tap force quit",
				zap.Error(err))
		}

		errChan := make(chan error, 2)

		// Start admin server in background goroutine
		if adminSrv != nil {
			go func() {
				if err := adminSrv.Start(); err != nil && err != http.ErrServerClosed {
					errChan <- err
				}
			}()
		}

		// Start the proxy listener. Returns nil once the context is cancelled.
		go func() {
			errChan <- pr.ListenAndServe(ctx, cfg.Bind)
		}()

		// Start signal listener in background
		go func() {
			if err := signals.Listen(cmd.Context()); err != nil {
				observability.ServerLogger.Error("Signal handler error", zap.Error(err))
				errChan <- err
			}
		}()

		if err := <-errChan; err != nil {
			return errwrap.WrapInternal(cmd.Context(), err, "proxy error")
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveBind, "bind", "0.0.0.0:1100", "listen address for the proxy")
	serveCmd.Flags().StringArrayVar(&serveUpstreams, "upstream", nil, "upstream host:port to balance across (repeatable)")
	serveCmd.Flags().DurationVar(&serveHealthCheckInterval, "health-check-interval", 10*time.Second, "delay between active health check rounds")
	serveCmd.Flags().StringVar(&serveHealthCheckPath, "health-check-path", "/", "path probed on each upstream")
	serveCmd.Flags().IntVar(&serveMaxRequestsPerMinute, "max-requests-per-minute", 0, "per-client request limit per minute (0 disables)")

	_ = viper.BindPFlag("bind", serveCmd.Flags().Lookup("bind"))
	_ = viper.BindPFlag("upstreams", serveCmd.Flags().Lookup("upstream"))
	_ = viper.BindPFlag("health_check.interval", serveCmd.Flags().Lookup("health-check-interval"))
	_ = viper.BindPFlag("health_check.path", serveCmd.Flags().Lookup("health-check-path"))
	_ = viper.BindPFlag("rate_limit.max_requests_per_minute", serveCmd.Flags().Lookup("max-requests-per-minute"))
}
