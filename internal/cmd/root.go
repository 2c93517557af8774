// Package cmd contains the pivot command-line interface.
package cmd

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pivot-proxy/pivot/internal/observability"
)

var (
	cfgFile string
	verbose bool

	// Version info set by main package
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pivot",
	Short: "A load-balancing reverse proxy",
	Long: `pivot is a load-balancing HTTP reverse proxy with active health
checks and per-client rate limiting.

Use the subcommands to perform specific operations.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/pivot/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")

	// Bind flags to viper
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	// Initialize CLI logger early so we can use it in config loading
	observability.InitCLILogger(filepath.Base(os.Args[0]), verbose)

	if cfgFile != "" {
		// Use config file from flag
		viper.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "pivot"))
		}
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	// Read in environment variables with the PIVOT_ prefix.
	// Nested keys use underscores: PIVOT_HEALTH_CHECK_INTERVAL.
	viper.SetEnvPrefix("PIVOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			observability.CLILogger.Debug("Using config file", zap.String("path", viper.ConfigFileUsed()))
		}
	} else {
		// It's OK if config file doesn't exist, we have defaults
		if verbose {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				observability.CLILogger.Debug("No config file found, using defaults and environment variables")
			} else {
				observability.CLILogger.Warn("Error reading config file", zap.Error(err))
			}
		}
	}

	// Set defaults
	setDefaults()
}

// setDefaults sets default configuration values
func setDefaults() {
	// Listener defaults
	viper.SetDefault("bind", "0.0.0.0:1100")

	// Health check defaults
	viper.SetDefault("health_check.interval", "10s")
	viper.SetDefault("health_check.path", "/")
	viper.SetDefault("health_check.timeout", "5s")

	// Rate limit defaults (0 disables limiting)
	viper.SetDefault("rate_limit.max_requests_per_minute", 0)

	// Data-plane defaults
	viper.SetDefault("proxy.max_body_bytes", 10*1024*1024)
	viper.SetDefault("proxy.dial_timeout", "10s")
	viper.SetDefault("proxy.shutdown_timeout", "10s")

	// Admin server defaults
	viper.SetDefault("admin.enabled", true)
	viper.SetDefault("admin.host", "127.0.0.1")
	viper.SetDefault("admin.port", 9120)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
}
