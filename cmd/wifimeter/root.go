package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/wifimeter/internal/config"
	"github.com/goodtune/wifimeter/internal/notify"
	"github.com/goodtune/wifimeter/internal/storage"
	"github.com/goodtune/wifimeter/internal/storage/bolt"
	"github.com/goodtune/wifimeter/internal/storage/redis"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	version    = "dev"
	configPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "wifimeter",
	Short: "WifiMeter - Usage-minute budget tracker for metered WiFi connections",
	Long: `WifiMeter tracks elapsed usage minutes against named WiFi connection
budgets, resets the counters on a configurable day each month, corrects
usage from a scraped captive-portal page and raises alerts when a usage
threshold is crossed.`,
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default to daemon command when no subcommand is provided
		return runDaemon(cmd, args)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "/etc/wifimeter/config.yaml", "Path to configuration file")
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setupLogger configures the logger based on configuration
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	if cfg.Format == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Default to JSON
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// openStorage opens the configured storage backend
func openStorage(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case "redis":
		return redis.Open(cfg.Redis)
	default:
		return bolt.Open(cfg.Path)
	}
}

// newNotifier builds the configured alert delivery channel
func newNotifier(cfg config.NotificationsConfig, logger zerolog.Logger) notify.Notifier {
	if cfg.Notifier == "command" && cfg.Command != "" {
		return notify.NewCommandNotifier(cfg.Command, logger)
	}
	return notify.NewLogNotifier(logger)
}

// parseDuration parses a duration string with a fallback
func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func warnf(format string, args ...any) {
	yellow := color.New(color.FgYellow, color.Bold)
	_, _ = yellow.Fprintf(os.Stderr, format, args...)
}
