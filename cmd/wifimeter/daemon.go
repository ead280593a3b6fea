package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goodtune/wifimeter/internal/clock"
	"github.com/goodtune/wifimeter/internal/config"
	"github.com/goodtune/wifimeter/internal/metrics"
	"github.com/goodtune/wifimeter/internal/portal"
	"github.com/goodtune/wifimeter/internal/storage"
	"github.com/goodtune/wifimeter/internal/systemd"
	"github.com/goodtune/wifimeter/internal/usage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the WifiMeter daemon",
	Long: `Start the WifiMeter daemon with the usage accrual loop, the monthly
reset scheduler, the optional captive-portal sync loop and the metrics
endpoint.`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting WifiMeter")

	// Check for systemd socket activation
	sdListeners, err := systemd.GetListeners()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to get systemd listeners")
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	// Initialize storage
	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	logger.Info().
		Str("type", cfg.Storage.Type).
		Str("path", cfg.Storage.Path).
		Msg("Storage initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Seed the default connection set on first start
	if err := seedConnections(ctx, store, logger); err != nil {
		return fmt.Errorf("failed to seed default connections: %w", err)
	}

	// Initialize Usage Tracker
	clk := clock.RealClock{}
	notifier := newNotifier(cfg.Notifications, logger)
	tracker := usage.NewTracker(store, notifier, clk, usage.Config{
		TickInterval: parseDuration(cfg.Tracking.TickInterval, usage.DefaultTickInterval),
	}, logger)

	logger.Info().Msg("Usage Tracker initialized")

	// Catch up on downtime before steady state: apply an overdue monthly
	// reset first so stale elapsed minutes never land in the new cycle.
	if reset, err := tracker.CheckReset(ctx); err != nil {
		logger.Error().Err(err).Msg("Startup reset check failed")
	} else if reset {
		logger.Info().Msg("Monthly reset applied at startup")
	}
	if minutes, err := tracker.Reconcile(ctx); err != nil && !errors.Is(err, usage.ErrNoActiveConnection) {
		logger.Error().Err(err).Msg("Startup usage reconciliation failed")
	} else if minutes > 0 {
		logger.Info().Int("minutes", minutes).Msg("Reconciled usage accrued while the daemon was down")
	}

	// Start the accrual loop
	go tracker.Run(ctx)

	// Initialize Reset Scheduler
	resetScheduler := usage.NewResetScheduler(tracker, store.Settings(), clk, logger)
	resetScheduler.Start()
	logger.Info().Msg("Reset Scheduler initialized")

	// Initialize portal sync loop (if configured)
	if cfg.Portal.URL != "" && cfg.Portal.SyncInterval != "" {
		client, err := portal.NewClient(portal.Config{
			URL:     cfg.Portal.URL,
			Timeout: parseDuration(cfg.Portal.Timeout, 30*time.Second),
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize portal client: %w", err)
		}

		interval := parseDuration(cfg.Portal.SyncInterval, time.Hour)
		go portalSyncLoop(ctx, client, tracker, interval, logger)

		logger.Info().
			Str("url", cfg.Portal.URL).
			Dur("interval", interval).
			Msg("Portal sync loop started")
	}

	// Initialize Metrics Server
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsAddr := fmt.Sprintf("%s:%d", cfg.Metrics.BindAddress, cfg.Metrics.Port)
		metricsServer = metrics.NewServer(metricsAddr, logger)

		// Use systemd socket-activated listener if available
		if sdListeners.Activated && sdListeners.Metrics != nil {
			metricsServer.SetListener(sdListeners.Metrics)
		}

		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start Metrics Server: %w", err)
		}

		logger.Info().
			Str("addr", metricsAddr).
			Msg("Metrics Server started")
	}

	logger.Info().Msg("WifiMeter startup complete")

	// Notify systemd that we're ready
	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received, gracefully stopping...")

	// Notify systemd that we're stopping
	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	cancel()
	resetScheduler.Stop()

	if metricsServer != nil {
		if err := metricsServer.Stop(); err != nil {
			logger.Error().Err(err).Msg("Error stopping Metrics Server")
		}
	}

	// Record minutes accrued since the last tick before exiting
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if _, err := tracker.Reconcile(stopCtx); err != nil && !errors.Is(err, usage.ErrNoActiveConnection) {
		logger.Error().Err(err).Msg("Shutdown usage reconciliation failed")
	}

	logger.Info().Msg("WifiMeter stopped")
	return nil
}

// seedConnections writes the default connection set when the store is
// empty, so a fresh install has budgets to track against.
func seedConnections(ctx context.Context, store storage.Store, logger zerolog.Logger) error {
	existing, err := store.Connections().List(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	for _, conn := range storage.DefaultConnections() {
		if err := store.Connections().Upsert(ctx, conn); err != nil {
			return err
		}
	}

	logger.Info().Int("count", len(storage.DefaultConnections())).Msg("Seeded default connections")
	return nil
}

// portalSyncLoop periodically scrapes the captive portal and corrects the
// active connection's usage from the authoritative figure.
func portalSyncLoop(ctx context.Context, client *portal.Client, tracker *usage.Tracker, interval time.Duration, logger zerolog.Logger) {
	syncLogger := logger.With().Str("component", "portal-sync").Logger()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := syncOnce(ctx, client, tracker); err != nil {
				if errors.Is(err, usage.ErrNoActiveConnection) {
					syncLogger.Debug().Msg("Skipping portal sync, no active connection")
					continue
				}
				syncLogger.Warn().Err(err).Msg("Portal sync failed")
			}
		}
	}
}

// syncOnce fetches the portal figure for the active connection and applies
// it. Out-of-range figures are reported but never written.
func syncOnce(ctx context.Context, client *portal.Client, tracker *usage.Tracker) error {
	active, err := tracker.ActiveConnection(ctx)
	if err != nil {
		return err
	}
	if active == nil {
		return usage.ErrNoActiveConnection
	}

	result, err := client.FetchUsage(ctx, active.Username, active.Password)
	if err != nil {
		return err
	}

	if err := tracker.CorrectUsage(ctx, active.ID, result.Minutes); err != nil {
		return fmt.Errorf("portal reported %d minutes for %s: %w", result.Minutes, active.Name, err)
	}
	return nil
}
