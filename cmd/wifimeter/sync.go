package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goodtune/wifimeter/internal/portal"
	"github.com/goodtune/wifimeter/internal/usage"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync usage from the captive portal",
	Long: `Scrape the portal usage page once and correct the active connection's
counter from the authoritative figure. Figures outside the sanity range
are reported but not applied.`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, store, logger, err := openCLI()
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.Portal.URL == "" {
		return fmt.Errorf("portal.url is not configured")
	}

	ctx := context.Background()
	tracker := newCLITracker(cfg, store, logger)

	active, err := tracker.ActiveConnection(ctx)
	if err != nil {
		return fmt.Errorf("failed to load active connection: %w", err)
	}
	if active == nil {
		return fmt.Errorf("no active connection to sync")
	}

	client, err := portal.NewClient(portal.Config{
		URL:     cfg.Portal.URL,
		Timeout: parseDuration(cfg.Portal.Timeout, 30*time.Second),
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize portal client: %w", err)
	}

	result, err := client.FetchUsage(ctx, active.Username, active.Password)
	if err != nil {
		if errors.Is(err, portal.ErrNoDataFound) {
			return fmt.Errorf("portal page had no recognizable usage figure")
		}
		return fmt.Errorf("portal fetch failed: %w", err)
	}

	if err := tracker.CorrectUsage(ctx, active.ID, result.Minutes); err != nil {
		if errors.Is(err, usage.ErrUsageOutOfRange) {
			warnf("Portal reported %d minutes for %s, outside the sanity range, not applied\n",
				result.Minutes, active.Name)
			return nil
		}
		return fmt.Errorf("failed to apply portal usage: %w", err)
	}

	fmt.Printf("Synced %s from portal: %s used (account %s)\n",
		active.Name, usage.FormatMinutes(result.Minutes), result.Username)
	return nil
}
