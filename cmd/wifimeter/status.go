package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/wifimeter/internal/clock"
	"github.com/goodtune/wifimeter/internal/usage"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show tracking status",
	Long: `Show the active connection, its usage against the budget and when the
next monthly reset falls. Minutes elapsed since the last accrual are
recorded first so the figures are current.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, store, logger, err := openCLI()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	tracker := newCLITracker(cfg, store, logger)

	// Bring counters up to date before reporting
	if _, err := tracker.Reconcile(ctx); err != nil && !errors.Is(err, usage.ErrNoActiveConnection) {
		return fmt.Errorf("failed to reconcile usage: %w", err)
	}

	settings := store.Settings()
	resetDay, err := settings.GetResetDay(ctx)
	if err != nil {
		return fmt.Errorf("failed to read reset day: %w", err)
	}
	threshold, err := settings.GetThresholdMinutes(ctx)
	if err != nil {
		return fmt.Errorf("failed to read threshold: %w", err)
	}

	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)
	red := color.New(color.FgRed, color.Bold)

	cyan.Println("WIFIMETER STATUS")
	fmt.Println()

	active, err := tracker.ActiveConnection(ctx)
	if err != nil {
		return fmt.Errorf("failed to load active connection: %w", err)
	}

	if active == nil {
		fmt.Println("Tracking:   idle")
	} else {
		green.Printf("Tracking:   %s\n", active.Name)
		fmt.Printf("Used:       %s of %s\n",
			usage.FormatMinutes(active.UsedMinutes), usage.FormatMinutes(active.TotalMinutes))
		fmt.Printf("Remaining:  %s\n", usage.FormatMinutes(active.Remaining()))

		switch {
		case active.AtLimit():
			red.Println("Budget exhausted")
		case active.UsedMinutes > threshold:
			yellow.Printf("Above alert threshold (%s)\n", usage.FormatMinutes(threshold))
		}
	}

	now := clock.RealClock{}.Now()
	next := usage.NextResetDate(resetDay, now)
	fmt.Println()
	fmt.Printf("Threshold:  %s\n", usage.FormatMinutes(threshold))
	fmt.Printf("Next reset: %s (in %d days)\n", next.Format("2006-01-02"),
		int(next.Sub(now)/(24*time.Hour)))

	return nil
}
