package main

import (
	"context"
	"fmt"

	"github.com/goodtune/wifimeter/internal/usage"
	"github.com/spf13/cobra"
)

var (
	setResetDay      int
	setThreshold     int
	setNotifications bool
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change tracker settings",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE:  runSettingsShow,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change settings",
	Long: `Change the monthly reset day, the alert threshold or whether
notifications are delivered. Only the flags you pass are changed.`,
	RunE: runSettingsSet,
}

func init() {
	settingsSetCmd.Flags().IntVar(&setResetDay, "reset-day", 0, "Day of month usage resets (1-31)")
	settingsSetCmd.Flags().IntVar(&setThreshold, "threshold", 0, "Usage minutes above which alerts fire")
	settingsSetCmd.Flags().BoolVar(&setNotifications, "notifications", true, "Enable or disable alerts")

	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsShow(cmd *cobra.Command, args []string) error {
	_, store, _, err := openCLI()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	settings := store.Settings()

	resetDay, err := settings.GetResetDay(ctx)
	if err != nil {
		return fmt.Errorf("failed to read reset day: %w", err)
	}
	threshold, err := settings.GetThresholdMinutes(ctx)
	if err != nil {
		return fmt.Errorf("failed to read threshold: %w", err)
	}
	enabled, err := settings.GetNotificationsEnabled(ctx)
	if err != nil {
		return fmt.Errorf("failed to read notifications flag: %w", err)
	}
	lastReset, err := settings.GetLastResetDate(ctx)
	if err != nil {
		return fmt.Errorf("failed to read last reset date: %w", err)
	}

	fmt.Printf("Reset day:      %d\n", resetDay)
	fmt.Printf("Threshold:      %s (%d minutes)\n", usage.FormatMinutes(threshold), threshold)
	fmt.Printf("Notifications:  %t\n", enabled)
	if lastReset.IsZero() {
		fmt.Printf("Last reset:     never\n")
	} else {
		fmt.Printf("Last reset:     %s\n", lastReset.Format("2006-01-02"))
	}

	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	if !cmd.Flags().Changed("reset-day") && !cmd.Flags().Changed("threshold") && !cmd.Flags().Changed("notifications") {
		return fmt.Errorf("nothing to change, pass --reset-day, --threshold or --notifications")
	}

	_, store, _, err := openCLI()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	settings := store.Settings()

	if cmd.Flags().Changed("reset-day") {
		if setResetDay < 1 || setResetDay > 31 {
			return fmt.Errorf("--reset-day must be in [1, 31], got %d", setResetDay)
		}
		if err := settings.SetResetDay(ctx, setResetDay); err != nil {
			return fmt.Errorf("failed to set reset day: %w", err)
		}
		fmt.Printf("Reset day set to %d\n", setResetDay)
	}

	if cmd.Flags().Changed("threshold") {
		if setThreshold < 0 {
			return fmt.Errorf("--threshold must be non-negative, got %d", setThreshold)
		}
		if err := settings.SetThresholdMinutes(ctx, setThreshold); err != nil {
			return fmt.Errorf("failed to set threshold: %w", err)
		}
		fmt.Printf("Threshold set to %s\n", usage.FormatMinutes(setThreshold))
	}

	if cmd.Flags().Changed("notifications") {
		if err := settings.SetNotificationsEnabled(ctx, setNotifications); err != nil {
			return fmt.Errorf("failed to set notifications flag: %w", err)
		}
		fmt.Printf("Notifications %s\n", map[bool]string{true: "enabled", false: "disabled"}[setNotifications])
	}

	return nil
}
