package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/goodtune/wifimeter/internal/clock"
	"github.com/goodtune/wifimeter/internal/config"
	"github.com/goodtune/wifimeter/internal/storage"
	"github.com/goodtune/wifimeter/internal/usage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	addName     string
	addTotal    int
	addUsername string
	addPassword string

	editName     string
	editTotal    int
	editUsername string
	editPassword string

	resetID  string
	resetAll bool
)

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a connection",
	Long:  `Add a new WiFi connection with its monthly minute budget.`,
	RunE:  runAdd,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List connections",
	Long:  `List all connections with their usage against the monthly budget.`,
	RunE:  runList,
}

var editCmd = &cobra.Command{
	Use:   "edit ID",
	Short: "Edit a connection",
	Long:  `Change a connection's name, budget or portal credentials.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runEdit,
}

var deleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a connection",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var activateCmd = &cobra.Command{
	Use:   "activate ID",
	Short: "Start tracking a connection",
	Long:  `Mark a connection as active. Usage minutes accrue against the active
connection until tracking is stopped or another connection is activated.`,
	Args: cobra.ExactArgs(1),
	RunE: runActivate,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop tracking",
	Long:  `Stop tracking. Minutes elapsed since the last accrual are recorded first.`,
	RunE:  runStop,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset usage counters",
	Long:  `Reset usage counters to zero, for one connection or for all of them.`,
	RunE:  runReset,
}

func init() {
	addCmd.Flags().StringVar(&addName, "name", "", "Connection name (required)")
	addCmd.Flags().IntVar(&addTotal, "total", storage.DefaultTotalMinutes, "Monthly minute budget")
	addCmd.Flags().StringVar(&addUsername, "username", "", "Portal username")
	addCmd.Flags().StringVar(&addPassword, "password", "", "Portal password")
	addCmd.MarkFlagRequired("name")

	editCmd.Flags().StringVar(&editName, "name", "", "Connection name")
	editCmd.Flags().IntVar(&editTotal, "total", 0, "Monthly minute budget")
	editCmd.Flags().StringVar(&editUsername, "username", "", "Portal username")
	editCmd.Flags().StringVar(&editPassword, "password", "", "Portal password")

	resetCmd.Flags().StringVar(&resetID, "id", "", "Connection to reset")
	resetCmd.Flags().BoolVar(&resetAll, "all", false, "Reset every connection")
	resetCmd.MarkFlagsMutuallyExclusive("id", "all")
	resetCmd.MarkFlagsOneRequired("id", "all")

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(activateCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(resetCmd)
}

// openCLI loads configuration and opens storage for one-shot commands,
// with a quiet logger so command output stays readable.
func openCLI() (*config.Config, storage.Store, zerolog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, zerolog.Logger{}, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := zerolog.New(os.Stderr).Level(zerolog.ErrorLevel).With().Timestamp().Logger()

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return nil, nil, zerolog.Logger{}, fmt.Errorf("failed to initialize storage: %w", err)
	}

	return cfg, store, logger, nil
}

// newCLITracker builds a tracker for one-shot commands so the activate and
// stop alerts fire the same way they do in the daemon.
func newCLITracker(cfg *config.Config, store storage.Store, logger zerolog.Logger) *usage.Tracker {
	return usage.NewTracker(store, newNotifier(cfg.Notifications, logger), clock.RealClock{}, usage.Config{}, logger)
}

func runAdd(cmd *cobra.Command, args []string) error {
	if addTotal <= 0 {
		return fmt.Errorf("--total must be positive, got %d", addTotal)
	}

	_, store, _, err := openCLI()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()

	existing, err := store.Connections().List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list connections: %w", err)
	}

	conn := storage.Connection{
		ID:           uuid.NewString(),
		Name:         addName,
		Username:     addUsername,
		Password:     addPassword,
		TotalMinutes: addTotal,
		Position:     len(existing),
	}

	if err := store.Connections().Upsert(ctx, conn); err != nil {
		return fmt.Errorf("failed to add connection: %w", err)
	}

	fmt.Printf("Added connection %s (%s) with a budget of %s\n", conn.Name, conn.ID, usage.FormatMinutes(conn.TotalMinutes))
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	_, store, _, err := openCLI()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()

	conns, err := store.Connections().List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list connections: %w", err)
	}
	sort.SliceStable(conns, func(i, j int) bool { return conns[i].Position < conns[j].Position })

	if len(conns) == 0 {
		fmt.Println("No connections configured")
		return nil
	}

	green := color.New(color.FgGreen, color.Bold)
	red := color.New(color.FgRed, color.Bold)

	for _, conn := range conns {
		marker := " "
		if conn.Active {
			marker = "*"
		}

		line := fmt.Sprintf("%s %-20s %-38s %s / %s", marker, conn.Name, conn.ID,
			usage.FormatMinutes(conn.UsedMinutes), usage.FormatMinutes(conn.TotalMinutes))

		switch {
		case conn.AtLimit():
			red.Println(line)
		case conn.Active:
			green.Println(line)
		default:
			fmt.Println(line)
		}
	}

	return nil
}

func runEdit(cmd *cobra.Command, args []string) error {
	id := args[0]

	_, store, _, err := openCLI()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()

	conn, err := store.Connections().Get(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("no connection with id %s", id)
		}
		return fmt.Errorf("failed to load connection: %w", err)
	}

	if cmd.Flags().Changed("name") {
		conn.Name = editName
	}
	if cmd.Flags().Changed("total") {
		if editTotal <= 0 {
			return fmt.Errorf("--total must be positive, got %d", editTotal)
		}
		conn.TotalMinutes = editTotal
		if conn.UsedMinutes > conn.TotalMinutes {
			conn.UsedMinutes = conn.TotalMinutes
		}
	}
	if cmd.Flags().Changed("username") {
		conn.Username = editUsername
	}
	if cmd.Flags().Changed("password") {
		conn.Password = editPassword
	}

	if err := store.Connections().Upsert(ctx, *conn); err != nil {
		return fmt.Errorf("failed to update connection: %w", err)
	}

	fmt.Printf("Updated connection %s\n", conn.Name)
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	id := args[0]

	_, store, _, err := openCLI()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Connections().Delete(context.Background(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("no connection with id %s", id)
		}
		return fmt.Errorf("failed to delete connection: %w", err)
	}

	fmt.Printf("Deleted connection %s\n", id)
	return nil
}

func runActivate(cmd *cobra.Command, args []string) error {
	id := args[0]

	cfg, store, logger, err := openCLI()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	tracker := newCLITracker(cfg, store, logger)

	if err := tracker.Activate(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("no connection with id %s", id)
		}
		return fmt.Errorf("failed to activate connection: %w", err)
	}

	conn, err := store.Connections().Get(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load connection: %w", err)
	}

	fmt.Printf("Tracking %s (%s used of %s)\n", conn.Name,
		usage.FormatMinutes(conn.UsedMinutes), usage.FormatMinutes(conn.TotalMinutes))
	return nil
}

func runStop(cmd *cobra.Command, args []string) error {
	cfg, store, logger, err := openCLI()
	if err != nil {
		return err
	}
	defer store.Close()

	tracker := newCLITracker(cfg, store, logger)

	if err := tracker.Stop(context.Background()); err != nil {
		return fmt.Errorf("failed to stop tracking: %w", err)
	}

	fmt.Println("Tracking stopped")
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	_, store, _, err := openCLI()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()

	if resetAll {
		if err := store.Connections().ResetAll(ctx); err != nil {
			return fmt.Errorf("failed to reset connections: %w", err)
		}
		fmt.Println("Reset usage on all connections")
		return nil
	}

	if err := store.Connections().SetUsedMinutes(ctx, resetID, 0, clock.RealClock{}.Now()); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("no connection with id %s", resetID)
		}
		return fmt.Errorf("failed to reset connection: %w", err)
	}

	fmt.Printf("Reset usage on connection %s\n", resetID)
	return nil
}
