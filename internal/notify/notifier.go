package notify

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/rs/zerolog"
)

// Payload is attached to every alert so receivers can identify the
// connection the alert refers to.
type Payload struct {
	ID string `json:"id"`
}

// Alert is a notification ready to be delivered.
type Alert struct {
	Title   string
	Body    string
	Payload Payload
}

// Notifier delivers alerts. Delivery is best effort; a failed send is
// reported to the caller but never retried here.
type Notifier interface {
	ScheduleNow(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the log. It is the default notifier and
// the fallback when no delivery channel is configured.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a notifier that logs alerts.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notifier").Logger()}
}

// ScheduleNow logs the alert.
func (n *LogNotifier) ScheduleNow(_ context.Context, alert Alert) error {
	n.logger.Info().
		Str("title", alert.Title).
		Str("body", alert.Body).
		Str("connection_id", alert.Payload.ID).
		Msg("Notification")
	return nil
}

// CommandNotifier delivers alerts by running an external command with the
// title, body and connection id as arguments (e.g. notify-send wrappers).
type CommandNotifier struct {
	command string
	logger  zerolog.Logger
}

// NewCommandNotifier creates a notifier that shells out to command.
func NewCommandNotifier(command string, logger zerolog.Logger) *CommandNotifier {
	return &CommandNotifier{
		command: command,
		logger:  logger.With().Str("component", "notifier").Logger(),
	}
}

// ScheduleNow runs the configured command.
func (n *CommandNotifier) ScheduleNow(ctx context.Context, alert Alert) error {
	cmd := exec.CommandContext(ctx, n.command, alert.Title, alert.Body, alert.Payload.ID)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("notification command failed: %w (output: %s)", err, out)
	}

	n.logger.Debug().
		Str("command", n.command).
		Str("title", alert.Title).
		Msg("Notification command executed")
	return nil
}
