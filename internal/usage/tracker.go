package usage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goodtune/wifimeter/internal/clock"
	"github.com/goodtune/wifimeter/internal/metrics"
	"github.com/goodtune/wifimeter/internal/notify"
	"github.com/goodtune/wifimeter/internal/storage"
	"github.com/rs/zerolog"
)

const (
	// DefaultTickInterval is the accrual cadence while tracking.
	DefaultTickInterval = time.Minute

	// MaxSaneMinutes is the sanity ceiling for portal-scraped usage
	// corrections.
	MaxSaneMinutes = 50000
)

var (
	// ErrNoActiveConnection is returned by operations that need a
	// connection to be tracking.
	ErrNoActiveConnection = errors.New("usage: no active connection")

	// ErrUsageOutOfRange is returned when a usage correction fails the
	// [0, MaxSaneMinutes] sanity check.
	ErrUsageOutOfRange = errors.New("usage: minutes outside sanity range")
)

// Tracker is the usage accounting engine. The collection is either idle
// (no active connection) or tracking (exactly one active connection);
// every operation preserves that invariant and the budget clamp
// 0 <= UsedMinutes <= TotalMinutes on every record.
type Tracker struct {
	store    storage.Store
	notifier notify.Notifier
	clock    clock.Clock
	tick     time.Duration
	logger   zerolog.Logger
	mu       sync.Mutex
}

// Config holds tracker configuration.
type Config struct {
	TickInterval time.Duration
}

// NewTracker creates a usage tracker.
func NewTracker(store storage.Store, notifier notify.Notifier, clk clock.Clock, config Config, logger zerolog.Logger) *Tracker {
	if config.TickInterval == 0 {
		config.TickInterval = DefaultTickInterval
	}
	if clk == nil {
		clk = clock.RealClock{}
	}

	return &Tracker{
		store:    store,
		notifier: notifier,
		clock:    clk,
		tick:     config.TickInterval,
		logger:   logger.With().Str("component", "usage-tracker").Logger(),
	}
}

// Activate makes the connection with the given id the single tracked
// connection, clearing the flag everywhere else. Minutes elapsed on the
// outgoing active record are accrued before the switch so a
// tracking→tracking change never drops the interval. Returns
// storage.ErrNotFound when the id is unknown; nothing changes in that
// case.
func (t *Tracker) Activate(ctx context.Context, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	previous, err := t.activeConnection(ctx)
	if err != nil {
		return err
	}
	if previous != nil {
		if _, _, err := t.reconcileLocked(ctx, previous); err != nil {
			return fmt.Errorf("settle %s before switch: %w", previous.ID, err)
		}
	}

	now := t.clock.Now()
	if err := t.store.Connections().SetActive(ctx, id, now); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("activate %s: %w", id, err)
		}
		metrics.StorageErrors.WithLabelValues("set_active").Inc()
		return fmt.Errorf("activate %s: %w", id, err)
	}
	metrics.TrackingActive.Set(1)

	conn, err := t.store.Connections().Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load activated connection: %w", err)
	}

	t.logger.Info().
		Str("connection_id", conn.ID).
		Str("name", conn.Name).
		Int("used_minutes", conn.UsedMinutes).
		Msg("Tracking started")

	t.send(ctx, notify.StartAlert(*conn), "start")
	return nil
}

// Stop clears the active flag. Minutes elapsed since the last accrual
// are recorded first, so stopping through a one-shot invocation with no
// ticker running loses nothing. It is a no-op when nothing is tracking.
func (t *Tracker) Stop(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	active, err := t.activeConnection(ctx)
	if err != nil {
		return err
	}
	if active == nil {
		return nil
	}

	_, used, err := t.reconcileLocked(ctx, active)
	if err != nil {
		return fmt.Errorf("settle before stop: %w", err)
	}
	active.UsedMinutes = used

	if err := t.store.Connections().ClearActive(ctx); err != nil {
		metrics.StorageErrors.WithLabelValues("clear_active").Inc()
		return fmt.Errorf("stop tracking: %w", err)
	}
	metrics.TrackingActive.Set(0)

	t.logger.Info().
		Str("connection_id", active.ID).
		Str("name", active.Name).
		Int("used_minutes", active.UsedMinutes).
		Msg("Tracking stopped")

	t.send(ctx, notify.StopAlert(*active), "stop")
	return nil
}

// Accrue adds usage minutes to the active connection, clamped to its
// budget, and runs the threshold alert check. Returns
// ErrNoActiveConnection when the collection is idle.
func (t *Tracker) Accrue(ctx context.Context, minutes int) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	active, err := t.activeConnection(ctx)
	if err != nil {
		return 0, err
	}
	if active == nil {
		return 0, ErrNoActiveConnection
	}

	return t.accrue(ctx, active, minutes)
}

// Reconcile attributes elapsed wall-clock time since the active
// connection's last update in one lump accrual, so usage accrued while
// the process was not running is not silently lost. Returns the minutes
// accrued; idle collections reconcile to zero.
func (t *Tracker) Reconcile(ctx context.Context) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	active, err := t.activeConnection(ctx)
	if err != nil {
		return 0, err
	}

	// Keep the gauge in step with persisted state, so a connection left
	// active across a restart is reflected from the first reconcile on.
	if active == nil {
		metrics.TrackingActive.Set(0)
		return 0, nil
	}
	metrics.TrackingActive.Set(1)

	accrued, _, err := t.reconcileLocked(ctx, active)
	return accrued, err
}

// reconcileLocked attributes elapsed whole minutes since the record's
// last update in one lump accrual. Must be called with the lock held and
// a non-nil active record. Returns the minutes accrued (after clamping)
// and the record's updated counter.
func (t *Tracker) reconcileLocked(ctx context.Context, active *storage.Connection) (accrued, used int, err error) {
	now := t.clock.Now()
	if active.LastUpdated.IsZero() {
		// Activation predates LastUpdated bookkeeping; anchor it now.
		if _, err := t.store.Connections().AddMinutes(ctx, active.ID, 0, now); err != nil {
			return 0, active.UsedMinutes, fmt.Errorf("anchor last update: %w", err)
		}
		return 0, active.UsedMinutes, nil
	}

	elapsed := int(now.Sub(active.LastUpdated) / time.Minute)
	if elapsed <= 0 {
		return 0, active.UsedMinutes, nil
	}

	t.logger.Info().
		Str("connection_id", active.ID).
		Int("minutes", elapsed).
		Time("last_updated", active.LastUpdated).
		Msg("Reconciling elapsed time")

	used, err = t.accrue(ctx, active, elapsed)
	if err != nil {
		return 0, active.UsedMinutes, err
	}
	return used - active.UsedMinutes, used, nil
}

// CheckReset applies the monthly reset when the boundary has been crossed
// since the last applied reset. Zeroes every usage counter, leaves active
// flags untouched and records the reset time. Returns whether a reset was
// applied.
func (t *Tracker) CheckReset(ctx context.Context) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	settings := t.store.Settings()

	resetDay, err := settings.GetResetDay(ctx)
	if err != nil {
		return false, fmt.Errorf("read reset day: %w", err)
	}
	lastReset, err := settings.GetLastResetDate(ctx)
	if err != nil {
		return false, fmt.Errorf("read last reset date: %w", err)
	}

	now := t.clock.Now()
	if lastReset.IsZero() {
		// First run: record the baseline so the next boundary crossing
		// is detectable. Nothing to zero yet.
		if err := settings.SetLastResetDate(ctx, now); err != nil {
			return false, fmt.Errorf("record reset baseline: %w", err)
		}
		return false, nil
	}

	if !ShouldReset(resetDay, lastReset, now) {
		return false, nil
	}

	if err := t.store.Connections().ResetAll(ctx); err != nil {
		metrics.StorageErrors.WithLabelValues("reset_all").Inc()
		return false, fmt.Errorf("reset counters: %w", err)
	}
	if err := settings.SetLastResetDate(ctx, now); err != nil {
		metrics.StorageErrors.WithLabelValues("set_last_reset").Inc()
		return false, fmt.Errorf("record reset date: %w", err)
	}
	metrics.ResetsApplied.Inc()

	t.logger.Info().
		Int("reset_day", resetDay).
		Time("last_reset", lastReset).
		Msg("Monthly usage reset applied")

	return true, nil
}

// CorrectUsage overwrites a connection's usage counter with a value
// scraped from the portal. Values outside [0, MaxSaneMinutes] are
// rejected with ErrUsageOutOfRange and nothing is mutated.
func (t *Tracker) CorrectUsage(ctx context.Context, id string, minutes int) error {
	if minutes < 0 || minutes > MaxSaneMinutes {
		return fmt.Errorf("%w: %d", ErrUsageOutOfRange, minutes)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	if err := t.store.Connections().SetUsedMinutes(ctx, id, minutes, now); err != nil {
		return fmt.Errorf("correct usage for %s: %w", id, err)
	}

	t.logger.Info().
		Str("connection_id", id).
		Int("minutes", minutes).
		Msg("Usage corrected from portal")

	return nil
}

// ActiveConnection returns the tracked connection, or nil when idle.
func (t *Tracker) ActiveConnection(ctx context.Context) (*storage.Connection, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.activeConnection(ctx)
}

// Run drives time-based accrual until ctx is cancelled. Each tick
// reconciles elapsed whole minutes, which makes the loop self-healing
// after suspend or clock stalls.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.tick)
	defer ticker.Stop()

	t.logger.Info().Dur("tick_interval", t.tick).Msg("Accrual loop started")

	for {
		select {
		case <-ctx.Done():
			t.logger.Info().Msg("Accrual loop stopped")
			return
		case <-ticker.C:
			if _, err := t.Reconcile(ctx); err != nil {
				t.logger.Error().Err(err).Msg("Accrual tick failed")
			}
		}
	}
}

// accrue must be called with the lock held and a non-nil active record.
func (t *Tracker) accrue(ctx context.Context, active *storage.Connection, minutes int) (int, error) {
	now := t.clock.Now()

	used, err := t.store.Connections().AddMinutes(ctx, active.ID, minutes, now)
	if err != nil {
		metrics.StorageErrors.WithLabelValues("add_minutes").Inc()
		return 0, fmt.Errorf("accrue %d minutes: %w", minutes, err)
	}

	accrued := used - active.UsedMinutes
	if accrued > 0 {
		metrics.UsageMinutesConsumed.WithLabelValues(active.ID).Add(float64(accrued))
	}

	t.logger.Debug().
		Str("connection_id", active.ID).
		Int("minutes", minutes).
		Int("used_minutes", used).
		Int("total_minutes", active.TotalMinutes).
		Msg("Usage accrued")

	updated := *active
	updated.UsedMinutes = used
	t.checkThreshold(ctx, updated, now)

	return used, nil
}

// checkThreshold fires a rate-limited alert when usage crossed the
// configured threshold. The new notification time is persisted before the
// send so a crash between the two cannot cause duplicate alerts.
func (t *Tracker) checkThreshold(ctx context.Context, conn storage.Connection, now time.Time) {
	settings := t.store.Settings()

	enabled, err := settings.GetNotificationsEnabled(ctx)
	if err != nil {
		t.logger.Error().Err(err).Msg("Failed to read notification setting")
		return
	}
	if !enabled {
		return
	}

	threshold, err := settings.GetThresholdMinutes(ctx)
	if err != nil {
		t.logger.Error().Err(err).Msg("Failed to read threshold")
		return
	}
	lastNotification, err := settings.GetLastNotificationTime(ctx)
	if err != nil {
		t.logger.Error().Err(err).Msg("Failed to read last notification time")
		return
	}

	alert, fire := notify.MaybeAlert(conn, threshold, lastNotification, now)
	if !fire {
		return
	}

	if err := settings.SetLastNotificationTime(ctx, now); err != nil {
		t.logger.Error().Err(err).Msg("Failed to persist notification time, alert suppressed")
		return
	}

	if err := t.notifier.ScheduleNow(ctx, alert); err != nil {
		t.logger.Error().Err(err).Str("connection_id", conn.ID).Msg("Failed to send threshold alert")
		return
	}
	metrics.AlertsSent.WithLabelValues("threshold").Inc()

	t.logger.Info().
		Str("connection_id", conn.ID).
		Int("used_minutes", conn.UsedMinutes).
		Int("threshold", threshold).
		Msg("Threshold alert sent")
}

// send delivers a one-shot start/stop alert, honoring the notifications
// setting but not the threshold rate limit.
func (t *Tracker) send(ctx context.Context, alert notify.Alert, kind string) {
	enabled, err := t.store.Settings().GetNotificationsEnabled(ctx)
	if err != nil {
		t.logger.Error().Err(err).Msg("Failed to read notification setting")
		return
	}
	if !enabled {
		return
	}

	if err := t.notifier.ScheduleNow(ctx, alert); err != nil {
		t.logger.Error().Err(err).Str("kind", kind).Msg("Failed to send notification")
		return
	}
	metrics.AlertsSent.WithLabelValues(kind).Inc()
}

func (t *Tracker) activeConnection(ctx context.Context) (*storage.Connection, error) {
	conns, err := t.store.Connections().List(ctx)
	if err != nil {
		metrics.StorageErrors.WithLabelValues("list").Inc()
		return nil, fmt.Errorf("list connections: %w", err)
	}
	for i := range conns {
		if conns[i].Active {
			return &conns[i], nil
		}
	}
	return nil, nil
}
