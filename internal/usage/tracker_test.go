package usage

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goodtune/wifimeter/internal/clock"
	"github.com/goodtune/wifimeter/internal/metrics"
	"github.com/goodtune/wifimeter/internal/notify"
	"github.com/goodtune/wifimeter/internal/storage"
	"github.com/goodtune/wifimeter/internal/storage/bolt"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

type fakeNotifier struct {
	alerts []notify.Alert
}

func (n *fakeNotifier) ScheduleNow(_ context.Context, alert notify.Alert) error {
	n.alerts = append(n.alerts, alert)
	return nil
}

func newTestTracker(t *testing.T) (*Tracker, *bolt.Store, *clock.TestClock, *fakeNotifier) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "wifimeter.bolt")
	store, err := bolt.Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	for _, conn := range storage.DefaultConnections() {
		if err := store.Connections().Upsert(context.Background(), conn); err != nil {
			t.Fatalf("seed connection %s: %v", conn.ID, err)
		}
	}

	clk := &clock.TestClock{CurrentTime: time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)}
	notifier := &fakeNotifier{}
	tracker := NewTracker(store, notifier, clk, Config{}, zerolog.Nop())

	return tracker, store, clk, notifier
}

func TestActivateSwitchesActiveConnection(t *testing.T) {
	tracker, store, _, _ := newTestTracker(t)
	ctx := context.Background()

	if err := tracker.Activate(ctx, "wifi1"); err != nil {
		t.Fatalf("activate wifi1: %v", err)
	}
	if err := tracker.Activate(ctx, "wifi2"); err != nil {
		t.Fatalf("activate wifi2: %v", err)
	}

	conns, err := store.Connections().List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	activeCount := 0
	for _, conn := range conns {
		if conn.Active {
			activeCount++
			if conn.ID != "wifi2" {
				t.Errorf("expected wifi2 active, got %s", conn.ID)
			}
		}
	}
	if activeCount != 1 {
		t.Fatalf("expected exactly 1 active connection, got %d", activeCount)
	}
}

func TestActivateUnknownIDSurfacesNotFound(t *testing.T) {
	tracker, _, _, notifier := newTestTracker(t)

	err := tracker.Activate(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(notifier.alerts) != 0 {
		t.Errorf("no alert should be sent for a failed activation, got %d", len(notifier.alerts))
	}
}

func TestAccrueIncrementsOnlyActiveConnection(t *testing.T) {
	tracker, store, _, _ := newTestTracker(t)
	ctx := context.Background()

	if err := tracker.Activate(ctx, "wifi1"); err != nil {
		t.Fatalf("activate: %v", err)
	}

	for i := 0; i < 5; i++ {
		if _, err := tracker.Accrue(ctx, 1); err != nil {
			t.Fatalf("accrue: %v", err)
		}
	}

	conns, err := store.Connections().List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, conn := range conns {
		want := 0
		if conn.ID == "wifi1" {
			want = 5
		}
		if conn.UsedMinutes != want {
			t.Errorf("%s: expected %d used minutes, got %d", conn.ID, want, conn.UsedMinutes)
		}
	}
}

func TestAccrueClampsAtBudget(t *testing.T) {
	tracker, store, _, _ := newTestTracker(t)
	ctx := context.Background()

	conn := storage.Connection{ID: "small", Name: "Small", UsedMinutes: 98, TotalMinutes: 100}
	if err := store.Connections().Upsert(ctx, conn); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := tracker.Activate(ctx, "small"); err != nil {
		t.Fatalf("activate: %v", err)
	}

	used, err := tracker.Accrue(ctx, 5)
	if err != nil {
		t.Fatalf("accrue: %v", err)
	}
	if used != 100 {
		t.Fatalf("expected clamped usage 100, got %d", used)
	}

	// Idempotent at the ceiling.
	used, err = tracker.Accrue(ctx, 5)
	if err != nil {
		t.Fatalf("accrue at ceiling: %v", err)
	}
	if used != 100 {
		t.Fatalf("expected usage to stay 100, got %d", used)
	}
}

func TestAccrueWhenIdle(t *testing.T) {
	tracker, _, _, _ := newTestTracker(t)

	_, err := tracker.Accrue(context.Background(), 1)
	if !errors.Is(err, ErrNoActiveConnection) {
		t.Fatalf("expected ErrNoActiveConnection, got %v", err)
	}
}

func TestStopIsNoopWhenIdle(t *testing.T) {
	tracker, _, _, notifier := newTestTracker(t)

	if err := tracker.Stop(context.Background()); err != nil {
		t.Fatalf("stop while idle: %v", err)
	}
	if len(notifier.alerts) != 0 {
		t.Errorf("no alert expected for idle stop, got %d", len(notifier.alerts))
	}
}

func TestStartStopAlerts(t *testing.T) {
	tracker, _, _, notifier := newTestTracker(t)
	ctx := context.Background()

	if err := tracker.Activate(ctx, "wifi1"); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if _, err := tracker.Accrue(ctx, 3); err != nil {
		t.Fatalf("accrue: %v", err)
	}
	if err := tracker.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	if len(notifier.alerts) != 2 {
		t.Fatalf("expected start and stop alerts, got %d", len(notifier.alerts))
	}
	if notifier.alerts[0].Title != "Tracking started" {
		t.Errorf("unexpected first alert title %q", notifier.alerts[0].Title)
	}
	if notifier.alerts[1].Title != "Tracking stopped" {
		t.Errorf("unexpected second alert title %q", notifier.alerts[1].Title)
	}
	if notifier.alerts[1].Payload.ID != "wifi1" {
		t.Errorf("stop alert payload id = %q, want wifi1", notifier.alerts[1].Payload.ID)
	}
}

func TestStopRecordsElapsedTime(t *testing.T) {
	tracker, store, clk, notifier := newTestTracker(t)
	ctx := context.Background()

	if err := tracker.Activate(ctx, "wifi1"); err != nil {
		t.Fatalf("activate: %v", err)
	}

	clk.Advance(30 * time.Minute)

	if err := tracker.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	conn, err := store.Connections().Get(ctx, "wifi1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if conn.UsedMinutes != 30 {
		t.Fatalf("expected 30 used minutes recorded on stop, got %d", conn.UsedMinutes)
	}
	if conn.Active {
		t.Error("connection still active after stop")
	}

	stop := notifier.alerts[len(notifier.alerts)-1]
	if stop.Title != "Tracking stopped" {
		t.Fatalf("unexpected last alert title %q", stop.Title)
	}
	if !strings.Contains(stop.Body, "30 minutes") {
		t.Errorf("stop alert body %q does not report the settled figure", stop.Body)
	}
}

func TestActivateSettlesOutgoingConnection(t *testing.T) {
	tracker, store, clk, _ := newTestTracker(t)
	ctx := context.Background()

	if err := tracker.Activate(ctx, "wifi1"); err != nil {
		t.Fatalf("activate wifi1: %v", err)
	}

	clk.Advance(10 * time.Minute)

	if err := tracker.Activate(ctx, "wifi2"); err != nil {
		t.Fatalf("switch to wifi2: %v", err)
	}

	conn, err := store.Connections().Get(ctx, "wifi1")
	if err != nil {
		t.Fatalf("get wifi1: %v", err)
	}
	if conn.UsedMinutes != 10 {
		t.Fatalf("expected 10 minutes settled on wifi1 before the switch, got %d", conn.UsedMinutes)
	}

	// Re-activating the already-active record settles the gap too.
	clk.Advance(7 * time.Minute)
	if err := tracker.Activate(ctx, "wifi2"); err != nil {
		t.Fatalf("re-activate wifi2: %v", err)
	}

	conn, err = store.Connections().Get(ctx, "wifi2")
	if err != nil {
		t.Fatalf("get wifi2: %v", err)
	}
	if conn.UsedMinutes != 7 {
		t.Fatalf("expected 7 minutes settled on re-activation, got %d", conn.UsedMinutes)
	}
	if !conn.LastUpdated.Equal(clk.Now()) {
		t.Errorf("last updated not moved to activation time: %v", conn.LastUpdated)
	}
}

func TestReconcileRestoresTrackingGauge(t *testing.T) {
	tracker, store, _, _ := newTestTracker(t)
	ctx := context.Background()

	if err := tracker.Activate(ctx, "wifi1"); err != nil {
		t.Fatalf("activate: %v", err)
	}

	// A fresh process starts with the gauge at zero even though the store
	// still has an active record.
	metrics.TrackingActive.Set(0)

	restarted := NewTracker(store, &fakeNotifier{}, &clock.TestClock{CurrentTime: time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)}, Config{}, zerolog.Nop())
	if _, err := restarted.Reconcile(ctx); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if got := testutil.ToFloat64(metrics.TrackingActive); got != 1 {
		t.Fatalf("tracking gauge = %v after reconcile with an active record, want 1", got)
	}

	if err := restarted.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if _, err := restarted.Reconcile(ctx); err != nil {
		t.Fatalf("idle reconcile: %v", err)
	}
	if got := testutil.ToFloat64(metrics.TrackingActive); got != 0 {
		t.Fatalf("tracking gauge = %v while idle, want 0", got)
	}
}

func TestReconcileAttributesElapsedTime(t *testing.T) {
	tracker, store, clk, _ := newTestTracker(t)
	ctx := context.Background()

	if err := tracker.Activate(ctx, "wifi1"); err != nil {
		t.Fatalf("activate: %v", err)
	}

	clk.Advance(5*time.Minute + 30*time.Second)

	accrued, err := tracker.Reconcile(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if accrued != 5 {
		t.Fatalf("expected 5 reconciled minutes (floor), got %d", accrued)
	}

	conn, err := store.Connections().Get(ctx, "wifi1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if conn.UsedMinutes != 5 {
		t.Errorf("expected 5 used minutes, got %d", conn.UsedMinutes)
	}
	if !conn.LastUpdated.Equal(clk.Now()) {
		t.Errorf("last updated not advanced: %v", conn.LastUpdated)
	}
}

func TestReconcileIdleIsZero(t *testing.T) {
	tracker, _, clk, _ := newTestTracker(t)

	clk.Advance(time.Hour)
	accrued, err := tracker.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if accrued != 0 {
		t.Fatalf("expected 0 minutes reconciled while idle, got %d", accrued)
	}
}

func TestCheckResetFirstRunRecordsBaseline(t *testing.T) {
	tracker, store, clk, _ := newTestTracker(t)
	ctx := context.Background()

	applied, err := tracker.CheckReset(ctx)
	if err != nil {
		t.Fatalf("check reset: %v", err)
	}
	if applied {
		t.Fatal("first run must not apply a reset")
	}

	lastReset, err := store.Settings().GetLastResetDate(ctx)
	if err != nil {
		t.Fatalf("get last reset date: %v", err)
	}
	if !lastReset.Equal(clk.Now().Truncate(time.Second)) {
		t.Errorf("baseline not recorded: got %v, want %v", lastReset, clk.Now())
	}
}

func TestCheckResetZeroesCountersKeepsFlags(t *testing.T) {
	tracker, store, clk, _ := newTestTracker(t)
	ctx := context.Background()

	// resetDay=21, last reset 2025-01-10, now 2025-02-22: reset is due.
	clk.CurrentTime = time.Date(2025, time.February, 22, 9, 0, 0, 0, time.UTC)
	if err := store.Settings().SetLastResetDate(ctx, time.Date(2025, time.January, 10, 9, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("set last reset: %v", err)
	}

	if err := tracker.Activate(ctx, "wifi2"); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if _, err := tracker.Accrue(ctx, 500); err != nil {
		t.Fatalf("accrue: %v", err)
	}

	applied, err := tracker.CheckReset(ctx)
	if err != nil {
		t.Fatalf("check reset: %v", err)
	}
	if !applied {
		t.Fatal("expected reset to apply")
	}

	conns, err := store.Connections().List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, conn := range conns {
		if conn.UsedMinutes != 0 {
			t.Errorf("%s: expected 0 used minutes after reset, got %d", conn.ID, conn.UsedMinutes)
		}
		if conn.ID == "wifi2" && !conn.Active {
			t.Error("reset must not clear the active flag")
		}
	}

	// Re-running in the same month is a no-op.
	applied, err = tracker.CheckReset(ctx)
	if err != nil {
		t.Fatalf("second check reset: %v", err)
	}
	if applied {
		t.Fatal("reset must not apply twice in the same month")
	}
}

func TestThresholdAlertRateLimited(t *testing.T) {
	tracker, store, clk, notifier := newTestTracker(t)
	ctx := context.Background()

	if err := store.Settings().SetThresholdMinutes(ctx, 10000); err != nil {
		t.Fatalf("set threshold: %v", err)
	}
	if err := tracker.Activate(ctx, "wifi1"); err != nil {
		t.Fatalf("activate: %v", err)
	}
	notifier.alerts = nil // drop the start alert

	// Last alert fired one second ago: inside the rate-limit window.
	if err := store.Settings().SetLastNotificationTime(ctx, clk.Now().Add(-time.Second)); err != nil {
		t.Fatalf("set last notification: %v", err)
	}

	if _, err := tracker.Accrue(ctx, 10001); err != nil {
		t.Fatalf("accrue: %v", err)
	}
	if len(notifier.alerts) != 0 {
		t.Fatalf("alert fired inside the rate-limit window")
	}

	// Past the two-hour window the alert fires once.
	clk.Advance(2*time.Hour + time.Second)
	if _, err := tracker.Accrue(ctx, 1); err != nil {
		t.Fatalf("accrue: %v", err)
	}
	if len(notifier.alerts) != 1 {
		t.Fatalf("expected 1 threshold alert, got %d", len(notifier.alerts))
	}
	if notifier.alerts[0].Title != "WiFi Usage Alert!" {
		t.Errorf("unexpected alert title %q", notifier.alerts[0].Title)
	}

	// Immediately accruing again stays rate limited.
	if _, err := tracker.Accrue(ctx, 1); err != nil {
		t.Fatalf("accrue: %v", err)
	}
	if len(notifier.alerts) != 1 {
		t.Fatalf("expected rate limit to hold, got %d alerts", len(notifier.alerts))
	}
}

func TestNotificationsDisabledSuppressesAlerts(t *testing.T) {
	tracker, store, _, notifier := newTestTracker(t)
	ctx := context.Background()

	if err := store.Settings().SetNotificationsEnabled(ctx, false); err != nil {
		t.Fatalf("disable notifications: %v", err)
	}
	if err := store.Settings().SetThresholdMinutes(ctx, 10); err != nil {
		t.Fatalf("set threshold: %v", err)
	}

	if err := tracker.Activate(ctx, "wifi1"); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if _, err := tracker.Accrue(ctx, 100); err != nil {
		t.Fatalf("accrue: %v", err)
	}
	if err := tracker.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	if len(notifier.alerts) != 0 {
		t.Fatalf("expected no alerts while disabled, got %d", len(notifier.alerts))
	}
}

func TestCorrectUsageValidation(t *testing.T) {
	tracker, store, _, _ := newTestTracker(t)
	ctx := context.Background()

	if err := tracker.CorrectUsage(ctx, "wifi1", 50001); !errors.Is(err, ErrUsageOutOfRange) {
		t.Fatalf("expected ErrUsageOutOfRange for 50001, got %v", err)
	}
	if err := tracker.CorrectUsage(ctx, "wifi1", -1); !errors.Is(err, ErrUsageOutOfRange) {
		t.Fatalf("expected ErrUsageOutOfRange for -1, got %v", err)
	}

	if err := tracker.CorrectUsage(ctx, "wifi1", 500); err != nil {
		t.Fatalf("correct usage: %v", err)
	}
	conn, err := store.Connections().Get(ctx, "wifi1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if conn.UsedMinutes != 500 {
		t.Errorf("expected 500 used minutes, got %d", conn.UsedMinutes)
	}

	if err := tracker.CorrectUsage(ctx, "missing", 500); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown id, got %v", err)
	}
}
