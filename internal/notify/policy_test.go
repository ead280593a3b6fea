package notify

import (
	"testing"
	"time"

	"github.com/goodtune/wifimeter/internal/storage"
)

func TestMaybeAlert(t *testing.T) {
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	conn := storage.Connection{ID: "wifi1", Name: "Home WiFi", UsedMinutes: 10001, TotalMinutes: 12000}

	tests := []struct {
		name             string
		usedMinutes      int
		threshold        int
		lastNotification time.Time
		want             bool
	}{
		{
			name:        "over threshold, never notified",
			usedMinutes: 10001,
			threshold:   10000,
			want:        true,
		},
		{
			name:             "over threshold, inside rate-limit window",
			usedMinutes:      10001,
			threshold:        10000,
			lastNotification: now.Add(-time.Second),
			want:             false,
		},
		{
			name:             "over threshold, window just elapsed",
			usedMinutes:      10001,
			threshold:        10000,
			lastNotification: now.Add(-RateLimitWindow),
			want:             true,
		},
		{
			name:        "at threshold does not fire",
			usedMinutes: 10000,
			threshold:   10000,
			want:        false,
		},
		{
			name:        "under threshold",
			usedMinutes: 500,
			threshold:   10000,
			want:        false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := conn
			c.UsedMinutes = tt.usedMinutes
			alert, fired := MaybeAlert(c, tt.threshold, tt.lastNotification, now)
			if fired != tt.want {
				t.Fatalf("MaybeAlert fired = %v, want %v", fired, tt.want)
			}
			if fired {
				if alert.Body == "" {
					t.Error("alert body must be non-empty")
				}
				if alert.Payload.ID != c.ID {
					t.Errorf("alert payload id = %q, want %q", alert.Payload.ID, c.ID)
				}
			}
		})
	}
}

func TestMaybeAlertNeverTwiceWithinWindow(t *testing.T) {
	conn := storage.Connection{ID: "wifi1", Name: "Home WiFi", UsedMinutes: 11000, TotalMinutes: 12000}
	now := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)
	var lastNotification time.Time

	fired := 0
	// Call every minute for a day, persisting the notification time the
	// way a caller must; the window allows at most one alert per 2 hours.
	for i := 0; i < 24*60; i++ {
		if _, ok := MaybeAlert(conn, 10000, lastNotification, now); ok {
			fired++
			lastNotification = now
		}
		now = now.Add(time.Minute)
	}

	if fired != 12 {
		t.Errorf("expected 12 alerts over 24h with a 2h window, got %d", fired)
	}
}

func TestThresholdMessageVaries(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		seen[thresholdMessage(10001, "Home WiFi")] = true
	}
	if len(seen) < 2 {
		t.Errorf("expected varied messages, got %d distinct", len(seen))
	}
}

func TestStartStopAlertContent(t *testing.T) {
	conn := storage.Connection{ID: "wifi2", Name: "Office WiFi", UsedMinutes: 42, TotalMinutes: 12000}

	start := StartAlert(conn)
	if start.Payload.ID != "wifi2" || start.Body == "" {
		t.Errorf("unexpected start alert: %+v", start)
	}

	stop := StopAlert(conn)
	if stop.Payload.ID != "wifi2" || stop.Body == "" {
		t.Errorf("unexpected stop alert: %+v", stop)
	}
}
