package notify

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/goodtune/wifimeter/internal/storage"
)

// RateLimitWindow is the minimum gap between threshold alerts. Start and
// stop alerts are point events and bypass it.
const RateLimitWindow = 2 * time.Hour

// MaybeAlert decides whether a threshold alert fires for the active
// connection. It fires when usage exceeds the threshold and the previous
// alert is at least RateLimitWindow old. The caller must persist the new
// last-notification time together with the send so a re-invocation before
// state is observed cannot produce a duplicate.
func MaybeAlert(conn storage.Connection, thresholdMinutes int, lastNotification, now time.Time) (Alert, bool) {
	if conn.UsedMinutes <= thresholdMinutes {
		return Alert{}, false
	}
	if !lastNotification.IsZero() && now.Sub(lastNotification) < RateLimitWindow {
		return Alert{}, false
	}

	return Alert{
		Title:   "WiFi Usage Alert!",
		Body:    thresholdMessage(conn.UsedMinutes, conn.Name),
		Payload: Payload{ID: conn.ID},
	}, true
}

// StartAlert announces that tracking began on a connection.
func StartAlert(conn storage.Connection) Alert {
	return Alert{
		Title:   "Tracking started",
		Body:    fmt.Sprintf("Now counting usage on %s.", conn.Name),
		Payload: Payload{ID: conn.ID},
	}
}

// StopAlert announces that tracking stopped on a connection.
func StopAlert(conn storage.Connection) Alert {
	return Alert{
		Title:   "Tracking stopped",
		Body:    fmt.Sprintf("Stopped counting usage on %s, used %d minutes.", conn.Name, conn.UsedMinutes),
		Payload: Payload{ID: conn.ID},
	}
}

// thresholdMessage picks one of a fixed message set at random. Content is
// presentation detail; the only contract is a non-empty string that varies
// per call.
func thresholdMessage(usedMinutes int, name string) string {
	messages := []string{
		fmt.Sprintf("%s has eaten %d minutes already. Maybe go outside?", name, usedMinutes),
		fmt.Sprintf("%d minutes on %s and counting. Your router is exhausted.", usedMinutes, name),
		fmt.Sprintf("Heads up: %s just crossed %d minutes this month.", name, usedMinutes),
		fmt.Sprintf("%s is at %d minutes. The budget is sweating.", name, usedMinutes),
		fmt.Sprintf("Still on %s? That's %d minutes of quality streaming.", name, usedMinutes),
	}
	return messages[rand.IntN(len(messages))]
}
