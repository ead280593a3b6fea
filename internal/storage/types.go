package storage

import "time"

// Setting keys. The bolt and redis backends both store one value per key
// so the persisted shapes stay compatible across backends.
const (
	KeyResetDay             = "resetDay"
	KeyThresholdValue       = "thresholdValue"
	KeyNotificationsEnabled = "notificationsEnabled"
	KeyLastResetDate        = "lastResetDate"
	KeyLastNotificationTime = "lastNotificationTime"
)

// Settings defaults applied on first run.
const (
	DefaultResetDay             = 21
	DefaultThresholdMinutes     = 10500
	DefaultNotificationsEnabled = true

	// DefaultTotalMinutes is the monthly budget assigned to connections
	// created without an explicit budget.
	DefaultTotalMinutes = 12000
)

// Connection is a named usage budget the user tracks.
type Connection struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// Portal credentials, used only by the scrape client.
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	UsedMinutes  int `json:"used_minutes"`
	TotalMinutes int `json:"total_minutes"`

	// Active marks the single connection currently accruing usage.
	// At most one record in the store has Active set.
	Active bool `json:"active"`

	// LastUpdated is the time of the last accrual or activation event.
	LastUpdated time.Time `json:"last_updated,omitzero"`

	// Position preserves display order across backends.
	Position int `json:"position"`
}

// Remaining returns the unused portion of the budget.
func (c *Connection) Remaining() int {
	remaining := c.TotalMinutes - c.UsedMinutes
	if remaining < 0 {
		return 0
	}
	return remaining
}

// AtLimit reports whether the budget ceiling has been reached.
func (c *Connection) AtLimit() bool {
	return c.UsedMinutes >= c.TotalMinutes
}

// DefaultConnections returns the seed records installed on first run.
func DefaultConnections() []Connection {
	return []Connection{
		{ID: "wifi1", Name: "Home WiFi", TotalMinutes: DefaultTotalMinutes, Position: 0},
		{ID: "wifi2", Name: "Office WiFi", TotalMinutes: DefaultTotalMinutes, Position: 1},
		{ID: "wifi3", Name: "Mobile Hotspot", TotalMinutes: DefaultTotalMinutes, Position: 2},
	}
}
