package redis

import (
	"fmt"
	"strconv"
	"time"

	"github.com/goodtune/wifimeter/internal/storage"
)

const (
	connKeyPrefix = "wifimeter:connection:"
	connIDsKey    = "wifimeter:connections"
	activeKey     = "wifimeter:connections:active"
	settingPrefix = "wifimeter:settings:"
)

func connKey(id string) string {
	return connKeyPrefix + id
}

func settingKey(name string) string {
	return settingPrefix + name
}

// parseConnection converts a Redis hash to a Connection.
func parseConnection(data map[string]string) (*storage.Connection, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	usedMinutes, err := strconv.Atoi(data["used_minutes"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse used_minutes: %w", err)
	}

	totalMinutes, err := strconv.Atoi(data["total_minutes"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse total_minutes: %w", err)
	}

	position, err := strconv.Atoi(data["position"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse position: %w", err)
	}

	active := data["active"] == "1"

	var lastUpdated time.Time
	if raw := data["last_updated"]; raw != "" {
		lastUpdated, err = time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse last_updated: %w", err)
		}
	}

	return &storage.Connection{
		ID:           data["id"],
		Name:         data["name"],
		Username:     data["username"],
		Password:     data["password"],
		UsedMinutes:  usedMinutes,
		TotalMinutes: totalMinutes,
		Active:       active,
		LastUpdated:  lastUpdated,
		Position:     position,
	}, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}
