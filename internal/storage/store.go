package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// Store represents the root storage interface.
type Store interface {
	Close() error
	Connections() ConnectionStore
	Settings() SettingsStore
}

// ConnectionStore manages the tracked connection records.
type ConnectionStore interface {
	Get(ctx context.Context, id string) (*Connection, error)
	// List returns all connections ordered by display position.
	List(ctx context.Context) ([]Connection, error)
	Upsert(ctx context.Context, conn Connection) error
	Delete(ctx context.Context, id string) error

	// SetActive marks the given connection active and clears the active
	// flag on every other record in the same write transaction. Returns
	// ErrNotFound when the id is unknown; no flags change in that case.
	SetActive(ctx context.Context, id string, activatedAt time.Time) error

	// ClearActive clears the active flag on all records. It is a no-op
	// when nothing is active.
	ClearActive(ctx context.Context) error

	// AddMinutes adds usage minutes to a record, clamped so UsedMinutes
	// never exceeds TotalMinutes, and bumps LastUpdated. Returns the new
	// UsedMinutes value.
	AddMinutes(ctx context.Context, id string, minutes int, at time.Time) (int, error)

	// SetUsedMinutes overwrites a record's usage counter (portal
	// corrections and manual resets), clamped to [0, TotalMinutes].
	SetUsedMinutes(ctx context.Context, id string, minutes int, at time.Time) error

	// ResetAll zeroes UsedMinutes on every record in a single write
	// transaction. Active flags are untouched.
	ResetAll(ctx context.Context) error
}

// SettingsStore manages the process-wide settings values. Each setting
// lives under its own key so partial updates never rewrite unrelated
// settings.
type SettingsStore interface {
	GetResetDay(ctx context.Context) (int, error)
	SetResetDay(ctx context.Context, day int) error

	GetThresholdMinutes(ctx context.Context) (int, error)
	SetThresholdMinutes(ctx context.Context, minutes int) error

	GetNotificationsEnabled(ctx context.Context) (bool, error)
	SetNotificationsEnabled(ctx context.Context, enabled bool) error

	// GetLastResetDate returns the zero time when no reset has been
	// applied yet.
	GetLastResetDate(ctx context.Context) (time.Time, error)
	SetLastResetDate(ctx context.Context, t time.Time) error

	// GetLastNotificationTime returns the zero time when no alert has
	// been sent yet.
	GetLastNotificationTime(ctx context.Context) (time.Time, error)
	SetLastNotificationTime(ctx context.Context, t time.Time) error
}
