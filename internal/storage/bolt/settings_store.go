package bolt

import (
	"context"
	"errors"
	"time"

	"github.com/goodtune/wifimeter/internal/storage"
	"go.etcd.io/bbolt"
)

type settingsStore struct {
	db *bbolt.DB
}

func (s *settingsStore) GetResetDay(ctx context.Context) (int, error) {
	return getSetting(ctx, s.db, storage.KeyResetDay, storage.DefaultResetDay)
}

func (s *settingsStore) SetResetDay(ctx context.Context, day int) error {
	return putBucketValue(ctx, s.db, bucketSettings, storage.KeyResetDay, day)
}

func (s *settingsStore) GetThresholdMinutes(ctx context.Context) (int, error) {
	return getSetting(ctx, s.db, storage.KeyThresholdValue, storage.DefaultThresholdMinutes)
}

func (s *settingsStore) SetThresholdMinutes(ctx context.Context, minutes int) error {
	return putBucketValue(ctx, s.db, bucketSettings, storage.KeyThresholdValue, minutes)
}

func (s *settingsStore) GetNotificationsEnabled(ctx context.Context) (bool, error) {
	return getSetting(ctx, s.db, storage.KeyNotificationsEnabled, storage.DefaultNotificationsEnabled)
}

func (s *settingsStore) SetNotificationsEnabled(ctx context.Context, enabled bool) error {
	return putBucketValue(ctx, s.db, bucketSettings, storage.KeyNotificationsEnabled, enabled)
}

func (s *settingsStore) GetLastResetDate(ctx context.Context) (time.Time, error) {
	value, err := getSetting(ctx, s.db, storage.KeyLastResetDate, "")
	if err != nil || value == "" {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

func (s *settingsStore) SetLastResetDate(ctx context.Context, t time.Time) error {
	return putBucketValue(ctx, s.db, bucketSettings, storage.KeyLastResetDate, t.Format(time.RFC3339))
}

func (s *settingsStore) GetLastNotificationTime(ctx context.Context) (time.Time, error) {
	ms, err := getSetting[int64](ctx, s.db, storage.KeyLastNotificationTime, 0)
	if err != nil || ms == 0 {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}

func (s *settingsStore) SetLastNotificationTime(ctx context.Context, t time.Time) error {
	return putBucketValue(ctx, s.db, bucketSettings, storage.KeyLastNotificationTime, t.UnixMilli())
}

// getSetting reads one settings key, falling back to a default when the
// key has never been written.
func getSetting[T any](ctx context.Context, db *bbolt.DB, key string, fallback T) (T, error) {
	value, err := getBucketValue[T](ctx, db, bucketSettings, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fallback, nil
		}
		return fallback, err
	}
	return *value, nil
}
