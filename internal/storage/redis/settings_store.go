package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/goodtune/wifimeter/internal/storage"
	"github.com/redis/go-redis/v9"
)

type settingsStore struct {
	client *redis.Client
}

func (s *settingsStore) GetResetDay(ctx context.Context) (int, error) {
	return s.getInt(ctx, storage.KeyResetDay, storage.DefaultResetDay)
}

func (s *settingsStore) SetResetDay(ctx context.Context, day int) error {
	return s.client.Set(ctx, settingKey(storage.KeyResetDay), day, 0).Err()
}

func (s *settingsStore) GetThresholdMinutes(ctx context.Context) (int, error) {
	return s.getInt(ctx, storage.KeyThresholdValue, storage.DefaultThresholdMinutes)
}

func (s *settingsStore) SetThresholdMinutes(ctx context.Context, minutes int) error {
	return s.client.Set(ctx, settingKey(storage.KeyThresholdValue), minutes, 0).Err()
}

func (s *settingsStore) GetNotificationsEnabled(ctx context.Context) (bool, error) {
	value, err := s.client.Get(ctx, settingKey(storage.KeyNotificationsEnabled)).Result()
	if err == redis.Nil {
		return storage.DefaultNotificationsEnabled, nil
	}
	if err != nil {
		return false, err
	}
	return strconv.ParseBool(value)
}

func (s *settingsStore) SetNotificationsEnabled(ctx context.Context, enabled bool) error {
	return s.client.Set(ctx, settingKey(storage.KeyNotificationsEnabled), strconv.FormatBool(enabled), 0).Err()
}

func (s *settingsStore) GetLastResetDate(ctx context.Context) (time.Time, error) {
	value, err := s.client.Get(ctx, settingKey(storage.KeyLastResetDate)).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, value)
}

func (s *settingsStore) SetLastResetDate(ctx context.Context, t time.Time) error {
	return s.client.Set(ctx, settingKey(storage.KeyLastResetDate), t.Format(time.RFC3339), 0).Err()
}

func (s *settingsStore) GetLastNotificationTime(ctx context.Context) (time.Time, error) {
	ms, err := s.getInt64(ctx, storage.KeyLastNotificationTime, 0)
	if err != nil || ms == 0 {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}

func (s *settingsStore) SetLastNotificationTime(ctx context.Context, t time.Time) error {
	return s.client.Set(ctx, settingKey(storage.KeyLastNotificationTime), t.UnixMilli(), 0).Err()
}

func (s *settingsStore) getInt(ctx context.Context, key string, fallback int) (int, error) {
	value, err := s.client.Get(ctx, settingKey(key)).Result()
	if err == redis.Nil {
		return fallback, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(value)
}

func (s *settingsStore) getInt64(ctx context.Context, key string, fallback int64) (int64, error) {
	value, err := s.client.Get(ctx, settingKey(key)).Result()
	if err == redis.Nil {
		return fallback, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(value, 10, 64)
}
