package redis

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goodtune/wifimeter/internal/storage"
	"github.com/redis/go-redis/v9"
)

type connectionStore struct {
	client *redis.Client
}

func (s *connectionStore) Get(ctx context.Context, id string) (*storage.Connection, error) {
	data, err := s.client.HGetAll(ctx, connKey(id)).Result()
	if err != nil {
		return nil, err
	}
	return parseConnection(data)
}

func (s *connectionStore) List(ctx context.Context) ([]storage.Connection, error) {
	ids, err := s.client.SMembers(ctx, connIDsKey).Result()
	if err != nil {
		return nil, err
	}

	conns := make([]storage.Connection, 0, len(ids))
	for _, id := range ids {
		conn, err := s.Get(ctx, id)
		if err != nil {
			// A member without a hash means a delete raced a list;
			// skip the stale id.
			if err == storage.ErrNotFound {
				continue
			}
			return nil, err
		}
		conns = append(conns, *conn)
	}

	sort.Slice(conns, func(i, j int) bool { return conns[i].Position < conns[j].Position })
	return conns, nil
}

func (s *connectionStore) Upsert(ctx context.Context, conn storage.Connection) error {
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, connKey(conn.ID),
		"id", conn.ID,
		"name", conn.Name,
		"username", conn.Username,
		"password", conn.Password,
		"used_minutes", strconv.Itoa(conn.UsedMinutes),
		"total_minutes", strconv.Itoa(conn.TotalMinutes),
		"active", "0",
		"last_updated", formatTime(conn.LastUpdated),
		"position", strconv.Itoa(conn.Position),
	)
	pipe.SAdd(ctx, connIDsKey, conn.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	// Active-flag changes go through the activation script so the
	// previously active hash is cleared and at most one record stays
	// active.
	if conn.Active {
		return s.SetActive(ctx, conn.ID, conn.LastUpdated)
	}

	// Drop a stale pointer when the record being written was the active
	// one and the caller flipped the flag off.
	current, err := s.client.Get(ctx, activeKey).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	if current == conn.ID {
		return s.client.Del(ctx, activeKey).Err()
	}
	return nil
}

func (s *connectionStore) Delete(ctx context.Context, id string) error {
	exists, err := s.client.Exists(ctx, connKey(id)).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return storage.ErrNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, connKey(id))
	pipe.SRem(ctx, connIDsKey, id)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return err
	}

	// Drop the active pointer if it referenced the deleted record.
	current, err := s.client.Get(ctx, activeKey).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	if current == id {
		return s.client.Del(ctx, activeKey).Err()
	}
	return nil
}

func (s *connectionStore) SetActive(ctx context.Context, id string, activatedAt time.Time) error {
	script := redis.NewScript(setActiveScript)
	keys := []string{connKey(id), activeKey}
	err := script.Run(ctx, s.client, keys, connKeyPrefix, id, formatTime(activatedAt)).Err()
	return mapScriptError(err)
}

func (s *connectionStore) ClearActive(ctx context.Context) error {
	script := redis.NewScript(clearActiveScript)
	return script.Run(ctx, s.client, []string{activeKey}, connKeyPrefix).Err()
}

func (s *connectionStore) AddMinutes(ctx context.Context, id string, minutes int, at time.Time) (int, error) {
	script := redis.NewScript(addMinutesScript)
	used, err := script.Run(ctx, s.client, []string{connKey(id)}, minutes, formatTime(at)).Int()
	if err != nil {
		return 0, mapScriptError(err)
	}
	return used, nil
}

func (s *connectionStore) SetUsedMinutes(ctx context.Context, id string, minutes int, at time.Time) error {
	conn, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if minutes < 0 {
		minutes = 0
	}
	if minutes > conn.TotalMinutes {
		minutes = conn.TotalMinutes
	}
	return s.client.HSet(ctx, connKey(id),
		"used_minutes", strconv.Itoa(minutes),
		"last_updated", formatTime(at),
	).Err()
}

func (s *connectionStore) ResetAll(ctx context.Context) error {
	script := redis.NewScript(resetAllScript)
	return script.Run(ctx, s.client, []string{connIDsKey}, connKeyPrefix).Err()
}

func mapScriptError(err error) error {
	if err != nil && strings.Contains(err.Error(), "NOT_FOUND") {
		return storage.ErrNotFound
	}
	return err
}
