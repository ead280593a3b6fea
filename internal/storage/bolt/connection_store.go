package bolt

import (
	"context"
	"sort"
	"time"

	"github.com/goodtune/wifimeter/internal/storage"
	"go.etcd.io/bbolt"
)

type connectionStore struct {
	db *bbolt.DB
}

func (s *connectionStore) Get(ctx context.Context, id string) (*storage.Connection, error) {
	return getBucketValue[storage.Connection](ctx, s.db, bucketConnections, id)
}

func (s *connectionStore) List(ctx context.Context) ([]storage.Connection, error) {
	conns, err := listBucket[storage.Connection](ctx, s.db, bucketConnections)
	if err != nil {
		return nil, err
	}
	sort.Slice(conns, func(i, j int) bool { return conns[i].Position < conns[j].Position })
	return conns, nil
}

func (s *connectionStore) Upsert(ctx context.Context, conn storage.Connection) error {
	return putBucketValue(ctx, s.db, bucketConnections, conn.ID, conn)
}

func (s *connectionStore) Delete(ctx context.Context, id string) error {
	return deleteBucketValue(ctx, s.db, bucketConnections, id)
}

func (s *connectionStore) SetActive(ctx context.Context, id string, activatedAt time.Time) error {
	return s.updateAll(ctx, func(b *bbolt.Bucket) error {
		if b.Get([]byte(id)) == nil {
			return storage.ErrNotFound
		}
		return forEachConnection(b, func(conn *storage.Connection) (bool, error) {
			wasActive := conn.Active
			conn.Active = conn.ID == id
			if conn.Active {
				conn.LastUpdated = activatedAt
			}
			return wasActive != conn.Active || conn.Active, nil
		})
	})
}

func (s *connectionStore) ClearActive(ctx context.Context) error {
	return s.updateAll(ctx, func(b *bbolt.Bucket) error {
		return forEachConnection(b, func(conn *storage.Connection) (bool, error) {
			if !conn.Active {
				return false, nil
			}
			conn.Active = false
			return true, nil
		})
	})
}

func (s *connectionStore) AddMinutes(ctx context.Context, id string, minutes int, at time.Time) (int, error) {
	var used int
	err := s.updateAll(ctx, func(b *bbolt.Bucket) error {
		value := b.Get([]byte(id))
		if value == nil {
			return storage.ErrNotFound
		}
		var conn storage.Connection
		if err := unmarshal(value, &conn); err != nil {
			return err
		}
		conn.UsedMinutes = clamp(conn.UsedMinutes+minutes, conn.TotalMinutes)
		conn.LastUpdated = at
		used = conn.UsedMinutes
		data, err := marshal(conn)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), data)
	})
	return used, err
}

func (s *connectionStore) SetUsedMinutes(ctx context.Context, id string, minutes int, at time.Time) error {
	return s.updateAll(ctx, func(b *bbolt.Bucket) error {
		value := b.Get([]byte(id))
		if value == nil {
			return storage.ErrNotFound
		}
		var conn storage.Connection
		if err := unmarshal(value, &conn); err != nil {
			return err
		}
		conn.UsedMinutes = clamp(minutes, conn.TotalMinutes)
		conn.LastUpdated = at
		data, err := marshal(conn)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), data)
	})
}

func (s *connectionStore) ResetAll(ctx context.Context) error {
	return s.updateAll(ctx, func(b *bbolt.Bucket) error {
		return forEachConnection(b, func(conn *storage.Connection) (bool, error) {
			if conn.UsedMinutes == 0 {
				return false, nil
			}
			conn.UsedMinutes = 0
			return true, nil
		})
	})
}

func (s *connectionStore) updateAll(ctx context.Context, fn func(b *bbolt.Bucket) error) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketConnections))
		if b == nil {
			return storage.ErrNotFound
		}
		return fn(b)
	})
}

// forEachConnection rewrites every record for which fn reports a change.
// Writes happen after the cursor pass so the iteration never sees its own
// mutations.
func forEachConnection(b *bbolt.Bucket, fn func(conn *storage.Connection) (bool, error)) error {
	changed := make(map[string][]byte)
	err := b.ForEach(func(k, v []byte) error {
		var conn storage.Connection
		if err := unmarshal(v, &conn); err != nil {
			return err
		}
		dirty, err := fn(&conn)
		if err != nil {
			return err
		}
		if !dirty {
			return nil
		}
		data, err := marshal(conn)
		if err != nil {
			return err
		}
		changed[string(k)] = data
		return nil
	})
	if err != nil {
		return err
	}
	for k, data := range changed {
		if err := b.Put([]byte(k), data); err != nil {
			return err
		}
	}
	return nil
}

func clamp(minutes, total int) int {
	if minutes < 0 {
		return 0
	}
	if minutes > total {
		return total
	}
	return minutes
}
