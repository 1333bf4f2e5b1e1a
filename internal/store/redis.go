package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ManuelEspejo/DreamDX-AI/internal/model/dream"
)

const (
	sessionKeyPrefix = "dream:session:"
	ownerKeyPrefix   = "dream:owner:"

	// Default TTL for session keys (30 days)
	defaultTTL = 30 * 24 * time.Hour
)

// redisStore implements Store using Redis with optimistic locking via
// WATCH/MULTI/EXEC. Each session lives in one JSON value, so readers
// never observe a turn without its version bump. A per-owner set
// indexes session IDs for listing.
type redisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func newRedisStore(client *redis.Client, ttl time.Duration) *redisStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &redisStore{
		client: client,
		ttl:    ttl,
	}
}

func (s *redisStore) key(id string) string {
	return sessionKeyPrefix + id
}

func (s *redisStore) ownerKey(ownerID string) string {
	return ownerKeyPrefix + ownerID
}

// Create implements Store.
// Creates the session with Version 1 and registers it in the owner index.
func (s *redisStore) Create(ctx context.Context, sess *dream.Session) error {
	key := s.key(sess.ID)
	now := time.Now().UTC()
	sess.CreatedAt = now
	sess.UpdatedAt = now
	sess.Version = 1

	val, err := json.Marshal(sess)
	if err != nil {
		return err
	}

	ok, err := s.client.SetNX(ctx, key, val, s.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadyExists
	}

	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, s.ownerKey(sess.OwnerID), sess.ID)
		pipe.Expire(ctx, s.ownerKey(sess.OwnerID), s.ttl)
		return nil
	})
	return err
}

// Get implements Store.
// Returns nil if the session is not found (not an error).
// Refreshes TTL on every read.
func (s *redisStore) Get(ctx context.Context, id string) (*dream.Session, error) {
	key := s.key(id)
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var sess dream.Session
	if err := json.Unmarshal([]byte(val), &sess); err != nil {
		return nil, err
	}

	_ = s.client.Expire(ctx, key, s.ttl).Err()

	return &sess, nil
}

// Update implements Store.
// Verifies Version matches under WATCH, increments it, updates
// UpdatedAt, and persists in one transaction. Returns ErrVersionConflict
// on a mismatch and ErrNotFound if the session does not exist.
func (s *redisStore) Update(ctx context.Context, sess *dream.Session) error {
	key := s.key(sess.ID)

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, key).Result()
		if err == redis.Nil {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		var stored dream.Session
		if err := json.Unmarshal([]byte(val), &stored); err != nil {
			return err
		}

		if stored.Version != sess.Version {
			return ErrVersionConflict
		}

		// Marshal a bumped copy; the caller's session changes only
		// once the transaction commits, so a failed EXEC leaves it
		// untouched like the memory driver does.
		next := *sess
		next.Version++
		next.UpdatedAt = time.Now().UTC()

		newVal, err := json.Marshal(&next)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newVal, s.ttl)
			return nil
		})
		if err != nil {
			return err
		}

		sess.Version = next.Version
		sess.UpdatedAt = next.UpdatedAt
		return nil
	}, key)

	// A failed EXEC means another writer touched the key between
	// WATCH and EXEC, which is a lost-update race by definition.
	if errors.Is(err, redis.TxFailedErr) {
		return ErrVersionConflict
	}
	return err
}

// ListByOwner implements Store.
// Reads the owner index and fetches each session; IDs whose keys have
// expired are pruned from the index on the way.
func (s *redisStore) ListByOwner(ctx context.Context, ownerID string) ([]*dream.Session, error) {
	ids, err := s.client.SMembers(ctx, s.ownerKey(ownerID)).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}

	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	sessions := make([]*dream.Session, 0, len(vals))
	var stale []interface{}
	for i, val := range vals {
		raw, ok := val.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var sess dream.Session
		if err := json.Unmarshal([]byte(raw), &sess); err != nil {
			return nil, err
		}
		sessions = append(sessions, &sess)
	}

	if len(stale) > 0 {
		_ = s.client.SRem(ctx, s.ownerKey(ownerID), stale...).Err()
	}

	return sessions, nil
}

// Delete implements Store.
func (s *redisStore) Delete(ctx context.Context, id string) error {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if _, err := s.client.Del(ctx, s.key(id)).Result(); err != nil {
		return err
	}
	if sess != nil {
		_ = s.client.SRem(ctx, s.ownerKey(sess.OwnerID), id).Err()
	}
	return nil
}

// Close implements Store.
func (s *redisStore) Close() error {
	return s.client.Close()
}
