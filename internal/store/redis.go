package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Compile-time interface check.
var _ SnapshotStore = (*RedisStore)(nil)

// RedisStore implements SnapshotStore backed by Redis. It serves the
// multi-instance deployment where dashboard replicas share one snapshot
// set; the single-node deployment uses SQLiteStore instead.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// redisEnvelope wraps a payload with its save time, since Redis has no
// per-key metadata.
type redisEnvelope struct {
	Payload []byte `json:"payload"`
	SavedAt int64  `json:"savedAt"` // Unix ms
}

// NewRedisStore connects to Redis at addr. Snapshots expire after ttl;
// ttl <= 0 keeps them forever.
func NewRedisStore(addr, password string, db int, ttl time.Duration) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisStore{client: client, ttl: ttl}
}

// NewRedisStoreWithClient wraps an existing client. Tests inject a mock
// through here.
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Ping verifies the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// SaveSnapshot stores the payload under the key with the configured TTL.
func (s *RedisStore) SaveSnapshot(ctx context.Context, key string, payload []byte) error {
	env, err := json.Marshal(redisEnvelope{
		Payload: payload,
		SavedAt: time.Now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("encoding snapshot %s: %w", key, err)
	}

	ttl := s.ttl
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, key, string(env), ttl).Err(); err != nil {
		return fmt.Errorf("saving snapshot %s: %w", key, err)
	}
	return nil
}

// LoadSnapshot returns the stored payload and its save time for a key.
func (s *RedisStore) LoadSnapshot(ctx context.Context, key string) ([]byte, time.Time, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, time.Time{}, ErrNotFound
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("loading snapshot %s: %w", key, err)
	}

	var env redisEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, time.Time{}, fmt.Errorf("decoding snapshot %s: %w", key, err)
	}
	return env.Payload, time.UnixMilli(env.SavedAt), nil
}

// DeleteSnapshot removes the stored payload for a key. Deleting an absent
// key is a no-op.
func (s *RedisStore) DeleteSnapshot(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("deleting snapshot %s: %w", key, err)
	}
	return nil
}
