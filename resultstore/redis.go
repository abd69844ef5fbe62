package resultstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisTTL = 10 * time.Minute

// RedisStore provides a Redis-backed implementation of the Store interface.
// It uses JSON serialization and relies on Redis TTL for expiry, making it
// suitable for multi-instance deployments where the instance answering a
// poll may differ from the one that processed the audio.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithTTL sets the time-to-live for stored results.
// Default is 10 minutes. Set to 0 for no expiration.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for Redis keys.
// Default is "voiceflow".
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedisStore creates a new Redis-backed result store.
//
// Example:
//
//	store := NewRedisStore(
//	    redis.NewClient(&redis.Options{Addr: "localhost:6379"}),
//	    WithTTL(10 * time.Minute),
//	)
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	store := &RedisStore{
		client: client,
		ttl:    defaultRedisTTL,
		prefix: "voiceflow",
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Load retrieves a result by request ID from Redis.
func (s *RedisStore) Load(ctx context.Context, requestID string) (*Result, error) {
	if requestID == "" {
		return nil, ErrInvalidID
	}

	data, err := s.client.Get(ctx, s.key(requestID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return &result, nil
}

// Save persists a result to Redis with TTL.
func (s *RedisStore) Save(ctx context.Context, result *Result) error {
	if result == nil {
		return ErrInvalidResult
	}
	if result.RequestID == "" {
		return ErrInvalidID
	}

	stored := *result
	stored.UpdatedAt = time.Now()
	data, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	if err := s.client.Set(ctx, s.key(result.RequestID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Delete removes a result by request ID.
func (s *RedisStore) Delete(ctx context.Context, requestID string) error {
	if requestID == "" {
		return ErrInvalidID
	}

	deleted, err := s.client.Del(ctx, s.key(requestID)).Result()
	if err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	if deleted == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) key(requestID string) string {
	return fmt.Sprintf("%s:result:%s", s.prefix, requestID)
}
