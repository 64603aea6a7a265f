package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the requested key was not found in the Redis tier.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates a Redis tier entry is corrupted.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// storeEntry is the JSON envelope written to Redis.
type storeEntry struct {
	Data     json.RawMessage `json:"data"`
	StoredAt time.Time       `json:"stored_at"`
	TTL      time.Duration   `json:"ttl"`
}

// RedisStore is an optional write-through tier that shares cached resource
// records across processes. Redis handles expiry itself via the TTL set on
// each key, so reads never observe expired entries.
type RedisStore struct {
	redis  *redis.Client
	prefix string
}

// NewRedisStore creates a store using the given Redis client. Keys are
// prefixed so multiple deployments can share one Redis instance.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if client == nil {
		panic("redis client cannot be nil")
	}
	if prefix == "" {
		prefix = "ledgerkit"
	}
	return &RedisStore{
		redis:  client,
		prefix: prefix,
	}
}

func (s *RedisStore) redisKey(key string) string {
	return s.prefix + ":" + key
}

// Get retrieves the payload stored under key.
// Returns ErrCacheMiss when the key does not exist or has expired.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.redis.Get(ctx, s.redisKey(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrCacheMiss
		}
		redisErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry storeEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		redisErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	redisHits.Inc()
	return entry.Data, nil
}

// Set stores payload under key with the given TTL. Zero or negative TTLs are
// not stored.
func (s *RedisStore) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(storeEntry{
		Data:     payload,
		StoredAt: time.Now(),
		TTL:      ttl,
	})
	if err != nil {
		redisErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := s.redis.Set(ctx, s.redisKey(key), data, ttl).Err(); err != nil {
		redisErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes the entry stored under key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, s.redisKey(key)).Err(); err != nil {
		redisErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// UpdateTTL extends or shortens the remaining lifetime of an existing entry.
func (s *RedisStore) UpdateTTL(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.redis.Expire(ctx, s.redisKey(key), ttl).Err(); err != nil {
		redisErrors.WithLabelValues("expire").Inc()
		return fmt.Errorf("redis expire: %w", err)
	}
	return nil
}

// Ping checks connectivity to the Redis tier, for health checks.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx).Err()
}
