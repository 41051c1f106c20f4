package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore backs the middleware with a shared Redis instance so replay
// works across service replicas.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	trimmed := strings.TrimSpace(prefix)
	if trimmed == "" {
		trimmed = "idempotency"
	}
	trimmed = strings.TrimSuffix(trimmed, ":")
	return &RedisStore{client: client, prefix: trimmed}
}

func (s *RedisStore) responseKey(key string) string {
	return s.prefix + ":response:" + key
}

func (s *RedisStore) lockKey(key string) string {
	return s.prefix + ":lock:" + key
}

func (s *RedisStore) GetCachedResponse(ctx context.Context, key string) (*CachedResponse, error) {
	raw, err := s.client.Get(ctx, s.responseKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var cached CachedResponse
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil, err
	}
	return &cached, nil
}

func (s *RedisStore) SaveCachedResponse(ctx context.Context, key string, resp *CachedResponse, ttl time.Duration) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.responseKey(key), raw, ttl).Err()
}

func (s *RedisStore) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, s.lockKey(key), "1", ttl).Result()
}

func (s *RedisStore) ReleaseLock(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.lockKey(key)).Err()
}
