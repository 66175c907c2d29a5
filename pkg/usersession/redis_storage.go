package usersession

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KV is the Redis surface RedisStorage needs; *pkg/redis.Client satisfies it.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Namespaced(key string) string
}

// RedisStorage keeps sessions in Redis so any portal instance can serve a tab.
type RedisStorage struct {
	kv  KV
	ttl time.Duration
}

// NewRedisStorage stores entries with the given ttl; zero keeps them forever.
func NewRedisStorage(kv KV, ttl time.Duration) (*RedisStorage, error) {
	if kv == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &RedisStorage{kv: kv, ttl: ttl}, nil
}

func (r *RedisStorage) Load(ctx context.Context, key string) ([]byte, error) {
	raw, err := r.kv.Get(ctx, r.kv.Namespaced(key))
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %q: %w", key, err)
	}
	return []byte(raw), nil
}

func (r *RedisStorage) Save(ctx context.Context, key string, data []byte) error {
	if err := r.kv.Set(ctx, r.kv.Namespaced(key), string(data), r.ttl); err != nil {
		return fmt.Errorf("save session %q: %w", key, err)
	}
	return nil
}

func (r *RedisStorage) Remove(ctx context.Context, key string) error {
	if err := r.kv.Del(ctx, r.kv.Namespaced(key)); err != nil {
		return fmt.Errorf("remove session %q: %w", key, err)
	}
	return nil
}
