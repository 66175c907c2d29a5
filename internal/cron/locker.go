package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultLeaseTTL = 30 * time.Minute

// Unlock gives a held lease back.
type Unlock func(ctx context.Context) error

// Locker hands out the single lease that lets one worker replica run a tick.
type Locker interface {
	TryLock(ctx context.Context) (Unlock, bool, error)
}

type leaseStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// RedisLocker keeps the lease under one key with a TTL so a crashed holder
// cannot wedge the schedule.
type RedisLocker struct {
	store leaseStore
	key   string
	ttl   time.Duration
}

func NewRedisLocker(store leaseStore, key string, ttl time.Duration) (*RedisLocker, error) {
	switch {
	case store == nil:
		return nil, errors.New("lease store required")
	case key == "":
		return nil, errors.New("lease key required")
	}
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}
	return &RedisLocker{store: store, key: key, ttl: ttl}, nil
}

// TryLock never blocks. When another holder owns the key it reports ok=false.
func (l *RedisLocker) TryLock(ctx context.Context) (Unlock, bool, error) {
	token := uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return nil, false, fmt.Errorf("claim %s: %w", l.key, err)
	}
	if !ok {
		return nil, false, nil
	}
	return func(ctx context.Context) error { return l.giveBack(ctx, token) }, true, nil
}

// giveBack deletes the key only while it still carries our token. An expired
// lease picked up by another replica is left alone.
func (l *RedisLocker) giveBack(ctx context.Context, token string) error {
	current, err := l.store.Get(ctx, l.key)
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", l.key, err)
	}
	if current != token {
		return nil
	}
	if err := l.store.Del(ctx, l.key); err != nil {
		return fmt.Errorf("drop %s: %w", l.key, err)
	}
	return nil
}
