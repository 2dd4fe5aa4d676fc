package common

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bsm/redislock"
)

var ErrLockNotObtained = errors.New("lock not obtained")

type RedisLockOptions struct {
	TtlS    int
	Retries int
}

// RedisLock tracks held locks by key so callers can release by name.
type RedisLock struct {
	client *redislock.Client
	mu     sync.Mutex
	held   map[string]*redislock.Lock
}

func NewRedisLock(rdb *RedisClient) *RedisLock {
	return &RedisLock{
		client: redislock.New(rdb.UniversalClient),
		held:   make(map[string]*redislock.Lock),
	}
}

func (l *RedisLock) Acquire(ctx context.Context, key string, opts RedisLockOptions) error {
	ttl := time.Duration(opts.TtlS) * time.Second
	if ttl <= 0 {
		ttl = 10 * time.Second
	}

	var strategy redislock.RetryStrategy = redislock.NoRetry()
	if opts.Retries > 0 {
		strategy = redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), opts.Retries)
	}

	lock, err := l.client.Obtain(ctx, key, ttl, &redislock.Options{RetryStrategy: strategy})
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return ErrLockNotObtained
		}
		return err
	}

	l.mu.Lock()
	l.held[key] = lock
	l.mu.Unlock()
	return nil
}

func (l *RedisLock) Release(key string) error {
	l.mu.Lock()
	lock, ok := l.held[key]
	delete(l.held, key)
	l.mu.Unlock()

	if !ok {
		return nil
	}
	err := lock.Release(context.Background())
	if errors.Is(err, redislock.ErrLockNotHeld) {
		return nil
	}
	return err
}
