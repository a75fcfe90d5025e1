package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// redisStore defines the operations used by RedisLocker.
type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	DelIfEquals(ctx context.Context, key, value string) (bool, error)
}

// keyBuilder namespaces raw lock keys.
type keyBuilder interface {
	LockKey(scope, id string) string
}

// RedisLocker implements Locker using Redis SETNX with an owner token and TTL.
type RedisLocker struct {
	client redisStore
	keys   keyBuilder
	scope  string
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
}

// RedisOptions tunes RedisLocker. Wait of zero means a single attempt.
type RedisOptions struct {
	Scope         string
	TTL           time.Duration
	Wait          time.Duration
	RetryInterval time.Duration
}

// NewRedisLocker constructs a Redis-backed locker. client usually is a
// *pkg/redis.Client, which satisfies both store and key builder.
func NewRedisLocker(client redisStore, keys keyBuilder, opts RedisOptions) (*RedisLocker, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if keys == nil {
		return nil, errors.New("lock key builder required")
	}
	if opts.Scope == "" {
		return nil, errors.New("lock scope is required")
	}
	if opts.TTL <= 0 {
		return nil, errors.New("lock ttl must be positive")
	}
	retry := opts.RetryInterval
	if retry <= 0 {
		retry = defaultRetryInterval
	}
	return &RedisLocker{
		client: client,
		keys:   keys,
		scope:  opts.Scope,
		ttl:    opts.TTL,
		wait:   opts.Wait,
		retry:  retry,
	}, nil
}

// Acquire polls SETNX until it wins or the wait window closes.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (Release, error) {
	fullKey := l.keys.LockKey(l.scope, key)
	owner := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, fullKey, owner, l.ttl)
		if err != nil {
			return nil, fmt.Errorf("setnx: %w", err)
		}
		if ok {
			return l.releaser(fullKey, owner), nil
		}
		if l.wait <= 0 || time.Now().After(deadline) {
			return nil, ErrNotAcquired
		}
		timer := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// releaser frees the lock only if the owner value still matches, so an
// expired lock taken over by another holder is left alone. The check and the
// delete run as one server-side step.
func (l *RedisLocker) releaser(key, owner string) Release {
	var once sync.Once
	var releaseErr error
	return func(ctx context.Context) error {
		once.Do(func() {
			if _, err := l.client.DelIfEquals(ctx, key, owner); err != nil {
				releaseErr = fmt.Errorf("release lock: %w", err)
			}
		})
		return releaseErr
	}
}
