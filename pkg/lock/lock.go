// Package lock provides per-key mutual exclusion, either in process or across
// replicas through Redis.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrNotAcquired is returned when the lock stayed busy for the whole wait window.
var ErrNotAcquired = errors.New("lock not acquired")

// Release frees a held lock. Calling it more than once is a no-op.
type Release func(ctx context.Context) error

// Locker hands out exclusive ownership of a key.
type Locker interface {
	Acquire(ctx context.Context, key string) (Release, error)
}

const defaultRetryInterval = 50 * time.Millisecond
