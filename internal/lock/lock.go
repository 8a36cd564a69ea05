// Package lock provides short-lived per-key mutual exclusion for request handlers.
package lock

import (
	"context"
	"errors"
	"time"
)

var ErrNotAcquired = errors.New("lock not acquired")

// Locker acquires an exclusive lease on key for at most ttl.
// The returned release func is safe to call more than once.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}
