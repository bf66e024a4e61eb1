package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrLockNotAcquired is returned by WithLock when the wait budget runs out.
var ErrLockNotAcquired = errors.New("lock not acquired")

const lockPollInterval = 50 * time.Millisecond

// WithLock runs fn while holding a Redis lock on key. It polls for the lock
// for at most wait, and the lock expires after ttl if the holder dies.
func WithLock(ctx context.Context, c Cache, key string, ttl, wait time.Duration, fn func(ctx context.Context) error) error {
	token := uuid.NewString()
	deadline := time.Now().Add(wait)
	for {
		ok, err := c.TryLock(ctx, key, token, ttl)
		if err != nil {
			return err
		}
		if ok {
			break
		}
		if !time.Now().Before(deadline) {
			return ErrLockNotAcquired
		}
		timer := time.NewTimer(lockPollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	defer func() {
		// Release on a fresh context so a cancelled caller still frees the lock.
		unlockCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_, _ = c.Unlock(unlockCtx, key, token)
	}()
	return fn(ctx)
}
