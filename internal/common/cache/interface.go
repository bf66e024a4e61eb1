package cache

import (
	"context"
	"time"
)

// Cache is the subset of Redis operations the judge relies on.
type Cache interface {
	// Get returns "" with a nil error on a miss
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error

	// TryLock sets key to token only if absent
	TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	// Unlock deletes key only while it still holds token
	Unlock(ctx context.Context, key, token string) (bool, error)

	Ping(ctx context.Context) error
	Close() error
}
