package cache

import (
	"context"
	"time"
)

// Cache is a best-effort key/value store. Misses and backend failures look the same.
type Cache[K comparable, V any] interface {
	Get(ctx context.Context, key K) (V, bool)
	Set(ctx context.Context, key K, value V, ttl time.Duration)
}
