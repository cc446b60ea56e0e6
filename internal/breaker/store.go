package breaker

import (
	"context"
	"time"
)

// Store is a TTL-capable key-value store holding breaker state. Every
// method must be atomic with respect to concurrent callers on the same key.
type Store interface {
	// Get returns the live value for key; ok is false when the key is
	// absent or its TTL has passed.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Incr increments key and returns the new value. The TTL is applied
	// only when the increment creates the key; zero means no expiry.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// CompareAndSwap sets key to next only if it currently holds old.
	// An empty old matches an absent key.
	CompareAndSwap(ctx context.Context, key, old, next string) (bool, error)
	// Apply writes sets and removes dels as one unit.
	Apply(ctx context.Context, sets map[string]string, dels []string) error
}
