package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a key is not found in cache
	ErrNotFound = errors.New("cache: key not found")
)

// Cache defines the interface for cache operations. Values are strings:
// callers store decimal base-unit amounts and JSON blobs, both of which
// round-trip cleanly through Redis.
type Cache interface {
	// Get retrieves a value from cache
	Get(ctx context.Context, key string) (string, error)

	// Set stores a value in cache with TTL
	Set(ctx context.Context, key string, value string, ttl time.Duration) error

	// Delete removes a key from cache
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes all keys with the given prefix
	DeletePrefix(ctx context.Context, prefix string) error

	// Close closes the cache connection
	Close() error
}
