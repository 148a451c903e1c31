package cache

import (
	"context"
	"time"
)

// LayeredCache implements a two-tier cache (L1: memory, L2: Redis).
// Balance reads hit L1 almost always; L2 keeps reads warm across restarts.
type LayeredCache struct {
	l1 Cache
	l2 Cache
}

// NewLayeredCache creates a new layered cache. Either layer may be nil.
func NewLayeredCache(l1, l2 Cache) *LayeredCache {
	return &LayeredCache{
		l1: l1,
		l2: l2,
	}
}

// Get retrieves a value from cache (L1, then L2, then miss)
func (lc *LayeredCache) Get(ctx context.Context, key string) (string, error) {
	if lc.l1 != nil {
		if val, err := lc.l1.Get(ctx, key); err == nil {
			return val, nil
		}
	}

	if lc.l2 != nil {
		val, err := lc.l2.Get(ctx, key)
		if err == nil {
			// Backfill L1 on L2 hit
			if lc.l1 != nil {
				_ = lc.l1.Set(ctx, key, val, 1*time.Minute)
			}
			return val, nil
		}
	}

	return "", ErrNotFound
}

// Set stores a value in both cache layers (write-through)
func (lc *LayeredCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	var l1Err, l2Err error

	if lc.l1 != nil {
		l1TTL := ttl
		if ttl > 1*time.Minute {
			l1TTL = 1 * time.Minute
		}
		l1Err = lc.l1.Set(ctx, key, value, l1TTL)
	}

	if lc.l2 != nil {
		l2Err = lc.l2.Set(ctx, key, value, ttl)
	}

	// Error only if both layers failed
	if l1Err != nil && l2Err != nil {
		return l2Err
	}

	return nil
}

// Delete removes a key from both cache layers
func (lc *LayeredCache) Delete(ctx context.Context, key string) error {
	var l1Err, l2Err error

	if lc.l1 != nil {
		l1Err = lc.l1.Delete(ctx, key)
	}

	if lc.l2 != nil {
		l2Err = lc.l2.Delete(ctx, key)
	}

	if l1Err != nil {
		return l1Err
	}
	return l2Err
}

// DeletePrefix removes all keys with the given prefix from both layers.
// Used to drop an account's balances when the chain advances or the
// active account changes.
func (lc *LayeredCache) DeletePrefix(ctx context.Context, prefix string) error {
	var l1Err, l2Err error

	if lc.l1 != nil {
		l1Err = lc.l1.DeletePrefix(ctx, prefix)
	}

	if lc.l2 != nil {
		l2Err = lc.l2.DeletePrefix(ctx, prefix)
	}

	if l1Err != nil {
		return l1Err
	}
	return l2Err
}

// Close closes both cache layers
func (lc *LayeredCache) Close() error {
	var l1Err, l2Err error

	if lc.l1 != nil {
		l1Err = lc.l1.Close()
	}

	if lc.l2 != nil {
		l2Err = lc.l2.Close()
	}

	if l1Err != nil {
		return l1Err
	}
	return l2Err
}
