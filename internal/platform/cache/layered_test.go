package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryCacheSetGet(t *testing.T) {
	c := NewMemoryCache(10)
	defer c.Close()

	ctx := context.Background()

	if err := c.Set(ctx, "balance:0xabc:ETH", "1000000000000000000", time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	got, err := c.Get(ctx, "balance:0xabc:ETH")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got != "1000000000000000000" {
		t.Fatalf("unexpected value: %q", got)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache(10)
	defer c.Close()

	ctx := context.Background()

	if err := c.Set(ctx, "k", "v", 10*time.Millisecond); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after expiry, got %v", err)
	}
}

func TestMemoryCacheLRUEviction(t *testing.T) {
	c := NewMemoryCache(2)
	defer c.Close()

	ctx := context.Background()

	_ = c.Set(ctx, "a", "1", time.Minute)
	_ = c.Set(ctx, "b", "2", time.Minute)

	// Touch "a" so "b" becomes the eviction candidate
	if _, err := c.Get(ctx, "a"); err != nil {
		t.Fatalf("get failed: %v", err)
	}

	_ = c.Set(ctx, "c", "3", time.Minute)

	if _, err := c.Get(ctx, "b"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected b to be evicted, got %v", err)
	}
	if _, err := c.Get(ctx, "a"); err != nil {
		t.Fatalf("expected a to survive: %v", err)
	}
}

func TestMemoryCacheDeletePrefix(t *testing.T) {
	c := NewMemoryCache(10)
	defer c.Close()

	ctx := context.Background()

	_ = c.Set(ctx, "balance:0xabc:ETH", "1", time.Minute)
	_ = c.Set(ctx, "balance:0xabc:USDC", "2", time.Minute)
	_ = c.Set(ctx, "balance:0xdef:ETH", "3", time.Minute)

	if err := c.DeletePrefix(ctx, "balance:0xabc:"); err != nil {
		t.Fatalf("delete prefix failed: %v", err)
	}

	if _, err := c.Get(ctx, "balance:0xabc:ETH"); !errors.Is(err, ErrNotFound) {
		t.Fatal("expected prefixed key to be removed")
	}
	if _, err := c.Get(ctx, "balance:0xdef:ETH"); err != nil {
		t.Fatalf("expected other account's key to survive: %v", err)
	}
}

func TestLayeredCacheL2Backfill(t *testing.T) {
	l1 := NewMemoryCache(10)
	l2 := NewMemoryCache(10)
	lc := NewLayeredCache(l1, l2)
	defer lc.Close()

	ctx := context.Background()

	// Seed only L2
	if err := l2.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	got, err := lc.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got != "v" {
		t.Fatalf("unexpected value: %q", got)
	}

	// L1 must now hold the backfilled value
	if _, err := l1.Get(ctx, "k"); err != nil {
		t.Fatalf("expected L1 backfill: %v", err)
	}
}

func TestLayeredCacheMiss(t *testing.T) {
	lc := NewLayeredCache(NewMemoryCache(10), nil)
	defer lc.Close()

	if _, err := lc.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLayeredCacheWriteThrough(t *testing.T) {
	l1 := NewMemoryCache(10)
	l2 := NewMemoryCache(10)
	lc := NewLayeredCache(l1, l2)
	defer lc.Close()

	ctx := context.Background()

	if err := lc.Set(ctx, "k", "v", time.Hour); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	if _, err := l1.Get(ctx, "k"); err != nil {
		t.Fatalf("expected L1 write: %v", err)
	}
	if _, err := l2.Get(ctx, "k"); err != nil {
		t.Fatalf("expected L2 write: %v", err)
	}
}

func TestLayeredCacheDeletePrefixBothLayers(t *testing.T) {
	l1 := NewMemoryCache(10)
	l2 := NewMemoryCache(10)
	lc := NewLayeredCache(l1, l2)
	defer lc.Close()

	ctx := context.Background()

	_ = lc.Set(ctx, "balance:0xabc:ETH", "1", time.Minute)

	if err := lc.DeletePrefix(ctx, "balance:0xabc:"); err != nil {
		t.Fatalf("delete prefix failed: %v", err)
	}

	if _, err := l1.Get(ctx, "balance:0xabc:ETH"); !errors.Is(err, ErrNotFound) {
		t.Fatal("expected L1 removal")
	}
	if _, err := l2.Get(ctx, "balance:0xabc:ETH"); !errors.Is(err, ErrNotFound) {
		t.Fatal("expected L2 removal")
	}
}
