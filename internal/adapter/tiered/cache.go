// Package tiered implements a two-level (L1 + L2) cache adapter.
package tiered

import (
	"context"
	"time"

	"github.com/bugspotter/demo-platform/internal/port/cache"
	"github.com/bugspotter/demo-platform/internal/port/store"
)

// Cache combines an in-process L1 with the durable store as L2. Get checks
// L1 first and backfills it on an L2 hit; Set and Delete touch both levels
// so admin config updates invalidate demo-page reads promptly.
type Cache struct {
	l1       cache.Cache
	kv       store.KV
	l1Expire time.Duration
}

// New creates a tiered cache. l1Expire bounds how stale a demo page's view
// of the injector config can be.
func New(l1 cache.Cache, kv store.KV, l1Expire time.Duration) *Cache {
	return &Cache{l1: l1, kv: kv, l1Expire: l1Expire}
}

// Get checks L1, then the store. On a store hit, backfills L1.
func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	val, found, err := c.l1.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if found {
		return val, true, nil
	}

	val, found, err = c.kv.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if found {
		_ = c.l1.Set(ctx, key, val, c.l1Expire)
		return val, true, nil
	}

	return nil, false, nil
}

// Set writes through to the store and refreshes L1.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.kv.Put(ctx, key, value, ttl); err != nil {
		return err
	}
	return c.l1.Set(ctx, key, value, c.l1Expire)
}

// Delete removes the key from both levels.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.l1.Delete(ctx, key); err != nil {
		return err
	}
	return c.kv.Delete(ctx, key)
}
