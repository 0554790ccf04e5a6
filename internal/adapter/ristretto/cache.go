// Package ristretto implements the in-process L1 cache on dgraph-io/ristretto.
//
// The workload is a handful of small JSON blobs (injector config, registry
// stats) read on every demo page click, so the cache is sized by total value
// bytes and keeps the admission counters modest.
package ristretto

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

const (
	// A few dozen hot keys at most; counters track ~10x that comfortably.
	numCounters = 1 << 10
	bufferItems = 64
)

// Cache is the L1 tier fronting the store-backed config cache.
type Cache struct {
	c *ristretto.Cache[string, []byte]
}

// New creates the L1 cache holding at most maxCostBytes of cached values.
func New(maxCostBytes int64) (*Cache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: numCounters,
		MaxCost:     maxCostBytes,
		BufferItems: bufferItems,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{c: c}, nil
}

// Get returns the cached value for key, if present and not yet expired.
func (c *Cache) Get(_ context.Context, key string) (data []byte, ok bool, err error) {
	val, found := c.c.Get(key)
	if !found {
		return nil, false, nil
	}
	return val, true, nil
}

// Set stores a value costed by its size. Admission is best-effort; a
// rejected write just means the next read falls through to the store.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.c.SetWithTTL(key, value, int64(len(key)+len(value)), ttl)
	return nil
}

// Delete evicts a key, typically after an admin config update.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.c.Del(key)
	return nil
}

// Close releases the cache's internal goroutines.
func (c *Cache) Close() {
	c.c.Close()
}
