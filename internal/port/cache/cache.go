// Package cache defines the port interface for read-path caching.
package cache

import (
	"context"
	"time"
)

// Cache is the port interface for key-value caching. It fronts hot demo-page
// reads (injector config, registry stats); the store remains the source of
// truth.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
