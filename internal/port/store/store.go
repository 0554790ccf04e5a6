// Package store defines the port interface for the TTL-capable key-value
// store that holds all persisted platform state.
package store

import (
	"context"
	"time"
)

// KV is the port interface for namespaced key-value persistence with
// time-to-live semantics. Values are opaque serialized records; validation is
// the caller's job.
//
// Reads of an expired key return not-found. When the backend is unreachable,
// every call fails wrapping domain.ErrStoreUnavailable.
type KV interface {
	// Put writes a value. ttl == 0 means the key never expires.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	// KeysByPrefix lists live keys under a namespace prefix such as "session.".
	KeysByPrefix(ctx context.Context, prefix string) ([]string, error)

	// Durable string-set operations, used for cleanup tracking independent
	// of TTL.
	AddMember(ctx context.Context, set, member string) error
	RemoveMember(ctx context.Context, set, member string) error
	Members(ctx context.Context, set string) ([]string, error)
}

// Key namespaces. The store carries no schema; shape changes require
// coordinated reads and writes.
const (
	PrefixSession      = "session."
	PrefixBugs         = "bugs."
	PrefixAdminSession = "admin-session."
	PrefixAdminUser    = "admin-user."
	PrefixMetadata     = "metadata."
	KeyTrackedSessions = "tracked-sessions"
	KeyInjectorConfig  = "injector-config"
)
