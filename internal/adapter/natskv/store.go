// Package natskv implements the store port on NATS JetStream key-value
// buckets.
//
// Two buckets are used: an expiring bucket whose MaxAge acts as a garbage
// collector for TTL'd records (exact per-key TTL is enforced by an envelope
// with lazy expiry, since JetStream KV TTL is bucket-level), and a durable
// bucket for the tracked set, provisioning metadata, injector config, and
// admin records.
package natskv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/bugspotter/demo-platform/internal/domain"
)

const (
	expiringBucket = "DEMO_EXPIRING"
	durableBucket  = "DEMO_DURABLE"

	// setRetries bounds the optimistic-concurrency retry loop on set updates.
	setRetries = 5
)

// Store implements store.KV on two JetStream KV buckets.
type Store struct {
	nc       *nats.Conn
	expiring jetstream.KeyValue
	durable  jetstream.KeyValue
	now      func() time.Time
}

// envelope wraps TTL'd values with their absolute expiry.
type envelope struct {
	ExpiresAt time.Time `json:"expires_at"`
	Value     []byte    `json:"value"`
}

// Connect dials NATS and ensures both buckets exist. maxAge is the backstop
// retention for the expiring bucket and should be at least the longest TTL
// ever written (bucket age resets on every put, so extends behave correctly).
func Connect(ctx context.Context, url string, maxAge time.Duration) (*Store, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	expiring, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      expiringBucket,
		Description: "demo sessions and bug lists (TTL backstop)",
		TTL:         maxAge,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("kv bucket %s: %w", expiringBucket, err)
	}

	durable, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      durableBucket,
		Description: "tracked set, metadata, injector config, admin records",
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("kv bucket %s: %w", durableBucket, err)
	}

	slog.Info("nats kv connected", "url", url, "max_age", maxAge)
	return &Store{nc: nc, expiring: expiring, durable: durable, now: time.Now}, nil
}

// Close drains the NATS connection.
func (s *Store) Close() {
	s.nc.Close()
}

// Put writes a value. TTL'd writes go to the expiring bucket inside an
// envelope; ttl == 0 writes go to the durable bucket as-is.
func (s *Store) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		if _, err := s.durable.Put(ctx, key, value); err != nil {
			return unavailable("put "+key, err)
		}
		return nil
	}

	data, err := json.Marshal(envelope{ExpiresAt: s.now().Add(ttl), Value: value})
	if err != nil {
		return fmt.Errorf("put %s: marshal envelope: %w", key, err)
	}
	if _, err := s.expiring.Put(ctx, key, data); err != nil {
		return unavailable("put "+key, err)
	}
	return nil
}

// Get reads a key, checking the expiring bucket first. Envelope-expired
// entries are reaped and reported as a miss.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	entry, err := s.expiring.Get(ctx, key)
	switch {
	case err == nil:
		var env envelope
		if err := json.Unmarshal(entry.Value(), &env); err != nil {
			return nil, false, fmt.Errorf("get %s: unmarshal envelope: %w", key, err)
		}
		if !s.now().Before(env.ExpiresAt) {
			_ = s.expiring.Delete(ctx, key)
			return nil, false, nil
		}
		return env.Value, true, nil
	case !errors.Is(err, jetstream.ErrKeyNotFound):
		return nil, false, unavailable("get "+key, err)
	}

	entry, err = s.durable.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, unavailable("get "+key, err)
	}
	return entry.Value(), true, nil
}

// Delete removes a key from both buckets. Deleting an absent key is not an
// error.
func (s *Store) Delete(ctx context.Context, key string) error {
	for _, kv := range []jetstream.KeyValue{s.expiring, s.durable} {
		if err := kv.Delete(ctx, key); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
			return unavailable("delete "+key, err)
		}
	}
	return nil
}

// KeysByPrefix lists keys under a namespace prefix across both buckets,
// filtering envelope-expired entries.
func (s *Store) KeysByPrefix(ctx context.Context, prefix string) ([]string, error) {
	filter := prefix + ">"
	seen := make(map[string]struct{})
	var keys []string

	for _, kv := range []jetstream.KeyValue{s.expiring, s.durable} {
		lister, err := kv.ListKeysFiltered(ctx, filter)
		if err != nil {
			return nil, unavailable("list "+prefix, err)
		}
		for key := range lister.Keys() {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}

	// Drop envelope-expired session/bug keys so callers see live state only.
	live := keys[:0]
	for _, key := range keys {
		if _, ok, err := s.Get(ctx, key); err == nil && ok {
			live = append(live, key)
		}
	}
	return slices.Clone(live), nil
}

// AddMember adds a member to a durable set using optimistic concurrency on
// the bucket revision.
func (s *Store) AddMember(ctx context.Context, set, member string) error {
	return s.updateSet(ctx, set, func(members []string) []string {
		if slices.Contains(members, member) {
			return members
		}
		return append(members, member)
	})
}

// RemoveMember removes a member from a durable set.
func (s *Store) RemoveMember(ctx context.Context, set, member string) error {
	return s.updateSet(ctx, set, func(members []string) []string {
		return slices.DeleteFunc(members, func(m string) bool { return m == member })
	})
}

// Members lists the members of a durable set.
func (s *Store) Members(ctx context.Context, set string) ([]string, error) {
	entry, err := s.durable.Get(ctx, set)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, unavailable("members "+set, err)
	}
	var members []string
	if err := json.Unmarshal(entry.Value(), &members); err != nil {
		return nil, fmt.Errorf("members %s: unmarshal: %w", set, err)
	}
	return members, nil
}

func (s *Store) updateSet(ctx context.Context, set string, apply func([]string) []string) error {
	for range setRetries {
		entry, err := s.durable.Get(ctx, set)
		switch {
		case errors.Is(err, jetstream.ErrKeyNotFound):
			data, mErr := json.Marshal(apply(nil))
			if mErr != nil {
				return fmt.Errorf("set %s: marshal: %w", set, mErr)
			}
			_, err = s.durable.Create(ctx, set, data)
			if errors.Is(err, jetstream.ErrKeyExists) {
				continue // lost the race, retry against the new value
			}
			if err != nil {
				return unavailable("set "+set, err)
			}
			return nil
		case err != nil:
			return unavailable("set "+set, err)
		}

		var members []string
		if err := json.Unmarshal(entry.Value(), &members); err != nil {
			return fmt.Errorf("set %s: unmarshal: %w", set, err)
		}
		data, err := json.Marshal(apply(members))
		if err != nil {
			return fmt.Errorf("set %s: marshal: %w", set, err)
		}
		_, err = s.durable.Update(ctx, set, data, entry.Revision())
		if err == nil {
			return nil
		}
		if !isWrongRevision(err) {
			return unavailable("set "+set, err)
		}
	}
	return fmt.Errorf("set %s: too many concurrent updates", set)
}

func isWrongRevision(err error) bool {
	var apiErr *jetstream.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}
