// Package service implements the application services on top of the domain
// model and the store/cache ports.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/bugspotter/demo-platform/internal/adapter/otel"
	"github.com/bugspotter/demo-platform/internal/domain"
	"github.com/bugspotter/demo-platform/internal/domain/session"
	"github.com/bugspotter/demo-platform/internal/port/store"
)

// Provisioner creates the external collaborator resources backing a new
// demo session.
type Provisioner interface {
	ProvisionSession(ctx context.Context, sessionID, company string) (*session.Provisioning, error)
}

// SessionService manages the demo session lifecycle.
type SessionService struct {
	store       store.KV
	provisioner Provisioner
	metrics     *otel.Metrics
	lifetime    time.Duration
	now         func() time.Time
}

// NewSessionService creates a SessionService. provisioner may be nil in dev
// mode, in which case sessions are created without collaborator resources.
func NewSessionService(kv store.KV, provisioner Provisioner, metrics *otel.Metrics, lifetime time.Duration) *SessionService {
	return &SessionService{
		store:       kv,
		provisioner: provisioner,
		metrics:     metrics,
		lifetime:    lifetime,
		now:         time.Now,
	}
}

// SetClock overrides the service clock. Test helper.
func (s *SessionService) SetClock(now func() time.Time) {
	s.now = now
}

// Create provisions and stores a new demo session. Collaborator provisioning
// happens first: if it fails, no session is written and nothing needs
// cleaning up beyond what the next orphan sweep reaps.
func (s *SessionService) Create(ctx context.Context, req session.CreateRequest) (*session.Session, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id := session.NewID(req.Company)
	now := s.now()
	sess := &session.Session{
		ID:        id,
		Company:   req.Company,
		CreatedAt: now,
		ExpiresAt: now.Add(s.lifetime),
	}

	if s.provisioner != nil {
		meta, err := s.provisioner.ProvisionSession(ctx, id, req.Company)
		if err != nil {
			return nil, fmt.Errorf("provision session %s: %w", id, err)
		}
		if err := s.putJSON(ctx, store.PrefixMetadata+id, meta, 0); err != nil {
			return nil, err
		}
	}

	// Track before writing the session record so a failed write still
	// leaves the collaborator resources reachable by the orphan sweep.
	if err := s.store.AddMember(ctx, store.KeyTrackedSessions, id); err != nil {
		return nil, fmt.Errorf("track session %s: %w", id, err)
	}
	if err := s.putJSON(ctx, store.PrefixSession+id, sess, s.lifetime); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.SessionsCreated.Add(ctx, 1)
	}
	slog.Info("demo session created", "session_id", id, "company", req.Company, "expires_at", sess.ExpiresAt)
	return sess, nil
}

// Get returns a session by ID.
func (s *SessionService) Get(ctx context.Context, id string) (*session.Session, error) {
	var sess session.Session
	if err := s.getJSON(ctx, store.PrefixSession+id, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// Validate returns the session if it is still live. An expired record is
// deleted on read rather than waiting for the store's own reaping.
func (s *SessionService) Validate(ctx context.Context, id string) (*session.Session, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Expired(s.now()) {
		_ = s.store.Delete(ctx, store.PrefixSession+id)
		if s.metrics != nil {
			s.metrics.SessionsExpired.Add(ctx, 1)
		}
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	return sess, nil
}

// Extend resets the session expiry to a full lifetime from now, giving the
// demo a fresh window regardless of how much of the old one was left. The
// bug list shares the session's TTL, so its expiry is pushed out too.
func (s *SessionService) Extend(ctx context.Context, id string) (*session.Session, error) {
	sess, err := s.Validate(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.ExpiresAt = s.now().Add(s.lifetime)
	if err := s.putJSON(ctx, store.PrefixSession+id, sess, s.lifetime); err != nil {
		return nil, err
	}
	if data, found, err := s.store.Get(ctx, store.PrefixBugs+id); err == nil && found {
		if err := s.store.Put(ctx, store.PrefixBugs+id, data, s.lifetime); err != nil {
			slog.Warn("bug feed ttl refresh failed", "session_id", id, "error", err)
		}
	}
	slog.Info("demo session extended", "session_id", id, "expires_at", sess.ExpiresAt)
	return sess, nil
}

// RecordEvent bumps the session's event counter. Counters are
// read-modify-write without coordination: concurrent bumps may under-count,
// which is acceptable for telemetry. Missing sessions are a silent no-op so
// expired demos don't error on their last few beacons.
func (s *SessionService) RecordEvent(ctx context.Context, id string) error {
	return s.bump(ctx, id, func(sess *session.Session) { sess.Events++ })
}

// RecordBug bumps the session's bug counter. Same coordination caveats as
// RecordEvent.
func (s *SessionService) RecordBug(ctx context.Context, id string) error {
	return s.bump(ctx, id, func(sess *session.Session) { sess.Bugs++ })
}

func (s *SessionService) bump(ctx context.Context, id string, apply func(*session.Session)) error {
	sess, err := s.Get(ctx, id)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil
		}
		return err
	}
	apply(sess)
	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	return s.putJSON(ctx, store.PrefixSession+id, sess, ttl)
}

// Delete removes the session record and its bug feed. Collaborator-side
// resources are released separately by the cleanup coordinator.
func (s *SessionService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, store.PrefixSession+id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, store.PrefixBugs+id); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.SessionsDeleted.Add(ctx, 1)
	}
	slog.Info("demo session deleted", "session_id", id)
	return nil
}

// List returns all live sessions.
func (s *SessionService) List(ctx context.Context) ([]session.Session, error) {
	keys, err := s.store.KeysByPrefix(ctx, store.PrefixSession)
	if err != nil {
		return nil, err
	}
	sessions := make([]session.Session, 0, len(keys))
	for _, key := range keys {
		var sess session.Session
		if err := s.getJSON(ctx, key, &sess); err != nil {
			if domain.IsNotFound(err) {
				continue // expired between list and read
			}
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

// APIKey returns the project provisioned for the given demo site, including
// the capture API key the demo page authenticates with.
func (s *SessionService) APIKey(ctx context.Context, id, site string) (session.Project, error) {
	if _, err := s.Validate(ctx, id); err != nil {
		return session.Project{}, err
	}
	var meta session.Provisioning
	if err := s.getJSON(ctx, store.PrefixMetadata+id, &meta); err != nil {
		return session.Project{}, err
	}
	project, ok := meta.ProjectFor(site)
	if !ok {
		return session.Project{}, fmt.Errorf("no project for site %q: %w", site, domain.ErrNotFound)
	}
	return project, nil
}

func (s *SessionService) putJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.store.Put(ctx, key, data, ttl)
}

func (s *SessionService) getJSON(ctx context.Context, key string, v any) error {
	data, found, err := s.store.Get(ctx, key)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%s: %w", key, domain.ErrNotFound)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return nil
}
