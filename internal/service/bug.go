package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bugspotter/demo-platform/internal/adapter/otel"
	"github.com/bugspotter/demo-platform/internal/domain"
	"github.com/bugspotter/demo-platform/internal/domain/bug"
	"github.com/bugspotter/demo-platform/internal/domain/injector"
	"github.com/bugspotter/demo-platform/internal/port/cache"
	"github.com/bugspotter/demo-platform/internal/port/store"
)

// Broadcaster pushes bug events to live admin feed subscribers.
type Broadcaster interface {
	BroadcastEvent(ctx context.Context, msgType string, payload any)
}

// BugService records injected bug events and serves the injector
// configuration and static registry.
type BugService struct {
	store    store.KV
	cache    cache.Cache
	sessions *SessionService
	feed     Broadcaster
	metrics  *otel.Metrics
	defaults injector.Settings
	now      func() time.Time
}

// NewBugService creates a BugService. feed may be nil when no live feed is
// wired (CLI tools, tests).
func NewBugService(kv store.KV, c cache.Cache, sessions *SessionService, feed Broadcaster, metrics *otel.Metrics, defaults injector.Settings) *BugService {
	return &BugService{
		store:    kv,
		cache:    c,
		sessions: sessions,
		feed:     feed,
		metrics:  metrics,
		defaults: defaults,
		now:      time.Now,
	}
}

// SetClock overrides the service clock. Test helper.
func (s *BugService) SetClock(now func() time.Time) {
	s.now = now
}

// Submit records a bug event against a live session. The event list shares
// the session's remaining TTL so it never outlives the demo. The session's
// bug counter and the live feed are best-effort side effects.
func (s *BugService) Submit(ctx context.Context, req bug.SubmitRequest) (*bug.Event, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	sess, err := s.sessions.Validate(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	event := &bug.Event{
		ID:         uuid.NewString(),
		SessionID:  req.SessionID,
		Timestamp:  s.now(),
		Message:    req.Message,
		StackTrace: req.StackTrace,
		Severity:   req.Severity,
		Site:       req.Site,
		ElementID:  req.ElementID,
		UserAgent:  req.UserAgent,
		Screenshot: req.Screenshot,
	}

	events, err := s.ListBySession(ctx, req.SessionID)
	if err != nil && !domain.IsNotFound(err) {
		return nil, err
	}
	events = append([]bug.Event{*event}, events...)

	data, err := json.Marshal(events)
	if err != nil {
		return nil, fmt.Errorf("marshal bug events: %w", err)
	}
	ttl := sess.ExpiresAt.Sub(s.now())
	if err := s.store.Put(ctx, store.PrefixBugs+req.SessionID, data, ttl); err != nil {
		return nil, err
	}

	if err := s.sessions.RecordBug(ctx, req.SessionID); err != nil {
		slog.Warn("bug counter bump failed", "session_id", req.SessionID, "error", err)
	}
	if s.feed != nil {
		s.feed.BroadcastEvent(ctx, "bug_event", event)
	}
	if s.metrics != nil {
		s.metrics.RecordBug(ctx, string(req.Severity), string(req.Site))
	}
	slog.Info("bug event recorded",
		"session_id", req.SessionID, "severity", req.Severity, "demo", req.Site)
	return event, nil
}

// ListBySession returns a session's bug events, newest first.
func (s *BugService) ListBySession(ctx context.Context, sessionID string) ([]bug.Event, error) {
	data, found, err := s.store.Get(ctx, store.PrefixBugs+sessionID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	var events []bug.Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("unmarshal bug events: %w", err)
	}
	return events, nil
}

// Aggregates summarizes recorded events across all live sessions.
type Aggregates struct {
	Total      int                  `json:"total"`
	BySeverity map[bug.Severity]int `json:"by_severity"`
	BySite     map[bug.DemoSite]int `json:"by_demo"`
}

// ListAll returns every recorded event across live sessions plus aggregate
// counts, for the admin dashboard.
func (s *BugService) ListAll(ctx context.Context) ([]bug.Event, Aggregates, error) {
	agg := Aggregates{
		BySeverity: make(map[bug.Severity]int),
		BySite:     make(map[bug.DemoSite]int),
	}
	keys, err := s.store.KeysByPrefix(ctx, store.PrefixBugs)
	if err != nil {
		return nil, agg, err
	}
	var all []bug.Event
	for _, key := range keys {
		data, found, err := s.store.Get(ctx, key)
		if err != nil {
			return nil, agg, err
		}
		if !found {
			continue
		}
		var events []bug.Event
		if err := json.Unmarshal(data, &events); err != nil {
			return nil, agg, fmt.Errorf("unmarshal %s: %w", key, err)
		}
		for _, e := range events {
			agg.Total++
			agg.BySeverity[e.Severity]++
			agg.BySite[e.Site]++
		}
		all = append(all, events...)
	}
	return all, agg, nil
}

// Registry returns the static bug catalog.
func (s *BugService) Registry() []bug.Definition {
	return bug.All()
}

// RegistryStats returns catalog counts by site and severity.
func (s *BugService) RegistryStats() bug.CatalogStats {
	return bug.Stats()
}

// Config returns the stored injector settings, falling back to the
// configured defaults when none have been saved yet. Reads go through the
// tiered cache: every demo page click checks this.
func (s *BugService) Config(ctx context.Context) (injector.Settings, error) {
	data, found, err := s.cache.Get(ctx, store.KeyInjectorConfig)
	if err != nil {
		return injector.Settings{}, err
	}
	if !found {
		return s.defaults, nil
	}
	var settings injector.Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return injector.Settings{}, fmt.Errorf("unmarshal injector config: %w", err)
	}
	return settings, nil
}

// UpdateConfig validates and persists new injector settings.
func (s *BugService) UpdateConfig(ctx context.Context, settings injector.Settings) (injector.Settings, error) {
	if err := settings.Validate(); err != nil {
		return injector.Settings{}, err
	}
	settings.LastUpdated = s.now()
	data, err := json.Marshal(settings)
	if err != nil {
		return injector.Settings{}, fmt.Errorf("marshal injector config: %w", err)
	}
	if err := s.cache.Set(ctx, store.KeyInjectorConfig, data, 0); err != nil {
		return injector.Settings{}, err
	}
	slog.Info("injector config updated",
		"enabled", settings.Enabled, "probability", settings.Probability)
	return settings, nil
}
