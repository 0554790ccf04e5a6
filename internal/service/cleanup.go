package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bugspotter/demo-platform/internal/adapter/otel"
	"github.com/bugspotter/demo-platform/internal/domain"
	"github.com/bugspotter/demo-platform/internal/domain/session"
	"github.com/bugspotter/demo-platform/internal/port/store"
)

// ResourceDeleter removes collaborator-side resources.
type ResourceDeleter interface {
	DeleteProject(ctx context.Context, projectID string) error
	DeleteAPIKey(ctx context.Context, apiKeyID string) error
	DeleteUser(ctx context.Context, userID string) error
}

// JiraDeleter removes the demo Jira project, when that integration is
// configured.
type JiraDeleter interface {
	Enabled() bool
	DeleteProject(ctx context.Context, projectKey string) error
}

// TenantError is one failed resource deletion during a cleanup run.
type TenantError struct {
	SessionID string `json:"session_id"`
	Error     string `json:"error"`
}

// Report summarizes one cleanup run.
type Report struct {
	Active   int           `json:"active"`
	Tracked  int           `json:"tracked"`
	Orphaned int           `json:"orphaned"`
	Cleaned  int           `json:"cleaned"`
	Errors   []TenantError `json:"errors,omitempty"`
}

// CleanupService reaps collaborator resources belonging to sessions that
// have expired. Tracked sessions without a live session record are orphans.
type CleanupService struct {
	store       store.KV
	deleter     ResourceDeleter
	jira        JiraDeleter
	metrics     *otel.Metrics
	parallelism int
}

// NewCleanupService creates a CleanupService. jira may be nil.
func NewCleanupService(kv store.KV, deleter ResourceDeleter, jira JiraDeleter, metrics *otel.Metrics, parallelism int) *CleanupService {
	if parallelism < 1 {
		parallelism = 1
	}
	return &CleanupService{
		store:       kv,
		deleter:     deleter,
		jira:        jira,
		metrics:     metrics,
		parallelism: parallelism,
	}
}

// Run performs one orphan sweep. Store errors while listing abort the whole
// run: guessing at the orphan set risks deleting live tenants. Per-resource
// deletion failures are collected in the report, not fatal; each orphan is
// swept once and then untracked.
func (s *CleanupService) Run(ctx context.Context) (*Report, error) {
	start := time.Now()

	activeKeys, err := s.store.KeysByPrefix(ctx, store.PrefixSession)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	tracked, err := s.store.Members(ctx, store.KeyTrackedSessions)
	if err != nil {
		return nil, fmt.Errorf("list tracked sessions: %w", err)
	}

	active := make(map[string]bool, len(activeKeys))
	for _, key := range activeKeys {
		active[strings.TrimPrefix(key, store.PrefixSession)] = true
	}

	var orphans []string
	for _, id := range tracked {
		if !active[id] {
			orphans = append(orphans, id)
		}
	}

	report := &Report{
		Active:   len(active),
		Tracked:  len(tracked),
		Orphaned: len(orphans),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for _, id := range orphans {
		g.Go(func() error {
			errs := s.release(gctx, id)
			mu.Lock()
			defer mu.Unlock()
			report.Cleaned++
			for _, e := range errs {
				report.Errors = append(report.Errors, TenantError{SessionID: id, Error: e.Error()})
			}
			return nil
		})
	}
	_ = g.Wait()

	if s.metrics != nil {
		s.metrics.CleanupOrphans.Add(ctx, int64(report.Orphaned))
		s.metrics.CleanupErrors.Add(ctx, int64(len(report.Errors)))
		s.metrics.CleanupDuration.Record(ctx, time.Since(start).Seconds())
	}
	slog.Info("cleanup run finished",
		"active", report.Active, "tracked", report.Tracked,
		"orphaned", report.Orphaned, "cleaned", report.Cleaned,
		"errors", len(report.Errors), "duration", time.Since(start))
	return report, nil
}

// ReleaseSession tears down one session's collaborator resources
// immediately, for admin-initiated deletes.
func (s *CleanupService) ReleaseSession(ctx context.Context, id string) error {
	if errs := s.release(ctx, id); len(errs) > 0 {
		return fmt.Errorf("release session %s: %w", id, errs[0])
	}
	return nil
}

// release deletes every external resource recorded for the session,
// attempting all of them even when some fail. The tracking entry and the
// metadata are removed afterwards regardless of per-resource failures; the
// session is swept exactly once and the failures surface in the report.
func (s *CleanupService) release(ctx context.Context, id string) []error {
	meta, err := s.metadata(ctx, id)
	if err != nil {
		if domain.IsNotFound(err) {
			// Nothing was provisioned (dev mode) or a previous run already
			// cleaned up; just drop the tracking entry.
			if err := s.store.RemoveMember(ctx, store.KeyTrackedSessions, id); err != nil {
				return []error{err}
			}
			return nil
		}
		return []error{err}
	}

	var errs []error
	for _, project := range meta.Projects {
		if project.APIKeyID != "" {
			if err := s.deleter.DeleteAPIKey(ctx, project.APIKeyID); err != nil {
				errs = append(errs, err)
			}
		}
		if err := s.deleter.DeleteProject(ctx, project.ID); err != nil {
			errs = append(errs, err)
		}
	}
	if meta.UserID != "" {
		if err := s.deleter.DeleteUser(ctx, meta.UserID); err != nil {
			errs = append(errs, err)
		}
	}
	if meta.JiraProject != "" && s.jira != nil && s.jira.Enabled() {
		if err := s.jira.DeleteProject(ctx, meta.JiraProject); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		slog.Warn("session release incomplete", "session_id", id, "failures", len(errs))
	}

	if err := s.store.Delete(ctx, store.PrefixMetadata+id); err != nil {
		return append(errs, err)
	}
	if err := s.store.RemoveMember(ctx, store.KeyTrackedSessions, id); err != nil {
		return append(errs, err)
	}
	slog.Info("session resources released", "session_id", id, "failures", len(errs))
	return errs
}

func (s *CleanupService) metadata(ctx context.Context, id string) (*session.Provisioning, error) {
	data, found, err := s.store.Get(ctx, store.PrefixMetadata+id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("metadata %s: %w", id, domain.ErrNotFound)
	}
	var meta session.Provisioning
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("unmarshal metadata %s: %w", id, err)
	}
	return &meta, nil
}
