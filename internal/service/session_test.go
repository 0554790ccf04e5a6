package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bugspotter/demo-platform/internal/adapter/memkv"
	"github.com/bugspotter/demo-platform/internal/domain"
	"github.com/bugspotter/demo-platform/internal/domain/session"
	"github.com/bugspotter/demo-platform/internal/port/store"
)

type fakeProvisioner struct {
	calls int
	fail  bool
}

func (f *fakeProvisioner) ProvisionSession(_ context.Context, sessionID, _ string) (*session.Provisioning, error) {
	f.calls++
	if f.fail {
		return nil, fmt.Errorf("%w: upstream down", domain.ErrCollaborator)
	}
	return &session.Provisioning{
		UserID: "user-1",
		Email:  "demo-" + sessionID + "@demo.invalid",
		Projects: []session.Project{
			{ID: "p-1", Name: "Acme kazbank", APIKey: "bs_live_1", APIKeyID: "k-1"},
			{ID: "p-2", Name: "Acme talentflow", APIKey: "bs_live_2", APIKeyID: "k-2"},
			{ID: "p-3", Name: "Acme quickmart", APIKey: "bs_live_3", APIKeyID: "k-3"},
		},
	}, nil
}

func newSessionService(t *testing.T) (*SessionService, *memkv.Store, *fakeProvisioner, *time.Time) {
	t.Helper()
	kv := memkv.New()
	prov := &fakeProvisioner{}
	svc := NewSessionService(kv, prov, nil, 2*time.Hour)
	now := time.Now()
	svc.SetClock(func() time.Time { return now })
	kv.SetClock(func() time.Time { return now })
	return svc, kv, prov, &now
}

func TestCreateSession(t *testing.T) {
	svc, kv, prov, _ := newSessionService(t)
	ctx := context.Background()

	sess, err := svc.Create(ctx, session.CreateRequest{Company: "Acme Corp"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if prov.calls != 1 {
		t.Errorf("provisioner calls = %d", prov.calls)
	}
	if sess.ExpiresAt.Sub(sess.CreatedAt) != 2*time.Hour {
		t.Errorf("lifetime = %v", sess.ExpiresAt.Sub(sess.CreatedAt))
	}

	got, err := svc.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Company != "Acme Corp" {
		t.Errorf("Company = %q", got.Company)
	}

	tracked, _ := kv.Members(ctx, store.KeyTrackedSessions)
	if len(tracked) != 1 || tracked[0] != sess.ID {
		t.Errorf("tracked = %v", tracked)
	}
	if _, ok, _ := kv.Get(ctx, store.PrefixMetadata+sess.ID); !ok {
		t.Error("provisioning metadata not stored")
	}
}

func TestCreateSessionProvisionFailureWritesNothing(t *testing.T) {
	svc, kv, prov, _ := newSessionService(t)
	prov.fail = true
	ctx := context.Background()

	_, err := svc.Create(ctx, session.CreateRequest{Company: "Acme Corp"})
	if !errors.Is(err, domain.ErrCollaborator) {
		t.Fatalf("expected collaborator error, got %v", err)
	}
	keys, _ := kv.KeysByPrefix(ctx, store.PrefixSession)
	if len(keys) != 0 {
		t.Errorf("session keys = %v", keys)
	}
	tracked, _ := kv.Members(ctx, store.KeyTrackedSessions)
	if len(tracked) != 0 {
		t.Errorf("tracked = %v", tracked)
	}
}

func TestCreateSessionRejectsBadCompany(t *testing.T) {
	svc, _, prov, _ := newSessionService(t)
	_, err := svc.Create(context.Background(), session.CreateRequest{Company: "x"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if prov.calls != 0 {
		t.Error("must not provision on invalid input")
	}
}

func TestValidateDeletesExpired(t *testing.T) {
	svc, kv, _, now := newSessionService(t)
	ctx := context.Background()

	sess, err := svc.Create(ctx, session.CreateRequest{Company: "Acme Corp"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Validate(ctx, sess.ID); err != nil {
		t.Fatalf("fresh session invalid: %v", err)
	}

	*now = now.Add(3 * time.Hour)
	if _, err := svc.Validate(ctx, sess.ID); !domain.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, ok, _ := kv.Get(ctx, store.PrefixSession+sess.ID); ok {
		t.Error("expired session not reaped")
	}
}

func TestExtendResetsLifetime(t *testing.T) {
	svc, kv, _, now := newSessionService(t)
	ctx := context.Background()

	sess, _ := svc.Create(ctx, session.CreateRequest{Company: "Acme Corp"})
	_ = kv.Put(ctx, store.PrefixBugs+sess.ID, []byte("[]"), 2*time.Hour)

	// One hour into a two-hour session, extend grants a full fresh window
	// from now, not an increment on the old expiry.
	*now = now.Add(time.Hour)
	extended, err := svc.Extend(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Extend: %v", err)
	}
	if want := now.Add(2 * time.Hour); !extended.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", extended.ExpiresAt, want)
	}

	// The bug list's TTL moves with the session.
	*now = now.Add(90 * time.Minute)
	if _, ok, _ := kv.Get(ctx, store.PrefixBugs+sess.ID); !ok {
		t.Error("bug feed expired before its extended session")
	}
	if _, err := svc.Validate(ctx, sess.ID); err != nil {
		t.Errorf("extended session invalid: %v", err)
	}

	if _, err := svc.Extend(ctx, "ghost"); !domain.IsNotFound(err) {
		t.Errorf("unknown session: %v", err)
	}
}

func TestCounters(t *testing.T) {
	svc, _, _, _ := newSessionService(t)
	ctx := context.Background()

	sess, _ := svc.Create(ctx, session.CreateRequest{Company: "Acme Corp"})
	for range 3 {
		if err := svc.RecordEvent(ctx, sess.ID); err != nil {
			t.Fatal(err)
		}
	}
	if err := svc.RecordBug(ctx, sess.ID); err != nil {
		t.Fatal(err)
	}

	got, _ := svc.Get(ctx, sess.ID)
	if got.Events != 3 || got.Bugs != 1 {
		t.Errorf("counters = %d events, %d bugs", got.Events, got.Bugs)
	}

	// Counter bumps on unknown sessions are silent no-ops.
	if err := svc.RecordEvent(ctx, "ghost"); err != nil {
		t.Errorf("missing session bump: %v", err)
	}
}

func TestDeleteSession(t *testing.T) {
	svc, kv, _, _ := newSessionService(t)
	ctx := context.Background()

	sess, _ := svc.Create(ctx, session.CreateRequest{Company: "Acme Corp"})
	_ = kv.Put(ctx, store.PrefixBugs+sess.ID, []byte("[]"), 0)

	if err := svc.Delete(ctx, sess.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := kv.Get(ctx, store.PrefixBugs+sess.ID); ok {
		t.Error("bug feed not deleted")
	}
	if err := svc.Delete(ctx, sess.ID); !domain.IsNotFound(err) {
		t.Errorf("second delete: %v", err)
	}
}

func TestListSessions(t *testing.T) {
	svc, _, _, _ := newSessionService(t)
	ctx := context.Background()

	for _, company := range []string{"Acme Corp", "Globex", "Initech"} {
		if _, err := svc.Create(ctx, session.CreateRequest{Company: company}); err != nil {
			t.Fatal(err)
		}
	}
	sessions, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(sessions) != 3 {
		t.Errorf("sessions = %d", len(sessions))
	}
}

func TestAPIKey(t *testing.T) {
	svc, _, _, _ := newSessionService(t)
	ctx := context.Background()

	sess, _ := svc.Create(ctx, session.CreateRequest{Company: "Acme Corp"})
	project, err := svc.APIKey(ctx, sess.ID, "kazbank")
	if err != nil {
		t.Fatalf("APIKey: %v", err)
	}
	if project.APIKey != "bs_live_1" {
		t.Errorf("APIKey = %q", project.APIKey)
	}

	if _, err := svc.APIKey(ctx, sess.ID, "mainframe"); !domain.IsNotFound(err) {
		t.Errorf("unknown site: %v", err)
	}
	if _, err := svc.APIKey(ctx, "ghost", "kazbank"); !domain.IsNotFound(err) {
		t.Errorf("unknown session: %v", err)
	}
}
