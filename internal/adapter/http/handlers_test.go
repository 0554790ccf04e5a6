package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bugspotter/demo-platform/internal/adapter/memkv"
	"github.com/bugspotter/demo-platform/internal/adapter/ws"
	"github.com/bugspotter/demo-platform/internal/domain/bug"
	"github.com/bugspotter/demo-platform/internal/domain/injector"
	"github.com/bugspotter/demo-platform/internal/middleware"
	"github.com/bugspotter/demo-platform/internal/service"
)

type nopDeleter struct{}

func (nopDeleter) DeleteProject(context.Context, string) error { return nil }
func (nopDeleter) DeleteAPIKey(context.Context, string) error  { return nil }
func (nopDeleter) DeleteUser(context.Context, string) error    { return nil }

// kvCache exposes the memkv store through the cache port.
type kvCache struct {
	kv *memkv.Store
}

func (c kvCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return c.kv.Get(ctx, key)
}

func (c kvCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.kv.Put(ctx, key, value, ttl)
}

func (c kvCache) Delete(ctx context.Context, key string) error {
	return c.kv.Delete(ctx, key)
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	kv := memkv.New()
	sessions := service.NewSessionService(kv, nil, nil, 2*time.Hour)
	bugs := service.NewBugService(kv, kvCache{kv}, sessions, nil, nil, injector.DefaultSettings())
	auth := service.NewAuthService(kv, time.Hour, "Demo Platform")
	cleanup := service.NewCleanupService(kv, nopDeleter{}, nil, nil, 2)

	if err := auth.CreateAdmin(context.Background(), "admin@example.com", "s3cret-pass"); err != nil {
		t.Fatal(err)
	}

	h := NewHandlers(sessions, bugs, auth, cleanup, ws.NewHub())
	r := chi.NewRouter()
	r.Use(middleware.Subdomain("demo.example.com"))
	MountRoutes(r, h, middleware.AdminAuth(auth))

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var out bytes.Buffer
	_, _ = out.ReadFrom(resp.Body)
	return resp, out.Bytes()
}

func createSession(t *testing.T, srv *httptest.Server, company string) map[string]any {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/demo/sessions", "",
		map[string]string{"company": company})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session: status %d: %s", resp.StatusCode, body)
	}
	var sess map[string]any
	if err := json.Unmarshal(body, &sess); err != nil {
		t.Fatal(err)
	}
	return sess
}

func login(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/auth/login", "",
		map[string]string{"email": "admin@example.com", "password": "s3cret-pass"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: status %d: %s", resp.StatusCode, body)
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatal(err)
	}
	return out.Token
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	sess := createSession(t, srv, "Acme Corp")
	id, _ := sess["id"].(string)
	if id == "" {
		t.Fatalf("session = %v", sess)
	}

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/v1/demo/sessions/"+id, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("get: status %d", resp.StatusCode)
	}

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/demo/sessions/"+id+"/extend", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("extend: status %d: %s", resp.StatusCode, body)
	}
	var extended map[string]any
	if err := json.Unmarshal(body, &extended); err != nil {
		t.Fatal(err)
	}
	if _, ok := extended["expires_at"]; !ok {
		t.Error("extend response missing expiry")
	}

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/demo/sessions/"+id+"/events", "", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("record event: status %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/v1/demo/sessions/ghost", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown session: status %d", resp.StatusCode)
	}
}

func TestCreateSessionValidation(t *testing.T) {
	srv := newTestServer(t)
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/v1/demo/sessions", "",
		map[string]string{"company": "x"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestBugSubmitAndList(t *testing.T) {
	srv := newTestServer(t)
	sess := createSession(t, srv, "Acme Corp")
	id := sess["id"].(string)

	for i, sev := range []bug.Severity{bug.SeverityLow, bug.SeverityCritical} {
		resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/bugs", "", bug.SubmitRequest{
			SessionID: id,
			Message:   fmt.Sprintf("boom %d", i),
			Severity:  sev,
			Site:      bug.SiteKazBank,
		})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("submit: status %d: %s", resp.StatusCode, body)
		}
	}

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/v1/bugs?session="+id, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: status %d", resp.StatusCode)
	}
	var events []bug.Event
	if err := json.Unmarshal(body, &events); err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 || events[0].Message != "boom 1" {
		t.Errorf("events = %+v", events)
	}

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/v1/bugs", "", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing session param: status %d", resp.StatusCode)
	}
}

func TestSubmitBugViaSubdomainContext(t *testing.T) {
	srv := newTestServer(t)
	sess := createSession(t, srv, "Acme Corp")
	id := sess["id"].(string)

	// The demo page posts through its own subdomain and omits session and
	// site; both resolve from the host routing context. The test stand-in
	// for wildcard DNS is the subdomain header.
	payload, _ := json.Marshal(map[string]string{"message": "boom", "severity": "high"})
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/bugs", bytes.NewReader(payload))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Demo-Subdomain", "bank-"+id)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("submit: status %d", resp.StatusCode)
	}
	var event bug.Event
	if err := json.NewDecoder(resp.Body).Decode(&event); err != nil {
		t.Fatal(err)
	}
	if event.SessionID != id || event.Site != bug.SiteKazBank {
		t.Errorf("event = %+v", event)
	}
}

func TestAPIKeySiteFromSubdomainContext(t *testing.T) {
	srv := newTestServer(t)
	sess := createSession(t, srv, "Acme Corp")
	id := sess["id"].(string)

	// Without a site from either the query or the host, the request is
	// rejected outright.
	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/v1/demo/sessions/"+id+"/api-key", "", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("no site: status %d", resp.StatusCode)
	}

	// With the site resolved from the subdomain the lookup proceeds; dev
	// sessions carry no provisioning metadata, so it misses with 404 rather
	// than failing validation.
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/demo/sessions/"+id+"/api-key", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("X-Demo-Subdomain", "bank-"+id)
	withSite, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = withSite.Body.Close() }()
	if withSite.StatusCode != http.StatusNotFound {
		t.Errorf("site from subdomain: status %d", withSite.StatusCode)
	}
}

func TestInjectorConfigRoundTrip(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/v1/injector/config", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get config: status %d", resp.StatusCode)
	}
	var settings injector.Settings
	_ = json.Unmarshal(body, &settings)
	if !settings.Enabled || settings.Probability != 30 {
		t.Errorf("defaults = %+v", settings)
	}

	// Updating requires admin auth.
	resp, _ = doJSON(t, http.MethodPut, srv.URL+"/api/v1/injector/config", "",
		injector.Settings{Enabled: true, Probability: 60})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated put: status %d", resp.StatusCode)
	}

	token := login(t, srv)
	resp, body = doJSON(t, http.MethodPut, srv.URL+"/api/v1/injector/config", token,
		injector.Settings{Enabled: true, Probability: 60})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put config: status %d: %s", resp.StatusCode, body)
	}

	resp, _ = doJSON(t, http.MethodPut, srv.URL+"/api/v1/injector/config", token,
		injector.Settings{Enabled: true, Probability: 400})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid probability: status %d", resp.StatusCode)
	}
}

func TestRegistryEndpoint(t *testing.T) {
	srv := newTestServer(t)
	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/v1/injector/registry?demo=kazbank", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var out struct {
		Bugs  []bug.Definition `json:"bugs"`
		Stats bug.CatalogStats `json:"stats"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Bugs) != 5 {
		t.Errorf("kazbank bugs = %d", len(out.Bugs))
	}
	if out.Stats.Total != 15 {
		t.Errorf("total = %d", out.Stats.Total)
	}

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/v1/injector/registry?demo=mainframe", "", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown site: status %d", resp.StatusCode)
	}
}

func TestAdminEndpoints(t *testing.T) {
	srv := newTestServer(t)
	token := login(t, srv)
	sess := createSession(t, srv, "Acme Corp")
	id := sess["id"].(string)

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/v1/admin/sessions", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated list: status %d", resp.StatusCode)
	}

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/v1/admin/sessions", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: status %d: %s", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/v1/admin/bugs", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin bugs: status %d: %s", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/v1/admin/cleanup", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cleanup: status %d: %s", resp.StatusCode, body)
	}

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/api/v1/admin/sessions/"+id, token, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: status %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/v1/demo/sessions/"+id, "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("deleted session still readable: status %d", resp.StatusCode)
	}
}

func TestLogout(t *testing.T) {
	srv := newTestServer(t)
	token := login(t, srv)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/v1/auth/logout", token, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout: status %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/v1/admin/sessions", token, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("revoked token accepted: status %d", resp.StatusCode)
	}
}
