package http

import (
	"net/http"

	"github.com/bugspotter/demo-platform/internal/domain/bug"
	"github.com/bugspotter/demo-platform/internal/domain/injector"
	"github.com/bugspotter/demo-platform/internal/middleware"
)

// SubmitBug records an injected bug event from a demo page. Pages reached
// through their demo subdomain may omit session and site; both are filled
// from the resolved route context.
func (h *Handlers) SubmitBug(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[bug.SubmitRequest](w, r)
	if !ok {
		return
	}
	if rc, found := middleware.RouteFromContext(r.Context()); found {
		if req.SessionID == "" {
			req.SessionID = rc.SessionID
		}
		if req.Site == "" {
			req.Site = rc.Site
		}
	}
	event, err := h.bugs.Submit(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

// ListBugs returns a session's bug events, newest first (?session=).
func (h *Handlers) ListBugs(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session query parameter is required")
		return
	}
	events, err := h.bugs.ListBySession(r.Context(), sessionID)
	if err != nil {
		writeDomainError(w, err, "bug events not found")
		return
	}
	if events == nil {
		events = []bug.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// GetInjectorConfig returns the active injection settings.
func (h *Handlers) GetInjectorConfig(w http.ResponseWriter, r *http.Request) {
	settings, err := h.bugs.Config(r.Context())
	if err != nil {
		writeDomainError(w, err, "injector config not found")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// PutInjectorConfig stores new injection settings.
func (h *Handlers) PutInjectorConfig(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[injector.Settings](w, r)
	if !ok {
		return
	}
	settings, err := h.bugs.UpdateConfig(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "injector config not found")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// GetRegistry returns the static bug catalog with stats.
func (h *Handlers) GetRegistry(w http.ResponseWriter, r *http.Request) {
	site := r.URL.Query().Get("demo")
	defs := h.bugs.Registry()
	if site != "" {
		d := bug.DemoSite(site)
		if !d.Valid() {
			writeError(w, http.StatusBadRequest, "unknown demo site")
			return
		}
		defs = bug.ForSite(d)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"bugs":  defs,
		"stats": h.bugs.RegistryStats(),
	})
}
