package http

import (
	"net/http"

	"github.com/bugspotter/demo-platform/internal/domain/session"
	"github.com/bugspotter/demo-platform/internal/middleware"
)

// CreateSession provisions a new demo session from a company name.
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[session.CreateRequest](w, r)
	if !ok {
		return
	}
	sess, err := h.sessions.Create(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// GetSession returns a live session, reaping it if it has expired.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Validate(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// ExtendSession resets a session's expiry to a full lifetime from now.
func (h *Handlers) ExtendSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Extend(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// RecordEvent bumps the session's interaction counter.
func (h *Handlers) RecordEvent(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.RecordEvent(r.Context(), urlParam(r, "id")); err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetAPIKey returns the capture-SDK API key for one of the session's demo
// sites. The site comes from ?demo=kazbank|talentflow|quickmart, or from the
// subdomain route context when the demo page calls through its own host.
func (h *Handlers) GetAPIKey(w http.ResponseWriter, r *http.Request) {
	site := r.URL.Query().Get("demo")
	if site == "" {
		if rc, ok := middleware.RouteFromContext(r.Context()); ok {
			site = string(rc.Site)
		}
	}
	if site == "" {
		writeError(w, http.StatusBadRequest, "demo query parameter is required")
		return
	}
	project, err := h.sessions.APIKey(r.Context(), urlParam(r, "id"), site)
	if err != nil {
		writeDomainError(w, err, "api key not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"project_id": project.ID,
		"api_key":    project.APIKey,
	})
}
