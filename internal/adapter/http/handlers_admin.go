package http

import (
	"log/slog"
	"net/http"

	"github.com/bugspotter/demo-platform/internal/domain/bug"
)

// AdminListSessions returns every live session with its counters.
func (h *Handlers) AdminListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessions.List(r.Context())
	if err != nil {
		writeDomainError(w, err, "sessions not found")
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

// AdminDeleteSession deletes a session and releases its collaborator
// resources. Resource release is best-effort: a failed external delete is
// logged and retried by the next cleanup run.
func (h *Handlers) AdminDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if err := h.sessions.Delete(r.Context(), id); err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	if err := h.cleanup.ReleaseSession(r.Context(), id); err != nil {
		slog.Warn("resource release deferred to next cleanup run", "session_id", id, "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// AdminListBugs returns all recorded events with aggregate counts.
func (h *Handlers) AdminListBugs(w http.ResponseWriter, r *http.Request) {
	events, agg, err := h.bugs.ListAll(r.Context())
	if err != nil {
		writeDomainError(w, err, "bug events not found")
		return
	}
	if events == nil {
		events = []bug.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events":     events,
		"aggregates": agg,
	})
}

// AdminInjectBug records a manually injected bug event.
func (h *Handlers) AdminInjectBug(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[bug.SubmitRequest](w, r)
	if !ok {
		return
	}
	event, err := h.bugs.Submit(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

// AdminRunCleanup triggers an orphan sweep and returns its report.
func (h *Handlers) AdminRunCleanup(w http.ResponseWriter, r *http.Request) {
	report, err := h.cleanup.Run(r.Context())
	if err != nil {
		writeDomainError(w, err, "cleanup failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// AdminFeed upgrades to the live bug-event WebSocket feed.
func (h *Handlers) AdminFeed(w http.ResponseWriter, r *http.Request) {
	h.feed.HandleWS(w, r)
}
