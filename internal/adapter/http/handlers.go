package http

import (
	"net/http"

	"github.com/bugspotter/demo-platform/internal/adapter/ws"
	"github.com/bugspotter/demo-platform/internal/service"
)

// Handlers bundles the services the HTTP layer exposes.
type Handlers struct {
	sessions *service.SessionService
	bugs     *service.BugService
	auth     *service.AuthService
	cleanup  *service.CleanupService
	feed     *ws.Hub
}

// NewHandlers creates the handler set.
func NewHandlers(sessions *service.SessionService, bugs *service.BugService, auth *service.AuthService, cleanup *service.CleanupService, feed *ws.Hub) *Handlers {
	return &Handlers{
		sessions: sessions,
		bugs:     bugs,
		auth:     auth,
		cleanup:  cleanup,
		feed:     feed,
	}
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
