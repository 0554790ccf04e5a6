package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router. adminAuth
// guards the admin group, typically middleware.AdminAuth(authService).
func MountRoutes(r chi.Router, h *Handlers, adminAuth func(http.Handler) http.Handler) {
	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		// Demo sessions (public: the demo pages call these)
		r.Post("/demo/sessions", h.CreateSession)
		r.Get("/demo/sessions/{id}", h.GetSession)
		r.Post("/demo/sessions/{id}/extend", h.ExtendSession)
		r.Post("/demo/sessions/{id}/events", h.RecordEvent)
		r.Get("/demo/sessions/{id}/api-key", h.GetAPIKey)

		// Bug events
		r.Post("/bugs", h.SubmitBug)
		r.Get("/bugs", h.ListBugs)

		// Injector
		r.Get("/injector/config", h.GetInjectorConfig)
		r.Get("/injector/registry", h.GetRegistry)

		// Auth
		r.Post("/auth/login", h.Login)
		r.Post("/auth/logout", h.Logout)

		// Admin (bearer token)
		r.Group(func(r chi.Router) {
			r.Use(adminAuth)

			r.Put("/injector/config", h.PutInjectorConfig)
			r.Post("/auth/2fa/setup", h.SetupTOTP)
			r.Post("/auth/2fa/confirm", h.ConfirmTOTP)

			r.Get("/admin/sessions", h.AdminListSessions)
			r.Delete("/admin/sessions/{id}", h.AdminDeleteSession)
			r.Get("/admin/bugs", h.AdminListBugs)
			r.Post("/admin/bugs", h.AdminInjectBug)
			r.Post("/admin/cleanup", h.AdminRunCleanup)
			r.Get("/admin/feed", h.AdminFeed)
		})
	})
}
