package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/mapforge/internal/buildservice"
)

// NewRouter creates a chi router with all API routes mounted.
// target supplies the default project and region for /plan.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc Service, target buildservice.Target, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc, target)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/overlays", h.ListOverlays)
	r.Get("/plan", h.Plan)

	r.Get("/fingerprints", h.ListFingerprints)
	r.Delete("/fingerprints/{key}", h.ForgetFingerprint)

	r.Get("/runs/last", h.LastRun)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
