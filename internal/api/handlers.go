package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/mapforge/internal/apperr"
	"github.com/starford/mapforge/internal/buildservice"
	"github.com/starford/mapforge/internal/models"
)

// Service is the subset of the build service the API reads from.
type Service interface {
	Overlays(ctx context.Context) ([]models.Overlay, error)
	Preview(ctx context.Context, t buildservice.Target) ([]models.PlanPreview, error)
	Fingerprints(ctx context.Context) ([]models.Fingerprint, error)
	Forget(ctx context.Context, key string) error
	LastRun() (*models.RunReport, bool)
}

// Handler holds API route handlers.
type Handler struct {
	svc    Service
	target buildservice.Target
}

// NewHandler creates a new Handler.
func NewHandler(svc Service, target buildservice.Target) *Handler {
	return &Handler{svc: svc, target: target}
}

// ListOverlays handles GET /api/overlays.
func (h *Handler) ListOverlays(w http.ResponseWriter, r *http.Request) {
	overlays, err := h.svc.Overlays(r.Context())
	if err != nil {
		writeServiceError(w, "list overlays", err)
		return
	}
	writeJSON(w, http.StatusOK, OverlayListResponse{Overlays: overlays})
}

// Plan handles GET /api/plan. Query parameters project, region, preview
// and overlay (repeatable) override the watched target.
func (h *Handler) Plan(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	t := h.target
	if v := q.Get("project"); v != "" {
		t.Project = v
	}
	if v := q.Get("region"); v != "" {
		t.Region = v
	}
	if v := q.Get("preview"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("preview must be a boolean"))
			return
		}
		t.Preview = b
	}
	if ids := q["overlay"]; len(ids) > 0 {
		t.Overlays = ids
	}

	plans, err := h.svc.Preview(r.Context(), t)
	if err != nil {
		writeServiceError(w, "plan", err)
		return
	}
	writeJSON(w, http.StatusOK, PlanResponse{Project: t.Project, Region: t.Region, Preview: t.Preview, Plans: plans})
}

// ListFingerprints handles GET /api/fingerprints.
func (h *Handler) ListFingerprints(w http.ResponseWriter, r *http.Request) {
	fps, err := h.svc.Fingerprints(r.Context())
	if err != nil {
		writeServiceError(w, "list fingerprints", err)
		return
	}
	if fps == nil {
		fps = []models.Fingerprint{}
	}
	writeJSON(w, http.StatusOK, FingerprintListResponse{Fingerprints: fps, Total: len(fps)})
}

// ForgetFingerprint handles DELETE /api/fingerprints/{key}.
func (h *Handler) ForgetFingerprint(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := h.svc.Forget(r.Context(), key); err != nil {
		writeServiceError(w, "forget fingerprint", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LastRun handles GET /api/runs/last.
func (h *Handler) LastRun(w http.ResponseWriter, _ *http.Request) {
	rep, ok := h.svc.LastRun()
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("no build has run yet"))
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrConfig):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrMissingInput):
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
