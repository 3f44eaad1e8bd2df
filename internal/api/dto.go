package api

import "github.com/starford/mapforge/internal/models"

// OverlayListResponse is the body of GET /api/overlays.
type OverlayListResponse struct {
	Overlays []models.Overlay `json:"overlays"`
}

// FingerprintListResponse is the body of GET /api/fingerprints.
type FingerprintListResponse struct {
	Fingerprints []models.Fingerprint `json:"fingerprints"`
	Total        int                  `json:"total"`
}

// PlanResponse is the body of GET /api/plan.
type PlanResponse struct {
	Project string               `json:"project"`
	Region  string               `json:"region"`
	Preview bool                 `json:"preview"`
	Plans   []models.PlanPreview `json:"plans"`
}
