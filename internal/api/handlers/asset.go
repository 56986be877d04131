package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/docuforge/docuforge/internal/api"
	"github.com/docuforge/docuforge/internal/api/middleware"
	"github.com/docuforge/docuforge/internal/domain"
)

type AssetReader interface {
	GetByID(ctx context.Context, id string) (*domain.KnowledgeAsset, error)
	ListExpiring(ctx context.Context, tenantID string, before time.Time) ([]*domain.KnowledgeAsset, error)
}

type AssetHandler struct {
	assets AssetReader
}

func NewAssetHandler(assets AssetReader) *AssetHandler {
	return &AssetHandler{assets: assets}
}

type AssetResponse struct {
	ID              string            `json:"id"`
	TenantID        string            `json:"tenant_id"`
	Environment     string            `json:"environment"`
	ContentHash     string            `json:"content_hash"`
	Filename        string            `json:"filename"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	SizeBytes       int64             `json:"size_bytes"`
	IngestionStatus string            `json:"ingestion_status"`
	Error           string            `json:"error,omitempty"`
	CorrelationID   string            `json:"correlation_id"`
	ReviewStatus    string            `json:"review_status"`
	NextReviewDate  *string           `json:"next_review_date,omitempty"`
	CreatedAt       string            `json:"created_at"`
	UpdatedAt       string            `json:"updated_at"`
}

func assetToResponse(a *domain.KnowledgeAsset) *AssetResponse {
	resp := &AssetResponse{
		ID:              a.ID,
		TenantID:        a.TenantID,
		Environment:     string(a.Environment),
		ContentHash:     a.ContentHash,
		Filename:        a.Filename,
		Metadata:        a.Metadata,
		SizeBytes:       a.SizeBytes,
		IngestionStatus: string(a.IngestionStatus),
		Error:           a.Error,
		CorrelationID:   a.CorrelationID,
		ReviewStatus:    string(a.ReviewStatus),
		CreatedAt:       a.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:       a.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if a.NextReviewDate != nil {
		next := a.NextReviewDate.UTC().Format(time.RFC3339)
		resp.NextReviewDate = &next
	}
	return resp
}

// Get returns the lifecycle state of one asset. Assets belong to tenants;
// another tenant's asset answers 404, never 403.
func (h *AssetHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	asset, err := h.assets.GetByID(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	if asset.TenantID != middleware.GetTenantID(r.Context()) {
		api.HandleError(w, domain.ErrAssetNotFound)
		return
	}

	api.Success(w, http.StatusOK, assetToResponse(asset))
}

// ListExpiring returns the tenant's assets whose review date falls within the
// given number of days (default 30).
func (h *AssetHandler) ListExpiring(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())

	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			api.Error(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = parsed
	}

	before := time.Now().UTC().AddDate(0, 0, days)
	assets, err := h.assets.ListExpiring(r.Context(), tenantID, before)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	out := make([]*AssetResponse, 0, len(assets))
	for _, a := range assets {
		out = append(out, assetToResponse(a))
	}
	api.Success(w, http.StatusOK, out)
}
