package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/docuforge/docuforge/internal/api"
	"github.com/docuforge/docuforge/internal/api/middleware"
	"github.com/docuforge/docuforge/internal/service"
)

type IngestService interface {
	Ingest(ctx context.Context, input service.UploadInput) (*service.IngestResult, error)
}

type IngestHandler struct {
	svc IngestService
}

func NewIngestHandler(svc IngestService) *IngestHandler {
	return &IngestHandler{svc: svc}
}

type IngestResponse struct {
	AssetID       string `json:"asset_id"`
	Outcome       string `json:"outcome"`
	JobID         string `json:"job_id,omitempty"`
	CorrelationID string `json:"correlation_id"`
	SavedBytes    int64  `json:"saved_bytes,omitempty"`
	Resurrected   bool   `json:"resurrected,omitempty"`
	Degraded      bool   `json:"degraded,omitempty"`
}

// Ingest accepts a multipart upload and runs the synchronous ingestion path.
// A duplicate answers 200; a newly accepted document answers 202 because its
// analysis continues in the background.
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())
	if tenantID == "" {
		api.Error(w, http.StatusBadRequest, "missing tenant identity")
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid multipart body")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		api.Error(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	correlationID := r.Header.Get("X-Correlation-ID")
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	metadata := map[string]string{}
	for key, values := range r.MultipartForm.Value {
		if len(values) > 0 {
			metadata[key] = values[0]
		}
	}

	input := service.UploadInput{
		TenantID:      tenantID,
		Environment:   middleware.GetEnvironment(r.Context()),
		UserID:        middleware.GetUserID(r.Context()),
		Filename:      header.Filename,
		Metadata:      metadata,
		CorrelationID: correlationID,
		Content:       file,
	}

	result, err := h.svc.Ingest(r.Context(), input)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	status := http.StatusAccepted
	if result.Outcome == service.PrepareOutcomeDuplicate {
		status = http.StatusOK
	}

	api.Success(w, status, IngestResponse{
		AssetID:       result.AssetID,
		Outcome:       string(result.Outcome),
		JobID:         result.JobID,
		CorrelationID: result.CorrelationID,
		SavedBytes:    result.SavedBytes,
		Resurrected:   result.Resurrected,
		Degraded:      result.Degraded,
	})
}
