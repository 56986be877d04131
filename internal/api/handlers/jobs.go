package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/docuforge/docuforge/internal/api"
	"github.com/docuforge/docuforge/internal/domain"
	"github.com/docuforge/docuforge/internal/pagination"
	"github.com/docuforge/docuforge/internal/service"
)

type JobAdminService interface {
	GetStatus(ctx context.Context, jobID string) (*service.JobStatusView, error)
	Retry(ctx context.Context, jobID string) error
	Delete(ctx context.Context, jobID string) error
	ListJobs(ctx context.Context, states []domain.JobStatus, limit int, cursor string) (*pagination.PageResult[*domain.IngestJob], error)
}

type JobHandler struct {
	queue JobAdminService
}

func NewJobHandler(queue JobAdminService) *JobHandler {
	return &JobHandler{queue: queue}
}

type JobResponse struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	Status        string `json:"status"`
	AssetID       string `json:"asset_id"`
	CorrelationID string `json:"correlation_id"`
	Attempts      int    `json:"attempts"`
	MaxAttempts   int    `json:"max_attempts"`
	Error         string `json:"error,omitempty"`
	EnqueuedAt    string `json:"enqueued_at"`
	FinishedAt    string `json:"finished_at,omitempty"`
}

type JobListResponse struct {
	Jobs    []*JobResponse `json:"jobs"`
	Cursor  string         `json:"cursor,omitempty"`
	HasMore bool           `json:"has_more"`
}

func jobToResponse(j *domain.IngestJob) *JobResponse {
	resp := &JobResponse{
		ID:            j.ID,
		Type:          string(j.Type),
		Status:        string(j.Status),
		AssetID:       j.AssetID,
		CorrelationID: j.CorrelationID,
		Attempts:      j.Attempts,
		MaxAttempts:   j.MaxAttempts,
		Error:         j.Error,
		EnqueuedAt:    j.EnqueuedAt.UTC().Format(time.RFC3339),
	}
	if j.FinishedAt != nil {
		resp.FinishedAt = j.FinishedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// List returns a page of jobs, optionally filtered by comma-separated states
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	var states []domain.JobStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			status := domain.JobStatus(strings.TrimSpace(s))
			if !domain.IsValidJobStatus(status) {
				api.Error(w, http.StatusBadRequest, "invalid job status: "+string(status))
				return
			}
			states = append(states, status)
		}
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			api.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	page, err := h.queue.ListJobs(r.Context(), states, limit, r.URL.Query().Get("cursor"))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	jobs := make([]*JobResponse, 0, len(page.Items))
	for _, j := range page.Items {
		jobs = append(jobs, jobToResponse(j))
	}
	api.Success(w, http.StatusOK, JobListResponse{
		Jobs:    jobs,
		Cursor:  page.Cursor,
		HasMore: page.HasMore,
	})
}

// Get returns the current state of one job
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	view, err := h.queue.GetStatus(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := &JobResponse{
		ID:            view.JobID,
		Type:          string(view.Type),
		Status:        string(view.State),
		AssetID:       view.AssetID,
		CorrelationID: view.CorrelationID,
		Attempts:      view.Attempts,
		MaxAttempts:   view.MaxAttempts,
		Error:         view.FailureReason,
		EnqueuedAt:    view.EnqueuedAt.UTC().Format(time.RFC3339),
	}
	if view.FinishedAt != nil {
		resp.FinishedAt = view.FinishedAt.UTC().Format(time.RFC3339)
	}
	api.Success(w, http.StatusOK, resp)
}

// Retry resets a terminally failed job with a fresh retry budget
func (h *JobHandler) Retry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := h.queue.Retry(r.Context(), id); err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, map[string]string{"status": "retried"})
}

// Delete removes a non-running job
func (h *JobHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := h.queue.Delete(r.Context(), id); err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, map[string]string{"status": "deleted"})
}
