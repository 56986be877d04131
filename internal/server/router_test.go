package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/docuforge/docuforge/internal/api/handlers"
	"github.com/docuforge/docuforge/internal/domain"
	"github.com/docuforge/docuforge/internal/pagination"
	"github.com/docuforge/docuforge/internal/service"
)

type MockIngestService struct {
	mock.Mock
}

func (m *MockIngestService) Ingest(ctx context.Context, input service.UploadInput) (*service.IngestResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.IngestResult), args.Error(1)
}

type MockAssetReader struct {
	mock.Mock
}

func (m *MockAssetReader) GetByID(ctx context.Context, id string) (*domain.KnowledgeAsset, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.KnowledgeAsset), args.Error(1)
}

func (m *MockAssetReader) ListExpiring(ctx context.Context, tenantID string, before time.Time) ([]*domain.KnowledgeAsset, error) {
	args := m.Called(ctx, tenantID, before)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.KnowledgeAsset), args.Error(1)
}

type MockJobAdmin struct {
	mock.Mock
}

func (m *MockJobAdmin) GetStatus(ctx context.Context, jobID string) (*service.JobStatusView, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.JobStatusView), args.Error(1)
}

func (m *MockJobAdmin) Retry(ctx context.Context, jobID string) error {
	return m.Called(ctx, jobID).Error(0)
}

func (m *MockJobAdmin) Delete(ctx context.Context, jobID string) error {
	return m.Called(ctx, jobID).Error(0)
}

func (m *MockJobAdmin) ListJobs(ctx context.Context, states []domain.JobStatus, limit int, cursor string) (*pagination.PageResult[*domain.IngestJob], error) {
	args := m.Called(ctx, states, limit, cursor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pagination.PageResult[*domain.IngestJob]), args.Error(1)
}

type stubProgressSource struct {
	events []*domain.ProgressEvent
}

func (s *stubProgressSource) EventsSince(ctx context.Context, correlationID string, afterID int64) ([]*domain.ProgressEvent, error) {
	return s.events, nil
}

func setupRouter() (http.Handler, *MockIngestService, *MockAssetReader, *MockJobAdmin, *stubProgressSource) {
	ingestSvc := new(MockIngestService)
	assetReader := new(MockAssetReader)
	jobAdmin := new(MockJobAdmin)
	progress := &stubProgressSource{}

	router := NewRouter(RouterConfig{
		IngestHandler:   handlers.NewIngestHandler(ingestSvc),
		AssetHandler:    handlers.NewAssetHandler(assetReader),
		JobHandler:      handlers.NewJobHandler(jobAdmin),
		ProgressHandler: handlers.NewProgressHandler(progress),
	})
	return router, ingestSvc, assetReader, jobAdmin, progress
}

func TestRouter_HealthEndpoint(t *testing.T) {
	router, _, _, _, _ := setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "ok", data["status"])
}

func TestRouter_TenantRoutes_RequireTenantHeader(t *testing.T) {
	router, _, _, _, _ := setupRouter()

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/v1/ingest"},
		{http.MethodGet, "/v1/assets/asset-1"},
		{http.MethodGet, "/v1/assets/expiring"},
	}

	for _, route := range routes {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			req := httptest.NewRequest(route.method, route.path, nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestRouter_IngestRoute(t *testing.T) {
	router, ingestSvc, _, _, _ := setupRouter()

	ingestSvc.On("Ingest", mock.Anything, mock.MatchedBy(func(input service.UploadInput) bool {
		return input.TenantID == "tenant-1" && input.Environment == domain.EnvironmentProduction
	})).Return(&service.IngestResult{
		Outcome:       service.PrepareOutcomePending,
		AssetID:       "asset-1",
		JobID:         "job-1",
		CorrelationID: "corr-1",
	}, nil)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "report.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/ingest", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("X-Tenant-ID", "tenant-1")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	ingestSvc.AssertExpectations(t)
}

func TestRouter_AssetRoute(t *testing.T) {
	router, _, assetReader, _, _ := setupRouter()

	now := time.Now().UTC()
	assetReader.On("GetByID", mock.Anything, "asset-1").Return(&domain.KnowledgeAsset{
		ID:              "asset-1",
		TenantID:        "tenant-1",
		Environment:     domain.EnvironmentProduction,
		IngestionStatus: domain.IngestionStatusAnalyzed,
		ReviewStatus:    domain.ReviewStatusNone,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/assets/asset-1", nil)
	req.Header.Set("X-Tenant-ID", "tenant-1")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assetReader.AssertExpectations(t)
}

func TestRouter_JobRoutes_NoTenantRequired(t *testing.T) {
	router, _, _, jobAdmin, _ := setupRouter()

	jobAdmin.On("ListJobs", mock.Anything, mock.Anything, 0, "").
		Return(&pagination.PageResult[*domain.IngestJob]{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	jobAdmin.AssertExpectations(t)
}

func TestRouter_ProgressRoute_StreamsTerminalEvent(t *testing.T) {
	router, _, _, _, progress := setupRouter()

	progress.events = []*domain.ProgressEvent{{
		ID:            1,
		CorrelationID: "corr-1",
		Type:          domain.ProgressEventComplete,
		Payload:       json.RawMessage(`{"assetId":"asset-1"}`),
	}}

	req := httptest.NewRequest(http.MethodGet, "/v1/progress/corr-1", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "event: complete")
}
