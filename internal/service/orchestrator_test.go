package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/docuforge/docuforge/internal/domain"
)

// stubPreparer returns a canned prepare result
type stubPreparer struct {
	result *PrepareResult
	err    error
}

func (s *stubPreparer) Prepare(ctx context.Context, input UploadInput) (*PrepareResult, error) {
	return s.result, s.err
}

func orchestratorFixture(prep *stubPreparer, txErr error) (*IngestionOrchestrator, *MockAssetRepository, *MockJobRepository, *memoryProgressRepo) {
	assets := new(MockAssetRepository)
	jobs := new(MockJobRepository)
	progress := &memoryProgressRepo{}
	queue := NewJobQueueWithOptions(jobs, NewMockUUIDGenerator("job-1"), 10)
	runner := &stubTxRunner{assets: assets, jobs: jobs, err: txErr}
	orch := NewIngestionOrchestrator(prep, queue, runner, NewProgressTracker(progress))
	return orch, assets, jobs, progress
}

func TestIngestionOrchestrator_Ingest_Duplicate(t *testing.T) {
	ctx := context.Background()
	prep := &stubPreparer{result: &PrepareResult{
		Outcome:    PrepareOutcomeDuplicate,
		AssetID:    "existing-1",
		SavedBytes: 2048,
	}}
	orch, _, jobs, progress := orchestratorFixture(prep, nil)

	res, err := orch.Ingest(ctx, uploadInput())
	require.NoError(t, err)

	assert.Equal(t, PrepareOutcomeDuplicate, res.Outcome)
	assert.Equal(t, "existing-1", res.AssetID)
	assert.Equal(t, int64(2048), res.SavedBytes)
	assert.Empty(t, res.JobID)
	jobs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)

	// The stream must end with a terminal complete event carrying the savings
	events, err := progress.ListSince(ctx, "corr-1", 0)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, domain.ProgressEventComplete, last.Type)
	assert.Contains(t, string(last.Payload), "savedBytes")
	assert.Contains(t, string(last.Payload), "reused")
}

func TestIngestionOrchestrator_Ingest_QueuesAnalysis(t *testing.T) {
	ctx := context.Background()
	prep := &stubPreparer{result: &PrepareResult{
		Outcome: PrepareOutcomePending,
		AssetID: "asset-1",
	}}
	orch, assets, jobs, progress := orchestratorFixture(prep, nil)

	jobs.On("Create", ctx, mock.MatchedBy(func(j *domain.IngestJob) bool {
		return j.AssetID == "asset-1" && j.CorrelationID == "corr-1"
	})).Return(nil)
	assets.On("TransitionStatus", ctx, "asset-1", domain.IngestionStatusQueued, mock.Anything, "").Return(nil)

	res, err := orch.Ingest(ctx, uploadInput())
	require.NoError(t, err)

	assert.Equal(t, PrepareOutcomePending, res.Outcome)
	assert.Equal(t, "job-1", res.JobID)
	assert.False(t, res.Degraded)
	assets.AssertExpectations(t)
	jobs.AssertExpectations(t)

	events, err := progress.ListSince(ctx, "corr-1", 0)
	require.NoError(t, err)
	var stages []string
	for _, ev := range events {
		if ev.Type == domain.ProgressEventStatus {
			stages = append(stages, string(ev.Payload))
		}
	}
	assert.True(t, strings.Contains(strings.Join(stages, " "), "queued"))
}

func TestIngestionOrchestrator_Ingest_DegradedWhenSchedulingFails(t *testing.T) {
	ctx := context.Background()
	prep := &stubPreparer{result: &PrepareResult{
		Outcome: PrepareOutcomePending,
		AssetID: "asset-1",
	}}
	orch, _, _, _ := orchestratorFixture(prep, assert.AnError)

	res, err := orch.Ingest(ctx, uploadInput())
	require.NoError(t, err)

	// The asset survives; only background scheduling is missing
	assert.True(t, res.Degraded)
	assert.Equal(t, "asset-1", res.AssetID)
	assert.Empty(t, res.JobID)
}

func TestIngestionOrchestrator_Ingest_PrepareFailure(t *testing.T) {
	ctx := context.Background()
	prep := &stubPreparer{
		result: &PrepareResult{Outcome: PrepareOutcomeFailed},
		err:    domain.NewDomainError(domain.ErrCodeTransientInfra, "storage down"),
	}
	orch, _, _, progress := orchestratorFixture(prep, nil)

	_, err := orch.Ingest(ctx, uploadInput())
	require.Error(t, err)

	events, lerr := progress.ListSince(ctx, "corr-1", 0)
	require.NoError(t, lerr)
	last := events[len(events)-1]
	assert.Equal(t, domain.ProgressEventError, last.Type)
	// User-facing payload carries the correlation id, not the raw error
	assert.Contains(t, string(last.Payload), "corr-1")
	assert.NotContains(t, string(last.Payload), "storage down")
}

func TestIngestionOrchestrator_Ingest_MaskPIIFlag(t *testing.T) {
	ctx := context.Background()
	prep := &stubPreparer{result: &PrepareResult{
		Outcome: PrepareOutcomePending,
		AssetID: "asset-1",
	}}
	orch, assets, jobs, _ := orchestratorFixture(prep, nil)

	var created *domain.IngestJob
	jobs.On("Create", ctx, mock.Anything).Run(func(args mock.Arguments) {
		created = args.Get(1).(*domain.IngestJob)
	}).Return(nil)
	assets.On("TransitionStatus", ctx, "asset-1", domain.IngestionStatusQueued, mock.Anything, "").Return(nil)

	input := uploadInput()
	input.Metadata = map[string]string{"maskPii": "true"}
	_, err := orch.Ingest(ctx, input)
	require.NoError(t, err)

	require.NotNil(t, created)
	payload, err := created.AnalysisPayload()
	require.NoError(t, err)
	assert.True(t, payload.MaskPII)
}
