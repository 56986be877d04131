package service

import (
	"context"
	"log"

	"github.com/docuforge/docuforge/internal/domain"
)

// Preparer runs the synchronous dedup fast path
type Preparer interface {
	Prepare(ctx context.Context, input UploadInput) (*PrepareResult, error)
}

// IngestResult is the user-facing outcome of one upload request
type IngestResult struct {
	Outcome       PrepareOutcome
	AssetID       string
	JobID         string
	CorrelationID string
	SavedBytes    int64
	Resurrected   bool
	// Degraded means the asset was persisted but background processing could
	// not be scheduled; an operator can re-enqueue.
	Degraded bool
}

// IngestionOrchestrator composes the preparer, the transition validator and
// the job queue into the end-to-end ingestion flow. The fast path is bounded
// by upload size; all analysis work is deferred to the queue.
type IngestionOrchestrator struct {
	preparer Preparer
	queue    *JobQueue
	txRunner TxRunner
	tracker  *ProgressTracker
}

func NewIngestionOrchestrator(preparer Preparer, queue *JobQueue, txRunner TxRunner, tracker *ProgressTracker) *IngestionOrchestrator {
	return &IngestionOrchestrator{
		preparer: preparer,
		queue:    queue,
		txRunner: txRunner,
		tracker:  tracker,
	}
}

// Ingest runs the synchronous ingestion flow for one upload
func (o *IngestionOrchestrator) Ingest(ctx context.Context, input UploadInput) (*IngestResult, error) {
	cid := input.CorrelationID
	o.tracker.Status(ctx, cid, "received", map[string]any{"filename": input.Filename})

	res, err := o.preparer.Prepare(ctx, input)
	if err != nil {
		o.tracker.Error(ctx, cid, "ingestion failed")
		return nil, err
	}

	switch res.Outcome {
	case PrepareOutcomeDuplicate:
		o.tracker.Complete(ctx, cid, map[string]any{
			"reused":     true,
			"assetId":    res.AssetID,
			"savedBytes": res.SavedBytes,
		})
		return &IngestResult{
			Outcome:       PrepareOutcomeDuplicate,
			AssetID:       res.AssetID,
			CorrelationID: cid,
			SavedBytes:    res.SavedBytes,
		}, nil
	case PrepareOutcomePending:
		// fall through to scheduling
	default:
		o.tracker.Error(ctx, cid, "ingestion failed")
		return nil, domain.NewDomainError(domain.ErrCodeInternalError, "prepare returned no outcome")
	}

	o.tracker.Status(ctx, cid, "pending", map[string]any{
		"assetId":     res.AssetID,
		"resurrected": res.Resurrected,
	})

	payload := domain.AnalysisPayload{
		AssetID:       res.AssetID,
		TenantID:      input.TenantID,
		UserID:        input.UserID,
		CorrelationID: cid,
		MaskPII:       input.Metadata["maskPii"] == "true",
		Environment:   input.Environment,
	}

	job, err := o.queue.BuildAnalysisJob(payload, EnqueueOptions{})
	if err != nil {
		return nil, err
	}

	// The job insert and the PENDING -> QUEUED transition commit together so
	// a queued asset always has its job and vice versa.
	txErr := o.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Jobs().Create(ctx, job); err != nil {
			return err
		}
		return repos.Assets().TransitionStatus(ctx, res.AssetID, domain.IngestionStatusQueued, "analysis job enqueued", "")
	})
	if txErr != nil {
		// The asset is persisted; scheduling can be retried by an operator.
		// This is a degraded success, not a failure.
		log.Printf("ingest: asset %s persisted but scheduling failed (correlation %s): %v", res.AssetID, cid, txErr)
		o.tracker.Trace(ctx, cid, "background processing not yet scheduled", map[string]any{
			"assetId": res.AssetID,
		})
		return &IngestResult{
			Outcome:       PrepareOutcomePending,
			AssetID:       res.AssetID,
			CorrelationID: cid,
			Resurrected:   res.Resurrected,
			Degraded:      true,
		}, nil
	}

	o.tracker.Status(ctx, cid, "queued", map[string]any{
		"assetId": res.AssetID,
		"jobId":   job.ID,
	})

	return &IngestResult{
		Outcome:       PrepareOutcomePending,
		AssetID:       res.AssetID,
		JobID:         job.ID,
		CorrelationID: cid,
		Resurrected:   res.Resurrected,
	}, nil
}

// GetStatus returns the current lifecycle state of an asset
func (o *IngestionOrchestrator) GetStatus(ctx context.Context, assets AssetRepositoryInterface, assetID string) (*domain.KnowledgeAsset, error) {
	return assets.GetByID(ctx, assetID)
}
