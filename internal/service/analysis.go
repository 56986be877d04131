package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/docuforge/docuforge/internal/domain"
)

// AnalysisAssetRepository is the asset surface the worker needs
type AnalysisAssetRepository interface {
	GetByID(ctx context.Context, id string) (*domain.KnowledgeAsset, error)
	TransitionStatus(ctx context.Context, id string, to domain.IngestionStatus, reason, errMsg string) error
	SetNextReviewDate(ctx context.Context, id string, next time.Time) error
}

// ChunkRepositoryInterface persists embedded document chunks
type ChunkRepositoryInterface interface {
	UpsertChunks(ctx context.Context, chunks []domain.DocumentChunk) error
}

// BlobDownloader fetches stored blob bytes by storage ref
type BlobDownloader interface {
	Download(ctx context.Context, key string) ([]byte, error)
}

const (
	// DefaultAnalysisConcurrency bounds jobs processed in parallel per batch
	DefaultAnalysisConcurrency = 4
	// DefaultClaimBatchSize is how many runnable jobs one poll claims
	DefaultClaimBatchSize = 8
	// DefaultReviewInterval is how long an analyzed asset stays fresh
	DefaultReviewInterval = 180 * 24 * time.Hour
)

// errAbandoned marks a job whose asset is no longer in a claimable state.
// The job completes without doing work; whoever moved the asset owns it.
var errAbandoned = errors.New("asset not claimable")

// AnalysisWorkerConfig tunes the worker
type AnalysisWorkerConfig struct {
	Concurrency    int
	ClaimBatchSize int
	ReviewInterval time.Duration
	Chunking       ChunkConfig
}

// AnalysisWorker drains the analysis queue: it downloads the asset's blob,
// extracts and optionally masks text, chunks it, embeds each chunk, and
// persists the chunks idempotently. The asset's status row is the work mutex;
// the QUEUED -> PROCESSING transition is the claim.
type AnalysisWorker struct {
	queue     *JobQueue
	assets    AnalysisAssetRepository
	chunks    ChunkRepositoryInterface
	blobs     BlobDownloader
	extractor TextExtractor
	masker    PIIMasker
	embedder  EmbeddingClient
	tracker   *ProgressTracker
	cfg       AnalysisWorkerConfig
}

func NewAnalysisWorker(
	queue *JobQueue,
	assets AnalysisAssetRepository,
	chunks ChunkRepositoryInterface,
	blobs BlobDownloader,
	extractor TextExtractor,
	masker PIIMasker,
	embedder EmbeddingClient,
	tracker *ProgressTracker,
	cfg AnalysisWorkerConfig,
) *AnalysisWorker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultAnalysisConcurrency
	}
	if cfg.ClaimBatchSize <= 0 {
		cfg.ClaimBatchSize = DefaultClaimBatchSize
	}
	if cfg.ReviewInterval <= 0 {
		cfg.ReviewInterval = DefaultReviewInterval
	}
	if cfg.Chunking.MaxChars <= 0 {
		cfg.Chunking = DefaultChunkConfig()
	}
	return &AnalysisWorker{
		queue:     queue,
		assets:    assets,
		chunks:    chunks,
		blobs:     blobs,
		extractor: extractor,
		masker:    masker,
		embedder:  embedder,
		tracker:   tracker,
		cfg:       cfg,
	}
}

// ProcessDue claims and processes one batch of runnable jobs, returning the
// number of jobs handled.
func (w *AnalysisWorker) ProcessDue(ctx context.Context) (int, error) {
	jobs, err := w.queue.Claim(ctx, w.cfg.ClaimBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to claim jobs: %w", err)
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.Concurrency)
	for _, job := range jobs {
		job := job
		g.Go(func() error {
			w.runJob(gctx, job)
			return nil
		})
	}
	_ = g.Wait()
	return len(jobs), nil
}

// runJob processes one claimed job and settles its queue state. Job-level
// failures never propagate: they are recorded against the job and retried or
// terminally failed per the retry budget.
func (w *AnalysisWorker) runJob(ctx context.Context, job *domain.IngestJob) {
	err := w.processJob(ctx, job)
	if err == nil || errors.Is(err, errAbandoned) {
		if errors.Is(err, errAbandoned) {
			log.Printf("analysis: job %s abandoned, asset no longer claimable", job.ID)
		}
		if cerr := w.queue.Complete(ctx, job); cerr != nil {
			log.Printf("analysis: failed to complete job %s: %v", job.ID, cerr)
		}
		return
	}

	log.Printf("analysis: job %s attempt %d failed: %v", job.ID, job.Attempts, err)
	terminal, ferr := w.queue.Fail(ctx, job, err)
	if ferr != nil {
		log.Printf("analysis: failed to settle job %s: %v", job.ID, ferr)
		return
	}
	if !terminal {
		return
	}

	// Retry budget exhausted: the asset carries the failure.
	if terr := w.assets.TransitionStatus(ctx, job.AssetID, domain.IngestionStatusError,
		"analysis retries exhausted", err.Error()); terr != nil {
		log.Printf("analysis: failed to mark asset %s ERROR: %v", job.AssetID, terr)
	}
	w.tracker.Error(ctx, job.CorrelationID, "document analysis failed")
}

func (w *AnalysisWorker) processJob(ctx context.Context, job *domain.IngestJob) error {
	payload, err := job.AnalysisPayload()
	if err != nil {
		return err
	}
	cid := payload.CorrelationID

	asset, err := w.assets.GetByID(ctx, payload.AssetID)
	if err != nil {
		return fmt.Errorf("failed to load asset %s: %w", payload.AssetID, err)
	}

	if err := w.claimAsset(ctx, asset, job); err != nil {
		return err
	}
	w.tracker.Status(ctx, cid, "processing", map[string]any{"assetId": asset.ID})

	data, err := w.blobs.Download(ctx, asset.BlobRef)
	if err != nil {
		return fmt.Errorf("failed to download blob %s: %w", asset.BlobRef, err)
	}
	w.tracker.Trace(ctx, cid, "blob downloaded", map[string]any{"sizeBytes": len(data)})

	text, err := w.extractor.ExtractText(ctx, data)
	if err != nil {
		return fmt.Errorf("text extraction failed: %w", err)
	}
	w.tracker.Trace(ctx, cid, "text extracted", map[string]any{"chars": len(text)})

	if payload.MaskPII {
		masked, err := w.masker.DetectAndMask(ctx, text)
		if err != nil {
			return fmt.Errorf("pii masking failed: %w", err)
		}
		text = masked.Masked
		w.tracker.Trace(ctx, cid, "pii masked", map[string]any{"detections": masked.Detections})
	}

	pieces := chunkDocument(text, w.cfg.Chunking)
	if len(pieces) == 0 {
		return domain.NewDomainError(domain.ErrCodeAnalysis, "document yielded no text")
	}

	chunks := make([]domain.DocumentChunk, 0, len(pieces))
	now := time.Now().UTC()
	for _, piece := range pieces {
		embedding, err := w.embedder.GenerateEmbedding(ctx, piece.Content)
		if err != nil {
			return fmt.Errorf("embedding chunk %d failed: %w", piece.Index, err)
		}
		chunks = append(chunks, domain.DocumentChunk{
			AssetID:     asset.ID,
			TenantID:    asset.TenantID,
			Environment: asset.Environment,
			ChunkIndex:  piece.Index,
			Content:     piece.Content,
			Embedding:   embedding,
			ApproxPage:  piece.ApproxPage,
			CreatedAt:   now,
		})
	}

	// Upsert keyed on (asset, index) so a retried attempt overwrites its own
	// partial progress instead of duplicating it.
	if err := w.chunks.UpsertChunks(ctx, chunks); err != nil {
		return fmt.Errorf("failed to persist chunks: %w", err)
	}
	w.tracker.Trace(ctx, cid, "chunks embedded", map[string]any{"chunks": len(chunks)})

	if err := w.assets.TransitionStatus(ctx, asset.ID, domain.IngestionStatusAnalyzed,
		"analysis completed", ""); err != nil {
		return fmt.Errorf("failed to finalize asset %s: %w", asset.ID, err)
	}
	if err := w.assets.SetNextReviewDate(ctx, asset.ID, now.Add(w.cfg.ReviewInterval)); err != nil {
		log.Printf("analysis: failed to set review date on asset %s: %v", asset.ID, err)
	}

	w.tracker.Complete(ctx, cid, map[string]any{
		"assetId": asset.ID,
		"chunks":  len(chunks),
	})
	return nil
}

// claimAsset takes ownership of the asset for this attempt. A first attempt
// claims via QUEUED -> PROCESSING; a retry resumes an asset its own earlier
// attempt left in PROCESSING. A job the operator reset after a terminal
// failure counts as a retry: its attempt counter starts over but the recorded
// failure marks the earlier work. Anything else means the asset moved on and
// the job is abandoned.
func (w *AnalysisWorker) claimAsset(ctx context.Context, asset *domain.KnowledgeAsset, job *domain.IngestJob) error {
	switch asset.IngestionStatus {
	case domain.IngestionStatusQueued:
		if err := w.assets.TransitionStatus(ctx, asset.ID, domain.IngestionStatusProcessing,
			"analysis started", ""); err != nil {
			var illegal *domain.IllegalTransitionError
			if errors.As(err, &illegal) {
				return errAbandoned
			}
			return fmt.Errorf("failed to claim asset %s: %w", asset.ID, err)
		}
		return nil
	case domain.IngestionStatusProcessing:
		if job.Attempts > 1 || job.Error != "" {
			return nil
		}
		return errAbandoned
	default:
		return errAbandoned
	}
}
