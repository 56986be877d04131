package service

import (
	"context"
	"log"
	"time"

	"github.com/docuforge/docuforge/internal/domain"
)

// ReviewAssetRepository is the asset surface the sweeper needs
type ReviewAssetRepository interface {
	ListReviewDue(ctx context.Context, now time.Time, limit int) ([]*domain.KnowledgeAsset, error)
	MarkReviewStatus(ctx context.Context, id string, status domain.ReviewStatus) error
	CountStaleInFlight(ctx context.Context, olderThan time.Time) (int64, error)
}

// LifecycleAuditor records non-transition lifecycle events
type LifecycleAuditor interface {
	Record(ctx context.Context, rec *domain.TransitionRecord) error
}

const (
	// DefaultSweepBatchSize bounds assets examined per sweep
	DefaultSweepBatchSize = 500
	// DefaultStaleThreshold is how old an in-flight asset must be before the
	// sweep summary counts it as stuck
	DefaultStaleThreshold = 1 * time.Hour
)

// SweepResult summarizes one review sweep
type SweepResult struct {
	Processed     int
	Updated       int
	StaleInFlight int64
}

// ReviewScheduler expires analyzed assets whose review date has passed.
// Expiry is a review-lifecycle change only; the asset keeps ANALYZED so its
// chunks stay searchable while flagged for re-review.
type ReviewScheduler struct {
	assets         ReviewAssetRepository
	audit          LifecycleAuditor
	batchSize      int
	staleThreshold time.Duration
}

func NewReviewScheduler(assets ReviewAssetRepository, audit LifecycleAuditor) *ReviewScheduler {
	return &ReviewScheduler{
		assets:         assets,
		audit:          audit,
		batchSize:      DefaultSweepBatchSize,
		staleThreshold: DefaultStaleThreshold,
	}
}

// Sweep expires every ANALYZED asset whose nextReviewDate is before now.
// Per-asset failures are logged and skipped so one bad row never aborts the
// batch.
func (s *ReviewScheduler) Sweep(ctx context.Context, now time.Time) (*SweepResult, error) {
	due, err := s.assets.ListReviewDue(ctx, now, s.batchSize)
	if err != nil {
		return nil, err
	}

	result := &SweepResult{Processed: len(due)}
	for _, asset := range due {
		if err := s.assets.MarkReviewStatus(ctx, asset.ID, domain.ReviewStatusExpired); err != nil {
			log.Printf("review: failed to expire asset %s: %v", asset.ID, err)
			continue
		}
		result.Updated++

		rec := &domain.TransitionRecord{
			AssetID:       asset.ID,
			TenantID:      asset.TenantID,
			CorrelationID: asset.CorrelationID,
			From:          asset.IngestionStatus,
			To:            asset.IngestionStatus,
			Allowed:       true,
			Reason:        "review period expired",
			CreatedAt:     now,
		}
		if err := s.audit.Record(ctx, rec); err != nil {
			log.Printf("review: failed to audit expiry of asset %s: %v", asset.ID, err)
		}
	}

	stale, err := s.assets.CountStaleInFlight(ctx, now.Add(-s.staleThreshold))
	if err != nil {
		log.Printf("review: failed to count stale in-flight assets: %v", err)
	} else {
		result.StaleInFlight = stale
	}

	log.Printf("review: sweep processed=%d updated=%d staleInFlight=%d",
		result.Processed, result.Updated, result.StaleInFlight)
	return result, nil
}
