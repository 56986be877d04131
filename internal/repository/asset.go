package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/docuforge/docuforge/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dedupConstraint = "idx_knowledge_assets_dedup"

const assetColumns = `id, tenant_id, environment, content_hash, filename, metadata, blob_ref,
		size_bytes, ingestion_status, error, correlation_id, review_status, next_review_date,
		created_at, updated_at`

// AssetRepository persists knowledge asset metadata and status. The dedup
// invariant lives in the unique index on (tenant_id, environment,
// content_hash); Insert surfaces violations as domain.ErrAssetAlreadyExists.
type AssetRepository struct {
	db   dbtx
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func NewAssetRepository(pool *pgxpool.Pool) *AssetRepository {
	return &AssetRepository{db: pool, pool: pool}
}

func NewAssetRepositoryWithTx(tx pgx.Tx) *AssetRepository {
	return &AssetRepository{db: tx, tx: tx}
}

// Insert atomically creates a new asset row. A unique violation on the dedup
// index means another request already owns this content for the tenant and
// environment; the caller resolves that race via GetByContentHash.
func (r *AssetRepository) Insert(ctx context.Context, a *domain.KnowledgeAsset) error {
	metadata, err := json.Marshal(a.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode asset metadata: %w", err)
	}
	if a.Metadata == nil {
		metadata = []byte(`{}`)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO knowledge_assets (`+assetColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		a.ID, a.TenantID, a.Environment, a.ContentHash, a.Filename, metadata,
		nullableString(a.BlobRef), a.SizeBytes, a.IngestionStatus, nullableString(a.Error),
		a.CorrelationID, a.ReviewStatus, a.NextReviewDate, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, dedupConstraint) {
			return domain.ErrAssetAlreadyExists
		}
		return err
	}
	return nil
}

func (r *AssetRepository) GetByID(ctx context.Context, id string) (*domain.KnowledgeAsset, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+assetColumns+` FROM knowledge_assets WHERE id = $1`, id)
	return scanAsset(row)
}

// GetByContentHash resolves the asset owning the given content for a tenant
// and environment. Used to resolve the loser side of the dedup race.
func (r *AssetRepository) GetByContentHash(ctx context.Context, tenantID string, env domain.Environment, contentHash string) (*domain.KnowledgeAsset, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+assetColumns+` FROM knowledge_assets
		 WHERE tenant_id = $1 AND environment = $2 AND content_hash = $3`,
		tenantID, env, contentHash)
	return scanAsset(row)
}

// SetBlobRef records the storage pointer once the physical upload completed
func (r *AssetRepository) SetBlobRef(ctx context.Context, id, blobRef string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE knowledge_assets SET blob_ref = $1, updated_at = $2 WHERE id = $3`,
		blobRef, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrAssetNotFound
	}
	return nil
}

// TransitionStatus applies a validated status transition. The current status
// is read under FOR UPDATE in the same transaction that writes the new
// status, and every attempt appends one audit record. A denied transition
// still commits its audit row before the IllegalTransitionError is returned.
func (r *AssetRepository) TransitionStatus(ctx context.Context, id string, to domain.IngestionStatus, reason, errMsg string) error {
	if r.tx != nil {
		return transitionStatus(ctx, r.tx, id, to, reason, errMsg)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transition transaction: %w", err)
	}

	terr := transitionStatus(ctx, tx, id, to, reason, errMsg)
	var illegal *domain.IllegalTransitionError
	if terr != nil && !errors.As(terr, &illegal) {
		_ = tx.Rollback(ctx)
		return terr
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transition: %w", err)
	}
	return terr
}

func transitionStatus(ctx context.Context, tx pgx.Tx, id string, to domain.IngestionStatus, reason, errMsg string) error {
	var current domain.IngestionStatus
	var tenantID, correlationID string
	err := tx.QueryRow(ctx,
		`SELECT ingestion_status, tenant_id, correlation_id
		 FROM knowledge_assets WHERE id = $1 FOR UPDATE`,
		id,
	).Scan(&current, &tenantID, &correlationID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrAssetNotFound
		}
		return err
	}

	verr := domain.ValidateTransition(current, to)

	_, err = tx.Exec(ctx,
		`INSERT INTO transition_audit
			(asset_id, tenant_id, correlation_id, from_status, to_status, allowed, reason, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, tenantID, correlationID, current, to, verr == nil, nullableString(reason), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record transition audit: %w", err)
	}

	if verr != nil {
		return verr
	}

	_, err = tx.Exec(ctx,
		`UPDATE knowledge_assets SET ingestion_status = $1, error = $2, updated_at = $3 WHERE id = $4`,
		to, nullableString(errMsg), time.Now().UTC(), id,
	)
	return err
}

// SetError labels an asset ERROR with a message, bypassing the transition
// table. Only the synchronous prepare path uses this, to guarantee no
// partially created record is left unlabeled when materialization fails
// before the asset ever entered the queue.
func (r *AssetRepository) SetError(ctx context.Context, id, errMsg string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE knowledge_assets SET ingestion_status = $1, error = $2, updated_at = $3 WHERE id = $4`,
		domain.IngestionStatusError, nullableString(errMsg), time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrAssetNotFound
	}
	return nil
}

// SetNextReviewDate schedules the next lifecycle review for an asset
func (r *AssetRepository) SetNextReviewDate(ctx context.Context, id string, next time.Time) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE knowledge_assets SET next_review_date = $1, updated_at = $2 WHERE id = $3`,
		next, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrAssetNotFound
	}
	return nil
}

// MarkReviewStatus updates the review lifecycle dimension of an asset
func (r *AssetRepository) MarkReviewStatus(ctx context.Context, id string, status domain.ReviewStatus) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE knowledge_assets SET review_status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrAssetNotFound
	}
	return nil
}

// ListReviewDue returns ANALYZED assets whose review date has passed and
// that have not already been marked expired.
func (r *AssetRepository) ListReviewDue(ctx context.Context, now time.Time, limit int) ([]*domain.KnowledgeAsset, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+assetColumns+` FROM knowledge_assets
		 WHERE ingestion_status = $1 AND next_review_date IS NOT NULL
		   AND next_review_date < $2 AND review_status <> $3
		 ORDER BY next_review_date ASC
		 LIMIT $4`,
		domain.IngestionStatusAnalyzed, now, domain.ReviewStatusExpired, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAssets(rows)
}

// ListExpiring returns a tenant's ANALYZED assets whose review date falls
// within the given window.
func (r *AssetRepository) ListExpiring(ctx context.Context, tenantID string, before time.Time) ([]*domain.KnowledgeAsset, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+assetColumns+` FROM knowledge_assets
		 WHERE tenant_id = $1 AND ingestion_status = $2
		   AND next_review_date IS NOT NULL AND next_review_date < $3
		 ORDER BY next_review_date ASC`,
		tenantID, domain.IngestionStatusAnalyzed, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAssets(rows)
}

// CountStaleInFlight counts PENDING/QUEUED assets older than the cutoff.
// Surfaced in the review sweep summary so operators can spot stuck uploads.
func (r *AssetRepository) CountStaleInFlight(ctx context.Context, olderThan time.Time) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM knowledge_assets
		 WHERE ingestion_status IN ($1, $2) AND updated_at < $3`,
		domain.IngestionStatusPending, domain.IngestionStatusQueued, olderThan,
	).Scan(&count)
	return count, err
}

// Delete removes an asset; document chunks cascade with it
func (r *AssetRepository) Delete(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM knowledge_assets WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrAssetNotFound
	}
	return nil
}

func scanAsset(row pgx.Row) (*domain.KnowledgeAsset, error) {
	var a domain.KnowledgeAsset
	var metadata []byte
	var blobRef, errMsg pgtype.Text
	var nextReview pgtype.Timestamptz
	err := row.Scan(
		&a.ID, &a.TenantID, &a.Environment, &a.ContentHash, &a.Filename, &metadata,
		&blobRef, &a.SizeBytes, &a.IngestionStatus, &errMsg, &a.CorrelationID,
		&a.ReviewStatus, &nextReview, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAssetNotFound
		}
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &a.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode asset metadata: %w", err)
		}
	}
	if blobRef.Valid {
		a.BlobRef = blobRef.String
	}
	if errMsg.Valid {
		a.Error = errMsg.String
	}
	if nextReview.Valid {
		t := nextReview.Time
		a.NextReviewDate = &t
	}
	return &a, nil
}

func scanAssets(rows pgx.Rows) ([]*domain.KnowledgeAsset, error) {
	var assets []*domain.KnowledgeAsset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}
