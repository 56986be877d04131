package repository

import (
	"context"
	"errors"
	"time"

	"github.com/docuforge/docuforge/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BlobRepository manages reference-counted physical blob records. All
// mutations are atomic SQL increments, never application-level
// read-modify-write.
type BlobRepository struct {
	db dbtx
}

func NewBlobRepository(pool *pgxpool.Pool) *BlobRepository {
	return &BlobRepository{db: pool}
}

func NewBlobRepositoryWithTx(tx pgx.Tx) *BlobRepository {
	return &BlobRepository{db: tx}
}

// AcquireRef upserts the blob record for a content hash. The first caller
// creates the row with ref_count 1 (created == true, meaning the bytes still
// need uploading); every later caller increments the count and gets the
// existing location back. Safe under concurrent invocation for one hash.
func (r *BlobRepository) AcquireRef(ctx context.Context, contentHash, locationRef string, sizeBytes int64) (refCount int64, created bool, existingRef string, err error) {
	err = r.db.QueryRow(ctx,
		`INSERT INTO physical_blobs (content_hash, ref_count, location_ref, size_bytes, created_at)
		 VALUES ($1, 1, $2, $3, $4)
		 ON CONFLICT (content_hash)
		 DO UPDATE SET ref_count = physical_blobs.ref_count + 1
		 RETURNING ref_count, location_ref`,
		contentHash, locationRef, sizeBytes, time.Now().UTC(),
	).Scan(&refCount, &existingRef)
	if err != nil {
		return 0, false, "", err
	}
	return refCount, refCount == 1, existingRef, nil
}

// ReleaseRef atomically decrements the reference count and returns the
// remaining count with the blob's location, so the caller can delete the
// underlying bytes once nothing references them.
func (r *BlobRepository) ReleaseRef(ctx context.Context, contentHash string) (remaining int64, locationRef string, err error) {
	err = r.db.QueryRow(ctx,
		`UPDATE physical_blobs SET ref_count = ref_count - 1
		 WHERE content_hash = $1
		 RETURNING ref_count, location_ref`,
		contentHash,
	).Scan(&remaining, &locationRef)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, "", domain.ErrBlobNotFound
		}
		return 0, "", err
	}
	return remaining, locationRef, nil
}

// DeleteIfUnreferenced removes the record only when its count is still zero,
// guarding against a concurrent re-acquire between release and delete.
func (r *BlobRepository) DeleteIfUnreferenced(ctx context.Context, contentHash string) (bool, error) {
	cmdTag, err := r.db.Exec(ctx,
		`DELETE FROM physical_blobs WHERE content_hash = $1 AND ref_count <= 0`,
		contentHash,
	)
	if err != nil {
		return false, err
	}
	return cmdTag.RowsAffected() > 0, nil
}

func (r *BlobRepository) GetByHash(ctx context.Context, contentHash string) (*domain.PhysicalBlob, error) {
	var b domain.PhysicalBlob
	err := r.db.QueryRow(ctx,
		`SELECT content_hash, ref_count, location_ref, size_bytes, created_at
		 FROM physical_blobs WHERE content_hash = $1`,
		contentHash,
	).Scan(&b.ContentHash, &b.RefCount, &b.LocationRef, &b.SizeBytes, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrBlobNotFound
		}
		return nil, err
	}
	return &b, nil
}
