package repository

import (
	"context"
	"time"

	"github.com/docuforge/docuforge/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// ChunkRepository persists document chunks with their embeddings. Writes are
// idempotent on (asset_id, chunk_index) so a retried analysis job never
// duplicates chunks from a partially completed earlier attempt.
type ChunkRepository struct {
	db dbtx
}

func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{db: pool}
}

func NewChunkRepositoryWithTx(tx pgx.Tx) *ChunkRepository {
	return &ChunkRepository{db: tx}
}

// UpsertChunks writes chunks for an asset, replacing any existing chunk at
// the same index.
func (r *ChunkRepository) UpsertChunks(ctx context.Context, chunks []domain.DocumentChunk) error {
	for _, c := range chunks {
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		_, err := r.db.Exec(ctx,
			`INSERT INTO document_chunks
				(asset_id, tenant_id, environment, chunk_index, content, embedding, approx_page, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (asset_id, chunk_index)
			 DO UPDATE SET content = EXCLUDED.content,
			               embedding = EXCLUDED.embedding,
			               approx_page = EXCLUDED.approx_page`,
			c.AssetID, c.TenantID, c.Environment, c.ChunkIndex, c.Content,
			pgvector.NewVector(c.Embedding), c.ApproxPage, createdAt,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *ChunkRepository) CountByAsset(ctx context.Context, assetID string) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM document_chunks WHERE asset_id = $1`, assetID,
	).Scan(&count)
	return count, err
}

// DeleteByAsset removes all chunks for an asset, e.g. before reprocessing
func (r *ChunkRepository) DeleteByAsset(ctx context.Context, assetID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM document_chunks WHERE asset_id = $1`, assetID)
	return err
}

// ListByAsset returns an asset's chunks in index order, without embeddings
func (r *ChunkRepository) ListByAsset(ctx context.Context, assetID string) ([]domain.DocumentChunk, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, asset_id, tenant_id, environment, chunk_index, content, approx_page, created_at
		 FROM document_chunks WHERE asset_id = $1 ORDER BY chunk_index ASC`,
		assetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []domain.DocumentChunk
	for rows.Next() {
		var c domain.DocumentChunk
		if err := rows.Scan(&c.ID, &c.AssetID, &c.TenantID, &c.Environment, &c.ChunkIndex, &c.Content, &c.ApproxPage, &c.CreatedAt); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}
