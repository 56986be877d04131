package domain

import "time"

// DocumentChunk is a retrieval-sized slice of an asset's extracted text with
// its embedding vector. Chunks are owned by their asset and cascade-deleted
// with it. Writes are idempotent on (AssetID, ChunkIndex).
type DocumentChunk struct {
	ID          int64
	AssetID     string
	TenantID    string
	Environment Environment
	ChunkIndex  int
	Content     string
	Embedding   []float32
	ApproxPage  int
	CreatedAt   time.Time
}
