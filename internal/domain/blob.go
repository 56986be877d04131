package domain

import "time"

// PhysicalBlob is a content-addressed storage record keyed by content hash
// alone. Blobs are shared across tenants: the first upload of a given hash
// creates the record, later uploads of the same bytes increment RefCount.
// The underlying bytes are deleted only when RefCount reaches zero.
type PhysicalBlob struct {
	ContentHash string
	RefCount    int64
	LocationRef string // pointer into the external blob store
	SizeBytes   int64
	CreatedAt   time.Time
}
