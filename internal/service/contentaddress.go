package service

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/docuforge/docuforge/internal/domain"
)

// BlobStorage is the external byte store backing the content address store
type BlobStorage interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Download(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// BlobRepositoryInterface manages reference-counted blob records
type BlobRepositoryInterface interface {
	AcquireRef(ctx context.Context, contentHash, locationRef string, sizeBytes int64) (refCount int64, created bool, existingRef string, err error)
	ReleaseRef(ctx context.Context, contentHash string) (remaining int64, locationRef string, err error)
	DeleteIfUnreferenced(ctx context.Context, contentHash string) (bool, error)
}

// ContentAddressStore deduplicates physical storage: identical bytes uploaded
// by different tenants or documents are stored once and shared through a
// reference count. The blob record's atomic upsert is the only coordination
// point; there is no read-then-write anywhere on this path.
type ContentAddressStore struct {
	blobs   BlobRepositoryInterface
	storage BlobStorage
}

func NewContentAddressStore(blobs BlobRepositoryInterface, storage BlobStorage) *ContentAddressStore {
	return &ContentAddressStore{blobs: blobs, storage: storage}
}

// Resolve streams the upload through MD5, returning the hex fingerprint, the
// byte count, and the spooled bytes for the subsequent Acquire.
func (s *ContentAddressStore) Resolve(r io.Reader) (contentHash string, size int64, data []byte, err error) {
	h := md5.New()
	var buf bytes.Buffer
	size, err = io.Copy(&buf, io.TeeReader(r, h))
	if err != nil {
		return "", 0, nil, fmt.Errorf("failed to read upload: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), size, buf.Bytes(), nil
}

// Acquire materializes the blob for a content hash and returns its storage
// ref. Idempotent: the first caller for a hash uploads the bytes, later
// callers only bump the reference count and reuse the existing location.
func (s *ContentAddressStore) Acquire(ctx context.Context, contentHash string, data []byte) (string, error) {
	key := blobKey(contentHash)

	_, created, existingRef, err := s.blobs.AcquireRef(ctx, contentHash, key, int64(len(data)))
	if err != nil {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeTransientInfra, "failed to acquire blob reference", err)
	}
	if !created {
		return existingRef, nil
	}

	if err := s.storage.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), "application/octet-stream"); err != nil {
		// Undo the reference we just created so a later upload can retry.
		if remaining, _, rerr := s.blobs.ReleaseRef(ctx, contentHash); rerr == nil && remaining <= 0 {
			_, _ = s.blobs.DeleteIfUnreferenced(ctx, contentHash)
		}
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeTransientInfra, "failed to upload blob", err)
	}

	return key, nil
}

// Release drops one reference to a content hash and deletes the underlying
// bytes once nothing points at them anymore.
func (s *ContentAddressStore) Release(ctx context.Context, contentHash string) error {
	remaining, locationRef, err := s.blobs.ReleaseRef(ctx, contentHash)
	if err != nil {
		return err
	}
	if remaining > 0 {
		return nil
	}

	deleted, err := s.blobs.DeleteIfUnreferenced(ctx, contentHash)
	if err != nil {
		return err
	}
	if !deleted {
		// A concurrent Acquire revived the blob between decrement and delete.
		return nil
	}

	if err := s.storage.Delete(ctx, locationRef); err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeTransientInfra, "failed to delete blob bytes", err)
	}
	return nil
}

func blobKey(contentHash string) string {
	if len(contentHash) < 2 {
		return "blobs/" + contentHash
	}
	return fmt.Sprintf("blobs/%s/%s", contentHash[:2], contentHash)
}
