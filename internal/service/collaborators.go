package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// TextExtractor turns raw document bytes into plain text. Network-bound with
// its own latency; always consumed through a retry-wrapped adapter.
type TextExtractor interface {
	ExtractText(ctx context.Context, data []byte) (string, error)
}

// MaskResult is the outcome of PII detection and masking
type MaskResult struct {
	Masked     string
	Detections int
}

// PIIMasker detects and masks personally identifiable information
type PIIMasker interface {
	DetectAndMask(ctx context.Context, text string) (*MaskResult, error)
}

// EmbeddingClient defines the interface for generating embeddings
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

const defaultCollaboratorRetryWindow = 30 * time.Second

func collaboratorBackoff(ctx context.Context, window time.Duration) backoff.BackOff {
	if window <= 0 {
		window = defaultCollaboratorRetryWindow
	}
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = window
	return backoff.WithContext(b, ctx)
}

// RetryingExtractor wraps a TextExtractor with exponential backoff
type RetryingExtractor struct {
	inner  TextExtractor
	window time.Duration
}

func NewRetryingExtractor(inner TextExtractor, window time.Duration) *RetryingExtractor {
	return &RetryingExtractor{inner: inner, window: window}
}

func (r *RetryingExtractor) ExtractText(ctx context.Context, data []byte) (string, error) {
	var text string
	err := backoff.Retry(func() error {
		var err error
		text, err = r.inner.ExtractText(ctx, data)
		return err
	}, collaboratorBackoff(ctx, r.window))
	return text, err
}

// RetryingMasker wraps a PIIMasker with exponential backoff
type RetryingMasker struct {
	inner  PIIMasker
	window time.Duration
}

func NewRetryingMasker(inner PIIMasker, window time.Duration) *RetryingMasker {
	return &RetryingMasker{inner: inner, window: window}
}

func (r *RetryingMasker) DetectAndMask(ctx context.Context, text string) (*MaskResult, error) {
	var result *MaskResult
	err := backoff.Retry(func() error {
		var err error
		result, err = r.inner.DetectAndMask(ctx, text)
		return err
	}, collaboratorBackoff(ctx, r.window))
	return result, err
}

// RetryingEmbedder wraps an EmbeddingClient with exponential backoff
type RetryingEmbedder struct {
	inner  EmbeddingClient
	window time.Duration
}

func NewRetryingEmbedder(inner EmbeddingClient, window time.Duration) *RetryingEmbedder {
	return &RetryingEmbedder{inner: inner, window: window}
}

func (r *RetryingEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	var embedding []float32
	err := backoff.Retry(func() error {
		var err error
		embedding, err = r.inner.GenerateEmbedding(ctx, text)
		return err
	}, collaboratorBackoff(ctx, r.window))
	return embedding, err
}
