package service

import (
	"context"
	"encoding/json"
	"log"

	"github.com/docuforge/docuforge/internal/domain"
)

// ProgressEventRepository stores append-only progress events
type ProgressEventRepository interface {
	Append(ctx context.Context, correlationID string, eventType domain.ProgressEventType, payload json.RawMessage) error
	ListSince(ctx context.Context, correlationID string, afterID int64) ([]*domain.ProgressEvent, error)
}

// ProgressTracker records observable status and trace events for a
// correlation id. Appends are best-effort: a failed progress write is logged
// and never fails the pipeline it narrates.
type ProgressTracker struct {
	events ProgressEventRepository
}

func NewProgressTracker(events ProgressEventRepository) *ProgressTracker {
	return &ProgressTracker{events: events}
}

// Status records a lifecycle stage change
func (t *ProgressTracker) Status(ctx context.Context, correlationID, stage string, detail map[string]any) {
	t.emit(ctx, correlationID, domain.ProgressEventStatus, mergeDetail(map[string]any{"stage": stage}, detail))
}

// Trace records a diagnostic step within a stage
func (t *ProgressTracker) Trace(ctx context.Context, correlationID, message string, detail map[string]any) {
	t.emit(ctx, correlationID, domain.ProgressEventTrace, mergeDetail(map[string]any{"message": message}, detail))
}

// Complete records the terminal success event, ending the stream
func (t *ProgressTracker) Complete(ctx context.Context, correlationID string, detail map[string]any) {
	t.emit(ctx, correlationID, domain.ProgressEventComplete, detail)
}

// Error records the terminal failure event. The message must already be
// user-safe; raw internal errors stay in the server log keyed by the
// correlation id.
func (t *ProgressTracker) Error(ctx context.Context, correlationID, message string) {
	t.emit(ctx, correlationID, domain.ProgressEventError, map[string]any{
		"message":       message,
		"correlationId": correlationID,
	})
}

// EventsSince returns events appended after the given id
func (t *ProgressTracker) EventsSince(ctx context.Context, correlationID string, afterID int64) ([]*domain.ProgressEvent, error) {
	return t.events.ListSince(ctx, correlationID, afterID)
}

func (t *ProgressTracker) emit(ctx context.Context, correlationID string, eventType domain.ProgressEventType, detail map[string]any) {
	if correlationID == "" {
		return
	}
	if detail == nil {
		detail = map[string]any{}
	}
	payload, err := json.Marshal(detail)
	if err != nil {
		log.Printf("progress: failed to encode %s event for %s: %v", eventType, correlationID, err)
		return
	}
	if err := t.events.Append(ctx, correlationID, eventType, payload); err != nil {
		log.Printf("progress: failed to append %s event for %s: %v", eventType, correlationID, err)
	}
}

func mergeDetail(base, extra map[string]any) map[string]any {
	for k, v := range extra {
		base[k] = v
	}
	return base
}
