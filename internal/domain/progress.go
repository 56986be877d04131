package domain

import (
	"encoding/json"
	"time"
)

// ProgressEventType names the push-stream events surfaced to clients
type ProgressEventType string

const (
	ProgressEventStatus   ProgressEventType = "status"
	ProgressEventTrace    ProgressEventType = "trace"
	ProgressEventComplete ProgressEventType = "complete"
	ProgressEventError    ProgressEventType = "error"
)

// ProgressEvent is one append-only status/log entry for a correlation id
type ProgressEvent struct {
	ID            int64
	CorrelationID string
	Type          ProgressEventType
	Payload       json.RawMessage
	CreatedAt     time.Time
}

// IsTerminal reports whether the event ends the progress stream
func (t ProgressEventType) IsTerminal() bool {
	return t == ProgressEventComplete || t == ProgressEventError
}
