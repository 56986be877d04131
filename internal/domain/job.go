package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// JobType discriminates the payload and result schema of an ingest job
type JobType string

const (
	JobTypeAnalysis JobType = "analysis"
)

// JobStatus represents the queue state of an ingest job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

const (
	// DefaultMaxAttempts is the default retry budget for a job
	DefaultMaxAttempts = 3
	// BackoffBase is the base delay for exponential retry backoff
	BackoffBase = 1 * time.Second
)

// AnalysisPayload is the payload schema for JobTypeAnalysis jobs
type AnalysisPayload struct {
	AssetID       string      `json:"assetId"`
	TenantID      string      `json:"tenantId"`
	UserID        string      `json:"userId"`
	CorrelationID string      `json:"correlationId"`
	MaskPII       bool        `json:"maskPii"`
	Environment   Environment `json:"environment"`
}

// IngestJob is a durable unit of queued background work. Payload holds the
// JSON-encoded schema selected by Type.
type IngestJob struct {
	ID            string
	Type          JobType
	AssetID       string
	TenantID      string
	CorrelationID string
	Payload       []byte
	Status        JobStatus
	Attempts      int
	MaxAttempts   int
	Priority      int
	NextAttemptAt time.Time
	Error         string
	EnqueuedAt    time.Time
	FinishedAt    *time.Time
}

// NewAnalysisJob creates a pending analysis job for the given payload
func NewAnalysisJob(id string, payload AnalysisPayload, enqueuedAt time.Time) (*IngestJob, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode analysis payload: %w", err)
	}
	return &IngestJob{
		ID:            id,
		Type:          JobTypeAnalysis,
		AssetID:       payload.AssetID,
		TenantID:      payload.TenantID,
		CorrelationID: payload.CorrelationID,
		Payload:       raw,
		Status:        JobStatusPending,
		MaxAttempts:   DefaultMaxAttempts,
		NextAttemptAt: enqueuedAt,
		EnqueuedAt:    enqueuedAt,
	}, nil
}

// AnalysisPayload decodes the job payload for JobTypeAnalysis jobs
func (j *IngestJob) AnalysisPayload() (*AnalysisPayload, error) {
	if j.Type != JobTypeAnalysis {
		return nil, fmt.Errorf("job %s has type %q, not %q", j.ID, j.Type, JobTypeAnalysis)
	}
	var p AnalysisPayload
	if err := json.Unmarshal(j.Payload, &p); err != nil {
		return nil, fmt.Errorf("failed to decode analysis payload for job %s: %w", j.ID, err)
	}
	return &p, nil
}

// AttemptsExhausted reports whether the job has used its full retry budget
func (j *IngestJob) AttemptsExhausted() bool {
	max := j.MaxAttempts
	if max <= 0 {
		max = DefaultMaxAttempts
	}
	return j.Attempts >= max
}

// NextBackoff returns the delay before the next attempt: base delay doubled
// for every attempt already made (1s, 2s, 4s, ...).
func (j *IngestJob) NextBackoff() time.Duration {
	attempts := j.Attempts
	if attempts < 1 {
		attempts = 1
	}
	return BackoffBase << (attempts - 1)
}

// IsValidJobStatus checks if a JobStatus is valid
func IsValidJobStatus(s JobStatus) bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether the job status is terminal
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}
