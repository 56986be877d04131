package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/docuforge/docuforge/internal/domain"
	"github.com/docuforge/docuforge/internal/pagination"
)

// JobRepositoryInterface is the durable job persistence surface
type JobRepositoryInterface interface {
	Create(ctx context.Context, job *domain.IngestJob) error
	GetByID(ctx context.Context, id string) (*domain.IngestJob, error)
	ClaimRunnable(ctx context.Context, jobType domain.JobType, limit int) ([]*domain.IngestJob, error)
	MarkCompleted(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, errMsg string) error
	Reschedule(ctx context.Context, id string, next time.Time, errMsg string) error
	Reset(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, jobType domain.JobType, states []domain.JobStatus, limit int, cursor *pagination.Cursor) ([]*domain.IngestJob, error)
	PruneHistory(ctx context.Context, keep int) (int64, error)
}

const (
	// DefaultHistoryLimit bounds retained terminal jobs
	DefaultHistoryLimit = 180
	defaultListLimit    = 50
)

// JobQueue schedules and tracks durable background work. It is an explicitly
// constructed instance wired through constructors, never package state; the
// owning process initializes it at startup and drains its worker on shutdown.
type JobQueue struct {
	jobs         JobRepositoryInterface
	uuidGen      UUIDGenerator
	historyLimit int
}

// EnqueueOptions tune scheduling of a single job
type EnqueueOptions struct {
	Priority int
	Delay    time.Duration
}

func NewJobQueue(jobs JobRepositoryInterface) *JobQueue {
	return NewJobQueueWithOptions(jobs, &DefaultUUIDGenerator{}, DefaultHistoryLimit)
}

func NewJobQueueWithOptions(jobs JobRepositoryInterface, uuidGen UUIDGenerator, historyLimit int) *JobQueue {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &JobQueue{
		jobs:         jobs,
		uuidGen:      uuidGen,
		historyLimit: historyLimit,
	}
}

// BuildAnalysisJob constructs a pending analysis job without persisting it,
// so the caller can insert it inside a transaction together with the asset's
// PENDING -> QUEUED transition.
func (q *JobQueue) BuildAnalysisJob(payload domain.AnalysisPayload, opts EnqueueOptions) (*domain.IngestJob, error) {
	now := time.Now().UTC()
	job, err := domain.NewAnalysisJob(q.uuidGen.NewString(), payload, now)
	if err != nil {
		return nil, err
	}
	job.Priority = opts.Priority
	if opts.Delay > 0 {
		job.NextAttemptAt = now.Add(opts.Delay)
	}
	return job, nil
}

// Enqueue persists a new analysis job and returns its id
func (q *JobQueue) Enqueue(ctx context.Context, payload domain.AnalysisPayload, opts EnqueueOptions) (string, error) {
	job, err := q.BuildAnalysisJob(payload, opts)
	if err != nil {
		return "", err
	}
	if err := q.jobs.Create(ctx, job); err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}
	return job.ID, nil
}

// Claim atomically claims up to limit runnable analysis jobs
func (q *JobQueue) Claim(ctx context.Context, limit int) ([]*domain.IngestJob, error) {
	return q.jobs.ClaimRunnable(ctx, domain.JobTypeAnalysis, limit)
}

// JobStatusView is the operator-facing view of one job
type JobStatusView struct {
	JobID         string
	Type          domain.JobType
	State         domain.JobStatus
	AssetID       string
	CorrelationID string
	Attempts      int
	MaxAttempts   int
	FailureReason string
	EnqueuedAt    time.Time
	FinishedAt    *time.Time
}

// GetStatus returns the current state of a job
func (q *JobQueue) GetStatus(ctx context.Context, jobID string) (*JobStatusView, error) {
	job, err := q.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &JobStatusView{
		JobID:         job.ID,
		Type:          job.Type,
		State:         job.Status,
		AssetID:       job.AssetID,
		CorrelationID: job.CorrelationID,
		Attempts:      job.Attempts,
		MaxAttempts:   job.MaxAttempts,
		FailureReason: job.Error,
		EnqueuedAt:    job.EnqueuedAt,
		FinishedAt:    job.FinishedAt,
	}, nil
}

// Complete records success and prunes terminal history past the bound
func (q *JobQueue) Complete(ctx context.Context, job *domain.IngestJob) error {
	if err := q.jobs.MarkCompleted(ctx, job.ID); err != nil {
		return err
	}
	if pruned, err := q.jobs.PruneHistory(ctx, q.historyLimit); err != nil {
		log.Printf("queue: history prune failed: %v", err)
	} else if pruned > 0 {
		log.Printf("queue: pruned %d terminal jobs", pruned)
	}
	return nil
}

// Fail handles one failed attempt. Returns true when the retry budget is
// exhausted and the failure is terminal; otherwise the job is rescheduled
// with exponential backoff (base 1s, doubling per attempt).
func (q *JobQueue) Fail(ctx context.Context, job *domain.IngestJob, cause error) (terminal bool, err error) {
	if job.AttemptsExhausted() {
		msg := fmt.Sprintf("max attempts exceeded: %v", cause)
		if err := q.jobs.MarkFailed(ctx, job.ID, msg); err != nil {
			return true, fmt.Errorf("failed to mark job failed: %w", err)
		}
		if _, err := q.jobs.PruneHistory(ctx, q.historyLimit); err != nil {
			log.Printf("queue: history prune failed: %v", err)
		}
		return true, nil
	}

	delay := job.NextBackoff()
	next := time.Now().UTC().Add(delay)
	msg := fmt.Sprintf("attempt %d/%d failed: %v", job.Attempts, job.MaxAttempts, cause)
	log.Printf("queue: job %s retrying in %s (%s)", job.ID, delay, msg)
	if err := q.jobs.Reschedule(ctx, job.ID, next, msg); err != nil {
		return false, fmt.Errorf("failed to reschedule job: %w", err)
	}
	return false, nil
}

// Retry resets a terminally failed job for a fresh retry budget
func (q *JobQueue) Retry(ctx context.Context, jobID string) error {
	return q.jobs.Reset(ctx, jobID)
}

// Delete removes a non-running job
func (q *JobQueue) Delete(ctx context.Context, jobID string) error {
	return q.jobs.Delete(ctx, jobID)
}

// ListJobs returns a page of jobs filtered by state
func (q *JobQueue) ListJobs(ctx context.Context, states []domain.JobStatus, limit int, cursor string) (*pagination.PageResult[*domain.IngestJob], error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	decoded, err := pagination.DecodeCursor(cursor)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid cursor", err)
	}

	jobs, err := q.jobs.List(ctx, domain.JobTypeAnalysis, states, limit, decoded)
	if err != nil {
		return nil, err
	}

	next := pagination.CreateNextCursor(jobs, limit,
		func(j *domain.IngestJob) string { return j.ID },
		func(j *domain.IngestJob) time.Time { return j.EnqueuedAt },
	)
	return &pagination.PageResult[*domain.IngestJob]{
		Items:   jobs,
		Cursor:  next,
		HasMore: next != "",
	}, nil
}
