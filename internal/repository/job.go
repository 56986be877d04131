package repository

import (
	"context"
	"errors"
	"time"

	"github.com/docuforge/docuforge/internal/domain"
	"github.com/docuforge/docuforge/internal/pagination"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const jobColumns = `id, job_type, asset_id, tenant_id, correlation_id, payload, status,
		attempts, max_attempts, priority, next_attempt_at, error, enqueued_at, finished_at`

// JobRepository persists durable ingest jobs. Claiming uses
// FOR UPDATE SKIP LOCKED so concurrent workers never double-claim a job.
type JobRepository struct {
	db dbtx
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{db: pool}
}

func NewJobRepositoryWithTx(tx pgx.Tx) *JobRepository {
	return &JobRepository{db: tx}
}

func (r *JobRepository) Create(ctx context.Context, job *domain.IngestJob) error {
	payload := job.Payload
	if len(payload) == 0 {
		payload = []byte(`{}`)
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO ingest_jobs (`+jobColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		job.ID, job.Type, job.AssetID, job.TenantID, job.CorrelationID, payload,
		job.Status, job.Attempts, job.MaxAttempts, job.Priority, job.NextAttemptAt,
		nullableString(job.Error), job.EnqueuedAt, job.FinishedAt,
	)
	return err
}

func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.IngestJob, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM ingest_jobs WHERE id = $1`, id)
	return scanJob(row)
}

// ClaimRunnable atomically claims up to limit pending jobs whose backoff
// delay has elapsed, marking them running and counting the attempt.
func (r *JobRepository) ClaimRunnable(ctx context.Context, jobType domain.JobType, limit int) ([]*domain.IngestJob, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(ctx,
		`WITH cte AS (
			 SELECT id
			 FROM ingest_jobs
			 WHERE job_type = $1 AND status = $2 AND next_attempt_at <= $3
			 ORDER BY priority DESC, enqueued_at ASC
			 FOR UPDATE SKIP LOCKED
			 LIMIT $4
		 )
		 UPDATE ingest_jobs
		 SET status = $5,
		     attempts = ingest_jobs.attempts + 1
		 FROM cte
		 WHERE ingest_jobs.id = cte.id
		 RETURNING `+qualifiedJobColumns(),
		jobType, domain.JobStatusPending, time.Now().UTC(), limit, domain.JobStatusRunning,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*domain.IngestJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// MarkCompleted records a successful terminal outcome
func (r *JobRepository) MarkCompleted(ctx context.Context, id string) error {
	return r.finish(ctx, id, domain.JobStatusCompleted, "")
}

// MarkFailed records a terminal failure after the retry budget is exhausted
func (r *JobRepository) MarkFailed(ctx context.Context, id, errMsg string) error {
	return r.finish(ctx, id, domain.JobStatusFailed, errMsg)
}

func (r *JobRepository) finish(ctx context.Context, id string, status domain.JobStatus, errMsg string) error {
	now := time.Now().UTC()
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE ingest_jobs SET status = $1, error = $2, finished_at = $3 WHERE id = $4`,
		status, nullableString(errMsg), now, id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

// Reschedule returns a running job to pending with a new attempt time
func (r *JobRepository) Reschedule(ctx context.Context, id string, next time.Time, errMsg string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE ingest_jobs SET status = $1, next_attempt_at = $2, error = $3 WHERE id = $4`,
		domain.JobStatusPending, next, nullableString(errMsg), id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

// Reset returns a failed job to pending for a fresh retry budget. The last
// failure message stays on the row: the retried attempt uses it to recognize
// that it is resuming earlier work.
func (r *JobRepository) Reset(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE ingest_jobs
		 SET status = $1, attempts = 0, finished_at = NULL, next_attempt_at = $2
		 WHERE id = $3 AND status = $4`,
		domain.JobStatusPending, time.Now().UTC(), id, domain.JobStatusFailed,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrJobNotRetryable
	}
	return nil
}

func (r *JobRepository) Delete(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx,
		`DELETE FROM ingest_jobs WHERE id = $1 AND status <> $2`,
		id, domain.JobStatusRunning,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

// List returns jobs filtered by type and states, newest first, cursor-paged
func (r *JobRepository) List(ctx context.Context, jobType domain.JobType, states []domain.JobStatus, limit int, cursor *pagination.Cursor) ([]*domain.IngestJob, error) {
	if limit <= 0 {
		limit = 50
	}
	if len(states) == 0 {
		states = []domain.JobStatus{
			domain.JobStatusPending, domain.JobStatusRunning,
			domain.JobStatusCompleted, domain.JobStatusFailed,
		}
	}

	stateStrings := make([]string, 0, len(states))
	for _, s := range states {
		stateStrings = append(stateStrings, string(s))
	}

	query := `SELECT ` + jobColumns + ` FROM ingest_jobs
		 WHERE job_type = $1 AND status = ANY($2)`
	args := []any{jobType, stateStrings}

	if cursor != nil {
		query += ` AND (enqueued_at, id) < ($3, $4) ORDER BY enqueued_at DESC, id DESC LIMIT $5`
		args = append(args, cursor.Timestamp, cursor.LastID, limit)
	} else {
		query += ` ORDER BY enqueued_at DESC, id DESC LIMIT $3`
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*domain.IngestJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// PruneHistory deletes terminal jobs beyond the newest keep entries. The
// bounded history is an explicit resource limit, not unlimited retention.
func (r *JobRepository) PruneHistory(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		keep = 180
	}
	cmdTag, err := r.db.Exec(ctx,
		`DELETE FROM ingest_jobs
		 WHERE status IN ($1, $2)
		   AND id NOT IN (
			 SELECT id FROM ingest_jobs
			 WHERE status IN ($1, $2)
			 ORDER BY finished_at DESC NULLS LAST
			 LIMIT $3
		   )`,
		domain.JobStatusCompleted, domain.JobStatusFailed, keep,
	)
	if err != nil {
		return 0, err
	}
	return cmdTag.RowsAffected(), nil
}

func scanJob(row pgx.Row) (*domain.IngestJob, error) {
	var job domain.IngestJob
	var errMsg pgtype.Text
	var finishedAt pgtype.Timestamptz
	err := row.Scan(
		&job.ID, &job.Type, &job.AssetID, &job.TenantID, &job.CorrelationID, &job.Payload,
		&job.Status, &job.Attempts, &job.MaxAttempts, &job.Priority, &job.NextAttemptAt,
		&errMsg, &job.EnqueuedAt, &finishedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, err
	}
	if errMsg.Valid {
		job.Error = errMsg.String
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		job.FinishedAt = &t
	}
	return &job, nil
}

func qualifiedJobColumns() string {
	return `ingest_jobs.id, ingest_jobs.job_type, ingest_jobs.asset_id, ingest_jobs.tenant_id,
		ingest_jobs.correlation_id, ingest_jobs.payload, ingest_jobs.status, ingest_jobs.attempts,
		ingest_jobs.max_attempts, ingest_jobs.priority, ingest_jobs.next_attempt_at,
		ingest_jobs.error, ingest_jobs.enqueued_at, ingest_jobs.finished_at`
}
