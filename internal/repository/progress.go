package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/docuforge/docuforge/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ProgressRepository stores append-only progress events per correlation id
type ProgressRepository struct {
	db dbtx
}

func NewProgressRepository(pool *pgxpool.Pool) *ProgressRepository {
	return &ProgressRepository{db: pool}
}

func (r *ProgressRepository) Append(ctx context.Context, correlationID string, eventType domain.ProgressEventType, payload json.RawMessage) error {
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO progress_events (correlation_id, event_type, payload, created_at)
		 VALUES ($1, $2, $3, $4)`,
		correlationID, eventType, payload, time.Now().UTC(),
	)
	return err
}

// ListSince returns events for a correlation id with an id greater than
// afterID, in append order. The SSE handler polls this.
func (r *ProgressRepository) ListSince(ctx context.Context, correlationID string, afterID int64) ([]*domain.ProgressEvent, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, correlation_id, event_type, payload, created_at
		 FROM progress_events
		 WHERE correlation_id = $1 AND id > $2
		 ORDER BY id ASC`,
		correlationID, afterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.ProgressEvent
	for rows.Next() {
		var ev domain.ProgressEvent
		if err := rows.Scan(&ev.ID, &ev.CorrelationID, &ev.Type, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, &ev)
	}
	return events, rows.Err()
}
