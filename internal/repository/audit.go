package repository

import (
	"context"
	"time"

	"github.com/docuforge/docuforge/internal/domain"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditRepository reads the append-only transition audit log. Writes happen
// inside the asset repository's transition transaction so an audit row and
// its status change commit together.
type AuditRepository struct {
	db dbtx
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{db: pool}
}

// Record appends an audit entry outside a transition transaction. Used for
// lifecycle events that are not status transitions, e.g. review expiry.
func (r *AuditRepository) Record(ctx context.Context, rec *domain.TransitionRecord) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO transition_audit
			(asset_id, tenant_id, correlation_id, from_status, to_status, allowed, reason, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.AssetID, rec.TenantID, rec.CorrelationID, rec.From, rec.To,
		rec.Allowed, nullableString(rec.Reason), createdAt,
	)
	return err
}

// ListByAsset returns an asset's audit trail in append order
func (r *AuditRepository) ListByAsset(ctx context.Context, assetID string) ([]*domain.TransitionRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, asset_id, tenant_id, correlation_id, from_status, to_status, allowed, reason, created_at
		 FROM transition_audit WHERE asset_id = $1 ORDER BY id ASC`,
		assetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.TransitionRecord
	for rows.Next() {
		var rec domain.TransitionRecord
		var reason pgtype.Text
		if err := rows.Scan(&rec.ID, &rec.AssetID, &rec.TenantID, &rec.CorrelationID,
			&rec.From, &rec.To, &rec.Allowed, &reason, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if reason.Valid {
			rec.Reason = reason.String
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}
