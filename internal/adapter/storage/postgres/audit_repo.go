package postgres

import (
	"context"
	"fmt"

	"arcade-core/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// AuditRepo implements ports.AuditRepository. The audit log is
// append-only; there is deliberately no update or delete.
type AuditRepo struct {
	pool Pool
}

// NewAuditRepo creates a new AuditRepo.
func NewAuditRepo(pool Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

// Append writes one audit entry inside the financial transaction that
// produced it, so the entry and the balance change commit atomically.
func (r *AuditRepo) Append(ctx context.Context, tx pgx.Tx, e *domain.AuditEntry) error {
	query := `INSERT INTO audit_log (ts, device_id, op, tag_uid, amount_cents, details)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := tx.Exec(ctx, query,
		e.Timestamp, e.DeviceID, string(e.Op), e.TagUID, e.AmountCents, e.Details,
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}
