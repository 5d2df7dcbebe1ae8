package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"arcade-core/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// PayoutRepo implements ports.PayoutRepository.
type PayoutRepo struct {
	pool Pool
}

// NewPayoutRepo creates a new PayoutRepo.
func NewPayoutRepo(pool Pool) *PayoutRepo {
	return &PayoutRepo{pool: pool}
}

// Insert creates a payout in ready status. A duplicate id is a no-op so
// producers may retry safely.
func (r *PayoutRepo) Insert(ctx context.Context, p *domain.Payout) (bool, error) {
	meta := p.Meta
	if meta == nil {
		meta = map[string]interface{}{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return false, fmt.Errorf("marshal payout meta: %w", err)
	}

	query := `INSERT INTO payouts (payout_id, source, amount_cents, status, meta, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW()) ON CONFLICT (payout_id) DO NOTHING`

	tag, err := r.pool.Exec(ctx, query,
		p.ID, p.Source, p.AmountCents, string(domain.PayoutStatusReady), metaJSON,
	)
	if err != nil {
		return false, fmt.Errorf("insert payout: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListReady returns ready payouts, oldest first (first-in-first-claimed
// ordering for display).
func (r *PayoutRepo) ListReady(ctx context.Context) ([]domain.Payout, error) {
	query := `SELECT payout_id, source, amount_cents, created_at
		FROM payouts WHERE status = $1 ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, string(domain.PayoutStatusReady))
	if err != nil {
		return nil, fmt.Errorf("list ready payouts: %w", err)
	}
	defer rows.Close()

	var payouts []domain.Payout
	for rows.Next() {
		p := domain.Payout{Status: domain.PayoutStatusReady}
		if err := rows.Scan(&p.ID, &p.Source, &p.AmountCents, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payout: %w", err)
		}
		payouts = append(payouts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payouts: %w", err)
	}
	return payouts, nil
}

// GetForUpdate locks the payout row until tx ends, serializing
// concurrent claim attempts on the same payout. Returns nil, nil if the
// payout does not exist.
func (r *PayoutRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (*domain.Payout, error) {
	query := `SELECT payout_id, source, amount_cents, status, created_at
		FROM payouts WHERE payout_id = $1 FOR UPDATE`

	p := &domain.Payout{}
	err := tx.QueryRow(ctx, query, id).Scan(&p.ID, &p.Source, &p.AmountCents, &p.Status, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payout for update: %w", err)
	}
	return p, nil
}

// MarkClaimed transitions the payout to claimed, recording claimant and
// claim time. Callers must hold the row lock via GetForUpdate.
func (r *PayoutRepo) MarkClaimed(ctx context.Context, tx pgx.Tx, id string, tagUID string) error {
	query := `UPDATE payouts SET status = $1, claimed_by_tag = $2, claimed_at = NOW()
		WHERE payout_id = $3`

	tag, err := tx.Exec(ctx, query, string(domain.PayoutStatusClaimed), tagUID, id)
	if err != nil {
		return fmt.Errorf("mark payout claimed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("payout not found: %s", id)
	}
	return nil
}
