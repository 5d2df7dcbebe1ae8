package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

// Ensure creates the wallet row with zero balance if the tag is unknown.
func (r *WalletRepo) Ensure(ctx context.Context, tagUID string) error {
	query := `INSERT INTO wallets (tag_uid, balance_cents, updated_at)
		VALUES ($1, 0, NOW()) ON CONFLICT (tag_uid) DO NOTHING`

	if _, err := r.pool.Exec(ctx, query, tagUID); err != nil {
		return fmt.Errorf("ensure wallet: %w", err)
	}
	return nil
}

// GetBalance returns the current balance, or 0 for an unknown tag.
func (r *WalletRepo) GetBalance(ctx context.Context, tagUID string) (int64, error) {
	var balance int64
	err := r.pool.QueryRow(ctx,
		`SELECT balance_cents FROM wallets WHERE tag_uid = $1`, tagUID,
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return balance, nil
}

// EnsureInTx is Ensure inside an open financial transaction.
func (r *WalletRepo) EnsureInTx(ctx context.Context, tx pgx.Tx, tagUID string) error {
	query := `INSERT INTO wallets (tag_uid, balance_cents, updated_at)
		VALUES ($1, 0, NOW()) ON CONFLICT (tag_uid) DO NOTHING`

	if _, err := tx.Exec(ctx, query, tagUID); err != nil {
		return fmt.Errorf("ensure wallet in tx: %w", err)
	}
	return nil
}

// GetBalanceInTx reads the balance inside an open transaction.
func (r *WalletRepo) GetBalanceInTx(ctx context.Context, tx pgx.Tx, tagUID string) (int64, error) {
	var balance int64
	err := tx.QueryRow(ctx,
		`SELECT balance_cents FROM wallets WHERE tag_uid = $1`, tagUID,
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("get balance in tx: %w", err)
	}
	return balance, nil
}

// CreditInTx increases the balance and returns the new balance.
func (r *WalletRepo) CreditInTx(ctx context.Context, tx pgx.Tx, tagUID string, amountCents int64) (int64, error) {
	query := `UPDATE wallets SET balance_cents = balance_cents + $1, updated_at = NOW()
		WHERE tag_uid = $2 RETURNING balance_cents`

	var newBalance int64
	if err := tx.QueryRow(ctx, query, amountCents, tagUID).Scan(&newBalance); err != nil {
		return 0, fmt.Errorf("credit wallet: %w", err)
	}
	return newBalance, nil
}

// DebitInTx decreases the balance only if it covers the amount. The
// WHERE guard makes a partial or negative-going debit impossible.
// Returns ok=false without touching the row when funds are short.
func (r *WalletRepo) DebitInTx(ctx context.Context, tx pgx.Tx, tagUID string, amountCents int64) (int64, bool, error) {
	query := `UPDATE wallets SET balance_cents = balance_cents - $1, updated_at = NOW()
		WHERE tag_uid = $2 AND balance_cents >= $1 RETURNING balance_cents`

	var newBalance int64
	err := tx.QueryRow(ctx, query, amountCents, tagUID).Scan(&newBalance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("debit wallet: %w", err)
	}
	return newBalance, true, nil
}
