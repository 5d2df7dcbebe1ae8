package ports

import (
	"context"

	"arcade-core/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// WalletRepository defines persistence operations for wallets.
// Methods accepting pgx.Tx run inside the ledger's financial
// transactions so balance changes and audit entries commit together.
type WalletRepository interface {
	Ensure(ctx context.Context, tagUID string) error
	GetBalance(ctx context.Context, tagUID string) (int64, error)
	EnsureInTx(ctx context.Context, tx pgx.Tx, tagUID string) error
	GetBalanceInTx(ctx context.Context, tx pgx.Tx, tagUID string) (int64, error)
	// CreditInTx increases the balance and returns the new balance.
	CreditInTx(ctx context.Context, tx pgx.Tx, tagUID string, amountCents int64) (int64, error)
	// DebitInTx decreases the balance only if the current balance covers
	// the amount. Returns the new balance and true on success; ok=false
	// with the balance untouched otherwise.
	DebitInTx(ctx context.Context, tx pgx.Tx, tagUID string, amountCents int64) (int64, bool, error)
}

// PayoutRepository defines persistence operations for payouts.
type PayoutRepository interface {
	// Insert creates a payout in ready status. Duplicate ids are a
	// no-op; inserted reports whether a row was actually created.
	Insert(ctx context.Context, p *domain.Payout) (inserted bool, err error)
	// ListReady returns ready payouts ordered by creation time ascending.
	ListReady(ctx context.Context) ([]domain.Payout, error)
	// GetForUpdate locks the payout row for the duration of tx.
	// Returns nil, nil if the payout does not exist.
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (*domain.Payout, error)
	MarkClaimed(ctx context.Context, tx pgx.Tx, id string, tagUID string) error
}

// AuditRepository appends to the financial audit log. Entries are
// written inside the same transaction as the mutation they record.
type AuditRepository interface {
	Append(ctx context.Context, tx pgx.Tx, e *domain.AuditEntry) error
}

// VoteRepository defines persistence operations for step votes.
type VoteRepository interface {
	ResetStep(ctx context.Context, step int) error
	Add(ctx context.Context, v *domain.Vote) error
	CountForStep(ctx context.Context, step int) (int, error)
}

// KVRepository persists small scalar values (currently only the mode).
type KVRepository interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key string, value string) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
