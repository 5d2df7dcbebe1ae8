package ports

import (
	"context"
	"time"

	"arcade-core/internal/core/domain"
)

// ClaimResult carries the outcome of a payout claim attempt.
// CreditedCents and NewBalanceCents are only meaningful when Status is
// domain.ClaimOK.
type ClaimResult struct {
	Status          domain.ClaimStatus
	CreditedCents   int64
	NewBalanceCents int64
}

// Ledger is the single source of truth for balances, payouts, votes and
// persisted process state. Credit, Debit and ClaimPayout are serialized
// behind a single mutual-exclusion domain shared across all wallets and
// payouts; no reader ever observes a half-applied state.
type Ledger interface {
	// GetBalance returns the current balance, creating the wallet with
	// zero balance if the tag is unknown.
	GetBalance(ctx context.Context, tagUID string) (int64, error)
	// Credit atomically increases the balance and appends an audit
	// entry. amountCents > 0 is a caller convention, not validated here.
	Credit(ctx context.Context, deviceID, tagUID string, amountCents int64, reason string) (int64, error)
	// Debit atomically decreases the balance if covered. ok=false means
	// insufficient funds: the balance is unchanged and an audit entry is
	// still appended.
	Debit(ctx context.Context, deviceID, tagUID string, amountCents int64, reason string) (newBalance int64, ok bool, err error)
	// InsertPayout records a new ready payout. Duplicate ids are a
	// no-op so producers may retry safely.
	InsertPayout(ctx context.Context, id, source string, amountCents int64, meta map[string]interface{}) error
	ListReadyPayouts(ctx context.Context) ([]domain.Payout, error)
	// ClaimPayout marks a ready payout claimed and credits the claimant
	// in one indivisible step.
	ClaimPayout(ctx context.Context, id, deviceID, tagUID string) (ClaimResult, error)
	ResetVotesForStep(ctx context.Context, step int) error
	AddVote(ctx context.Context, step int, deviceID, choice string) error
	CountVotesForStep(ctx context.Context, step int) (int, error)
	GetKV(ctx context.Context, key string) (string, bool, error)
	SetKV(ctx context.Context, key, value string) error
}

// RequestDedup guards against replayed wallet requests. CheckAndSet
// returns true when reqID has not been seen within the retention
// window, atomically recording it.
type RequestDedup interface {
	CheckAndSet(ctx context.Context, reqID string, ttl time.Duration) (bool, error)
}
