package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"arcade-core/internal/core/domain"
	"arcade-core/internal/core/ports"
	"arcade-core/pkg/apperror"

	"github.com/rs/zerolog"
)

// LedgerService implements ports.Ledger on top of the repositories.
//
// All financial mutations (Credit, Debit, ClaimPayout) are serialized
// behind one mutex shared across every wallet and payout. This trades
// per-wallet parallelism for trivially correct atomicity and a total
// order of audit entries; it is a known scalability ceiling. Each
// mutation additionally runs inside a database transaction so a crash
// mid-operation never leaves a half-applied state.
type LedgerService struct {
	wallets    ports.WalletRepository
	payouts    ports.PayoutRepository
	audit      ports.AuditRepository
	votes      ports.VoteRepository
	kv         ports.KVRepository
	transactor ports.DBTransactor
	log        zerolog.Logger

	mu sync.Mutex
}

// NewLedgerService creates a new LedgerService.
func NewLedgerService(
	wallets ports.WalletRepository,
	payouts ports.PayoutRepository,
	audit ports.AuditRepository,
	votes ports.VoteRepository,
	kv ports.KVRepository,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *LedgerService {
	return &LedgerService{
		wallets:    wallets,
		payouts:    payouts,
		audit:      audit,
		votes:      votes,
		kv:         kv,
		transactor: transactor,
		log:        log,
	}
}

// GetBalance returns the current balance, lazily creating the wallet
// with zero balance for an unknown tag. Never a business failure.
func (s *LedgerService) GetBalance(ctx context.Context, tagUID string) (int64, error) {
	if err := s.wallets.Ensure(ctx, tagUID); err != nil {
		return 0, apperror.InternalError(fmt.Errorf("ensure wallet: %w", err))
	}
	balance, err := s.wallets.GetBalance(ctx, tagUID)
	if err != nil {
		return 0, apperror.InternalError(fmt.Errorf("get balance: %w", err))
	}
	return balance, nil
}

// Credit atomically increases the balance and appends a credit audit
// entry. amountCents > 0 is a caller convention, not validated here.
func (s *LedgerService) Credit(ctx context.Context, deviceID, tagUID string, amountCents int64, reason string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return 0, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.wallets.EnsureInTx(ctx, dbTx, tagUID); err != nil {
		return 0, apperror.InternalError(fmt.Errorf("ensure wallet: %w", err))
	}

	newBalance, err := s.wallets.CreditInTx(ctx, dbTx, tagUID, amountCents)
	if err != nil {
		return 0, apperror.InternalError(fmt.Errorf("credit: %w", err))
	}

	entry := &domain.AuditEntry{
		Timestamp:   time.Now().UTC(),
		DeviceID:    deviceID,
		Op:          domain.AuditOpCredit,
		TagUID:      tagUID,
		AmountCents: amountCents,
		Details:     reason,
	}
	if err := s.audit.Append(ctx, dbTx, entry); err != nil {
		return 0, apperror.InternalError(fmt.Errorf("append audit: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return 0, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("device_id", deviceID).
		Str("tag_uid", tagUID).
		Int64("amount_cents", amountCents).
		Int64("new_balance_cents", newBalance).
		Msg("wallet credited")

	return newBalance, nil
}

// Debit atomically decreases the balance if it covers the amount.
// Insufficient funds is a normal outcome: ok=false, the balance is
// untouched, and a debit_insufficient audit entry is still committed
// for forensic reconstruction.
func (s *LedgerService) Debit(ctx context.Context, deviceID, tagUID string, amountCents int64, reason string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return 0, false, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.wallets.EnsureInTx(ctx, dbTx, tagUID); err != nil {
		return 0, false, apperror.InternalError(fmt.Errorf("ensure wallet: %w", err))
	}

	newBalance, ok, err := s.wallets.DebitInTx(ctx, dbTx, tagUID, amountCents)
	if err != nil {
		return 0, false, apperror.InternalError(fmt.Errorf("debit: %w", err))
	}

	op := domain.AuditOpDebit
	if !ok {
		op = domain.AuditOpDebitInsufficient
		newBalance, err = s.wallets.GetBalanceInTx(ctx, dbTx, tagUID)
		if err != nil {
			return 0, false, apperror.InternalError(fmt.Errorf("read balance: %w", err))
		}
	}

	entry := &domain.AuditEntry{
		Timestamp:   time.Now().UTC(),
		DeviceID:    deviceID,
		Op:          op,
		TagUID:      tagUID,
		AmountCents: amountCents,
		Details:     reason,
	}
	if err := s.audit.Append(ctx, dbTx, entry); err != nil {
		return 0, false, apperror.InternalError(fmt.Errorf("append audit: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return 0, false, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	if ok {
		s.log.Info().
			Str("device_id", deviceID).
			Str("tag_uid", tagUID).
			Int64("amount_cents", amountCents).
			Int64("new_balance_cents", newBalance).
			Msg("wallet debited")
	} else {
		s.log.Info().
			Str("device_id", deviceID).
			Str("tag_uid", tagUID).
			Int64("amount_cents", amountCents).
			Int64("balance_cents", newBalance).
			Msg("debit rejected: insufficient funds")
	}

	return newBalance, ok, nil
}

// InsertPayout records a new ready payout. A duplicate id is a no-op so
// producers may retry safely.
func (s *LedgerService) InsertPayout(ctx context.Context, id, source string, amountCents int64, meta map[string]interface{}) error {
	inserted, err := s.payouts.Insert(ctx, &domain.Payout{
		ID:          id,
		Source:      source,
		AmountCents: amountCents,
		Meta:        meta,
	})
	if err != nil {
		return apperror.InternalError(fmt.Errorf("insert payout: %w", err))
	}
	if inserted {
		s.log.Info().
			Str("payout_id", id).
			Str("source", source).
			Int64("amount_cents", amountCents).
			Msg("payout ready")
	}
	return nil
}

// ListReadyPayouts returns ready payouts, oldest first.
func (s *LedgerService) ListReadyPayouts(ctx context.Context) ([]domain.Payout, error) {
	payouts, err := s.payouts.ListReady(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list ready payouts: %w", err))
	}
	return payouts, nil
}

// ClaimPayout atomically transitions a ready payout to claimed and
// credits the claimant's wallet by the payout amount. The read-check-
// mutate sequence is indivisible with respect to other claims: the
// global mutex serializes callers and the row lock taken inside the
// transaction backstops it.
func (s *LedgerService) ClaimPayout(ctx context.Context, id, deviceID, tagUID string) (ports.ClaimResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return ports.ClaimResult{}, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	p, err := s.payouts.GetForUpdate(ctx, dbTx, id)
	if err != nil {
		return ports.ClaimResult{}, apperror.InternalError(fmt.Errorf("lock payout: %w", err))
	}
	if p == nil {
		return ports.ClaimResult{Status: domain.ClaimNotFound}, nil
	}
	if p.Status != domain.PayoutStatusReady {
		return ports.ClaimResult{Status: domain.ClaimAlreadyClaimed}, nil
	}

	if err := s.payouts.MarkClaimed(ctx, dbTx, id, tagUID); err != nil {
		return ports.ClaimResult{}, apperror.InternalError(fmt.Errorf("mark claimed: %w", err))
	}

	if err := s.wallets.EnsureInTx(ctx, dbTx, tagUID); err != nil {
		return ports.ClaimResult{}, apperror.InternalError(fmt.Errorf("ensure wallet: %w", err))
	}
	newBalance, err := s.wallets.CreditInTx(ctx, dbTx, tagUID, p.AmountCents)
	if err != nil {
		return ports.ClaimResult{}, apperror.InternalError(fmt.Errorf("credit claimant: %w", err))
	}

	now := time.Now().UTC()
	creditEntry := &domain.AuditEntry{
		Timestamp:   now,
		DeviceID:    deviceID,
		Op:          domain.AuditOpCredit,
		TagUID:      tagUID,
		AmountCents: p.AmountCents,
		Details:     "payout_claim:" + id,
	}
	if err := s.audit.Append(ctx, dbTx, creditEntry); err != nil {
		return ports.ClaimResult{}, apperror.InternalError(fmt.Errorf("append credit audit: %w", err))
	}
	claimEntry := &domain.AuditEntry{
		Timestamp:   now,
		DeviceID:    deviceID,
		Op:          domain.AuditOpPayoutClaim,
		TagUID:      tagUID,
		AmountCents: p.AmountCents,
		Details:     id,
	}
	if err := s.audit.Append(ctx, dbTx, claimEntry); err != nil {
		return ports.ClaimResult{}, apperror.InternalError(fmt.Errorf("append claim audit: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return ports.ClaimResult{}, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("payout_id", id).
		Str("device_id", deviceID).
		Str("tag_uid", tagUID).
		Int64("credited_cents", p.AmountCents).
		Int64("new_balance_cents", newBalance).
		Msg("payout claimed")

	return ports.ClaimResult{
		Status:          domain.ClaimOK,
		CreditedCents:   p.AmountCents,
		NewBalanceCents: newBalance,
	}, nil
}

// ResetVotesForStep discards all recorded votes for a step.
func (s *LedgerService) ResetVotesForStep(ctx context.Context, step int) error {
	return s.votes.ResetStep(ctx, step)
}

// AddVote appends a vote record. Devices are not deduplicated.
func (s *LedgerService) AddVote(ctx context.Context, step int, deviceID, choice string) error {
	return s.votes.Add(ctx, &domain.Vote{
		Step:      step,
		DeviceID:  deviceID,
		Choice:    choice,
		Timestamp: time.Now().UTC(),
	})
}

// CountVotesForStep returns the number of recorded votes for a step.
func (s *LedgerService) CountVotesForStep(ctx context.Context, step int) (int, error) {
	return s.votes.CountForStep(ctx, step)
}

// GetKV fetches a persisted scalar.
func (s *LedgerService) GetKV(ctx context.Context, key string) (string, bool, error) {
	return s.kv.Get(ctx, key)
}

// SetKV persists a scalar.
func (s *LedgerService) SetKV(ctx context.Context, key, value string) error {
	return s.kv.Set(ctx, key, value)
}
