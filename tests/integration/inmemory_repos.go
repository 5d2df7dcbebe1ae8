package integration

import (
	"context"
	"sync"
	"time"

	"arcade-core/internal/core/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// --- In-Memory Wallet Repo ---

type inMemoryWalletRepo struct {
	mu      sync.RWMutex
	wallets map[string]int64
}

func newInMemoryWalletRepo() *inMemoryWalletRepo {
	return &inMemoryWalletRepo{wallets: make(map[string]int64)}
}

func (r *inMemoryWalletRepo) Ensure(ctx context.Context, tagUID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.wallets[tagUID]; !ok {
		r.wallets[tagUID] = 0
	}
	return nil
}

func (r *inMemoryWalletRepo) GetBalance(ctx context.Context, tagUID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.wallets[tagUID], nil
}

func (r *inMemoryWalletRepo) EnsureInTx(ctx context.Context, tx pgx.Tx, tagUID string) error {
	return r.Ensure(ctx, tagUID)
}

func (r *inMemoryWalletRepo) GetBalanceInTx(ctx context.Context, tx pgx.Tx, tagUID string) (int64, error) {
	return r.GetBalance(ctx, tagUID)
}

func (r *inMemoryWalletRepo) CreditInTx(ctx context.Context, tx pgx.Tx, tagUID string, amountCents int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wallets[tagUID] += amountCents
	return r.wallets[tagUID], nil
}

func (r *inMemoryWalletRepo) DebitInTx(ctx context.Context, tx pgx.Tx, tagUID string, amountCents int64) (int64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.wallets[tagUID] < amountCents {
		return 0, false, nil
	}
	r.wallets[tagUID] -= amountCents
	return r.wallets[tagUID], true, nil
}

// --- In-Memory Payout Repo ---

type inMemoryPayoutRepo struct {
	mu      sync.RWMutex
	payouts map[string]*domain.Payout
	order   []string
}

func newInMemoryPayoutRepo() *inMemoryPayoutRepo {
	return &inMemoryPayoutRepo{payouts: make(map[string]*domain.Payout)}
}

func (r *inMemoryPayoutRepo) Insert(ctx context.Context, p *domain.Payout) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.payouts[p.ID]; ok {
		return false, nil
	}
	stored := *p
	stored.Status = domain.PayoutStatusReady
	stored.CreatedAt = time.Now().UTC()
	r.payouts[p.ID] = &stored
	r.order = append(r.order, p.ID)
	return true, nil
}

func (r *inMemoryPayoutRepo) ListReady(ctx context.Context) ([]domain.Payout, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Payout
	for _, id := range r.order {
		if p := r.payouts[id]; p.Status == domain.PayoutStatusReady {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *inMemoryPayoutRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (*domain.Payout, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.payouts[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *inMemoryPayoutRepo) MarkClaimed(ctx context.Context, tx pgx.Tx, id string, tagUID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.payouts[id]
	now := time.Now().UTC()
	p.Status = domain.PayoutStatusClaimed
	p.ClaimedByTag = &tagUID
	p.ClaimedAt = &now
	return nil
}

// --- In-Memory Audit Repo ---

type inMemoryAuditRepo struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func newInMemoryAuditRepo() *inMemoryAuditRepo {
	return &inMemoryAuditRepo{}
}

func (r *inMemoryAuditRepo) Append(ctx context.Context, tx pgx.Tx, e *domain.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *e)
	return nil
}

func (r *inMemoryAuditRepo) all() []domain.AuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.AuditEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// --- In-Memory Vote Repo ---

type inMemoryVoteRepo struct {
	mu    sync.Mutex
	votes map[int][]domain.Vote
}

func newInMemoryVoteRepo() *inMemoryVoteRepo {
	return &inMemoryVoteRepo{votes: make(map[int][]domain.Vote)}
}

func (r *inMemoryVoteRepo) ResetStep(ctx context.Context, step int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.votes, step)
	return nil
}

func (r *inMemoryVoteRepo) Add(ctx context.Context, v *domain.Vote) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.votes[v.Step] = append(r.votes[v.Step], *v)
	return nil
}

func (r *inMemoryVoteRepo) CountForStep(ctx context.Context, step int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.votes[step]), nil
}

// --- In-Memory KV Repo ---

type inMemoryKVRepo struct {
	mu     sync.RWMutex
	values map[string]string
}

func newInMemoryKVRepo() *inMemoryKVRepo {
	return &inMemoryKVRepo{values: make(map[string]string)}
}

func (r *inMemoryKVRepo) Get(ctx context.Context, key string) (string, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.values[key]
	return v, ok, nil
}

func (r *inMemoryKVRepo) Set(ctx context.Context, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[key] = value
	return nil
}

// --- In-Memory Transactor (no-op tx) ---

type inMemoryTransactor struct{}

func newInMemoryTransactor() *inMemoryTransactor {
	return &inMemoryTransactor{}
}

func (t *inMemoryTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	return &noopTx{}, nil
}

// noopTx is a no-op pgx.Tx implementation for in-memory testing.
type noopTx struct{}

func (t *noopTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *noopTx) Commit(ctx context.Context) error          { return nil }
func (t *noopTx) Rollback(ctx context.Context) error        { return nil }
func (t *noopTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *noopTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *noopTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *noopTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *noopTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *noopTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *noopTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *noopTx) Conn() *pgx.Conn { return nil }
