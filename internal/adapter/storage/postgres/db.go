package postgres

import (
	"context"
	"fmt"

	"arcade-core/config"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Pool is the subset of pgxpool.Pool the repositories use. pgxmock
// satisfies it too, which keeps repository tests broker-free.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// NewPool creates a PostgreSQL connection pool using pgx.
func NewPool(ctx context.Context, cfg config.DatabaseConfig, log zerolog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("dbname", cfg.DBName).
		Msg("PostgreSQL connection pool established")

	return pool, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS wallets (
		tag_uid       TEXT PRIMARY KEY,
		balance_cents BIGINT NOT NULL DEFAULT 0 CHECK (balance_cents >= 0),
		updated_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS payouts (
		payout_id      TEXT PRIMARY KEY,
		source         TEXT NOT NULL,
		amount_cents   BIGINT NOT NULL,
		status         TEXT NOT NULL,
		claimed_by_tag TEXT,
		meta           JSONB,
		created_at     TIMESTAMPTZ NOT NULL,
		claimed_at     TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payouts_ready ON payouts (status, created_at)`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		ts           TIMESTAMPTZ NOT NULL,
		device_id    TEXT,
		op           TEXT NOT NULL,
		tag_uid      TEXT,
		amount_cents BIGINT,
		details      TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS night_votes (
		step      INTEGER NOT NULL,
		device_id TEXT NOT NULL,
		choice    TEXT NOT NULL,
		ts        TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_night_votes_step ON night_votes (step)`,
	`CREATE TABLE IF NOT EXISTS kv (
		k TEXT PRIMARY KEY,
		v TEXT NOT NULL
	)`,
}

// Migrate creates the ledger schema. Statements are idempotent so it
// runs unconditionally at startup.
func Migrate(ctx context.Context, pool Pool) error {
	for _, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("running migration: %w", err)
		}
	}
	return nil
}
