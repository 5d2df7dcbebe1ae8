package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// KVRepo implements ports.KVRepository.
type KVRepo struct {
	pool Pool
}

// NewKVRepo creates a new KVRepo.
func NewKVRepo(pool Pool) *KVRepo {
	return &KVRepo{pool: pool}
}

// Get fetches a value by key. found=false means the key is absent.
func (r *KVRepo) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.pool.QueryRow(ctx, `SELECT v FROM kv WHERE k = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get kv: %w", err)
	}
	return value, true, nil
}

// Set upserts a key/value pair.
func (r *KVRepo) Set(ctx context.Context, key, value string) error {
	query := `INSERT INTO kv (k, v) VALUES ($1, $2)
		ON CONFLICT (k) DO UPDATE SET v = excluded.v`

	if _, err := r.pool.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("set kv: %w", err)
	}
	return nil
}
