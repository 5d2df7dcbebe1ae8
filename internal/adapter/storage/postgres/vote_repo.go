package postgres

import (
	"context"
	"fmt"

	"arcade-core/internal/core/domain"
)

// VoteRepo implements ports.VoteRepository.
type VoteRepo struct {
	pool Pool
}

// NewVoteRepo creates a new VoteRepo.
func NewVoteRepo(pool Pool) *VoteRepo {
	return &VoteRepo{pool: pool}
}

// ResetStep deletes all votes recorded for a step. Used when the step
// is (re)announced so stale votes never count toward its quorum.
func (r *VoteRepo) ResetStep(ctx context.Context, step int) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM night_votes WHERE step = $1`, step); err != nil {
		return fmt.Errorf("reset votes for step: %w", err)
	}
	return nil
}

// Add appends a vote record. No deduplication by device.
func (r *VoteRepo) Add(ctx context.Context, v *domain.Vote) error {
	query := `INSERT INTO night_votes (step, device_id, choice, ts) VALUES ($1, $2, $3, $4)`

	if _, err := r.pool.Exec(ctx, query, v.Step, v.DeviceID, v.Choice, v.Timestamp); err != nil {
		return fmt.Errorf("add vote: %w", err)
	}
	return nil
}

// CountForStep returns the number of recorded votes for a step.
func (r *VoteRepo) CountForStep(ctx context.Context, step int) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM night_votes WHERE step = $1`, step,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count votes for step: %w", err)
	}
	return count, nil
}
