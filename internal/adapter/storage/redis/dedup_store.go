package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// DedupStore implements ports.RequestDedup using Redis SET NX. It
// records wallet request ids for a bounded window so a replayed debit
// or credit message can be dropped instead of double-applied.
type DedupStore struct {
	client *goredis.Client
	prefix string
}

// NewDedupStore creates a new Redis-backed request dedup store.
func NewDedupStore(client *goredis.Client) *DedupStore {
	return &DedupStore{
		client: client,
		prefix: "reqid:",
	}
}

// CheckAndSet atomically checks whether reqID was seen within the TTL,
// recording it if not. Returns true if the request id is new.
func (s *DedupStore) CheckAndSet(ctx context.Context, reqID string, ttl time.Duration) (bool, error) {
	result, err := s.client.SetArgs(ctx, s.prefix+reqID, 1, goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Result()
	if err != nil {
		if err == goredis.Nil {
			// Key already exists — request id was already seen
			return false, nil
		}
		return false, fmt.Errorf("redis dedup check: %w", err)
	}
	return result == "OK", nil
}
