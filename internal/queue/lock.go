package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lock implements the per-(queue, message_id) idempotency lock (C3): a
// named short-lived key acquired with create-if-absent semantics and
// released explicitly once processing finishes, success or failure.
type Lock struct {
	client *redis.Client
}

// NewLock wraps an existing go-redis client.
func NewLock(client *redis.Client) *Lock {
	return &Lock{client: client}
}

// Acquire attempts to set lock:<q>:<messageID> with the given TTL,
// succeeding only if the key was absent. A false return with a nil error
// means another worker currently holds the lock.
func (l *Lock) Acquire(ctx context.Context, q, messageID string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, lockKey(q, messageID), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s/%s: %w", q, messageID, err)
	}
	return ok, nil
}

// Release deletes the lock unconditionally. Callers invoke this from a
// guaranteed-exit path (defer) regardless of handler outcome.
func (l *Lock) Release(ctx context.Context, q, messageID string) error {
	if err := l.client.Del(ctx, lockKey(q, messageID)).Err(); err != nil {
		return fmt.Errorf("release lock %s/%s: %w", q, messageID, err)
	}
	return nil
}

// Exists reports whether the lock for (q, messageID) is currently held.
// Used by the visibility sweeper to distinguish a live lease from an
// orphaned one.
func (l *Lock) Exists(ctx context.Context, q, messageID string) (bool, error) {
	n, err := l.client.Exists(ctx, lockKey(q, messageID)).Result()
	if err != nil {
		return false, fmt.Errorf("check lock %s/%s: %w", q, messageID, err)
	}
	return n > 0, nil
}
