package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Substrate implements the primitive queue operations (C1) directly on
// Redis. Every method operates on one logical queue Q and its three
// companion structures: Q:delayed (ZSET), Q:processing (list), Q:failed
// (list). Connectivity failures are returned to the caller verbatim; a
// claim against a queue that has never been written to is indistinguishable
// from "no message available".
type Substrate struct {
	client *redis.Client
}

// NewSubstrate wraps an existing go-redis client. The caller owns the
// client's lifecycle (construction, pooling, Close).
func NewSubstrate(client *redis.Client) *Substrate {
	return &Substrate{client: client}
}

// Enqueue appends msg to the head of Q, to be claimed tail-first (FIFO).
func (s *Substrate) Enqueue(ctx context.Context, q string, env *Envelope) error {
	raw, err := env.Marshal()
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := s.client.LPush(ctx, q, raw).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", q, err)
	}
	return nil
}

// Claim atomically moves the tail of Q onto the head of Q:processing and
// returns the raw serialized message, blocking up to leaseTimeout. Returns
// ("", nil) if nothing became available in that window — this is not an
// error condition.
func (s *Substrate) Claim(ctx context.Context, q string, leaseTimeout time.Duration) (string, error) {
	raw, err := s.client.BRPopLPush(ctx, q, processingKey(q), leaseTimeout).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("claim %s: %w", q, err)
	}
	return raw, nil
}

// Ack removes the first occurrence of raw from Q:processing. raw must be
// byte-identical to what Claim returned; the substrate matches on exact
// serialized form, not on decoded identity.
func (s *Substrate) Ack(ctx context.Context, q string, raw string) error {
	if err := s.client.LRem(ctx, processingKey(q), 1, raw).Err(); err != nil {
		return fmt.Errorf("ack %s: %w", q, err)
	}
	return nil
}

// RemoveFromProcessing removes raw from Q:processing without acking it
// semantically — used when a message is being re-enqueued (lock contention)
// or moved to delayed/dead-letter after a failed attempt.
func (s *Substrate) RemoveFromProcessing(ctx context.Context, q string, raw string) error {
	return s.Ack(ctx, q, raw)
}

// DelayEnqueue inserts msg into Q:delayed with score now+delay.
func (s *Substrate) DelayEnqueue(ctx context.Context, q string, env *Envelope, delay time.Duration) error {
	raw, err := env.Marshal()
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	score := float64(time.Now().Add(delay).Unix())
	if err := s.client.ZAdd(ctx, delayedKey(q), redis.Z{Score: score, Member: raw}).Err(); err != nil {
		return fmt.Errorf("delay enqueue %s: %w", q, err)
	}
	return nil
}

// PromoteDue moves every entry in Q:delayed with score <= now to Q and
// returns the count moved. Implemented as a read of the due range followed
// by an LPUSH and a ZREM per entry, in one pipeline; a concurrent
// PromoteDue racing on the same range only ever removes entries it also
// read, so repeated invocations over a stable delayed set are idempotent.
func (s *Substrate) PromoteDue(ctx context.Context, q string) (int, error) {
	now := time.Now().Unix()
	due, err := s.client.ZRangeByScore(ctx, delayedKey(q), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("scan due delayed %s: %w", q, err)
	}
	if len(due) == 0 {
		return 0, nil
	}

	pipe := s.client.Pipeline()
	for _, raw := range due {
		pipe.LPush(ctx, q, raw)
		pipe.ZRem(ctx, delayedKey(q), raw)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("promote due %s: %w", q, err)
	}
	return len(due), nil
}

// DeadLetter appends msg's raw form to Q:failed.
func (s *Substrate) DeadLetter(ctx context.Context, q string, raw string) error {
	if err := s.client.LPush(ctx, failedKey(q), raw).Err(); err != nil {
		return fmt.Errorf("dead letter %s: %w", q, err)
	}
	return nil
}

// LenActive returns the length of Q.
func (s *Substrate) LenActive(ctx context.Context, q string) (int64, error) {
	return s.client.LLen(ctx, q).Result()
}

// LenDelayed returns the cardinality of Q:delayed.
func (s *Substrate) LenDelayed(ctx context.Context, q string) (int64, error) {
	return s.client.ZCard(ctx, delayedKey(q)).Result()
}

// LenProcessing returns the length of Q:processing.
func (s *Substrate) LenProcessing(ctx context.Context, q string) (int64, error) {
	return s.client.LLen(ctx, processingKey(q)).Result()
}

// LenFailed returns the length of Q:failed.
func (s *Substrate) LenFailed(ctx context.Context, q string) (int64, error) {
	return s.client.LLen(ctx, failedKey(q)).Result()
}

// ProcessingSnapshot returns the raw contents of Q:processing for the
// sweeper to scan. Order is head-to-tail as stored.
func (s *Substrate) ProcessingSnapshot(ctx context.Context, q string) ([]string, error) {
	return s.client.LRange(ctx, processingKey(q), 0, -1).Result()
}
