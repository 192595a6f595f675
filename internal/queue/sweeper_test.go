package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSweeper(t *testing.T, queues []string) (*Sweeper, *Substrate, *Lock, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	substrate := NewSubstrate(client)
	lock := NewLock(client)
	sweeper := NewSweeper(substrate, lock, NoopRecorder{}, queues, time.Second, nil)
	return sweeper, substrate, lock, mr
}

// TestSweeper_ReclaimsOrphanWhenLockExpired is boundary scenario S5: a
// worker claims a message, acquires the lock, then crashes without ack.
// Once the lock TTL elapses the sweeper must move the orphan out of
// Q:processing, either delaying it for retry or dead-lettering it.
func TestSweeper_ReclaimsOrphanWhenLockExpired(t *testing.T) {
	q := "q:test"
	sweeper, substrate, lock, mr := newTestSweeper(t, []string{q})
	ctx := context.Background()

	env := testEnvelope("m1", "do_thing")
	require.NoError(t, substrate.Enqueue(ctx, q, env))

	raw, err := substrate.Claim(ctx, q, 10*time.Millisecond)
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	acquired, err := lock.Acquire(ctx, q, "m1", 121*time.Second)
	require.NoError(t, err)
	require.True(t, acquired)

	// Worker crashes here: no ack, no release. Simulate the lock expiring.
	mr.FastForward(121 * time.Second)

	held, err := lock.Exists(ctx, q, "m1")
	require.NoError(t, err)
	require.False(t, held, "lock must have expired for this scenario")

	swept := sweeper.Tick(ctx)
	assert.Equal(t, 1, swept[q])

	n, err := substrate.LenProcessing(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "orphan must no longer sit in Q:processing")

	delayed, err := substrate.LenDelayed(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, int64(1), delayed, "first orphan reclaim retries via Q:delayed, not dead-letter")

	failed, err := substrate.LenFailed(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, int64(0), failed)
}

// TestSweeper_DeadLettersOrphanPastRetryCeiling verifies that an orphan
// whose attempts count is already at the policy ceiling is dead-lettered
// by the sweeper rather than delayed again.
func TestSweeper_DeadLettersOrphanPastRetryCeiling(t *testing.T) {
	q := QueuePayRefundInitiation // shortLivedPolicy: MaxRetries = 3
	sweeper, substrate, lock, _ := newTestSweeper(t, []string{q})
	ctx := context.Background()

	env := testEnvelope("m1", "do_thing")
	env.Attempts = PolicyFor(q).MaxRetries // already exhausted
	require.NoError(t, substrate.Enqueue(ctx, q, env))

	raw, err := substrate.Claim(ctx, q, 10*time.Millisecond)
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	// No lock acquired at all: orphan from the first tick.
	held, err := lock.Exists(ctx, q, "m1")
	require.NoError(t, err)
	require.False(t, held)

	swept := sweeper.Tick(ctx)
	assert.Equal(t, 1, swept[q])

	failed, err := substrate.LenFailed(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, int64(1), failed)

	delayed, err := substrate.LenDelayed(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, int64(0), delayed)
}

// TestSweeper_NeverTouchesLiveLockedMessage asserts the sweeper leaves an
// entry in Q:processing alone while its idempotency lock is still held.
func TestSweeper_NeverTouchesLiveLockedMessage(t *testing.T) {
	q := "q:test"
	sweeper, substrate, lock, _ := newTestSweeper(t, []string{q})
	ctx := context.Background()

	env := testEnvelope("m1", "do_thing")
	require.NoError(t, substrate.Enqueue(ctx, q, env))

	raw, err := substrate.Claim(ctx, q, 10*time.Millisecond)
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	acquired, err := lock.Acquire(ctx, q, "m1", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	swept := sweeper.Tick(ctx)
	assert.Equal(t, 0, swept[q])

	n, err := substrate.LenProcessing(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
