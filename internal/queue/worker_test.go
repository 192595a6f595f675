package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWorker(t *testing.T, q string) (*Worker, *Substrate, *Lock, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	substrate := NewSubstrate(client)
	lock := NewLock(client)
	w := NewWorker(q, substrate, lock, NoopRecorder{}, nil)
	return w, substrate, lock, mr
}

func TestWorker_RunOnce_NoMessage(t *testing.T) {
	w, _, _, _ := newTestWorker(t, "q:test")
	outcome := w.RunOnce(context.Background(), 5*time.Millisecond)
	assert.Equal(t, "no_message", outcome)
}

func TestWorker_RunOnce_Success(t *testing.T) {
	w, substrate, _, _ := newTestWorker(t, "q:test")
	ctx := context.Background()

	w.Register("do_thing", func(ctx context.Context, env *Envelope) Result {
		return Success()
	})

	require.NoError(t, substrate.Enqueue(ctx, "q:test", testEnvelope("m1", "do_thing")))

	outcome := w.RunOnce(ctx, 5*time.Millisecond)
	assert.Equal(t, "success", outcome)

	processing, err := substrate.LenProcessing(ctx, "q:test")
	require.NoError(t, err)
	assert.Equal(t, int64(0), processing)

	held, err := w.Lock.Exists(ctx, "q:test", "m1")
	require.NoError(t, err)
	assert.False(t, held, "lock must be released after processing")
}

func TestWorker_RunOnce_RetryableSchedulesDelayed(t *testing.T) {
	w, substrate, _, _ := newTestWorker(t, "q:test")
	ctx := context.Background()

	w.Register("do_thing", func(ctx context.Context, env *Envelope) Result {
		return Retryable(errors.New("transient"))
	})

	require.NoError(t, substrate.Enqueue(ctx, "q:test", testEnvelope("m1", "do_thing")))

	outcome := w.RunOnce(ctx, 5*time.Millisecond)
	assert.Equal(t, "retry", outcome)

	delayed, err := substrate.LenDelayed(ctx, "q:test")
	require.NoError(t, err)
	assert.Equal(t, int64(1), delayed)

	failed, err := substrate.LenFailed(ctx, "q:test")
	require.NoError(t, err)
	assert.Equal(t, int64(0), failed)
}

func TestWorker_RunOnce_RetryableDeadLettersAtCeiling(t *testing.T) {
	w, substrate, _, _ := newTestWorker(t, "q:test")
	w.Policy = Policy{MaxRetries: 1, BaseDelay: time.Millisecond, BackoffMultiplier: 1, MaxDelay: time.Second, LockTTL: time.Minute}
	ctx := context.Background()

	w.Register("do_thing", func(ctx context.Context, env *Envelope) Result {
		return Retryable(errors.New("transient"))
	})

	env := testEnvelope("m1", "do_thing")
	env.Attempts = 1 // next attempt (2) exceeds MaxRetries=1
	require.NoError(t, substrate.Enqueue(ctx, "q:test", env))

	outcome := w.RunOnce(ctx, 5*time.Millisecond)
	assert.Equal(t, "failed", outcome)

	failed, err := substrate.LenFailed(ctx, "q:test")
	require.NoError(t, err)
	assert.Equal(t, int64(1), failed)
}

func TestWorker_RunOnce_FatalDeadLettersImmediately(t *testing.T) {
	w, substrate, _, _ := newTestWorker(t, "q:test")
	ctx := context.Background()

	w.Register("do_thing", func(ctx context.Context, env *Envelope) Result {
		return Fatal(errors.New("invariant violated"))
	})

	require.NoError(t, substrate.Enqueue(ctx, "q:test", testEnvelope("m1", "do_thing")))

	outcome := w.RunOnce(ctx, 5*time.Millisecond)
	assert.Equal(t, "failed", outcome)

	failed, err := substrate.LenFailed(ctx, "q:test")
	require.NoError(t, err)
	assert.Equal(t, int64(1), failed)

	delayed, err := substrate.LenDelayed(ctx, "q:test")
	require.NoError(t, err)
	assert.Equal(t, int64(0), delayed)
}

func TestWorker_RunOnce_LockUnavailableRequeues(t *testing.T) {
	w, substrate, lock, _ := newTestWorker(t, "q:test")
	ctx := context.Background()

	calls := 0
	w.Register("do_thing", func(ctx context.Context, env *Envelope) Result {
		calls++
		return Success()
	})

	env := testEnvelope("m1", "do_thing")
	require.NoError(t, substrate.Enqueue(ctx, "q:test", env))

	// Simulate another worker already holding the lock.
	ok, err := lock.Acquire(ctx, "q:test", "m1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	outcome := w.RunOnce(ctx, 5*time.Millisecond)
	assert.Equal(t, "retry_lock_unavailable", outcome)
	assert.Equal(t, 0, calls, "handler must not run when the lock is contended")

	active, err := substrate.LenActive(ctx, "q:test")
	require.NoError(t, err)
	assert.Equal(t, int64(1), active, "message must be requeued to the tail of the main queue")
}

func TestWorker_RunOnce_UnregisteredActionDeadLetters(t *testing.T) {
	w, substrate, _, _ := newTestWorker(t, "q:test")
	ctx := context.Background()

	require.NoError(t, substrate.Enqueue(ctx, "q:test", testEnvelope("m1", "unknown_action")))

	outcome := w.RunOnce(ctx, 5*time.Millisecond)
	assert.Equal(t, "failed", outcome)

	failed, err := substrate.LenFailed(ctx, "q:test")
	require.NoError(t, err)
	assert.Equal(t, int64(1), failed)
}
