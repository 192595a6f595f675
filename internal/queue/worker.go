package queue

import (
	"context"
	"time"

	"github.com/kevin07696/billing-pipeline/internal/domain/ports"
	"github.com/kevin07696/billing-pipeline/pkg/observability"
)

// Worker implements the job worker skeleton (C4) for a single queue: claim,
// lock, dispatch, ack/retry/dead-letter, release. One Worker instance
// drives one queue; a process hosts several, one goroutine loop each.
type Worker struct {
	Queue     string
	Policy    Policy
	Substrate *Substrate
	Lock      *Lock
	Recorder  EventRecorder
	Logger    ports.Logger
	Handlers  map[string]Handler
}

// NewWorker constructs a worker for queue q using the package-level policy
// table. recorder may be NoopRecorder{} when the caller does not need an
// audit trail (e.g. in isolated tests).
func NewWorker(q string, substrate *Substrate, lock *Lock, recorder EventRecorder, logger ports.Logger) *Worker {
	return &Worker{
		Queue:     q,
		Policy:    PolicyFor(q),
		Substrate: substrate,
		Lock:      lock,
		Recorder:  recorder,
		Logger:    logger,
		Handlers:  make(map[string]Handler),
	}
}

// Register binds a handler to an action name for this worker's queue.
func (w *Worker) Register(action string, h Handler) {
	w.Handlers[action] = h
}

// RunOnce executes exactly one iteration of the §4.4 contract and returns
// the disposition label for observability/testing ("no_message",
// "claim_error", "lock_error", "retry_lock_unavailable", "success",
// "retry", "failed").
// leaseTimeout bounds how long the underlying Claim blocks.
func (w *Worker) RunOnce(ctx context.Context, leaseTimeout time.Duration) string {
	raw, err := w.Substrate.Claim(ctx, w.Queue, leaseTimeout)
	if err != nil {
		w.logError("claim failed", err)
		return "claim_error"
	}
	if raw == "" {
		return "no_message"
	}

	env, err := UnmarshalEnvelope(raw)
	if err != nil {
		// Unparseable message: cannot be retried meaningfully, dead-letter it.
		w.Substrate.RemoveFromProcessing(ctx, w.Queue, raw)
		w.Substrate.DeadLetter(ctx, w.Queue, raw)
		w.logError("envelope parse failed, dead-lettered", err)
		return "failed"
	}

	messageID, err := env.MessageID()
	if err != nil {
		w.logError("message id derivation failed", err)
		return "failed"
	}

	acquired, err := w.Lock.Acquire(ctx, w.Queue, messageID, w.Policy.LockTTL)
	if err != nil {
		w.logError("lock acquire failed", err)
		return "lock_error"
	}
	if !acquired {
		w.Substrate.RemoveFromProcessing(ctx, w.Queue, raw)
		requeue := env.CloneWithAttempts(env.Attempts)
		if rerr := w.Substrate.Enqueue(ctx, w.Queue, requeue); rerr != nil {
			w.logError("requeue after lock contention failed", rerr)
		}
		w.record(ctx, env, JobStatusRetry, nil)
		return "retry_lock_unavailable"
	}
	defer w.Lock.Release(ctx, w.Queue, messageID)

	w.record(ctx, env, JobStatusProcessing, nil)

	handler, ok := w.Handlers[env.Action]
	if !ok {
		w.Substrate.RemoveFromProcessing(ctx, w.Queue, raw)
		w.Substrate.DeadLetter(ctx, w.Queue, raw)
		w.record(ctx, env, JobStatusDead, nil)
		w.logError("no handler registered for action "+env.Action, nil)
		return "failed"
	}

	result := handler(ctx, env)
	switch result.Outcome {
	case OutcomeSuccess, OutcomeDuplicate:
		if err := w.Substrate.Ack(ctx, w.Queue, raw); err != nil {
			w.logError("ack failed", err)
		}
		w.record(ctx, env, JobStatusSuccess, nil)
		return "success"

	case OutcomeFatal:
		w.Substrate.RemoveFromProcessing(ctx, w.Queue, raw)
		w.Substrate.DeadLetter(ctx, w.Queue, raw)
		w.record(ctx, env, JobStatusDead, result.Err)
		return "failed"

	default: // OutcomeRetryable
		attemptsNext := env.Attempts + 1
		w.Substrate.RemoveFromProcessing(ctx, w.Queue, raw)
		ceiling := env.EffectiveMaxRetries(w.Policy.MaxRetries)
		if attemptsNext <= ceiling {
			clone := env.CloneWithAttempts(attemptsNext)
			delay := w.Policy.NextDelay(attemptsNext)
			if err := w.Substrate.DelayEnqueue(ctx, w.Queue, clone, delay); err != nil {
				w.logError("delay enqueue failed", err)
			}
			w.record(ctx, env, JobStatusRetry, result.Err)
			return "retry"
		}
		w.Substrate.DeadLetter(ctx, w.Queue, raw)
		w.record(ctx, env, JobStatusFailed, result.Err)
		return "failed"
	}
}

// Run loops RunOnce until ctx is cancelled, observing the shutdown signal
// between iterations rather than mid-handler: an in-flight handler always
// finishes before the loop checks ctx again.
func (w *Worker) Run(ctx context.Context, leaseTimeout time.Duration) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		outcome := w.RunOnce(ctx, leaseTimeout)
		if outcome != "no_message" {
			observability.RecordJobOutcome(w.Queue, outcome)
		}
	}
}

func (w *Worker) record(ctx context.Context, env *Envelope, status JobStatus, err error) {
	if w.Recorder == nil {
		return
	}
	if rerr := w.Recorder.Record(ctx, w.Queue, env, status, err); rerr != nil {
		w.logError("job log record failed", rerr)
	}
}

func (w *Worker) logError(msg string, err error) {
	if w.Logger == nil {
		return
	}
	if err != nil {
		w.Logger.Error(msg, ports.String("queue", w.Queue), ports.Err(err))
		return
	}
	w.Logger.Warn(msg, ports.String("queue", w.Queue))
}
