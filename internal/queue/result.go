package queue

import "context"

// Outcome tags a handler's disposition. This is the explicit result type
// called for by the redesign notes: handlers return one of these instead
// of raising exceptions, and the worker skeleton interprets it.
type Outcome int

const (
	// OutcomeSuccess acks the message.
	OutcomeSuccess Outcome = iota
	// OutcomeRetryable schedules a backoff retry (or dead-letters if the
	// ceiling is exceeded).
	OutcomeRetryable
	// OutcomeFatal dead-letters the message immediately, no retry.
	OutcomeFatal
	// OutcomeDuplicate is treated identically to success: the message is
	// acked with no further side effects.
	OutcomeDuplicate
)

// Result is what a Handler returns.
type Result struct {
	Outcome Outcome
	Err     error
}

// Success is returned by handlers that completed the action.
func Success() Result { return Result{Outcome: OutcomeSuccess} }

// Retryable is returned for transient failures eligible for backoff retry.
func Retryable(err error) Result { return Result{Outcome: OutcomeRetryable, Err: err} }

// Fatal is returned for invariant violations that must never be retried.
func Fatal(err error) Result { return Result{Outcome: OutcomeFatal, Err: err} }

// Duplicate is returned when an inbox check short-circuited processing.
func Duplicate() Result { return Result{Outcome: OutcomeDuplicate} }

// Handler processes one envelope for a registered action. Handlers MUST be
// idempotent with respect to IdempotencyKey: the worker skeleton may invoke
// a handler more than once for the same logical message (lock contention,
// sweeper-driven redelivery).
type Handler func(ctx context.Context, env *Envelope) Result
