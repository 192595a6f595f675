package subscription

import (
	"context"
	"errors"

	"github.com/kevin07696/billing-pipeline/internal/domain"
	"github.com/kevin07696/billing-pipeline/internal/domain/ports"
	"github.com/kevin07696/billing-pipeline/internal/inbox"
	"github.com/kevin07696/billing-pipeline/internal/queue"
)

// PaymentOutcomeHandler adapts the state machine into a queue.Handler for
// the "subscription_update" action on q:pay:subscription_update: decode,
// dedup through the inbox (C13), apply the transition (C10), record the
// inbox disposition.
func PaymentOutcomeHandler(sm *StateMachine, box *inbox.Inbox, logger ports.Logger) queue.Handler {
	return func(ctx context.Context, env *queue.Envelope) queue.Result {
		outcome, err := DecodePaymentOutcome(env.Payload)
		if err != nil {
			// A malformed or action-less payload can never become valid on
			// retry; dead-letter it immediately.
			return queue.Fatal(err)
		}

		entry, err := box.Ingest(ctx, outcome.EventID, env.Payload)
		if err != nil {
			return queue.Retryable(err)
		}
		if entry.Disposition == inbox.Duplicate {
			return queue.Duplicate()
		}

		if err := sm.Apply(ctx, outcome); err != nil {
			if markErr := box.MarkFailed(ctx, entry.Row.ID, entry.Row.RetryCount+1, err.Error()); markErr != nil && logger != nil {
				logger.Error("inbox mark-failed write failed", ports.Err(markErr))
			}
			if isFatalTransition(err) {
				return queue.Fatal(err)
			}
			return queue.Retryable(err)
		}

		if err := box.MarkProcessed(ctx, entry.Row.ID); err != nil && logger != nil {
			logger.Error("inbox mark-processed write failed", ports.Err(err))
		}
		return queue.Success()
	}
}

// isFatalTransition reports whether err reflects an invariant violation
// that retrying would never resolve, as opposed to a transient storage
// failure.
func isFatalTransition(err error) bool {
	return errors.Is(err, domain.ErrUnexpectedSubscriptionState) ||
		errors.Is(err, domain.ErrMissingActionOnWire) ||
		errors.Is(err, domain.ErrSubscriptionNotFound) ||
		errors.Is(err, domain.ErrPlanNotFound)
}
