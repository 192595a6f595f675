package domain

import "errors"

// Domain-level sentinel errors. These signal invariant violations inside
// the domain/state-machine packages; transport-facing disposition (retry,
// dead-letter, 4xx) is decided by the typed errors in pkg/errors.
var (
	// Lookup errors
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrPlanNotFound         = errors.New("plan not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrWebhookInboxNotFound = errors.New("webhook inbox entry not found")

	// State machine invariants
	ErrSubscriptionAlreadyTerminal = errors.New("subscription is already in a terminal state")
	ErrUnexpectedSubscriptionState = errors.New("event does not apply to the subscription's current state")
	ErrTransactionAlreadyTerminal  = errors.New("transaction has already reached a terminal status")

	// Usage metering
	ErrFeatureUnavailable = errors.New("feature unavailable on plan")
	ErrUsageLimitExceeded = errors.New("usage limit exceeded")

	// Wire protocol
	ErrMissingActionOnWire = errors.New("webhook payload is missing required action field")

	// Idempotency
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// Validation
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidCurrency      = errors.New("invalid currency")
	ErrMissingRequiredField = errors.New("missing required field")
)
