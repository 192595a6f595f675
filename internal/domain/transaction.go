package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus represents the current state of a transaction.
type TransactionStatus string

const (
	TransactionStatusPending         TransactionStatus = "pending"
	TransactionStatusProcessing      TransactionStatus = "processing"
	TransactionStatusSuccess         TransactionStatus = "success"
	TransactionStatusFailed          TransactionStatus = "failed"
	TransactionStatusRefundInitiated TransactionStatus = "refund_initiated"
	TransactionStatusRefundComplete  TransactionStatus = "refund_complete"
	TransactionStatusRefundError     TransactionStatus = "refund_error"
)

// IsTerminal reports whether the status is one a transaction reaches at
// most once and never reverts from (invariant 5).
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case TransactionStatusSuccess, TransactionStatusFailed,
		TransactionStatusRefundComplete, TransactionStatusRefundError:
		return true
	default:
		return false
	}
}

// Transaction represents a single payment attempt against the gateway.
type Transaction struct {
	ID             string            `json:"id"` // UUID
	SubscriptionID *string           `json:"subscription_id,omitempty"`
	Amount         decimal.Decimal   `json:"amount"`
	Currency       string            `json:"currency"`
	Status         TransactionStatus `json:"status"`

	GatewayReference *string `json:"gateway_reference,omitempty"`
	ErrorMessage     *string `json:"error_message,omitempty"`

	// Metadata carries the {trial, renewal} flags (set when true) and
	// card_last_four (when a card was supplied) but is otherwise an open bag.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsTrial reports whether this transaction was a nominal trial charge.
func (t *Transaction) IsTrial() bool {
	v, _ := t.Metadata["trial"].(bool)
	return v
}

// IsRenewal reports whether this transaction was a subscription renewal.
func (t *Transaction) IsRenewal() bool {
	v, _ := t.Metadata["renewal"].(bool)
	return v
}

// Action derives the wire-protocol `action` value for the subscription
// update event this transaction produces: renewal takes precedence over
// trial, trial over a plain initial charge.
func (t *Transaction) Action() string {
	switch {
	case t.IsRenewal():
		return "renewal"
	case t.IsTrial():
		return "trial"
	default:
		return "initial"
	}
}

// CanTransition enforces invariant 5: once terminal, a transaction's
// status must never change again.
func (t *Transaction) CanTransition() bool {
	return !t.Status.IsTerminal()
}
