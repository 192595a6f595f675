package subscription

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentOutcome is a verified webhook payload as defined on the wire in
// spec §6 ("Payment -> Subscription payload"), decoded once at the
// transport boundary into this single shape. Per spec §9's open question,
// Action is required on the wire; a payload missing it is rejected rather
// than inferred.
type PaymentOutcome struct {
	EventID        string
	TransactionID  string
	SubscriptionID string
	Status         string // "success" | "failed"
	Amount         decimal.Decimal
	Currency       string
	OccurredAt     time.Time
	Action         string // "trial" | "initial" | "renewal" | "upgrade"
	Metadata       map[string]interface{}
}

const (
	PaymentStatusSuccess = "success"
	PaymentStatusFailed  = "failed"

	ActionTrial   = "trial"
	ActionInitial = "initial"
	ActionRenewal = "renewal"
	ActionUpgrade = "upgrade"
)
