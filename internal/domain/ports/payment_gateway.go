package ports

import (
	"context"

	"github.com/shopspring/decimal"
)

// ChargeRequest is what the payment processor sends to the gateway.
type ChargeRequest struct {
	TransactionID  string
	Amount         decimal.Decimal
	Currency       string
	CardLastFour   string
	IdempotencyKey string
}

// GatewayStatus is the outcome the gateway reports for a charge or refund.
type GatewayStatus string

const (
	GatewayStatusSuccess GatewayStatus = "success"
	GatewayStatusFailed  GatewayStatus = "failed"
)

// ChargeResult is the gateway's response to a charge attempt.
type ChargeResult struct {
	GatewayReference string
	Status           GatewayStatus
	Message          string
	ErrorCode        string
}

// RefundResult is the gateway's response to a refund attempt.
type RefundResult struct {
	GatewayReference string
	Status           GatewayStatus
	Message          string
}

// PaymentGateway is the external collaborator the payment processor (C11)
// drives. It is treated as opaque: its latency and outcome distribution
// are not this project's concern, only the contract shape is. Callers
// must not retry a gateway call for the same transaction; retries belong
// to the caller's own job-level backoff, not the gateway call itself.
type PaymentGateway interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
	Refund(ctx context.Context, transactionID string, amount decimal.Decimal, reason string) (RefundResult, error)
}
