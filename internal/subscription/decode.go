package subscription

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kevin07696/billing-pipeline/internal/domain"
)

// DecodePaymentOutcome parses a queue envelope payload (or an inbox row's
// payload) into a PaymentOutcome, the shape described in spec §6 as the
// "Payment -> Subscription payload". amount is accepted as either a JSON
// number or a decimal string, since the payment processor emits the latter
// to avoid floating-point round-tripping.
func DecodePaymentOutcome(payload map[string]interface{}) (PaymentOutcome, error) {
	eventID, _ := payload["event_id"].(string)
	transactionID, _ := payload["transaction_id"].(string)
	subscriptionID, _ := payload["subscription_id"].(string)
	status, _ := payload["status"].(string)
	currency, _ := payload["currency"].(string)
	action, _ := payload["action"].(string)

	if transactionID == "" {
		return PaymentOutcome{}, fmt.Errorf("payment outcome payload missing transaction_id")
	}
	if status == "" {
		return PaymentOutcome{}, fmt.Errorf("payment outcome payload missing status")
	}
	if action == "" {
		return PaymentOutcome{}, domain.ErrMissingActionOnWire
	}

	amount, err := decodeAmount(payload["amount"])
	if err != nil {
		return PaymentOutcome{}, fmt.Errorf("decode amount: %w", err)
	}

	occurredAt := time.Now().UTC()
	if raw, ok := payload["occurred_at"].(string); ok && raw != "" {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			occurredAt = parsed
		}
	}

	metadata, _ := payload["metadata"].(map[string]interface{})

	return PaymentOutcome{
		EventID:        eventID,
		TransactionID:  transactionID,
		SubscriptionID: subscriptionID,
		Status:         status,
		Amount:         amount,
		Currency:       currency,
		OccurredAt:     occurredAt,
		Action:         action,
		Metadata:       metadata,
	}, nil
}

func decodeAmount(raw interface{}) (decimal.Decimal, error) {
	switch v := raw.(type) {
	case string:
		return decimal.NewFromString(v)
	case float64:
		return decimal.NewFromFloat(v), nil
	case nil:
		return decimal.Zero, nil
	default:
		return decimal.Zero, fmt.Errorf("unsupported amount type %T", raw)
	}
}
