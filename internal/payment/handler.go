package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/kevin07696/billing-pipeline/internal/domain"
	"github.com/kevin07696/billing-pipeline/internal/queue"
)

// ChargeHandler adapts Processor.ProcessPayment into a queue.Handler for one
// of the subscription-originated charge queues (q:sub:payment_initiation,
// q:sub:trial_payment, q:sub:plan_change). action fixes the ChargeParams
// Action for every message this handler instance serves, since that is
// determined by which queue the message arrived on, not by its payload.
func (p *Processor) ChargeHandler(action string) queue.Handler {
	return func(ctx context.Context, env *queue.Envelope) queue.Result {
		params, err := decodeChargeParams(env, action)
		if err != nil {
			return queue.Fatal(err)
		}

		_, err = p.ProcessPayment(ctx, params)
		if err != nil {
			if isRetryableGatewayError(err) {
				return queue.Retryable(err)
			}
			return queue.Fatal(err)
		}
		return queue.Success()
	}
}

// RefundHandler adapts Processor.ProcessRefund into a queue.Handler for
// q:pay:refund_initiation.
func (p *Processor) RefundHandler() queue.Handler {
	return func(ctx context.Context, env *queue.Envelope) queue.Result {
		transactionID, _ := env.Payload["transaction_id"].(string)
		if transactionID == "" {
			return queue.Fatal(fmt.Errorf("refund initiation payload missing transaction_id"))
		}
		reason, _ := env.Payload["reason"].(string)

		_, err := p.ProcessRefund(ctx, transactionID, reason)
		if err != nil {
			if isRetryableGatewayError(err) {
				return queue.Retryable(err)
			}
			return queue.Fatal(err)
		}
		return queue.Success()
	}
}

func decodeChargeParams(env *queue.Envelope, action string) (ChargeParams, error) {
	payload := env.Payload
	subscriptionID, _ := payload["subscription_id"].(string)
	if subscriptionID == "" {
		return ChargeParams{}, fmt.Errorf("charge payload missing subscription_id")
	}
	currency, _ := payload["currency"].(string)
	cardLastFour, _ := payload["card_last_four"].(string)
	metadata, _ := payload["metadata"].(map[string]interface{})

	amount, err := decodeAmount(payload["amount"])
	if err != nil {
		return ChargeParams{}, fmt.Errorf("decode charge amount: %w", err)
	}

	idempotencyKey := env.IdempotencyKey
	if idempotencyKey == "" {
		idempotencyKey = env.ID
	}

	return ChargeParams{
		SubscriptionID: subscriptionID,
		Amount:         amount,
		Currency:       currency,
		CardLastFour:   cardLastFour,
		Action:         action,
		IdempotencyKey: idempotencyKey,
		Metadata:       metadata,
	}, nil
}

func decodeAmount(raw interface{}) (decimal.Decimal, error) {
	switch v := raw.(type) {
	case string:
		return decimal.NewFromString(v)
	case float64:
		return decimal.NewFromFloat(v), nil
	default:
		return decimal.Decimal{}, fmt.Errorf("unsupported amount type %T", raw)
	}
}

// isRetryableGatewayError reports whether err reflects a transient failure
// worth a backoff retry, as opposed to a validation error that retrying
// would never fix.
func isRetryableGatewayError(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, domain.ErrInvalidAmount) && !errors.Is(err, domain.ErrInvalidCurrency)
}
