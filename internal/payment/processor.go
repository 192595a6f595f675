package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kevin07696/billing-pipeline/internal/domain"
	"github.com/kevin07696/billing-pipeline/internal/domain/ports"
	"github.com/kevin07696/billing-pipeline/internal/queue"
	"github.com/kevin07696/billing-pipeline/internal/webhook"
)

// ChargeParams is the input to ProcessPayment: everything needed to attempt
// one gateway charge against a subscription.
type ChargeParams struct {
	SubscriptionID string
	Amount         decimal.Decimal
	Currency       string
	CardLastFour   string
	Action         string // "trial" | "initial" | "renewal" | "upgrade"
	IdempotencyKey string
	Metadata       map[string]interface{}
}

// Processor implements the payment processor (C11): it drives one
// transaction from pending through the gateway to a terminal status, then
// fans the outcome out to the subscription-update queue and, best-effort,
// synchronously over the webhook client.
type Processor struct {
	Transactions ports.TransactionRepository
	Gateway      ports.PaymentGateway
	Queue        *queue.Substrate
	Webhook      *webhook.Client
	Logger       ports.Logger

	// WebhookEndpoint is the path the outcome is POSTed to, e.g.
	// "/internal/payment-outcomes".
	WebhookEndpoint string
}

// NewProcessor constructs a payment processor. Webhook may be nil to skip
// the synchronous delivery path entirely (e.g. in tests).
func NewProcessor(txs ports.TransactionRepository, gateway ports.PaymentGateway, sub *queue.Substrate, wh *webhook.Client, webhookEndpoint string, logger ports.Logger) *Processor {
	return &Processor{
		Transactions:    txs,
		Gateway:         gateway,
		Queue:           sub,
		Webhook:         wh,
		WebhookEndpoint: webhookEndpoint,
		Logger:          logger,
	}
}

// ProcessPayment charges params against the gateway and persists the
// resulting transaction. The transaction moves pending -> processing ->
// {success, failed} regardless of outcome. Every call creates a fresh
// transaction, so no already-terminal transaction is ever reopened
// (invariant 5).
func (p *Processor) ProcessPayment(ctx context.Context, params ChargeParams) (*domain.Transaction, error) {
	if params.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidAmount)
	}
	if params.Currency == "" {
		return nil, domain.ErrInvalidCurrency
	}

	metadata := mergeAction(params.Metadata, params.Action)
	if params.CardLastFour != "" {
		metadata["card_last_four"] = params.CardLastFour
	}

	tx := &domain.Transaction{
		ID:             uuid.New().String(),
		SubscriptionID: &params.SubscriptionID,
		Amount:         params.Amount,
		Currency:       params.Currency,
		Status:         domain.TransactionStatusPending,
		Metadata:       metadata,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	if err := p.Transactions.Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	if err := p.Transactions.UpdateStatus(ctx, tx.ID, domain.TransactionStatusProcessing, nil, nil); err != nil {
		return nil, fmt.Errorf("mark transaction processing: %w", err)
	}
	tx.Status = domain.TransactionStatusProcessing

	result, err := p.Gateway.Charge(ctx, ports.ChargeRequest{
		TransactionID:  tx.ID,
		Amount:         params.Amount,
		Currency:       params.Currency,
		CardLastFour:   params.CardLastFour,
		IdempotencyKey: params.IdempotencyKey,
	})
	if err != nil {
		errMsg := err.Error()
		if uErr := p.Transactions.UpdateStatus(ctx, tx.ID, domain.TransactionStatusFailed, nil, &errMsg); uErr != nil && p.Logger != nil {
			p.Logger.Error("failed to record transaction failure", ports.String("transaction_id", tx.ID), ports.Err(uErr))
		}
		tx.Status = domain.TransactionStatusFailed
		tx.ErrorMessage = &errMsg
		p.dispatch(ctx, tx, params, domain.TransactionStatusFailed)
		return tx, fmt.Errorf("gateway charge: %w", err)
	}

	finalStatus := domain.TransactionStatusFailed
	var errMsgPtr *string
	if result.Status == ports.GatewayStatusSuccess {
		finalStatus = domain.TransactionStatusSuccess
	} else {
		msg := result.Message
		errMsgPtr = &msg
	}

	gatewayRef := result.GatewayReference
	var gatewayRefPtr *string
	if gatewayRef != "" {
		gatewayRefPtr = &gatewayRef
	}
	if err := p.Transactions.UpdateStatus(ctx, tx.ID, finalStatus, gatewayRefPtr, errMsgPtr); err != nil {
		return nil, fmt.Errorf("update transaction status: %w", err)
	}
	tx.Status = finalStatus
	tx.GatewayReference = gatewayRefPtr
	tx.ErrorMessage = errMsgPtr

	p.dispatch(ctx, tx, params, finalStatus)

	if finalStatus == domain.TransactionStatusSuccess && params.Action == "trial" {
		if err := p.enqueueRefundInitiation(ctx, tx); err != nil && p.Logger != nil {
			p.Logger.Error("failed to enqueue refund initiation for trial charge", ports.String("transaction_id", tx.ID), ports.Err(err))
		}
	}

	return tx, nil
}

// dispatch builds the subscription_update event and fans it out: first
// enqueued durably, then (best-effort) delivered synchronously. A webhook
// delivery failure never fails ProcessPayment — the queued copy is the
// durable path; the synchronous POST is a latency optimization only.
func (p *Processor) dispatch(ctx context.Context, tx *domain.Transaction, params ChargeParams, status domain.TransactionStatus) {
	payload := map[string]interface{}{
		"event_id":        fmt.Sprintf("payment_%s_%d", tx.ID, time.Now().UTC().Unix()),
		"transaction_id":  tx.ID,
		"subscription_id": params.SubscriptionID,
		"status":          outcomeStatus(status),
		"amount":          params.Amount.String(),
		"currency":        params.Currency,
		"occurred_at":     time.Now().UTC().Format(time.RFC3339),
		"action":          params.Action,
	}

	env := queue.NewEnvelope(uuid.New().String(), "subscription_update", time.Now().UTC(), payload).
		WithIdempotencyKey(tx.ID).
		WithCorrelationID(params.SubscriptionID)

	if p.Queue != nil {
		if err := p.Queue.Enqueue(ctx, queue.QueuePaySubscriptionUpdate, env); err != nil && p.Logger != nil {
			p.Logger.Error("failed to enqueue subscription update", ports.String("transaction_id", tx.ID), ports.Err(err))
		}
	}

	if p.Webhook != nil && p.WebhookEndpoint != "" {
		eventID, _ := payload["event_id"].(string)
		if _, err := p.Webhook.Post(ctx, p.WebhookEndpoint, payload, eventID); err != nil && p.Logger != nil {
			p.Logger.Warn("synchronous webhook delivery failed, relying on queued delivery",
				ports.String("transaction_id", tx.ID), ports.Err(err))
		}
	}
}

// enqueueRefundInitiation schedules the refund-initiation job a successful
// trial charge requires: trial charges authorize a nominal amount that
// must be refunded once the card is verified, never captured.
func (p *Processor) enqueueRefundInitiation(ctx context.Context, tx *domain.Transaction) error {
	if p.Queue == nil {
		return nil
	}
	payload := map[string]interface{}{
		"transaction_id": tx.ID,
		"amount":         tx.Amount.String(),
		"currency":       tx.Currency,
		"reason":         "trial_refund",
	}
	env := queue.NewEnvelope(uuid.New().String(), "refund_initiation", time.Now().UTC(), payload).
		WithIdempotencyKey(tx.ID)
	return p.Queue.Enqueue(ctx, queue.QueuePayRefundInitiation, env)
}

func outcomeStatus(status domain.TransactionStatus) string {
	if status == domain.TransactionStatusSuccess {
		return "success"
	}
	return "failed"
}

func mergeAction(metadata map[string]interface{}, action string) map[string]interface{} {
	out := map[string]interface{}{}
	for k, v := range metadata {
		out[k] = v
	}
	switch action {
	case "trial":
		out["trial"] = true
	case "renewal":
		out["renewal"] = true
	}
	return out
}
