package payment

import (
	"context"
	"fmt"

	"github.com/kevin07696/billing-pipeline/internal/domain"
	"github.com/kevin07696/billing-pipeline/internal/domain/ports"
)

// ProcessRefund drives a previously successful transaction through the
// gateway's refund path. It is invoked by the refund-initiation queue
// handler, most commonly for the trial-verification-charge refund that
// ProcessPayment schedules after a successful trial charge.
func (p *Processor) ProcessRefund(ctx context.Context, transactionID, reason string) (*domain.Transaction, error) {
	tx, err := p.Transactions.GetByID(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("load transaction %s: %w", transactionID, err)
	}
	if tx.Status != domain.TransactionStatusSuccess {
		return nil, fmt.Errorf("%w: refund requires a successful transaction, got %s", domain.ErrUnexpectedSubscriptionState, tx.Status)
	}

	if err := p.Transactions.UpdateStatus(ctx, tx.ID, domain.TransactionStatusRefundInitiated, tx.GatewayReference, nil); err != nil {
		return nil, fmt.Errorf("mark refund initiated: %w", err)
	}
	tx.Status = domain.TransactionStatusRefundInitiated

	result, err := p.Gateway.Refund(ctx, tx.ID, tx.Amount, reason)
	if err != nil {
		errMsg := err.Error()
		if uErr := p.Transactions.UpdateStatus(ctx, tx.ID, domain.TransactionStatusRefundError, tx.GatewayReference, &errMsg); uErr != nil && p.Logger != nil {
			p.Logger.Error("failed to record refund error", ports.String("transaction_id", tx.ID), ports.Err(uErr))
		}
		tx.Status = domain.TransactionStatusRefundError
		tx.ErrorMessage = &errMsg
		return tx, fmt.Errorf("gateway refund: %w", err)
	}

	finalStatus := domain.TransactionStatusRefundError
	var errMsgPtr *string
	if result.Status == ports.GatewayStatusSuccess {
		finalStatus = domain.TransactionStatusRefundComplete
	} else {
		msg := result.Message
		errMsgPtr = &msg
	}

	gatewayRef := tx.GatewayReference
	if result.GatewayReference != "" {
		ref := result.GatewayReference
		gatewayRef = &ref
	}
	if err := p.Transactions.UpdateStatus(ctx, tx.ID, finalStatus, gatewayRef, errMsgPtr); err != nil {
		return nil, fmt.Errorf("update refund status: %w", err)
	}
	tx.Status = finalStatus
	tx.GatewayReference = gatewayRef
	tx.ErrorMessage = errMsgPtr

	return tx, nil
}
