package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransaction_IsTrial(t *testing.T) {
	tests := []struct {
		name     string
		metadata map[string]interface{}
		expected bool
	}{
		{"trial flag true", map[string]interface{}{"trial": true}, true},
		{"trial flag false", map[string]interface{}{"trial": false}, false},
		{"trial flag absent", map[string]interface{}{}, false},
		{"nil metadata", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := &Transaction{Metadata: tt.metadata}
			assert.Equal(t, tt.expected, tx.IsTrial())
		})
	}
}

func TestTransaction_Action(t *testing.T) {
	tests := []struct {
		name     string
		metadata map[string]interface{}
		expected string
	}{
		{"renewal wins over trial", map[string]interface{}{"renewal": true, "trial": true}, "renewal"},
		{"trial alone", map[string]interface{}{"trial": true}, "trial"},
		{"neither flag", map[string]interface{}{}, "initial"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := &Transaction{Metadata: tt.metadata}
			assert.Equal(t, tt.expected, tx.Action())
		})
	}
}

func TestTransactionStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		name     string
		status   TransactionStatus
		expected bool
	}{
		{"success is terminal", TransactionStatusSuccess, true},
		{"failed is terminal", TransactionStatusFailed, true},
		{"refund_complete is terminal", TransactionStatusRefundComplete, true},
		{"refund_error is terminal", TransactionStatusRefundError, true},
		{"pending is not terminal", TransactionStatusPending, false},
		{"processing is not terminal", TransactionStatusProcessing, false},
		{"refund_initiated is not terminal", TransactionStatusRefundInitiated, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.status.IsTerminal())
		})
	}
}

func TestTransaction_CanTransition(t *testing.T) {
	terminal := &Transaction{Status: TransactionStatusSuccess}
	pending := &Transaction{Status: TransactionStatusPending}

	assert.False(t, terminal.CanTransition())
	assert.True(t, pending.CanTransition())
}
