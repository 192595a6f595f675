package payment

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevin07696/billing-pipeline/internal/domain"
	"github.com/kevin07696/billing-pipeline/internal/domain/ports"
	"github.com/kevin07696/billing-pipeline/internal/queue"
)

type fakeTxRepo struct {
	mu   sync.Mutex
	txs  map[string]*domain.Transaction
}

func newFakeTxRepo() *fakeTxRepo {
	return &fakeTxRepo{txs: map[string]*domain.Transaction{}}
}

func (f *fakeTxRepo) Create(ctx context.Context, tx *domain.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *tx
	f.txs[tx.ID] = &cp
	return nil
}

func (f *fakeTxRepo) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.txs[id]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	cp := *tx
	return &cp, nil
}

func (f *fakeTxRepo) UpdateStatus(ctx context.Context, id string, status domain.TransactionStatus, gatewayReference, errorMessage *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.txs[id]
	if !ok {
		return domain.ErrTransactionNotFound
	}
	tx.Status = status
	tx.GatewayReference = gatewayReference
	tx.ErrorMessage = errorMessage
	return nil
}

type fakeGateway struct {
	chargeResult ports.ChargeResult
	chargeErr    error
	refundResult ports.RefundResult
	refundErr    error
}

func (g *fakeGateway) Charge(ctx context.Context, req ports.ChargeRequest) (ports.ChargeResult, error) {
	return g.chargeResult, g.chargeErr
}

func (g *fakeGateway) Refund(ctx context.Context, transactionID string, amount decimal.Decimal, reason string) (ports.RefundResult, error) {
	return g.refundResult, g.refundErr
}

func newTestSubstrate(t *testing.T) *queue.Substrate {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return queue.NewSubstrate(client)
}

func TestProcessor_ProcessPayment_SuccessEnqueuesSubscriptionUpdate(t *testing.T) {
	txs := newFakeTxRepo()
	gw := &fakeGateway{chargeResult: ports.ChargeResult{Status: ports.GatewayStatusSuccess, GatewayReference: "gw-1"}}
	sub := newTestSubstrate(t)
	p := NewProcessor(txs, gw, sub, nil, "", nil)

	tx, err := p.ProcessPayment(context.Background(), ChargeParams{
		SubscriptionID: "sub-1",
		Amount:         decimal.NewFromInt(10),
		Currency:       "USD",
		Action:         "initial",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusSuccess, tx.Status)

	n, err := sub.LenActive(context.Background(), queue.QueuePaySubscriptionUpdate)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestProcessor_ProcessPayment_FailureMarksTransactionFailed(t *testing.T) {
	txs := newFakeTxRepo()
	gw := &fakeGateway{chargeResult: ports.ChargeResult{Status: ports.GatewayStatusFailed, Message: "card declined"}}
	sub := newTestSubstrate(t)
	p := NewProcessor(txs, gw, sub, nil, "", nil)

	tx, err := p.ProcessPayment(context.Background(), ChargeParams{
		SubscriptionID: "sub-2",
		Amount:         decimal.NewFromInt(10),
		Currency:       "USD",
		Action:         "initial",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusFailed, tx.Status)
	require.NotNil(t, tx.ErrorMessage)
	assert.Equal(t, "card declined", *tx.ErrorMessage)
}

func TestProcessor_ProcessPayment_GatewayError(t *testing.T) {
	txs := newFakeTxRepo()
	gw := &fakeGateway{chargeErr: assertErr("network timeout")}
	sub := newTestSubstrate(t)
	p := NewProcessor(txs, gw, sub, nil, "", nil)

	tx, err := p.ProcessPayment(context.Background(), ChargeParams{
		SubscriptionID: "sub-3",
		Amount:         decimal.NewFromInt(10),
		Currency:       "USD",
		Action:         "initial",
	})
	require.Error(t, err)
	assert.Equal(t, domain.TransactionStatusFailed, tx.Status)
}

func TestProcessor_ProcessPayment_TrialSuccess_EnqueuesRefundInitiation(t *testing.T) {
	txs := newFakeTxRepo()
	gw := &fakeGateway{chargeResult: ports.ChargeResult{Status: ports.GatewayStatusSuccess, GatewayReference: "gw-2"}}
	sub := newTestSubstrate(t)
	p := NewProcessor(txs, gw, sub, nil, "", nil)

	tx, err := p.ProcessPayment(context.Background(), ChargeParams{
		SubscriptionID: "sub-4",
		Amount:         decimal.NewFromInt(1),
		Currency:       "USD",
		Action:         "trial",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusSuccess, tx.Status)

	n, err := sub.LenActive(context.Background(), queue.QueuePayRefundInitiation)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestProcessor_ProcessPayment_RejectsNonPositiveAmount(t *testing.T) {
	txs := newFakeTxRepo()
	gw := &fakeGateway{}
	sub := newTestSubstrate(t)
	p := NewProcessor(txs, gw, sub, nil, "", nil)

	_, err := p.ProcessPayment(context.Background(), ChargeParams{
		SubscriptionID: "sub-5",
		Amount:         decimal.Zero,
		Currency:       "USD",
		Action:         "initial",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestProcessor_ProcessRefund_SuccessTransitionsToRefundComplete(t *testing.T) {
	txs := newFakeTxRepo()
	gw := &fakeGateway{
		chargeResult: ports.ChargeResult{Status: ports.GatewayStatusSuccess, GatewayReference: "gw-3"},
		refundResult: ports.RefundResult{Status: ports.GatewayStatusSuccess, GatewayReference: "refund-1"},
	}
	sub := newTestSubstrate(t)
	p := NewProcessor(txs, gw, sub, nil, "", nil)

	tx, err := p.ProcessPayment(context.Background(), ChargeParams{
		SubscriptionID: "sub-6",
		Amount:         decimal.NewFromInt(1),
		Currency:       "USD",
		Action:         "trial",
	})
	require.NoError(t, err)

	refunded, err := p.ProcessRefund(context.Background(), tx.ID, "trial_verification_refund")
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusRefundComplete, refunded.Status)
}

func TestProcessor_ProcessRefund_RejectsNonSuccessTransaction(t *testing.T) {
	txs := newFakeTxRepo()
	gw := &fakeGateway{chargeResult: ports.ChargeResult{Status: ports.GatewayStatusFailed}}
	sub := newTestSubstrate(t)
	p := NewProcessor(txs, gw, sub, nil, "", nil)

	tx, err := p.ProcessPayment(context.Background(), ChargeParams{
		SubscriptionID: "sub-7",
		Amount:         decimal.NewFromInt(1),
		Currency:       "USD",
		Action:         "initial",
	})
	require.NoError(t, err)

	_, err = p.ProcessRefund(context.Background(), tx.ID, "reason")
	assert.Error(t, err)
}

type simpleError string

func (e simpleError) Error() string { return string(e) }

func assertErr(msg string) error { return simpleError(msg) }
