package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/kevin07696/billing-pipeline/internal/domain"
)

// TransactionRepository implements ports.TransactionRepository against the
// transactions table, hand-written SQL via pgxpool.
type TransactionRepository struct {
	pool *Pool
}

// NewTransactionRepository constructs a TransactionRepository.
func NewTransactionRepository(pool *Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *domain.Transaction) error {
	amount, err := decimalToNumeric(tx.Amount)
	if err != nil {
		return err
	}
	metadata, err := marshalMetadata(tx.Metadata)
	if err != nil {
		return err
	}
	_, err = r.pool.Raw().Exec(ctx, `
		INSERT INTO transactions
			(id, subscription_id, amount, currency, status, gateway_reference, error_message, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		tx.ID, tx.SubscriptionID, amount, tx.Currency, string(tx.Status),
		tx.GatewayReference, tx.ErrorMessage, metadata, tx.CreatedAt, tx.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create transaction %s: %w", tx.ID, err)
	}
	return nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	var tx domain.Transaction
	var status string
	var amount pgtype.Numeric
	var metadata []byte
	err := r.pool.Raw().QueryRow(ctx, `
		SELECT id, subscription_id, amount, currency, status, gateway_reference, error_message,
		       metadata, created_at, updated_at
		FROM transactions
		WHERE id = $1`, id).
		Scan(&tx.ID, &tx.SubscriptionID, &amount, &tx.Currency, &status, &tx.GatewayReference,
			&tx.ErrorMessage, &metadata, &tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("get transaction %s: %w", id, err)
	}
	tx.Status = domain.TransactionStatus(status)
	dec, err := numericToDecimal(amount)
	if err != nil {
		return nil, fmt.Errorf("decode transaction %s amount: %w", id, err)
	}
	tx.Amount = dec
	m, err := unmarshalMetadata(metadata)
	if err != nil {
		return nil, err
	}
	tx.Metadata = m
	return &tx, nil
}

func (r *TransactionRepository) UpdateStatus(ctx context.Context, id string, status domain.TransactionStatus, gatewayRef, errMsg *string) error {
	tag, err := r.pool.Raw().Exec(ctx, `
		UPDATE transactions
		SET status = $2, gateway_reference = $3, error_message = $4, updated_at = now()
		WHERE id = $1`,
		id, string(status), gatewayRef, errMsg)
	if err != nil {
		return fmt.Errorf("update transaction %s status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTransactionNotFound
	}
	return nil
}
