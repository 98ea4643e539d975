package postgres

import (
	"context"
	"database/sql"
	"errors"

	"dispatch/internal/domain"
	"dispatch/internal/repository"
)

// PaymentRepository is a PostgreSQL implementation of repository.PaymentRepository.
type PaymentRepository struct {
	q Querier
}

// NewPaymentRepository creates a new PostgreSQL payment repository.
func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{q: db}
}

// NewPaymentRepositoryWithTx creates a payment repository using a transaction.
func NewPaymentRepositoryWithTx(tx *sql.Tx) *PaymentRepository {
	return &PaymentRepository{q: tx}
}

// Create persists a new payment order.
func (r *PaymentRepository) Create(ctx context.Context, order *domain.PaymentOrder) error {
	query := `
		INSERT INTO payment_orders (id, ride_id, amount, status, gateway_order_id, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.q.ExecContext(ctx, query,
		order.ID,
		order.RideID,
		order.Amount,
		order.Status,
		order.GatewayOrderID,
		order.IdempotencyKey,
		order.CreatedAt,
	)
	if isUniqueViolation(err) {
		return repository.ErrDuplicate
	}
	return err
}

// GetByID retrieves a payment order by ID.
func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*domain.PaymentOrder, error) {
	order, err := r.getOne(ctx, `WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return order, err
}

// GetByIdempotencyKey retrieves a payment order by its idempotency key.
// Returns nil if no order exists with the given key.
func (r *PaymentRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.PaymentOrder, error) {
	order, err := r.getOne(ctx, `WHERE idempotency_key = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return order, err
}

func (r *PaymentRepository) getOne(ctx context.Context, where string, arg any) (*domain.PaymentOrder, error) {
	query := `
		SELECT id, ride_id, amount, status, gateway_order_id, idempotency_key, created_at
		FROM payment_orders ` + where

	var order domain.PaymentOrder
	err := r.q.QueryRowContext(ctx, query, arg).Scan(
		&order.ID,
		&order.RideID,
		&order.Amount,
		&order.Status,
		&order.GatewayOrderID,
		&order.IdempotencyKey,
		&order.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateStatus updates the status of a payment order.
func (r *PaymentRepository) UpdateStatus(ctx context.Context, id string, status domain.PaymentOrderStatus) error {
	query := `UPDATE payment_orders SET status = $1 WHERE id = $2`

	result, err := r.q.ExecContext(ctx, query, status, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return repository.ErrNotFound
	}

	return nil
}
