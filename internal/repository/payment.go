package repository

import (
	"context"

	"dispatch/internal/domain"
)

// PaymentRepository defines the persistence operations for gateway payment orders.
type PaymentRepository interface {
	// Create persists a new payment order.
	Create(ctx context.Context, order *domain.PaymentOrder) error

	// GetByID retrieves a payment order by ID.
	GetByID(ctx context.Context, id string) (*domain.PaymentOrder, error)

	// GetByIdempotencyKey retrieves a payment order by its idempotency key.
	// Returns nil if no order exists with the given key.
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.PaymentOrder, error)

	// UpdateStatus updates the status of a payment order.
	UpdateStatus(ctx context.Context, id string, status domain.PaymentOrderStatus) error
}
