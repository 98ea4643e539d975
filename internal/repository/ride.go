package repository

import (
	"context"

	"dispatch/internal/domain"
)

// RideRepository defines the persistence operations for rides.
type RideRepository interface {
	// Create persists a new ride.
	Create(ctx context.Context, ride *domain.Ride) error

	// GetByID retrieves a ride by ID.
	GetByID(ctx context.Context, id string) (*domain.Ride, error)

	// ListByStatus retrieves rides in the given status, oldest first.
	ListByStatus(ctx context.Context, status domain.RideStatus, limit int) ([]*domain.Ride, error)

	// ListByParty retrieves rides where userID is the customer or technician, newest first.
	ListByParty(ctx context.Context, userID string, limit int) ([]*domain.Ride, error)

	// Update writes the ride only if its stored version still equals ride.Version.
	// On success ride.Version is incremented. Returns ErrVersionConflict when
	// another writer got there first.
	Update(ctx context.Context, ride *domain.Ride) error
}
