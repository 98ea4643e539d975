package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"dispatch/internal/domain"
	"dispatch/internal/repository"
)

// RideRepository is a PostgreSQL implementation of repository.RideRepository.
type RideRepository struct {
	q Querier
}

// NewRideRepository creates a new PostgreSQL ride repository.
func NewRideRepository(db *sql.DB) *RideRepository {
	return &RideRepository{q: db}
}

// NewRideRepositoryWithTx creates a ride repository using a transaction.
func NewRideRepositoryWithTx(tx *sql.Tx) *RideRepository {
	return &RideRepository{q: tx}
}

const rideColumns = `id, customer_id, technician_id, status,
	pickup_address, pickup_lat, pickup_lng, destination_address, destination_lat, destination_lng,
	service_type, price, payment_method, payment_timing, payment_status, payment_order_id,
	arrival_otp, arrival_otp_attempts, completion_otp, completion_otp_attempts,
	cancel_reason, cancelled_by, version,
	created_at, accepted_at, arrived_at, started_at, service_ended_at, completed_at, cancelled_at, updated_at`

// Create persists a new ride.
func (r *RideRepository) Create(ctx context.Context, ride *domain.Ride) error {
	query := `
		INSERT INTO rides (` + rideColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31)
	`

	if ride.Version == 0 {
		ride.Version = 1
	}

	_, err := r.q.ExecContext(ctx, query, rideArgs(ride)...)
	return err
}

// GetByID retrieves a ride by ID.
func (r *RideRepository) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE id = $1`

	ride, err := scanRide(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return ride, nil
}

// ListByStatus retrieves rides in the given status, oldest first.
func (r *RideRepository) ListByStatus(ctx context.Context, status domain.RideStatus, limit int) ([]*domain.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE status = $1 ORDER BY created_at ASC LIMIT $2`
	return r.list(ctx, query, status, limit)
}

// ListByParty retrieves rides where userID is the customer or technician, newest first.
func (r *RideRepository) ListByParty(ctx context.Context, userID string, limit int) ([]*domain.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE customer_id = $1 OR technician_id = $1 ORDER BY created_at DESC LIMIT $2`
	return r.list(ctx, query, userID, limit)
}

func (r *RideRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Ride, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rides []*domain.Ride
	for rows.Next() {
		ride, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		rides = append(rides, ride)
	}
	return rides, rows.Err()
}

// Update writes the ride only if the stored version matches ride.Version.
func (r *RideRepository) Update(ctx context.Context, ride *domain.Ride) error {
	query := `
		UPDATE rides
		SET customer_id = $2, technician_id = $3, status = $4,
			pickup_address = $5, pickup_lat = $6, pickup_lng = $7,
			destination_address = $8, destination_lat = $9, destination_lng = $10,
			service_type = $11, price = $12, payment_method = $13, payment_timing = $14,
			payment_status = $15, payment_order_id = $16,
			arrival_otp = $17, arrival_otp_attempts = $18, completion_otp = $19, completion_otp_attempts = $20,
			cancel_reason = $21, cancelled_by = $22, version = version + 1, created_at = $24,
			accepted_at = $25, arrived_at = $26, started_at = $27, service_ended_at = $28,
			completed_at = $29, cancelled_at = $30, updated_at = $31
		WHERE id = $1 AND version = $23
	`

	ride.UpdatedAt = time.Now()
	result, err := r.q.ExecContext(ctx, query, rideArgs(ride)...)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		// Distinguish a lost race from a missing row.
		var exists bool
		if err := r.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM rides WHERE id = $1)`, ride.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return repository.ErrNotFound
		}
		return repository.ErrVersionConflict
	}

	ride.Version++
	return nil
}

// rideArgs returns the column values in rideColumns order.
func rideArgs(ride *domain.Ride) []any {
	return []any{
		ride.ID,
		ride.CustomerID,
		nullString(ride.TechnicianID),
		ride.Status,
		ride.Pickup.Address,
		ride.Pickup.Lat,
		ride.Pickup.Lng,
		ride.Destination.Address,
		ride.Destination.Lat,
		ride.Destination.Lng,
		ride.ServiceType,
		ride.Price,
		ride.PaymentMethod,
		ride.PaymentTiming,
		ride.PaymentStatus,
		nullString(ride.PaymentOrderID),
		nullString(ride.ArrivalOTP),
		ride.ArrivalOTPAttempts,
		nullString(ride.CompletionOTP),
		ride.CompletionOTPAttempts,
		nullString(ride.CancelReason),
		nullString(string(ride.CancelledBy)),
		ride.Version,
		ride.CreatedAt,
		nullTime(ride.AcceptedAt),
		nullTime(ride.ArrivedAt),
		nullTime(ride.StartedAt),
		nullTime(ride.ServiceEndedAt),
		nullTime(ride.CompletedAt),
		nullTime(ride.CancelledAt),
		nullTime(ride.UpdatedAt),
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRide(row rowScanner) (*domain.Ride, error) {
	var ride domain.Ride
	var technicianID, paymentOrderID, arrivalOTP, completionOTP, cancelReason, cancelledBy sql.NullString
	var acceptedAt, arrivedAt, startedAt, serviceEndedAt, completedAt, cancelledAt, updatedAt sql.NullTime

	err := row.Scan(
		&ride.ID,
		&ride.CustomerID,
		&technicianID,
		&ride.Status,
		&ride.Pickup.Address,
		&ride.Pickup.Lat,
		&ride.Pickup.Lng,
		&ride.Destination.Address,
		&ride.Destination.Lat,
		&ride.Destination.Lng,
		&ride.ServiceType,
		&ride.Price,
		&ride.PaymentMethod,
		&ride.PaymentTiming,
		&ride.PaymentStatus,
		&paymentOrderID,
		&arrivalOTP,
		&ride.ArrivalOTPAttempts,
		&completionOTP,
		&ride.CompletionOTPAttempts,
		&cancelReason,
		&cancelledBy,
		&ride.Version,
		&ride.CreatedAt,
		&acceptedAt,
		&arrivedAt,
		&startedAt,
		&serviceEndedAt,
		&completedAt,
		&cancelledAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	ride.TechnicianID = technicianID.String
	ride.PaymentOrderID = paymentOrderID.String
	ride.ArrivalOTP = arrivalOTP.String
	ride.CompletionOTP = completionOTP.String
	ride.CancelReason = cancelReason.String
	ride.CancelledBy = domain.CancelInitiator(cancelledBy.String)
	ride.AcceptedAt = acceptedAt.Time
	ride.ArrivedAt = arrivedAt.Time
	ride.StartedAt = startedAt.Time
	ride.ServiceEndedAt = serviceEndedAt.Time
	ride.CompletedAt = completedAt.Time
	ride.CancelledAt = cancelledAt.Time
	ride.UpdatedAt = updatedAt.Time

	return &ride, nil
}
