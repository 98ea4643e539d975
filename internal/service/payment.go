package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dispatch/internal/domain"
	"dispatch/internal/repository"
)

// PaymentService handles gateway orders for online rides.
type PaymentService struct {
	paymentRepo repository.PaymentRepository
	gateway     PaymentGateway
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(paymentRepo repository.PaymentRepository, gateway PaymentGateway) *PaymentService {
	return &PaymentService{
		paymentRepo: paymentRepo,
		gateway:     gateway,
	}
}

func orderIdempotencyKey(rideID string) string {
	return fmt.Sprintf("ride-payment:%s", rideID)
}

// EnsureOrder returns the ride's payment order, creating it at the gateway
// on first use.
func (s *PaymentService) EnsureOrder(ctx context.Context, ride *domain.Ride) (*domain.PaymentOrder, error) {
	if ride.PaymentMethod != domain.PaymentMethodOnline {
		return nil, ErrPaymentNotApplicable
	}

	key := orderIdempotencyKey(ride.ID)

	existing, err := s.paymentRepo.GetByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	gatewayOrderID, err := s.gateway.CreateOrder(ctx, ride.Price, ride.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	order := &domain.PaymentOrder{
		ID:             uuid.New().String(),
		RideID:         ride.ID,
		Amount:         ride.Price,
		Status:         domain.PaymentOrderCreated,
		GatewayOrderID: gatewayOrderID,
		IdempotencyKey: key,
		CreatedAt:      time.Now(),
	}

	if err := s.paymentRepo.Create(ctx, order); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			// Lost a race with a concurrent caller; use their order.
			return s.paymentRepo.GetByIdempotencyKey(ctx, key)
		}
		return nil, err
	}

	return order, nil
}

// Confirm verifies proof against the ride's order and marks the order paid.
// Confirming an already paid order is a no-op.
func (s *PaymentService) Confirm(ctx context.Context, rideID string, proof domain.PaymentProof) (*domain.PaymentOrder, error) {
	order, err := s.paymentRepo.GetByIdempotencyKey(ctx, orderIdempotencyKey(rideID))
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrPaymentOrderNotFound
	}

	if proof.GatewayOrderID != order.GatewayOrderID {
		return nil, ErrPaymentOrderMismatch
	}

	if order.Status == domain.PaymentOrderPaid {
		return order, nil
	}

	ok, err := s.gateway.Verify(ctx, proof)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	if !ok {
		return nil, ErrPaymentVerificationFailed
	}

	if err := s.paymentRepo.UpdateStatus(ctx, order.ID, domain.PaymentOrderPaid); err != nil {
		return nil, err
	}
	order.Status = domain.PaymentOrderPaid

	return order, nil
}
