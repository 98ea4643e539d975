package tests

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"

	"dispatch/internal/domain"
	"dispatch/internal/redis"
	"dispatch/internal/service"
)

const (
	customerID = "cust-1"
	techID     = "tech-1"
	otherTech  = "tech-2"
)

// fixture wires the services over the in-memory mocks.
type fixture struct {
	rides      *MockRideRepository
	payments   *MockPaymentRepository
	ledgerRepo *MockLedgerRepository
	payouts    *MockPayoutProvider
	locks      *MockLockStore
	events     *RecordingPublisher
	broker     *RecordingPublisher
	gateway    *service.MockGateway
	store      *redis.MemoryLocationStore

	ledger    *service.LedgerService
	locations *service.LocationService
	rideSvc   *service.RideService
}

func newFixture(t *testing.T, otps ...string) *fixture {
	t.Helper()
	return buildFixture(t, nil, otps...)
}

// buildFixture wires the services with publisher as the room event sink,
// or the recording publisher when nil.
func buildFixture(t *testing.T, publisher service.EventPublisher, otps ...string) *fixture {
	t.Helper()

	f := &fixture{
		rides:      NewMockRideRepository(),
		payments:   NewMockPaymentRepository(),
		ledgerRepo: NewMockLedgerRepository(),
		payouts:    &MockPayoutProvider{},
		locks:      NewMockLockStore(),
		events:     &RecordingPublisher{},
		broker:     &RecordingPublisher{},
		gateway:    service.NewMockGateway("test-secret"),
		store:      redis.NewMemoryLocationStore(),
	}

	f.ledger = service.NewLedgerService(f.ledgerRepo, f.payouts, f.locks, service.LedgerConfig{
		CommissionRate:  decimal.RequireFromString("0.20"),
		DefaultCODLimit: 500,
	})
	if publisher == nil {
		publisher = f.events
	}
	f.locations = service.NewLocationService(f.store, f.rides, nil, publisher, service.LocationConfig{})
	notifications := service.NewNotificationService(publisher, nil, f.broker)
	payments := service.NewPaymentService(f.payments, f.gateway)

	f.rideSvc = service.NewRideService(f.rides, payments, f.ledger, f.locations, notifications, service.RideConfig{
		OTPMaxAttempts: 5,
	})
	if len(otps) > 0 {
		f.rideSvc.WithOTPGenerator(SequenceOTP(otps...))
	}
	return f
}

func (f *fixture) createRide(t *testing.T, method domain.PaymentMethod, timing domain.PaymentTiming) *domain.Ride {
	t.Helper()
	ride, err := f.rideSvc.Create(context.Background(), service.CreateRideRequest{
		CustomerID:    customerID,
		Pickup:        domain.Place{Address: "12 MG Road", Lat: 12.9716, Lng: 77.5946},
		Destination:   domain.Place{Address: "12 MG Road", Lat: 12.9716, Lng: 77.5946},
		ServiceType:   "plumbing",
		Price:         1000,
		PaymentMethod: method,
		PaymentTiming: timing,
	})
	if err != nil {
		t.Fatalf("create ride: %v", err)
	}
	return ride
}

// startedRide drives a new ride to IN_PROGRESS with the arrival OTP 4821.
func (f *fixture) startedRide(t *testing.T, method domain.PaymentMethod, timing domain.PaymentTiming) *domain.Ride {
	t.Helper()
	ctx := context.Background()

	ride := f.createRide(t, method, timing)
	if _, err := f.rideSvc.Accept(ctx, ride.ID, techID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := f.rideSvc.VerifyArrival(ctx, ride.ID, techID, "4821"); err != nil {
		t.Fatalf("verify arrival: %v", err)
	}
	started, err := f.rideSvc.StartService(ctx, ride.ID, techID)
	if err != nil {
		t.Fatalf("start service: %v", err)
	}
	return started
}

func (f *fixture) verifiedWallet(balance, due int64) {
	f.ledgerRepo.AddWallet(domain.WalletAccount{
		TechnicianID:     techID,
		Balance:          balance,
		CommissionDue:    due,
		CODLimit:         500,
		IdentityVerified: true,
		PayoutVerified:   true,
	})
}

func upi() domain.PayoutDestination {
	return domain.PayoutDestination{UPIID: "tech1@upi"}
}

func atomic32(p *int32) int32 {
	return atomic.LoadInt32(p)
}
