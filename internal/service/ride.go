package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"dispatch/internal/domain"
	"dispatch/internal/repository"
)

// LedgerServiceInterface is the part of the ledger the ride lifecycle needs.
type LedgerServiceInterface interface {
	CreditEarnings(ctx context.Context, technicianID, rideID string, gross int64) (bool, error)
	IsCashEligible(ctx context.Context, technicianID string) (bool, error)
}

// LocationEvictorInterface drops tracking state when a ride stops being trackable.
type LocationEvictorInterface interface {
	Evict(ctx context.Context, rideID string) error
	InvalidateMembership(ctx context.Context, rideID string)
}

// Ensure services implement the interfaces.
var (
	_ LedgerServiceInterface   = (*LedgerService)(nil)
	_ LocationEvictorInterface = (*LocationService)(nil)
)

const (
	arrivalOTPDigits    = 4
	completionOTPDigits = 5

	// maxWriteAttempts bounds the reload-and-retry loop on version conflicts.
	maxWriteAttempts = 3

	pendingListLimit = 50
	historyLimit     = 100
)

// RideConfig holds ride lifecycle knobs.
type RideConfig struct {
	// OTPMaxAttempts is the number of wrong entries after which an OTP is
	// regenerated and re-sent.
	OTPMaxAttempts int
}

// RideService runs the ride state machine.
type RideService struct {
	rideRepo      repository.RideRepository
	payments      *PaymentService
	ledger        LedgerServiceInterface
	locations     LocationEvictorInterface
	notifications *NotificationService
	cfg           RideConfig
	otp           func(digits int) (string, error)
	now           func() time.Time
}

// NewRideService creates a new RideService.
func NewRideService(
	rideRepo repository.RideRepository,
	payments *PaymentService,
	ledger LedgerServiceInterface,
	locations LocationEvictorInterface,
	notifications *NotificationService,
	cfg RideConfig,
) *RideService {
	if cfg.OTPMaxAttempts <= 0 {
		cfg.OTPMaxAttempts = 5
	}
	return &RideService{
		rideRepo:      rideRepo,
		payments:      payments,
		ledger:        ledger,
		locations:     locations,
		notifications: notifications,
		cfg:           cfg,
		otp:           randomDigits,
		now:           time.Now,
	}
}

// WithOTPGenerator replaces the random OTP source.
func (s *RideService) WithOTPGenerator(gen func(digits int) (string, error)) *RideService {
	s.otp = gen
	return s
}

// CreateRideRequest contains the parameters for creating a ride.
type CreateRideRequest struct {
	CustomerID    string
	Pickup        domain.Place
	Destination   domain.Place
	ServiceType   string
	Price         int64
	PaymentMethod domain.PaymentMethod // Optional: defaults to CASH
	PaymentTiming domain.PaymentTiming // Optional: defaults to POSTPAID
}

// Create opens a new ride in REQUESTED.
func (s *RideService) Create(ctx context.Context, req CreateRideRequest) (*domain.Ride, error) {
	if err := s.validateCreateRequest(&req); err != nil {
		return nil, err
	}

	now := s.now()
	ride := &domain.Ride{
		ID:            uuid.New().String(),
		CustomerID:    req.CustomerID,
		Status:        domain.RideStatusRequested,
		Pickup:        req.Pickup,
		Destination:   req.Destination,
		ServiceType:   req.ServiceType,
		Price:         req.Price,
		PaymentMethod: req.PaymentMethod,
		PaymentTiming: req.PaymentTiming,
		PaymentStatus: domain.PaymentStatusUnpaid,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.rideRepo.Create(ctx, ride); err != nil {
		return nil, err
	}

	log.Printf("[RIDE] Ride %s created by %s (%s, %s/%s, price=%d)",
		ride.ID, ride.CustomerID, ride.ServiceType, ride.PaymentMethod, ride.PaymentTiming, ride.Price)
	return ride, nil
}

func (s *RideService) validateCreateRequest(req *CreateRideRequest) error {
	if req.CustomerID == "" {
		return ErrInvalidCustomerID
	}
	if !domain.ValidCoordinates(req.Pickup.Lat, req.Pickup.Lng) {
		return ErrInvalidPickupLocation
	}
	if !domain.ValidCoordinates(req.Destination.Lat, req.Destination.Lng) {
		return ErrInvalidDestinationLocation
	}
	if strings.TrimSpace(req.ServiceType) == "" {
		return ErrInvalidServiceType
	}
	if req.Price <= 0 {
		return ErrInvalidPrice
	}

	switch req.PaymentMethod {
	case "":
		req.PaymentMethod = domain.PaymentMethodCash
	case domain.PaymentMethodCash, domain.PaymentMethodOnline:
	default:
		return ErrInvalidPaymentMethod
	}

	switch req.PaymentTiming {
	case "":
		req.PaymentTiming = domain.PaymentTimingPostpaid
	case domain.PaymentTimingPrepaid, domain.PaymentTimingPostpaid:
	default:
		return ErrInvalidPaymentTiming
	}
	if req.PaymentMethod == domain.PaymentMethodCash {
		req.PaymentTiming = domain.PaymentTimingPostpaid
	}

	return nil
}

// Accept assigns the ride to the technician. When several technicians race,
// exactly one wins and the others get ErrRideAlreadyTaken.
func (s *RideService) Accept(ctx context.Context, rideID, technicianID string) (*domain.Ride, error) {
	if rideID == "" {
		return nil, ErrInvalidRideID
	}
	if technicianID == "" {
		return nil, ErrInvalidTechnicianID
	}

	current, err := s.load(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if current.Status == domain.RideStatusRequested && current.PaymentMethod == domain.PaymentMethodCash {
		eligible, err := s.ledger.IsCashEligible(ctx, technicianID)
		if err != nil {
			return nil, fmt.Errorf("check cash eligibility: %w", err)
		}
		if !eligible {
			return nil, ErrCashJobsBlocked
		}
	}

	otp, err := s.otp(arrivalOTPDigits)
	if err != nil {
		return nil, fmt.Errorf("generate arrival otp: %w", err)
	}

	accepted := false
	ride, err := s.mutate(ctx, rideID, func(r *domain.Ride) (bool, error) {
		accepted = false
		if r.Status != domain.RideStatusRequested {
			if r.Status == domain.RideStatusAccepted && r.TechnicianID == technicianID {
				return false, nil
			}
			if r.Status.IsTrackable() {
				return false, ErrRideAlreadyTaken
			}
			return false, ErrInvalidTransition
		}

		r.Status = domain.RideStatusAccepted
		r.TechnicianID = technicianID
		r.ArrivalOTP = otp
		r.ArrivalOTPAttempts = 0
		r.AcceptedAt = s.now()
		r.CancelReason = ""
		r.CancelledBy = ""
		accepted = true
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	if accepted {
		s.locations.InvalidateMembership(ctx, rideID)
		s.notifications.RideAccepted(ctx, ride)
		log.Printf("[RIDE] Ride %s accepted by %s", rideID, technicianID)
	}

	return s.view(ride, technicianPrincipal(technicianID)), nil
}

// VerifyArrival checks the customer's arrival OTP and moves the ride to ARRIVED.
func (s *RideService) VerifyArrival(ctx context.Context, rideID, technicianID, otp string) (*domain.Ride, error) {
	if rideID == "" {
		return nil, ErrInvalidRideID
	}
	if !isDigits(otp, arrivalOTPDigits) {
		return nil, ErrInvalidOTP
	}

	var outcome error
	reissued := false
	ride, err := s.mutate(ctx, rideID, func(r *domain.Ride) (bool, error) {
		outcome, reissued = nil, false
		if r.TechnicianID != technicianID {
			return false, ErrNotAssignedTechnician
		}
		if r.Status != domain.RideStatusAccepted {
			return false, ErrInvalidTransition
		}

		check, err := s.checkOTP(&r.ArrivalOTP, &r.ArrivalOTPAttempts, otp, arrivalOTPDigits)
		if err != nil {
			return false, err
		}
		switch check {
		case otpWrong:
			outcome = ErrOTPMismatch
			return true, nil
		case otpReissued:
			outcome, reissued = ErrOTPReissued, true
			return true, nil
		}

		r.Status = domain.RideStatusArrived
		r.ArrivedAt = s.now()
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	if reissued {
		log.Printf("[RIDE] Arrival OTP for ride %s reissued after %d wrong attempts", rideID, s.cfg.OTPMaxAttempts)
		s.notifications.OTPReissued(ctx, ride, domain.EventArrivalOTP)
	}
	if outcome != nil {
		return nil, outcome
	}

	s.locations.InvalidateMembership(ctx, rideID)
	s.notifications.TechnicianArrived(ctx, ride)
	log.Printf("[RIDE] Technician %s arrived for ride %s", technicianID, rideID)

	return s.view(ride, technicianPrincipal(technicianID)), nil
}

// StartService moves an ARRIVED ride to IN_PROGRESS.
func (s *RideService) StartService(ctx context.Context, rideID, technicianID string) (*domain.Ride, error) {
	if rideID == "" {
		return nil, ErrInvalidRideID
	}

	ride, err := s.mutate(ctx, rideID, func(r *domain.Ride) (bool, error) {
		if r.TechnicianID != technicianID {
			return false, ErrNotAssignedTechnician
		}
		if r.Status != domain.RideStatusArrived {
			return false, ErrInvalidTransition
		}
		r.Status = domain.RideStatusInProgress
		r.StartedAt = s.now()
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	s.locations.InvalidateMembership(ctx, rideID)
	s.notifications.ServiceStarted(ctx, ride)
	log.Printf("[RIDE] Service started for ride %s", rideID)

	return s.view(ride, technicianPrincipal(technicianID)), nil
}

// EndService marks the work done and generates the completion OTP. Postpaid
// online rides get a gateway order and the OTP is withheld until payment.
func (s *RideService) EndService(ctx context.Context, rideID, technicianID string) (*domain.Ride, error) {
	if rideID == "" {
		return nil, ErrInvalidRideID
	}

	check := func(r *domain.Ride) error {
		if r.TechnicianID != technicianID {
			return ErrNotAssignedTechnician
		}
		if r.Status != domain.RideStatusInProgress {
			return ErrInvalidTransition
		}
		if r.ServiceEnded() {
			return ErrServiceAlreadyEnded
		}
		return nil
	}

	current, err := s.load(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if err := check(current); err != nil {
		return nil, err
	}

	var order *domain.PaymentOrder
	if current.RequiresPaymentBeforeCompletion() && !current.IsPaid() {
		order, err = s.payments.EnsureOrder(ctx, current)
		if err != nil {
			return nil, err
		}
	}

	otp, err := s.otp(completionOTPDigits)
	if err != nil {
		return nil, fmt.Errorf("generate completion otp: %w", err)
	}

	ride, err := s.mutate(ctx, rideID, func(r *domain.Ride) (bool, error) {
		if err := check(r); err != nil {
			return false, err
		}
		r.CompletionOTP = otp
		r.CompletionOTPAttempts = 0
		r.ServiceEndedAt = s.now()
		if order != nil {
			r.PaymentOrderID = order.ID
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	s.notifications.ServiceEnded(ctx, ride, order)
	log.Printf("[RIDE] Service ended for ride %s (payment due: %t)", rideID, !ride.CompletionOTPReleased())

	return s.view(ride, technicianPrincipal(technicianID)), nil
}

// PaymentOrder returns the gateway order the customer pays an online ride with.
func (s *RideService) PaymentOrder(ctx context.Context, rideID, customerID string) (*domain.PaymentOrder, error) {
	ride, err := s.load(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.CustomerID != customerID {
		return nil, ErrNotRideCustomer
	}
	if ride.Status == domain.RideStatusCancelled {
		return nil, ErrInvalidTransition
	}
	return s.payments.EnsureOrder(ctx, ride)
}

// ConfirmPayment verifies the gateway proof and marks the ride paid. A
// withheld completion OTP is released to the customer.
func (s *RideService) ConfirmPayment(ctx context.Context, rideID, customerID string, proof domain.PaymentProof) (*domain.Ride, error) {
	current, err := s.load(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if current.CustomerID != customerID {
		return nil, ErrNotRideCustomer
	}
	if current.PaymentMethod != domain.PaymentMethodOnline {
		return nil, ErrPaymentNotApplicable
	}
	if current.Status == domain.RideStatusCancelled {
		return nil, ErrInvalidTransition
	}
	if current.IsPaid() {
		return s.view(current, customerPrincipal(customerID)), nil
	}

	order, err := s.payments.Confirm(ctx, rideID, proof)
	if err != nil {
		return nil, err
	}

	marked := false
	ride, err := s.mutate(ctx, rideID, func(r *domain.Ride) (bool, error) {
		marked = false
		if r.IsPaid() {
			return false, nil
		}
		r.PaymentStatus = domain.PaymentStatusPaid
		r.PaymentOrderID = order.ID
		marked = true
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	if marked {
		s.notifications.PaymentConfirmed(ctx, ride)
		log.Printf("[RIDE] Payment confirmed for ride %s (order %s)", rideID, order.ID)
	}

	return s.view(ride, customerPrincipal(customerID)), nil
}

// Complete checks the completion OTP, closes the ride and credits the
// technician. Repeating a successful completion re-drives the credit, which
// is idempotent, so a failed credit can be retried by the client.
func (s *RideService) Complete(ctx context.Context, rideID, technicianID, otp string) (*domain.Ride, error) {
	if rideID == "" {
		return nil, ErrInvalidRideID
	}
	if !isDigits(otp, completionOTPDigits) {
		return nil, ErrInvalidOTP
	}

	var outcome error
	reissued, completedNow := false, false
	ride, err := s.mutate(ctx, rideID, func(r *domain.Ride) (bool, error) {
		outcome, reissued, completedNow = nil, false, false
		if r.TechnicianID != technicianID {
			return false, ErrNotAssignedTechnician
		}
		if r.Status == domain.RideStatusCompleted {
			if otpEqual(r.CompletionOTP, otp) {
				return false, nil
			}
			return false, ErrOTPMismatch
		}
		if r.Status != domain.RideStatusInProgress {
			return false, ErrInvalidTransition
		}
		if !r.ServiceEnded() {
			return false, ErrServiceNotEnded
		}
		if r.RequiresPaymentBeforeCompletion() && !r.IsPaid() {
			return false, ErrPaymentPending
		}

		check, err := s.checkOTP(&r.CompletionOTP, &r.CompletionOTPAttempts, otp, completionOTPDigits)
		if err != nil {
			return false, err
		}
		switch check {
		case otpWrong:
			outcome = ErrOTPMismatch
			return true, nil
		case otpReissued:
			outcome, reissued = ErrOTPReissued, true
			return true, nil
		}

		r.Status = domain.RideStatusCompleted
		r.CompletedAt = s.now()
		if r.PaymentMethod == domain.PaymentMethodOnline {
			r.PaymentStatus = domain.PaymentStatusVerified
		} else {
			r.PaymentStatus = domain.PaymentStatusPaid
		}
		completedNow = true
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	if reissued {
		log.Printf("[RIDE] Completion OTP for ride %s reissued after %d wrong attempts", rideID, s.cfg.OTPMaxAttempts)
		s.notifications.OTPReissued(ctx, ride, domain.EventCompletionOTP)
	}
	if outcome != nil {
		return nil, outcome
	}

	if completedNow {
		if err := s.locations.Evict(ctx, rideID); err != nil {
			log.Printf("[RIDE] Failed to evict location for ride %s: %v", rideID, err)
		}
		s.notifications.RideCompleted(ctx, ride)
		log.Printf("[RIDE] Ride %s completed by %s", rideID, technicianID)
	}

	if _, err := s.ledger.CreditEarnings(ctx, ride.TechnicianID, ride.ID, ride.Price); err != nil {
		log.Printf("[RIDE] Ride %s completed but earnings credit failed: %v", rideID, err)
		return nil, fmt.Errorf("ride %s completed, earnings credit pending: %w", rideID, err)
	}

	return s.view(ride, technicianPrincipal(technicianID)), nil
}

// Cancel cancels the ride on the customer's behalf.
func (s *RideService) Cancel(ctx context.Context, rideID, customerID, reason string) (*domain.Ride, error) {
	if rideID == "" {
		return nil, ErrInvalidRideID
	}

	var technicianID string
	ride, err := s.mutate(ctx, rideID, func(r *domain.Ride) (bool, error) {
		if r.CustomerID != customerID {
			return false, ErrNotRideCustomer
		}
		if !domain.CanTransition(r.Status, domain.RideStatusCancelled) {
			return false, ErrInvalidTransition
		}
		technicianID = r.TechnicianID
		r.Status = domain.RideStatusCancelled
		r.CancelReason = reason
		r.CancelledBy = domain.CancelledByCustomer
		r.CancelledAt = s.now()
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.locations.Evict(ctx, rideID); err != nil {
		log.Printf("[RIDE] Failed to evict location for ride %s: %v", rideID, err)
	}
	s.notifications.RideCancelled(ctx, ride, technicianID)
	log.Printf("[RIDE] Ride %s cancelled by customer %s", rideID, customerID)

	return s.view(ride, customerPrincipal(customerID)), nil
}

// CancelByTechnician drops the technician from the ride and offers it again.
func (s *RideService) CancelByTechnician(ctx context.Context, rideID, technicianID, reason string) (*domain.Ride, error) {
	if rideID == "" {
		return nil, ErrInvalidRideID
	}

	ride, err := s.mutate(ctx, rideID, func(r *domain.Ride) (bool, error) {
		if r.TechnicianID != technicianID {
			return false, ErrNotAssignedTechnician
		}
		if !r.Status.IsTrackable() || !domain.CanTransition(r.Status, domain.RideStatusRequested) {
			return false, ErrInvalidTransition
		}

		r.Status = domain.RideStatusRequested
		r.TechnicianID = ""
		r.ArrivalOTP = ""
		r.ArrivalOTPAttempts = 0
		r.CompletionOTP = ""
		r.CompletionOTPAttempts = 0
		r.AcceptedAt = time.Time{}
		r.ArrivedAt = time.Time{}
		r.StartedAt = time.Time{}
		r.ServiceEndedAt = time.Time{}
		r.CancelReason = reason
		r.CancelledBy = domain.CancelledByTechnician
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.locations.Evict(ctx, rideID); err != nil {
		log.Printf("[RIDE] Failed to evict location for ride %s: %v", rideID, err)
	}
	s.notifications.RideRequeued(ctx, ride, technicianID)
	log.Printf("[RIDE] Ride %s released by technician %s and requeued", rideID, technicianID)

	return s.view(ride, technicianPrincipal(technicianID)), nil
}

// Get returns the ride as the viewer is allowed to see it.
func (s *RideService) Get(ctx context.Context, rideID string, viewer domain.Principal) (*domain.Ride, error) {
	if rideID == "" {
		return nil, ErrInvalidRideID
	}

	ride, err := s.load(ctx, rideID)
	if err != nil {
		return nil, err
	}

	switch {
	case viewer.IsAdmin(), ride.HasParty(viewer.UserID):
	case viewer.Role == domain.RoleTechnician && ride.Status == domain.RideStatusRequested:
		// Open offers are visible to every technician.
	default:
		return nil, ErrNotRideParty
	}

	return s.view(ride, viewer), nil
}

// ListPending returns open offers for the technician. Cash jobs are hidden
// while the technician's commission dues exceed their COD limit.
func (s *RideService) ListPending(ctx context.Context, technicianID string) ([]*domain.Ride, error) {
	if technicianID == "" {
		return nil, ErrInvalidTechnicianID
	}

	rides, err := s.rideRepo.ListByStatus(ctx, domain.RideStatusRequested, pendingListLimit)
	if err != nil {
		return nil, err
	}

	eligible, err := s.ledger.IsCashEligible(ctx, technicianID)
	if err != nil {
		return nil, fmt.Errorf("check cash eligibility: %w", err)
	}

	viewer := technicianPrincipal(technicianID)
	out := make([]*domain.Ride, 0, len(rides))
	for _, ride := range rides {
		if !eligible && ride.PaymentMethod == domain.PaymentMethodCash {
			continue
		}
		out = append(out, s.view(ride, viewer))
	}
	return out, nil
}

// History returns the rides the user took part in, newest first.
func (s *RideService) History(ctx context.Context, viewer domain.Principal) ([]*domain.Ride, error) {
	if viewer.UserID == "" {
		return nil, ErrInvalidCustomerID
	}

	rides, err := s.rideRepo.ListByParty(ctx, viewer.UserID, historyLimit)
	if err != nil {
		return nil, err
	}

	out := make([]*domain.Ride, 0, len(rides))
	for _, ride := range rides {
		out = append(out, s.view(ride, viewer))
	}
	return out, nil
}

// view returns a copy of the ride with the OTPs the viewer may not see removed.
// Only the customer ever sees OTP values, and only while they are usable.
func (s *RideService) view(ride *domain.Ride, viewer domain.Principal) *domain.Ride {
	out := *ride
	isCustomer := viewer.Role == domain.RoleCustomer && viewer.UserID == ride.CustomerID

	if !isCustomer || ride.Status != domain.RideStatusAccepted {
		out.ArrivalOTP = ""
	}
	if !isCustomer || ride.Status != domain.RideStatusInProgress || !ride.CompletionOTPReleased() {
		out.CompletionOTP = ""
	}
	return &out
}

func (s *RideService) load(ctx context.Context, rideID string) (*domain.Ride, error) {
	ride, err := s.rideRepo.GetByID(ctx, rideID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRideNotFound
		}
		return nil, err
	}
	return ride, nil
}

// mutate runs a read-modify-write of the ride under the version guard,
// reloading and reapplying fn when another writer got in between. fn
// returns false to skip the write.
func (s *RideService) mutate(ctx context.Context, rideID string, fn func(r *domain.Ride) (bool, error)) (*domain.Ride, error) {
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		ride, err := s.load(ctx, rideID)
		if err != nil {
			return nil, err
		}

		changed, err := fn(ride)
		if err != nil {
			return nil, err
		}
		if !changed {
			return ride, nil
		}

		err = s.rideRepo.Update(ctx, ride)
		if err == nil {
			return ride, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrRideNotFound
			}
			return nil, err
		}
	}
	return nil, ErrConcurrentUpdate
}

type otpCheck int

const (
	otpMatched otpCheck = iota
	otpWrong
	otpReissued
)

// checkOTP compares entered against *expected and counts wrong attempts.
// At the limit the OTP is regenerated and the counter reset.
func (s *RideService) checkOTP(expected *string, attempts *int, entered string, digits int) (otpCheck, error) {
	if otpEqual(*expected, entered) {
		*attempts = 0
		return otpMatched, nil
	}

	*attempts++
	if *attempts < s.cfg.OTPMaxAttempts {
		return otpWrong, nil
	}

	fresh, err := s.otp(digits)
	if err != nil {
		return otpWrong, fmt.Errorf("regenerate otp: %w", err)
	}
	*expected = fresh
	*attempts = 0
	return otpReissued, nil
}

func otpEqual(expected, entered string) bool {
	return expected != "" && subtle.ConstantTimeCompare([]byte(expected), []byte(entered)) == 1
}

func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// randomDigits returns n uniformly random decimal digits.
func randomDigits(n int) (string, error) {
	var b strings.Builder
	b.Grow(n)
	ten := big.NewInt(10)
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + d.Int64()))
	}
	return b.String(), nil
}

func technicianPrincipal(id string) domain.Principal {
	return domain.Principal{UserID: id, Role: domain.RoleTechnician}
}

func customerPrincipal(id string) domain.Principal {
	return domain.Principal{UserID: id, Role: domain.RoleCustomer}
}
