package domain

import "time"

// RideStatus represents the current status of a ride.
type RideStatus string

const (
	RideStatusRequested  RideStatus = "REQUESTED"
	RideStatusAccepted   RideStatus = "ACCEPTED"
	RideStatusArrived    RideStatus = "ARRIVED"
	RideStatusInProgress RideStatus = "IN_PROGRESS"
	RideStatusCompleted  RideStatus = "COMPLETED"
	RideStatusCancelled  RideStatus = "CANCELLED"
)

// IsTerminal reports whether no further transition is possible.
func (s RideStatus) IsTerminal() bool {
	return s == RideStatusCompleted || s == RideStatusCancelled
}

// IsTrackable reports whether a technician is assigned and moving for the ride.
func (s RideStatus) IsTrackable() bool {
	return s == RideStatusAccepted || s == RideStatusArrived || s == RideStatusInProgress
}

// PaymentMethod represents how the customer pays for a ride.
type PaymentMethod string

const (
	PaymentMethodCash   PaymentMethod = "CASH"
	PaymentMethodOnline PaymentMethod = "ONLINE"
)

// PaymentTiming represents when an online payment is collected.
type PaymentTiming string

const (
	PaymentTimingPrepaid  PaymentTiming = "PREPAID"
	PaymentTimingPostpaid PaymentTiming = "POSTPAID"
)

// PaymentStatus represents the payment state of a ride.
type PaymentStatus string

const (
	PaymentStatusUnpaid   PaymentStatus = "UNPAID"
	PaymentStatusPaid     PaymentStatus = "PAID"
	PaymentStatusVerified PaymentStatus = "VERIFIED"
)

// CancelInitiator records which party cancelled a ride.
type CancelInitiator string

const (
	CancelledByCustomer   CancelInitiator = "CUSTOMER"
	CancelledByTechnician CancelInitiator = "TECHNICIAN"
)

// Place is an address with coordinates.
type Place struct {
	Address string
	Lat     float64
	Lng     float64
}

// Ride represents one customer service job tracked end to end.
type Ride struct {
	ID           string
	CustomerID   string
	TechnicianID string
	Status       RideStatus
	Pickup       Place
	Destination  Place
	ServiceType  string
	Price        int64 // whole currency units

	PaymentMethod  PaymentMethod
	PaymentTiming  PaymentTiming
	PaymentStatus  PaymentStatus
	PaymentOrderID string

	ArrivalOTP            string
	ArrivalOTPAttempts    int
	CompletionOTP         string
	CompletionOTPAttempts int

	CancelReason string
	CancelledBy  CancelInitiator

	// Version is bumped on every write and guards read-modify-write races.
	Version int64

	CreatedAt      time.Time
	AcceptedAt     time.Time
	ArrivedAt      time.Time
	StartedAt      time.Time
	ServiceEndedAt time.Time
	CompletedAt    time.Time
	CancelledAt    time.Time
	UpdatedAt      time.Time
}

// RequiresPaymentBeforeCompletion reports whether completion must wait for a
// confirmed online payment.
func (r *Ride) RequiresPaymentBeforeCompletion() bool {
	return r.PaymentMethod == PaymentMethodOnline && r.PaymentTiming == PaymentTimingPostpaid
}

// IsPaid reports whether the gateway has confirmed the payment.
func (r *Ride) IsPaid() bool {
	return r.PaymentStatus == PaymentStatusPaid || r.PaymentStatus == PaymentStatusVerified
}

// ServiceEnded reports whether end-service has run and a completion OTP exists.
func (r *Ride) ServiceEnded() bool {
	return r.CompletionOTP != ""
}

// HasParty reports whether userID is the customer or the assigned technician.
func (r *Ride) HasParty(userID string) bool {
	return userID != "" && (r.CustomerID == userID || r.TechnicianID == userID)
}

// transitions is the directed graph of allowed status changes. Technician
// cancellation is the only edge that goes backwards.
var transitions = map[RideStatus][]RideStatus{
	RideStatusRequested:  {RideStatusAccepted, RideStatusCancelled},
	RideStatusAccepted:   {RideStatusArrived, RideStatusCancelled, RideStatusRequested},
	RideStatusArrived:    {RideStatusInProgress, RideStatusCancelled, RideStatusRequested},
	RideStatusInProgress: {RideStatusCompleted, RideStatusCancelled, RideStatusRequested},
}

// CanTransition reports whether from -> to is an edge of the ride state machine.
func CanTransition(from, to RideStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CompletionOTPReleased reports whether the customer may see the completion
// OTP. Postpaid online rides withhold it until payment is confirmed.
func (r *Ride) CompletionOTPReleased() bool {
	return r.ServiceEnded() && (!r.RequiresPaymentBeforeCompletion() || r.IsPaid())
}
