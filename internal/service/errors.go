package service

import (
	"errors"
	"fmt"
)

// Error categories. Every specific error below unwraps to exactly one of
// these, which is what the HTTP layer maps to a status code.
var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrValidation        = errors.New("validation error")
	ErrPaymentRequired   = errors.New("payment required")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrExternalService   = errors.New("external service error")
	ErrStaleData         = errors.New("stale data")
	ErrForbidden         = errors.New("forbidden")
	ErrUnauthorized      = errors.New("unauthorized")
)

// Error is a service error with a stable machine-readable code.
type Error struct {
	code     string
	message  string
	category error
}

func (e *Error) Error() string { return e.message }

func (e *Error) Unwrap() error { return e.category }

// Code returns the stable error code.
func (e *Error) Code() string { return e.code }

func newError(category error, code, message string) *Error {
	return &Error{code: code, message: message, category: category}
}

// CommissionDueError blocks payouts while commission is owed.
type CommissionDueError struct {
	Outstanding int64
}

func (e *CommissionDueError) Error() string {
	return fmt.Sprintf("outstanding commission of %d must be paid first", e.Outstanding)
}

func (e *CommissionDueError) Unwrap() error { return ErrInsufficientFunds }

// Code returns the stable error code.
func (e *CommissionDueError) Code() string { return "COMMISSION_DUE" }

// Ride lifecycle.
var (
	ErrInvalidRideID              = newError(ErrValidation, "INVALID_RIDE_ID", "invalid ride id")
	ErrInvalidCustomerID          = newError(ErrValidation, "INVALID_CUSTOMER_ID", "invalid customer id")
	ErrInvalidTechnicianID        = newError(ErrValidation, "INVALID_TECHNICIAN_ID", "invalid technician id")
	ErrInvalidPickupLocation      = newError(ErrValidation, "INVALID_PICKUP", "invalid pickup location")
	ErrInvalidDestinationLocation = newError(ErrValidation, "INVALID_DESTINATION", "invalid destination location")
	ErrInvalidServiceType         = newError(ErrValidation, "INVALID_SERVICE_TYPE", "service type is required")
	ErrInvalidPrice               = newError(ErrValidation, "INVALID_PRICE", "price must be positive")
	ErrInvalidPaymentMethod       = newError(ErrValidation, "INVALID_PAYMENT_METHOD", "invalid payment method")
	ErrInvalidPaymentTiming       = newError(ErrValidation, "INVALID_PAYMENT_TIMING", "invalid payment timing")
	ErrInvalidOTP                 = newError(ErrValidation, "INVALID_OTP", "otp has the wrong format")
	ErrOTPMismatch                = newError(ErrValidation, "OTP_MISMATCH", "otp does not match")
	ErrOTPReissued                = newError(ErrValidation, "OTP_REISSUED", "too many wrong attempts, a new otp was sent to the customer")

	ErrRideNotFound          = newError(ErrNotFound, "RIDE_NOT_FOUND", "ride not found")
	ErrRideAlreadyTaken      = newError(ErrConflict, "RIDE_ALREADY_TAKEN", "ride was accepted by another technician")
	ErrInvalidTransition     = newError(ErrConflict, "INVALID_TRANSITION", "ride cannot make this transition from its current status")
	ErrServiceNotEnded       = newError(ErrConflict, "SERVICE_NOT_ENDED", "service has not been ended yet")
	ErrServiceAlreadyEnded   = newError(ErrConflict, "SERVICE_ALREADY_ENDED", "service was already ended")
	ErrConcurrentUpdate      = newError(ErrConflict, "CONCURRENT_UPDATE", "ride was modified concurrently, retry")
	ErrPaymentPending        = newError(ErrPaymentRequired, "PAYMENT_REQUIRED", "payment must be confirmed before completion")
	ErrNotAssignedTechnician = newError(ErrForbidden, "NOT_ASSIGNED_TECHNICIAN", "technician is not assigned to this ride")
	ErrNotRideCustomer       = newError(ErrForbidden, "NOT_RIDE_CUSTOMER", "caller is not the customer of this ride")
	ErrNotRideParty          = newError(ErrForbidden, "NOT_RIDE_PARTY", "caller is not a party of this ride")
	ErrCashJobsBlocked       = newError(ErrForbidden, "COD_LIMIT_REACHED", "outstanding commission blocks cash jobs")
)

// Payments.
var (
	ErrPaymentNotApplicable      = newError(ErrValidation, "PAYMENT_NOT_APPLICABLE", "ride is not paid online")
	ErrPaymentOrderMismatch      = newError(ErrValidation, "PAYMENT_ORDER_MISMATCH", "proof does not belong to this ride's order")
	ErrPaymentVerificationFailed = newError(ErrValidation, "PAYMENT_VERIFICATION_FAILED", "payment proof could not be verified")
	ErrPaymentOrderNotFound      = newError(ErrNotFound, "PAYMENT_ORDER_NOT_FOUND", "no payment order for this ride")
	ErrGatewayUnavailable        = newError(ErrExternalService, "PAYMENT_GATEWAY_ERROR", "payment gateway request failed")
)

// Location.
var (
	ErrInvalidLocation  = newError(ErrValidation, "INVALID_LOCATION", "invalid location")
	ErrStaleLocation    = newError(ErrStaleData, "STALE_DATA", "location sample is stale")
	ErrLocationNotFound = newError(ErrNotFound, "LOCATION_NOT_FOUND", "no location for this ride")
	ErrNotTracking      = newError(ErrForbidden, "NOT_TRACKING", "caller may not publish location for this ride")
)

// Ledger.
var (
	ErrInvalidAmount            = newError(ErrValidation, "INVALID_AMOUNT", "amount must be positive")
	ErrInvalidPayoutDestination = newError(ErrValidation, "INVALID_PAYOUT_DESTINATION", "payout destination is incomplete")
	ErrInvalidCODLimit          = newError(ErrValidation, "INVALID_COD_LIMIT", "cod limit must not be negative")
	ErrInsufficientBalance      = newError(ErrInsufficientFunds, "INSUFFICIENT_BALANCE", "amount exceeds available balance")
	ErrCommissionOverpay        = newError(ErrValidation, "COMMISSION_OVERPAY", "amount exceeds outstanding commission")
	ErrVerificationRequired     = newError(ErrForbidden, "VERIFICATION_REQUIRED", "identity and payout details must be verified")
	ErrWithdrawalNotFound       = newError(ErrNotFound, "WITHDRAWAL_NOT_FOUND", "withdrawal not found")
	ErrWithdrawalNotPending     = newError(ErrConflict, "WITHDRAWAL_NOT_PENDING", "withdrawal is not pending")
	ErrWithdrawalResolved       = newError(ErrConflict, "WITHDRAWAL_ALREADY_RESOLVED", "withdrawal was already resolved")
	ErrPayoutInProgress         = newError(ErrConflict, "PAYOUT_IN_PROGRESS", "payout for this withdrawal is already being processed")
	ErrPayoutFailed             = newError(ErrExternalService, "PAYOUT_FAILED", "payout provider request failed")
	ErrUnknownPayoutStatus      = newError(ErrValidation, "UNKNOWN_PAYOUT_STATUS", "unknown payout status")
)
