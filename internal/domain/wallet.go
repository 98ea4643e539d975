package domain

import "time"

// WalletAccount is a technician's ledger position. All amounts are whole
// currency units.
type WalletAccount struct {
	TechnicianID     string
	Balance          int64
	LockedAmount     int64
	CommissionDue    int64
	CODLimit         int64
	IdentityVerified bool
	PayoutVerified   bool
	UpdatedAt        time.Time
}

// CashEligible reports whether the technician may be offered cash jobs.
func (w *WalletAccount) CashEligible() bool {
	return w.CommissionDue < w.CODLimit
}

// TransactionType classifies a ledger record.
type TransactionType string

const (
	TransactionTypeCredit     TransactionType = "credit"
	TransactionTypeDebit      TransactionType = "debit"
	TransactionTypeSettlement TransactionType = "settlement"
)

// TransactionStatus is the state of a ledger record at the time it was written.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// Transaction is an append-only audit record of a balance-affecting event.
type Transaction struct {
	ID           string
	TechnicianID string
	Type         TransactionType
	Amount       int64
	Description  string
	RideID       string
	WithdrawalID string
	Status       TransactionStatus
	Metadata     map[string]string
	BalanceAfter int64
	CreatedAt    time.Time
}

// PayoutMethod is the destination type of a withdrawal.
type PayoutMethod string

const (
	PayoutMethodBank PayoutMethod = "BANK"
	PayoutMethodUPI  PayoutMethod = "UPI"
)

// PayoutDestination holds the bank or UPI details of a withdrawal.
type PayoutDestination struct {
	AccountHolder string `json:"account_holder,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`
	IFSC          string `json:"ifsc,omitempty"`
	UPIID         string `json:"upi_id,omitempty"`
}

// WithdrawalStatus is the lifecycle state of a withdrawal request.
type WithdrawalStatus string

const (
	WithdrawalStatusPending   WithdrawalStatus = "pending"
	WithdrawalStatusApproved  WithdrawalStatus = "approved"
	WithdrawalStatusRejected  WithdrawalStatus = "rejected"
	WithdrawalStatusCompleted WithdrawalStatus = "completed"
)

// IsResolved reports whether the locked funds have been released.
func (s WithdrawalStatus) IsResolved() bool {
	return s == WithdrawalStatusRejected || s == WithdrawalStatusCompleted
}

// WithdrawalRequest reserves funds for a payout until it is resolved.
type WithdrawalRequest struct {
	ID            string
	TechnicianID  string
	Amount        int64
	PayoutMethod  PayoutMethod
	Destination   PayoutDestination
	Status        WithdrawalStatus
	TransactionID string // payout provider reference
	AdminNote     string
	ProcessedAt   time.Time
	CreatedAt     time.Time
}

// WithdrawalOutcome is how a withdrawal is resolved.
type WithdrawalOutcome string

const (
	WithdrawalOutcomePaid     WithdrawalOutcome = "paid"
	WithdrawalOutcomeRejected WithdrawalOutcome = "rejected"
)
