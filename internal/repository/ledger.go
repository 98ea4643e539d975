package repository

import (
	"context"

	"dispatch/internal/domain"
)

// LedgerRepository defines the persistence operations for wallets, the
// transaction log and withdrawals.
type LedgerRepository interface {
	// RunInTx executes fn inside one database transaction. fn's error rolls
	// the transaction back.
	RunInTx(ctx context.Context, fn func(tx LedgerTx) error) error

	// GetWallet retrieves a wallet without locking it.
	GetWallet(ctx context.Context, technicianID string) (*domain.WalletAccount, error)

	// ListTransactions retrieves a technician's ledger records, newest first.
	ListTransactions(ctx context.Context, technicianID string, limit int) ([]*domain.Transaction, error)

	// GetWithdrawal retrieves a withdrawal by ID.
	GetWithdrawal(ctx context.Context, id string) (*domain.WithdrawalRequest, error)

	// GetWithdrawalByTransactionID retrieves a withdrawal by its payout reference.
	GetWithdrawalByTransactionID(ctx context.Context, transactionID string) (*domain.WithdrawalRequest, error)

	// ListWithdrawals retrieves withdrawals, optionally filtered by status.
	ListWithdrawals(ctx context.Context, status domain.WithdrawalStatus, limit int) ([]*domain.WithdrawalRequest, error)
}

// LedgerTx is the set of operations available inside a ledger transaction.
// Reads named ForUpdate lock the row until the transaction ends.
type LedgerTx interface {
	// GetWalletForUpdate locks and returns the wallet, creating it with
	// defaultCODLimit when it does not exist yet.
	GetWalletForUpdate(ctx context.Context, technicianID string, defaultCODLimit int64) (*domain.WalletAccount, error)

	// SaveWallet writes all wallet fields.
	SaveWallet(ctx context.Context, wallet *domain.WalletAccount) error

	// AppendTransaction inserts a ledger record.
	AppendTransaction(ctx context.Context, txn *domain.Transaction) error

	// MarkEarningsCredited records that the ride's earnings were credited.
	// Returns false when the marker already existed.
	MarkEarningsCredited(ctx context.Context, rideID, technicianID string) (bool, error)

	// CreateWithdrawal inserts a withdrawal request.
	CreateWithdrawal(ctx context.Context, w *domain.WithdrawalRequest) error

	// GetWithdrawalForUpdate locks and returns a withdrawal.
	GetWithdrawalForUpdate(ctx context.Context, id string) (*domain.WithdrawalRequest, error)

	// UpdateWithdrawal writes status, transaction id, admin note and processed time.
	UpdateWithdrawal(ctx context.Context, w *domain.WithdrawalRequest) error
}
