package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"dispatch/internal/domain"
	"dispatch/internal/repository"
)

// LedgerRepository is a PostgreSQL implementation of repository.LedgerRepository.
type LedgerRepository struct {
	db *sql.DB
	q  Querier
}

// NewLedgerRepository creates a new PostgreSQL ledger repository.
func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db, q: db}
}

// RunInTx executes fn inside one database transaction.
func (r *LedgerRepository) RunInTx(ctx context.Context, fn func(tx repository.LedgerTx) error) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		return fn(&ledgerTx{q: tx})
	})
}

// GetWallet retrieves a wallet without locking it.
func (r *LedgerRepository) GetWallet(ctx context.Context, technicianID string) (*domain.WalletAccount, error) {
	wallet, err := scanWallet(r.q.QueryRowContext(ctx, `SELECT `+walletColumns+` FROM wallets WHERE technician_id = $1`, technicianID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return wallet, err
}

// ListTransactions retrieves a technician's ledger records, newest first.
func (r *LedgerRepository) ListTransactions(ctx context.Context, technicianID string, limit int) ([]*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM wallet_transactions
		WHERE technician_id = $1 ORDER BY created_at DESC LIMIT $2`

	rows, err := r.q.QueryContext(ctx, query, technicianID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []*domain.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

// GetWithdrawal retrieves a withdrawal by ID.
func (r *LedgerRepository) GetWithdrawal(ctx context.Context, id string) (*domain.WithdrawalRequest, error) {
	w, err := scanWithdrawal(r.q.QueryRowContext(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return w, err
}

// GetWithdrawalByTransactionID retrieves a withdrawal by its payout reference.
func (r *LedgerRepository) GetWithdrawalByTransactionID(ctx context.Context, transactionID string) (*domain.WithdrawalRequest, error) {
	w, err := scanWithdrawal(r.q.QueryRowContext(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE transaction_id = $1`, transactionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return w, err
}

// ListWithdrawals retrieves withdrawals, newest first. An empty status lists all.
func (r *LedgerRepository) ListWithdrawals(ctx context.Context, status domain.WithdrawalStatus, limit int) ([]*domain.WithdrawalRequest, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawals
		WHERE ($1 = '' OR status = $1) ORDER BY created_at DESC LIMIT $2`

	rows, err := r.q.QueryContext(ctx, query, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.WithdrawalRequest
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// ledgerTx implements repository.LedgerTx on an open *sql.Tx.
type ledgerTx struct {
	q Querier
}

const walletColumns = `technician_id, balance, locked_amount, commission_due, cod_limit,
	identity_verified, payout_verified, updated_at`

func (t *ledgerTx) GetWalletForUpdate(ctx context.Context, technicianID string, defaultCODLimit int64) (*domain.WalletAccount, error) {
	insert := `
		INSERT INTO wallets (technician_id, balance, locked_amount, commission_due, cod_limit,
			identity_verified, payout_verified, updated_at)
		VALUES ($1, 0, 0, 0, $2, false, false, $3)
		ON CONFLICT (technician_id) DO NOTHING
	`
	if _, err := t.q.ExecContext(ctx, insert, technicianID, defaultCODLimit, time.Now()); err != nil {
		return nil, fmt.Errorf("ensure wallet: %w", err)
	}

	return scanWallet(t.q.QueryRowContext(ctx, `SELECT `+walletColumns+` FROM wallets WHERE technician_id = $1 FOR UPDATE`, technicianID))
}

func (t *ledgerTx) SaveWallet(ctx context.Context, wallet *domain.WalletAccount) error {
	query := `
		UPDATE wallets
		SET balance = $2, locked_amount = $3, commission_due = $4, cod_limit = $5,
			identity_verified = $6, payout_verified = $7, updated_at = $8
		WHERE technician_id = $1
	`

	wallet.UpdatedAt = time.Now()
	result, err := t.q.ExecContext(ctx, query,
		wallet.TechnicianID,
		wallet.Balance,
		wallet.LockedAmount,
		wallet.CommissionDue,
		wallet.CODLimit,
		wallet.IdentityVerified,
		wallet.PayoutVerified,
		wallet.UpdatedAt,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

const transactionColumns = `id, technician_id, type, amount, description, ride_id, withdrawal_id,
	status, metadata, balance_after, created_at`

func (t *ledgerTx) AppendTransaction(ctx context.Context, txn *domain.Transaction) error {
	metadata, err := json.Marshal(txn.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	query := `INSERT INTO wallet_transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = t.q.ExecContext(ctx, query,
		txn.ID,
		txn.TechnicianID,
		txn.Type,
		txn.Amount,
		txn.Description,
		nullString(txn.RideID),
		nullString(txn.WithdrawalID),
		txn.Status,
		metadata,
		txn.BalanceAfter,
		txn.CreatedAt,
	)
	return err
}

func (t *ledgerTx) MarkEarningsCredited(ctx context.Context, rideID, technicianID string) (bool, error) {
	query := `
		INSERT INTO earnings_credits (ride_id, technician_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (ride_id) DO NOTHING
	`

	result, err := t.q.ExecContext(ctx, query, rideID, technicianID, time.Now())
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected == 1, nil
}

const withdrawalColumns = `id, technician_id, amount, payout_method, destination, status,
	transaction_id, admin_note, processed_at, created_at`

func (t *ledgerTx) CreateWithdrawal(ctx context.Context, w *domain.WithdrawalRequest) error {
	destination, err := json.Marshal(w.Destination)
	if err != nil {
		return fmt.Errorf("encode destination: %w", err)
	}

	query := `INSERT INTO withdrawals (` + withdrawalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = t.q.ExecContext(ctx, query,
		w.ID,
		w.TechnicianID,
		w.Amount,
		w.PayoutMethod,
		destination,
		w.Status,
		nullString(w.TransactionID),
		nullString(w.AdminNote),
		nullTime(w.ProcessedAt),
		w.CreatedAt,
	)
	return err
}

func (t *ledgerTx) GetWithdrawalForUpdate(ctx context.Context, id string) (*domain.WithdrawalRequest, error) {
	w, err := scanWithdrawal(t.q.QueryRowContext(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return w, err
}

func (t *ledgerTx) UpdateWithdrawal(ctx context.Context, w *domain.WithdrawalRequest) error {
	query := `
		UPDATE withdrawals
		SET status = $2, transaction_id = $3, admin_note = $4, processed_at = $5
		WHERE id = $1
	`

	result, err := t.q.ExecContext(ctx, query,
		w.ID,
		w.Status,
		nullString(w.TransactionID),
		nullString(w.AdminNote),
		nullTime(w.ProcessedAt),
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func scanWallet(row rowScanner) (*domain.WalletAccount, error) {
	var w domain.WalletAccount
	err := row.Scan(
		&w.TechnicianID,
		&w.Balance,
		&w.LockedAmount,
		&w.CommissionDue,
		&w.CODLimit,
		&w.IdentityVerified,
		&w.PayoutVerified,
		&w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var txn domain.Transaction
	var rideID, withdrawalID sql.NullString
	var metadata []byte

	err := row.Scan(
		&txn.ID,
		&txn.TechnicianID,
		&txn.Type,
		&txn.Amount,
		&txn.Description,
		&rideID,
		&withdrawalID,
		&txn.Status,
		&metadata,
		&txn.BalanceAfter,
		&txn.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	txn.RideID = rideID.String
	txn.WithdrawalID = withdrawalID.String
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &txn.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &txn, nil
}

func scanWithdrawal(row rowScanner) (*domain.WithdrawalRequest, error) {
	var w domain.WithdrawalRequest
	var destination []byte
	var transactionID, adminNote sql.NullString
	var processedAt sql.NullTime

	err := row.Scan(
		&w.ID,
		&w.TechnicianID,
		&w.Amount,
		&w.PayoutMethod,
		&destination,
		&w.Status,
		&transactionID,
		&adminNote,
		&processedAt,
		&w.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	w.TransactionID = transactionID.String
	w.AdminNote = adminNote.String
	w.ProcessedAt = processedAt.Time
	if len(destination) > 0 {
		if err := json.Unmarshal(destination, &w.Destination); err != nil {
			return nil, fmt.Errorf("decode destination: %w", err)
		}
	}
	return &w, nil
}
