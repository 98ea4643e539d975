package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"dispatch/internal/domain"
	"dispatch/internal/redis"
	"dispatch/internal/repository"
)

// LedgerConfig holds the ledger's money rules.
type LedgerConfig struct {
	CommissionRate  decimal.Decimal
	DefaultCODLimit int64
	PayoutLockTTL   time.Duration
}

// LedgerService owns technician wallets: earnings, commission debt,
// cash-job eligibility and escrowed withdrawals.
type LedgerService struct {
	repo    repository.LedgerRepository
	payouts PayoutProvider
	locks   redis.LockStoreInterface
	cfg     LedgerConfig
	now     func() time.Time
}

// NewLedgerService creates a new LedgerService. locks may be nil for
// single-instance deployments.
func NewLedgerService(
	repo repository.LedgerRepository,
	payouts PayoutProvider,
	locks redis.LockStoreInterface,
	cfg LedgerConfig,
) *LedgerService {
	if cfg.PayoutLockTTL <= 0 {
		cfg.PayoutLockTTL = 30 * time.Second
	}
	return &LedgerService{
		repo:    repo,
		payouts: payouts,
		locks:   locks,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Commission returns round(gross * rate), half away from zero.
func (s *LedgerService) Commission(gross int64) int64 {
	return decimal.NewFromInt(gross).Mul(s.cfg.CommissionRate).Round(0).IntPart()
}

// CreditEarnings credits gross minus commission to the technician and adds
// the commission to their dues. Crediting the same ride twice is a no-op;
// the returned bool reports whether this call did the credit.
func (s *LedgerService) CreditEarnings(ctx context.Context, technicianID, rideID string, gross int64) (bool, error) {
	if technicianID == "" {
		return false, ErrInvalidTechnicianID
	}
	if rideID == "" {
		return false, ErrInvalidRideID
	}
	if gross <= 0 {
		return false, ErrInvalidAmount
	}

	commission := s.Commission(gross)
	net := gross - commission
	credited := false

	err := s.repo.RunInTx(ctx, func(tx repository.LedgerTx) error {
		wallet, err := tx.GetWalletForUpdate(ctx, technicianID, s.cfg.DefaultCODLimit)
		if err != nil {
			return err
		}

		fresh, err := tx.MarkEarningsCredited(ctx, rideID, technicianID)
		if err != nil {
			return err
		}
		if !fresh {
			return nil
		}

		wallet.Balance += net
		wallet.CommissionDue += commission
		if err := tx.SaveWallet(ctx, wallet); err != nil {
			return err
		}

		credited = true
		return tx.AppendTransaction(ctx, &domain.Transaction{
			ID:           uuid.New().String(),
			TechnicianID: technicianID,
			Type:         domain.TransactionTypeCredit,
			Amount:       net,
			Description:  "Job earnings",
			RideID:       rideID,
			Status:       domain.TransactionStatusCompleted,
			Metadata: map[string]string{
				"gross":      fmt.Sprint(gross),
				"commission": fmt.Sprint(commission),
				"rate":       s.cfg.CommissionRate.String(),
			},
			BalanceAfter: wallet.Balance,
			CreatedAt:    s.now(),
		})
	})
	if err != nil {
		return false, fmt.Errorf("credit earnings for ride %s: %w", rideID, err)
	}

	if credited {
		log.Printf("[LEDGER] Credited ride %s to %s: net=%d commission=%d", rideID, technicianID, net, commission)
	}
	return credited, nil
}

// GetWallet returns the technician's wallet. A technician with no ledger
// activity yet gets an empty wallet with the default COD limit.
func (s *LedgerService) GetWallet(ctx context.Context, technicianID string) (*domain.WalletAccount, error) {
	if technicianID == "" {
		return nil, ErrInvalidTechnicianID
	}

	wallet, err := s.repo.GetWallet(ctx, technicianID)
	if errors.Is(err, repository.ErrNotFound) {
		return &domain.WalletAccount{TechnicianID: technicianID, CODLimit: s.cfg.DefaultCODLimit}, nil
	}
	return wallet, err
}

// IsCashEligible reports whether the technician may be offered cash jobs.
func (s *LedgerService) IsCashEligible(ctx context.Context, technicianID string) (bool, error) {
	wallet, err := s.GetWallet(ctx, technicianID)
	if err != nil {
		return false, err
	}
	return wallet.CashEligible(), nil
}

// ListTransactions returns the technician's ledger records, newest first.
func (s *LedgerService) ListTransactions(ctx context.Context, technicianID string, limit int) ([]*domain.Transaction, error) {
	if technicianID == "" {
		return nil, ErrInvalidTechnicianID
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListTransactions(ctx, technicianID, limit)
}

// RequestWithdrawalRequest contains the parameters for a payout request.
type RequestWithdrawalRequest struct {
	TechnicianID string
	Amount       int64
	PayoutMethod domain.PayoutMethod
	Destination  domain.PayoutDestination
}

func validateDestination(method domain.PayoutMethod, dest domain.PayoutDestination) error {
	switch method {
	case domain.PayoutMethodBank:
		if dest.AccountHolder == "" || dest.AccountNumber == "" || dest.IFSC == "" {
			return ErrInvalidPayoutDestination
		}
	case domain.PayoutMethodUPI:
		if dest.UPIID == "" {
			return ErrInvalidPayoutDestination
		}
	default:
		return ErrInvalidPayoutDestination
	}
	return nil
}

// RequestWithdrawal moves amount from balance into escrow and opens a
// pending withdrawal.
func (s *LedgerService) RequestWithdrawal(ctx context.Context, req RequestWithdrawalRequest) (*domain.WithdrawalRequest, error) {
	if req.TechnicianID == "" {
		return nil, ErrInvalidTechnicianID
	}
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if err := validateDestination(req.PayoutMethod, req.Destination); err != nil {
		return nil, err
	}

	var withdrawal *domain.WithdrawalRequest

	err := s.repo.RunInTx(ctx, func(tx repository.LedgerTx) error {
		wallet, err := tx.GetWalletForUpdate(ctx, req.TechnicianID, s.cfg.DefaultCODLimit)
		if err != nil {
			return err
		}

		if !wallet.IdentityVerified || !wallet.PayoutVerified {
			return ErrVerificationRequired
		}
		if wallet.CommissionDue > 0 {
			return &CommissionDueError{Outstanding: wallet.CommissionDue}
		}
		if req.Amount > wallet.Balance {
			return ErrInsufficientBalance
		}

		wallet.Balance -= req.Amount
		wallet.LockedAmount += req.Amount
		if err := tx.SaveWallet(ctx, wallet); err != nil {
			return err
		}

		now := s.now()
		withdrawal = &domain.WithdrawalRequest{
			ID:           uuid.New().String(),
			TechnicianID: req.TechnicianID,
			Amount:       req.Amount,
			PayoutMethod: req.PayoutMethod,
			Destination:  req.Destination,
			Status:       domain.WithdrawalStatusPending,
			CreatedAt:    now,
		}
		if err := tx.CreateWithdrawal(ctx, withdrawal); err != nil {
			return err
		}

		return tx.AppendTransaction(ctx, &domain.Transaction{
			ID:           uuid.New().String(),
			TechnicianID: req.TechnicianID,
			Type:         domain.TransactionTypeDebit,
			Amount:       req.Amount,
			Description:  "Withdrawal requested",
			WithdrawalID: withdrawal.ID,
			Status:       domain.TransactionStatusPending,
			Metadata:     map[string]string{"payout_method": string(req.PayoutMethod)},
			BalanceAfter: wallet.Balance,
			CreatedAt:    now,
		})
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[LEDGER] Withdrawal %s requested by %s: amount=%d", withdrawal.ID, req.TechnicianID, req.Amount)
	return withdrawal, nil
}

// GetWithdrawal retrieves a withdrawal by ID.
func (s *LedgerService) GetWithdrawal(ctx context.Context, id string) (*domain.WithdrawalRequest, error) {
	w, err := s.repo.GetWithdrawal(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrWithdrawalNotFound
	}
	return w, err
}

// ListWithdrawals lists withdrawals, optionally by status.
func (s *LedgerService) ListWithdrawals(ctx context.Context, status domain.WithdrawalStatus, limit int) ([]*domain.WithdrawalRequest, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListWithdrawals(ctx, status, limit)
}

// ApproveWithdrawal approves a pending withdrawal and submits the payout.
// If the provider fails, the request returns to pending so it can be
// approved again.
func (s *LedgerService) ApproveWithdrawal(ctx context.Context, id, adminNote string) (*domain.WithdrawalRequest, error) {
	if s.locks != nil {
		acquired, err := s.locks.AcquireWithdrawalLock(ctx, id, s.cfg.PayoutLockTTL)
		if err != nil {
			return nil, fmt.Errorf("acquire payout lock: %w", err)
		}
		if !acquired {
			return nil, ErrPayoutInProgress
		}
		defer func() {
			if err := s.locks.ReleaseWithdrawalLock(context.WithoutCancel(ctx), id); err != nil {
				log.Printf("[PAYOUT] Failed to release lock for %s: %v", id, err)
			}
		}()
	}

	var withdrawal *domain.WithdrawalRequest
	err := s.repo.RunInTx(ctx, func(tx repository.LedgerTx) error {
		w, err := tx.GetWithdrawalForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if w.Status != domain.WithdrawalStatusPending {
			return ErrWithdrawalNotPending
		}
		w.Status = domain.WithdrawalStatusApproved
		w.AdminNote = adminNote
		withdrawal = w
		return tx.UpdateWithdrawal(ctx, w)
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrWithdrawalNotFound
		}
		return nil, err
	}

	payoutID, payErr := s.submitPayout(ctx, withdrawal)
	if payErr != nil {
		log.Printf("[PAYOUT] Payout for withdrawal %s failed, reverting to pending: %v", id, payErr)
		rbErr := s.repo.RunInTx(ctx, func(tx repository.LedgerTx) error {
			w, err := tx.GetWithdrawalForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if w.Status != domain.WithdrawalStatusApproved {
				return nil
			}
			w.Status = domain.WithdrawalStatusPending
			return tx.UpdateWithdrawal(ctx, w)
		})
		if rbErr != nil {
			log.Printf("[PAYOUT] Failed to revert withdrawal %s: %v", id, rbErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrPayoutFailed, payErr)
	}

	err = s.repo.RunInTx(ctx, func(tx repository.LedgerTx) error {
		w, err := tx.GetWithdrawalForUpdate(ctx, id)
		if err != nil {
			return err
		}
		// The provider webhook may already have resolved it.
		if w.TransactionID == "" {
			w.TransactionID = payoutID
			if err := tx.UpdateWithdrawal(ctx, w); err != nil {
				return err
			}
		}
		withdrawal = w
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("record payout %s: %w", payoutID, err)
	}

	log.Printf("[PAYOUT] Withdrawal %s approved, payout %s submitted", id, payoutID)
	return withdrawal, nil
}

func (s *LedgerService) submitPayout(ctx context.Context, w *domain.WithdrawalRequest) (string, error) {
	contactID, err := s.payouts.CreateContact(ctx, w.TechnicianID)
	if err != nil {
		return "", fmt.Errorf("create contact: %w", err)
	}
	fundAccountID, err := s.payouts.CreateFundAccount(ctx, contactID, w.PayoutMethod, w.Destination)
	if err != nil {
		return "", fmt.Errorf("create fund account: %w", err)
	}
	payoutID, err := s.payouts.CreatePayout(ctx, fundAccountID, w.Amount, w.ID)
	if err != nil {
		return "", fmt.Errorf("create payout: %w", err)
	}
	return payoutID, nil
}

// RejectWithdrawal returns the escrowed amount of a pending withdrawal to
// the balance.
func (s *LedgerService) RejectWithdrawal(ctx context.Context, id, adminNote string) (*domain.WithdrawalRequest, error) {
	return s.ResolveWithdrawal(ctx, id, domain.WithdrawalOutcomeRejected, "", adminNote)
}

// MarkWithdrawalPaid records a payout made outside the provider integration.
func (s *LedgerService) MarkWithdrawalPaid(ctx context.Context, id, transactionID, adminNote string) (*domain.WithdrawalRequest, error) {
	return s.ResolveWithdrawal(ctx, id, domain.WithdrawalOutcomePaid, transactionID, adminNote)
}

// settledBy names who resolves a withdrawal. Once a payout has been handed
// to the provider only the provider's webhook may settle it.
type settledBy int

const (
	settledByAdmin settledBy = iota
	settledByProvider
)

// ResolveWithdrawal settles a pending withdrawal by hand. Approved
// withdrawals belong to the payout provider and return
// ErrWithdrawalNotPending.
func (s *LedgerService) ResolveWithdrawal(ctx context.Context, id string, outcome domain.WithdrawalOutcome, transactionID, adminNote string) (*domain.WithdrawalRequest, error) {
	return s.resolveWithdrawal(ctx, id, outcome, transactionID, adminNote, settledByAdmin)
}

// resolveWithdrawal releases the escrowed amount exactly once: back to the
// balance when rejected, out of the wallet when paid.
func (s *LedgerService) resolveWithdrawal(ctx context.Context, id string, outcome domain.WithdrawalOutcome, transactionID, note string, by settledBy) (*domain.WithdrawalRequest, error) {
	if outcome != domain.WithdrawalOutcomePaid && outcome != domain.WithdrawalOutcomeRejected {
		return nil, ErrUnknownPayoutStatus
	}

	var withdrawal *domain.WithdrawalRequest

	err := s.repo.RunInTx(ctx, func(tx repository.LedgerTx) error {
		w, err := tx.GetWithdrawalForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if w.Status.IsResolved() {
			return ErrWithdrawalResolved
		}
		if by == settledByAdmin && w.Status != domain.WithdrawalStatusPending {
			return ErrWithdrawalNotPending
		}

		wallet, err := tx.GetWalletForUpdate(ctx, w.TechnicianID, s.cfg.DefaultCODLimit)
		if err != nil {
			return err
		}
		if wallet.LockedAmount < w.Amount {
			return fmt.Errorf("wallet %s locked amount %d below withdrawal %d", wallet.TechnicianID, wallet.LockedAmount, w.Amount)
		}

		now := s.now()
		txn := &domain.Transaction{
			ID:           uuid.New().String(),
			TechnicianID: w.TechnicianID,
			Amount:       w.Amount,
			WithdrawalID: w.ID,
			Status:       domain.TransactionStatusCompleted,
			CreatedAt:    now,
		}

		wallet.LockedAmount -= w.Amount
		switch outcome {
		case domain.WithdrawalOutcomeRejected:
			wallet.Balance += w.Amount
			w.Status = domain.WithdrawalStatusRejected
			txn.Type = domain.TransactionTypeCredit
			txn.Description = "Withdrawal rejected, funds returned"
		case domain.WithdrawalOutcomePaid:
			w.Status = domain.WithdrawalStatusCompleted
			if transactionID != "" {
				w.TransactionID = transactionID
			}
			txn.Type = domain.TransactionTypeDebit
			txn.Description = "Withdrawal paid"
			if w.TransactionID != "" {
				txn.Metadata = map[string]string{"payout_id": w.TransactionID}
			}
		}
		txn.BalanceAfter = wallet.Balance

		if note != "" {
			w.AdminNote = note
		}
		w.ProcessedAt = now

		if err := tx.SaveWallet(ctx, wallet); err != nil {
			return err
		}
		if err := tx.UpdateWithdrawal(ctx, w); err != nil {
			return err
		}
		withdrawal = w
		return tx.AppendTransaction(ctx, txn)
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrWithdrawalNotFound
		}
		return nil, err
	}

	log.Printf("[LEDGER] Withdrawal %s resolved as %s", id, outcome)
	return withdrawal, nil
}

// PayoutWebhook is a payout status notification from the provider.
// Reference echoes the withdrawal ID passed to CreatePayout.
type PayoutWebhook struct {
	PayoutID  string
	Reference string
	Status    string // processed, failed or reversed
}

// HandlePayoutWebhook resolves the withdrawal the payout belongs to.
// Redelivered notifications for resolved withdrawals are ignored.
func (s *LedgerService) HandlePayoutWebhook(ctx context.Context, hook PayoutWebhook) error {
	var outcome domain.WithdrawalOutcome
	switch hook.Status {
	case "processed":
		outcome = domain.WithdrawalOutcomePaid
	case "failed", "reversed":
		outcome = domain.WithdrawalOutcomeRejected
	default:
		return ErrUnknownPayoutStatus
	}

	w, err := s.payoutWithdrawal(ctx, hook)
	if err != nil {
		return err
	}

	_, err = s.resolveWithdrawal(ctx, w.ID, outcome, hook.PayoutID, "payout "+hook.Status, settledByProvider)
	if errors.Is(err, ErrWithdrawalResolved) {
		log.Printf("[PAYOUT] Ignoring duplicate %s webhook for %s", hook.Status, hook.PayoutID)
		return nil
	}
	return err
}

// payoutWithdrawal finds the withdrawal a webhook is about. The payout ID is
// recorded only after CreatePayout returns, so a fast webhook falls back to
// the reference.
func (s *LedgerService) payoutWithdrawal(ctx context.Context, hook PayoutWebhook) (*domain.WithdrawalRequest, error) {
	w, err := s.repo.GetWithdrawalByTransactionID(ctx, hook.PayoutID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if hook.Reference == "" {
		return nil, ErrWithdrawalNotFound
	}

	w, err = s.repo.GetWithdrawal(ctx, hook.Reference)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrWithdrawalNotFound
		}
		return nil, err
	}
	if w.TransactionID != "" && w.TransactionID != hook.PayoutID {
		return nil, ErrWithdrawalNotFound
	}
	return w, nil
}

// PayCommission settles commission dues. With a gateway reference the money
// came from outside; without one it is taken from the wallet balance.
func (s *LedgerService) PayCommission(ctx context.Context, technicianID string, amount int64, paymentRef string) (*domain.WalletAccount, error) {
	if technicianID == "" {
		return nil, ErrInvalidTechnicianID
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	var wallet *domain.WalletAccount

	err := s.repo.RunInTx(ctx, func(tx repository.LedgerTx) error {
		w, err := tx.GetWalletForUpdate(ctx, technicianID, s.cfg.DefaultCODLimit)
		if err != nil {
			return err
		}
		if amount > w.CommissionDue {
			return ErrCommissionOverpay
		}

		metadata := map[string]string{"source": "gateway", "payment_ref": paymentRef}
		if paymentRef == "" {
			if amount > w.Balance {
				return ErrInsufficientBalance
			}
			w.Balance -= amount
			metadata = map[string]string{"source": "balance"}
		}
		w.CommissionDue -= amount

		if err := tx.SaveWallet(ctx, w); err != nil {
			return err
		}
		wallet = w
		return tx.AppendTransaction(ctx, &domain.Transaction{
			ID:           uuid.New().String(),
			TechnicianID: technicianID,
			Type:         domain.TransactionTypeSettlement,
			Amount:       amount,
			Description:  "Commission payment",
			Status:       domain.TransactionStatusCompleted,
			Metadata:     metadata,
			BalanceAfter: w.Balance,
			CreatedAt:    s.now(),
		})
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[LEDGER] Commission of %d settled by %s, remaining due=%d", amount, technicianID, wallet.CommissionDue)
	return wallet, nil
}

// SetVerification updates the verification flags set by the document review flow.
func (s *LedgerService) SetVerification(ctx context.Context, technicianID string, identity, payout *bool) (*domain.WalletAccount, error) {
	return s.updateWallet(ctx, technicianID, func(w *domain.WalletAccount) error {
		if identity != nil {
			w.IdentityVerified = *identity
		}
		if payout != nil {
			w.PayoutVerified = *payout
		}
		return nil
	})
}

// SetCODLimit changes the commission debt at which cash jobs stop.
func (s *LedgerService) SetCODLimit(ctx context.Context, technicianID string, limit int64) (*domain.WalletAccount, error) {
	if limit < 0 {
		return nil, ErrInvalidCODLimit
	}
	return s.updateWallet(ctx, technicianID, func(w *domain.WalletAccount) error {
		w.CODLimit = limit
		return nil
	})
}

func (s *LedgerService) updateWallet(ctx context.Context, technicianID string, fn func(w *domain.WalletAccount) error) (*domain.WalletAccount, error) {
	if technicianID == "" {
		return nil, ErrInvalidTechnicianID
	}

	var wallet *domain.WalletAccount
	err := s.repo.RunInTx(ctx, func(tx repository.LedgerTx) error {
		w, err := tx.GetWalletForUpdate(ctx, technicianID, s.cfg.DefaultCODLimit)
		if err != nil {
			return err
		}
		if err := fn(w); err != nil {
			return err
		}
		wallet = w
		return tx.SaveWallet(ctx, w)
	})
	if err != nil {
		return nil, err
	}
	return wallet, nil
}
