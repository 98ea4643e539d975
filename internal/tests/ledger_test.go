package tests

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"

	"dispatch/internal/domain"
	"dispatch/internal/service"
)

func TestCommission_Rounding(t *testing.T) {
	t.Parallel()

	tests := []struct {
		rate  string
		gross int64
		want  int64
	}{
		{"0.20", 1000, 200},
		{"0.20", 999, 200},
		{"0.20", 1, 0},
		{"0.20", 3, 1},
		{"0.15", 10, 2},
		{"0.15", 30, 5},
		{"0", 1000, 0},
		{"1", 1000, 1000},
	}

	for _, tt := range tests {
		svc := service.NewLedgerService(NewMockLedgerRepository(), &MockPayoutProvider{}, nil, service.LedgerConfig{
			CommissionRate: decimal.RequireFromString(tt.rate),
		})
		if got := svc.Commission(tt.gross); got != tt.want {
			t.Errorf("Commission(%d) at %s = %d, want %d", tt.gross, tt.rate, got, tt.want)
		}
	}
}

func TestCreditEarnings_ExactlyOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	const workers = 10
	var (
		wg       sync.WaitGroup
		credited int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := f.ledger.CreditEarnings(ctx, techID, "ride-1", 1000)
			if err != nil {
				t.Errorf("credit: %v", err)
				return
			}
			if ok {
				atomic.AddInt32(&credited, 1)
			}
		}()
	}
	wg.Wait()

	if credited != 1 {
		t.Fatalf("expected exactly 1 credit, got %d", credited)
	}
	wallet, _ := f.ledgerRepo.Wallet(techID)
	if wallet.Balance != 800 || wallet.CommissionDue != 200 {
		t.Errorf("expected balance 800 and dues 200, got %d and %d", wallet.Balance, wallet.CommissionDue)
	}
	if wallet.CODLimit != 500 {
		t.Errorf("new wallet should get the default COD limit, got %d", wallet.CODLimit)
	}

	txns := f.ledgerRepo.Transactions(techID)
	if len(txns) != 1 {
		t.Fatalf("expected 1 ledger record, got %d", len(txns))
	}
	if txns[0].Type != domain.TransactionTypeCredit || txns[0].Amount != 800 || txns[0].RideID != "ride-1" {
		t.Errorf("unexpected ledger record %+v", txns[0])
	}
	if txns[0].Metadata["commission"] != "200" {
		t.Errorf("expected commission 200 in metadata, got %q", txns[0].Metadata["commission"])
	}
}

func TestCreditEarnings_Validation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.ledger.CreditEarnings(ctx, "", "ride-1", 1000); !errors.Is(err, service.ErrInvalidTechnicianID) {
		t.Errorf("expected ErrInvalidTechnicianID, got %v", err)
	}
	if _, err := f.ledger.CreditEarnings(ctx, techID, "", 1000); !errors.Is(err, service.ErrInvalidRideID) {
		t.Errorf("expected ErrInvalidRideID, got %v", err)
	}
	if _, err := f.ledger.CreditEarnings(ctx, techID, "ride-1", 0); !errors.Is(err, service.ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestRequestWithdrawal_MovesFundsIntoEscrow(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.verifiedWallet(800, 0)

	w, err := f.ledger.RequestWithdrawal(ctx, service.RequestWithdrawalRequest{
		TechnicianID: techID,
		Amount:       500,
		PayoutMethod: domain.PayoutMethodUPI,
		Destination:  upi(),
	})
	if err != nil {
		t.Fatalf("request withdrawal: %v", err)
	}
	if w.Status != domain.WithdrawalStatusPending {
		t.Errorf("expected pending, got %s", w.Status)
	}

	wallet, _ := f.ledgerRepo.Wallet(techID)
	if wallet.Balance != 300 || wallet.LockedAmount != 500 {
		t.Errorf("expected balance 300 locked 500, got %d and %d", wallet.Balance, wallet.LockedAmount)
	}
	if wallet.Balance+wallet.LockedAmount != 800 {
		t.Error("escrow must conserve funds")
	}

	rejected, err := f.ledger.RejectWithdrawal(ctx, w.ID, "wrong upi id")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != domain.WithdrawalStatusRejected {
		t.Errorf("expected rejected, got %s", rejected.Status)
	}
	wallet, _ = f.ledgerRepo.Wallet(techID)
	if wallet.Balance != 800 || wallet.LockedAmount != 0 {
		t.Errorf("expected balance 800 locked 0 after reject, got %d and %d", wallet.Balance, wallet.LockedAmount)
	}

	if _, err := f.ledger.RejectWithdrawal(ctx, w.ID, "again"); !errors.Is(err, service.ErrWithdrawalResolved) {
		t.Errorf("expected ErrWithdrawalResolved, got %v", err)
	}
}

func TestRequestWithdrawal_Blocked(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		wallet  domain.WalletAccount
		amount  int64
		dest    domain.PayoutDestination
		wantErr error
	}{
		{
			name:    "unverified",
			wallet:  domain.WalletAccount{TechnicianID: techID, Balance: 800, CODLimit: 500, IdentityVerified: true},
			amount:  100,
			dest:    upi(),
			wantErr: service.ErrVerificationRequired,
		},
		{
			name:    "over balance",
			wallet:  domain.WalletAccount{TechnicianID: techID, Balance: 800, CODLimit: 500, IdentityVerified: true, PayoutVerified: true},
			amount:  801,
			dest:    upi(),
			wantErr: service.ErrInsufficientBalance,
		},
		{
			name:    "no destination",
			wallet:  domain.WalletAccount{TechnicianID: techID, Balance: 800, CODLimit: 500, IdentityVerified: true, PayoutVerified: true},
			amount:  100,
			dest:    domain.PayoutDestination{},
			wantErr: service.ErrInvalidPayoutDestination,
		},
		{
			name:    "zero amount",
			wallet:  domain.WalletAccount{TechnicianID: techID, Balance: 800, CODLimit: 500, IdentityVerified: true, PayoutVerified: true},
			amount:  0,
			dest:    upi(),
			wantErr: service.ErrInvalidAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.ledgerRepo.AddWallet(tt.wallet)

			_, err := f.ledger.RequestWithdrawal(context.Background(), service.RequestWithdrawalRequest{
				TechnicianID: techID,
				Amount:       tt.amount,
				PayoutMethod: domain.PayoutMethodUPI,
				Destination:  tt.dest,
			})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}

			wallet, _ := f.ledgerRepo.Wallet(techID)
			if wallet.Balance != tt.wallet.Balance || wallet.LockedAmount != 0 {
				t.Errorf("rejected request changed the wallet: %+v", wallet)
			}
		})
	}
}

func TestRequestWithdrawal_BlockedByCommissionDue(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "4821", "12345")
	ctx := context.Background()
	f.verifiedWallet(0, 0)

	ride := f.startedRide(t, domain.PaymentMethodCash, domain.PaymentTimingPostpaid)
	if _, err := f.rideSvc.EndService(ctx, ride.ID, techID); err != nil {
		t.Fatalf("end service: %v", err)
	}
	if _, err := f.rideSvc.Complete(ctx, ride.ID, techID, "12345"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	_, err := f.ledger.RequestWithdrawal(ctx, service.RequestWithdrawalRequest{
		TechnicianID: techID,
		Amount:       100,
		PayoutMethod: domain.PayoutMethodUPI,
		Destination:  upi(),
	})

	var dueErr *service.CommissionDueError
	if !errors.As(err, &dueErr) {
		t.Fatalf("expected CommissionDueError, got %v", err)
	}
	if dueErr.Outstanding != 200 {
		t.Errorf("expected 200 outstanding, got %d", dueErr.Outstanding)
	}
	if !errors.Is(err, service.ErrInsufficientFunds) {
		t.Error("commission dues should classify as insufficient funds")
	}

	// Settle from the balance, then the withdrawal goes through.
	wallet, err := f.ledger.PayCommission(ctx, techID, 200, "")
	if err != nil {
		t.Fatalf("pay commission: %v", err)
	}
	if wallet.Balance != 600 || wallet.CommissionDue != 0 {
		t.Errorf("expected balance 600 dues 0, got %d and %d", wallet.Balance, wallet.CommissionDue)
	}
	if _, err := f.ledger.RequestWithdrawal(ctx, service.RequestWithdrawalRequest{
		TechnicianID: techID,
		Amount:       600,
		PayoutMethod: domain.PayoutMethodUPI,
		Destination:  upi(),
	}); err != nil {
		t.Errorf("withdrawal after settling dues: %v", err)
	}
}

func TestPayCommission(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("overpay", func(t *testing.T) {
		f := newFixture(t)
		f.verifiedWallet(800, 200)
		if _, err := f.ledger.PayCommission(ctx, techID, 201, ""); !errors.Is(err, service.ErrCommissionOverpay) {
			t.Errorf("expected ErrCommissionOverpay, got %v", err)
		}
	})

	t.Run("from balance without funds", func(t *testing.T) {
		f := newFixture(t)
		f.verifiedWallet(50, 200)
		if _, err := f.ledger.PayCommission(ctx, techID, 100, ""); !errors.Is(err, service.ErrInsufficientBalance) {
			t.Errorf("expected ErrInsufficientBalance, got %v", err)
		}
	})

	t.Run("gateway payment keeps balance", func(t *testing.T) {
		f := newFixture(t)
		f.verifiedWallet(50, 200)
		wallet, err := f.ledger.PayCommission(ctx, techID, 200, "pay_abc")
		if err != nil {
			t.Fatalf("pay commission: %v", err)
		}
		if wallet.Balance != 50 || wallet.CommissionDue != 0 {
			t.Errorf("expected balance 50 dues 0, got %d and %d", wallet.Balance, wallet.CommissionDue)
		}
		txns := f.ledgerRepo.Transactions(techID)
		if len(txns) != 1 || txns[0].Type != domain.TransactionTypeSettlement {
			t.Errorf("expected one settlement record, got %+v", txns)
		}
	})
}

func newPendingWithdrawal(t *testing.T, f *fixture) *domain.WithdrawalRequest {
	t.Helper()
	f.verifiedWallet(800, 0)
	w, err := f.ledger.RequestWithdrawal(context.Background(), service.RequestWithdrawalRequest{
		TechnicianID: techID,
		Amount:       500,
		PayoutMethod: domain.PayoutMethodUPI,
		Destination:  upi(),
	})
	if err != nil {
		t.Fatalf("request withdrawal: %v", err)
	}
	return w
}

func TestApproveWithdrawal_PayoutAndWebhook(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	w := newPendingWithdrawal(t, f)

	approved, err := f.ledger.ApproveWithdrawal(ctx, w.ID, "ok")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != domain.WithdrawalStatusApproved || approved.TransactionID != "pout_"+w.ID {
		t.Fatalf("expected approved with payout id, got %s/%s", approved.Status, approved.TransactionID)
	}

	// Funds stay locked until the provider reports the outcome.
	wallet, _ := f.ledgerRepo.Wallet(techID)
	if wallet.LockedAmount != 500 {
		t.Errorf("expected 500 locked while in flight, got %d", wallet.LockedAmount)
	}

	hook := service.PayoutWebhook{PayoutID: approved.TransactionID, Status: "processed"}
	if err := f.ledger.HandlePayoutWebhook(ctx, hook); err != nil {
		t.Fatalf("webhook: %v", err)
	}
	wallet, _ = f.ledgerRepo.Wallet(techID)
	if wallet.Balance != 300 || wallet.LockedAmount != 0 {
		t.Errorf("expected balance 300 locked 0 after payout, got %d and %d", wallet.Balance, wallet.LockedAmount)
	}

	// Redelivery is ignored.
	if err := f.ledger.HandlePayoutWebhook(ctx, hook); err != nil {
		t.Errorf("duplicate webhook: %v", err)
	}
	wallet, _ = f.ledgerRepo.Wallet(techID)
	if wallet.Balance != 300 || wallet.LockedAmount != 0 {
		t.Errorf("duplicate webhook changed the wallet: %+v", wallet)
	}

	stored, err := f.ledger.GetWithdrawal(ctx, w.ID)
	if err != nil {
		t.Fatalf("get withdrawal: %v", err)
	}
	if stored.Status != domain.WithdrawalStatusCompleted {
		t.Errorf("expected completed, got %s", stored.Status)
	}
}

func TestApproveWithdrawal_FailedPayoutReverts(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	w := newPendingWithdrawal(t, f)

	f.payouts.PayoutError = errors.New("provider timeout")
	_, err := f.ledger.ApproveWithdrawal(ctx, w.ID, "")
	if !errors.Is(err, service.ErrPayoutFailed) || !errors.Is(err, service.ErrExternalService) {
		t.Fatalf("expected ErrPayoutFailed, got %v", err)
	}

	stored, _ := f.ledger.GetWithdrawal(ctx, w.ID)
	if stored.Status != domain.WithdrawalStatusPending {
		t.Fatalf("expected pending after failed payout, got %s", stored.Status)
	}
	wallet, _ := f.ledgerRepo.Wallet(techID)
	if wallet.Balance != 300 || wallet.LockedAmount != 500 {
		t.Errorf("failed payout must not move funds, got balance %d locked %d", wallet.Balance, wallet.LockedAmount)
	}

	f.payouts.PayoutError = nil
	if _, err := f.ledger.ApproveWithdrawal(ctx, w.ID, ""); err != nil {
		t.Errorf("retry approve: %v", err)
	}
	if n := atomic32(&f.payouts.PayoutCallCount); n != 2 {
		t.Errorf("expected 2 payout attempts, got %d", n)
	}
}

func TestApproveWithdrawal_LockHeld(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	w := newPendingWithdrawal(t, f)
	f.locks.Hold(w.ID)

	if _, err := f.ledger.ApproveWithdrawal(context.Background(), w.ID, ""); !errors.Is(err, service.ErrPayoutInProgress) {
		t.Errorf("expected ErrPayoutInProgress, got %v", err)
	}
	if n := atomic32(&f.payouts.PayoutCallCount); n != 0 {
		t.Errorf("expected no payout while locked, got %d", n)
	}
}

func TestPayoutWebhook_FailedReturnsFunds(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	w := newPendingWithdrawal(t, f)

	approved, err := f.ledger.ApproveWithdrawal(ctx, w.ID, "")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}

	if err := f.ledger.HandlePayoutWebhook(ctx, service.PayoutWebhook{PayoutID: approved.TransactionID, Status: "reversed"}); err != nil {
		t.Fatalf("webhook: %v", err)
	}
	wallet, _ := f.ledgerRepo.Wallet(techID)
	if wallet.Balance != 800 || wallet.LockedAmount != 0 {
		t.Errorf("expected funds returned, got balance %d locked %d", wallet.Balance, wallet.LockedAmount)
	}

	if err := f.ledger.HandlePayoutWebhook(ctx, service.PayoutWebhook{PayoutID: approved.TransactionID, Status: "bogus"}); !errors.Is(err, service.ErrUnknownPayoutStatus) {
		t.Errorf("expected ErrUnknownPayoutStatus, got %v", err)
	}
	if err := f.ledger.HandlePayoutWebhook(ctx, service.PayoutWebhook{PayoutID: "pout_unknown", Status: "processed"}); !errors.Is(err, service.ErrWithdrawalNotFound) {
		t.Errorf("expected ErrWithdrawalNotFound, got %v", err)
	}
}

func TestRejectWithdrawal_SubmittedPayoutBelongsToProvider(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	w := newPendingWithdrawal(t, f)

	approved, err := f.ledger.ApproveWithdrawal(ctx, w.ID, "")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}

	if _, err := f.ledger.RejectWithdrawal(ctx, w.ID, "changed my mind"); !errors.Is(err, service.ErrWithdrawalNotPending) {
		t.Fatalf("reject after approve: expected ErrWithdrawalNotPending, got %v", err)
	}
	if _, err := f.ledger.MarkWithdrawalPaid(ctx, w.ID, "neft-1", ""); !errors.Is(err, service.ErrWithdrawalNotPending) {
		t.Fatalf("mark paid after approve: expected ErrWithdrawalNotPending, got %v", err)
	}
	wallet, _ := f.ledgerRepo.Wallet(techID)
	if wallet.Balance != 300 || wallet.LockedAmount != 500 {
		t.Fatalf("refused resolutions moved funds: balance %d locked %d", wallet.Balance, wallet.LockedAmount)
	}

	if err := f.ledger.HandlePayoutWebhook(ctx, service.PayoutWebhook{PayoutID: approved.TransactionID, Status: "processed"}); err != nil {
		t.Fatalf("webhook: %v", err)
	}
	wallet, _ = f.ledgerRepo.Wallet(techID)
	if wallet.Balance != 300 || wallet.LockedAmount != 0 {
		t.Errorf("expected the payout to leave balance 300 locked 0, got %d and %d", wallet.Balance, wallet.LockedAmount)
	}
	if n := atomic32(&f.payouts.PayoutCallCount); n != 1 {
		t.Errorf("expected 1 payout, got %d", n)
	}
}

func TestPayoutWebhook_BeforePayoutIDRecorded(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	w := newPendingWithdrawal(t, f)

	var hookErr error
	f.payouts.OnPayout = func(payoutID, reference string) {
		hookErr = f.ledger.HandlePayoutWebhook(ctx, service.PayoutWebhook{
			PayoutID:  payoutID,
			Reference: reference,
			Status:    "processed",
		})
	}

	approved, err := f.ledger.ApproveWithdrawal(ctx, w.ID, "")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if hookErr != nil {
		t.Fatalf("early webhook: %v", hookErr)
	}
	if approved.Status != domain.WithdrawalStatusCompleted || approved.TransactionID != "pout_"+w.ID {
		t.Errorf("expected completed with payout id, got %s/%s", approved.Status, approved.TransactionID)
	}
	wallet, _ := f.ledgerRepo.Wallet(techID)
	if wallet.Balance != 300 || wallet.LockedAmount != 0 {
		t.Errorf("expected balance 300 locked 0, got %d and %d", wallet.Balance, wallet.LockedAmount)
	}

	// A reference that points at a withdrawal paid under another payout is not a match.
	err = f.ledger.HandlePayoutWebhook(ctx, service.PayoutWebhook{PayoutID: "pout_other", Reference: w.ID, Status: "failed"})
	if !errors.Is(err, service.ErrWithdrawalNotFound) {
		t.Errorf("expected ErrWithdrawalNotFound, got %v", err)
	}
}

func TestMarkWithdrawalPaid(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	w := newPendingWithdrawal(t, f)

	paid, err := f.ledger.MarkWithdrawalPaid(ctx, w.ID, "neft-123", "paid by bank transfer")
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if paid.Status != domain.WithdrawalStatusCompleted || paid.TransactionID != "neft-123" {
		t.Errorf("expected completed with neft-123, got %s/%s", paid.Status, paid.TransactionID)
	}
	wallet, _ := f.ledgerRepo.Wallet(techID)
	if wallet.Balance != 300 || wallet.LockedAmount != 0 {
		t.Errorf("expected balance 300 locked 0, got %d and %d", wallet.Balance, wallet.LockedAmount)
	}

	if _, err := f.ledger.ApproveWithdrawal(ctx, w.ID, ""); !errors.Is(err, service.ErrWithdrawalNotPending) {
		t.Errorf("approve after paid: expected ErrWithdrawalNotPending, got %v", err)
	}
}

func TestWalletAdministration(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	wallet, err := f.ledger.GetWallet(ctx, techID)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if wallet.CODLimit != 500 || wallet.Balance != 0 {
		t.Errorf("expected an empty wallet with the default limit, got %+v", wallet)
	}

	if _, err := f.ledger.SetCODLimit(ctx, techID, -1); !errors.Is(err, service.ErrInvalidCODLimit) {
		t.Errorf("expected ErrInvalidCODLimit, got %v", err)
	}
	if _, err := f.ledger.SetCODLimit(ctx, techID, 0); err != nil {
		t.Fatalf("set cod limit: %v", err)
	}
	eligible, err := f.ledger.IsCashEligible(ctx, techID)
	if err != nil {
		t.Fatalf("is cash eligible: %v", err)
	}
	if eligible {
		t.Error("a zero COD limit must block cash jobs")
	}

	yes := true
	wallet, err = f.ledger.SetVerification(ctx, techID, &yes, nil)
	if err != nil {
		t.Fatalf("set verification: %v", err)
	}
	if !wallet.IdentityVerified || wallet.PayoutVerified {
		t.Errorf("expected only identity verified, got %+v", wallet)
	}
}
