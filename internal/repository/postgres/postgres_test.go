package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"dispatch/internal/domain"
	"dispatch/internal/repository"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func expectMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

var rideColumnNames = []string{
	"id", "customer_id", "technician_id", "status",
	"pickup_address", "pickup_lat", "pickup_lng", "destination_address", "destination_lat", "destination_lng",
	"service_type", "price", "payment_method", "payment_timing", "payment_status", "payment_order_id",
	"arrival_otp", "arrival_otp_attempts", "completion_otp", "completion_otp_attempts",
	"cancel_reason", "cancelled_by", "version",
	"created_at", "accepted_at", "arrived_at", "started_at", "service_ended_at", "completed_at", "cancelled_at", "updated_at",
}

func TestRideRepository_GetByID(t *testing.T) {
	db, mock := newMock(t)
	repo := NewRideRepository(db)
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	accepted := created.Add(2 * time.Minute)

	mock.ExpectQuery(regexp.QuoteMeta("FROM rides WHERE id = $1")).
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows(rideColumnNames).AddRow(
			"r1", "cust-1", "tech-1", "ACCEPTED",
			"12 MG Road", 12.97, 77.59, "12 MG Road", 12.97, 77.59,
			"plumbing", int64(1000), "CASH", "POSTPAID", "UNPAID", nil,
			"4821", int64(1), nil, int64(0),
			nil, nil, int64(2),
			created, accepted, nil, nil, nil, nil, nil, accepted,
		))

	ride, err := repo.GetByID(context.Background(), "r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ride.Status != domain.RideStatusAccepted || ride.TechnicianID != "tech-1" {
		t.Errorf("unexpected ride: %+v", ride)
	}
	if ride.ArrivalOTP != "4821" || ride.ArrivalOTPAttempts != 1 || ride.CompletionOTP != "" {
		t.Errorf("unexpected otp state: %q/%d/%q", ride.ArrivalOTP, ride.ArrivalOTPAttempts, ride.CompletionOTP)
	}
	if ride.Version != 2 || !ride.AcceptedAt.Equal(accepted) || !ride.ArrivedAt.IsZero() {
		t.Errorf("unexpected version or timestamps: %+v", ride)
	}
	expectMet(t, mock)
}

func TestRideRepository_GetByID_NotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewRideRepository(db)

	mock.ExpectQuery("FROM rides").WithArgs("missing").WillReturnError(sql.ErrNoRows)

	if _, err := repo.GetByID(context.Background(), "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	expectMet(t, mock)
}

func TestRideRepository_Update(t *testing.T) {
	tests := []struct {
		name        string
		affected    int64
		exists      bool
		wantErr     error
		wantVersion int64
	}{
		{"version matches", 1, true, nil, 4},
		{"lost race", 0, true, repository.ErrVersionConflict, 3},
		{"missing row", 0, false, repository.ErrNotFound, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			repo := NewRideRepository(db)
			ride := &domain.Ride{ID: "r1", CustomerID: "cust-1", Status: domain.RideStatusArrived, Version: 3}

			mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND version = $23")).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))
			if tt.affected == 0 {
				mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
					WithArgs("r1").
					WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(tt.exists))
			}

			err := repo.Update(context.Background(), ride)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if ride.Version != tt.wantVersion {
				t.Errorf("expected version %d, got %d", tt.wantVersion, ride.Version)
			}
			expectMet(t, mock)
		})
	}
}

func TestPaymentRepository_CreateDuplicate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPaymentRepository(db)

	mock.ExpectExec("INSERT INTO payment_orders").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err := repo.Create(context.Background(), &domain.PaymentOrder{ID: "p1", RideID: "r1", Amount: 1000, IdempotencyKey: "ride:r1"})
	if !errors.Is(err, repository.ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
	expectMet(t, mock)
}

func TestPaymentRepository_GetByIdempotencyKey_Absent(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPaymentRepository(db)

	mock.ExpectQuery("FROM payment_orders").WithArgs("ride:r1").WillReturnError(sql.ErrNoRows)

	order, err := repo.GetByIdempotencyKey(context.Background(), "ride:r1")
	if err != nil || order != nil {
		t.Errorf("expected nil, nil; got %v, %v", order, err)
	}
	expectMet(t, mock)
}

func TestPaymentRepository_UpdateStatusMissing(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPaymentRepository(db)

	mock.ExpectExec("UPDATE payment_orders").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.UpdateStatus(context.Background(), "p1", domain.PaymentOrderPaid); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	expectMet(t, mock)
}

func TestLedgerRepository_CreditMarkerIsIdempotent(t *testing.T) {
	db, mock := newMock(t)
	repo := NewLedgerRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO earnings_credits").
		WithArgs("r1", "tech-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO earnings_credits").
		WithArgs("r1", "tech-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	var first, second bool
	err := repo.RunInTx(context.Background(), func(tx repository.LedgerTx) error {
		var err error
		if first, err = tx.MarkEarningsCredited(context.Background(), "r1", "tech-1"); err != nil {
			return err
		}
		second, err = tx.MarkEarningsCredited(context.Background(), "r1", "tech-1")
		return err
	})
	if err != nil {
		t.Fatalf("run in tx: %v", err)
	}
	if !first || second {
		t.Errorf("expected first=true second=false, got %v and %v", first, second)
	}
	expectMet(t, mock)
}

func TestLedgerRepository_GetWalletForUpdate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewLedgerRepository(db)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (technician_id) DO NOTHING")).
		WithArgs("tech-1", int64(500), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("tech-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"technician_id", "balance", "locked_amount", "commission_due", "cod_limit",
			"identity_verified", "payout_verified", "updated_at",
		}).AddRow("tech-1", int64(800), int64(0), int64(200), int64(500), true, false, now))
	mock.ExpectCommit()

	var wallet *domain.WalletAccount
	err := repo.RunInTx(context.Background(), func(tx repository.LedgerTx) error {
		var err error
		wallet, err = tx.GetWalletForUpdate(context.Background(), "tech-1", 500)
		return err
	})
	if err != nil {
		t.Fatalf("run in tx: %v", err)
	}
	if wallet.Balance != 800 || wallet.CommissionDue != 200 || !wallet.IdentityVerified || wallet.PayoutVerified {
		t.Errorf("unexpected wallet: %+v", wallet)
	}
	expectMet(t, mock)
}

func TestLedgerRepository_RollsBackOnError(t *testing.T) {
	db, mock := newMock(t)
	repo := NewLedgerRepository(db)
	boom := errors.New("insufficient balance")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := repo.RunInTx(context.Background(), func(tx repository.LedgerTx) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("expected the callback error, got %v", err)
	}
	expectMet(t, mock)
}

func TestLedgerRepository_SaveWalletMissing(t *testing.T) {
	db, mock := newMock(t)
	repo := NewLedgerRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE wallets").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.RunInTx(context.Background(), func(tx repository.LedgerTx) error {
		return tx.SaveWallet(context.Background(), &domain.WalletAccount{TechnicianID: "ghost"})
	})
	if !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	expectMet(t, mock)
}

func TestLedgerRepository_GetWithdrawalDecodesDestination(t *testing.T) {
	db, mock := newMock(t)
	repo := NewLedgerRepository(db)
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM withdrawals WHERE transaction_id = $1")).
		WithArgs("pout_w1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "technician_id", "amount", "payout_method", "destination", "status",
			"transaction_id", "admin_note", "processed_at", "created_at",
		}).AddRow("w1", "tech-1", int64(500), "UPI", []byte(`{"upi_id":"tech1@upi"}`), "approved",
			"pout_w1", nil, nil, created))

	w, err := repo.GetWithdrawalByTransactionID(context.Background(), "pout_w1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if w.Destination.UPIID != "tech1@upi" || w.TransactionID != "pout_w1" || !w.ProcessedAt.IsZero() {
		t.Errorf("unexpected withdrawal: %+v", w)
	}
	expectMet(t, mock)
}
