package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied in order on startup. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS rides (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL,
		technician_id TEXT,
		status TEXT NOT NULL,
		pickup_address TEXT NOT NULL DEFAULT '',
		pickup_lat DOUBLE PRECISION NOT NULL,
		pickup_lng DOUBLE PRECISION NOT NULL,
		destination_address TEXT NOT NULL DEFAULT '',
		destination_lat DOUBLE PRECISION NOT NULL,
		destination_lng DOUBLE PRECISION NOT NULL,
		service_type TEXT NOT NULL,
		price BIGINT NOT NULL,
		payment_method TEXT NOT NULL,
		payment_timing TEXT NOT NULL,
		payment_status TEXT NOT NULL,
		payment_order_id TEXT,
		arrival_otp TEXT,
		arrival_otp_attempts INT NOT NULL DEFAULT 0,
		completion_otp TEXT,
		completion_otp_attempts INT NOT NULL DEFAULT 0,
		cancel_reason TEXT,
		cancelled_by TEXT,
		version BIGINT NOT NULL DEFAULT 1,
		created_at TIMESTAMPTZ NOT NULL,
		accepted_at TIMESTAMPTZ,
		arrived_at TIMESTAMPTZ,
		started_at TIMESTAMPTZ,
		service_ended_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ,
		cancelled_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS rides_status_created_idx ON rides (status, created_at)`,
	`CREATE INDEX IF NOT EXISTS rides_customer_idx ON rides (customer_id)`,
	`CREATE INDEX IF NOT EXISTS rides_technician_idx ON rides (technician_id)`,

	`CREATE TABLE IF NOT EXISTS payment_orders (
		id TEXT PRIMARY KEY,
		ride_id TEXT NOT NULL REFERENCES rides (id),
		amount BIGINT NOT NULL,
		status TEXT NOT NULL,
		gateway_order_id TEXT NOT NULL,
		idempotency_key TEXT NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS wallets (
		technician_id TEXT PRIMARY KEY,
		balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
		locked_amount BIGINT NOT NULL DEFAULT 0 CHECK (locked_amount >= 0),
		commission_due BIGINT NOT NULL DEFAULT 0 CHECK (commission_due >= 0),
		cod_limit BIGINT NOT NULL,
		identity_verified BOOLEAN NOT NULL DEFAULT false,
		payout_verified BOOLEAN NOT NULL DEFAULT false,
		updated_at TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS withdrawals (
		id TEXT PRIMARY KEY,
		technician_id TEXT NOT NULL REFERENCES wallets (technician_id),
		amount BIGINT NOT NULL CHECK (amount > 0),
		payout_method TEXT NOT NULL,
		destination JSONB NOT NULL,
		status TEXT NOT NULL,
		transaction_id TEXT UNIQUE,
		admin_note TEXT,
		processed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS withdrawals_status_idx ON withdrawals (status, created_at)`,

	`CREATE TABLE IF NOT EXISTS wallet_transactions (
		id TEXT PRIMARY KEY,
		technician_id TEXT NOT NULL REFERENCES wallets (technician_id),
		type TEXT NOT NULL,
		amount BIGINT NOT NULL,
		description TEXT NOT NULL,
		ride_id TEXT,
		withdrawal_id TEXT,
		status TEXT NOT NULL,
		metadata JSONB,
		balance_after BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS wallet_transactions_technician_idx ON wallet_transactions (technician_id, created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS earnings_credits (
		ride_id TEXT PRIMARY KEY,
		technician_id TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
}

// Migrate creates the tables the repositories need.
func Migrate(ctx context.Context, db *sql.DB) error {
	return withTx(ctx, db, func(tx *sql.Tx) error {
		for i, stmt := range schema {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migration step %d: %w", i, err)
			}
		}
		return nil
	})
}
