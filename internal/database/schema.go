package database

import (
	"database/sql"
)

// Migrate bootstraps the schema. The partial unique indexes are load-bearing:
// they close the check-then-act window for duplicate settlements and
// duplicate pending withdrawals at the store, not in application code.
func Migrate(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			balance BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS ledger_entries (
			id UUID PRIMARY KEY,
			account_id TEXT NOT NULL,
			direction TEXT NOT NULL CHECK (direction IN ('CREDIT', 'DEBIT')),
			amount BIGINT NOT NULL CHECK (amount > 0),
			category TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			related_type TEXT,
			related_id TEXT,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_entries_account
			ON ledger_entries (account_id, created_at DESC)`,

		`CREATE TABLE IF NOT EXISTS listings (
			id TEXT PRIMARY KEY,
			seller_id TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			base_price BIGINT,
			display_price BIGINT NOT NULL,
			units_sold INTEGER NOT NULL DEFAULT 0,
			seller_earnings_total BIGINT NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'PENDING',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS purchases (
			id UUID PRIMARY KEY,
			buyer_id TEXT NOT NULL,
			seller_id TEXT NOT NULL,
			listing_id TEXT NOT NULL,
			channel_id TEXT,
			gross_amount BIGINT NOT NULL,
			commission BIGINT NOT NULL,
			seller_earnings BIGINT NOT NULL,
			method TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uniq_completed_purchase
			ON purchases (buyer_id, listing_id) WHERE status = 'COMPLETED'`,

		`CREATE TABLE IF NOT EXISTS escrow_channels (
			id UUID PRIMARY KEY,
			listing_id TEXT NOT NULL,
			buyer_id TEXT NOT NULL,
			seller_id TEXT NOT NULL,
			admin_id TEXT,
			channel_status TEXT NOT NULL DEFAULT 'OPEN',
			deal_status TEXT NOT NULL DEFAULT 'PENDING',
			seller_marked_done BOOLEAN NOT NULL DEFAULT FALSE,
			admin_requested BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uniq_escrow_channel
			ON escrow_channels (listing_id, buyer_id, seller_id)`,

		`CREATE TABLE IF NOT EXISTS funding_requests (
			id UUID PRIMARY KEY,
			account_id TEXT NOT NULL,
			kind TEXT NOT NULL CHECK (kind IN ('DEPOSIT', 'WITHDRAWAL')),
			amount BIGINT NOT NULL CHECK (amount > 0),
			method TEXT NOT NULL,
			proof JSONB NOT NULL DEFAULT '{}',
			status TEXT NOT NULL DEFAULT 'PENDING',
			approver_id TEXT,
			note TEXT,
			decided_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uniq_pending_withdrawal
			ON funding_requests (account_id) WHERE kind = 'WITHDRAWAL' AND status = 'PENDING'`,

		`CREATE TABLE IF NOT EXISTS platform_settings (
			singleton BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (singleton),
			commission_percent DOUBLE PRECISION NOT NULL DEFAULT 10,
			platform_account_id TEXT NOT NULL DEFAULT '',
			accepted_addresses JSONB NOT NULL DEFAULT '{}'
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
