package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS rentals (
    owner           TEXT NOT NULL,
    idx             BIGINT NOT NULL CHECK (idx >= 0),
    rental_price    NUMERIC(20,0) NOT NULL CHECK (rental_price >= 0),
    duration_kind   SMALLINT NOT NULL,
    status          TEXT NOT NULL CHECK (status IN ('CREATED', 'ACTIVE', 'DISCONTINUED', 'PAID_OUT', 'REMOVED')),
    renter          TEXT NOT NULL DEFAULT '',
    escrowed_amount NUMERIC(20,0) NOT NULL DEFAULT 0,
    paid_out_amount NUMERIC(20,0) NOT NULL DEFAULT 0,
    start_tx_ref    TEXT NOT NULL DEFAULT '',
    payout_tx_ref   TEXT NOT NULL DEFAULT '',
    pending_tx_ref  TEXT NOT NULL DEFAULT '',
    pending_amount  NUMERIC(20,0) NOT NULL DEFAULT 0,
    started_at      TIMESTAMPTZ,
    discontinued_at TIMESTAMPTZ,
    paid_out_at     TIMESTAMPTZ,
    created_on      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_on      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (owner, idx)
)`,
	`CREATE INDEX IF NOT EXISTS idx_rentals_status ON rentals (owner, status)`,
	`CREATE TABLE IF NOT EXISTS vesting_allocations (
    category         TEXT PRIMARY KEY,
    account          TEXT NOT NULL,
    total_allocation NUMERIC(20,0) NOT NULL,
    released_amount  NUMERIC(20,0) NOT NULL DEFAULT 0 CHECK (released_amount <= total_allocation),
    vest_start       TIMESTAMPTZ NOT NULL,
    cliff_seconds    BIGINT NOT NULL DEFAULT 0,
    vesting_seconds  BIGINT NOT NULL DEFAULT 0,
    tge_unlock_bps   INT NOT NULL DEFAULT 0 CHECK (tge_unlock_bps BETWEEN 0 AND 10000),
    last_released_at TIMESTAMPTZ,
    pending_tx_ref   TEXT NOT NULL DEFAULT '',
    pending_amount   NUMERIC(20,0) NOT NULL DEFAULT 0,
    created_on       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_on       TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
}

// Migrate creates the ledger tables if they are missing. Statements are idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}
