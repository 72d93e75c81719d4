package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"aixblock-ledger/internal/domain"
	"aixblock-ledger/internal/logger"
	"aixblock-ledger/internal/repository"
)

type allocationRepository struct {
	db *sql.DB
}

func NewAllocationRepository(db *sql.DB) repository.AllocationRepository {
	return &allocationRepository{db: db}
}

const allocationColumns = `category, account, total_allocation, released_amount, vest_start, cliff_seconds, vesting_seconds,
	tge_unlock_bps, last_released_at, pending_tx_ref, pending_amount, created_on, updated_on`

func (r *allocationRepository) Create(ctx context.Context, a *domain.VestingAllocation) error {
	query := `INSERT INTO vesting_allocations (category, account, total_allocation, released_amount, vest_start, cliff_seconds, vesting_seconds, tge_unlock_bps, created_on, updated_on)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	now := time.Now().UTC()
	logger.DatabaseCall("INSERT", "vesting_allocations", "category", a.Category)
	_, err := r.db.ExecContext(ctx, query, a.Category, a.Account, amountArg(a.TotalAllocation), amountArg(a.ReleasedAmount),
		a.Schedule.Start.UTC(), int64(a.Schedule.Cliff/time.Second), int64(a.Schedule.Vesting/time.Second), int32(a.Schedule.TGEUnlockBps), now, now)
	logger.DatabaseResult("INSERT", 1, err, "category", a.Category)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: allocation %q", domain.ErrAlreadyExists, a.Category)
		}
		return err
	}
	a.CreatedOn = now
	a.UpdatedOn = now
	return nil
}

func (r *allocationRepository) Get(ctx context.Context, category string) (*domain.VestingAllocation, error) {
	query := `SELECT ` + allocationColumns + ` FROM vesting_allocations WHERE category = $1`
	a, err := scanAllocation(r.db.QueryRowContext(ctx, query, category))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: allocation %q", domain.ErrNotFound, category)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *allocationRepository) UpdateReleased(ctx context.Context, a *domain.VestingAllocation, prevReleased uint64, pendingRef string) error {
	query := `UPDATE vesting_allocations SET released_amount=$1, pending_tx_ref=$2, pending_amount=$3, last_released_at=$4, updated_on=$5
	          WHERE category=$6 AND released_amount=$7 AND pending_tx_ref=$8`
	now := time.Now().UTC()
	logger.DatabaseCall("UPDATE", "vesting_allocations", "category", a.Category, "released", a.ReleasedAmount, "prevReleased", prevReleased)
	res, err := r.db.ExecContext(ctx, query, amountArg(a.ReleasedAmount), a.PendingTxRef, amountArg(a.PendingAmount),
		nullTime(a.LastReleasedAt), now, a.Category, amountArg(prevReleased), pendingRef)
	if err != nil {
		logger.DatabaseResult("UPDATE", 0, err, "category", a.Category)
		return err
	}
	n, err := res.RowsAffected()
	logger.DatabaseResult("UPDATE", n, err, "category", a.Category)
	if err != nil {
		return err
	}
	if n == 0 {
		cur, err := r.Get(ctx, a.Category)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: allocation %q released %d pending %q, expected %d pending %q",
			domain.ErrInvalidState, a.Category, cur.ReleasedAmount, cur.PendingTxRef, prevReleased, pendingRef)
	}
	a.UpdatedOn = now
	return nil
}

func (r *allocationRepository) List(ctx context.Context) ([]domain.VestingAllocation, error) {
	query := `SELECT ` + allocationColumns + ` FROM vesting_allocations ORDER BY category`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	allocs := []domain.VestingAllocation{}
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return nil, err
		}
		allocs = append(allocs, *a)
	}
	return allocs, rows.Err()
}

func scanAllocation(row rowScanner) (*domain.VestingAllocation, error) {
	var (
		a                    domain.VestingAllocation
		cliffSec, vestingSec int64
		bps                  int32
		lastReleased         sql.NullTime
	)
	err := row.Scan(&a.Category, &a.Account, &a.TotalAllocation, &a.ReleasedAmount, &a.Schedule.Start, &cliffSec, &vestingSec,
		&bps, &lastReleased, &a.PendingTxRef, &a.PendingAmount, &a.CreatedOn, &a.UpdatedOn)
	if err != nil {
		return nil, err
	}
	a.Schedule.Cliff = time.Duration(cliffSec) * time.Second
	a.Schedule.Vesting = time.Duration(vestingSec) * time.Second
	a.Schedule.TGEUnlockBps = uint32(bps)
	a.LastReleasedAt = timePtr(lastReleased)
	return &a, nil
}
