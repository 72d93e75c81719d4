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

type rentalRepository struct {
	db *sql.DB
}

func NewRentalRepository(db *sql.DB) repository.RentalRepository {
	return &rentalRepository{db: db}
}

const rentalColumns = `owner, idx, rental_price, duration_kind, status, renter, escrowed_amount, paid_out_amount,
	start_tx_ref, payout_tx_ref, pending_tx_ref, pending_amount, started_at, discontinued_at, paid_out_at, created_on, updated_on`

// Removed rows are kept, so MAX(idx) never moves backwards.
func (r *rentalRepository) NextIndex(ctx context.Context, owner string) (uint64, error) {
	var next uint64
	query := `SELECT COALESCE(MAX(idx) + 1, 0) FROM rentals WHERE owner = $1`
	if err := r.db.QueryRowContext(ctx, query, owner).Scan(&next); err != nil {
		return 0, err
	}
	return next, nil
}

func (r *rentalRepository) Create(ctx context.Context, rt *domain.Rental) error {
	query := `INSERT INTO rentals (owner, idx, rental_price, duration_kind, status, created_on, updated_on)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)`
	now := time.Now().UTC()
	logger.DatabaseCall("INSERT", "rentals", "owner", rt.Owner, "index", rt.Index)
	_, err := r.db.ExecContext(ctx, query, rt.Owner, int64(rt.Index), amountArg(rt.RentalPrice), int16(rt.DurationKind), string(rt.Status), now, now)
	logger.DatabaseResult("INSERT", 1, err, "owner", rt.Owner, "index", rt.Index)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: rental %s/%d", domain.ErrAlreadyExists, rt.Owner, rt.Index)
		}
		return err
	}
	rt.CreatedOn = now
	rt.UpdatedOn = now
	return nil
}

func (r *rentalRepository) Get(ctx context.Context, owner string, index uint64) (*domain.Rental, error) {
	query := `SELECT ` + rentalColumns + ` FROM rentals WHERE owner = $1 AND idx = $2`
	rt, err := scanRental(r.db.QueryRowContext(ctx, query, owner, int64(index)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: rental %s/%d", domain.ErrNotFound, owner, index)
	}
	if err != nil {
		return nil, err
	}
	return rt, nil
}

func (r *rentalRepository) Update(ctx context.Context, rt *domain.Rental, from domain.RentalStatus, pendingRef string) error {
	query := `UPDATE rentals SET rental_price=$1, duration_kind=$2, status=$3, renter=$4, escrowed_amount=$5, paid_out_amount=$6,
	          start_tx_ref=$7, payout_tx_ref=$8, pending_tx_ref=$9, pending_amount=$10, started_at=$11, discontinued_at=$12,
	          paid_out_at=$13, updated_on=$14
	          WHERE owner=$15 AND idx=$16 AND status=$17 AND pending_tx_ref=$18`
	now := time.Now().UTC()
	logger.DatabaseCall("UPDATE", "rentals", "owner", rt.Owner, "index", rt.Index, "from", from, "to", rt.Status)
	res, err := r.db.ExecContext(ctx, query,
		amountArg(rt.RentalPrice), int16(rt.DurationKind), string(rt.Status), rt.Renter,
		amountArg(rt.EscrowedAmount), amountArg(rt.PaidOutAmount), rt.StartTxRef, rt.PayoutTxRef,
		rt.PendingTxRef, amountArg(rt.PendingAmount),
		nullTime(rt.StartedAt), nullTime(rt.DiscontinuedAt), nullTime(rt.PaidOutAt), now,
		rt.Owner, int64(rt.Index), string(from), pendingRef)
	if err != nil {
		logger.DatabaseResult("UPDATE", 0, err, "owner", rt.Owner, "index", rt.Index)
		return err
	}
	n, err := res.RowsAffected()
	logger.DatabaseResult("UPDATE", n, err, "owner", rt.Owner, "index", rt.Index)
	if err != nil {
		return err
	}
	if n == 0 {
		cur, err := r.Get(ctx, rt.Owner, rt.Index)
		if err != nil {
			return err
		}
		if cur.Status != from {
			return &domain.StateError{Op: "update", Current: cur.Status, Want: from}
		}
		return fmt.Errorf("%w: rental %s/%d pending transfer is %q, expected %q", domain.ErrInvalidState, rt.Owner, rt.Index, cur.PendingTxRef, pendingRef)
	}
	rt.UpdatedOn = now
	return nil
}

func (r *rentalRepository) ListByOwner(ctx context.Context, owner string) ([]domain.Rental, error) {
	query := `SELECT ` + rentalColumns + ` FROM rentals WHERE owner = $1 ORDER BY idx`
	rows, err := r.db.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rentals := []domain.Rental{}
	for rows.Next() {
		rt, err := scanRental(rows)
		if err != nil {
			return nil, err
		}
		rentals = append(rentals, *rt)
	}
	return rentals, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRental(row rowScanner) (*domain.Rental, error) {
	var (
		rt                                 domain.Rental
		status                             string
		kind                               int16
		startedAt, discontinuedAt, paidOut sql.NullTime
	)
	err := row.Scan(&rt.Owner, &rt.Index, &rt.RentalPrice, &kind, &status, &rt.Renter, &rt.EscrowedAmount, &rt.PaidOutAmount,
		&rt.StartTxRef, &rt.PayoutTxRef, &rt.PendingTxRef, &rt.PendingAmount, &startedAt, &discontinuedAt, &paidOut, &rt.CreatedOn, &rt.UpdatedOn)
	if err != nil {
		return nil, err
	}
	rt.Status = domain.RentalStatus(status)
	rt.DurationKind = domain.DurationKind(kind)
	rt.StartedAt = timePtr(startedAt)
	rt.DiscontinuedAt = timePtr(discontinuedAt)
	rt.PaidOutAt = timePtr(paidOut)
	return &rt, nil
}
