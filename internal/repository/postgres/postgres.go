package postgres

import (
	"database/sql"
	"errors"
	"strconv"
	"time"

	"aixblock-ledger/internal/repository"

	"github.com/lib/pq"
)

type Store struct {
	db *sql.DB
	repository.RentalRepository
	repository.AllocationRepository
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:                   db,
		RentalRepository:     NewRentalRepository(db),
		AllocationRepository: NewAllocationRepository(db),
	}
}

// DB exposes the handle for migrations and health checks.
func (s *Store) DB() *sql.DB {
	return s.db
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// Amounts live in NUMERIC(20,0) columns and travel as decimal strings, since
// database/sql rejects uint64 parameters with the high bit set.
func amountArg(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
