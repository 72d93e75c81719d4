package repository

import (
	"context"

	"aixblock-ledger/internal/domain"
)

// RentalRepository persists rentals keyed by (owner, index). Implementations return
// domain.ErrNotFound for unknown keys.
type RentalRepository interface {
	// NextIndex returns the index the owner's next rental will get: one past the highest
	// index ever assigned, so removed indexes are never handed out again.
	NextIndex(ctx context.Context, owner string) (uint64, error)
	Create(ctx context.Context, rental *domain.Rental) error
	Get(ctx context.Context, owner string, index uint64) (*domain.Rental, error)
	// Update writes the rental only if its stored status is still from and its stored
	// pending transfer reference is still pendingRef; otherwise it returns
	// domain.ErrInvalidState. This makes every lifecycle edge compare-and-swap.
	Update(ctx context.Context, rental *domain.Rental, from domain.RentalStatus, pendingRef string) error
	ListByOwner(ctx context.Context, owner string) ([]domain.Rental, error)
}

// AllocationRepository persists vesting allocations keyed by category.
type AllocationRepository interface {
	// Create inserts the allocation, or returns domain.ErrAlreadyExists for a known category.
	Create(ctx context.Context, alloc *domain.VestingAllocation) error
	Get(ctx context.Context, category string) (*domain.VestingAllocation, error)
	// UpdateReleased stores alloc.ReleasedAmount, LastReleasedAt and the pending transfer.
	// It fails with domain.ErrInvalidState unless the stored counter is prevReleased and
	// the stored pending reference is pendingRef, so a counter is never moved backwards
	// or advanced twice for the same transfer.
	UpdateReleased(ctx context.Context, alloc *domain.VestingAllocation, prevReleased uint64, pendingRef string) error
	List(ctx context.Context) ([]domain.VestingAllocation, error)
}
