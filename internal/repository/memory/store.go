// Package memory keeps rentals and vesting allocations in process. It backs the
// development profile and service tests; state does not survive a restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"aixblock-ledger/internal/domain"
	"aixblock-ledger/internal/repository"
)

var (
	_ repository.RentalRepository     = (*Store)(nil)
	_ repository.AllocationRepository = (*AllocationStore)(nil)
)

// Store holds one arena of rentals per owner; a rental's index is its position.
type Store struct {
	mu      sync.RWMutex
	rentals map[string][]domain.Rental
	now     func() time.Time
}

func NewRentalStore() *Store {
	return &Store{
		rentals: make(map[string][]domain.Rental),
		now:     time.Now,
	}
}

func (s *Store) NextIndex(_ context.Context, owner string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.rentals[owner])), nil
}

func (s *Store) Create(_ context.Context, r *domain.Rental) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	arena := s.rentals[r.Owner]
	if r.Index != uint64(len(arena)) {
		return fmt.Errorf("%w: rental %s/%d (next index is %d)", domain.ErrAlreadyExists, r.Owner, r.Index, len(arena))
	}
	now := s.now()
	r.CreatedOn = now
	r.UpdatedOn = now
	s.rentals[r.Owner] = append(arena, *r)
	return nil
}

func (s *Store) Get(_ context.Context, owner string, index uint64) (*domain.Rental, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	arena := s.rentals[owner]
	if index >= uint64(len(arena)) {
		return nil, fmt.Errorf("%w: rental %s/%d", domain.ErrNotFound, owner, index)
	}
	r := arena[index]
	return &r, nil
}

func (s *Store) Update(_ context.Context, r *domain.Rental, from domain.RentalStatus, pendingRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	arena := s.rentals[r.Owner]
	if r.Index >= uint64(len(arena)) {
		return fmt.Errorf("%w: rental %s/%d", domain.ErrNotFound, r.Owner, r.Index)
	}
	cur := arena[r.Index]
	if cur.Status != from {
		return &domain.StateError{Op: "update", Current: cur.Status, Want: from}
	}
	if cur.PendingTxRef != pendingRef {
		return fmt.Errorf("%w: rental %s/%d pending transfer is %q, expected %q", domain.ErrInvalidState, r.Owner, r.Index, cur.PendingTxRef, pendingRef)
	}
	r.UpdatedOn = s.now()
	arena[r.Index] = *r
	return nil
}

func (s *Store) ListByOwner(_ context.Context, owner string) ([]domain.Rental, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	arena := s.rentals[owner]
	out := make([]domain.Rental, len(arena))
	copy(out, arena)
	return out, nil
}

type AllocationStore struct {
	mu          sync.RWMutex
	allocations map[string]domain.VestingAllocation
	now         func() time.Time
}

func NewAllocationStore() *AllocationStore {
	return &AllocationStore{
		allocations: make(map[string]domain.VestingAllocation),
		now:         time.Now,
	}
}

func (s *AllocationStore) Create(_ context.Context, a *domain.VestingAllocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.allocations[a.Category]; ok {
		return fmt.Errorf("%w: allocation %q", domain.ErrAlreadyExists, a.Category)
	}
	now := s.now()
	a.CreatedOn = now
	a.UpdatedOn = now
	s.allocations[a.Category] = *a
	return nil
}

func (s *AllocationStore) Get(_ context.Context, category string) (*domain.VestingAllocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.allocations[category]
	if !ok {
		return nil, fmt.Errorf("%w: allocation %q", domain.ErrNotFound, category)
	}
	return &a, nil
}

func (s *AllocationStore) UpdateReleased(_ context.Context, a *domain.VestingAllocation, prevReleased uint64, pendingRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.allocations[a.Category]
	if !ok {
		return fmt.Errorf("%w: allocation %q", domain.ErrNotFound, a.Category)
	}
	if cur.ReleasedAmount != prevReleased {
		return fmt.Errorf("%w: allocation %q released %d, expected %d", domain.ErrInvalidState, a.Category, cur.ReleasedAmount, prevReleased)
	}
	if cur.PendingTxRef != pendingRef {
		return fmt.Errorf("%w: allocation %q pending transfer is %q, expected %q", domain.ErrInvalidState, a.Category, cur.PendingTxRef, pendingRef)
	}
	cur.ReleasedAmount = a.ReleasedAmount
	cur.PendingTxRef = a.PendingTxRef
	cur.PendingAmount = a.PendingAmount
	cur.LastReleasedAt = a.LastReleasedAt
	cur.UpdatedOn = s.now()
	s.allocations[a.Category] = cur
	a.UpdatedOn = cur.UpdatedOn
	return nil
}

func (s *AllocationStore) List(_ context.Context) ([]domain.VestingAllocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.VestingAllocation, 0, len(s.allocations))
	for _, a := range s.allocations {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}
