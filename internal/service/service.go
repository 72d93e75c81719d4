package service

import (
	"context"

	"aixblock-ledger/internal/domain"
)

// RentalService drives rentals through Created → Active → Discontinued → PaidOut, with
// Removed reachable from Created. Every state-advancing call is valid from exactly one
// source state, so a retry after success fails with domain.ErrInvalidState.
type RentalService interface {
	RentAdd(ctx context.Context, owner string, price uint64, kind domain.DurationKind) (*domain.Rental, error)
	RentModify(ctx context.Context, owner string, index uint64, newPrice uint64) (*domain.Rental, error)
	RentRemove(ctx context.Context, owner string, index uint64) (*domain.Rental, error)
	StartRental(ctx context.Context, renter, owner string, index uint64) (*domain.Rental, error)
	DiscontinueRental(ctx context.Context, owner string, index uint64) (*domain.Rental, error)
	PayoutRental(ctx context.Context, owner string, index uint64) (*domain.Rental, error)
	GetRental(ctx context.Context, owner string, index uint64) (*domain.Rental, error)
	ListRentals(ctx context.Context, owner string) ([]domain.Rental, error)
}

// VestingService releases tokens to allocation categories along each category's schedule.
type VestingService interface {
	Initialize(ctx context.Context, allocs []domain.VestingAllocation) error
	ReleaseVestedTokens(ctx context.Context, category string) (*domain.VestingRelease, error)
	ReleaseAll(ctx context.Context) ([]domain.VestingRelease, error)
	BalanceOf(ctx context.Context, category string) (uint64, error)
	GetAllocation(ctx context.Context, category string) (*domain.VestingAllocation, error)
	ListAllocations(ctx context.Context) ([]domain.VestingAllocation, error)
}

type DeploymentService interface {
	GetDeployment(ctx context.Context) domain.Deployment
}

type deploymentService struct {
	deployment domain.Deployment
}

func NewDeploymentService(d domain.Deployment) DeploymentService {
	return &deploymentService{deployment: d}
}

func (s *deploymentService) GetDeployment(_ context.Context) domain.Deployment {
	return s.deployment
}
