package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"aixblock-ledger/internal/domain"
	"aixblock-ledger/internal/lock"
	"aixblock-ledger/internal/logger"
	"aixblock-ledger/internal/repository"
	"aixblock-ledger/internal/settlement"
	"aixblock-ledger/internal/utils"

	"github.com/google/uuid"
)

type vestingService struct {
	allocRepo  repository.AllocationRepository
	locker     lock.Locker
	tokens     settlement.TokenLedger
	deployment domain.Deployment
	clock      func() time.Time
}

// NewVestingService builds the registry. clock is read once per release; nil means
// time.Now.
func NewVestingService(
	allocRepo repository.AllocationRepository,
	locker lock.Locker,
	tokens settlement.TokenLedger,
	deployment domain.Deployment,
	clock func() time.Time,
) VestingService {
	if clock == nil {
		clock = time.Now
	}
	return &vestingService{
		allocRepo:  allocRepo,
		locker:     locker,
		tokens:     tokens,
		deployment: deployment,
		clock:      clock,
	}
}

// Initialize seeds the given categories. A category that already exists with the same
// total is left untouched; a different total is rejected since totals never change.
func (s *vestingService) Initialize(ctx context.Context, allocs []domain.VestingAllocation) error {
	logger.EnterMethod("vestingService.Initialize", "count", len(allocs))

	for i := range allocs {
		a := allocs[i]
		if err := validateAllocation(&a); err != nil {
			logger.ExitMethodWithError("vestingService.Initialize", err, "category", a.Category)
			return err
		}
		a.ReleasedAmount = 0
		a.LastReleasedAt = nil
		a.PendingTxRef = ""
		a.PendingAmount = 0

		err := s.allocRepo.Create(ctx, &a)
		if errors.Is(err, domain.ErrAlreadyExists) {
			err = s.checkExisting(ctx, &a)
		}
		if err != nil {
			logger.ExitMethodWithError("vestingService.Initialize", err, "category", a.Category)
			return err
		}
	}

	logger.ExitMethod("vestingService.Initialize", "count", len(allocs))
	return nil
}

func validateAllocation(a *domain.VestingAllocation) error {
	if a.Category == "" {
		return fmt.Errorf("%w: category is required", domain.ErrInvalidArgument)
	}
	if a.Account == "" {
		a.Account = domain.VestingKey(a.Category)
	}
	// Surfaces bad schedules at seed time instead of on the first release.
	_, err := utils.VestedAmount(a.TotalAllocation, a.Schedule, a.Schedule.End())
	return err
}

func (s *vestingService) checkExisting(ctx context.Context, a *domain.VestingAllocation) error {
	existing, err := s.allocRepo.Get(ctx, a.Category)
	if err != nil {
		return err
	}
	if existing.TotalAllocation != a.TotalAllocation {
		return fmt.Errorf("%w: allocation %q already seeded with total %d, got %d",
			domain.ErrInvalidArgument, a.Category, existing.TotalAllocation, a.TotalAllocation)
	}
	return nil
}

func (s *vestingService) ReleaseVestedTokens(ctx context.Context, category string) (*domain.VestingRelease, error) {
	logger.EnterMethod("vestingService.ReleaseVestedTokens", "category", category)

	release, err := s.release(ctx, category)
	if err != nil {
		logger.ExitMethodWithError("vestingService.ReleaseVestedTokens", err, "category", category)
		return nil, err
	}

	logger.ExitMethod("vestingService.ReleaseVestedTokens", "category", category, "amount", release.Amount, "vested", release.VestedTotal)
	return release, nil
}

func (s *vestingService) release(ctx context.Context, category string) (*domain.VestingRelease, error) {
	unlock, err := s.locker.Lock(ctx, domain.VestingKey(category))
	if err != nil {
		return nil, err
	}
	defer unlock()

	alloc, err := s.allocRepo.Get(ctx, category)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	vested, err := utils.VestedAmount(alloc.TotalAllocation, alloc.Schedule, now)
	if err != nil {
		return nil, err
	}
	release := &domain.VestingRelease{Category: category, VestedTotal: vested, ReleasedAt: now}

	// A pending release is resent as recorded before anything new is released.
	if alloc.PendingTxRef == "" {
		if vested <= alloc.ReleasedAmount {
			return release, nil
		}
		delta, err := utils.SubAmount(vested, alloc.ReleasedAmount)
		if err != nil {
			return nil, err
		}
		alloc.PendingTxRef = uuid.NewString()
		alloc.PendingAmount = delta
		if err := s.allocRepo.UpdateReleased(ctx, alloc, alloc.ReleasedAmount, ""); err != nil {
			return nil, err
		}
	}

	ref, amount := alloc.PendingTxRef, alloc.PendingAmount
	req := settlement.TransferRequest{Ref: ref, From: s.deployment.Treasury, To: alloc.Account, Amount: amount}
	if err := transfer(ctx, s.tokens, req); err != nil {
		if settlement.IsDefinitive(err) {
			s.dropPending(ctx, alloc)
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrTransferFailed, err)
	}

	prev := alloc.ReleasedAmount
	released, err := utils.AddAmount(prev, amount)
	if err != nil {
		return nil, err
	}
	alloc.ReleasedAmount = released
	alloc.PendingTxRef = ""
	alloc.PendingAmount = 0
	alloc.LastReleasedAt = &now
	if err := s.allocRepo.UpdateReleased(ctx, alloc, prev, ref); err != nil {
		logger.Error("Transfer settled but release was not persisted; a retry resends it",
			"category", category, "txRef", ref, "amount", amount, "error", err)
		return nil, err
	}

	release.Amount = amount
	release.TxRef = ref
	return release, nil
}

// dropPending forgets a release the token ledger refused.
func (s *vestingService) dropPending(ctx context.Context, alloc *domain.VestingAllocation) {
	cleared := *alloc
	cleared.PendingTxRef = ""
	cleared.PendingAmount = 0
	if err := s.allocRepo.UpdateReleased(ctx, &cleared, alloc.ReleasedAmount, alloc.PendingTxRef); err != nil {
		logger.Warn("Failed to clear refused release", "category", alloc.Category, "txRef", alloc.PendingTxRef, "error", err)
	}
}

// ReleaseAll releases every category. A failing category does not stop the others; the
// failures are joined into the returned error.
func (s *vestingService) ReleaseAll(ctx context.Context) ([]domain.VestingRelease, error) {
	logger.EnterMethod("vestingService.ReleaseAll")

	allocs, err := s.allocRepo.List(ctx)
	if err != nil {
		logger.ExitMethodWithError("vestingService.ReleaseAll", err)
		return nil, err
	}

	releases := make([]domain.VestingRelease, 0, len(allocs))
	var errs []error
	for _, a := range allocs {
		r, err := s.ReleaseVestedTokens(ctx, a.Category)
		if err != nil {
			errs = append(errs, fmt.Errorf("release %q: %w", a.Category, err))
			continue
		}
		releases = append(releases, *r)
	}

	if err := errors.Join(errs...); err != nil {
		logger.ExitMethodWithError("vestingService.ReleaseAll", err, "released", len(releases), "failed", len(errs))
		return releases, err
	}
	logger.ExitMethod("vestingService.ReleaseAll", "released", len(releases))
	return releases, nil
}

func (s *vestingService) BalanceOf(ctx context.Context, category string) (uint64, error) {
	alloc, err := s.allocRepo.Get(ctx, category)
	if err != nil {
		return 0, err
	}
	return alloc.Balance(), nil
}

func (s *vestingService) GetAllocation(ctx context.Context, category string) (*domain.VestingAllocation, error) {
	return s.allocRepo.Get(ctx, category)
}

func (s *vestingService) ListAllocations(ctx context.Context) ([]domain.VestingAllocation, error) {
	return s.allocRepo.List(ctx)
}
