package service

import (
	"context"
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

type rentalService struct {
	rentalRepo repository.RentalRepository
	locker     lock.Locker
	oracle     settlement.PriceOracle
	tokens     settlement.TokenLedger
	deployment domain.Deployment
	now        func() time.Time
}

func NewRentalService(
	rentalRepo repository.RentalRepository,
	locker lock.Locker,
	oracle settlement.PriceOracle,
	tokens settlement.TokenLedger,
	deployment domain.Deployment,
) RentalService {
	return &rentalService{
		rentalRepo: rentalRepo,
		locker:     locker,
		oracle:     oracle,
		tokens:     tokens,
		deployment: deployment,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func ownerKey(owner string) string {
	return "owner:" + owner
}

func (s *rentalService) RentAdd(ctx context.Context, owner string, price uint64, kind domain.DurationKind) (*domain.Rental, error) {
	logger.EnterMethod("rentalService.RentAdd", "owner", owner, "price", price, "durationKind", kind)

	if owner == "" {
		err := fmt.Errorf("%w: owner is required", domain.ErrInvalidArgument)
		logger.ExitMethodWithError("rentalService.RentAdd", err)
		return nil, err
	}
	if !kind.Valid() {
		err := fmt.Errorf("%w: unknown duration kind %d", domain.ErrInvalidArgument, uint8(kind))
		logger.ExitMethodWithError("rentalService.RentAdd", err, "owner", owner)
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, ownerKey(owner))
	if err != nil {
		logger.ExitMethodWithError("rentalService.RentAdd", err, "owner", owner)
		return nil, err
	}
	defer unlock()

	index, err := s.rentalRepo.NextIndex(ctx, owner)
	if err != nil {
		logger.ExitMethodWithError("rentalService.RentAdd", err, "owner", owner)
		return nil, err
	}

	rental := &domain.Rental{
		Owner:        owner,
		Index:        index,
		RentalPrice:  price,
		DurationKind: kind,
		Status:       domain.RentalStatusCreated,
	}
	if err := s.rentalRepo.Create(ctx, rental); err != nil {
		logger.ExitMethodWithError("rentalService.RentAdd", err, "owner", owner, "index", index)
		return nil, err
	}

	logger.ExitMethod("rentalService.RentAdd", "owner", owner, "index", index)
	return rental, nil
}

func (s *rentalService) RentModify(ctx context.Context, owner string, index uint64, newPrice uint64) (*domain.Rental, error) {
	logger.EnterMethod("rentalService.RentModify", "owner", owner, "index", index, "newPrice", newPrice)

	rental, err := s.withRental(ctx, "modify", owner, index, domain.RentalStatusCreated, func(r *domain.Rental) error {
		if r.HasPendingTransfer() {
			return pendingTransferError(r)
		}
		r.RentalPrice = newPrice
		return nil
	})
	if err != nil {
		logger.ExitMethodWithError("rentalService.RentModify", err, "owner", owner, "index", index)
		return nil, err
	}

	logger.ExitMethod("rentalService.RentModify", "owner", owner, "index", index)
	return rental, nil
}

func (s *rentalService) RentRemove(ctx context.Context, owner string, index uint64) (*domain.Rental, error) {
	logger.EnterMethod("rentalService.RentRemove", "owner", owner, "index", index)

	rental, err := s.withRental(ctx, "remove", owner, index, domain.RentalStatusCreated, func(r *domain.Rental) error {
		if r.HasPendingTransfer() {
			return pendingTransferError(r)
		}
		r.Status = domain.RentalStatusRemoved
		return nil
	})
	if err != nil {
		logger.ExitMethodWithError("rentalService.RentRemove", err, "owner", owner, "index", index)
		return nil, err
	}

	logger.ExitMethod("rentalService.RentRemove", "owner", owner, "index", index)
	return rental, nil
}

func (s *rentalService) StartRental(ctx context.Context, renter, owner string, index uint64) (*domain.Rental, error) {
	logger.EnterMethod("rentalService.StartRental", "renter", renter, "owner", owner, "index", index)

	if renter == "" {
		err := fmt.Errorf("%w: renter is required", domain.ErrInvalidArgument)
		logger.ExitMethodWithError("rentalService.StartRental", err, "owner", owner, "index", index)
		return nil, err
	}

	rental, err := s.withRental(ctx, "start", owner, index, domain.RentalStatusCreated, func(r *domain.Rental) error {
		if r.HasPendingTransfer() && r.Renter != renter {
			return pendingTransferError(r)
		}
		r.Renter = renter

		req := settlement.TransferRequest{From: renter, To: s.deployment.EscrowAccount}
		quote := func() (uint64, error) { return s.convert(ctx, r.RentalPrice) }
		if err := s.settle(ctx, r, domain.RentalStatusCreated, req, quote); err != nil {
			return err
		}

		now := s.now()
		r.Status = domain.RentalStatusActive
		r.EscrowedAmount = r.PendingAmount
		r.StartTxRef = r.PendingTxRef
		r.StartedAt = &now
		return nil
	})
	if err != nil {
		logger.ExitMethodWithError("rentalService.StartRental", err, "owner", owner, "index", index)
		return nil, err
	}

	logger.ExitMethod("rentalService.StartRental", "owner", owner, "index", index, "escrowed", rental.EscrowedAmount)
	return rental, nil
}

func (s *rentalService) DiscontinueRental(ctx context.Context, owner string, index uint64) (*domain.Rental, error) {
	logger.EnterMethod("rentalService.DiscontinueRental", "owner", owner, "index", index)

	rental, err := s.withRental(ctx, "discontinue", owner, index, domain.RentalStatusActive, func(r *domain.Rental) error {
		now := s.now()
		r.Status = domain.RentalStatusDiscontinued
		r.DiscontinuedAt = &now
		return nil
	})
	if err != nil {
		logger.ExitMethodWithError("rentalService.DiscontinueRental", err, "owner", owner, "index", index)
		return nil, err
	}

	logger.ExitMethod("rentalService.DiscontinueRental", "owner", owner, "index", index)
	return rental, nil
}

// PayoutRental pays the owner the current value of the rental price, capped at what was
// escrowed when it started. Any remainder stays with the escrow account.
func (s *rentalService) PayoutRental(ctx context.Context, owner string, index uint64) (*domain.Rental, error) {
	logger.EnterMethod("rentalService.PayoutRental", "owner", owner, "index", index)

	rental, err := s.withRental(ctx, "payout", owner, index, domain.RentalStatusDiscontinued, func(r *domain.Rental) error {
		req := settlement.TransferRequest{From: s.deployment.EscrowAccount, To: r.Owner}
		quote := func() (uint64, error) {
			converted, err := s.convert(ctx, r.RentalPrice)
			if err != nil {
				return 0, err
			}
			return utils.MinAmount(converted, r.EscrowedAmount), nil
		}
		if err := s.settle(ctx, r, domain.RentalStatusDiscontinued, req, quote); err != nil {
			return err
		}

		now := s.now()
		r.Status = domain.RentalStatusPaidOut
		r.PaidOutAmount = r.PendingAmount
		r.PayoutTxRef = r.PendingTxRef
		r.PaidOutAt = &now
		return nil
	})
	if err != nil {
		logger.ExitMethodWithError("rentalService.PayoutRental", err, "owner", owner, "index", index)
		return nil, err
	}

	logger.ExitMethod("rentalService.PayoutRental", "owner", owner, "index", index, "paidOut", rental.PaidOutAmount)
	return rental, nil
}

func (s *rentalService) GetRental(ctx context.Context, owner string, index uint64) (*domain.Rental, error) {
	return s.rentalRepo.Get(ctx, owner, index)
}

func (s *rentalService) ListRentals(ctx context.Context, owner string) ([]domain.Rental, error) {
	return s.rentalRepo.ListByOwner(ctx, owner)
}

// withRental runs apply on the rental under its key lock, provided the rental is in status
// from. The mutated copy is written only when apply succeeds, and the write clears any
// pending transfer apply settled.
func (s *rentalService) withRental(ctx context.Context, op, owner string, index uint64, from domain.RentalStatus, apply func(*domain.Rental) error) (*domain.Rental, error) {
	unlock, err := s.locker.Lock(ctx, domain.RentalKey(owner, index))
	if err != nil {
		return nil, err
	}
	defer unlock()

	rental, err := s.rentalRepo.Get(ctx, owner, index)
	if err != nil {
		return nil, err
	}
	if rental.Status != from {
		return nil, &domain.StateError{Op: op, Current: rental.Status, Want: from}
	}

	if err := apply(rental); err != nil {
		return nil, err
	}
	if rental.Status != from && !domain.CanTransition(from, rental.Status) {
		return nil, &domain.StateError{Op: op, Current: from, Want: rental.Status}
	}

	pendingRef := rental.PendingTxRef
	rental.PendingTxRef = ""
	rental.PendingAmount = 0
	if err := s.rentalRepo.Update(ctx, rental, from, pendingRef); err != nil {
		if pendingRef != "" {
			logger.Error("Transfer settled but rental was not persisted; a retry resends it",
				"rental", rental.Key(), "status", rental.Status, "txRef", pendingRef, "error", err)
		}
		return nil, err
	}
	return rental, nil
}

// settle sends the transfer paying for the edge out of from. Ref and amount are stored
// on the rental before the token ledger is called and reused while they stay pending,
// so a retry after a failed write resends the same transfer. A zero quote sends nothing.
func (s *rentalService) settle(ctx context.Context, r *domain.Rental, from domain.RentalStatus, req settlement.TransferRequest, quote func() (uint64, error)) error {
	if !r.HasPendingTransfer() {
		amount, err := quote()
		if err != nil {
			return err
		}
		if amount == 0 {
			return nil
		}
		r.PendingTxRef = uuid.NewString()
		r.PendingAmount = amount
		if err := s.rentalRepo.Update(ctx, r, from, ""); err != nil {
			return err
		}
	}

	req.Ref = r.PendingTxRef
	req.Amount = r.PendingAmount
	if err := transfer(ctx, s.tokens, req); err != nil {
		if settlement.IsDefinitive(err) {
			s.dropPending(ctx, r, from)
		}
		return fmt.Errorf("%w: %w", domain.ErrPaymentFailed, err)
	}
	return nil
}

// dropPending forgets a transfer the token ledger refused.
func (s *rentalService) dropPending(ctx context.Context, r *domain.Rental, from domain.RentalStatus) {
	cleared := *r
	cleared.PendingTxRef = ""
	cleared.PendingAmount = 0
	if from == domain.RentalStatusCreated {
		cleared.Renter = ""
	}
	if err := s.rentalRepo.Update(ctx, &cleared, from, r.PendingTxRef); err != nil {
		logger.Warn("Failed to clear refused transfer", "rental", r.Key(), "txRef", r.PendingTxRef, "error", err)
	}
}

func pendingTransferError(r *domain.Rental) error {
	return fmt.Errorf("%w: rental %s has a pending transfer %s", domain.ErrInvalidState, r.Key(), r.PendingTxRef)
}

func (s *rentalService) convert(ctx context.Context, price uint64) (uint64, error) {
	logger.ExternalServiceCall("price-oracle", "Convert", "amount", price, "unit", s.deployment.ReferenceUnit)
	amount, err := s.oracle.Convert(ctx, price, s.deployment.ReferenceUnit)
	logger.ExternalServiceResult("price-oracle", "Convert", err, "amount", price)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrOracleUnavailable, err)
	}
	return amount, nil
}

// transfer is the one place token ledger calls are logged.
func transfer(ctx context.Context, tokens settlement.TokenLedger, req settlement.TransferRequest) error {
	logger.ExternalServiceCall("token-ledger", "Transfer", "ref", req.Ref, "from", req.From, "to", req.To, "amount", req.Amount)
	err := tokens.Transfer(ctx, req)
	logger.ExternalServiceResult("token-ledger", "Transfer", err, "ref", req.Ref)
	return err
}
