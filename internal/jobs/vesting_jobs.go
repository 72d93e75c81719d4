package jobs

import (
	"context"
	"time"

	"aixblock-ledger/internal/logger"
)

// SeedAllocations creates any configured vesting category that is not stored yet.
func (jr *JobRunner) SeedAllocations() {
	jr.runWithRecovery("SeedAllocations", func() {
		ctx, cancel := context.WithTimeout(context.Background(), jr.timeout)
		defer cancel()

		allocs := jr.config.VestingAllocations(time.Now())
		if err := jr.services.Vesting.Initialize(ctx, allocs); err != nil {
			logger.Error("Failed to seed vesting allocations", "error", err)
			return
		}
		logger.Info("Vesting allocations seeded", "count", len(allocs))
	})
}

// ReleaseVestedTokens releases whatever has vested since the last run for every
// category. Categories that fail are retried on the next run.
func (jr *JobRunner) ReleaseVestedTokens() {
	jr.runWithRecovery("ReleaseVestedTokens", func() {
		ctx, cancel := context.WithTimeout(context.Background(), jr.timeout)
		defer cancel()

		releases, err := jr.services.Vesting.ReleaseAll(ctx)

		var total uint64
		released := 0
		for _, r := range releases {
			if r.Amount == 0 {
				continue
			}
			released++
			total += r.Amount
			logger.Info("Released vested tokens", "category", r.Category, "amount", r.Amount, "vestedTotal", r.VestedTotal, "txRef", r.TxRef)
		}
		if err != nil {
			logger.Error("Some categories failed to release", "error", err)
		}

		logger.Info("Vested token release finished", "categories", len(releases), "released", released, "amount", total)
	})
}
