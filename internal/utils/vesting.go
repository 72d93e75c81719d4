package utils

import (
	"fmt"
	"time"

	"aixblock-ledger/internal/domain"
)

// VestedAmount returns the cumulative amount unlocked for total under s at now.
//
//	now < Start                  -> 0
//	Start <= now < CliffEnd      -> TGE share
//	CliffEnd <= now < End        -> TGE + (total-TGE) * elapsed / Vesting  (floor)
//	now >= End                   -> total
//
// The result never exceeds total.
func VestedAmount(total uint64, s domain.VestingSchedule, now time.Time) (uint64, error) {
	if s.TGEUnlockBps > BasisPoints {
		return 0, fmt.Errorf("%w: tge unlock %d bps exceeds %d", domain.ErrInvalidArgument, s.TGEUnlockBps, BasisPoints)
	}
	if s.Cliff < 0 || s.Vesting < 0 {
		return 0, fmt.Errorf("%w: negative schedule duration", domain.ErrInvalidArgument)
	}
	if now.Before(s.Start) {
		return 0, nil
	}
	if !now.Before(s.End()) {
		return total, nil
	}

	tge, err := MulDiv(total, uint64(s.TGEUnlockBps), BasisPoints)
	if err != nil {
		return 0, err
	}
	if now.Before(s.CliffEnd()) {
		return tge, nil
	}

	// Vesting > 0 here: with a zero window End == CliffEnd and now >= End returned above.
	remaining, err := SubAmount(total, tge)
	if err != nil {
		return 0, err
	}
	elapsed := now.Sub(s.CliffEnd())
	linear, err := MulDiv(remaining, uint64(elapsed), uint64(s.Vesting))
	if err != nil {
		return 0, err
	}
	vested, err := AddAmount(tge, linear)
	if err != nil {
		return 0, err
	}
	return MinAmount(vested, total), nil
}
