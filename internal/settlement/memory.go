package settlement

import (
	"context"
	"fmt"
	"math/bits"
	"sync"
)

// FixedRateOracle converts at a constant rate of Numerator/Denominator settlement units
// per reference unit. It serves development mode and tests.
type FixedRateOracle struct {
	Numerator   uint64
	Denominator uint64
}

func (o FixedRateOracle) Convert(_ context.Context, amount uint64, _ string) (uint64, error) {
	if o.Denominator == 0 {
		return 0, fmt.Errorf("%w: zero denominator", ErrPriceUnavailable)
	}
	hi, lo := bits.Mul64(amount, o.Numerator)
	if hi >= o.Denominator {
		return 0, fmt.Errorf("%w: conversion of %d overflows", ErrPriceUnavailable, amount)
	}
	q, _ := bits.Div64(hi, lo, o.Denominator)
	return q, nil
}

// MemoryTokenLedger keeps balances in process. Accounts listed as minters may transfer
// without a balance, which models the mint authority the vesting treasury relies on.
// Transfers are deduplicated by Ref.
type MemoryTokenLedger struct {
	mu       sync.Mutex
	balances map[string]uint64
	minters  map[string]struct{}
	seen     map[string]struct{}
}

func NewMemoryTokenLedger(minters ...string) *MemoryTokenLedger {
	m := &MemoryTokenLedger{
		balances: make(map[string]uint64),
		minters:  make(map[string]struct{}),
		seen:     make(map[string]struct{}),
	}
	for _, a := range minters {
		m.minters[a] = struct{}{}
	}
	return m
}

// Credit adds amount to account outside of any transfer (faucet for dev/test setups).
func (m *MemoryTokenLedger) Credit(account string, amount uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[account] += amount
}

func (m *MemoryTokenLedger) Transfer(_ context.Context, req TransferRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if req.Ref != "" {
		if _, dup := m.seen[req.Ref]; dup {
			return nil
		}
	}
	if req.From == "" || req.To == "" {
		return fmt.Errorf("%w: empty account", ErrRejected)
	}

	_, minter := m.minters[req.From]
	if !minter && m.balances[req.From] < req.Amount {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientFunds, req.From, m.balances[req.From], req.Amount)
	}
	if _, carry := bits.Add64(m.balances[req.To], req.Amount, 0); carry != 0 {
		return fmt.Errorf("%w: balance overflow for %s", ErrRejected, req.To)
	}
	if !minter {
		m.balances[req.From] -= req.Amount
	}
	m.balances[req.To] += req.Amount

	if req.Ref != "" {
		m.seen[req.Ref] = struct{}{}
	}
	return nil
}

func (m *MemoryTokenLedger) BalanceOf(_ context.Context, account string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[account], nil
}
