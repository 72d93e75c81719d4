package service

import (
	"context"

	"aixblock-ledger/internal/settlement"

	"github.com/stretchr/testify/mock"
)

// MockPriceOracle
type MockPriceOracle struct {
	mock.Mock
}

func (m *MockPriceOracle) Convert(ctx context.Context, amount uint64, fromUnit string) (uint64, error) {
	args := m.Called(ctx, amount, fromUnit)
	return args.Get(0).(uint64), args.Error(1)
}

// MockTokenLedger
type MockTokenLedger struct {
	mock.Mock
}

func (m *MockTokenLedger) Transfer(ctx context.Context, req settlement.TransferRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockTokenLedger) BalanceOf(ctx context.Context, account string) (uint64, error) {
	args := m.Called(ctx, account)
	return args.Get(0).(uint64), args.Error(1)
}
