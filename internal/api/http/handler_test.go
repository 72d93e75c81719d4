package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"aixblock-ledger/internal/domain"
	"aixblock-ledger/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRentalService struct {
	mock.Mock
}

func (m *MockRentalService) rental(args mock.Arguments) (*domain.Rental, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Rental), args.Error(1)
}

func (m *MockRentalService) RentAdd(ctx context.Context, owner string, price uint64, kind domain.DurationKind) (*domain.Rental, error) {
	return m.rental(m.Called(ctx, owner, price, kind))
}
func (m *MockRentalService) RentModify(ctx context.Context, owner string, index uint64, newPrice uint64) (*domain.Rental, error) {
	return m.rental(m.Called(ctx, owner, index, newPrice))
}
func (m *MockRentalService) RentRemove(ctx context.Context, owner string, index uint64) (*domain.Rental, error) {
	return m.rental(m.Called(ctx, owner, index))
}
func (m *MockRentalService) StartRental(ctx context.Context, renter, owner string, index uint64) (*domain.Rental, error) {
	return m.rental(m.Called(ctx, renter, owner, index))
}
func (m *MockRentalService) DiscontinueRental(ctx context.Context, owner string, index uint64) (*domain.Rental, error) {
	return m.rental(m.Called(ctx, owner, index))
}
func (m *MockRentalService) PayoutRental(ctx context.Context, owner string, index uint64) (*domain.Rental, error) {
	return m.rental(m.Called(ctx, owner, index))
}
func (m *MockRentalService) GetRental(ctx context.Context, owner string, index uint64) (*domain.Rental, error) {
	return m.rental(m.Called(ctx, owner, index))
}
func (m *MockRentalService) ListRentals(ctx context.Context, owner string) ([]domain.Rental, error) {
	args := m.Called(ctx, owner)
	return args.Get(0).([]domain.Rental), args.Error(1)
}

type MockVestingService struct {
	mock.Mock
}

func (m *MockVestingService) Initialize(ctx context.Context, allocs []domain.VestingAllocation) error {
	return m.Called(ctx, allocs).Error(0)
}
func (m *MockVestingService) ReleaseVestedTokens(ctx context.Context, category string) (*domain.VestingRelease, error) {
	args := m.Called(ctx, category)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.VestingRelease), args.Error(1)
}
func (m *MockVestingService) ReleaseAll(ctx context.Context) ([]domain.VestingRelease, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.VestingRelease), args.Error(1)
}
func (m *MockVestingService) BalanceOf(ctx context.Context, category string) (uint64, error) {
	args := m.Called(ctx, category)
	return args.Get(0).(uint64), args.Error(1)
}
func (m *MockVestingService) GetAllocation(ctx context.Context, category string) (*domain.VestingAllocation, error) {
	args := m.Called(ctx, category)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.VestingAllocation), args.Error(1)
}
func (m *MockVestingService) ListAllocations(ctx context.Context) ([]domain.VestingAllocation, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.VestingAllocation), args.Error(1)
}

type fixture struct {
	rentals *MockRentalService
	vesting *MockVestingService
	router  http.Handler
}

func newFixture(health func(ctx context.Context) error) *fixture {
	f := &fixture{rentals: new(MockRentalService), vesting: new(MockVestingService)}
	deployment := service.NewDeploymentService(domain.Deployment{Owner: "deployer", Token: "AXB", PriceFeed: "axb-usd"})
	f.router = NewRouter(NewHandler(f.rentals, f.vesting, deployment, health), nil)
	return f
}

func (f *fixture) do(method, path, account, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if account != "" {
		req.Header.Set(AccountHeader, account)
	}
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHandler_RentAdd(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		f := newFixture(nil)
		f.rentals.On("RentAdd", mock.Anything, "alice", uint64(100), domain.DurationKindWeekly).
			Return(&domain.Rental{Owner: "alice", Index: 0, RentalPrice: 100, DurationKind: domain.DurationKindWeekly, Status: domain.RentalStatusCreated}, nil)

		rec := f.do("POST", "/api/v1/rentals", "alice", `{"price": 100, "duration_kind": 1}`)
		assert.Equal(t, http.StatusCreated, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, "CREATED", body["status"])
		assert.Equal(t, false, body["is_active"])
		assert.Equal(t, float64(100), body["rental_price"])
	})

	t.Run("Negative price", func(t *testing.T) {
		f := newFixture(nil)
		rec := f.do("POST", "/api/v1/rentals", "alice", `{"price": -1, "duration_kind": 0}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_argument", decode(t, rec)["code"])
		f.rentals.AssertNotCalled(t, "RentAdd", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Missing duration kind", func(t *testing.T) {
		f := newFixture(nil)
		rec := f.do("POST", "/api/v1/rentals", "alice", `{"price": 1}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Unknown duration kind", func(t *testing.T) {
		f := newFixture(nil)
		f.rentals.On("RentAdd", mock.Anything, "alice", uint64(1), domain.DurationKind(7)).
			Return(nil, fmt.Errorf("%w: unknown duration kind 7", domain.ErrInvalidArgument))

		rec := f.do("POST", "/api/v1/rentals", "alice", `{"price": 1, "duration_kind": 7}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Missing account", func(t *testing.T) {
		f := newFixture(nil)
		rec := f.do("POST", "/api/v1/rentals", "", `{"price": 1, "duration_kind": 0}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestHandler_OwnerScopedRoutes(t *testing.T) {
	f := newFixture(nil)
	f.rentals.On("RentModify", mock.Anything, "alice", uint64(3), uint64(250)).
		Return(&domain.Rental{Owner: "alice", Index: 3, RentalPrice: 250, Status: domain.RentalStatusCreated}, nil)
	f.rentals.On("RentRemove", mock.Anything, "alice", uint64(4)).
		Return(nil, &domain.StateError{Op: "remove", Current: domain.RentalStatusActive, Want: domain.RentalStatusCreated})

	rec := f.do("PATCH", "/api/v1/rentals/3", "alice", `{"price": "250"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(250), decode(t, rec)["rental_price"])

	rec = f.do("DELETE", "/api/v1/rentals/4", "alice", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_state", decode(t, rec)["code"])
}

func TestHandler_Lifecycle(t *testing.T) {
	f := newFixture(nil)
	now := time.Now()
	f.rentals.On("StartRental", mock.Anything, "bob", "alice", uint64(0)).
		Return(&domain.Rental{Owner: "alice", Status: domain.RentalStatusActive, Renter: "bob", EscrowedAmount: 2500, StartedAt: &now}, nil)
	f.rentals.On("DiscontinueRental", mock.Anything, "alice", uint64(0)).
		Return(&domain.Rental{Owner: "alice", Status: domain.RentalStatusDiscontinued}, nil)
	f.rentals.On("PayoutRental", mock.Anything, "alice", uint64(0)).
		Return(nil, fmt.Errorf("%w: %w", domain.ErrPaymentFailed, errors.New("ledger down"))).Once()

	rec := f.do("POST", "/api/v1/rentals/alice/0/start", "bob", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["is_active"])

	rec = f.do("POST", "/api/v1/rentals/alice/0/start", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do("POST", "/api/v1/rentals/alice/0/discontinue", "alice", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["is_active"])

	rec = f.do("POST", "/api/v1/rentals/alice/0/payout", "alice", "")
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "payment_failed", body["code"])
	assert.Equal(t, true, body["retryable"])
}

func TestHandler_ReadRentals(t *testing.T) {
	f := newFixture(nil)
	f.rentals.On("GetRental", mock.Anything, "alice", uint64(9)).Return(nil, fmt.Errorf("%w: rental alice/9", domain.ErrNotFound))
	f.rentals.On("ListRentals", mock.Anything, "alice").Return([]domain.Rental{
		{Owner: "alice", Index: 0, Status: domain.RentalStatusRemoved},
		{Owner: "alice", Index: 1, Status: domain.RentalStatusActive},
	}, nil)

	rec := f.do("GET", "/api/v1/rentals/alice/9", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do("GET", "/api/v1/rentals/alice/x", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do("GET", "/api/v1/rentals/alice", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode(t, rec)["rentals"].([]interface{})
	require.Len(t, list, 2)
	assert.Equal(t, true, list[1].(map[string]interface{})["is_active"])
}

func TestHandler_Vesting(t *testing.T) {
	f := newFixture(nil)
	f.vesting.On("BalanceOf", mock.Anything, "Team/Advisor").Return(uint64(600_000), nil)
	f.vesting.On("ReleaseVestedTokens", mock.Anything, "Seed").
		Return(&domain.VestingRelease{Category: "Seed", Amount: 500, VestedTotal: 500, TxRef: "ref"}, nil)
	f.vesting.On("ReleaseVestedTokens", mock.Anything, "Nope").Return(nil, fmt.Errorf("%w: allocation \"Nope\"", domain.ErrNotFound))
	f.vesting.On("ListAllocations", mock.Anything).Return([]domain.VestingAllocation{{Category: "Seed"}}, nil)
	f.vesting.On("GetAllocation", mock.Anything, "Seed").Return(&domain.VestingAllocation{Category: "Seed", TotalAllocation: 1000}, nil)

	rec := f.do("GET", "/api/v1/vesting/Team%2FAdvisor/balance", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Team/Advisor", body["category"])
	assert.Equal(t, float64(600_000), body["balance"])

	rec = f.do("POST", "/api/v1/vesting/Seed/release", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(500), decode(t, rec)["amount"])

	rec = f.do("POST", "/api/v1/vesting/Nope/release", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do("GET", "/api/v1/vesting", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["allocations"], 1)

	rec = f.do("GET", "/api/v1/vesting/Seed", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1000), decode(t, rec)["total_allocation"])
}

func TestHandler_DeploymentAndHealth(t *testing.T) {
	f := newFixture(nil)
	rec := f.do("GET", "/api/v1/deployment", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "deployer", body["owner"])
	assert.Equal(t, "AXB", body["token"])
	assert.Equal(t, "axb-usd", body["price_feed"])

	rec = f.do("GET", "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	down := newFixture(func(context.Context) error { return errors.New("db down") })
	rec = down.do("GET", "/healthz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrInvalidArgument, http.StatusBadRequest},
		{domain.ErrNotFound, http.StatusNotFound},
		{&domain.StateError{Op: "start"}, http.StatusConflict},
		{domain.ErrBusy, http.StatusConflict},
		{domain.ErrPaymentFailed, http.StatusPaymentRequired},
		{domain.ErrTransferFailed, http.StatusPaymentRequired},
		{domain.ErrOracleUnavailable, http.StatusServiceUnavailable},
		{fmt.Errorf("%w: overflow", domain.ErrArithmetic), http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		status, _ := classify(tt.err)
		assert.Equal(t, tt.want, status, tt.err.Error())
	}
}
