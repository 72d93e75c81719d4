package settlement

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPPriceOracle_Convert(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Success", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/convert", r.URL.Path)
			assert.Equal(t, "100", r.URL.Query().Get("amount"))
			assert.Equal(t, "usd", r.URL.Query().Get("from"))
			assert.Equal(t, "axb-usd", r.URL.Query().Get("feed"))
			_ = json.NewEncoder(w).Encode(convertResponse{Amount: 2500, AsOf: now.Add(-time.Minute)})
		}))
		defer srv.Close()

		o := NewHTTPPriceOracle(srv.URL, "axb-usd", time.Hour, srv.Client())
		o.now = func() time.Time { return now }

		got, err := o.Convert(ctx, 100, "usd")
		require.NoError(t, err)
		assert.Equal(t, uint64(2500), got)
	})

	t.Run("Stale price", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(convertResponse{Amount: 2500, AsOf: now.Add(-2 * time.Hour)})
		}))
		defer srv.Close()

		o := NewHTTPPriceOracle(srv.URL, "axb-usd", time.Hour, srv.Client())
		o.now = func() time.Time { return now }

		_, err := o.Convert(ctx, 100, "usd")
		assert.ErrorIs(t, err, ErrStalePrice)
	})

	t.Run("Feed down", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		o := NewHTTPPriceOracle(srv.URL, "axb-usd", 0, srv.Client())
		_, err := o.Convert(ctx, 100, "usd")
		assert.ErrorIs(t, err, ErrPriceUnavailable)
	})
}

func TestHTTPTokenLedger_Transfer(t *testing.T) {
	ctx := context.Background()
	req := TransferRequest{Ref: "ref-1", From: "alice", To: "escrow", Amount: 42}

	t.Run("Success", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "ref-1", r.Header.Get("Idempotency-Key"))
			var body transferBody
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "AXB", body.Token)
			assert.Equal(t, uint64(42), body.Amount)
			w.WriteHeader(http.StatusCreated)
		}))
		defer srv.Close()

		l := NewHTTPTokenLedger(srv.URL, "AXB", srv.Client())
		assert.NoError(t, l.Transfer(ctx, req))
	})

	tests := []struct {
		name       string
		status     int
		code       string
		want       error
		definitive bool
	}{
		{"Payment required", http.StatusPaymentRequired, "", ErrInsufficientFunds, true},
		{"Insufficient funds code", http.StatusConflict, "insufficient_funds", ErrInsufficientFunds, true},
		{"Bad request", http.StatusBadRequest, "bad_account", ErrRejected, true},
		{"Server error", http.StatusBadGateway, "", ErrTransport, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_ = json.NewEncoder(w).Encode(errorBody{Code: tt.code, Message: "nope"})
			}))
			defer srv.Close()

			l := NewHTTPTokenLedger(srv.URL, "AXB", srv.Client())
			err := l.Transfer(ctx, req)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.definitive, IsDefinitive(err))
		})
	}

	t.Run("Unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		l := NewHTTPTokenLedger(url, "AXB", nil)
		err := l.Transfer(ctx, req)
		assert.ErrorIs(t, err, ErrTransport)
		assert.False(t, IsDefinitive(err))
	})
}

func TestHTTPTokenLedger_BalanceOf(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/accounts/vesting:Team%2FAdvisor/balance", r.URL.EscapedPath())
		assert.Equal(t, "AXB", r.URL.Query().Get("token"))
		_, _ = w.Write([]byte(`{"balance": 900}`))
	}))
	defer srv.Close()

	l := NewHTTPTokenLedger(srv.URL, "AXB", srv.Client())
	bal, err := l.BalanceOf(context.Background(), "vesting:Team/Advisor")
	require.NoError(t, err)
	assert.Equal(t, uint64(900), bal)
}

func TestMemoryTokenLedger(t *testing.T) {
	ctx := context.Background()

	t.Run("Moves balance", func(t *testing.T) {
		l := NewMemoryTokenLedger()
		l.Credit("alice", 100)

		require.NoError(t, l.Transfer(ctx, TransferRequest{Ref: "a", From: "alice", To: "bob", Amount: 60}))

		a, _ := l.BalanceOf(ctx, "alice")
		b, _ := l.BalanceOf(ctx, "bob")
		assert.Equal(t, uint64(40), a)
		assert.Equal(t, uint64(60), b)
	})

	t.Run("Insufficient funds leaves balances untouched", func(t *testing.T) {
		l := NewMemoryTokenLedger()
		l.Credit("alice", 10)

		err := l.Transfer(ctx, TransferRequest{Ref: "a", From: "alice", To: "bob", Amount: 11})
		assert.ErrorIs(t, err, ErrInsufficientFunds)

		a, _ := l.BalanceOf(ctx, "alice")
		b, _ := l.BalanceOf(ctx, "bob")
		assert.Equal(t, uint64(10), a)
		assert.Equal(t, uint64(0), b)
	})

	t.Run("Minter needs no balance", func(t *testing.T) {
		l := NewMemoryTokenLedger("treasury")
		require.NoError(t, l.Transfer(ctx, TransferRequest{Ref: "m", From: "treasury", To: "vesting:Seed", Amount: 500}))

		bal, _ := l.BalanceOf(ctx, "vesting:Seed")
		assert.Equal(t, uint64(500), bal)
	})

	t.Run("Duplicate ref is applied once", func(t *testing.T) {
		l := NewMemoryTokenLedger()
		l.Credit("alice", 100)
		req := TransferRequest{Ref: "same", From: "alice", To: "bob", Amount: 30}

		require.NoError(t, l.Transfer(ctx, req))
		require.NoError(t, l.Transfer(ctx, req))

		b, _ := l.BalanceOf(ctx, "bob")
		assert.Equal(t, uint64(30), b)
	})
}

func TestFixedRateOracle(t *testing.T) {
	o := FixedRateOracle{Numerator: 3, Denominator: 2}
	got, err := o.Convert(context.Background(), 100, "usd")
	require.NoError(t, err)
	assert.Equal(t, uint64(150), got)

	_, err = FixedRateOracle{}.Convert(context.Background(), 1, "usd")
	assert.ErrorIs(t, err, ErrPriceUnavailable)
}
