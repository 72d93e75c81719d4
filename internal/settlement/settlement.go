// Package settlement defines the external collaborators the ledger settles through:
// a price oracle that converts reference-unit prices into the settlement token, and a
// token ledger that moves that token between accounts.
package settlement

import (
	"context"
	"errors"
)

// Oracle failures.
var (
	ErrPriceUnavailable = errors.New("settlement: price unavailable")
	ErrStalePrice       = errors.New("settlement: stale price")
)

// Token ledger failures. ErrInsufficientFunds and ErrRejected are final answers from the
// ledger; ErrTransport means the outcome is unknown because the ledger was unreachable.
var (
	ErrInsufficientFunds = errors.New("settlement: insufficient funds")
	ErrRejected          = errors.New("settlement: transfer rejected")
	ErrTransport         = errors.New("settlement: token ledger unreachable")
)

// IsDefinitive reports whether err is a final answer from the token ledger, meaning the
// transfer did not happen and will not happen under the same ref.
func IsDefinitive(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) || errors.Is(err, ErrRejected)
}

// PriceOracle converts an amount quoted in fromUnit into the settlement token's smallest unit.
type PriceOracle interface {
	Convert(ctx context.Context, amount uint64, fromUnit string) (uint64, error)
}

// TransferRequest moves Amount of the settlement token. Ref is unique per lifecycle edge
// and lets the token ledger deduplicate a resend of the same request.
type TransferRequest struct {
	Ref    string `json:"ref"`
	From   string `json:"from"`
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// TokenLedger is the fungible-token transfer surface.
type TokenLedger interface {
	Transfer(ctx context.Context, req TransferRequest) error
	BalanceOf(ctx context.Context, account string) (uint64, error)
}
