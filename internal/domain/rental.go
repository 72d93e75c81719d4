package domain

import (
	"fmt"
	"time"
)

type RentalStatus string

const (
	RentalStatusCreated      RentalStatus = "CREATED"
	RentalStatusActive       RentalStatus = "ACTIVE"
	RentalStatusDiscontinued RentalStatus = "DISCONTINUED"
	RentalStatusPaidOut      RentalStatus = "PAID_OUT"
	RentalStatusRemoved      RentalStatus = "REMOVED"
)

// rentalTransitions lists the only edges a rental may take. Terminal states map to
// an empty set.
var rentalTransitions = map[RentalStatus]map[RentalStatus]struct{}{
	RentalStatusCreated:      {RentalStatusActive: {}, RentalStatusRemoved: {}},
	RentalStatusActive:       {RentalStatusDiscontinued: {}},
	RentalStatusDiscontinued: {RentalStatusPaidOut: {}},
	RentalStatusPaidOut:      {},
	RentalStatusRemoved:      {},
}

// CanTransition reports whether a rental in status from may move to status to.
func CanTransition(from, to RentalStatus) bool {
	next, ok := rentalTransitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// IsTerminal reports whether no further transition is possible from s.
func (s RentalStatus) IsTerminal() bool {
	next, ok := rentalTransitions[s]
	return ok && len(next) == 0
}

type DurationKind uint8

const (
	DurationKindDaily DurationKind = iota
	DurationKindWeekly
	DurationKindMonthly
)

func (k DurationKind) Valid() bool {
	return k <= DurationKindMonthly
}

func (k DurationKind) String() string {
	switch k {
	case DurationKindDaily:
		return "daily"
	case DurationKindWeekly:
		return "weekly"
	case DurationKindMonthly:
		return "monthly"
	}
	return fmt.Sprintf("DurationKind(%d)", uint8(k))
}

type Rental struct {
	Owner        string       `json:"owner"`
	Index        uint64       `json:"index"`
	RentalPrice  uint64       `json:"rental_price"`
	DurationKind DurationKind `json:"duration_kind"`
	Status       RentalStatus `json:"status"`
	// Renter is set when the rental is started and is the account charged into escrow.
	Renter         string     `json:"renter,omitempty"`
	EscrowedAmount uint64     `json:"escrowed_amount"`
	PaidOutAmount  uint64     `json:"paid_out_amount"`
	StartTxRef     string     `json:"start_tx_ref,omitempty"`
	PayoutTxRef    string     `json:"payout_tx_ref,omitempty"`
	// PendingTxRef and PendingAmount record a transfer sent for the next lifecycle edge
	// whose outcome is not yet stored. A retry resends this exact transfer.
	PendingTxRef   string     `json:"pending_tx_ref,omitempty"`
	PendingAmount  uint64     `json:"pending_amount,omitempty"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	DiscontinuedAt *time.Time `json:"discontinued_at,omitempty"`
	PaidOutAt      *time.Time `json:"paid_out_at,omitempty"`
	CreatedOn      time.Time  `json:"created_on"`
	UpdatedOn      time.Time  `json:"updated_on"`
}

// IsActive is the externally observed flag; it holds only in the ACTIVE state.
func (r *Rental) IsActive() bool {
	return r.Status == RentalStatusActive
}

// HasPendingTransfer reports whether a transfer was sent but the edge it pays for is
// not yet recorded.
func (r *Rental) HasPendingTransfer() bool {
	return r.PendingTxRef != ""
}

// Key identifies the rental for locking and logging.
func (r *Rental) Key() string {
	return RentalKey(r.Owner, r.Index)
}

func RentalKey(owner string, index uint64) string {
	return fmt.Sprintf("rental:%s:%d", owner, index)
}
