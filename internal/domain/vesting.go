package domain

import "time"

// VestingSchedule bounds the cumulative amount releasable for a category.
// TGEUnlockBps is released at Start; the remainder vests linearly from
// Start+Cliff over Vesting.
type VestingSchedule struct {
	Start        time.Time     `json:"start"`
	Cliff        time.Duration `json:"cliff"`
	Vesting      time.Duration `json:"vesting"`
	TGEUnlockBps uint32        `json:"tge_unlock_bps"`
}

func (s VestingSchedule) CliffEnd() time.Time {
	return s.Start.Add(s.Cliff)
}

func (s VestingSchedule) End() time.Time {
	return s.CliffEnd().Add(s.Vesting)
}

type VestingAllocation struct {
	Category        string          `json:"category"`
	Account         string          `json:"account"`
	TotalAllocation uint64          `json:"total_allocation"`
	ReleasedAmount  uint64          `json:"released_amount"`
	Schedule        VestingSchedule `json:"schedule"`
	LastReleasedAt  *time.Time      `json:"last_released_at,omitempty"`
	// PendingTxRef and PendingAmount record a release transfer not yet added to
	// ReleasedAmount. A retry resends it under the same reference.
	PendingTxRef    string          `json:"pending_tx_ref,omitempty"`
	PendingAmount   uint64          `json:"pending_amount,omitempty"`
	CreatedOn       time.Time       `json:"created_on"`
	UpdatedOn       time.Time       `json:"updated_on"`
}

// Balance is what has been moved into the category account so far. It equals
// ReleasedAmount whenever no release is pending.
func (a *VestingAllocation) Balance() uint64 {
	return a.ReleasedAmount
}

func VestingKey(category string) string {
	return "vesting:" + category
}

// VestingRelease is the outcome of one release call. A zero Amount means the call
// was a no-op.
type VestingRelease struct {
	Category    string    `json:"category"`
	Amount      uint64    `json:"amount"`
	VestedTotal uint64    `json:"vested_total"`
	TxRef       string    `json:"tx_ref,omitempty"`
	ReleasedAt  time.Time `json:"released_at"`
}
