package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the rental ledger and the vesting registry. Callers match
// with errors.Is; collaborator causes stay wrapped underneath.
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrInvalidState      = errors.New("invalid state")
	ErrPaymentFailed     = errors.New("payment failed")
	ErrTransferFailed    = errors.New("transfer failed")
	ErrOracleUnavailable = errors.New("price oracle unavailable")
	ErrArithmetic        = errors.New("arithmetic overflow")
	ErrBusy              = errors.New("operation in progress for key")
)

// StateError describes a transition attempted from the wrong lifecycle state.
type StateError struct {
	Op      string
	Current RentalStatus
	Want    RentalStatus
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: rental is %s, must be %s", e.Op, e.Current, e.Want)
}

func (e *StateError) Unwrap() error {
	return ErrInvalidState
}

// Expected marks the error as a normal rejection rather than a fault.
func (e *StateError) Expected() bool {
	return true
}

// IsRetryable reports whether the caller may safely retry the same operation.
// Arithmetic errors are fatal and never retryable.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrArithmetic) {
		return false
	}
	return errors.Is(err, ErrPaymentFailed) ||
		errors.Is(err, ErrTransferFailed) ||
		errors.Is(err, ErrOracleUnavailable) ||
		errors.Is(err, ErrBusy)
}
