package utils

import (
	"fmt"
	"math/bits"

	"aixblock-ledger/internal/domain"
)

// BasisPoints is the denominator for percentage shares expressed in bps.
const BasisPoints = 10_000

// AddAmount returns a+b, or an arithmetic error if the sum does not fit in 64 bits.
func AddAmount(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: %d + %d", domain.ErrArithmetic, a, b)
	}
	return sum, nil
}

// SubAmount returns a-b, or an arithmetic error if b exceeds a.
func SubAmount(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, fmt.Errorf("%w: %d - %d underflows", domain.ErrArithmetic, a, b)
	}
	return diff, nil
}

// MulDiv returns floor(a*b/d) using a 128-bit intermediate product.
// It fails when d is zero or the quotient does not fit in 64 bits.
func MulDiv(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, fmt.Errorf("%w: division by zero", domain.ErrArithmetic)
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= d {
		return 0, fmt.Errorf("%w: %d * %d / %d", domain.ErrArithmetic, a, b, d)
	}
	q, _ := bits.Div64(hi, lo, d)
	return q, nil
}

// MinAmount returns the smaller of a and b.
func MinAmount(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
