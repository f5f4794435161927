// Package safemath provides overflow-checked arithmetic for ledger quantities.
//
// Every quantity the ledger stores (carbon grams, credit counts, payment
// base units, sequence counters) is an unsigned 64-bit integer, and every
// mutation of one must go through these helpers so that wraparound surfaces
// as an error instead of corrupting totals.
package safemath

import "errors"

var (
	// ErrOverflow is returned when a checked operation would exceed the
	// maximum value of a uint64.
	ErrOverflow = errors.New("arithmetic overflow")

	// ErrUnderflow is returned when a checked subtraction would go below zero.
	ErrUnderflow = errors.New("arithmetic underflow")
)

// Add returns a + b, or ErrOverflow if the sum wraps around.
func Add(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, ErrOverflow
	}
	return sum, nil
}

// Sub returns a - b, or ErrUnderflow if b is greater than a.
func Sub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrUnderflow
	}
	return a - b, nil
}

// Mul returns a * b, or ErrOverflow if the product wraps around.
func Mul(a, b uint64) (uint64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	product := a * b
	if product/a != b {
		return 0, ErrOverflow
	}
	return product, nil
}
