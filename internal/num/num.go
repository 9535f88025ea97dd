// Package num holds the small numeric helpers shared by the simulation
// packages. Tolerance-based comparisons are explicit at every call site.
package num

import "math"

// Epsilon is the default tolerance for float comparisons.
const Epsilon = 1e-7

// ApproxEqual reports whether a and b differ by at most tol.
func ApproxEqual(a, b, tol float64) bool {
	if a == b {
		return true
	}
	return math.Abs(a-b) <= tol
}

// IsZero reports whether v is within Epsilon of zero.
func IsZero(v float64) bool {
	return ApproxEqual(v, 0, Epsilon)
}

// FloorDiv divides a by b rounding toward negative infinity. b must be non-zero.
func FloorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// CeilDiv divides a by b rounding toward positive infinity. b must be non-zero.
func CeilDiv(a, b int) int {
	return -FloorDiv(-a, b)
}

// Clip bounds v to [lo, hi].
func Clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClipInt bounds v to [lo, hi].
func ClipInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Ceil rounds v up, ignoring float noise smaller than Epsilon so that
// 3.0000000001 yields 3 rather than 4.
func Ceil(v float64) int {
	return int(math.Ceil(v - Epsilon))
}
