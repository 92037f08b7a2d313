package numeric

import "golang.org/x/exp/constraints"

func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func Abs[T constraints.Signed | constraints.Float](v T) T {
	if v < 0 {
		return -v
	}
	return v
}

// Lerp interpolates between a and b; alpha is not clamped.
func Lerp[T constraints.Float](a, b, alpha T) T {
	return a + (b-a)*alpha
}

// FloorDiv divides rounding toward negative infinity, returning quotient and
// a non-negative remainder. Used for bar math on count-in (negative) ticks.
func FloorDiv[T constraints.Integer](a, b T) (T, T) {
	q := a / b
	r := a % b
	if r != 0 && (r < 0) != (b < 0) {
		q--
		r += b
	}
	return q, r
}
