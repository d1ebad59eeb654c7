// Package mathx holds small generic numeric helpers shared by firmware and
// host code.
package mathx

import "golang.org/x/exp/constraints"

// Clamp limits v to [lo, hi]. If lo > hi, the bounds are swapped.
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if hi < lo {
		lo, hi = hi, lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Between reports lo <= v && v <= hi. NaN is never between anything.
func Between[T constraints.Ordered](v, lo, hi T) bool {
	return v >= lo && v <= hi
}

// Abs for signed numbers.
func Abs[T constraints.Signed | constraints.Float](x T) T {
	if x < 0 {
		return -x
	}
	return x
}

// RoundScale returns round(scale*f) for f >= 0, rounding halves up.
// Negative f yields 0.
func RoundScale[U constraints.Unsigned, F constraints.Float](f F, scale U) U {
	if !(f > 0) {
		return 0
	}
	return U(f*F(scale) + 0.5)
}
