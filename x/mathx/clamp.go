// Package mathx holds the few generic range helpers the encoders and the
// sensor driver share. Go 1.21 has builtin min/max; these cover the
// clamp-and-check shapes it does not.
package mathx

import "golang.org/x/exp/constraints"

// Clamp limits v to [lo, hi]. Bounds given in the wrong order are swapped.
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

// Between reports lo <= v <= hi, order-insensitive in the bounds.
func Between[T constraints.Ordered](v, lo, hi T) bool {
	if hi < lo {
		lo, hi = hi, lo
	}
	return v >= lo && v <= hi
}
