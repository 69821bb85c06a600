// Package satmath provides saturating arithmetic for the supply and demand
// counters. Values never wrap: increments stop at math.MaxInt64 and
// decrements stop at a caller-supplied floor.
package satmath

import "math"

// Inc returns v+1, or v when v is already math.MaxInt64.
func Inc(v int64) int64 {
	if v == math.MaxInt64 {
		return v
	}
	return v + 1
}

// DecFloor returns v-1, or v when v is at or below floor.
func DecFloor(v, floor int64) int64 {
	if v <= floor {
		return v
	}
	return v - 1
}

// SubFloor subtracts up to n from v without going below floor. It returns the
// new value and the amount actually removed.
func SubFloor(v, n, floor int64) (int64, int64) {
	if n <= 0 || v <= floor {
		return v, 0
	}
	room := v - floor
	if n > room {
		n = room
	}
	return v - n, n
}

// CeilPercent returns ceil(v * pct / 100) computed in floating point, clamped
// to the int64 range. Negative inputs yield 0.
func CeilPercent(v, pct int64) int64 {
	if v <= 0 || pct <= 0 {
		return 0
	}
	r := math.Ceil(float64(v) * float64(pct) / 100.0)
	if r >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(r)
}
