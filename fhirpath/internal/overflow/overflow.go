// Package overflow provides checked integer arithmetic for the fixed-width
// Integer (int32) and Long (int64) value kinds. FHIRPath requires arithmetic
// that overflows to produce an empty collection rather than wrap or panic;
// every function here reports that case through its second return value
// instead of via error or panic.
package overflow

import "math/bits"

// Add32 returns a+b and whether it fit in int32.
func Add32(a, b int32) (int32, bool) {
	r := int64(a) + int64(b)
	return int32(r), r >= minInt32 && r <= maxInt32
}

// Sub32 returns a-b and whether it fit in int32.
func Sub32(a, b int32) (int32, bool) {
	r := int64(a) - int64(b)
	return int32(r), r >= minInt32 && r <= maxInt32
}

// Mul32 returns a*b and whether it fit in int32.
func Mul32(a, b int32) (int32, bool) {
	r := int64(a) * int64(b)
	return int32(r), r >= minInt32 && r <= maxInt32
}

// Div32 returns a/b (truncated toward zero) and whether the division is
// defined: b != 0 and the result fits in int32 (guards the MinInt32/-1 case).
func Div32(a, b int32) (int32, bool) {
	if b == 0 {
		return 0, false
	}
	if int64(a) == minInt32 && b == -1 {
		return 0, false
	}
	return a / b, true
}

// Mod32 returns a%b and whether b != 0.
func Mod32(a, b int32) (int32, bool) {
	if b == 0 {
		return 0, false
	}
	if int64(a) == minInt32 && b == -1 {
		return 0, true
	}
	return a % b, true
}

const (
	minInt32 = int64(-1) << 31
	maxInt32 = int64(1)<<31 - 1
)

// Add64 returns a+b and whether it fit in int64.
func Add64(a, b int64) (int64, bool) {
	r := a + b
	if (b > 0 && r < a) || (b < 0 && r > a) {
		return 0, false
	}
	return r, true
}

// Sub64 returns a-b and whether it fit in int64.
func Sub64(a, b int64) (int64, bool) {
	r := a - b
	if (b < 0 && r < a) || (b > 0 && r > a) {
		return 0, false
	}
	return r, true
}

// Mul64 returns a*b and whether it fit in int64, via the full 128-bit
// product from math/bits rather than a divide-back heuristic.
func Mul64(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	hi, lo := bits.Mul64(abs64(a), abs64(b))
	negative := (a < 0) != (b < 0)
	if hi != 0 {
		return 0, false
	}
	if negative {
		if lo > 1<<63 {
			return 0, false
		}
		return -int64(lo), true
	}
	if lo > 1<<63-1 {
		return 0, false
	}
	return int64(lo), true
}

// Div64 returns a/b (truncated toward zero) and whether the division is
// defined.
func Div64(a, b int64) (int64, bool) {
	if b == 0 {
		return 0, false
	}
	if a == minInt64 && b == -1 {
		return 0, false
	}
	return a / b, true
}

// Mod64 returns a%b and whether b != 0.
func Mod64(a, b int64) (int64, bool) {
	if b == 0 {
		return 0, false
	}
	if a == minInt64 && b == -1 {
		return 0, true
	}
	return a % b, true
}

const minInt64 = int64(-1) << 63

func abs64(v int64) uint64 {
	if v < 0 {
		return uint64(-v)
	}
	return uint64(v)
}
