// Package sizing checks the unsigned sizes and offsets read from archive
// records before they are used as int64 positions.
package sizing

import "math"

// ToInt64 converts a uint64 to int64, returning overflowErr if it doesn't fit.
func ToInt64(size uint64, overflowErr error) (int64, error) {
	if size > uint64(math.MaxInt64) {
		return 0, overflowErr
	}
	return int64(size), nil
}

// AddUint64 adds two uint64 values, returning (result, false) on overflow.
func AddUint64(a, b uint64) (uint64, bool) {
	sum := a + b
	if sum < a {
		return 0, false
	}
	return sum, true
}

// Within reports whether the range [off, off+n) lies inside [0, limit).
func Within(off, n, limit int64) bool {
	return off >= 0 && n >= 0 && off <= limit && n <= limit-off
}

// FitsInt reports whether n is positive and representable as an int.
func FitsInt(n int64) bool {
	return n > 0 && uint64(n) <= uint64(math.MaxInt)
}
