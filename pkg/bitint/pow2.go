// SPDX-License-Identifier: MIT
/*
Package bitint provides power-of-two helpers used to validate and suggest
FFT sizes. All functions are O(1) and allocation free.

NextPowerOfTwo subtracts one before taking the bit length so that exact
powers of two are preserved:

	size 8: bits.Len(7) = 3, 1<<3 = 8
	size 9: bits.Len(8) = 4, 1<<4 = 16
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of 2 >= size. Zero and negative
// sizes return 1.
func NextPowerOfTwo(size int) int {
	if size <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of 2.
//
//	8  1000 & 0111 = 0000  true
//	7  0111 & 0110 = 0110  false
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}
