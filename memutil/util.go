// Package memutil contains shared arithmetic, statistics, and validation
// helpers used by the memheap allocator. Types and functions exported by
// this package are not necessarily thread safe.
package memutil

import (
	"unsafe"

	cerrors "github.com/cockroachdb/errors"
)

type Number interface {
	~int | ~uint
}

func CheckPow2[T Number](number T, name string) error {
	if number&(number-1) != 0 {
		return cerrors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}

func AlignUp(value int, alignment uint) int {
	return (value + int(alignment) - 1) & int(^(alignment - 1))
}

func AlignDown(value int, alignment uint) int {
	return value & int(^(alignment - 1))
}

// CheckedMul multiplies a and b and reports whether the product is free of
// overflow. The product is verified by dividing it back by one operand and
// confirming the quotient reconstructs the other operand exactly - a wrapped
// product cannot survive that round trip. A zero operand yields (0, true).
func CheckedMul(a, b int) (int, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}

	product := a * b
	if product/a != b || product%a != 0 {
		return 0, false
	}
	return product, true
}

// FillBytes sets n bytes starting at dst to value. The destination is raw
// mapped memory, so this deliberately avoids any runtime-assisted copying.
func FillBytes(dst unsafe.Pointer, value byte, n int) {
	for i := 0; i < n; i++ {
		*(*byte)(unsafe.Add(dst, i)) = value
	}
}

// CopyBytes copies n bytes from src to dst. The regions must not overlap.
func CopyBytes(dst, src unsafe.Pointer, n int) {
	for i := 0; i < n; i++ {
		*(*byte)(unsafe.Add(dst, i)) = *(*byte)(unsafe.Add(src, i))
	}
}
