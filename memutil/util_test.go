package memutil_test

import (
	"math"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/memheap/memheap/memutil"
)

func TestCheckedMul(t *testing.T) {
	product, ok := memutil.CheckedMul(3, 7)
	require.True(t, ok)
	require.Equal(t, 21, product)

	product, ok = memutil.CheckedMul(0, 7)
	require.True(t, ok)
	require.Equal(t, 0, product)

	product, ok = memutil.CheckedMul(7, 0)
	require.True(t, ok)
	require.Equal(t, 0, product)

	// Each operand is a valid size on its own; only the product overflows.
	_, ok = memutil.CheckedMul(math.MaxInt, 2)
	require.False(t, ok)

	_, ok = memutil.CheckedMul(2, math.MaxInt)
	require.False(t, ok)

	_, ok = memutil.CheckedMul(math.MaxInt/2+1, 4)
	require.False(t, ok)

	product, ok = memutil.CheckedMul(math.MaxInt, 1)
	require.True(t, ok)
	require.Equal(t, math.MaxInt, product)
}

func TestAlignUp(t *testing.T) {
	require.Equal(t, 0, memutil.AlignUp(0, 4096))
	require.Equal(t, 4096, memutil.AlignUp(1, 4096))
	require.Equal(t, 4096, memutil.AlignUp(4096, 4096))
	require.Equal(t, 8192, memutil.AlignUp(4097, 4096))
}

func TestAlignDown(t *testing.T) {
	require.Equal(t, 0, memutil.AlignDown(4095, 4096))
	require.Equal(t, 4096, memutil.AlignDown(4096, 4096))
	require.Equal(t, 4096, memutil.AlignDown(8191, 4096))
}

func TestCheckPow2(t *testing.T) {
	require.NoError(t, memutil.CheckPow2(uint(4096), "extent size"))
	require.ErrorIs(t, memutil.CheckPow2(uint(4095), "extent size"), memutil.PowerOfTwoError)
}

func TestFillBytes(t *testing.T) {
	buf := make([]byte, 16)
	memutil.FillBytes(unsafe.Pointer(&buf[0]), 0xAA, 12)

	for i := 0; i < 12; i++ {
		require.Equal(t, byte(0xAA), buf[i])
	}
	for i := 12; i < 16; i++ {
		require.Equal(t, byte(0), buf[i])
	}
}

func TestCopyBytes(t *testing.T) {
	src := make([]byte, 8)
	dst := make([]byte, 8)
	for i := range src {
		src[i] = byte(i + 1)
	}

	memutil.CopyBytes(unsafe.Pointer(&dst[0]), unsafe.Pointer(&src[0]), 8)
	require.Equal(t, src, dst)
}
