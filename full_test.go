package memheap_test

import (
	"math/rand"
	"os"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"github.com/memheap/memheap"
	"github.com/memheap/memheap/memutil"
)

type liveAllocation struct {
	ptr     unsafe.Pointer
	size    int
	pattern byte
}

func fillPattern(alloc *liveAllocation) {
	block := unsafe.Slice((*byte)(alloc.ptr), alloc.size)
	for i := range block {
		block[i] = alloc.pattern
	}
}

func verifyPattern(t *testing.T, alloc *liveAllocation) {
	block := unsafe.Slice((*byte)(alloc.ptr), alloc.size)
	for i := range block {
		require.Equal(t, alloc.pattern, block[i])
	}
}

// TestFullWorkload drives the allocator through a mixed malloc/calloc/
// realloc/free interleaving against real mappings, verifying that every
// live block keeps its contents and that the heap dissolves once the last
// allocation is freed.
func TestFullWorkload(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	allocator, err := memheap.New(logger, memheap.CreateOptions{
		ExtentSize: 1024 * 1024,
	})
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	var live []*liveAllocation

	for round := 0; round < 10; round++ {
		// Allocate a batch of uneven sizes, half of them zeroed.
		for i := 0; i < 30; i++ {
			size := 1 + rng.Intn(2000)
			pattern := byte(1 + rng.Intn(255))

			var ptr unsafe.Pointer
			if i%2 == 0 {
				ptr, err = allocator.Malloc(size)
			} else {
				ptr, err = allocator.Calloc(size, 1)
			}
			require.NoError(t, err)

			alloc := &liveAllocation{ptr: ptr, size: size, pattern: pattern}
			fillPattern(alloc)
			live = append(live, alloc)
		}

		// Free a third of the survivors at random.
		rng.Shuffle(len(live), func(i, j int) {
			live[i], live[j] = live[j], live[i]
		})
		releaseCount := len(live) / 3
		for _, alloc := range live[:releaseCount] {
			verifyPattern(t, alloc)
			allocator.Free(alloc.ptr)
		}
		live = live[releaseCount:]

		// Resize a handful of the rest; contents must survive the move.
		for i := 0; i < 5 && i < len(live); i++ {
			alloc := live[i]
			verifyPattern(t, alloc)

			newSize := 1 + rng.Intn(3000)
			newPtr, err := allocator.Realloc(alloc.ptr, newSize)
			require.NoError(t, err)

			preserved := alloc.size
			if newSize < preserved {
				preserved = newSize
			}
			block := unsafe.Slice((*byte)(newPtr), newSize)
			for j := 0; j < preserved; j++ {
				require.Equal(t, alloc.pattern, block[j])
			}

			alloc.ptr = newPtr
			alloc.size = newSize
			fillPattern(alloc)
		}

		err = allocator.CheckCorruption()
		if memutil.DebugMargin > 0 {
			require.NoError(t, err)
		} else {
			require.ErrorIs(t, err, memheap.ErrFeatureNotPresent)
		}
	}

	for _, alloc := range live {
		verifyPattern(t, alloc)
		allocator.Free(alloc.ptr)
	}

	// With the last allocation gone the heap itself is gone.
	var stats memutil.DetailedStatistics
	allocator.CalculateStatistics(&stats)
	require.Equal(t, 0, stats.AllocationCount)
	require.Equal(t, 0, stats.ExtentCount)
	require.Equal(t, 0, stats.HeapBytes)

	require.NoError(t, allocator.Destroy())
}
