package memheap

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"

	"github.com/memheap/memheap/memutil"
)

// CalculateStatistics fills stats with the allocator's current totals: heap
// bytes and free ranges from the heap, allocation counts and sizes from the
// live-allocation registry.
func (a *Allocator) CalculateStatistics(stats *memutil.DetailedStatistics) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.calculateStatsAfterLock(stats)
}

func (a *Allocator) calculateStatsAfterLock(stats *memutil.DetailedStatistics) {
	stats.Clear()

	if a.heap == nil {
		return
	}

	a.heap.AddDetailedStatistics(stats)
	a.registry.Iter(func(_ uintptr, size int) bool {
		stats.AddAllocation(size)
		return false
	})
}

// BuildStatsString returns a JSON description of the allocator's state.
// When detailed is true it includes the heap's full free-range map, which
// costs a walk of the free list.
func (a *Allocator) BuildStatsString(detailed bool) string {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	var stats memutil.DetailedStatistics
	a.calculateStatsAfterLock(&stats)

	writer := jwriter.NewWriter()
	obj := writer.Object()

	general := obj.Name("General").Object()
	general.Name("Extents").Int(stats.ExtentCount)
	general.Name("HeapBytes").Int(stats.HeapBytes)
	general.Name("Allocations").Int(stats.AllocationCount)
	general.Name("AllocationBytes").Int(stats.AllocationBytes)
	general.Name("FreeRanges").Int(stats.FreeRangeCount)
	general.End()

	if detailed && a.heap != nil {
		heapObj := obj.Name("Heap").Object()
		a.heap.DetailedMapJson(heapObj)
		heapObj.End()
	}

	obj.End()
	return string(writer.Bytes())
}
