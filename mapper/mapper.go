// Package mapper provides the raw virtual memory underneath the memheap
// allocator. The allocator never obtains memory any other way: a Mapper
// acquires whole contiguous regions in bulk and releases them in bulk,
// and everything finer-grained is carved out by the heap package.
package mapper

import "unsafe"

// Mapper acquires and releases contiguous regions of raw virtual memory.
// Both operations are all-or-nothing: a region is either mapped in full or
// the call fails, and Unmap must be handed the exact base and size of a
// span that was previously mapped.
type Mapper interface {
	// Map acquires a region of size bytes and returns its base address.
	Map(size int) (unsafe.Pointer, error)
	// Unmap releases a previously mapped region.
	Unmap(ptr unsafe.Pointer, size int) error
}
