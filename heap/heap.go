// Package heap manages a logical heap built from bulk extents obtained
// through a mapper.Mapper. It owns the address-ordered free list, first-fit
// search, block splitting and coalescing, and the grow/release policy. The
// package is not thread safe; the allocator facade serializes access.
package heap

import (
	"math"
	"unsafe"

	cerrors "github.com/cockroachdb/errors"
	"github.com/pkg/errors"

	"github.com/memheap/memheap/mapper"
	"github.com/memheap/memheap/memutil"
)

// extentHeader sits at the base of the first extent of a live heap. Its size
// field covers every extent currently held - the header itself plus every
// block, free or allocated, carved from any extent.
type extentHeader struct {
	size      int
	firstFree *blockHeader
}

const extentHeaderSize = int(unsafe.Sizeof(extentHeader{}))

// MinExtentSize is the smallest extent size a heap can be configured with:
// the extent header plus one minimum-sized block.
const MinExtentSize = extentHeaderSize + minBlockSize

// Heap is a handle to zero-or-one live heap. A heap does not exist until the
// first allocation forces one into being, and it dissolves back into the
// mapper the moment its last allocation is freed.
type Heap struct {
	mapper     mapper.Mapper
	extentSize int

	// hdr is nil while the heap is absent.
	hdr     *extentHeader
	extents int
}

var _ memutil.Validatable = &Heap{}

// New creates a Heap handle that will acquire extents of extentSize bytes at
// a time from m. No memory is mapped until the first allocation.
func New(m mapper.Mapper, extentSize int) (*Heap, error) {
	if m == nil {
		return nil, errors.New("heap: a mapper is required")
	}
	if extentSize < MinExtentSize {
		return nil, errors.Errorf("heap: extent size %d cannot hold the heap header and a minimum block (%d bytes)", extentSize, MinExtentSize)
	}

	return &Heap{
		mapper:     m,
		extentSize: extentSize,
	}, nil
}

// Active reports whether the heap currently holds any extents.
func (h *Heap) Active() bool {
	return h.hdr != nil
}

// Size returns the total number of bytes held, header included, or 0 while
// the heap is absent.
func (h *Heap) Size() int {
	if h.hdr == nil {
		return 0
	}
	return h.hdr.size
}

// UsableSize returns the number of held bytes available for blocks - the
// heap size minus the extent header.
func (h *Heap) UsableSize() int {
	if h.hdr == nil {
		return 0
	}
	return h.hdr.size - extentHeaderSize
}

// SumFreeSize returns the total size of every block on the free list.
func (h *Heap) SumFreeSize() int {
	if h.hdr == nil {
		return 0
	}

	sum := 0
	for curr := h.hdr.firstFree; curr != nil; curr = curr.next {
		sum += curr.size
	}
	return sum
}

// FreeRegionsCount returns the number of blocks on the free list. Adjacent
// free blocks are always merged, so each counted region is a maximal run.
func (h *Heap) FreeRegionsCount() int {
	if h.hdr == nil {
		return 0
	}

	count := 0
	for curr := h.hdr.firstFree; curr != nil; curr = curr.next {
		count++
	}
	return count
}

// Allocate carves a block with at least size payload bytes out of the heap,
// mapping the initial extent or expanding as required, and returns the
// block's payload address. This is the only path that takes a block off the
// free list.
func (h *Heap) Allocate(size int) (unsafe.Pointer, error) {
	if size <= 0 || size > math.MaxInt-blockHeaderSize {
		return nil, errors.Errorf("heap: cannot allocate %d bytes", size)
	}

	if h.hdr == nil {
		err := h.initialize()
		if err != nil {
			return nil, err
		}
	}

	// All block arithmetic is done on header-inclusive sizes.
	size += blockHeaderSize

	block, err := h.findFree(size)
	if err != nil {
		return nil, err
	}

	if size < block.size {
		block = h.chunk(block, size)
	}
	h.removeFree(block)

	memutil.DebugValidate(h)
	return block.data(), nil
}

// Free returns the block backing the given payload address to the free list,
// merging it with any physically adjacent free neighbors. If that leaves the
// entire usable heap free, the heap releases every extent back to the mapper
// and the next Allocate starts from scratch.
func (h *Heap) Free(ptr unsafe.Pointer) {
	if ptr == nil || h.hdr == nil {
		return
	}

	h.insertFree(headerFor(ptr))
	memutil.DebugValidate(h)

	if h.SumFreeSize() == h.hdr.size-extentHeaderSize {
		h.releaseAll()
	}
}

// PayloadSize returns the usable size of the block backing the given payload
// address. Like headerFor, it trusts the pointer completely.
func (h *Heap) PayloadSize(ptr unsafe.Pointer) int {
	if ptr == nil {
		return 0
	}
	return headerFor(ptr).payloadSize()
}

// initialize maps the first extent and carves it into the heap header
// followed by a single free block spanning the remainder. On mapper failure
// the heap stays absent.
func (h *Heap) initialize() error {
	base, err := h.mapper.Map(h.extentSize)
	if err != nil {
		return cerrors.Wrap(err, "heap: failed to map the initial extent")
	}

	hdr := (*extentHeader)(base)
	hdr.size = h.extentSize
	hdr.firstFree = blockAt(unsafe.Add(base, extentHeaderSize), h.extentSize-extentHeaderSize)

	h.hdr = hdr
	h.extents = 1
	return nil
}

// expand maps a new extent of at least size bytes (never less than the
// configured extent size), formats it as one free block, and inserts it into
// the free list. Insertion coalesces, so an extent that happens to land
// adjacent to existing free memory merges with it.
func (h *Heap) expand(size int) (*blockHeader, error) {
	if size < h.extentSize {
		size = h.extentSize
	}

	base, err := h.mapper.Map(size)
	if err != nil {
		return nil, cerrors.Wrapf(err, "heap: failed to map a %d-byte expansion extent", size)
	}

	block := blockAt(base, size)
	h.hdr.size += size
	h.extents++
	h.insertFree(block)

	// Insertion coalesces, so the new extent may have been absorbed into a
	// neighboring free block. Hand back whichever block covers it now.
	for curr := h.hdr.firstFree; curr != nil; curr = curr.next {
		if curr.addr() <= block.addr() && uintptr(base) < uintptr(curr.end()) {
			return curr, nil
		}
	}

	return nil, errors.Errorf("heap: the %d-byte expansion extent at %#x vanished from the free list", size, uintptr(base))
}

// releaseAll unmaps every extent and resets the heap to absent. It requires
// that every block is free and fully coalesced, so each block remaining on
// the free list spans a whole mapping: a mapping carved into pieces by
// splitting has already been merged back, and no two list neighbors are
// contiguous. Unmap failures are swallowed: there is no recovery once a
// heap is mid-teardown.
func (h *Heap) releaseAll() {
	if h.hdr == nil {
		return
	}

	// The block adjacent to the heap header shares the first extent with it
	// and must go last, in a single unmap covering both.
	headerBlock := unsafe.Add(unsafe.Pointer(h.hdr), extentHeaderSize)

	curr := h.hdr.firstFree
	for curr != nil {
		next := curr.next
		if unsafe.Pointer(curr) != headerBlock {
			h.hdr.size -= curr.size
			_ = h.mapper.Unmap(unsafe.Pointer(curr), curr.size)
		}
		curr = next
	}

	base := unsafe.Pointer(h.hdr)
	size := h.hdr.size
	h.hdr = nil
	h.extents = 0
	_ = h.mapper.Unmap(base, size)
}

// Validate checks the heap's internal consistency: the free list must be
// strictly ascending by address with reciprocal links, hold no undersized
// blocks, and never account for more than the usable heap size.
func (h *Heap) Validate() error {
	if h.hdr == nil {
		return nil
	}

	if h.hdr.size < extentHeaderSize+minBlockSize {
		return errors.Errorf("heap size %d cannot hold the header and a minimum block", h.hdr.size)
	}

	sum := 0
	var prev *blockHeader
	for curr := h.hdr.firstFree; curr != nil; curr = curr.next {
		if curr.size < minBlockSize {
			return errors.Errorf("free block at %#x has impossible size %d", curr.addr(), curr.size)
		}
		if curr.prev != prev {
			return errors.Errorf("free block at %#x has a back link that does not match the forward walk", curr.addr())
		}
		if prev != nil && prev.addr() >= curr.addr() {
			return errors.Errorf("free list is not sorted by ascending address at %#x", curr.addr())
		}
		if prev != nil && prev.end() == unsafe.Pointer(curr) {
			return errors.Errorf("free blocks at %#x and %#x are contiguous but not merged", prev.addr(), curr.addr())
		}

		sum += curr.size
		prev = curr
	}

	if sum > h.hdr.size-extentHeaderSize {
		return errors.Errorf("free list accounts for %d bytes but the heap only has %d usable", sum, h.hdr.size-extentHeaderSize)
	}

	return nil
}

// AddDetailedStatistics sums this heap's extent and free-range figures into
// the provided statistics. Allocation figures are tracked by the facade.
func (h *Heap) AddDetailedStatistics(stats *memutil.DetailedStatistics) {
	if h.hdr == nil {
		return
	}

	stats.ExtentCount += h.extents
	stats.HeapBytes += h.hdr.size

	for curr := h.hdr.firstFree; curr != nil; curr = curr.next {
		stats.AddFreeRange(curr.size)
	}
}
