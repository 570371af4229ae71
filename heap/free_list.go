package heap

import "unsafe"

// findFree scans the free list in ascending address order for the first
// block of at least size bytes. If no block fits, the heap expands and the
// freshly mapped block is returned.
func (h *Heap) findFree(size int) (*blockHeader, error) {
	for curr := h.hdr.firstFree; curr != nil; curr = curr.next {
		if curr.size >= size {
			return curr, nil
		}
	}

	return h.expand(size)
}

// chunk splits a free block into a first part of exactly size bytes and a
// second part holding the remainder. The split is skipped when either part
// would fall below the minimum block size. The remainder is spliced into the
// free list immediately after the first part - the insertion point is
// already known, so no re-scan is needed.
func (h *Heap) chunk(block *blockHeader, size int) *blockHeader {
	secondSize := block.size - size

	if size < minBlockSize || secondSize < minBlockSize {
		return block
	}

	second := blockAt(unsafe.Add(unsafe.Pointer(block), size), secondSize)
	block.size = size

	second.next = block.next
	second.prev = block
	if block.next != nil {
		block.next.prev = second
	}
	block.next = second

	return block
}

// insertFree splices a block into the free list at its address-ordered
// position and coalesces. The block must not already be on the list.
func (h *Heap) insertFree(block *blockHeader) {
	if h.hdr.firstFree == nil {
		h.hdr.firstFree = block
		h.coalesce()
		return
	}

	// Locate the first entry with a greater address.
	var prev *blockHeader
	curr := h.hdr.firstFree
	for curr != nil && curr.addr() < block.addr() {
		prev = curr
		curr = curr.next
	}

	if curr == nil {
		// Every entry is smaller; append after the tail.
		prev.next = block
		block.prev = prev
		block.next = nil
	} else if curr == h.hdr.firstFree {
		block.next = curr
		curr.prev = block
		h.hdr.firstFree = block
	} else {
		prev.next = block
		block.prev = prev
		block.next = curr
		curr.prev = block
	}

	h.coalesce()
}

// removeFree unlinks a block from the free list and clears its links; they
// carry no meaning once the block is allocated.
func (h *Heap) removeFree(block *blockHeader) {
	next := block.next
	prev := block.prev

	if next != nil {
		next.prev = prev
	}
	if block == h.hdr.firstFree {
		h.hdr.firstFree = next
	} else if prev != nil {
		prev.next = next
	}

	block.next = nil
	block.prev = nil
}

// coalesce makes one pass over the free list, merging every block whose end
// address equals its successor's base. After a merge the scan stays on the
// extended block, since it may now also touch the block after that.
// Contiguity is pure address arithmetic, so it holds no matter how the
// blocks came to exist.
func (h *Heap) coalesce() {
	curr := h.hdr.firstFree
	for curr != nil {
		if curr.next != nil && curr.end() == unsafe.Pointer(curr.next) {
			curr.size += curr.next.size
			curr.next = curr.next.next
			if curr.next != nil {
				curr.next.prev = curr
			}
			continue
		}

		curr = curr.next
	}
}
