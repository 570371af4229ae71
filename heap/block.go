package heap

import "unsafe"

// blockHeader prefixes every block carved from a heap extent. The size field
// includes the header itself and is valid whether the block is free or
// allocated; the next/prev links thread the block into the free list and are
// meaningful only while it is free. The caller-visible payload begins
// immediately after the header.
type blockHeader struct {
	size int
	next *blockHeader
	prev *blockHeader
}

const (
	blockHeaderSize = int(unsafe.Sizeof(blockHeader{}))

	// minBlockSize is the smallest block worth carving out: a header plus
	// a single payload byte. Splits that would leave less than this are
	// skipped so the free list never holds unusable slivers.
	minBlockSize = blockHeaderSize + 1
)

// BlockOverhead is the number of bytes of metadata that prefix every
// allocation's payload.
const BlockOverhead = blockHeaderSize

// blockAt formats size bytes of raw memory at base as a single free block
// that is not yet linked into any list.
func blockAt(base unsafe.Pointer, size int) *blockHeader {
	block := (*blockHeader)(base)
	block.size = size
	block.next = nil
	block.prev = nil
	return block
}

// headerFor recovers a block's header from its payload address. It performs
// no validation beyond the nil check: handing it a pointer that was not
// produced by this allocator is undefined behavior by contract.
func headerFor(data unsafe.Pointer) *blockHeader {
	if data == nil {
		return nil
	}
	return (*blockHeader)(unsafe.Add(data, -blockHeaderSize))
}

func (b *blockHeader) data() unsafe.Pointer {
	return unsafe.Add(unsafe.Pointer(b), blockHeaderSize)
}

// end is the first address past the block. A block whose end equals the next
// block's base is physically contiguous with it.
func (b *blockHeader) end() unsafe.Pointer {
	return unsafe.Add(unsafe.Pointer(b), b.size)
}

func (b *blockHeader) payloadSize() int {
	return b.size - blockHeaderSize
}

func (b *blockHeader) addr() uintptr {
	return uintptr(unsafe.Pointer(b))
}
