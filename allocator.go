// Package memheap implements malloc/calloc/realloc/free semantics on top of
// raw anonymous memory mappings, without relying on any existing allocator.
// Mappings are acquired rarely and in bulk; individual requests are served
// by carving blocks from those extents and recycling them through a single
// address-ordered, coalescing free list.
package memheap

import (
	"unsafe"

	"github.com/dolthub/swiss"
	"github.com/pkg/errors"
	"golang.org/x/exp/slog"

	"github.com/memheap/memheap/heap"
	"github.com/memheap/memheap/internal/utils"
	"github.com/memheap/memheap/memutil"
)

// Allocator is the public face of the heap. Unless it was created with
// AllocatorCreateExternallySynchronized, every public method holds one
// internal mutex for its full duration: the find/chunk/remove and
// insert/coalesce sequences underneath are each one indivisible transaction
// from the caller's point of view, so partial locking would not be sound.
type Allocator struct {
	logger      *slog.Logger
	createFlags CreateFlags
	mutex       utils.OptionalMutex

	heap *heap.Heap

	// registry tracks the payload address and requested size of every live
	// allocation. It feeds statistics and corruption checks, and in debug
	// builds it turns foreign-pointer frees into a panic instead of
	// undefined behavior.
	registry *swiss.Map[uintptr, int]
}

// Malloc allocates size bytes and returns the address of the new region.
// The region is not zeroed. Fails for size <= 0 and on mapper exhaustion.
func (a *Allocator) Malloc(size int) (unsafe.Pointer, error) {
	a.logger.Debug("Allocator::Malloc", slog.Int("Size", size))

	a.mutex.Lock()
	defer a.mutex.Unlock()

	return a.mallocAfterLock(size)
}

func (a *Allocator) mallocAfterLock(size int) (unsafe.Pointer, error) {
	if a.heap == nil {
		return nil, errors.New("the allocator has been destroyed")
	}
	if size <= 0 {
		return nil, ErrZeroSize
	}

	ptr, err := a.heap.Allocate(size + memutil.DebugMargin)
	if err != nil {
		return nil, err
	}

	memutil.WriteMagicValue(ptr, size)
	a.registry.Put(uintptr(ptr), size)

	return ptr, nil
}

// Calloc allocates a region large enough for count elements of elemSize
// bytes each and fills it with zero bytes. The product is computed with an
// overflow check, and the call fails - rather than allocating a truncated
// region - when it wraps. Zero or negative operands also fail.
func (a *Allocator) Calloc(count, elemSize int) (unsafe.Pointer, error) {
	a.logger.Debug("Allocator::Calloc", slog.Int("Count", count), slog.Int("ElemSize", elemSize))

	a.mutex.Lock()
	defer a.mutex.Unlock()

	if count <= 0 || elemSize <= 0 {
		return nil, ErrZeroSize
	}

	size, ok := memutil.CheckedMul(count, elemSize)
	if !ok {
		return nil, errors.Wrapf(ErrSizeOverflow, "%d elements of %d bytes", count, elemSize)
	}

	ptr, err := a.mallocAfterLock(size)
	if err != nil {
		return nil, err
	}

	memutil.FillBytes(ptr, 0, size)
	return ptr, nil
}

// Free returns a region obtained from Malloc, Calloc, or Realloc to the
// heap. Freeing nil is a no-op. Passing any pointer this allocator did not
// hand out is undefined behavior (a panic with the debug_memheap tag).
func (a *Allocator) Free(ptr unsafe.Pointer) {
	a.logger.Debug("Allocator::Free")

	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.freeAfterLock(ptr)
}

func (a *Allocator) freeAfterLock(ptr unsafe.Pointer) {
	if ptr == nil || a.heap == nil {
		return
	}

	size, ok := a.registry.Get(uintptr(ptr))
	if ok {
		if !memutil.ValidateMagicValue(ptr, size) {
			panic(errors.Errorf("memory corruption detected behind the allocation at %#x", uintptr(ptr)))
		}
		a.registry.Delete(uintptr(ptr))
	} else if memutil.DebugMargin > 0 {
		panic(errors.Errorf("freeing %#x, which is not a live allocation from this allocator", uintptr(ptr)))
	}

	a.heap.Free(ptr)
}

// Realloc resizes the region at ptr to size bytes, preserving its contents
// up to the smaller of the old and new sizes. A nil ptr behaves as Malloc,
// and size <= 0 behaves as Free and returns nil. The region always moves:
// the new block is allocated first, the payload copied, and the old block
// freed.
func (a *Allocator) Realloc(ptr unsafe.Pointer, size int) (unsafe.Pointer, error) {
	a.logger.Debug("Allocator::Realloc", slog.Int("Size", size))

	a.mutex.Lock()
	defer a.mutex.Unlock()

	if size <= 0 {
		a.freeAfterLock(ptr)
		return nil, nil
	}
	if ptr == nil {
		return a.mallocAfterLock(size)
	}
	if a.heap == nil {
		return nil, errors.New("the allocator has been destroyed")
	}

	oldSize, ok := a.registry.Get(uintptr(ptr))
	if !ok {
		if memutil.DebugMargin > 0 {
			panic(errors.Errorf("reallocating %#x, which is not a live allocation from this allocator", uintptr(ptr)))
		}
		oldSize = a.heap.PayloadSize(ptr)
	}

	newPtr, err := a.mallocAfterLock(size)
	if err != nil {
		return nil, err
	}

	copySize := size
	if oldSize < copySize {
		copySize = oldSize
	}
	memutil.CopyBytes(newPtr, ptr, copySize)

	a.freeAfterLock(ptr)
	return newPtr, nil
}

// Destroy tears the allocator down. It fails if any allocation is still
// live; once every region has been freed the heap has already dissolved
// back into the mapper, so Destroy only has to poison the handle.
func (a *Allocator) Destroy() error {
	a.logger.Debug("Allocator::Destroy")

	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.heap == nil {
		return errors.New("the allocator has already been destroyed")
	}
	if a.registry.Count() > 0 {
		return errors.Errorf("the allocator still has %d allocations that remain unfreed", a.registry.Count())
	}

	memutil.DebugValidate(a.heap)

	a.heap = nil
	a.registry = nil
	return nil
}

// CheckCorruption verifies the anti-corruption markers behind every live
// allocation. Markers are only written when the module is built with the
// debug_memheap tag; without it this returns ErrFeatureNotPresent.
func (a *Allocator) CheckCorruption() error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if memutil.DebugMargin == 0 {
		return ErrFeatureNotPresent
	}
	if a.heap == nil {
		return errors.New("the allocator has been destroyed")
	}

	var corruption error
	a.registry.Iter(func(addr uintptr, size int) bool {
		if !memutil.ValidateMagicValue(unsafe.Pointer(addr), size) {
			corruption = errors.Errorf("memory corruption detected behind the allocation at %#x", addr)
			return true
		}
		return false
	})

	return corruption
}
