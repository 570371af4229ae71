//go:build unix

package mapper

import (
	"unsafe"

	cerrors "github.com/cockroachdb/errors"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// UnixMapper is the default Mapper. It acquires private anonymous read-write
// mappings straight from the kernel, so regions it returns are untouched by
// any allocator, including the Go runtime's.
type UnixMapper struct{}

var _ Mapper = UnixMapper{}

// Map acquires a region of size bytes and returns its base address. The
// kernel rounds the mapping up to a whole number of pages, but only the
// requested size may be passed back to Unmap.
func (UnixMapper) Map(size int) (unsafe.Pointer, error) {
	if size < 1 {
		return nil, errors.Errorf("mapper: invalid region size %d", size)
	}

	data, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_ANON|unix.MAP_PRIVATE,
	)
	if err != nil {
		return nil, cerrors.Wrapf(err, "mapper: failed to map a %d-byte region", size)
	}

	return unsafe.Pointer(&data[0]), nil
}

// Unmap releases a previously mapped region.
func (UnixMapper) Unmap(ptr unsafe.Pointer, size int) error {
	if ptr == nil || size < 1 {
		return errors.Errorf("mapper: cannot unmap a %d-byte region at %p", size, ptr)
	}

	err := unix.Munmap(unsafe.Slice((*byte)(ptr), size))
	if err != nil {
		return cerrors.Wrapf(err, "mapper: failed to unmap the %d-byte region at %p", size, ptr)
	}

	return nil
}
