package heap_test

import (
	"unsafe"

	"github.com/pkg/errors"
)

type recordedRegion struct {
	buf  []byte
	size int
}

// recordingMapper hands out regions backed by ordinary Go slices and keeps
// books on every map and unmap call, so tests can assert exactly when the
// heap goes to its region source and that every mapped span is returned
// with a matching base and size.
type recordingMapper struct {
	regions     map[uintptr]recordedRegion
	mapCalls    int
	unmapCalls  int
	mappedBytes int
	failNext    bool
}

func newRecordingMapper() *recordingMapper {
	return &recordingMapper{
		regions: make(map[uintptr]recordedRegion),
	}
}

func (m *recordingMapper) Map(size int) (unsafe.Pointer, error) {
	if size < 1 {
		return nil, errors.Errorf("recording mapper: invalid region size %d", size)
	}
	if m.failNext {
		m.failNext = false
		return nil, errors.New("recording mapper: induced map failure")
	}

	// One spare byte past the requested span: no other region can ever begin
	// exactly where this one ends, so separate regions never look
	// address-contiguous to the heap.
	buf := make([]byte, size+1)
	base := unsafe.Pointer(&buf[0])
	m.regions[uintptr(base)] = recordedRegion{buf: buf, size: size}
	m.mapCalls++
	m.mappedBytes += size

	return base, nil
}

func (m *recordingMapper) Unmap(ptr unsafe.Pointer, size int) error {
	region, ok := m.regions[uintptr(ptr)]
	if !ok {
		return errors.Errorf("recording mapper: unmapping unknown region %p", ptr)
	}
	if region.size != size {
		return errors.Errorf("recording mapper: unmapping %d bytes of a %d-byte region", size, region.size)
	}

	delete(m.regions, uintptr(ptr))
	m.unmapCalls++
	m.mappedBytes -= size

	return nil
}
