package memheap

import (
	"os"
	"strings"

	cerrors "github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"golang.org/x/exp/slog"

	"github.com/memheap/memheap/heap"
	"github.com/memheap/memheap/internal/utils"
	"github.com/memheap/memheap/mapper"
	"github.com/memheap/memheap/memutil"
)

// CreateFlags indicate specific allocator behaviors to activate or deactivate
type CreateFlags int32

const (
	// AllocatorCreateExternallySynchronized ensures that this allocator will not be synchronized
	// internally. The consumer must guarantee it is used from only one thread at a time or is
	// synchronized by some other mechanism, but performance may improve because the internal
	// mutex is not used.
	AllocatorCreateExternallySynchronized CreateFlags = 1 << iota
)

var createFlagsMapping = map[CreateFlags]string{
	AllocatorCreateExternallySynchronized: "AllocatorCreateExternallySynchronized",
}

func (f CreateFlags) String() string {
	var names []string
	for flag, name := range createFlagsMapping {
		if f&flag != 0 {
			names = append(names, name)
		}
	}
	return strings.Join(names, "|")
}

// DefaultExtentSize is the extent size used when CreateOptions does not
// provide one. Mapping syscalls are expensive, so extents are requested
// rarely and in bulk; 16Mb keeps them rare for ordinary workloads without
// spoiling too much address space.
const DefaultExtentSize int = 16 * 1024 * 1024

// CreateOptions contains optional settings when creating an allocator
type CreateOptions struct {
	// Flags indicates specific allocator behaviors to activate or deactivate
	Flags CreateFlags

	// ExtentSize is the number of bytes requested from the Mapper per region,
	// both for the initial heap and for each expansion. It is rounded up to a
	// whole number of pages. When 0, DefaultExtentSize is used.
	ExtentSize int

	// Mapper is the source of raw memory regions. When nil, the platform's
	// anonymous-mapping implementation is used. Supplying one is mainly
	// useful in tests.
	Mapper mapper.Mapper
}

// New creates a new Allocator
//
// logger - Debug tracing for allocator operations is written here. May be nil, in
// which case slog.Default() is used
//
// options - Optional parameters: it is valid to leave all the fields blank
func New(logger *slog.Logger, options CreateOptions) (*Allocator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	extentSize := options.ExtentSize
	if extentSize == 0 {
		extentSize = DefaultExtentSize
	}

	pageSize := os.Getpagesize()
	memutil.DebugCheckPow2(uint(pageSize), "system page size")
	extentSize = memutil.AlignUp(extentSize, uint(pageSize))

	regionMapper := options.Mapper
	if regionMapper == nil {
		regionMapper = mapper.UnixMapper{}
	}

	allocatorHeap, err := heap.New(regionMapper, extentSize)
	if err != nil {
		return nil, cerrors.Wrap(err, "invalid allocator options")
	}

	useMutex := options.Flags&AllocatorCreateExternallySynchronized == 0

	return &Allocator{
		logger:      logger,
		createFlags: options.Flags,
		mutex:       utils.OptionalMutex{UseMutex: useMutex},

		heap:     allocatorHeap,
		registry: swiss.NewMap[uintptr, int](42),
	}, nil
}
