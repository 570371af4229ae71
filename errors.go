package memheap

import "github.com/pkg/errors"

// ErrZeroSize is returned when an allocation of zero (or negative) bytes is
// requested. Zero-size allocation is defined to fail rather than return a
// unique pointer.
var ErrZeroSize error = errors.New("allocation size must be greater than zero")

// ErrSizeOverflow is returned by Calloc when count*elemSize overflows the
// platform's int. Failing is mandatory here: a silently wrapped product
// would allocate less memory than the caller believes it owns.
var ErrSizeOverflow error = errors.New("allocation size calculation overflowed")

// ErrFeatureNotPresent is returned by CheckCorruption when the module was
// built without the debug_memheap tag and no corruption markers exist.
var ErrFeatureNotPresent error = errors.New("corruption detection requires the debug_memheap build tag")
