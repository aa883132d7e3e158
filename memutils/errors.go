package memutils

import "github.com/pkg/errors"

// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")

// ErrOutOfMemory is the error underlying every recoverable allocation
// failure: a zone that could not grow, or a hunk request that exceeds the
// remaining capacity. Callers may retry after freeing memory; the allocator
// itself never does.
var ErrOutOfMemory error = errors.New("not enough free memory")

// ErrNilPointer is returned when a nil pointer is passed to a free
// operation. Unlike a corrupt or unknown pointer, this is not fatal.
var ErrNilPointer error = errors.New("nil pointer")
