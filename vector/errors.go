package vector

import "github.com/cockroachdb/errors"

// ErrInvalidConfig is returned from New when CreateOptions cannot describe a valid vector
var ErrInvalidConfig = errors.New("invalid vector configuration")

// ErrIndexOutOfRange is returned when an element index is not below the vector's length
// (or, for insertion, above it)
var ErrIndexOutOfRange = errors.New("index out of range")

// ErrInvalidRange is returned when a [start, end) range is inverted or extends past the
// vector's length
var ErrInvalidRange = errors.New("invalid range")

// ErrCapacityExceeded is returned when an operation would need more elements than the
// vector's maximum capacity
var ErrCapacityExceeded = errors.New("maximum capacity exceeded")

// ErrElementSizeMismatch is returned when element data is not a whole number of elements, or
// when two vectors with different element sizes are combined
var ErrElementSizeMismatch = errors.New("element size mismatch")

// ErrAllocatorMismatch is returned from Move when the two vectors draw from different allocators
var ErrAllocatorMismatch = errors.New("vectors use different allocators")

// ErrBufferTooSmall is returned when a destination buffer cannot hold the copied elements
var ErrBufferTooSmall = errors.New("destination buffer too small")

// ErrNothingToSplit is returned from SplitAt(0), which would leave nothing in the source vector
var ErrNothingToSplit = errors.New("nothing to split")

// ErrStaleReference is returned from Ref.Bytes after the vector has moved its storage
var ErrStaleReference = errors.New("reference outlived the storage it pointed into")

// ErrInvalidIterator is returned from NewIterator when the bounds do not suit the direction
var ErrInvalidIterator = errors.New("invalid iterator bounds")
