package memutils

import "github.com/pkg/errors"

// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")

// ErrAllocationFailed is matched by every error an Allocator returns when a request could not be
// satisfied. Callers should treat it as "the operation did not happen".
var ErrAllocationFailed error = errors.New("allocation failed")

// ErrArenaExhausted is matched by allocation failures that came from a fixed-region backend with no
// block left that is large enough for the request. Errors matching it also match ErrAllocationFailed.
var ErrArenaExhausted error = errors.New("arena exhausted")

// ErrCorruptionDetected is returned from corruption checks when the marker written after an
// allocation has been overwritten
var ErrCorruptionDetected error = errors.New("memory corruption detected")
