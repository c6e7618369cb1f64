package arena

import (
	"github.com/cockroachdb/errors"
	"github.com/memphis242/ccol-sub000/memutils"
)

// ErrPoolExhausted is returned from HandlePool.Dispatch when every slot is leased. It also
// matches memutils.ErrAllocationFailed.
var ErrPoolExhausted = errors.Mark(errors.New("handle pool exhausted"), memutils.ErrAllocationFailed)

// ErrForeignHandle is returned when a handle or buffer is given back to a pool or arena that
// never handed it out
var ErrForeignHandle = errors.New("handle does not belong to this pool")

// ErrDoubleFree is returned when a handle or buffer is given back to a pool or arena a second time
var ErrDoubleFree = errors.New("handle is not currently allocated")

// ErrCorruptionDetectionDisabled is returned from Arena.CheckCorruption when the module was built
// without the debug_mem_utils tag
var ErrCorruptionDetectionDisabled = errors.New("corruption detection is not enabled")

// ErrDestroyed is returned from every operation on an Arena after Destroy succeeded
var ErrDestroyed = errors.New("arena has been destroyed")
