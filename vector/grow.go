package vector

import (
	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"golang.org/x/exp/slog"
)

// nextCapacity picks the capacity a vector with the given capacity should grow to so that it
// can hold needed elements
func nextCapacity(capacity, needed, maxCapacity int) int {
	var next int
	if capacity == 0 {
		next = min(DefaultInitialCapacity, maxCapacity)
	} else if capacity > maxCapacity/ExpansionFactor {
		next = maxCapacity
	} else {
		next = capacity * ExpansionFactor
	}

	// Bulk operations that need more than one expansion provides grow to exactly the size they need
	return max(next, needed)
}

// ensureCapacity grows the vector's storage, if necessary, so that it can hold additional more
// elements. If it fails, the vector is unchanged.
func (v *Vector) ensureCapacity(additional int) error {
	if additional <= v.capacity-v.length {
		return nil
	}

	if additional > v.maxCapacity-v.length {
		return errors.Wrapf(ErrCapacityExceeded, "cannot hold %d more elements in a vector of length %d with maximum capacity %d", additional, v.length, v.maxCapacity)
	}

	return v.resize(nextCapacity(v.capacity, v.length+additional, v.maxCapacity))
}

// resize replaces the vector's storage with storage for exactly capacity elements, preserving
// its contents
func (v *Vector) resize(capacity int) error {
	newSize := capacity * v.elementSize

	var storage []byte
	var err error
	if v.storage == nil {
		storage, err = v.allocator.Allocate(newSize)
	} else {
		storage, err = v.allocator.Reallocate(v.storage, len(v.storage), newSize)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to grow vector storage from %d to %d elements", v.capacity, capacity)
	}

	v.logger.Debug("Vector::Grow",
		slog.Int("OldCapacity", v.capacity),
		slog.Int("NewCapacity", capacity),
		slog.String("Storage", humanize.IBytes(uint64(newSize))),
	)

	v.storage = storage[:newSize]
	v.capacity = capacity
	v.generation = nextGeneration()
	return nil
}

// openGap moves the elements [at, length) count slots to the right. Capacity must already be
// sufficient. The length is updated but the gap's contents are left as they were.
func (v *Vector) openGap(at, count int) {
	es := v.elementSize
	copy(v.storage[(at+count)*es:(v.length+count)*es], v.storage[at*es:v.length*es])
	v.length += count
}

// closeGap moves the elements [at+count, length) count slots to the left over the top of
// [at, at+count), and scrubs the slots vacated at the end of the vector
func (v *Vector) closeGap(at, count int) {
	es := v.elementSize
	copy(v.storage[at*es:], v.storage[(at+count)*es:v.length*es])
	v.scrub(v.length-count, v.length)
	v.length -= count
}
