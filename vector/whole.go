package vector

import (
	"bytes"
	"math"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"
)

// Duplicate creates an independent copy of the vector with the same contents, capacity, and
// maximum capacity. The copy draws from the same allocator and pool.
func (v *Vector) Duplicate() (*Vector, error) {
	v.logger.Debug("Vector::Duplicate")

	dup, err := v.derive(v.capacity, v.maxCapacity)
	if err != nil {
		return nil, errors.Wrap(err, "failed to duplicate vector")
	}

	copy(dup.storage, v.span(0, v.length))
	dup.length = v.length
	return dup, nil
}

// Move transfers src's storage and contents to dst, reclaiming whatever storage dst held first.
// Both vectors must have the same element size and allocator. src is left empty with no
// storage, and dst takes on src's maximum capacity.
func Move(dst, src *Vector) error {
	if dst == src {
		return nil
	}

	if dst.elementSize != src.elementSize {
		return errors.Wrapf(ErrElementSizeMismatch, "cannot move %d-byte elements into a vector of %d-byte elements", src.elementSize, dst.elementSize)
	}
	if dst.allocator != src.allocator {
		return errors.Wrap(ErrAllocatorMismatch, "cannot move storage between allocators")
	}

	dst.logger.Debug("Vector::Move", slog.Int("Length", src.length), slog.Int("Capacity", src.capacity))

	err := dst.releaseStorage()
	if err != nil {
		return err
	}

	dst.storage = src.storage
	dst.length = src.length
	dst.capacity = src.capacity
	dst.maxCapacity = src.maxCapacity
	dst.generation = nextGeneration()

	src.storage = nil
	src.length = 0
	src.capacity = 0
	src.generation = nextGeneration()
	return nil
}

// Equal is true when both vectors have the same element size, length, capacity, maximum
// capacity, and contents. The allocators they use do not matter.
func Equal(a, b *Vector) bool {
	if a == b {
		return true
	}

	return a.elementSize == b.elementSize &&
		a.length == b.length &&
		a.capacity == b.capacity &&
		a.maxCapacity == b.maxCapacity &&
		bytes.Equal(a.span(0, a.length), b.span(0, b.length))
}

// Concatenate creates a new vector holding a's elements followed by b's. If either vector is
// empty, the result is a duplicate of the other. Otherwise the result's capacity and maximum
// capacity are the sums of a's and b's, and it draws from a's allocator and pool.
func Concatenate(a, b *Vector) (*Vector, error) {
	if a.elementSize != b.elementSize {
		return nil, errors.Wrapf(ErrElementSizeMismatch, "cannot concatenate %d-byte elements with %d-byte elements", a.elementSize, b.elementSize)
	}

	if b.length == 0 {
		return a.Duplicate()
	}
	if a.length == 0 {
		return b.Duplicate()
	}

	a.logger.Debug("Vector::Concatenate", slog.Int("LeftLength", a.length), slog.Int("RightLength", b.length))

	limit := math.MaxInt / a.elementSize
	maxCapacity := a.maxCapacity + b.maxCapacity
	if a.maxCapacity > limit-b.maxCapacity {
		maxCapacity = limit
	}
	capacity := maxCapacity
	if a.capacity <= maxCapacity-b.capacity {
		capacity = a.capacity + b.capacity
	}

	result, err := a.derive(capacity, maxCapacity)
	if err != nil {
		return nil, errors.Wrap(err, "failed to concatenate vectors")
	}

	copy(result.storage, a.span(0, a.length))
	copy(result.storage[a.length*a.elementSize:], b.span(0, b.length))
	result.length = a.length + b.length
	return result, nil
}

// SplitAt truncates the vector to its first idx elements and returns a new vector holding the
// rest. The new vector's capacity is its length and its maximum capacity is this vector's. If
// the new vector cannot be created, this vector is unchanged.
func (v *Vector) SplitAt(idx int) (*Vector, error) {
	if idx == 0 {
		return nil, errors.Wrap(ErrNothingToSplit, "splitting at index 0 would leave nothing behind")
	}

	err := v.checkIndex(idx)
	if err != nil {
		return nil, err
	}

	v.logger.Debug("Vector::SplitAt", slog.Int("Index", idx), slog.Int("Length", v.length))

	tail, err := v.Slice(idx, v.length)
	if err != nil {
		return nil, err
	}

	v.scrub(idx, v.length)
	v.length = idx
	return tail, nil
}

// Slice creates a new vector holding a copy of the elements [start, end). The new vector's
// capacity is its length and its maximum capacity is this vector's. This vector is not modified.
func (v *Vector) Slice(start, end int) (*Vector, error) {
	err := v.checkRange(start, end)
	if err != nil {
		return nil, err
	}

	slice, err := v.derive(end-start, v.maxCapacity)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to slice [%d, %d)", start, end)
	}

	copy(slice.storage, v.span(start, end))
	slice.length = end - start
	return slice, nil
}
