package vector

import (
	"github.com/cockroachdb/errors"
)

func (v *Vector) checkElement(elem []byte) error {
	if len(elem) != v.elementSize {
		return errors.Wrapf(ErrElementSizeMismatch, "element of %d bytes does not match element size %d", len(elem), v.elementSize)
	}
	return nil
}

func (v *Vector) checkBuffer(dst []byte, count int) error {
	if len(dst) < count*v.elementSize {
		return errors.Wrapf(ErrBufferTooSmall, "%d elements need %d bytes but the buffer holds %d", count, count*v.elementSize, len(dst))
	}
	return nil
}

// Push appends elem, which must be exactly ElementSize bytes, to the end of the vector
func (v *Vector) Push(elem []byte) error {
	err := v.checkElement(elem)
	if err != nil {
		return err
	}

	elem = v.detach(elem)
	err = v.ensureCapacity(1)
	if err != nil {
		return err
	}

	v.length++
	copy(v.element(v.length-1), elem)
	return nil
}

// Insert places elem at idx, shifting the elements at and after idx one slot to the right.
// idx may be equal to Len, in which case Insert is the same as Push.
func (v *Vector) Insert(idx int, elem []byte) error {
	err := v.checkElement(elem)
	if err != nil {
		return err
	}

	if idx < 0 || idx > v.length {
		return errors.Wrapf(ErrIndexOutOfRange, "cannot insert at index %d in a vector of length %d", idx, v.length)
	}

	elem = v.detach(elem)
	err = v.ensureCapacity(1)
	if err != nil {
		return err
	}

	v.openGap(idx, 1)
	copy(v.element(idx), elem)
	return nil
}

// Get returns the element at idx. The returned slice points into the vector's storage and is
// only valid until the vector is next modified.
func (v *Vector) Get(idx int) ([]byte, error) {
	err := v.checkIndex(idx)
	if err != nil {
		return nil, err
	}

	return v.element(idx), nil
}

// LastElement returns the final element of the vector. The returned slice points into the
// vector's storage and is only valid until the vector is next modified.
func (v *Vector) LastElement() ([]byte, error) {
	return v.Get(v.length - 1)
}

// CopyElementAt copies the element at idx into dst
func (v *Vector) CopyElementAt(idx int, dst []byte) error {
	err := v.checkIndex(idx)
	if err != nil {
		return err
	}

	err = v.checkBuffer(dst, 1)
	if err != nil {
		return err
	}

	copy(dst, v.element(idx))
	return nil
}

// CopyLastElement copies the final element of the vector into dst
func (v *Vector) CopyLastElement(dst []byte) error {
	return v.CopyElementAt(v.length-1, dst)
}

// Set overwrites the element at idx with elem. It never extends the vector.
func (v *Vector) Set(idx int, elem []byte) error {
	err := v.checkElement(elem)
	if err != nil {
		return err
	}

	err = v.checkIndex(idx)
	if err != nil {
		return err
	}

	copy(v.element(idx), elem)
	return nil
}

// Remove deletes the element at idx, shifting the elements after it one slot to the left. If
// dst is not nil, the removed element is copied into it first. Capacity is never reduced.
func (v *Vector) Remove(idx int, dst []byte) error {
	err := v.checkIndex(idx)
	if err != nil {
		return err
	}

	if dst != nil {
		err = v.checkBuffer(dst, 1)
		if err != nil {
			return err
		}
		copy(dst, v.element(idx))
	}

	v.closeGap(idx, 1)
	return nil
}

// RemoveLast deletes the final element of the vector, copying it into dst first if dst is not nil
func (v *Vector) RemoveLast(dst []byte) error {
	return v.Remove(v.length-1, dst)
}

// ClearElementAt zeroes the element at idx without changing the length of the vector
func (v *Vector) ClearElementAt(idx int) error {
	err := v.checkIndex(idx)
	if err != nil {
		return err
	}

	clear(v.element(idx))
	return nil
}

// Clear zeroes every element without changing the length of the vector
func (v *Vector) Clear() {
	if v.length > 0 {
		clear(v.span(0, v.length))
	}
}

// Reset empties the vector but keeps its storage and capacity
func (v *Vector) Reset() {
	v.scrub(0, v.length)
	v.length = 0
}

// HardReset zeroes every element, then returns the vector's storage to its allocator, leaving
// the vector empty with no capacity
func (v *Vector) HardReset() error {
	v.Clear()
	return v.releaseStorage()
}
