package vector

import "github.com/cockroachdb/errors"

// Every range in this file is half-open: [start, end) covers the elements start through end-1,
// and start == end is a legal empty range.

// RangePush appends every element in data, which must hold a whole number of elements, to the
// end of the vector. The vector grows at most once.
func (v *Vector) RangePush(data []byte) error {
	return v.RangeInsert(v.length, data)
}

// RangeInsert places every element in data, which must hold a whole number of elements, at idx
// and shifts the elements at and after idx to make room. The vector grows at most once.
func (v *Vector) RangeInsert(idx int, data []byte) error {
	count, err := v.checkElementData(data)
	if err != nil {
		return err
	}

	if idx < 0 || idx > v.length {
		return errors.Wrapf(ErrIndexOutOfRange, "cannot insert at index %d in a vector of length %d", idx, v.length)
	}

	if count == 0 {
		return nil
	}

	data = v.detach(data)
	err = v.ensureCapacity(count)
	if err != nil {
		return err
	}

	v.openGap(idx, count)
	copy(v.span(idx, idx+count), data)
	return nil
}

// RangeCopy copies the elements [start, end) into dst
func (v *Vector) RangeCopy(start, end int, dst []byte) error {
	err := v.checkRange(start, end)
	if err != nil {
		return err
	}

	err = v.checkBuffer(dst, end-start)
	if err != nil {
		return err
	}

	copy(dst, v.span(start, end))
	return nil
}

// RangeCopyToEnd copies the elements from start to the end of the vector into dst
func (v *Vector) RangeCopyToEnd(start int, dst []byte) error {
	return v.RangeCopy(start, v.length, dst)
}

// RangeSet overwrites the elements [start, end) with data, which must hold exactly end-start
// elements
func (v *Vector) RangeSet(start, end int, data []byte) error {
	err := v.checkRange(start, end)
	if err != nil {
		return err
	}

	if len(data) != (end-start)*v.elementSize {
		return errors.Wrapf(ErrElementSizeMismatch, "range [%d, %d) needs %d bytes but %d were provided", start, end, (end-start)*v.elementSize, len(data))
	}

	copy(v.span(start, end), data)
	return nil
}

// RangeSetToValue overwrites each of the elements [start, end) with elem
func (v *Vector) RangeSetToValue(start, end int, elem []byte) error {
	err := v.checkElement(elem)
	if err != nil {
		return err
	}

	err = v.checkRange(start, end)
	if err != nil {
		return err
	}

	for idx := start; idx < end; idx++ {
		copy(v.element(idx), elem)
	}
	return nil
}

// RangeRemove deletes the elements [start, end) and shifts the elements after them to the left.
// If dst is not nil, the removed elements are copied into it first.
func (v *Vector) RangeRemove(start, end int, dst []byte) error {
	err := v.checkRange(start, end)
	if err != nil {
		return err
	}

	if dst != nil {
		err = v.RangeCopy(start, end, dst)
		if err != nil {
			return err
		}
	}

	if start < end {
		v.closeGap(start, end-start)
	}
	return nil
}

// RangeClear zeroes the elements [start, end) without changing the length of the vector
func (v *Vector) RangeClear(start, end int) error {
	err := v.checkRange(start, end)
	if err != nil {
		return err
	}

	clear(v.span(start, end))
	return nil
}
