package vector

import "github.com/cockroachdb/errors"

// Ref is a reference to one element of a vector that can tell when the vector's storage has
// been replaced since the reference was taken
type Ref struct {
	vector     *Vector
	index      int
	generation uint64
}

// Borrow returns a reference to the element at idx
func (v *Vector) Borrow(idx int) (Ref, error) {
	err := v.checkIndex(idx)
	if err != nil {
		return Ref{}, err
	}

	return Ref{vector: v, index: idx, generation: v.generation}, nil
}

// Index is the element index the reference was taken at
func (r Ref) Index() int { return r.index }

// Valid is false once the vector has grown, released, or moved its storage, or no longer
// holds the referenced index
func (r Ref) Valid() bool {
	return r.vector != nil && r.generation == r.vector.generation && r.index < r.vector.length
}

// Bytes returns the referenced element. It fails with ErrStaleReference if the reference is no
// longer valid.
func (r Ref) Bytes() ([]byte, error) {
	if r.vector == nil {
		return nil, errors.Wrap(ErrStaleReference, "reference was never taken")
	}
	if r.generation != r.vector.generation {
		return nil, errors.Wrapf(ErrStaleReference, "storage was replaced or released since the reference was taken at index %d", r.index)
	}
	if r.index >= r.vector.length {
		return nil, errors.Wrapf(ErrStaleReference, "index %d is no longer within a vector of length %d", r.index, r.vector.length)
	}

	return r.vector.element(r.index), nil
}
