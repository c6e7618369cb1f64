package vector

import "github.com/cockroachdb/errors"

// Direction selects the order in which an Iterator visits indices
type Direction int32

const (
	// Forward visits start, start+1, ... end-1
	Forward Direction = iota + 1
	// Reverse visits start, start-1, ... end+1. end may be -1 to finish at index 0.
	Reverse
	// ForwardWrap visits from start toward the end of the vector, wraps to index 0, and stops
	// before end. When start == end, every index is visited once.
	ForwardWrap
	// ReverseWrap visits from start toward index 0, wraps to the last index, and stops before
	// end. When start == end, every index is visited once.
	ReverseWrap
	// ForwardBounce visits from start up to the last index, then turns back and visits downward,
	// stopping before end
	ForwardBounce
	// ReverseBounce visits from start down to index 0, then turns back and visits upward,
	// stopping before end
	ReverseBounce
)

var directionMapping = map[Direction]string{
	Forward:       "Forward",
	Reverse:       "Reverse",
	ForwardWrap:   "ForwardWrap",
	ReverseWrap:   "ReverseWrap",
	ForwardBounce: "ForwardBounce",
	ReverseBounce: "ReverseBounce",
}

func (d Direction) String() string {
	if str, ok := directionMapping[d]; ok {
		return str
	}
	return "Unknown"
}

// Iterator walks a fixed sequence of a vector's indices. The sequence is decided when the
// iterator is created: elements added to or removed from the vector afterward do not change
// which indices are visited, and Value fails for an index the vector no longer holds.
type Iterator struct {
	vector    *Vector
	direction Direction
	start     int
	length    int

	total   int
	visited int
}

// NewIterator creates an iterator over v. start is always the first index visited, and end
// is the exclusive bound the iterator stops at; how the indices between them are walked
// depends on direction.
func NewIterator(v *Vector, start, end int, direction Direction) (*Iterator, error) {
	length := v.length
	inVector := func(idx int) bool { return idx >= 0 && idx < length }

	var total int
	valid := true
	switch direction {
	case Forward:
		valid = start >= 0 && start <= end && end <= length
		total = end - start
	case Reverse:
		valid = end >= -1 && end <= start && start < length
		total = start - end
	case ForwardWrap:
		valid = inVector(start) && inVector(end)
		if valid {
			total = modulo(end-start, length)
		}
	case ReverseWrap:
		valid = inVector(start) && inVector(end)
		if valid {
			total = modulo(start-end, length)
		}
	case ForwardBounce:
		valid = inVector(start) && end >= -1 && end < length
		total = (length - start) + max(0, length-2-end)
	case ReverseBounce:
		valid = inVector(start) && end >= 0 && end <= length
		total = (start + 1) + max(0, end-1)
	default:
		return nil, errors.Wrapf(ErrInvalidIterator, "unknown direction %d", direction)
	}

	if !valid {
		return nil, errors.Wrapf(ErrInvalidIterator, "start %d and end %d are not valid for direction %s over a vector of length %d", start, end, direction, length)
	}

	if (direction == ForwardWrap || direction == ReverseWrap) && total == 0 {
		total = length
	}

	return &Iterator{
		vector:    v,
		direction: direction,
		start:     start,
		length:    length,
		total:     total,
	}, nil
}

func modulo(a, n int) int {
	return ((a % n) + n) % n
}

// indexAt returns the index visited at the given step, counting from 0
func (it *Iterator) indexAt(step int) int {
	switch it.direction {
	case Forward:
		return it.start + step
	case Reverse:
		return it.start - step
	case ForwardWrap:
		return modulo(it.start+step, it.length)
	case ReverseWrap:
		return modulo(it.start-step, it.length)
	case ForwardBounce:
		rise := it.length - it.start
		if step < rise {
			return it.start + step
		}
		return it.length - 2 - (step - rise)
	case ReverseBounce:
		fall := it.start + 1
		if step < fall {
			return it.start - step
		}
		return 1 + (step - fall)
	}

	panic("iterator has an unknown direction")
}

// Next moves to the next index in the sequence, returning false when there are none left
func (it *Iterator) Next() bool {
	if it.visited >= it.total {
		return false
	}

	it.visited++
	return true
}

// Peek returns the index the next call to Next would move to, without moving
func (it *Iterator) Peek() (int, bool) {
	if it.visited >= it.total {
		return -1, false
	}

	return it.indexAt(it.visited), true
}

// Index returns the current index, or -1 before the first call to Next
func (it *Iterator) Index() int {
	if it.visited == 0 {
		return -1
	}

	return it.indexAt(it.visited - 1)
}

// Value returns the element at the current index. The returned slice has the same lifetime
// rules as the one returned by Vector.Get.
func (it *Iterator) Value() ([]byte, error) {
	return it.vector.Get(it.Index())
}

// Remaining is the number of indices left to visit
func (it *Iterator) Remaining() int {
	return it.total - it.visited
}

// Reset returns the iterator to its state before the first call to Next
func (it *Iterator) Reset() {
	it.visited = 0
}
