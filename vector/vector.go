package vector

import (
	"bytes"
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/memphis242/ccol-sub000/arena"
	"github.com/memphis242/ccol-sub000/memutils"
	"golang.org/x/exp/slog"
)

// Vector is a bounds-checked, resizable sequence of fixed-size elements. The element type is
// erased: elements are read and written as byte slices exactly ElementSize bytes long.
//
// A Vector is not synchronized. Byte slices returned by Get and LastElement point into the
// vector's storage and are only valid until the next call that mutates the vector. Use Borrow
// to hold a reference that can detect when that has happened.
type Vector struct {
	logger    *slog.Logger
	allocator memutils.Allocator
	pool      *arena.HandlePool[Vector]
	flags     CreateFlags

	elementSize int
	length      int
	capacity    int
	maxCapacity int
	storage     []byte

	generation uint64
}

// Len is the number of elements the vector holds
func (v *Vector) Len() int { return v.length }

// Cap is the number of elements the vector can hold before it must grow its storage
func (v *Vector) Cap() int { return v.capacity }

// MaxCap is the ceiling the vector's capacity can never grow past
func (v *Vector) MaxCap() int { return v.maxCapacity }

// ElementSize is the byte width of each element
func (v *Vector) ElementSize() int { return v.elementSize }

// IsEmpty is true when the vector holds no elements
func (v *Vector) IsEmpty() bool { return v.length == 0 }

// IsFull is true when the vector holds MaxCap elements and can accept no more
func (v *Vector) IsFull() bool { return v.length == v.maxCapacity }

// Flags returns the flags the vector was created with
func (v *Vector) Flags() CreateFlags { return v.flags }

// Allocator returns the allocator that provides the vector's storage
func (v *Vector) Allocator() memutils.Allocator { return v.allocator }

// Generation changes every time the vector's storage is replaced or released. Values are drawn
// from a process-wide counter, so no two vectors, including two that reuse the same pooled
// handle, ever share a generation.
func (v *Vector) Generation() uint64 { return v.generation }

var generations atomic.Uint64

func nextGeneration() uint64 {
	return generations.Add(1)
}

func (v *Vector) element(idx int) []byte {
	offset := idx * v.elementSize
	return v.storage[offset : offset+v.elementSize : offset+v.elementSize]
}

func (v *Vector) span(start, end int) []byte {
	return v.storage[start*v.elementSize : end*v.elementSize]
}

func (v *Vector) checkIndex(idx int) error {
	if idx < 0 || idx >= v.length {
		return errors.Wrapf(ErrIndexOutOfRange, "index %d is outside a vector of length %d", idx, v.length)
	}
	return nil
}

func (v *Vector) checkRange(start, end int) error {
	if start < 0 || start > end || end > v.length {
		return errors.Wrapf(ErrInvalidRange, "range [%d, %d) is not within a vector of length %d", start, end, v.length)
	}
	return nil
}

func (v *Vector) checkElementData(data []byte) (int, error) {
	if len(data)%v.elementSize != 0 {
		return 0, errors.Wrapf(ErrElementSizeMismatch, "%d bytes is not a whole number of %d-byte elements", len(data), v.elementSize)
	}
	return len(data) / v.elementSize, nil
}

// detach returns data, or a copy of it if it points into the vector's own storage. Incoming
// elements must be detached before the vector grows or shifts, either of which can overwrite them.
func (v *Vector) detach(data []byte) []byte {
	if len(data) == 0 || cap(v.storage) == 0 {
		return data
	}

	base := uintptr(unsafe.Pointer(unsafe.SliceData(v.storage)))
	start := uintptr(unsafe.Pointer(unsafe.SliceData(data)))
	if start+uintptr(len(data)) <= base || start >= base+uintptr(cap(v.storage)) {
		return data
	}

	return bytes.Clone(data)
}

// scrub zeroes the element slots [start, end) if the vector was created with CreateSecureRemoval
func (v *Vector) scrub(start, end int) {
	if v.flags&CreateSecureRemoval != 0 && start < end {
		clear(v.span(start, end))
	}
}

// releaseStorage returns the vector's storage to its allocator and leaves it with no capacity
func (v *Vector) releaseStorage() error {
	if v.storage == nil {
		return nil
	}

	err := v.allocator.Reclaim(v.storage, len(v.storage))
	if err != nil {
		return errors.Wrap(err, "failed to reclaim vector storage")
	}

	v.storage = nil
	v.capacity = 0
	v.length = 0
	v.generation = nextGeneration()
	return nil
}

// PrintParameters writes the vector's shape to a JSON object. Element contents are not written.
func (v *Vector) PrintParameters(json *jwriter.ObjectState) {
	json.Name("ElementSize").Int(v.elementSize)
	json.Name("Length").Int(v.length)
	json.Name("Capacity").Int(v.capacity)
	json.Name("MaxCapacity").Int(v.maxCapacity)
	json.Name("StorageBytes").Int(len(v.storage))
	json.Name("Flags").String(v.flags.String())
	json.Name("Allocator").String(fmt.Sprintf("%T", v.allocator))
	json.Name("Pooled").Bool(v.pool != nil)
}

// String renders the vector's shape as a JSON object
func (v *Vector) String() string {
	writer := jwriter.NewWriter()
	obj := writer.Object()
	v.PrintParameters(&obj)
	obj.End()
	return string(writer.Bytes())
}
