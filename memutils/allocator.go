package memutils

import (
	cerrors "github.com/cockroachdb/errors"
)

//go:generate mockgen -source allocator.go -destination ./mocks/allocator.go -package mocks

// Allocator is the storage contract consumed by containers that manage their own backing
// memory. The receiver carries whatever context the backend needs (a heap, a fixed arena), so
// an Allocator value is the whole capability: three operations plus their shared state.
//
// Implementations must be comparable types (pointers or empty structs); containers compare
// allocators with == to decide whether storage can change hands between them.
type Allocator interface {
	// Allocate returns a buffer of exactly size bytes. Errors must match ErrAllocationFailed.
	Allocate(size int) ([]byte, error)
	// Reallocate returns a buffer of newSize bytes whose first min(oldSize, newSize) bytes are the
	// contents of old. The returned buffer may or may not share memory with old. On error, old is
	// untouched and still owned by the caller. Errors must match ErrAllocationFailed.
	Reallocate(old []byte, oldSize, newSize int) ([]byte, error)
	// Reclaim returns a buffer to the backend. Reclaiming a nil buffer is a no-op.
	Reclaim(buf []byte, size int) error
}

// HeapAllocator is the default Allocator, backed by the Go heap. Reclaim leaves the buffer to the
// garbage collector.
type HeapAllocator struct{}

var _ Allocator = HeapAllocator{}

func (HeapAllocator) Allocate(size int) ([]byte, error) {
	if size < 1 {
		return nil, cerrors.Wrapf(ErrAllocationFailed, "invalid allocation size %d", size)
	}

	return make([]byte, size), nil
}

func (HeapAllocator) Reallocate(old []byte, oldSize, newSize int) ([]byte, error) {
	if newSize < 1 {
		return nil, cerrors.Wrapf(ErrAllocationFailed, "invalid reallocation size %d", newSize)
	}

	buf := make([]byte, newSize)
	copy(buf, old[:min(oldSize, newSize, len(old))])
	return buf, nil
}

func (HeapAllocator) Reclaim(buf []byte, size int) error {
	return nil
}
