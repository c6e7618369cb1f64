package metadata

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/memphis242/ccol-sub000/memutils"
)

// BlockMetadata represents the bookkeeping for a single fixed region of memory. It manages
// blocks within the region, allowing them to be leased and returned, as well as enumerated
// and queried. It never touches the region's bytes except through CheckCorruption.
type BlockMetadata interface {
	// Init must be called before the BlockMetadata is used. It gives the implementation an opportunity
	// to partition the region into blocks, and informs the implementation of the size in bytes of the
	// region it will be managing, via the size parameter.
	Init(size int)
	// Size retrieves the size in bytes that the region was initialized with
	Size() int
	// UsableSize retrieves the number of bytes of the region that belong to some block. Any bytes past
	// this point are a gap too small for the smallest block.
	UsableSize() int

	// Validate performs internal consistency checks on the metadata. These checks may be expensive, depending
	// on the implementation. When the implementation is functioning correctly, it should not be possible
	// for this method to return an error, but this may assist in diagnosing issues with the implementation.
	Validate() error
	// AllocationCount returns the number of leased blocks currently live in the implementation. This number
	// should be the number of successful allocations minus the number of successful frees.
	AllocationCount() int
	// FreeRegionsCount returns the number of free blocks in the region
	FreeRegionsCount() int
	// SumFreeSize returns the number of free bytes held in usable blocks
	SumFreeSize() int
	// MayHaveFreeBlock should return a fast heuristic indicating whether the region could possibly
	// support a new allocation of the provided size. False positives are ok, false negatives are not.
	MayHaveFreeBlock(size int) bool

	// IsEmpty will return true if this region has no live leases
	IsEmpty() bool

	// VisitAllRegions will call the provided callback once for each leased and free block in
	// the region, in offset order.
	VisitAllRegions(handleBlock func(handle BlockAllocationHandle, offset int, size int, userData any, free bool) error) error

	// AllocationAt accepts a byte offset within the region and returns the handle of the leased
	// block that begins there. The returned error matches ErrUnknownBlock when no block begins at
	// offset, and ErrBlockAlreadyFree when the block there is not leased.
	AllocationAt(offset int) (BlockAllocationHandle, error)
	// AllocationOffset accepts a BlockAllocationHandle that maps to a live block (leased or free)
	// and returns the offset in bytes within the region for that block.
	AllocationOffset(allocHandle BlockAllocationHandle) (int, error)
	// AllocationSize accepts a BlockAllocationHandle that maps to a live block and returns the
	// full size of the block, which may be larger than what was requested.
	AllocationSize(allocHandle BlockAllocationHandle) (int, error)
	// AllocationUserData accepts a BlockAllocationHandle that maps to a leased block and returns
	// the userdata value provided by the consumer for that lease.
	AllocationUserData(allocHandle BlockAllocationHandle) (any, error)
	// SetAllocationUserData accepts a BlockAllocationHandle that maps to a leased block and a
	// userData value. The lease's userData is changed to the provided userData.
	SetAllocationUserData(allocHandle BlockAllocationHandle, userData any) error

	// AddDetailedStatistics sums this region's statistics into the statistics currently present
	// in the provided memutils.DetailedStatistics object.
	AddDetailedStatistics(stats *memutils.DetailedStatistics)
	// AddStatistics sums this region's statistics into the statistics currently present in the
	// provided memutils.Statistics object.
	AddStatistics(stats *memutils.Statistics)
	// AddOccupancy appends one memutils.ClassOccupancy per block size, largest first, and adds
	// this region's sizes to the provided memutils.Occupancy
	AddOccupancy(occupancy *memutils.Occupancy)

	// Clear instantly frees all leases and restores the initial partition
	Clear()
	// BlockJsonData populates a json object with information about this region
	BlockJsonData(json *jwriter.ObjectState)

	// CheckCorruption accepts the region that this metadata manages. It will return nil if
	// anti-corruption memory markers are present after every leased block's requested bytes.
	//
	// Bear in mind that anti-corruption memory markers are only written when memutils is built with
	// the build flag `debug_mem_utils`. It is the responsibility of consumers to write the markers
	// themselves after allocation, by calling memutils.WriteMagicValue with the same region sent to
	// CheckCorruption.
	CheckCorruption(region []byte) error

	// CreateAllocationRequest retrieves an AllocationRequest object indicating where and how the
	// implementation would prefer to place the requested memory. That object can be passed to Alloc
	// to commit the lease. A false return with a nil error means the region cannot currently satisfy
	// the request.
	CreateAllocationRequest(allocSize int, strategy AllocationStrategy) (bool, AllocationRequest, error)
	// Alloc commits an AllocationRequest object, leasing the block described by it. The implementation
	// must return an error if the request is no longer valid.
	Alloc(request AllocationRequest, userData any) error

	// Free returns a leased block to the region, causing it to become free once again.
	//
	// The implementation must return an error if the provided handle does not map to a leased block
	// within this region.
	Free(allocHandle BlockAllocationHandle) error
}

// BlockMetadataBase is a simple struct that provides a few shared utilities for BlockMetadata
// implementations in the memutils module.
type BlockMetadataBase struct {
	size int
}

// Init prepares this structure for allocations and sizes the region in bytes based on the parameter size.
func (m *BlockMetadataBase) Init(size int) {
	m.size = size
}

// Size returns the size of the region in bytes
func (m *BlockMetadataBase) Size() int { return m.size }

// BlockJsonData populates a json object with summary information about this region
func (m *BlockMetadataBase) BlockJsonData(json *jwriter.ObjectState, unusedBytes, allocationCount, unusedRangeCount int) {
	json.Name("TotalBytes").Int(m.Size())
	json.Name("UnusedBytes").Int(unusedBytes)
	json.Name("Allocations").Int(allocationCount)
	json.Name("UnusedRanges").Int(unusedRangeCount)
}
