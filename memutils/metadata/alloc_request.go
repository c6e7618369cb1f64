package metadata

// AllocationRequestType is an enum that indicates the type of allocation that is being made.
// It is returned in AllocationRequest from CreateAllocationRequest
type AllocationRequestType uint32

const (
	// AllocationRequestExact indicates that the chosen free block is already the target size class
	AllocationRequestExact AllocationRequestType = iota
	// AllocationRequestSplit indicates that the chosen free block belongs to a larger size class and
	// will be split in halves down to the target size class when the request is committed
	AllocationRequestSplit
	// AllocationRequestWhole indicates that the chosen free block belongs to a larger size class and
	// will be leased whole
	AllocationRequestWhole
)

var allocationRequestMapping = map[AllocationRequestType]string{
	AllocationRequestExact: "Exact",
	AllocationRequestSplit: "Split",
	AllocationRequestWhole: "Whole",
}

func (t AllocationRequestType) String() string {
	return allocationRequestMapping[t]
}

// AllocationRequest is a type returned from BlockMetadata.CreateAllocationRequest which indicates where and how
// the metadata intends to place new memory. The consumer can check the request against its own state and then
// commit it to the metadata with BlockMetadata.Alloc
type AllocationRequest struct {
	// BlockAllocationHandle is a numeric handle used to identify the free block the request will consume
	BlockAllocationHandle BlockAllocationHandle
	// Size is the number of bytes originally requested, not including any debug margin
	Size int
	// Item is a Suballocation object indicating where the lease will land once committed
	Item Suballocation
	// Type identifies the sort of allocation this request represents
	Type AllocationRequestType

	// AlgorithmData is arbitrary data used by the BlockMetadata implementation for internal
	// purposes
	AlgorithmData uint64
}
