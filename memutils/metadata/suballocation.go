package metadata

import "math"

type BlockAllocationHandle uint64

const (
	NoAllocation BlockAllocationHandle = math.MaxUint64
)

// Suballocation describes one block of the region
type Suballocation struct {
	Offset   int
	Size     int
	UserData any
}
