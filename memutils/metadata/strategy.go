package metadata

// AllocationStrategy exposes options for choosing the block that will satisfy a new allocation.
// If none is chosen, AllocationStrategyMinMemory will be used.
type AllocationStrategy uint32

const (
	// AllocationStrategyMinMemory selects the strategy that splits a larger free block in halves until it
	// reaches the smallest size class that fits the request, minimizing wasted bytes at the expense of
	// allocation and free time
	AllocationStrategyMinMemory AllocationStrategy = 1 << iota
	// AllocationStrategyMinTime selects the strategy that leases the first suitable free block whole,
	// never splitting, to minimize allocation time at the expense of memory usage
	AllocationStrategyMinTime
)

var allocationStrategyMapping = map[AllocationStrategy]string{
	AllocationStrategyMinMemory: "MinMemory",
	AllocationStrategyMinTime:   "MinTime",
}

func (s AllocationStrategy) String() string {
	if str, ok := allocationStrategyMapping[s]; ok {
		return str
	}
	return "Default"
}
