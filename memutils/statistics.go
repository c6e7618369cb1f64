package memutils

import "math"

// Statistics summarizes the leases held against a block arena. Byte counts are measured in
// whole blocks, so AllocationBytes includes the slack between a request and its block size.
type Statistics struct {
	RegionBytes     int
	BlockCount      int
	AllocationCount int
	AllocationBytes int
}

func (s *Statistics) Clear() {
	s.RegionBytes = 0
	s.BlockCount = 0
	s.AllocationCount = 0
	s.AllocationBytes = 0
}

func (s *Statistics) AddStatistics(other *Statistics) {
	s.RegionBytes += other.RegionBytes
	s.BlockCount += other.BlockCount
	s.AllocationCount += other.AllocationCount
	s.AllocationBytes += other.AllocationBytes
}

type DetailedStatistics struct {
	Statistics
	FreeBlockCount    int
	FreeBytes         int
	AllocationSizeMin int
	AllocationSizeMax int
	FreeBlockSizeMin  int
	FreeBlockSizeMax  int
}

func (s *DetailedStatistics) Clear() {
	s.Statistics.Clear()
	s.FreeBlockCount = 0
	s.FreeBytes = 0
	s.AllocationSizeMin = math.MaxInt
	s.AllocationSizeMax = 0
	s.FreeBlockSizeMin = math.MaxInt
	s.FreeBlockSizeMax = 0
}

func (s *DetailedStatistics) AddFreeBlock(size int) {
	s.BlockCount++
	s.FreeBlockCount++
	s.FreeBytes += size

	s.FreeBlockSizeMin = min(s.FreeBlockSizeMin, size)
	s.FreeBlockSizeMax = max(s.FreeBlockSizeMax, size)
}

func (s *DetailedStatistics) AddAllocation(size int) {
	s.BlockCount++
	s.AllocationCount++
	s.AllocationBytes += size

	s.AllocationSizeMin = min(s.AllocationSizeMin, size)
	s.AllocationSizeMax = max(s.AllocationSizeMax, size)
}

func (s *DetailedStatistics) AddDetailedStatistics(other *DetailedStatistics) {
	s.Statistics.AddStatistics(&other.Statistics)
	s.FreeBlockCount += other.FreeBlockCount
	s.FreeBytes += other.FreeBytes

	s.FreeBlockSizeMin = min(s.FreeBlockSizeMin, other.FreeBlockSizeMin)
	s.FreeBlockSizeMax = max(s.FreeBlockSizeMax, other.FreeBlockSizeMax)
	s.AllocationSizeMin = min(s.AllocationSizeMin, other.AllocationSizeMin)
	s.AllocationSizeMax = max(s.AllocationSizeMax, other.AllocationSizeMax)
}
