package memutils

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// ClassOccupancy is the free/used block histogram entry for one block size
type ClassOccupancy struct {
	BlockSize  int
	FreeBlocks int
	UsedBlocks int
}

// Occupancy is a read-only snapshot of a block arena, suitable for handing to diagnostics
// without exposing the arena itself
type Occupancy struct {
	RegionBytes    int
	SpaceAvailable int
	// Classes is ordered from the largest block size to the smallest
	Classes []ClassOccupancy
}

func (o Occupancy) UsedBlocks() int {
	var count int
	for _, class := range o.Classes {
		count += class.UsedBlocks
	}
	return count
}

func (o Occupancy) FreeBlocks() int {
	var count int
	for _, class := range o.Classes {
		count += class.FreeBlocks
	}
	return count
}

func (o Occupancy) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "region %s, %s available", humanize.IBytes(uint64(o.RegionBytes)), humanize.IBytes(uint64(o.SpaceAvailable)))
	for _, class := range o.Classes {
		fmt.Fprintf(&sb, "; %dB: %d free %d used", class.BlockSize, class.FreeBlocks, class.UsedBlocks)
	}
	return sb.String()
}
