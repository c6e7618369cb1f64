package metadata_test

import (
	"math"
	"testing"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/memphis242/ccol-sub000/memutils"
	"github.com/memphis242/ccol-sub000/memutils/metadata"
	"github.com/stretchr/testify/require"
)

func newMetadata(t *testing.T, size int) *metadata.SizeClassBlockMetadata {
	md, err := metadata.NewSizeClassBlockMetadata(nil)
	require.NoError(t, err)
	md.Init(size)
	require.NoError(t, md.Validate())
	return md
}

func alloc(t *testing.T, md *metadata.SizeClassBlockMetadata, size int, strategy metadata.AllocationStrategy) metadata.BlockAllocationHandle {
	success, req, err := md.CreateAllocationRequest(size, strategy)
	require.NoError(t, err)
	require.True(t, success)

	err = md.Alloc(req, nil)
	require.NoError(t, err)
	require.NoError(t, md.Validate())

	return req.BlockAllocationHandle
}

func TestSizeClassBasicAlloc(t *testing.T) {
	md := newMetadata(t, 1024)

	var stats memutils.DetailedStatistics
	stats.Clear()
	md.AddDetailedStatistics(&stats)

	require.Equal(t, memutils.DetailedStatistics{
		Statistics: memutils.Statistics{
			RegionBytes:     1024,
			BlockCount:      1,
			AllocationCount: 0,
			AllocationBytes: 0,
		},
		FreeBlockCount:    1,
		FreeBytes:         1024,
		AllocationSizeMin: math.MaxInt,
		AllocationSizeMax: 0,
		FreeBlockSizeMin:  1024,
		FreeBlockSizeMax:  1024,
	}, stats)

	success, req, err := md.CreateAllocationRequest(100, metadata.AllocationStrategyMinMemory)
	require.NoError(t, err)
	require.True(t, success)
	require.Equal(t, metadata.AllocationRequestSplit, req.Type)
	require.Equal(t, 0, req.Item.Offset)
	require.Equal(t, 128, req.Item.Size)

	alloc1 := req.BlockAllocationHandle
	err = md.Alloc(req, &alloc1)
	require.NoError(t, err)
	require.NoError(t, md.Validate())

	stats.Clear()
	md.AddDetailedStatistics(&stats)

	require.Equal(t, memutils.DetailedStatistics{
		Statistics: memutils.Statistics{
			RegionBytes:     1024,
			BlockCount:      4,
			AllocationCount: 1,
			AllocationBytes: 128,
		},
		FreeBlockCount:    3,
		FreeBytes:         896,
		AllocationSizeMin: 128,
		AllocationSizeMax: 128,
		FreeBlockSizeMin:  128,
		FreeBlockSizeMax:  512,
	}, stats)

	userData, err := md.AllocationUserData(alloc1)
	require.NoError(t, err)
	require.Equal(t, &alloc1, userData)

	requested, err := md.AllocationRequestedSize(alloc1)
	require.NoError(t, err)
	require.Equal(t, 100, requested)

	err = md.Free(alloc1)
	require.NoError(t, err)
	require.NoError(t, md.Validate())

	stats.Clear()
	md.AddDetailedStatistics(&stats)

	require.Equal(t, memutils.DetailedStatistics{
		Statistics: memutils.Statistics{
			RegionBytes:     1024,
			BlockCount:      1,
			AllocationCount: 0,
			AllocationBytes: 0,
		},
		FreeBlockCount:    1,
		FreeBytes:         1024,
		AllocationSizeMin: math.MaxInt,
		AllocationSizeMax: 0,
		FreeBlockSizeMin:  1024,
		FreeBlockSizeMax:  1024,
	}, stats)
}

func TestSizeClassCarving(t *testing.T) {
	md := newMetadata(t, 100000)

	require.Equal(t, 100000, md.UsableSize())
	require.Equal(t, 100000, md.SumFreeSize())

	var occupancy memutils.Occupancy
	md.AddOccupancy(&occupancy)

	require.Equal(t, memutils.Occupancy{
		RegionBytes:    100000,
		SpaceAvailable: 100000,
		Classes: []memutils.ClassOccupancy{
			{BlockSize: 1024, FreeBlocks: 97},
			{BlockSize: 512, FreeBlocks: 1},
			{BlockSize: 256, FreeBlocks: 0},
			{BlockSize: 128, FreeBlocks: 1},
			{BlockSize: 64, FreeBlocks: 0},
			{BlockSize: 32, FreeBlocks: 1},
		},
	}, occupancy)
	require.Equal(t, 100, occupancy.FreeBlocks())
	require.Equal(t, 0, occupancy.UsedBlocks())
}

func TestSizeClassCarvingLeavesGap(t *testing.T) {
	md := newMetadata(t, 1000)

	require.Equal(t, 1000, md.Size())
	require.Equal(t, 992, md.UsableSize())
	require.Equal(t, 992, md.SumFreeSize())
	require.Equal(t, 5, md.FreeRegionsCount())

	var offsets, sizes []int
	err := md.VisitAllRegions(func(handle metadata.BlockAllocationHandle, offset int, size int, userData any, free bool) error {
		require.True(t, free)
		offsets = append(offsets, offset)
		sizes = append(sizes, size)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []int{0, 512, 768, 896, 960}, offsets)
	require.Equal(t, []int{512, 256, 128, 64, 32}, sizes)
}

func TestSizeClassRequestTooLarge(t *testing.T) {
	md := newMetadata(t, 1024)

	alloc(t, md, 600, metadata.AllocationStrategyMinMemory)

	success, _, err := md.CreateAllocationRequest(600, metadata.AllocationStrategyMinMemory)
	require.NoError(t, err)
	require.False(t, success)

	success, _, err = md.CreateAllocationRequest(2048, metadata.AllocationStrategyMinMemory)
	require.NoError(t, err)
	require.False(t, success)
	require.False(t, md.MayHaveFreeBlock(2048))

	_, _, err = md.CreateAllocationRequest(0, metadata.AllocationStrategyMinMemory)
	require.Error(t, err)

	require.Equal(t, 1, md.AllocationCount())
	require.Equal(t, 0, md.SumFreeSize())
}

func TestSizeClassExactClass(t *testing.T) {
	md := newMetadata(t, 1536)

	success, req, err := md.CreateAllocationRequest(400, metadata.AllocationStrategyMinMemory)
	require.NoError(t, err)
	require.True(t, success)
	require.Equal(t, metadata.AllocationRequestExact, req.Type)
	require.Equal(t, 1024, req.Item.Offset)

	require.NoError(t, md.Alloc(req, nil))
	require.NoError(t, md.Validate())
	require.Equal(t, 1024, md.SumFreeSize())
}

func TestSizeClassMinTimeDoesNotSplit(t *testing.T) {
	md := newMetadata(t, 1024)

	success, req, err := md.CreateAllocationRequest(32, metadata.AllocationStrategyMinTime)
	require.NoError(t, err)
	require.True(t, success)
	require.Equal(t, metadata.AllocationRequestWhole, req.Type)
	require.Equal(t, 1024, req.Item.Size)

	require.NoError(t, md.Alloc(req, nil))
	require.NoError(t, md.Validate())

	size, err := md.AllocationSize(req.BlockAllocationHandle)
	require.NoError(t, err)
	require.Equal(t, 1024, size)
	require.Equal(t, 0, md.SumFreeSize())
	require.False(t, md.MayHaveFreeBlock(32))

	require.NoError(t, md.Free(req.BlockAllocationHandle))
	require.Equal(t, 1024, md.SumFreeSize())
	require.True(t, md.IsEmpty())
}

func TestSizeClassBuddyMerge(t *testing.T) {
	md := newMetadata(t, 1024)

	size := 256 - memutils.DebugMargin
	a := alloc(t, md, size, metadata.AllocationStrategyMinMemory)
	b := alloc(t, md, size, metadata.AllocationStrategyMinMemory)
	c := alloc(t, md, size, metadata.AllocationStrategyMinMemory)
	d := alloc(t, md, size, metadata.AllocationStrategyMinMemory)

	for i, handle := range []metadata.BlockAllocationHandle{a, b, c, d} {
		offset, err := md.AllocationOffset(handle)
		require.NoError(t, err)
		require.Equal(t, i*256, offset)
	}
	require.Equal(t, 0, md.FreeRegionsCount())

	require.NoError(t, md.Free(a))
	require.NoError(t, md.Free(c))
	require.NoError(t, md.Validate())
	require.Equal(t, 2, md.FreeRegionsCount())

	require.NoError(t, md.Free(b))
	require.NoError(t, md.Validate())
	require.Equal(t, 2, md.FreeRegionsCount())

	require.NoError(t, md.Free(d))
	require.NoError(t, md.Validate())
	require.Equal(t, 1, md.FreeRegionsCount())
	require.Equal(t, 1024, md.SumFreeSize())
	require.True(t, md.IsEmpty())
}

func TestSizeClassRootsDoNotMerge(t *testing.T) {
	md := newMetadata(t, 1536)

	a := alloc(t, md, 400, metadata.AllocationStrategyMinMemory)
	b := alloc(t, md, 400, metadata.AllocationStrategyMinMemory)
	require.NoError(t, md.Free(a))
	require.NoError(t, md.Free(b))
	require.NoError(t, md.Validate())

	var occupancy memutils.Occupancy
	md.AddOccupancy(&occupancy)
	require.Equal(t, 1, occupancy.Classes[0].FreeBlocks)
	require.Equal(t, 1, occupancy.Classes[1].FreeBlocks)
	require.Equal(t, 2, md.FreeRegionsCount())
}

func TestSizeClassDoubleFree(t *testing.T) {
	md := newMetadata(t, 1024)

	handle := alloc(t, md, 64, metadata.AllocationStrategyMinMemory)
	require.NoError(t, md.Free(handle))

	err := md.Free(handle)
	require.ErrorIs(t, err, metadata.ErrBlockAlreadyFree)

	_, err = md.AllocationAt(0)
	require.ErrorIs(t, err, metadata.ErrBlockAlreadyFree)

	_, err = md.AllocationAt(5)
	require.ErrorIs(t, err, metadata.ErrUnknownBlock)

	_, err = md.AllocationAt(4096)
	require.ErrorIs(t, err, metadata.ErrUnknownBlock)

	require.NoError(t, md.Validate())
}

func TestSizeClassAllocationAt(t *testing.T) {
	md := newMetadata(t, 1024)

	size := 64 - memutils.DebugMargin
	alloc(t, md, size, metadata.AllocationStrategyMinMemory)
	second := alloc(t, md, size, metadata.AllocationStrategyMinMemory)

	handle, err := md.AllocationAt(64)
	require.NoError(t, err)
	require.Equal(t, second, handle)

	require.NoError(t, md.SetAllocationRequestedSize(handle, 10))
	requested, err := md.AllocationRequestedSize(handle)
	require.NoError(t, err)
	require.Equal(t, 10, requested)

	require.Error(t, md.SetAllocationRequestedSize(handle, size+1))
}

func TestSizeClassClear(t *testing.T) {
	md := newMetadata(t, 3000)

	alloc(t, md, 40, metadata.AllocationStrategyMinMemory)
	alloc(t, md, 700, metadata.AllocationStrategyMinMemory)
	alloc(t, md, 300, metadata.AllocationStrategyMinTime)

	md.Clear()
	require.NoError(t, md.Validate())
	require.True(t, md.IsEmpty())
	require.Equal(t, md.UsableSize(), md.SumFreeSize())
	require.Equal(t, 2976, md.UsableSize())
}

func TestSizeClassBlockSizes(t *testing.T) {
	require.Error(t, metadata.ValidateBlockSizes(nil))
	require.ErrorIs(t, metadata.ValidateBlockSizes([]int{1000, 500}), memutils.PowerOfTwoError)
	require.Error(t, metadata.ValidateBlockSizes([]int{1024, 256}))
	require.Error(t, metadata.ValidateBlockSizes([]int{256, 512}))
	require.NoError(t, metadata.ValidateBlockSizes([]int{4096, 2048}))

	_, err := metadata.NewSizeClassBlockMetadata([]int{48})
	require.Error(t, err)

	md, err := metadata.NewSizeClassBlockMetadata([]int{4096, 2048})
	require.NoError(t, err)
	require.Equal(t, []int{4096, 2048}, md.BlockSizes())
}

func TestSizeClassBlockJsonData(t *testing.T) {
	md := newMetadata(t, 1024)
	alloc(t, md, 1000, metadata.AllocationStrategyMinMemory)

	writer := jwriter.NewWriter()
	obj := writer.Object()
	md.BlockJsonData(&obj)
	obj.End()

	require.JSONEq(t, `{
		"TotalBytes": 1024,
		"UnusedBytes": 0,
		"Allocations": 1,
		"UnusedRanges": 0,
		"UsableBytes": 1024,
		"BlockSizes": [1024, 512, 256, 128, 64, 32]
	}`, string(writer.Bytes()))
}
