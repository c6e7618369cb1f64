package metadata

import (
	"fmt"
	"math/bits"
	"sync"

	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/memphis242/ccol-sub000/memutils"
	"github.com/pkg/errors"
	"golang.org/x/exp/slog"
)

// MaxSizeClasses is the largest number of block sizes a SizeClassBlockMetadata can manage
const MaxSizeClasses = 32

// DefaultBlockSizes is the size class ladder used when the consumer does not provide one
var DefaultBlockSizes = []int{1024, 512, 256, 128, 64, 32}

var blockAllocator = sync.Pool{
	New: func() any {
		return &sizeClassBlock{}
	},
}

type sizeClassBlock struct {
	offset int
	size   int
	class  int
	// rootSize is the size of the block carved at Init that this block was split from. Buddies
	// never merge past it.
	rootSize  int
	requested int

	prevFree *sizeClassBlock
	nextFree *sizeClassBlock
	free     bool

	userData any
}

func (b *sizeClassBlock) MarkFree() {
	b.free = true
	b.requested = 0
	b.userData = nil
}

func (b *sizeClassBlock) MarkTaken() {
	b.free = false
}

func (b *sizeClassBlock) IsFree() bool {
	return b.free
}

func (b *sizeClassBlock) handle() BlockAllocationHandle {
	return BlockAllocationHandle(b.offset)
}

// SizeClassBlockMetadata is a BlockMetadata implementation that partitions a fixed region into
// power-of-two blocks drawn from a descending ladder of size classes. Requests are rounded up to
// the smallest class that fits. When that class has no free block, a block from the nearest larger
// class is split in halves (buddies) until it reaches the target class, and freed buddies are merged
// back together whenever both halves are free.
//
// Block handles are the block's offset within the region, so a consumer holding only a pointer into
// the region can recover its lease with AllocationAt.
type SizeClassBlockMetadata struct {
	BlockMetadataBase

	blockSizes      []int
	usableSize      int
	allocCount      int
	blocksFreeCount int
	blocksFreeSize  int
	isFreeBitmap    uint32
	freeCounts      []int
	usedCounts      []int

	handleKey *swiss.Map[BlockAllocationHandle, *sizeClassBlock]
	freeList  []*sizeClassBlock
}

var _ BlockMetadata = &SizeClassBlockMetadata{}

// ValidateBlockSizes returns an error if blockSizes is not a non-empty, strictly descending ladder
// of powers of two where each size is half of the one before it
func ValidateBlockSizes(blockSizes []int) error {
	if len(blockSizes) == 0 {
		return errors.New("at least one block size is required")
	}

	if len(blockSizes) > MaxSizeClasses {
		return errors.Errorf("at most %d block sizes are supported, but %d were provided", MaxSizeClasses, len(blockSizes))
	}

	for i, size := range blockSizes {
		err := memutils.CheckPow2(size, fmt.Sprintf("block size %d", i))
		if err != nil {
			return err
		}

		if size <= memutils.DebugMargin {
			return errors.Errorf("block size %d must be larger than the debug margin of %d bytes", size, memutils.DebugMargin)
		}

		if i > 0 && blockSizes[i-1] != size*2 {
			return errors.Errorf("block size %d must be half of the previous block size %d", size, blockSizes[i-1])
		}
	}

	return nil
}

// NewSizeClassBlockMetadata creates a new SizeClassBlockMetadata that will carve blocks of the
// provided sizes, largest first. If blockSizes is empty, DefaultBlockSizes is used.
func NewSizeClassBlockMetadata(blockSizes []int) (*SizeClassBlockMetadata, error) {
	if len(blockSizes) == 0 {
		blockSizes = DefaultBlockSizes
	}

	err := ValidateBlockSizes(blockSizes)
	if err != nil {
		return nil, err
	}

	sizes := make([]int, len(blockSizes))
	copy(sizes, blockSizes)

	return &SizeClassBlockMetadata{
		blockSizes: sizes,
		freeCounts: make([]int, len(sizes)),
		usedCounts: make([]int, len(sizes)),
		freeList:   make([]*sizeClassBlock, len(sizes)),
	}, nil
}

// BlockSizes returns the size class ladder, largest first
func (m *SizeClassBlockMetadata) BlockSizes() []int {
	return m.blockSizes
}

func (m *SizeClassBlockMetadata) allocateBlock(offset, class, rootSize int) *sizeClassBlock {
	b := blockAllocator.Get().(*sizeClassBlock)
	b.offset = offset
	b.size = m.blockSizes[class]
	b.class = class
	b.rootSize = rootSize
	b.requested = 0
	b.prevFree = nil
	b.nextFree = nil
	b.free = false
	b.userData = nil
	m.handleKey.Put(b.handle(), b)
	return b
}

func (m *SizeClassBlockMetadata) freeBlock(b *sizeClassBlock) {
	m.handleKey.Delete(b.handle())
	blockAllocator.Put(b)
}

func (m *SizeClassBlockMetadata) getBlock(handle BlockAllocationHandle) (*sizeClassBlock, error) {
	block, ok := m.handleKey.Get(handle)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownBlock, "received handle %d that was incompatible with this metadata", handle)
	}
	return block, nil
}

// Init carves the region greedily: as many blocks of the largest size as fit, then the remainder
// into the next size down, and so on. A tail smaller than the smallest size is left unusable.
func (m *SizeClassBlockMetadata) Init(size int) {
	m.BlockMetadataBase.Init(size)
	m.handleKey = swiss.NewMap[BlockAllocationHandle, *sizeClassBlock](uint32(max(size/m.blockSizes[0], 1) * 2))
	m.allocCount = 0
	m.blocksFreeCount = 0
	m.blocksFreeSize = 0
	m.isFreeBitmap = 0

	m.carve()
}

func (m *SizeClassBlockMetadata) carve() {
	offset := 0
	remaining := m.size

	for class, blockSize := range m.blockSizes {
		count := remaining / blockSize
		remaining %= blockSize

		for i := 0; i < count; i++ {
			block := m.allocateBlock(offset, class, blockSize)
			m.insertFreeBlock(block)
			offset += blockSize
		}
	}

	m.usableSize = offset
}

func (m *SizeClassBlockMetadata) UsableSize() int {
	return m.usableSize
}

func (m *SizeClassBlockMetadata) Validate() error {
	if m.SumFreeSize() > m.usableSize {
		return errors.New("invalid metadata free size")
	}

	if m.usableSize > m.Size() {
		return errors.Errorf("the usable size %d is larger than the region size %d", m.usableSize, m.Size())
	}

	smallest := m.blockSizes[len(m.blockSizes)-1]
	if m.usableSize != memutils.AlignDown(m.Size(), uint(smallest)) {
		return errors.Errorf("the usable size %d is not the region size %d rounded down to the smallest block size %d", m.usableSize, m.Size(), smallest)
	}

	var allocCount, freeCount, freeListCount, calculatedFreeSize, blockCount int
	freeCounts := make([]int, len(m.blockSizes))
	usedCounts := make([]int, len(m.blockSizes))

	// Check integrity of free lists
	for class := 0; class < len(m.freeList); class++ {
		block := m.freeList[class]
		hasBit := m.isFreeBitmap&(1<<class) != 0
		if (block != nil) != hasBit {
			return errors.Errorf("free bitmap for block size %d does not match its free list", m.blockSizes[class])
		}

		if block == nil {
			continue
		}

		if block.prevFree != nil {
			return errors.Errorf("block at offset %d is the head of a free list but has a previous block", block.offset)
		}

		for ; block != nil; block = block.nextFree {
			if !block.IsFree() {
				return errors.Errorf("block at offset %d is in the free list but is not free", block.offset)
			}
			if block.class != class {
				return errors.Errorf("block at offset %d of size %d is in the free list for block size %d", block.offset, block.size, m.blockSizes[class])
			}
			if block.nextFree != nil && block.nextFree.prevFree != block {
				return errors.Errorf("block at offset %d lists the block at offset %d as its next block, but the reverse reference is broken", block.offset, block.nextFree.offset)
			}

			freeListCount++
		}
	}

	// Walk the physical blocks in offset order
	offset := 0
	for offset < m.usableSize {
		block, ok := m.handleKey.Get(BlockAllocationHandle(offset))
		if !ok {
			return errors.Errorf("no block begins at offset %d, but the previous block ended there", offset)
		}

		if block.size != m.blockSizes[block.class] {
			return errors.Errorf("block at offset %d has size %d but belongs to block size %d", offset, block.size, m.blockSizes[block.class])
		}

		if block.offset%block.size != 0 {
			return errors.Errorf("block at offset %d is not aligned to its size %d", offset, block.size)
		}

		if block.size > block.rootSize {
			return errors.Errorf("block at offset %d is larger than the block it was split from", offset)
		}

		if block.IsFree() {
			freeCount++
			freeCounts[block.class]++
			calculatedFreeSize += block.size
		} else {
			allocCount++
			usedCounts[block.class]++

			if block.requested+memutils.DebugMargin > block.size {
				return errors.Errorf("block at offset %d holds %d requested bytes but is only %d bytes", offset, block.requested, block.size)
			}
		}

		blockCount++
		offset += block.size
	}

	if offset != m.usableSize {
		return errors.Errorf("the usable size of the metadata is %d, but the blocks added up to %d", m.usableSize, offset)
	}

	if blockCount != m.handleKey.Count() {
		return errors.Errorf("the metadata tracks %d blocks, but only %d tile the region", m.handleKey.Count(), blockCount)
	}

	if freeListCount != freeCount {
		return errors.Errorf("the number of free blocks in the physical list and the number of blocks in the free list do not match! free list size: %d, physical list free blocks: %d", freeListCount, freeCount)
	}

	if calculatedFreeSize != m.SumFreeSize() {
		return errors.Errorf("the free size of the metadata is %d, but the free blocks only added up to %d", m.SumFreeSize(), calculatedFreeSize)
	}

	if allocCount != m.allocCount {
		return errors.Errorf("the allocation count of the metadata is %d, but the taken blocks only added up to %d", m.allocCount, allocCount)
	}

	if freeCount != m.blocksFreeCount {
		return errors.Errorf("the free block count of the metadata is %d, but there were only %d free blocks", m.blocksFreeCount, freeCount)
	}

	for class := range m.blockSizes {
		if freeCounts[class] != m.freeCounts[class] || usedCounts[class] != m.usedCounts[class] {
			return errors.Errorf("the counters for block size %d do not match the blocks in the region", m.blockSizes[class])
		}
	}

	return nil
}

func (m *SizeClassBlockMetadata) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	stats.RegionBytes += m.size

	_ = m.VisitAllRegions(func(handle BlockAllocationHandle, offset int, size int, userData any, free bool) error {
		if free {
			stats.AddFreeBlock(size)
		} else {
			stats.AddAllocation(size)
		}
		return nil
	})
}

func (m *SizeClassBlockMetadata) AddStatistics(stats *memutils.Statistics) {
	stats.RegionBytes += m.size
	stats.BlockCount += m.allocCount + m.blocksFreeCount
	stats.AllocationCount += m.allocCount
	stats.AllocationBytes += m.usableSize - m.SumFreeSize()
}

func (m *SizeClassBlockMetadata) AddOccupancy(occupancy *memutils.Occupancy) {
	occupancy.RegionBytes += m.size
	occupancy.SpaceAvailable += m.SumFreeSize()

	for class, blockSize := range m.blockSizes {
		occupancy.Classes = append(occupancy.Classes, memutils.ClassOccupancy{
			BlockSize:  blockSize,
			FreeBlocks: m.freeCounts[class],
			UsedBlocks: m.usedCounts[class],
		})
	}
}

func (m *SizeClassBlockMetadata) AllocationCount() int {
	return m.allocCount
}

func (m *SizeClassBlockMetadata) FreeRegionsCount() int {
	return m.blocksFreeCount
}

func (m *SizeClassBlockMetadata) SumFreeSize() int {
	return m.blocksFreeSize
}

func (m *SizeClassBlockMetadata) IsEmpty() bool {
	return m.allocCount == 0
}

// sizeToClass returns the index of the smallest block size that can hold size bytes, or -1
// if size is larger than the largest block size
func (m *SizeClassBlockMetadata) sizeToClass(size int) int {
	if size > m.blockSizes[0] {
		return -1
	}

	smallest := m.blockSizes[len(m.blockSizes)-1]
	if size <= smallest {
		return len(m.blockSizes) - 1
	}

	// Sizes halve at every step, so the distance from the top is the difference in bit length
	return bits.Len(uint(m.blockSizes[0]-1)) - bits.Len(uint(size-1))
}

func (m *SizeClassBlockMetadata) MayHaveFreeBlock(size int) bool {
	class := m.sizeToClass(size + memutils.DebugMargin)
	if class < 0 {
		return false
	}

	return m.isFreeBitmap&classMask(class) != 0
}

// classMask selects class and every larger class
func classMask(class int) uint32 {
	return uint32((uint64(1) << (class + 1)) - 1)
}

// findFreeBlock returns the head of the free list for the smallest non-empty class that is at
// least as large as class, along with that class
func (m *SizeClassBlockMetadata) findFreeBlock(class int) (*sizeClassBlock, int) {
	freeMap := m.isFreeBitmap & classMask(class)
	if freeMap == 0 {
		return nil, -1
	}

	foundClass := bits.Len32(freeMap) - 1
	if m.freeList[foundClass] == nil {
		panic(fmt.Sprintf("block size %d was listed as having free blocks, but no blocks were in the free list", m.blockSizes[foundClass]))
	}

	return m.freeList[foundClass], foundClass
}

func (m *SizeClassBlockMetadata) CreateAllocationRequest(
	allocSize int,
	strategy AllocationStrategy,
) (bool, AllocationRequest, error) {
	var allocRequest AllocationRequest

	if allocSize < 1 {
		return false, allocRequest, errors.Errorf("Invalid allocSize: %d", allocSize)
	}

	memutils.DebugValidate(m)

	totalSize := allocSize + memutils.DebugMargin
	targetClass := m.sizeToClass(totalSize)

	// Larger than any block, or than everything left?
	if targetClass < 0 || totalSize > m.SumFreeSize() {
		return false, allocRequest, nil
	}

	block, foundClass := m.findFreeBlock(targetClass)
	if block == nil {
		return false, allocRequest, nil
	}

	allocRequest.BlockAllocationHandle = block.handle()
	allocRequest.Size = allocSize
	allocRequest.Item = Suballocation{Offset: block.offset, Size: m.blockSizes[targetClass]}
	allocRequest.AlgorithmData = uint64(targetClass)

	switch {
	case foundClass == targetClass:
		allocRequest.Type = AllocationRequestExact
	case strategy&AllocationStrategyMinTime != 0:
		allocRequest.Type = AllocationRequestWhole
		allocRequest.Item.Size = block.size
		allocRequest.AlgorithmData = uint64(foundClass)
	default:
		allocRequest.Type = AllocationRequestSplit
	}

	return true, allocRequest, nil
}

func (m *SizeClassBlockMetadata) Alloc(req AllocationRequest, userData any) error {
	block, err := m.getBlock(req.BlockAllocationHandle)
	if err != nil {
		return err
	}

	if !block.IsFree() {
		return errors.Errorf("allocation request targets the block at offset %d, which is already taken", block.offset)
	}

	targetClass := int(req.AlgorithmData)
	if targetClass < block.class || targetClass >= len(m.blockSizes) {
		return errors.Errorf("allocation request for block size class %d cannot be satisfied by the block at offset %d of size %d", targetClass, block.offset, block.size)
	}

	if req.Size+memutils.DebugMargin > m.blockSizes[targetClass] {
		return errors.New("allocation request had a block too small for the request")
	}

	m.removeFreeBlock(block)

	// Split off upper halves until the block reaches the target class
	for block.class < targetClass {
		block.class++
		block.size = m.blockSizes[block.class]

		buddy := m.allocateBlock(block.offset+block.size, block.class, block.rootSize)
		m.insertFreeBlock(buddy)
	}

	block.MarkTaken()
	block.requested = req.Size
	block.userData = userData
	m.usedCounts[block.class]++
	m.allocCount++

	return nil
}

func (m *SizeClassBlockMetadata) Free(allocHandle BlockAllocationHandle) error {
	block, err := m.getBlock(allocHandle)
	if err != nil {
		return err
	}
	if block.IsFree() {
		return errors.Wrapf(ErrBlockAlreadyFree, "block at offset %d", block.offset)
	}

	m.usedCounts[block.class]--
	m.allocCount--
	block.MarkFree()

	// Try merging
	for block.size < block.rootSize {
		buddy, ok := m.handleKey.Get(BlockAllocationHandle(block.offset ^ block.size))
		if !ok || !buddy.IsFree() || buddy.size != block.size {
			break
		}

		m.removeFreeBlock(buddy)
		block = m.mergeBlock(block, buddy)
	}

	m.insertFreeBlock(block)

	return nil
}

func (m *SizeClassBlockMetadata) removeFreeBlock(block *sizeClassBlock) {
	if !block.IsFree() {
		panic("provided block is not free")
	}

	// Remove from free list chain
	if block.nextFree != nil {
		block.nextFree.prevFree = block.prevFree
	}
	if block.prevFree != nil {
		block.prevFree.nextFree = block.nextFree
	} else {
		if m.freeList[block.class] != block {
			panic("block was not in the free list at the expected location")
		}
		m.freeList[block.class] = block.nextFree
		if block.nextFree == nil {
			m.isFreeBitmap &= ^(uint32(1) << block.class)
		}
	}

	block.prevFree = nil
	block.nextFree = nil
	block.MarkTaken()
	m.freeCounts[block.class]--
	m.blocksFreeCount--
	m.blocksFreeSize -= block.size
}

func (m *SizeClassBlockMetadata) insertFreeBlock(block *sizeClassBlock) {
	block.MarkFree()
	block.prevFree = nil
	block.nextFree = m.freeList[block.class]
	m.freeList[block.class] = block
	if block.nextFree != nil {
		block.nextFree.prevFree = block
	} else {
		m.isFreeBitmap |= uint32(1) << block.class
	}
	m.freeCounts[block.class]++
	m.blocksFreeCount++
	m.blocksFreeSize += block.size
}

// mergeBlock joins two buddies into the lower of the two and returns it
func (m *SizeClassBlockMetadata) mergeBlock(block *sizeClassBlock, buddy *sizeClassBlock) *sizeClassBlock {
	if block.size != buddy.size || block.offset^block.size != buddy.offset {
		panic("cannot merge blocks that are not buddies")
	}

	lower, upper := block, buddy
	if upper.offset < lower.offset {
		lower, upper = upper, lower
	}

	lower.class--
	lower.size = m.blockSizes[lower.class]
	m.freeBlock(upper)

	return lower
}

func (m *SizeClassBlockMetadata) VisitAllRegions(handleBlock func(handle BlockAllocationHandle, offset int, size int, userData any, free bool) error) error {
	for offset := 0; offset < m.usableSize; {
		block, ok := m.handleKey.Get(BlockAllocationHandle(offset))
		if !ok {
			return errors.Errorf("no block begins at offset %d", offset)
		}

		err := handleBlock(block.handle(), block.offset, block.size, block.userData, block.IsFree())
		if err != nil {
			return err
		}

		offset += block.size
	}

	return nil
}

func (m *SizeClassBlockMetadata) AllocationAt(offset int) (BlockAllocationHandle, error) {
	if offset < 0 || offset >= m.usableSize {
		return NoAllocation, errors.Wrapf(ErrUnknownBlock, "offset %d is outside the usable region", offset)
	}

	block, err := m.getBlock(BlockAllocationHandle(offset))
	if err != nil {
		return NoAllocation, err
	}

	if block.IsFree() {
		return NoAllocation, errors.Wrapf(ErrBlockAlreadyFree, "block at offset %d", offset)
	}

	return block.handle(), nil
}

func (m *SizeClassBlockMetadata) AllocationOffset(allocHandle BlockAllocationHandle) (int, error) {
	block, err := m.getBlock(allocHandle)
	if err != nil {
		return 0, err
	}

	return block.offset, nil
}

func (m *SizeClassBlockMetadata) AllocationSize(allocHandle BlockAllocationHandle) (int, error) {
	block, err := m.getBlock(allocHandle)
	if err != nil {
		return 0, err
	}

	return block.size, nil
}

// AllocationRequestedSize returns the number of bytes the consumer asked for when the block was leased
func (m *SizeClassBlockMetadata) AllocationRequestedSize(allocHandle BlockAllocationHandle) (int, error) {
	block, err := m.getBlock(allocHandle)
	if err != nil {
		return 0, err
	}

	if block.IsFree() {
		return 0, errors.Wrapf(ErrBlockAlreadyFree, "block at offset %d", block.offset)
	}

	return block.requested, nil
}

// SetAllocationRequestedSize records a new requested size for a leased block that was resized in place
func (m *SizeClassBlockMetadata) SetAllocationRequestedSize(allocHandle BlockAllocationHandle, size int) error {
	block, err := m.getBlock(allocHandle)
	if err != nil {
		return err
	}

	if block.IsFree() {
		return errors.Wrapf(ErrBlockAlreadyFree, "block at offset %d", block.offset)
	}

	if size < 1 || size+memutils.DebugMargin > block.size {
		return errors.Errorf("requested size %d does not fit the block at offset %d of size %d", size, block.offset, block.size)
	}

	block.requested = size
	return nil
}

func (m *SizeClassBlockMetadata) AllocationUserData(allocHandle BlockAllocationHandle) (any, error) {
	block, err := m.getBlock(allocHandle)
	if err != nil {
		return nil, err
	}

	if block.IsFree() {
		return nil, errors.New("user data cannot be retrieved for a free block")
	}

	return block.userData, nil
}

func (m *SizeClassBlockMetadata) SetAllocationUserData(allocHandle BlockAllocationHandle, userData any) error {
	block, err := m.getBlock(allocHandle)
	if err != nil {
		return err
	}

	if block.IsFree() {
		return errors.New("user data cannot be set for a free block")
	}

	block.userData = userData
	return nil
}

func (m *SizeClassBlockMetadata) Clear() {
	m.handleKey.Iter(func(handle BlockAllocationHandle, block *sizeClassBlock) bool {
		blockAllocator.Put(block)
		return false
	})
	m.handleKey = swiss.NewMap[BlockAllocationHandle, *sizeClassBlock](uint32(m.handleKey.Count()))

	m.allocCount = 0
	m.blocksFreeCount = 0
	m.blocksFreeSize = 0
	m.isFreeBitmap = 0
	for class := range m.blockSizes {
		m.freeList[class] = nil
		m.freeCounts[class] = 0
		m.usedCounts[class] = 0
	}

	m.carve()
}

func (m *SizeClassBlockMetadata) BlockJsonData(json *jwriter.ObjectState) {
	m.BlockMetadataBase.BlockJsonData(json, m.SumFreeSize(), m.allocCount, m.blocksFreeCount)
	json.Name("UsableBytes").Int(m.usableSize)

	sizes := json.Name("BlockSizes").Array()
	for _, size := range m.blockSizes {
		sizes.Int(size)
	}
	sizes.End()
}

func (m *SizeClassBlockMetadata) CheckCorruption(region []byte) error {
	return m.VisitAllRegions(func(handle BlockAllocationHandle, offset int, size int, userData any, free bool) error {
		if free {
			return nil
		}

		block, err := m.getBlock(handle)
		if err != nil {
			return err
		}

		if !memutils.ValidateMagicValue(region, offset+block.requested) {
			return errors.Wrapf(memutils.ErrCorruptionDetected, "marker after the allocation at offset %d was overwritten", offset)
		}

		return nil
	})
}

func (m *SizeClassBlockMetadata) DebugLogAllAllocations(logger *slog.Logger, logFunc func(log *slog.Logger, offset int, size int, userData any)) {
	_ = m.VisitAllRegions(func(handle BlockAllocationHandle, offset int, size int, userData any, free bool) error {
		if !free {
			logFunc(logger, offset, size, userData)
		}
		return nil
	})
}
