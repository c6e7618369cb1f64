package arena

import (
	"context"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/memphis242/ccol-sub000/internal/utils"
	"github.com/memphis242/ccol-sub000/memutils"
	"github.com/memphis242/ccol-sub000/memutils/metadata"
	"golang.org/x/exp/slog"
)

// Arena is a memutils.Allocator that services every request from one fixed region reserved at
// creation. The region is carved into power-of-two blocks and requests are rounded up to the
// smallest block that fits, so an Arena never touches the Go heap after New.
//
// Buffers handed out by an Arena alias its region and must be returned to the same Arena.
type Arena struct {
	logger   *slog.Logger
	mutex    utils.OptionalRWMutex
	flags    CreateFlags
	strategy metadata.AllocationStrategy

	region   []byte
	metadata *metadata.SizeClassBlockMetadata
}

var _ memutils.Allocator = &Arena{}

// offsetOf maps a buffer handed out by this arena back to its offset within the region
func (a *Arena) offsetOf(buf []byte) (int, bool) {
	if cap(buf) == 0 || len(a.region) == 0 {
		return 0, false
	}

	base := uintptr(unsafe.Pointer(unsafe.SliceData(a.region)))
	ptr := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
	if ptr < base || ptr >= base+uintptr(len(a.region)) {
		return 0, false
	}

	return int(ptr - base), true
}

// leaseAt finds the live lease that begins at buf
func (a *Arena) leaseAt(buf []byte) (int, metadata.BlockAllocationHandle, error) {
	offset, ok := a.offsetOf(buf)
	if !ok {
		return 0, metadata.NoAllocation, errors.Wrap(ErrForeignHandle, "buffer does not point into this arena's region")
	}

	handle, err := a.metadata.AllocationAt(offset)
	if errors.Is(err, metadata.ErrBlockAlreadyFree) {
		return offset, metadata.NoAllocation, errors.Mark(err, ErrDoubleFree)
	} else if err != nil {
		return offset, metadata.NoAllocation, errors.Mark(err, ErrForeignHandle)
	}

	return offset, handle, nil
}

func (a *Arena) allocate(size int) ([]byte, error) {
	success, req, err := a.metadata.CreateAllocationRequest(size, a.strategy)
	if err != nil {
		return nil, errors.Wrapf(memutils.ErrAllocationFailed, "%+v", err)
	}

	if !success {
		a.logger.Debug("  Arena::Allocate FAILED",
			slog.Int("Size", size),
			slog.String("Available", humanize.IBytes(uint64(a.metadata.SumFreeSize()))),
		)
		return nil, errors.Mark(
			errors.Wrapf(memutils.ErrAllocationFailed, "no free block can hold %d bytes (%s available)", size, humanize.IBytes(uint64(a.metadata.SumFreeSize()))),
			memutils.ErrArenaExhausted,
		)
	}

	err = a.metadata.Alloc(req, nil)
	if err != nil {
		return nil, errors.Wrapf(memutils.ErrAllocationFailed, "%+v", err)
	}

	offset := req.Item.Offset
	buf := a.region[offset : offset+size : offset+size]
	clear(buf)
	memutils.WriteMagicValue(a.region, offset+size)

	memutils.DebugValidate(a.metadata)
	return buf, nil
}

func (a *Arena) free(offset int, handle metadata.BlockAllocationHandle) error {
	if a.flags&CreateScrubOnReclaim != 0 {
		blockSize, err := a.metadata.AllocationSize(handle)
		if err != nil {
			return err
		}
		clear(a.region[offset : offset+blockSize])
	}

	err := a.metadata.Free(handle)
	if err != nil {
		return err
	}

	memutils.DebugValidate(a.metadata)
	return nil
}

// Allocate leases the smallest free block that can hold size bytes and returns its first size
// bytes, zeroed. A larger free block is split when the arena uses
// metadata.AllocationStrategyMinMemory. When no block can hold the request, the returned error
// matches both memutils.ErrAllocationFailed and memutils.ErrArenaExhausted and nothing is leased.
func (a *Arena) Allocate(size int) ([]byte, error) {
	a.logger.Debug("Arena::Allocate", slog.Int("Size", size))

	if size < 1 {
		return nil, errors.Wrapf(memutils.ErrAllocationFailed, "invalid allocation size %d", size)
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.region == nil {
		return nil, errors.Mark(errors.Wrap(memutils.ErrAllocationFailed, ErrDestroyed.Error()), ErrDestroyed)
	}

	return a.allocate(size)
}

// Reallocate resizes a buffer leased from this arena. When newSize still fits the leased block the
// buffer is resized in place; otherwise a new block is leased, the first min(oldSize, newSize) bytes
// are copied over and the old block is returned. On failure, old is still leased and untouched.
func (a *Arena) Reallocate(old []byte, oldSize, newSize int) ([]byte, error) {
	a.logger.Debug("Arena::Reallocate", slog.Int("OldSize", oldSize), slog.Int("NewSize", newSize))

	if newSize < 1 {
		return nil, errors.Wrapf(memutils.ErrAllocationFailed, "invalid reallocation size %d", newSize)
	}

	if old == nil {
		return a.Allocate(newSize)
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.region == nil {
		return nil, errors.Mark(errors.Wrap(memutils.ErrAllocationFailed, ErrDestroyed.Error()), ErrDestroyed)
	}

	offset, handle, err := a.leaseAt(old)
	if err != nil {
		return nil, errors.Mark(err, memutils.ErrAllocationFailed)
	}

	blockSize, err := a.metadata.AllocationSize(handle)
	if err != nil {
		return nil, errors.Mark(err, memutils.ErrAllocationFailed)
	}

	requested, err := a.metadata.AllocationRequestedSize(handle)
	if err != nil {
		return nil, errors.Mark(err, memutils.ErrAllocationFailed)
	}

	if newSize+memutils.DebugMargin <= blockSize {
		if newSize > requested {
			clear(a.region[offset+requested : offset+newSize])
		}

		err = a.metadata.SetAllocationRequestedSize(handle, newSize)
		if err != nil {
			return nil, errors.Mark(err, memutils.ErrAllocationFailed)
		}

		memutils.WriteMagicValue(a.region, offset+newSize)
		return a.region[offset : offset+newSize : offset+newSize], nil
	}

	buf, err := a.allocate(newSize)
	if err != nil {
		return nil, err
	}

	copy(buf, a.region[offset:offset+min(oldSize, newSize, requested)])

	err = a.free(offset, handle)
	if err != nil {
		return nil, err
	}

	return buf, nil
}

// Reclaim returns a buffer leased from this arena. The block is merged with its buddy while both
// halves are free. Reclaiming nil is a no-op; reclaiming a buffer this arena did not hand out
// returns an error matching ErrForeignHandle, and reclaiming one twice returns an error matching
// ErrDoubleFree.
func (a *Arena) Reclaim(buf []byte, size int) error {
	a.logger.Debug("Arena::Reclaim", slog.Int("Size", size))

	if buf == nil {
		return nil
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.region == nil {
		return ErrDestroyed
	}

	offset, handle, err := a.leaseAt(buf)
	if err != nil {
		return err
	}

	return a.free(offset, handle)
}

// SpaceAvailable returns the number of bytes held in free blocks
func (a *Arena) SpaceAvailable() int {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	if a.metadata == nil {
		return 0
	}
	return a.metadata.SumFreeSize()
}

// RegionSize returns the number of bytes reserved for this arena, including any tail too small
// for the smallest block
func (a *Arena) RegionSize() int {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	return len(a.region)
}

func (a *Arena) Strategy() metadata.AllocationStrategy {
	return a.strategy
}

func (a *Arena) Flags() CreateFlags {
	return a.flags
}

// Occupancy returns a snapshot of free and used blocks per block size
func (a *Arena) Occupancy() memutils.Occupancy {
	a.logger.Debug("Arena::Occupancy")

	a.mutex.RLock()
	defer a.mutex.RUnlock()

	var occupancy memutils.Occupancy
	if a.metadata != nil {
		a.metadata.AddOccupancy(&occupancy)
	}
	return occupancy
}

// AddStatistics sums this arena's statistics into stats
func (a *Arena) AddStatistics(stats *memutils.Statistics) {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	if a.metadata != nil {
		a.metadata.AddStatistics(stats)
	}
}

// CalculateStatistics clears stats and populates it with per-block statistics for this arena
func (a *Arena) CalculateStatistics(stats *memutils.DetailedStatistics) {
	a.logger.Debug("Arena::CalculateStatistics")

	a.mutex.RLock()
	defer a.mutex.RUnlock()

	stats.Clear()
	if a.metadata != nil {
		a.metadata.AddDetailedStatistics(stats)
	}
}

// PrintDetailedMap writes a json object describing the region and every block in it to writer
func (a *Arena) PrintDetailedMap(writer *jwriter.Writer) {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	a.printDetailedMap(writer)
}

func (a *Arena) printDetailedMap(writer *jwriter.Writer) {
	objState := writer.Object()
	defer objState.End()

	if a.metadata == nil {
		return
	}

	a.metadata.BlockJsonData(&objState)
	a.printDetailedMapBlocks(&objState)
}

func (a *Arena) printDetailedMapBlocks(json *jwriter.ObjectState) {
	arrayState := json.Name("Blocks").Array()
	defer arrayState.End()

	_ = a.metadata.VisitAllRegions(
		func(handle metadata.BlockAllocationHandle, offset int, size int, userData any, free bool) error {
			obj := arrayState.Object()
			defer obj.End()

			obj.Name("Offset").Int(offset)
			obj.Name("Size").Int(size)
			if free {
				obj.Name("Type").String("FREE")
				return nil
			}

			obj.Name("Type").String("USED")
			requested, err := a.metadata.AllocationRequestedSize(handle)
			if err == nil {
				obj.Name("RequestedSize").Int(requested)
			}

			return nil
		})
}

// BuildStatsString returns a json document with the arena's totals, its per-block-size occupancy
// and, when detailedMap is true, the output of PrintDetailedMap
func (a *Arena) BuildStatsString(detailedMap bool) string {
	a.logger.Debug("Arena::BuildStatsString")

	a.mutex.RLock()
	defer a.mutex.RUnlock()

	var stats memutils.DetailedStatistics
	stats.Clear()
	var occupancy memutils.Occupancy
	if a.metadata != nil {
		a.metadata.AddDetailedStatistics(&stats)
		a.metadata.AddOccupancy(&occupancy)
	}

	writer := jwriter.NewWriter()
	objState := writer.Object()

	total := objState.Name("Total").Object()
	total.Name("RegionBytes").Int(stats.RegionBytes)
	total.Name("BlockCount").Int(stats.BlockCount)
	total.Name("AllocationCount").Int(stats.AllocationCount)
	total.Name("AllocationBytes").Int(stats.AllocationBytes)
	total.Name("FreeBlockCount").Int(stats.FreeBlockCount)
	total.Name("FreeBytes").Int(stats.FreeBytes)
	if stats.AllocationCount > 0 {
		total.Name("AllocationSizeMin").Int(stats.AllocationSizeMin)
		total.Name("AllocationSizeMax").Int(stats.AllocationSizeMax)
	}
	if stats.FreeBlockCount > 0 {
		total.Name("FreeBlockSizeMin").Int(stats.FreeBlockSizeMin)
		total.Name("FreeBlockSizeMax").Int(stats.FreeBlockSizeMax)
	}
	total.End()

	classes := objState.Name("BlockSizes").Array()
	for _, class := range occupancy.Classes {
		obj := classes.Object()
		obj.Name("BlockSize").Int(class.BlockSize)
		obj.Name("FreeBlocks").Int(class.FreeBlocks)
		obj.Name("UsedBlocks").Int(class.UsedBlocks)
		obj.End()
	}
	classes.End()

	if detailedMap {
		a.printDetailedMap(objState.Name("DetailedMap"))
	}

	objState.End()
	return string(writer.Bytes())
}

// CheckCorruption verifies the markers written after every leased block. It returns
// ErrCorruptionDetectionDisabled unless the module was built with the debug_mem_utils tag.
func (a *Arena) CheckCorruption() error {
	a.logger.Debug("Arena::CheckCorruption")

	if memutils.DebugMargin == 0 {
		return ErrCorruptionDetectionDisabled
	}

	a.mutex.RLock()
	defer a.mutex.RUnlock()

	if a.region == nil {
		return ErrDestroyed
	}
	return a.metadata.CheckCorruption(a.region)
}

// Validate performs internal consistency checks on the arena's bookkeeping
func (a *Arena) Validate() error {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	if a.region == nil {
		return ErrDestroyed
	}
	if a.metadata.Size() != len(a.region) {
		return errors.Newf("the arena's region is %d bytes, but its metadata manages %d bytes", len(a.region), a.metadata.Size())
	}

	return a.metadata.Validate()
}

// Destroy releases the region. If any buffers are still leased, each one is logged at error level,
// nothing is released and an error is returned.
func (a *Arena) Destroy() error {
	a.logger.Debug("Arena::Destroy")

	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.region == nil {
		return ErrDestroyed
	}

	if !a.metadata.IsEmpty() {
		// Log all remaining allocations
		err := a.metadata.VisitAllRegions(func(handle metadata.BlockAllocationHandle, offset int, size int, userData any, free bool) error {
			if free {
				return nil
			}

			a.logUnreleasedMemory(handle, offset, size)
			return nil
		})
		if err != nil {
			a.logger.LogAttrs(context.Background(),
				slog.LevelError,
				"[UNRELEASED MEMORY] error while iterating unreleased memory",
				slog.Any("error", err))
		}

		return errors.Newf("%d allocations were not freed before the destruction of this arena!", a.metadata.AllocationCount())
	}

	a.region = nil
	a.metadata = nil
	return nil
}

func (a *Arena) logUnreleasedMemory(handle metadata.BlockAllocationHandle, offset, size int) {
	requested, _ := a.metadata.AllocationRequestedSize(handle)

	a.logger.LogAttrs(context.Background(), slog.LevelError, "[UNRELEASED MEMORY] unfreed allocation",
		slog.Int("offset", offset),
		slog.Int("size", size),
		slog.Int("requested", requested),
	)
}
