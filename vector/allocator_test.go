package vector_test

import (
	"fmt"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/memphis242/ccol-sub000/arena"
	"github.com/memphis242/ccol-sub000/memutils"
	"github.com/memphis242/ccol-sub000/memutils/mocks"
	"github.com/memphis242/ccol-sub000/vector"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func growBuffer(old []byte, oldSize, newSize int) ([]byte, error) {
	buf := make([]byte, newSize)
	copy(buf, old[:min(oldSize, newSize)])
	return buf, nil
}

func TestAllocationFailureLeavesVectorUnchanged(t *testing.T) {
	ctrl := gomock.NewController(t)
	allocator := mocks.NewMockAllocator(ctrl)

	allocator.EXPECT().Allocate(8).Return(make([]byte, 8), nil)
	v := newVector(t, vector.CreateOptions{ElementSize: 4, InitialCapacity: 2, MaxCapacity: 100, Allocator: allocator})
	require.NoError(t, v.RangePush(i32s(1, 2)))
	generation := v.Generation()

	allocator.EXPECT().Reallocate(gomock.Any(), 8, 16).Return(nil, memutils.ErrAllocationFailed).Times(3)
	require.ErrorIs(t, v.Push(i32(3)), memutils.ErrAllocationFailed)
	require.ErrorIs(t, v.Insert(0, i32(3)), memutils.ErrAllocationFailed)
	require.ErrorIs(t, v.RangeInsert(1, i32s(3)), memutils.ErrAllocationFailed)

	allocator.EXPECT().Reallocate(gomock.Any(), 8, 20).Return(nil, memutils.ErrAllocationFailed)
	require.ErrorIs(t, v.RangePush(i32s(3, 4, 5)), memutils.ErrAllocationFailed)

	require.Equal(t, 2, v.Len())
	require.Equal(t, 2, v.Cap())
	require.Equal(t, generation, v.Generation())
	require.Equal(t, []int32{1, 2}, contents(t, v))

	allocator.EXPECT().Reallocate(gomock.Any(), 8, 16).DoAndReturn(growBuffer)
	require.NoError(t, v.Insert(1, i32(3)))
	require.Equal(t, []int32{1, 3, 2}, contents(t, v))
	require.Equal(t, 4, v.Cap())

	allocator.EXPECT().Reclaim(gomock.Any(), 16).Return(nil)
	require.NoError(t, v.Free())
}

func TestAllocationFailureOnGrowFromEmpty(t *testing.T) {
	ctrl := gomock.NewController(t)
	allocator := mocks.NewMockAllocator(ctrl)

	v := newVector(t, vector.CreateOptions{ElementSize: 4, MaxCapacity: 100, Allocator: allocator})

	allocator.EXPECT().Allocate(40).Return(nil, memutils.ErrAllocationFailed)
	require.ErrorIs(t, v.Push(i32(1)), memutils.ErrAllocationFailed)
	require.Equal(t, 0, v.Len())
	require.Equal(t, 0, v.Cap())

	// Nothing to reclaim
	require.NoError(t, v.Free())
}

func TestNewAllocationFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	allocator := mocks.NewMockAllocator(ctrl)

	allocator.EXPECT().Allocate(40).Return(nil, memutils.ErrAllocationFailed)
	v, err := vector.New(nil, vector.CreateOptions{ElementSize: 4, InitialCapacity: 10, MaxCapacity: 100, Allocator: allocator})
	require.ErrorIs(t, err, memutils.ErrAllocationFailed)
	require.Nil(t, v)
}

func TestReclaimFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	allocator := mocks.NewMockAllocator(ctrl)

	allocator.EXPECT().Allocate(8).Return(make([]byte, 8), nil)
	v := newVector(t, vector.CreateOptions{ElementSize: 4, InitialCapacity: 2, MaxCapacity: 4, Allocator: allocator})
	require.NoError(t, v.Push(i32(1)))

	reclaimErr := errors.New("backend refused")
	allocator.EXPECT().Reclaim(gomock.Any(), 8).Return(reclaimErr)
	require.ErrorIs(t, v.HardReset(), reclaimErr)
	require.Equal(t, 2, v.Cap())

	other := newVector(t, vector.CreateOptions{ElementSize: 4, MaxCapacity: 4, Allocator: allocator})
	allocator.EXPECT().Reclaim(gomock.Any(), 8).Return(reclaimErr)
	require.ErrorIs(t, vector.Move(v, other), reclaimErr)
	require.Equal(t, 2, v.Cap())
}

func TestArenaBackedVector(t *testing.T) {
	region, err := arena.New(nil, arena.CreateOptions{RegionSize: 1024})
	require.NoError(t, err)

	v := newVector(t, vector.CreateOptions{ElementSize: 4, MaxCapacity: 100, Allocator: region})
	for i := 0; i < 11; i++ {
		require.NoError(t, v.Push(i32(int32(i))))
	}
	require.Equal(t, 20, v.Cap())
	require.Equal(t, 1024-128, region.SpaceAvailable())
	require.NoError(t, region.Validate())

	for i := 0; i < 11; i++ {
		require.Equal(t, int32(i), readI32(t, v, i))
	}

	dup, err := v.Duplicate()
	require.NoError(t, err)
	require.True(t, vector.Equal(v, dup))
	require.Equal(t, 1024-256, region.SpaceAvailable())

	require.NoError(t, dup.Free())
	require.NoError(t, v.Free())
	require.Equal(t, 1024, region.SpaceAvailable())
	require.Equal(t, 1, region.Occupancy().Classes[0].FreeBlocks)
	require.NoError(t, region.Destroy())
}

func TestArenaExhaustionLeavesVectorUnchanged(t *testing.T) {
	region, err := arena.New(nil, arena.CreateOptions{RegionSize: 64, BlockSizes: []int{64, 32}})
	require.NoError(t, err)

	// Storage fills one 32-byte block, margin included
	capacity := (32 - memutils.DebugMargin) / 4
	values := make([]int32, capacity)
	for i := range values {
		values[i] = int32(i + 1)
	}

	v := newVector(t, vector.CreateOptions{ElementSize: 4, InitialCapacity: capacity, MaxCapacity: 100, Allocator: region})
	require.NoError(t, v.RangePush(i32s(values...)))
	require.Equal(t, 32, region.SpaceAvailable())

	err = v.Push(i32(100))
	require.ErrorIs(t, err, memutils.ErrAllocationFailed)
	require.True(t, errors.Is(err, memutils.ErrArenaExhausted))

	require.Equal(t, capacity, v.Len())
	require.Equal(t, capacity, v.Cap())
	require.Equal(t, values, contents(t, v))
	require.NoError(t, region.Validate())

	require.NoError(t, v.Free())
	require.Equal(t, 64, region.SpaceAvailable())
}

func TestPooledVectors(t *testing.T) {
	region, err := arena.New(nil, arena.CreateOptions{RegionSize: 1024})
	require.NoError(t, err)
	pool, err := arena.NewHandlePool[vector.Vector](nil, arena.CreateOptions{PoolSize: 2})
	require.NoError(t, err)

	options := vector.CreateOptions{ElementSize: 4, InitialCapacity: 4, MaxCapacity: 8, Allocator: region, Pool: pool}
	first := newVector(t, options)
	second := newVector(t, options)
	require.True(t, pool.IsAllocated(first))
	require.True(t, pool.IsAllocated(second))
	require.Equal(t, 0, pool.Available())

	_, err = vector.New(nil, options)
	require.True(t, errors.Is(err, arena.ErrPoolExhausted))
	require.True(t, errors.Is(err, memutils.ErrAllocationFailed))
	require.Equal(t, 1024-64, region.SpaceAvailable())

	require.NoError(t, first.Push(i32(1)))
	dup, err := second.Duplicate()
	require.True(t, errors.Is(err, arena.ErrPoolExhausted))
	require.Nil(t, dup)

	require.NoError(t, first.Free())
	require.Equal(t, 1, pool.Available())
	require.Equal(t, 1024-32, region.SpaceAvailable())

	third := newVector(t, options)
	require.True(t, pool.IsAllocated(third))
	require.Equal(t, 0, third.Len())
	require.Contains(t, third.String(), `"Pooled":true`)

	require.NoError(t, second.Free())
	require.NoError(t, third.Free())
	require.Equal(t, 2, pool.Available())
	require.NoError(t, pool.Validate())
	require.NoError(t, region.Destroy())
}

func TestPushOwnElementAcrossGrowth(t *testing.T) {
	region, err := arena.New(nil, arena.CreateOptions{RegionSize: 1024, Flags: arena.CreateScrubOnReclaim})
	require.NoError(t, err)

	v := newVector(t, vector.CreateOptions{ElementSize: 4, InitialCapacity: 8, MaxCapacity: 100, Allocator: region})
	require.NoError(t, v.RangePush(i32s(1, 2, 3, 4, 5, 6, 7, 8)))

	first, err := v.Get(0)
	require.NoError(t, err)
	require.NoError(t, v.Push(first))
	require.Equal(t, 16, v.Cap())
	require.Equal(t, []int32{1, 2, 3, 4, 5, 6, 7, 8, 1}, contents(t, v))

	for v.Len() < v.Cap() {
		require.NoError(t, v.Push(i32(7)))
	}

	last, err := v.LastElement()
	require.NoError(t, err)
	require.NoError(t, v.Insert(0, last))
	require.Equal(t, 32, v.Cap())
	require.Equal(t, int32(7), readI32(t, v, 0))

	second, err := v.Get(1)
	require.NoError(t, err)
	require.NoError(t, v.RangeInsert(1, second))
	require.Equal(t, []int32{7, 1, 1, 2}, contents(t, v)[:4])

	require.NoError(t, v.Free())
	require.Equal(t, 1024, region.SpaceAvailable())
}

func TestPoolExhaustedReportsReclaimFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	allocator := mocks.NewMockAllocator(ctrl)

	pool, err := arena.NewHandlePool[vector.Vector](nil, arena.CreateOptions{PoolSize: 1})
	require.NoError(t, err)
	newVector(t, vector.CreateOptions{ElementSize: 4, MaxCapacity: 4, Pool: pool})

	reclaimErr := errors.New("backend refused")
	allocator.EXPECT().Allocate(8).Return(make([]byte, 8), nil)
	allocator.EXPECT().Reclaim(gomock.Any(), 8).Return(reclaimErr)

	v, err := vector.New(nil, vector.CreateOptions{ElementSize: 4, InitialCapacity: 2, MaxCapacity: 4, Allocator: allocator, Pool: pool})
	require.Nil(t, v)
	require.True(t, errors.Is(err, arena.ErrPoolExhausted))
	require.Contains(t, fmt.Sprintf("%+v", err), "backend refused")
}
