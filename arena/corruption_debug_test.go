//go:build debug_mem_utils

package arena_test

import (
	"testing"
	"unsafe"

	"github.com/memphis242/ccol-sub000/arena"
	"github.com/memphis242/ccol-sub000/memutils"
	"github.com/stretchr/testify/require"
)

func TestArenaCheckCorruptionDetectsOverrun(t *testing.T) {
	a := newArena(t, arena.CreateOptions{RegionSize: 1024})

	const size = 40
	buf, err := a.Allocate(size)
	require.NoError(t, err)
	require.NoError(t, a.CheckCorruption())

	// Write one byte past the end of the lease, into the marker
	overrun := unsafe.Slice(unsafe.SliceData(buf), size+memutils.DebugMargin)
	overrun[size] ^= 0xFF

	err = a.CheckCorruption()
	require.ErrorIs(t, err, memutils.ErrCorruptionDetected)

	overrun[size] ^= 0xFF
	require.NoError(t, a.CheckCorruption())
	require.NoError(t, a.Reclaim(buf, size))
}
