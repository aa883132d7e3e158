package common

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshsteffen/TASjr/hunk"
	"github.com/joshsteffen/TASjr/memutils"
	"github.com/joshsteffen/TASjr/zone"
)

func initDefault(t *testing.T) {
	t.Helper()
	Init(Config{})
}

func TestInitBuildsAllThreeAllocators(t *testing.T) {
	initDefault(t)

	require.NotNil(t, smallZone)
	require.NotNil(t, mainZone)
	require.NotNil(t, theHunk)

	require.Equal(t, smallZoneSize, smallZone.Size())
	require.Equal(t, DefZoneMegs*1024*1024, mainZone.Size())
	require.Equal(t, DefHunkMegs*1024*1024, theHunk.Total())

	CheckHeap()
}

func TestInitClampsHunkMegs(t *testing.T) {
	Init(Config{HunkMegs: 8})
	require.Equal(t, MinHunkMegs*1024*1024, theHunk.Total())

	Init(Config{HunkMegs: 64})
	require.Equal(t, 64*1024*1024, theHunk.Total())
}

func TestZMallocZeroFillsAndRoutes(t *testing.T) {
	initDefault(t)

	buf, err := ZMalloc(512)
	require.NoError(t, err)
	for _, v := range buf {
		require.Equal(t, byte(0), v)
	}
	require.True(t, mainZone.Owns(buf))
	require.NoError(t, ZFree(buf))
}

func TestSMallocRoutesToSmallZone(t *testing.T) {
	initDefault(t)

	buf, err := SMalloc(64)
	require.NoError(t, err)
	require.True(t, smallZone.Owns(buf))
	require.False(t, mainZone.Owns(buf))

	// ZFree finds the owning zone on its own
	used := smallZone.Used()
	require.NoError(t, ZFree(buf))
	require.Less(t, smallZone.Used(), used)
}

func TestZTagMallocRouting(t *testing.T) {
	initDefault(t)

	small, err := ZTagMalloc(64, zone.TagSmall)
	require.NoError(t, err)
	require.True(t, smallZone.Owns(small))

	renderer, err := ZTagMalloc(64, zone.TagRenderer)
	require.NoError(t, err)
	require.True(t, mainZone.Owns(renderer))

	require.Equal(t, 1, ZFreeTags(zone.TagRenderer))
	require.Equal(t, 1, ZFreeTags(zone.TagSmall))
	require.Equal(t, 0, ZFreeTags(zone.TagRenderer))
}

func TestZFreeNil(t *testing.T) {
	initDefault(t)

	err := ZFree(nil)
	require.ErrorIs(t, err, memutils.ErrNilPointer)
}

func TestZAvailableMemory(t *testing.T) {
	initDefault(t)

	avail := ZAvailableMemory()
	buf, err := ZMalloc(4096)
	require.NoError(t, err)
	require.Less(t, ZAvailableMemory(), avail)
	require.NoError(t, ZFree(buf))
	require.Equal(t, avail, ZAvailableMemory())
}

// Before the hunk exists, temp allocations come from the zone so the
// filesystem can load config files through one code path.
func TestHunkTempFallsBackToZone(t *testing.T) {
	initDefault(t)
	theHunk = nil

	used := mainZone.Used()
	buf, err := HunkAllocateTemp(300)
	require.NoError(t, err)
	require.True(t, mainZone.Owns(buf))
	require.Greater(t, mainZone.Used(), used)

	require.NoError(t, HunkFreeTemp(buf))
	require.Equal(t, used, mainZone.Used())

	initHunkMemory(0)
	require.NotNil(t, theHunk)
}

func TestHunkRoundTripThroughCommon(t *testing.T) {
	initDefault(t)

	buf, err := HunkAlloc(4096, hunk.PreferLow)
	require.NoError(t, err)
	require.Len(t, buf, 4096)

	HunkSetMark()
	require.True(t, HunkCheckMark())

	tmp, err := HunkAllocateTemp(1 << 16)
	require.NoError(t, err)
	require.NoError(t, HunkFreeTemp(tmp))

	remaining := HunkMemoryRemaining()
	_, err = HunkAlloc(4096, hunk.PreferDontCare)
	require.NoError(t, err)
	require.Less(t, HunkMemoryRemaining(), remaining)

	HunkClearToMark()
	HunkClearTemp()
	HunkClear()
	require.False(t, HunkCheckMark())
	require.Equal(t, DefHunkMegs*1024*1024, HunkMemoryRemaining())
}

func TestCopyString(t *testing.T) {
	initDefault(t)

	empty, err := CopyString("")
	require.NoError(t, err)
	require.True(t, zone.IsStatic(empty))
	require.Equal(t, []byte{0}, empty)

	digit, err := CopyString("5")
	require.NoError(t, err)
	require.True(t, zone.IsStatic(digit))
	require.Equal(t, []byte{'5', 0}, digit)

	// static returns are free to "free" any number of times
	require.NoError(t, ZFree(digit))
	require.NoError(t, ZFree(digit))

	s, err := CopyString("cl_timenudge")
	require.NoError(t, err)
	require.False(t, zone.IsStatic(s))
	require.Equal(t, []byte("cl_timenudge\x00"), s)
	require.True(t, smallZone.Owns(s))
	require.NoError(t, ZFree(s))
}

func TestBuildStatsString(t *testing.T) {
	initDefault(t)

	buf, err := ZMalloc(1024)
	require.NoError(t, err)
	defer func() { _ = ZFree(buf) }()

	var dump map[string]any
	require.NoError(t, json.Unmarshal([]byte(BuildStatsString()), &dump))

	require.Contains(t, dump, "MainZone")
	require.Contains(t, dump, "SmallZone")
	require.Contains(t, dump, "Hunk")

	mainDump := dump["MainZone"].(map[string]any)
	require.Equal(t, float64(DefZoneMegs*1024*1024), mainDump["TotalBytes"])
	require.NotEmpty(t, mainDump["Blocks"])
}

func TestCalculateStatistics(t *testing.T) {
	initDefault(t)

	var stats memutils.Statistics
	stats.Clear()
	CalculateStatistics(&stats)

	// small zone + main zone + hunk
	require.Equal(t, 3, stats.BlockCount)
	require.Equal(t, smallZoneSize+DefZoneMegs*1024*1024+DefHunkMegs*1024*1024, stats.BlockBytes)
}
