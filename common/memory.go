// Package common wires the allocators together the way the engine uses
// them: one fixed small zone for strings and other tiny structures, one
// growable main zone, and one hunk for level data, built in that order at
// startup. Everything here is process-wide by design; the engine drives
// memory from a single thread.
package common

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"
	"golang.org/x/exp/slog"

	"github.com/joshsteffen/TASjr/hunk"
	"github.com/joshsteffen/TASjr/memutils"
	"github.com/joshsteffen/TASjr/zone"
)

const (
	// MinHunkMegs is the floor applied to HunkMegs; levels cannot load in
	// less.
	MinHunkMegs = 48
	// DefHunkMegs is the hunk size used when Config leaves it zero.
	DefHunkMegs = 56
	// DefZoneMegs is the initial main-zone size used when Config leaves
	// it zero. The main zone grows past it on demand.
	DefZoneMegs = 12

	smallZoneSize = 512 * 1024
)

// Config controls Init. Zero values select the documented defaults.
type Config struct {
	// ZoneMegs sizes the main zone's first segment.
	ZoneMegs int
	// HunkMegs sizes the hunk region, clamped to MinHunkMegs.
	HunkMegs int

	Logger   *slog.Logger
	Provider memutils.RegionProvider
}

// the small zone lives in a statically provided buffer and never grows
var smallZoneBuf [smallZoneSize]byte

var (
	smallZone *zone.Zone
	mainZone  *zone.Zone
	theHunk   *hunk.Hunk

	logger   *slog.Logger
	provider memutils.RegionProvider
)

// Init builds the allocators in their fixed order: small zone, main zone,
// hunk. A failed region acquisition here is fatal. Calling Init again
// discards all previous allocations and rebuilds from scratch.
func Init(cfg Config) {
	logger = cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	provider = cfg.Provider
	if provider == nil {
		provider = memutils.SystemProvider{}
	}

	initSmallZoneMemory()
	initZoneMemory(cfg.ZoneMegs)
	initHunkMemory(cfg.HunkMegs)
}

func initSmallZoneMemory() {
	for i := range smallZoneBuf {
		smallZoneBuf[i] = 0
	}
	smallZone = zone.NewFixed("small", smallZoneBuf[:], logger)
}

func initZoneMemory(megs int) {
	if megs <= 0 {
		megs = DefZoneMegs
	}
	mainZone = zone.New("main", megs*1024*1024, provider, logger)
}

func initHunkMemory(megs int) {
	if megs <= 0 {
		megs = DefHunkMegs
	}
	if megs < MinHunkMegs {
		megs = MinHunkMegs
	}
	theHunk = hunk.New(megs*1024*1024, provider, logger)
}

// zoneForTag routes TagSmall to the small zone and everything else to the
// main zone.
func zoneForTag(tag zone.Tag) *zone.Zone {
	if tag == zone.TagSmall {
		return smallZone
	}
	return mainZone
}

// ZMalloc allocates zero-filled TagGeneral memory from the main zone.
func ZMalloc(size int) ([]byte, error) {
	return mainZone.Alloc(size)
}

// SMalloc allocates from the small zone. The memory is not zero-filled.
func SMalloc(size int) ([]byte, error) {
	return smallZone.TagAlloc(size, zone.TagSmall)
}

// ZTagMalloc allocates with an explicit owner tag, routing by tag. The
// memory is not zero-filled.
func ZTagMalloc(size int, tag zone.Tag) ([]byte, error) {
	return zoneForTag(tag).TagAlloc(size, tag)
}

// ZFree releases a zone allocation from whichever zone issued it. Static
// singletons are ignored; a pointer no zone knows is fatal.
func ZFree(ptr []byte) error {
	if ptr == nil {
		return errors.Wrap(memutils.ErrNilPointer, "Z_Free")
	}
	if zone.IsStatic(ptr) {
		return nil
	}
	if mainZone.Owns(ptr) {
		return mainZone.Free(ptr)
	}
	if smallZone.Owns(ptr) {
		return smallZone.Free(ptr)
	}
	memutils.Fatalf("Z_Free: freed a pointer without ZONEID")
	return nil
}

// ZFreeTags bulk-frees every block with the given tag from its zone and
// returns the count.
func ZFreeTags(tag zone.Tag) int {
	return zoneForTag(tag).FreeTags(tag)
}

// ZAvailableMemory returns the unallocated bytes of the main zone.
func ZAvailableMemory() int {
	return mainZone.AvailableMemory()
}

// CheckHeap verifies the main zone's block chain; any inconsistency is
// fatal.
func CheckHeap() {
	if err := mainZone.Validate(); err != nil {
		memutils.Fatalf("Z_CheckHeap: %v", err)
	}
}

func hunkReady(op string) {
	if theHunk == nil {
		memutils.Fatalf("%s: Hunk memory system not initialized", op)
	}
}

// HunkAlloc allocates permanent hunk memory, zero-filled and
// cacheline-aligned.
func HunkAlloc(size int, preference hunk.Preference) ([]byte, error) {
	hunkReady("Hunk_Alloc")
	return theHunk.Alloc(size, preference)
}

// HunkAllocateTemp allocates temporary hunk memory. Before the hunk is
// initialized it falls back to a zero-filled zone block, which lets the
// filesystem load config files through one code path during early
// startup.
func HunkAllocateTemp(size int) ([]byte, error) {
	if theHunk == nil {
		return ZMalloc(size)
	}
	return theHunk.AllocTemp(size)
}

// HunkFreeTemp releases a temporary allocation, delegating to the zone
// when the hunk is not initialized (the early-startup fallback path).
func HunkFreeTemp(ptr []byte) error {
	if theHunk == nil {
		return ZFree(ptr)
	}
	if ptr == nil {
		return errors.Wrap(memutils.ErrNilPointer, "Hunk_FreeTempMemory")
	}
	theHunk.FreeTemp(ptr)
	return nil
}

// HunkSetMark records the current permanent cursors. The server calls
// this after the level and game modules have been loaded.
func HunkSetMark() {
	hunkReady("Hunk_SetMark")
	theHunk.SetMark()
}

// HunkClearToMark rolls both banks back to their marks, ahead of a
// renderer or sound restart.
func HunkClearToMark() {
	hunkReady("Hunk_ClearToMark")
	theHunk.ClearToMark()
}

// HunkCheckMark reports whether a mark has been set.
func HunkCheckMark() bool {
	hunkReady("Hunk_CheckMark")
	return theHunk.CheckMark()
}

// HunkClear resets the whole hunk before shutting down or loading a new
// level.
func HunkClear() {
	hunkReady("Hunk_Clear")
	theHunk.Clear()
}

// HunkClearTemp releases all temporary hunk memory.
func HunkClearTemp() {
	hunkReady("Hunk_ClearTempMemory")
	theHunk.ClearTemp()
}

// HunkMemoryRemaining returns the bytes left between the two ends.
func HunkMemoryRemaining() int {
	hunkReady("Hunk_MemoryRemaining")
	return theHunk.MemoryRemaining()
}

// CopyString returns a NUL-terminated copy of s. The empty string and the
// single digits come from the static singletons; everything else is a
// small-zone block. Release with ZFree.
func CopyString(s string) ([]byte, error) {
	if s == "" {
		return zone.EmptyString(), nil
	}
	if len(s) == 1 && s[0] >= '0' && s[0] <= '9' {
		return zone.NumberString(s[0]), nil
	}

	buf, err := SMalloc(len(s) + 1)
	if err != nil {
		return nil, err
	}
	copy(buf, s)
	buf[len(s)] = 0
	return buf, nil
}

// CalculateStatistics sums the occupancy of all three allocators.
func CalculateStatistics(stats *memutils.Statistics) {
	if smallZone != nil {
		smallZone.AddStatistics(stats)
	}
	if mainZone != nil {
		mainZone.AddStatistics(stats)
	}
	if theHunk != nil {
		theHunk.AddStatistics(stats)
	}
}

// BuildStatsString renders a JSON heap dump of every zone block and the
// hunk banks, for logging and diagnostics.
func BuildStatsString() string {
	w := jwriter.NewWriter()

	obj := w.Object()

	if mainZone != nil {
		zoneObj := obj.Name("MainZone").Object()
		mainZone.BlockListJson(zoneObj)
		zoneObj.End()
	}
	if smallZone != nil {
		zoneObj := obj.Name("SmallZone").Object()
		smallZone.BlockListJson(zoneObj)
		zoneObj.End()
	}
	if theHunk != nil {
		hunkObj := obj.Name("Hunk").Object()
		theHunk.BanksJson(hunkObj)
		hunkObj.End()
	}

	obj.End()

	return string(w.Bytes())
}
