// Package hunk implements the engine's level-load allocator: one large
// contiguous region with stack allocators coming from both ends towards
// the middle.
//
// One side is designated the temporary memory allocator. Temporary memory
// can be allocated and freed in any order, but only LIFO frees reclaim
// space before a bulk clear. A highwater mark is kept of the most in use
// at any time. When there is no temporary memory allocated, the permanent
// and temp sides can be switched, allowing the already touched temp memory
// to be used for permanent storage. Permanent allocations are kept on the
// side with the greatest wasted highwater mark.
package hunk

import (
	"encoding/binary"
	"unsafe"

	cerrors "github.com/cockroachdb/errors"
	"github.com/pkg/errors"
	"golang.org/x/exp/slog"

	"github.com/joshsteffen/TASjr/memutils"
)

const (
	hunkMagic     uint32 = 0x89537892
	hunkFreeMagic uint32 = 0x89537893

	// headerSize prefixes every temporary allocation with its magic and
	// size.
	headerSize = 8

	// cacheline alignment for the region base and permanent allocations.
	cacheline = 64

	ptrAlign = 8
)

// Preference picks the end of the hunk a permanent allocation should come
// from. The allocator may override it: while temporary memory is live, or
// with PreferDontCare, the side-swap heuristic decides.
type Preference uint32

const (
	PreferHigh Preference = iota
	PreferLow
	PreferDontCare
)

// bank tracks one end of the hunk. All fields are byte offsets measured
// from that end; mark <= permanent <= temp always holds.
type bank struct {
	mark          int
	permanent     int
	temp          int
	tempHighwater int
}

// Hunk is the double-ended stack region. Which bank serves which role is
// carried by the permanent and temp references and may swap between
// allocations.
type Hunk struct {
	logger *slog.Logger

	data  []byte
	total int

	low  bank
	high bank

	permanent *bank
	temp      *bank
}

var _ memutils.Validatable = &Hunk{}

// New acquires the hunk region and aligns its base to the cacheline.
// Acquisition failure is fatal; the engine cannot load a level without
// the hunk.
func New(total int, provider memutils.RegionProvider, logger *slog.Logger) *Hunk {
	if logger == nil {
		logger = slog.Default()
	}
	memutils.DebugCheckPow2(uint(cacheline), "cacheline")

	buf, err := provider.Acquire(total + cacheline - 1)
	if err != nil {
		memutils.Fatalf("Hunk data failed to allocate %d megs", total/(1024*1024))
	}

	base := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
	pad := int((cacheline - base%cacheline) % cacheline)

	h := &Hunk{
		logger: logger,
		data:   buf[pad : pad+total],
		total:  total,
	}
	h.Clear()

	h.logger.Debug("Hunk::Init", slog.Int("TotalBytes", total))

	return h
}

// Total returns the usable size of the hunk region.
func (h *Hunk) Total() int { return h.total }

// MemoryRemaining returns the bytes not reached by either end's cursors.
func (h *Hunk) MemoryRemaining() int {
	low := h.low.permanent
	if h.low.temp > low {
		low = h.low.temp
	}
	high := h.high.permanent
	if h.high.temp > high {
		high = h.high.temp
	}

	return h.total - (low + high)
}

// SetMark records the current permanent cursor of each bank. The server
// calls this after the level and game modules have been loaded.
func (h *Hunk) SetMark() {
	h.low.mark = h.low.permanent
	h.high.mark = h.high.permanent
}

// ClearToMark resets both banks' permanent and temp cursors to their
// mark, releasing everything allocated since SetMark.
func (h *Hunk) ClearToMark() {
	h.low.permanent = h.low.mark
	h.low.temp = h.low.mark
	h.high.permanent = h.high.mark
	h.high.temp = h.high.mark
}

// CheckMark reports whether either bank holds a non-zero mark.
func (h *Hunk) CheckMark() bool {
	return h.low.mark != 0 || h.high.mark != 0
}

// Clear resets the entire hunk: both banks zeroed, low serving permanent
// and high serving temp.
func (h *Hunk) Clear() {
	h.low = bank{}
	h.high = bank{}

	h.permanent = &h.low
	h.temp = &h.high
}

// ClearTemp releases all temporary memory by pulling each temp cursor
// back to its permanent cursor. Touched-but-unused space stays counted in
// the highwater mark, which is what steers future permanent allocations.
func (h *Hunk) ClearTemp() {
	h.temp.temp = h.temp.permanent
}

// swapBanks exchanges the permanent and temp roles when the temp side has
// strictly more touched-but-unused space. It refuses to swap while any
// temporary allocation is live on the temp side.
func (h *Hunk) swapBanks() {
	if h.temp.temp != h.temp.permanent {
		return
	}

	if h.temp.tempHighwater-h.temp.permanent > h.permanent.tempHighwater-h.permanent.permanent {
		h.permanent, h.temp = h.temp, h.permanent
		h.logger.Debug("Hunk::SwapBanks", slog.Bool("PermanentLow", h.permanent == &h.low))
	}
}

// Alloc allocates size bytes of permanent (until the hunk is cleared),
// zero-filled memory; the space taken from the hunk is rounded up to the
// cacheline. Exceeding capacity is a recoverable error.
func (h *Hunk) Alloc(size int, preference Preference) ([]byte, error) {
	if size < 0 {
		return nil, cerrors.Errorf("Hunk_Alloc: invalid size %d", size)
	}

	// can't honor a preference if there is any temp allocated
	if preference == PreferDontCare || h.temp.temp != h.temp.permanent {
		h.swapBanks()
	} else if preference == PreferLow && h.permanent != &h.low {
		h.swapBanks()
	} else if preference == PreferHigh && h.permanent != &h.high {
		h.swapBanks()
	}

	request := size
	size = memutils.AlignUp(size, cacheline)

	if h.low.temp+h.high.temp+size > h.total {
		return nil, cerrors.Wrapf(memutils.ErrOutOfMemory, "Hunk_Alloc failed on %d", size)
	}

	var buf []byte
	if h.permanent == &h.low {
		off := h.permanent.permanent
		h.permanent.permanent += size
		buf = h.data[off : off+size]
	} else {
		h.permanent.permanent += size
		off := h.total - h.permanent.permanent
		buf = h.data[off : off+size]
	}

	h.permanent.temp = h.permanent.permanent

	for i := range buf {
		buf[i] = 0
	}

	return buf[:request], nil
}

// AllocTemp allocates temporary memory from the temp side, prefixed with
// an in-band magic header. The contents are not cleared; callers load
// files straight over them. Frees are LIFO-optimal: see FreeTemp.
func (h *Hunk) AllocTemp(size int) ([]byte, error) {
	if size < 0 {
		return nil, cerrors.Errorf("Hunk_AllocateTempMemory: invalid size %d", size)
	}

	h.swapBanks()

	alloc := memutils.AlignUp(size, ptrAlign) + headerSize

	if h.temp.temp+h.permanent.permanent+alloc > h.total {
		return nil, cerrors.Wrapf(memutils.ErrOutOfMemory, "Hunk_AllocateTempMemory: failed on %d", size)
	}

	var off int
	if h.temp == &h.low {
		off = h.temp.temp
		h.temp.temp += alloc
	} else {
		h.temp.temp += alloc
		off = h.total - h.temp.temp
	}

	if h.temp.temp > h.temp.tempHighwater {
		h.temp.tempHighwater = h.temp.temp
	}

	binary.LittleEndian.PutUint32(h.data[off:], hunkMagic)
	binary.LittleEndian.PutUint32(h.data[off+4:], uint32(alloc))

	return h.data[off+headerSize : off+headerSize+size], nil
}

// FreeTemp releases a temporary allocation. If it is the topmost block on
// the temp side the cursor retracts; otherwise the block is only stamped
// freed and its space comes back with the next ClearTemp. A pointer whose
// header does not carry the live magic is fatal.
func (h *Hunk) FreeTemp(ptr []byte) {
	hdrOff := h.offsetOf(ptr) - headerSize
	if hdrOff < 0 || hdrOff+headerSize > h.total {
		memutils.Fatalf("Hunk_FreeTempMemory: pointer is not from the hunk")
	}

	if binary.LittleEndian.Uint32(h.data[hdrOff:]) != hunkMagic {
		memutils.Fatalf("Hunk_FreeTempMemory: bad magic")
	}
	binary.LittleEndian.PutUint32(h.data[hdrOff:], hunkFreeMagic)

	size := int(binary.LittleEndian.Uint32(h.data[hdrOff+4:]))

	// this only works if the blocks are freed in stack order, otherwise
	// the memory stays around until ClearTemp
	if h.temp == &h.low {
		if hdrOff == h.temp.temp-size {
			h.temp.temp -= size
		}
	} else {
		if hdrOff == h.total-h.temp.temp {
			h.temp.temp -= size
		}
	}
}

func (h *Hunk) offsetOf(ptr []byte) int {
	if ptr == nil || cap(ptr) == 0 {
		memutils.Fatalf("Hunk_FreeTempMemory: nil pointer")
	}
	base := uintptr(unsafe.Pointer(unsafe.SliceData(h.data)))
	p := uintptr(unsafe.Pointer(unsafe.SliceData(ptr)))
	return int(p - base)
}

// Validate checks the cursor ordering of both banks and that the two ends
// have not crossed.
func (h *Hunk) Validate() error {
	for _, b := range []struct {
		name string
		bank *bank
	}{{"low", &h.low}, {"high", &h.high}} {
		if b.bank.mark > b.bank.permanent {
			return errors.Errorf("hunk %s bank: mark %d is past the permanent cursor %d", b.name, b.bank.mark, b.bank.permanent)
		}
		if b.bank.permanent > b.bank.temp {
			return errors.Errorf("hunk %s bank: permanent cursor %d is past the temp cursor %d", b.name, b.bank.permanent, b.bank.temp)
		}
	}

	if h.MemoryRemaining() < 0 {
		return errors.New("hunk cursors have crossed")
	}

	return nil
}

// AddStatistics sums the hunk's occupancy into stats. The hunk is one
// block; individual allocations are not enumerable once made.
func (h *Hunk) AddStatistics(stats *memutils.Statistics) {
	stats.BlockCount++
	stats.BlockBytes += h.total
	stats.AllocationBytes += h.total - h.MemoryRemaining()
}
