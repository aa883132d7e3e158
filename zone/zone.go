// Package zone implements the engine's general-purpose small-object
// allocator. A zone carves tagged blocks out of one or more raw segments,
// keeps the bookkeeping for every block in a physical chain that mirrors
// byte order, coalesces neighbors on free, and groups free blocks into
// segregated lists by size. The main zone grows by appending segments on
// demand; the small zone is fixed and lives in a statically provided
// buffer.
//
// There is never any space between blocks, and there are never two
// contiguous free blocks.
package zone

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/pkg/errors"
	"golang.org/x/exp/slog"

	"github.com/joshsteffen/TASjr/memutils"
)

// segmentGranularity rounds segment growth up to 2 MiB steps.
const segmentGranularity = 1 << 21

// Zone is one allocation arena. Methods are not safe for concurrent use;
// the engine drives all allocators from its main loop.
type Zone struct {
	logger   *slog.Logger
	name     string
	provider memutils.RegionProvider
	growable bool

	size int // total bytes acquired, including separators and the record
	used int // bytes in non-free blocks plus separator headers

	minFragment int
	allocCount  int

	blockList block // start/end cap for the circular physical chain
	freeLists [numFreeLists]block

	segments []*segment

	// registry maps live payload addresses back to their blocks; freed
	// blocks stay registered until coalescing absorbs them, which is what
	// lets Free tell a double free apart from a junk pointer.
	registry *swiss.Map[uintptr, *block]
}

var _ memutils.Validatable = &Zone{}

// New creates a growable zone of the given initial size, acquiring the
// first segment from provider. A failed acquisition at this point is fatal;
// the engine cannot run without its zones.
func New(name string, size int, provider memutils.RegionProvider, logger *slog.Logger) *Zone {
	buf, err := provider.Acquire(size)
	if err != nil {
		memutils.Fatalf("Zone data failed to allocate %d megs", size/(1024*1024))
	}

	z := &Zone{
		name:     name,
		provider: provider,
		growable: true,
	}
	z.init(buf, logger)
	return z
}

// NewFixed creates a zone over a caller-provided buffer. Fixed zones cannot
// grow; exhausting one is fatal.
func NewFixed(name string, buf []byte, logger *slog.Logger) *Zone {
	z := &Zone{
		name:     name,
		growable: false,
	}
	z.init(buf, logger)
	return z
}

func (z *Zone) init(buf []byte, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	z.logger = logger
	z.registry = swiss.NewMap[uintptr, *block](42)
	z.clearZone(buf)

	z.logger.Debug("Zone::Init",
		slog.String("Zone", z.name),
		slog.Int("Size", z.size),
		slog.Bool("Growable", z.growable))
}

// clearZone sets the entire region to one free block, after reserving space
// for the zone record at its head.
func (z *Zone) clearZone(buf []byte) {
	z.minFragment = minFragment
	if need := memutils.AlignUp(headerSize+freeNodeSize, ptrAlign); z.minFragment < need {
		z.minFragment = need
	}

	seg := &segment{buf: buf}
	z.segments = []*segment{seg}
	z.size = len(buf)
	z.used = 0
	z.allocCount = 0

	z.blockList = block{
		tag:  TagGeneral, // in use, so nothing merges into the cap
		id:   -zoneID,
		size: 0,
	}

	first := newBlock()
	first.seg = seg
	first.offset = zoneRecordSize
	first.size = len(buf) - zoneRecordSize
	first.tag = TagFree
	first.id = zoneID
	first.prev = &z.blockList
	first.next = &z.blockList
	z.blockList.prev = first
	z.blockList.next = first

	z.initFreeLists()
	z.insertFree(first)
}

// newSegment appends a fresh raw region to a growable zone: a separator
// block first, then one free block covering the rest. The separator is a
// zero-size in-use block, so coalescing can never reach across a segment
// boundary.
func (z *Zone) newSegment(size int) (*block, error) {
	if !z.growable {
		memutils.Fatalf("Z_Malloc: failed on allocation of %d bytes from the %s zone", size, z.name)
	}

	size = memutils.AlignUp(size, segmentGranularity)
	allocSize := size + headerSize

	buf, err := z.provider.Acquire(allocSize)
	if err != nil {
		return nil, cerrors.Wrapf(memutils.ErrOutOfMemory,
			"Z_Malloc: failed on segment growth of %d bytes for the %s zone", allocSize, z.name)
	}

	seg := &segment{buf: buf}
	z.segments = append(z.segments, seg)

	prev := z.blockList.prev
	next := prev.next

	sep := newBlock()
	sep.seg = seg
	sep.offset = 0
	sep.size = 0
	sep.tag = TagGeneral // in-use block
	sep.id = -zoneID

	blk := newBlock()
	blk.seg = seg
	blk.offset = headerSize
	blk.size = size
	blk.tag = TagFree
	blk.id = zoneID

	prev.next = sep
	sep.prev = prev
	sep.next = blk
	blk.prev = sep
	blk.next = next
	next.prev = blk

	z.size += allocSize
	z.used += headerSize

	z.insertFree(blk)

	z.logger.Debug("Zone::NewSegment",
		slog.String("Zone", z.name),
		slog.Int("SegmentBytes", allocSize),
		slog.Int("ZoneBytes", z.size))

	return blk, nil
}

// TagAlloc allocates size bytes with the given owner tag from this zone.
// The returned slice is not zero-filled. Allocation failures in a growable
// zone surface as errors; exhausting a fixed zone is fatal.
func (z *Zone) TagAlloc(size int, tag Tag) ([]byte, error) {
	if tag == TagFree {
		memutils.Fatalf("Z_TagMalloc: tried to use with TAG_FREE")
	}
	if size < 0 {
		return nil, cerrors.Errorf("Z_TagMalloc: invalid size %d", size)
	}

	request := size

	// any later free must have room to thread a free-list node here
	if size < freeNodeSize {
		size = freeNodeSize
	}

	need := size + headerSize + guardSize
	need = memutils.AlignUp(need, ptrAlign)

	base, err := z.searchFree(need)
	if err != nil {
		return nil, err
	}
	z.removeFree(base)

	extra := base.size - need
	if extra >= z.minFragment {
		// there will be a free fragment after the allocated block
		frag := newBlock()
		frag.seg = base.seg
		frag.offset = base.offset + need
		frag.size = extra
		frag.tag = TagFree
		frag.id = zoneID
		frag.prev = base
		frag.next = base.next
		frag.next.prev = frag
		base.next = frag
		base.size = need
		z.insertFree(frag)
	}

	z.used += base.size
	z.allocCount++

	base.tag = tag
	base.id = zoneID
	base.seg.writeGuard(base)

	payload := base.seg.payload(base)
	base.key = payloadKey(payload)
	z.registry.Put(base.key, base)

	memutils.DebugValidate(z)

	return payload[:request], nil
}

// Alloc allocates zero-filled TagGeneral memory.
func (z *Zone) Alloc(size int) ([]byte, error) {
	buf, err := z.TagAlloc(size, TagGeneral)
	if err != nil {
		return nil, err
	}
	for i := range buf {
		buf[i] = 0
	}
	return buf, nil
}

// Owns reports whether ptr is a live or freed-but-unmerged allocation from
// this zone.
func (z *Zone) Owns(ptr []byte) bool {
	if ptr == nil || cap(ptr) == 0 {
		return false
	}
	_, ok := z.registry.Get(payloadKey(ptr))
	return ok
}

// Free releases a zone allocation. Freeing nil is a recoverable error.
// Freeing a pointer this zone never issued, freeing twice, or freeing a
// block whose trailing guard was overwritten is fatal. Freeing a static
// singleton is a no-op. The payload is poisoned and the block is merged
// with free neighbors before going back on a free list.
func (z *Zone) Free(ptr []byte) error {
	if ptr == nil || cap(ptr) == 0 {
		return errors.Wrap(memutils.ErrNilPointer, "Z_Free")
	}

	key := payloadKey(ptr)
	if isStaticKey(key) {
		return nil
	}

	b, ok := z.registry.Get(key)
	if !ok {
		memutils.Fatalf("Z_Free: freed a pointer without ZONEID (zone %s)", z.name)
	}
	if b.tag == TagFree {
		memutils.Fatalf("Z_Free: freed a freed pointer (zone %s)", z.name)
	}

	// check the memory trash tester
	if !b.seg.guardOK(b) {
		memutils.Fatalf("Z_Free: memory block wrote past end (zone %s, size %d)", z.name, b.size)
	}

	z.used -= b.size
	z.allocCount--

	// set the payload to something that should cause problems if it is
	// referenced...
	b.seg.poison(b)

	b.tag = TagFree
	b.id = zoneID

	other := b.prev
	if other.tag == TagFree {
		// merge with previous free block
		z.removeFree(other)
		z.mergeBlock(other, b)
		b = other
	}

	other = b.next
	if other.tag == TagFree {
		// merge the next free block onto the end
		z.removeFree(other)
		z.mergeBlock(b, other)
	}

	z.insertFree(b)

	memutils.DebugValidate(z)

	return nil
}

// mergeBlock absorbs src, which must physically follow dst, into dst.
func (z *Zone) mergeBlock(dst, src *block) {
	dst.size += src.size
	dst.next = src.next
	dst.next.prev = dst

	if src.key != 0 {
		z.registry.Delete(src.key)
	}
	releaseBlock(src)
}

// FreeTags frees every block carrying the given tag and returns the count.
// The walk re-anchors on the predecessor when a free merges the current
// block away, so coalescing cannot strand the traversal.
func (z *Zone) FreeTags(tag Tag) int {
	if tag == TagStatic {
		memutils.Fatalf("Z_FreeTags( TAG_STATIC )")
	}

	count := 0
	for b := z.blockList.next; ; {
		if b.tag == tag && b.id == zoneID {
			resume := b // will be left in place
			if b.prev.tag == TagFree {
				resume = b.prev // current block will be merged with previous
			}
			if err := z.Free(b.seg.payload(b)); err != nil {
				// only nil pointers are recoverable, and b is never nil
				memutils.Fatalf("Z_FreeTags: %v", err)
			}
			b = resume
			count++
		}
		if b.next == &z.blockList {
			break // all blocks have been hit
		}
		b = b.next
	}

	if count > 0 {
		z.logger.Debug("Zone::FreeTags",
			slog.String("Zone", z.name),
			slog.String("Tag", tag.String()),
			slog.Int("Freed", count))
	}

	return count
}

// Validate walks the physical chain and the free lists and reports the
// first inconsistency: a gap between blocks that is not a segment
// boundary, a broken back link, two contiguous free blocks, a free-list
// entry that is not free, or drifted accounting.
func (z *Zone) Validate() error {
	sepCount := 0
	usedSum := 0
	physicalFree := 0

	for b := z.blockList.next; ; {
		if b.id != zoneID && b.id != -zoneID {
			return errors.Errorf("Z_CheckHeap: block at offset %d has a corrupt id", b.offset)
		}
		if b.tag == TagFree {
			physicalFree++
		} else {
			usedSum += b.size
		}

		if b.next == &z.blockList {
			break // all blocks have been hit
		}

		if !adjacent(b, b.next) {
			next := b.next
			if next.size == 0 && next.id == -zoneID && next.tag == TagGeneral {
				b = next // new zone segment
				sepCount++
			} else {
				return errors.New("Z_CheckHeap: block size does not touch the next block")
			}
		}
		if b.next.prev != b {
			return errors.New("Z_CheckHeap: next block doesn't have proper back link")
		}
		if b.tag == TagFree && b.next.tag == TagFree {
			return errors.New("Z_CheckHeap: two consecutive free blocks")
		}
		b = b.next
	}

	listedFree := 0
	for i := range z.freeLists {
		fl := &z.freeLists[i]
		for fb := fl.nextFree; fb != fl; fb = fb.nextFree {
			if fb.tag != TagFree {
				return errors.Errorf("free list %d holds a block that is not free (offset %d)", i, fb.offset)
			}
			if bucketIndex(fb.size) != i {
				return errors.Errorf("block of size %d is threaded on free list %d", fb.size, i)
			}
			if fb.nextFree.prevFree != fb {
				return errors.Errorf("free list %d has a broken back link at offset %d", i, fb.offset)
			}
			listedFree++
		}
	}
	if listedFree != physicalFree {
		return errors.Errorf("%d free blocks in the chain but %d on the free lists", physicalFree, listedFree)
	}

	// each separator contributes its header to used without carrying size
	if expected := usedSum + sepCount*headerSize; expected != z.used {
		return errors.Errorf("zone used is %d but non-free blocks add up to %d", z.used, expected)
	}

	return nil
}

// AvailableMemory returns the bytes not currently held by allocations.
func (z *Zone) AvailableMemory() int {
	return z.size - z.used
}

// Size returns the total bytes acquired by this zone across all segments.
func (z *Zone) Size() int { return z.size }

// Used returns the bytes held by non-free blocks, separator headers
// included.
func (z *Zone) Used() int { return z.used }

// AllocationCount returns the number of live allocations.
func (z *Zone) AllocationCount() int { return z.allocCount }

// AddStatistics sums this zone's occupancy into stats.
func (z *Zone) AddStatistics(stats *memutils.Statistics) {
	stats.BlockCount += len(z.segments)
	stats.AllocationCount += z.allocCount
	stats.BlockBytes += z.size
	stats.AllocationBytes += z.used
}

// AddDetailedStatistics walks every block, summing allocation and
// free-range extrema into stats.
func (z *Zone) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	stats.BlockCount += len(z.segments)
	stats.BlockBytes += z.size

	for b := z.blockList.next; b != &z.blockList; b = b.next {
		if b.size == 0 {
			continue // separator
		}
		if b.tag == TagFree {
			stats.AddUnusedRange(b.size)
		} else {
			stats.AddAllocation(b.size)
		}
	}
}

// LogHeap writes one debug line per live allocation, the diagnostic cousin
// of the JSON dump.
func (z *Zone) LogHeap(logger *slog.Logger) {
	if logger == nil {
		logger = z.logger
	}
	for b := z.blockList.next; b != &z.blockList; b = b.next {
		if b.tag == TagFree || b.size == 0 {
			continue
		}
		logger.Debug("Zone::Block",
			slog.String("Zone", z.name),
			slog.Int("Offset", b.offset),
			slog.Int("Size", b.size),
			slog.String("Tag", b.tag.String()))
	}
}
