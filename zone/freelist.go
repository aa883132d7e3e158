package zone

import "github.com/joshsteffen/TASjr/memutils"

// Free blocks are grouped into four segregated lists by total block size,
// so small allocations do not have to walk past every large free region.
// Each list is circular through a sentinel whose layout matches an ordinary
// block, keeping the link handling uniform.
const (
	tinySize   = 32
	smallSize  = 64
	mediumSize = 128
)

const (
	freeListTiny = iota
	freeListSmall
	freeListMedium
	freeListLarge

	numFreeLists
)

func bucketIndex(size int) int {
	switch {
	case size <= tinySize:
		return freeListTiny
	case size <= smallSize:
		return freeListSmall
	case size <= mediumSize:
		return freeListMedium
	default:
		return freeListLarge
	}
}

func (z *Zone) initFreeLists() {
	for i := range z.freeLists {
		fl := &z.freeLists[i]
		*fl = block{}
		fl.prevFree = fl
		fl.nextFree = fl
	}
}

// insertFree threads a free block at the head of the list matching its
// size. The block must already carry TagFree.
func (z *Zone) insertFree(b *block) {
	fl := &z.freeLists[bucketIndex(b.size)]

	next := fl.nextFree
	fl.nextFree = b
	b.prevFree = fl
	b.nextFree = next
	next.prevFree = b
}

func (z *Zone) removeFree(b *block) {
	if b.prevFree == nil || b.nextFree == nil {
		memutils.Fatalf("RemoveFree: bad free-list links in the %s zone at offset %d", z.name, b.offset)
	}
	b.prevFree.nextFree = b.nextFree
	b.nextFree.prevFree = b.prevFree
	b.prevFree = nil
	b.nextFree = nil
}

// searchFree walks the candidate bucket and every larger one for the first
// free block of at least size bytes, growing the zone when all buckets are
// exhausted. Forward walk order favors allocation speed over consolidation.
func (z *Zone) searchFree(size int) (*block, error) {
	for idx := bucketIndex(size); idx < numFreeLists; idx++ {
		fl := &z.freeLists[idx]
		for fb := fl.nextFree; fb != fl; fb = fb.nextFree {
			if fb.size >= size {
				return fb, nil
			}
		}
	}

	return z.newSegment(size)
}
