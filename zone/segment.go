package zone

import (
	"encoding/binary"
	"unsafe"
)

// poisonByte fills freed payloads so stale references fail loudly.
const poisonByte = 0xAA

// segment is one raw region belonging to a zone. The first segment also
// hosts the zone record; appended segments start with a separator.
type segment struct {
	buf []byte
}

func (s *segment) payload(b *block) []byte {
	usable := b.size - headerSize - guardSize
	return s.buf[b.offset+headerSize : b.offset+headerSize+usable]
}

func (s *segment) writeGuard(b *block) {
	binary.LittleEndian.PutUint32(s.buf[b.offset+b.size-guardSize:], uint32(zoneID))
}

func (s *segment) guardOK(b *block) bool {
	return binary.LittleEndian.Uint32(s.buf[b.offset+b.size-guardSize:]) == uint32(zoneID)
}

// poison overwrites everything past the header, guard word included.
func (s *segment) poison(b *block) {
	area := s.buf[b.offset+headerSize : b.offset+b.size]
	for i := range area {
		area[i] = poisonByte
	}
}

func payloadKey(p []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(p)))
}

// adjacent reports whether b ends exactly where next begins. Blocks in
// different segments are never adjacent.
func adjacent(b, next *block) bool {
	return b.seg == next.seg && b.offset+b.size == next.offset
}
