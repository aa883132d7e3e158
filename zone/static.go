package zone

import (
	"unsafe"

	"github.com/joshsteffen/TASjr/memutils"
)

// Static singleton blocks for the empty string and the single-digit
// strings, handed out by CopyString instead of burning a small-zone block
// per occurrence. They look like ordinary allocations to callers; Free
// recognizes them by address and leaves them alone.
type memStatic struct {
	b   block
	mem [2]byte
}

var emptyString = memStatic{
	b:   block{size: staticBlockSize, tag: TagStatic, id: zoneID},
	mem: [2]byte{0, 0},
}

var numberStrings = [10]memStatic{
	{b: block{size: staticBlockSize, tag: TagStatic, id: zoneID}, mem: [2]byte{'0', 0}},
	{b: block{size: staticBlockSize, tag: TagStatic, id: zoneID}, mem: [2]byte{'1', 0}},
	{b: block{size: staticBlockSize, tag: TagStatic, id: zoneID}, mem: [2]byte{'2', 0}},
	{b: block{size: staticBlockSize, tag: TagStatic, id: zoneID}, mem: [2]byte{'3', 0}},
	{b: block{size: staticBlockSize, tag: TagStatic, id: zoneID}, mem: [2]byte{'4', 0}},
	{b: block{size: staticBlockSize, tag: TagStatic, id: zoneID}, mem: [2]byte{'5', 0}},
	{b: block{size: staticBlockSize, tag: TagStatic, id: zoneID}, mem: [2]byte{'6', 0}},
	{b: block{size: staticBlockSize, tag: TagStatic, id: zoneID}, mem: [2]byte{'7', 0}},
	{b: block{size: staticBlockSize, tag: TagStatic, id: zoneID}, mem: [2]byte{'8', 0}},
	{b: block{size: staticBlockSize, tag: TagStatic, id: zoneID}, mem: [2]byte{'9', 0}},
}

const staticBlockSize = headerSize + 4

var staticKeys map[uintptr]struct{}

func init() {
	staticKeys = make(map[uintptr]struct{}, 1+len(numberStrings))
	staticKeys[uintptr(unsafe.Pointer(&emptyString.mem[0]))] = struct{}{}
	for i := range numberStrings {
		staticKeys[uintptr(unsafe.Pointer(&numberStrings[i].mem[0]))] = struct{}{}
	}
}

func isStaticKey(key uintptr) bool {
	_, ok := staticKeys[key]
	return ok
}

// IsStatic reports whether ptr is one of the static singletons.
func IsStatic(ptr []byte) bool {
	if ptr == nil || cap(ptr) == 0 {
		return false
	}
	return isStaticKey(payloadKey(ptr))
}

// EmptyString returns the singleton payload standing in for "", a single
// NUL byte.
func EmptyString() []byte {
	return emptyString.mem[:1]
}

// NumberString returns the NUL-terminated singleton payload for one ASCII
// digit.
func NumberString(c byte) []byte {
	if c < '0' || c > '9' {
		memutils.Fatalf("NumberString: %q is not a digit", c)
	}
	return numberStrings[c-'0'].mem[:]
}
