package zone

import "fmt"

// Tag labels the owner of a zone block. TagFree marks free blocks and may
// not be passed to TagAlloc. TagSmall routes allocations to the small zone;
// every other caller tag routes to the main zone. TagStatic only ever
// appears on the compile-time string singletons.
type Tag uint32

const (
	TagFree Tag = iota
	TagGeneral
	TagPack
	TagSearchPath
	TagSearchPack
	TagSearchDir
	TagBotlib
	TagRenderer
	TagClients
	TagSmall
	TagStatic

	TagCount
)

var tagNames = [TagCount]string{
	"FREE",
	"GENERAL",
	"PACK",
	"SEARCH-PATH",
	"SEARCH-PACK",
	"SEARCH-DIR",
	"BOTLIB",
	"RENDERER",
	"CLIENTS",
	"SMALL",
	"STATIC",
}

func (t Tag) String() string {
	if t < TagCount {
		return tagNames[t]
	}
	return fmt.Sprintf("TAG(%d)", uint32(t))
}
