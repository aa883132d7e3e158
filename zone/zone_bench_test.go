package zone

import (
	"testing"

	"github.com/joshsteffen/TASjr/memutils"
)

func BenchmarkZoneAllocFree(b *testing.B) {
	z := New("main", 16*1024*1024, memutils.SystemProvider{}, nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf, err := z.TagAlloc(64+(i%7)*24, TagGeneral)
		if err != nil {
			b.Fatal(err)
		}
		if err := z.Free(buf); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkZoneFreeTags(b *testing.B) {
	z := New("main", 16*1024*1024, memutils.SystemProvider{}, nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for j := 0; j < 32; j++ {
			if _, err := z.TagAlloc(48, TagRenderer); err != nil {
				b.Fatal(err)
			}
		}
		if freed := z.FreeTags(TagRenderer); freed != 32 {
			b.Fatalf("freed %d blocks, expected 32", freed)
		}
	}
}
