package zone

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBucketIndex(t *testing.T) {
	require.Equal(t, freeListTiny, bucketIndex(1))
	require.Equal(t, freeListTiny, bucketIndex(tinySize))
	require.Equal(t, freeListSmall, bucketIndex(tinySize+1))
	require.Equal(t, freeListSmall, bucketIndex(smallSize))
	require.Equal(t, freeListMedium, bucketIndex(smallSize+1))
	require.Equal(t, freeListMedium, bucketIndex(mediumSize))
	require.Equal(t, freeListLarge, bucketIndex(mediumSize+1))
	require.Equal(t, freeListLarge, bucketIndex(1<<20))
}

func TestFreeListThreading(t *testing.T) {
	z := newTestZone(t, 1<<20)

	// a freed block lands on the list matching its size, and is taken
	// off it again when reallocated
	buf, err := z.TagAlloc(80, TagGeneral)
	require.NoError(t, err)
	keep, err := z.TagAlloc(80, TagGeneral)
	require.NoError(t, err)

	span := blockSpan(80)
	require.NoError(t, z.Free(buf))

	fl := &z.freeLists[bucketIndex(span)]
	require.NotSame(t, fl, fl.nextFree)
	require.Equal(t, span, fl.nextFree.size)
	require.Equal(t, TagFree, fl.nextFree.tag)

	buf2, err := z.TagAlloc(80, TagGeneral)
	require.NoError(t, err)
	require.Same(t, fl, fl.nextFree)

	require.NoError(t, z.Free(buf2))
	require.NoError(t, z.Free(keep))
	require.NoError(t, z.Validate())
}

func TestPayloadAlignment(t *testing.T) {
	z := newTestZone(t, 1<<20)

	for _, n := range []int{1, 7, 16, 33, 100, 1000} {
		buf, err := z.TagAlloc(n, TagGeneral)
		require.NoError(t, err)
		require.Zero(t, payloadKey(buf)%ptrAlign, "allocation of %d bytes is misaligned", n)
	}
}

func TestMinFragmentLeavesNoUnusableSplinters(t *testing.T) {
	z := newTestZone(t, 1<<20)

	// a fit that would leave less than minFragment keeps the whole block
	a, err := z.TagAlloc(100, TagGeneral)
	require.NoError(t, err)
	b, err := z.TagAlloc(100, TagGeneral)
	require.NoError(t, err)
	require.NoError(t, z.Free(a))

	// reallocate slightly smaller out of the freed hole
	span := blockSpan(100)
	c, err := z.TagAlloc(100-minFragment/2, TagGeneral)
	require.NoError(t, err)
	require.NoError(t, z.Validate())

	// the hole was reused whole; used went up by the full old span
	require.Equal(t, 2*span, z.Used())

	require.NoError(t, z.Free(b))
	require.NoError(t, z.Free(c))
	require.NoError(t, z.Validate())
	require.Equal(t, 0, z.Used())
}
