package zone

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStaticSingletons(t *testing.T) {
	empty := EmptyString()
	require.Equal(t, []byte{0}, empty)
	require.True(t, IsStatic(empty))

	for c := byte('0'); c <= '9'; c++ {
		buf := NumberString(c)
		require.Equal(t, []byte{c, 0}, buf)
		require.True(t, IsStatic(buf))
	}

	require.Panics(t, func() {
		NumberString('x')
	})
}

func TestStaticFreeIsNoOp(t *testing.T) {
	z := newTestZone(t, 1<<20)

	before := z.Used()
	require.NoError(t, z.Free(EmptyString()))
	require.NoError(t, z.Free(NumberString('7')))
	require.Equal(t, before, z.Used())
	require.NoError(t, z.Validate())

	// the singleton is still intact afterwards
	require.Equal(t, []byte{'7', 0}, NumberString('7'))
}

func TestFreeTagsStaticIsFatal(t *testing.T) {
	z := newTestZone(t, 1<<20)

	require.Panics(t, func() {
		z.FreeTags(TagStatic)
	})
}

func TestZoneAllocationsAreNotStatic(t *testing.T) {
	z := newTestZone(t, 1<<20)

	buf, err := z.TagAlloc(32, TagGeneral)
	require.NoError(t, err)
	require.False(t, IsStatic(buf))
	require.NoError(t, z.Free(buf))
}
