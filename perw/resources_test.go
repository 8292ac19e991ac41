package perw

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourceTree(t *testing.T) {
	res, err := openFixture32(t, newFixture(false)).Resources()
	require.NoError(t, err)

	root, err := res.Root()
	require.NoError(t, err)
	require.Equal(t, 1, root.Len())
	assert.Equal(t, 0, root.Depth())

	typ := root.Entry(0)
	assert.True(t, typ.IsDir())
	name, err := typ.Name()
	require.NoError(t, err)
	assert.Equal(t, ResourceName{ID: 10}, name)
	assert.Equal(t, "RCDATA", TypeName(name.ID))

	names, err := typ.Dir()
	require.NoError(t, err)
	assert.Equal(t, 1, names.Depth())
	name, err = names.Entry(0).Name()
	require.NoError(t, err)
	assert.Equal(t, ResourceName{Named: true, Str: "CONFIG"}, name)

	langs, err := names.Entry(0).Dir()
	require.NoError(t, err)
	leaf := langs.Entry(0)
	assert.False(t, leaf.IsDir())
	_, err = leaf.Dir()
	assert.ErrorIs(t, err, ErrNotFound)

	data, err := leaf.Data()
	require.NoError(t, err)
	assert.Equal(t, uint32(5), data.Size())
	assert.Equal(t, uint32(1252), data.CodePage())
	b, err := data.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), b)
}

func TestResourceWalk(t *testing.T) {
	res, err := openFixture64(t, newFixture(true)).Resources()
	require.NoError(t, err)

	var paths []string
	err = res.Walk(func(path []ResourceName, data ResourceData) error {
		require.Len(t, path, 3)
		paths = append(paths, path[0].String()+"/"+path[1].String()+"/"+path[2].String())
		b, err := data.Bytes()
		require.NoError(t, err)
		assert.Equal(t, "hello", string(b))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"#10/CONFIG/#1033"}, paths)

	stop := errors.New("stop")
	err = res.Walk(func([]ResourceName, ResourceData) error { return stop })
	assert.ErrorIs(t, err, stop)
}

func TestResourceLookup(t *testing.T) {
	res, err := openFixture32(t, newFixture(false)).Resources()
	require.NoError(t, err)

	e, err := res.Lookup("#10", "config", "#1033")
	require.NoError(t, err)
	data, err := e.Data()
	require.NoError(t, err)
	assert.Equal(t, uint32(fxRsrc+0x100), data.RVA())

	_, err = res.Lookup("#10", "OTHER")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = res.Lookup("#3")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = res.Lookup("#10", "CONFIG", "#1033", "#1")
	assert.ErrorIs(t, err, ErrNotFound, "descending below a leaf")
	_, err = res.Lookup("#x")
	assert.Error(t, err)
}

// cyclicResources makes the language directory point back at the type
// directory above it.
func cyclicResources(f *fixture, target uint32) {
	f.section(".rsrc").u32(fxRsrc+0x44, 0x80000000|target)
}

func TestResourceCycle(t *testing.T) {
	for _, target := range []uint32{0x00, 0x18, 0x30} {
		f := newFixture(false)
		cyclicResources(f, target)
		res, err := openFixture32(t, f).Resources()
		require.NoError(t, err)

		calls := 0
		err = res.Walk(func([]ResourceName, ResourceData) error {
			calls++
			return nil
		})
		assert.ErrorIs(t, err, ErrResourceCycle, "target %#x", target)
		assert.Zero(t, calls)
	}
}

func TestResourceOffsetsBoundedByDirectory(t *testing.T) {
	f := newFixture(false)
	// the tree no longer covers the name string
	f.dirs[2].Size = 0x60
	res, err := openFixture32(t, f).Resources()
	require.NoError(t, err)

	typ, err := res.Lookup("#10")
	require.NoError(t, err)
	dir, err := typ.Dir()
	require.NoError(t, err)
	_, err = dir.Entry(0).Name()
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestParseResourceName(t *testing.T) {
	n, err := ParseResourceName("#16")
	require.NoError(t, err)
	assert.Equal(t, ResourceName{ID: 16}, n)
	assert.Equal(t, "#16", n.String())

	n, err = ParseResourceName("MUI")
	require.NoError(t, err)
	assert.Equal(t, "MUI", n.String())

	_, err = ParseResourceName("#70000")
	assert.Error(t, err)

	assert.Equal(t, "VERSION", TypeName(16))
	assert.Equal(t, "#99", TypeName(99))
}

// sharedResources replaces the tree with a chain of levels directories in
// which both entries of each directory point at the next one, ending in a
// single leaf. Expanded into paths it has 2^levels leaves.
func sharedResources(f *fixture, levels uint32) {
	const hi = 0x80000000
	s := f.section(".rsrc")
	s.vsize = 0x200
	clear(s.data)
	for i := range levels {
		off := fxRsrc + i*0x20
		s.u16(off+14, 2)
		for j := range uint32(2) {
			s.u32(off+16+j*8, j+1)
			s.u32(off+20+j*8, hi|(i+1)*0x20)
		}
	}
	last := fxRsrc + levels*0x20
	s.u16(last+14, 1)
	s.u32(last+16, 1)
	s.u32(last+20, (levels+1)*0x20)
	leaf := last + 0x20
	s.u32(leaf, fxData)
	s.u32(leaf+4, 4)
	f.dirs[2] = DataDirectory{VirtualAddress: fxRsrc, Size: (levels+1)*0x20 + sizeofResourceData}
}

func TestResourceWalkSharedDirectories(t *testing.T) {
	const levels = 10
	f := newFixture(false)
	sharedResources(f, levels)
	res, err := openFixture32(t, f).Resources()
	require.NoError(t, err)

	calls := 0
	err = res.Walk(func(path []ResourceName, data ResourceData) error {
		calls++
		assert.Len(t, path, levels+1)
		b, err := data.Bytes()
		require.NoError(t, err)
		assert.Equal(t, []byte("DATA"), b)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	// the second branch is still reachable by lookup
	path := make([]string, 0, levels+1)
	for range levels {
		path = append(path, "#2")
	}
	e, err := res.Lookup(append(path, "#1")...)
	require.NoError(t, err)
	assert.False(t, e.IsDir())
}
