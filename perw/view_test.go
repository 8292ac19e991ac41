package perw

import (
	"bytes"
	dpe "debug/pe"
	"encoding/binary"
	"testing"

	vpe "github.com/Velocidex/go-pe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenHeaders(t *testing.T) {
	v32 := openFixture32(t, newFixture(false))
	assert.False(t, v32.Is64())
	assert.Equal(t, uint64(0x400000), v32.ImageBase())
	assert.Equal(t, "i386", v32.Machine())
	assert.Equal(t, uint16(0x10b), v32.OptionalHeader().Magic)

	v64 := openFixture64(t, newFixture(true))
	assert.True(t, v64.Is64())
	assert.Equal(t, uint64(0x140000000), v64.ImageBase())
	assert.Equal(t, "amd64", v64.Machine())
	assert.Equal(t, uint16(0x20b), v64.OptionalHeader().Magic)

	for _, v := range []interface {
		EntryPoint() uint32
		SizeOfImage() uint32
		SizeOfHeaders() uint32
		NumSections() int
		IsDLL() bool
		NtHeadersOffset() uint32
		DataDirectories() []DataDirectory
		Layout() Layout
	}{v32, v64} {
		assert.Equal(t, uint32(fxText), v.EntryPoint())
		assert.Equal(t, uint32(fxImageSize), v.SizeOfImage())
		assert.Equal(t, uint32(fxHeaders), v.SizeOfHeaders())
		assert.Equal(t, 6, v.NumSections())
		assert.True(t, v.IsDLL())
		assert.Equal(t, uint32(fxLfanew), v.NtHeadersOffset())
		assert.Len(t, v.DataDirectories(), 16)
		assert.Equal(t, LayoutDisk, v.Layout())
	}
}

func TestDataDirectory(t *testing.T) {
	v := openFixture32(t, newFixture(false))

	dir, err := v.DataDirectory(dpe.IMAGE_DIRECTORY_ENTRY_EXPORT)
	require.NoError(t, err)
	assert.Equal(t, DataDirectory{VirtualAddress: fxEdata, Size: 0x140}, dir)

	_, err = v.DataDirectory(16)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = v.DataDirectory(-1)
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, err = v.directory(dpe.IMAGE_DIRECTORY_ENTRY_TLS)
	assert.ErrorIs(t, err, ErrNotPresent)
}

func TestSections(t *testing.T) {
	v := openFixture64(t, newFixture(true))

	var names []string
	for i, s := range v.Sections() {
		assert.Equal(t, v.Section(i), s)
		names = append(names, SectionName(s))
	}
	assert.Equal(t, []string{".text", ".edata", ".idata", ".rsrc", ".reloc", ".data"}, names)

	s, err := v.SectionByName(".RSRC")
	require.NoError(t, err)
	assert.Equal(t, uint32(fxRsrc), s.VirtualAddress)

	_, err = v.SectionByName(".tls")
	assert.ErrorIs(t, err, ErrNotFound)

	s, err = v.SectionByRVA(fxData + 0xfff)
	require.NoError(t, err)
	assert.Equal(t, ".data", SectionName(s))

	_, err = v.SectionByRVA(fxImageSize)
	assert.ErrorIs(t, err, ErrRvaNotMapped)
}

func TestOpenBadMagic(t *testing.T) {
	data := newFixture(false).build(t)
	data[0] = 'X'
	_, err := Open[OptionalHeader32](data)
	assert.ErrorIs(t, err, ErrBadMagic)

	data = newFixture(false).build(t)
	copy(data[fxLfanew:], "PX")
	_, err = Open[OptionalHeader32](data)
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestOpenBadWidth(t *testing.T) {
	_, err := Open[OptionalHeader32](newFixture(true).build(t))
	assert.ErrorIs(t, err, ErrBadWidth, "amd64 machine in a PE32 view")

	_, err = Open[OptionalHeader64](newFixture(false).build(t))
	assert.ErrorIs(t, err, ErrBadWidth, "i386 machine in a PE32+ view")

	// an unknown machine falls through to the magic check
	f := newFixture(false)
	f.machine = 0
	f.magic = 0x20b
	_, err = Open[OptionalHeader32](f.build(t))
	assert.ErrorIs(t, err, ErrBadWidth)

	// and the other way round: PE32 magic in a PE32+ view
	f = newFixture(true)
	f.machine = 0
	f.magic = 0x10b
	_, err = Open[OptionalHeader64](f.build(t))
	assert.ErrorIs(t, err, ErrBadWidth)

	f = newFixture(false)
	f.machine = 0
	_, err = Open[OptionalHeader64](f.build(t))
	assert.ErrorIs(t, err, ErrBadWidth)
}

func TestOpenOutOfBounds(t *testing.T) {
	data := newFixture(true).build(t)

	_, err := Open[OptionalHeader64](data[:sizeofDosHeader-1])
	assert.ErrorIs(t, err, ErrOutOfBounds)

	// NT headers cut short
	_, err = Open[OptionalHeader64](data[:fxLfanew+100])
	assert.ErrorIs(t, err, ErrOutOfBounds)

	// section table cut short
	secEnd := fxLfanew + sizeofNtSignature + sizeofFileHeader + 240 + 6*sizeofSectionHeader
	_, err = Open[OptionalHeader64](data[:secEnd-1])
	assert.ErrorIs(t, err, ErrOutOfBounds)
	_, err = Open[OptionalHeader64](data[:secEnd])
	assert.NoError(t, err)

	// e_lfanew pointing past the end
	binary.LittleEndian.PutUint32(data[0x3c:], 0xfffffff0)
	_, err = Open[OptionalHeader64](data)
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestDetectWidth(t *testing.T) {
	is64, err := DetectWidth(newFixture(true).build(t))
	require.NoError(t, err)
	assert.True(t, is64)

	is64, err = DetectWidth(newFixture(false).build(t))
	require.NoError(t, err)
	assert.False(t, is64)

	f := newFixture(false)
	f.magic = 0x107
	_, err = DetectWidth(f.build(t))
	assert.ErrorIs(t, err, ErrBadMagic)

	_, err = DetectWidth([]byte("MZ"))
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestDirectoryName(t *testing.T) {
	assert.Equal(t, "export", DirectoryName(dpe.IMAGE_DIRECTORY_ENTRY_EXPORT))
	assert.Equal(t, "basereloc", DirectoryName(dpe.IMAGE_DIRECTORY_ENTRY_BASERELOC))
	assert.Equal(t, "directory 20", DirectoryName(20))
}

// The fixture builder is checked against an independent reader so that the
// other tests do not just agree with themselves.
func TestFixtureMatchesVelocidex(t *testing.T) {
	for _, is64 := range []bool{false, true} {
		data := newFixture(is64).build(t)

		profile := vpe.NewPeProfile()
		dos := profile.IMAGE_DOS_HEADER(bytes.NewReader(data), 0)
		nt := dos.NTHeader()
		require.Equal(t, uint16(6), nt.FileHeader().NumberOfSections())

		var want uint16 = 0x10b
		if is64 {
			want = 0x20b
		}
		assert.Equal(t, want, nt.OptionalHeader().Magic())

		sections := nt.Sections()
		require.Len(t, sections, 6)

		var view interface {
			Section(i int) SectionHeader
			RvaToFileOffset(rva uint32) (uint32, error)
		}
		if is64 {
			view = openFixture64(t, newFixture(true))
		} else {
			view = openFixture32(t, newFixture(false))
		}
		for i, s := range sections {
			ours := view.Section(i)
			assert.Equal(t, SectionName(ours), s.Name())
			assert.Equal(t, ours.VirtualAddress, s.VirtualAddress())
			assert.Equal(t, ours.PointerToRawData, s.PointerToRawData())
		}

		resolver := vpe.NewRVAResolver(nt)
		for _, rva := range []uint32{fxText + 4, fxEdata + 0x130, fxIdata + 0x200, fxData + 0x1ff} {
			off, err := view.RvaToFileOffset(rva)
			require.NoError(t, err)
			assert.Equal(t, resolver.GetFileAddress(rva), off, "rva %#x", rva)
		}
	}
}
