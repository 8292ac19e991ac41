package perw

import (
	"bytes"
	dpe "debug/pe"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// Fixture layout shared by the tests. Each section's raw data is file
// aligned and laid out back to back after the headers.
const (
	fxLfanew       = 0x40
	fxHeaders      = 0x400
	fxFileAlign    = 0x200
	fxSectionAlign = 0x1000

	fxText  = 0x1000
	fxEdata = 0x2000
	fxIdata = 0x3000
	fxRsrc  = 0x4000
	fxReloc = 0x5000
	fxData  = 0x6000

	fxImageSize = 0x7000
)

type fixtureSection struct {
	name  string
	va    uint32
	vsize uint32
	data  []byte
	chars uint32
}

func (s *fixtureSection) put(rva uint32, b []byte) { copy(s.data[rva-s.va:], b) }

func (s *fixtureSection) cstr(rva uint32, str string) { s.put(rva, append([]byte(str), 0)) }

func (s *fixtureSection) u16(rva uint32, v uint16) {
	binary.LittleEndian.PutUint16(s.data[rva-s.va:], v)
}

func (s *fixtureSection) u32(rva uint32, v uint32) {
	binary.LittleEndian.PutUint32(s.data[rva-s.va:], v)
}

type fixture struct {
	is64     bool
	machine  uint16
	magic    uint16
	sections []*fixtureSection
	dirs     [16]DataDirectory
	overlay  []byte
}

func (f *fixture) section(name string) *fixtureSection {
	for _, s := range f.sections {
		if s.name == name {
			return s
		}
	}
	panic("no fixture section " + name)
}

func (f *fixture) thunkSize() uint32 {
	if f.is64 {
		return 8
	}
	return 4
}

func (f *fixture) ordinalFlag() uint64 {
	if f.is64 {
		return 1 << 63
	}
	return 1 << 31
}

func (f *fixture) thunk(s *fixtureSection, rva uint32, v uint64) {
	if f.is64 {
		binary.LittleEndian.PutUint64(s.data[rva-s.va:], v)
	} else {
		s.u32(rva, uint32(v))
	}
}

func (f *fixture) relocType() uint16 {
	if f.is64 {
		return RelBasedDir64
	}
	return RelBasedHighLow
}

func (f *fixture) imageBase() uint64 {
	if f.is64 {
		return 0x140000000
	}
	return 0x400000
}

func (f *fixture) build(t testing.TB) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := func(v any) { require.NoError(t, binary.Write(&buf, binary.LittleEndian, v)) }

	w(DosHeader{Magic: dosMagic, Lfanew: fxLfanew})
	buf.WriteString(ntSignature)

	optSize := uint16(224)
	if f.is64 {
		optSize = 240
	}
	w(FileHeader{
		Machine:              f.machine,
		NumberOfSections:     uint16(len(f.sections)),
		SizeOfOptionalHeader: optSize,
		Characteristics:      dpe.IMAGE_FILE_EXECUTABLE_IMAGE | dpe.IMAGE_FILE_DLL,
	})

	if f.is64 {
		magic := f.magic
		if magic == 0 {
			magic = 0x20b
		}
		w(dpe.OptionalHeader64{
			Magic:               magic,
			AddressOfEntryPoint: fxText,
			ImageBase:           f.imageBase(),
			SectionAlignment:    fxSectionAlign,
			FileAlignment:       fxFileAlign,
			SizeOfImage:         fxImageSize,
			SizeOfHeaders:       fxHeaders,
			Subsystem:           3,
			DllCharacteristics:  0x0140,
			NumberOfRvaAndSizes: 16,
			DataDirectory:       f.dirs,
		})
	} else {
		magic := f.magic
		if magic == 0 {
			magic = 0x10b
		}
		w(dpe.OptionalHeader32{
			Magic:               magic,
			AddressOfEntryPoint: fxText,
			ImageBase:           uint32(f.imageBase()),
			SectionAlignment:    fxSectionAlign,
			FileAlignment:       fxFileAlign,
			SizeOfImage:         fxImageSize,
			SizeOfHeaders:       fxHeaders,
			Subsystem:           3,
			DllCharacteristics:  0x0140,
			NumberOfRvaAndSizes: 16,
			DataDirectory:       f.dirs,
		})
	}

	ptr := uint32(fxHeaders)
	for _, s := range f.sections {
		var name [8]uint8
		copy(name[:], s.name)
		w(SectionHeader{
			Name:             name,
			VirtualSize:      s.vsize,
			VirtualAddress:   s.va,
			SizeOfRawData:    uint32(len(s.data)),
			PointerToRawData: ptr,
			Characteristics:  s.chars,
		})
		ptr += uint32(len(s.data))
	}
	require.LessOrEqual(t, buf.Len(), fxHeaders)
	buf.Write(make([]byte, fxHeaders-buf.Len()))
	for _, s := range f.sections {
		buf.Write(s.data)
	}
	buf.Write(f.overlay)
	return buf.Bytes()
}

// newFixture returns a DLL with one of every table this package reads:
//
//	.text   code filled with int3
//	.edata  exports of test.dll, base 5: Alpha, Beta, a gap, an ordinal
//	        only export and Fwd forwarded to KERNEL32.Sleep
//	.idata  KERNEL32.dll (Sleep, #42) and USER32.dll (MessageBoxA, IAT only)
//	.rsrc   RCDATA/CONFIG/1033 -> "hello"
//	.reloc  two blocks of 3 and 5 entries followed by junk
//	.data   0x1000 bytes of virtual size backed by 0x200 raw bytes
func newFixture(is64 bool) *fixture {
	f := &fixture{is64: is64, machine: dpe.IMAGE_FILE_MACHINE_I386}
	if is64 {
		f.machine = dpe.IMAGE_FILE_MACHINE_AMD64
	}
	var (
		code   uint32 = dpe.IMAGE_SCN_CNT_CODE | dpe.IMAGE_SCN_MEM_EXECUTE | dpe.IMAGE_SCN_MEM_READ
		rdata  uint32 = dpe.IMAGE_SCN_CNT_INITIALIZED_DATA | dpe.IMAGE_SCN_MEM_READ
		rwdata uint32 = rdata | dpe.IMAGE_SCN_MEM_WRITE
	)
	f.sections = []*fixtureSection{
		{name: ".text", va: fxText, vsize: 0x100, data: bytes.Repeat([]byte{0xcc}, 0x200), chars: code},
		{name: ".edata", va: fxEdata, vsize: 0x140, data: make([]byte, 0x200), chars: rdata},
		{name: ".idata", va: fxIdata, vsize: 0x220, data: make([]byte, 0x400), chars: rwdata},
		{name: ".rsrc", va: fxRsrc, vsize: 0x110, data: make([]byte, 0x200), chars: rdata},
		{name: ".reloc", va: fxReloc, vsize: 0x40, data: make([]byte, 0x200), chars: rdata},
		{name: ".data", va: fxData, vsize: 0x1000, data: make([]byte, 0x200), chars: rwdata},
	}
	f.writeExports()
	f.writeImports()
	f.writeResources()
	f.writeRelocs()
	copy(f.section(".data").data, "DATA")
	return f
}

func (f *fixture) writeExports() {
	s := f.section(".edata")
	s.u32(fxEdata+12, 0x2100) // Name
	s.u32(fxEdata+16, 5)      // Base
	s.u32(fxEdata+20, 5)      // NumberOfFunctions
	s.u32(fxEdata+24, 3)      // NumberOfNames
	s.u32(fxEdata+28, 0x2040) // AddressOfFunctions
	s.u32(fxEdata+32, 0x2060) // AddressOfNames
	s.u32(fxEdata+36, 0x2070) // AddressOfNameOrdinals

	for i, rva := range []uint32{0x1010, 0x1020, 0, 0x1030, 0x2130} {
		s.u32(0x2040+uint32(i)*4, rva)
	}
	for i, rva := range []uint32{0x2110, 0x2118, 0x2120} {
		s.u32(0x2060+uint32(i)*4, rva)
	}
	for i, idx := range []uint16{0, 1, 4} {
		s.u16(0x2070+uint32(i)*2, idx)
	}
	s.cstr(0x2100, "test.dll")
	s.cstr(0x2110, "Alpha")
	s.cstr(0x2118, "Beta")
	s.cstr(0x2120, "Fwd")
	s.cstr(0x2130, "KERNEL32.Sleep")

	f.dirs[dpe.IMAGE_DIRECTORY_ENTRY_EXPORT] = DataDirectory{VirtualAddress: fxEdata, Size: 0x140}
}

func (f *fixture) writeImports() {
	s := f.section(".idata")
	// KERNEL32.dll: lookup table at 0x3100, address table at 0x3180
	s.u32(fxIdata+0, 0x3100)
	s.u32(fxIdata+12, 0x3040)
	s.u32(fxIdata+16, 0x3180)
	// USER32.dll: no lookup table
	s.u32(fxIdata+20+12, 0x3050)
	s.u32(fxIdata+20+16, 0x3200)

	s.cstr(0x3040, "KERNEL32.dll")
	s.cstr(0x3050, "USER32.dll")
	s.u16(0x3060, 1)
	s.cstr(0x3062, "Sleep")
	s.u16(0x3070, 7)
	s.cstr(0x3072, "MessageBoxA")

	for _, table := range []uint32{0x3100, 0x3180} {
		f.thunk(s, table, 0x3060)
		f.thunk(s, table+f.thunkSize(), f.ordinalFlag()|42)
	}
	f.thunk(s, 0x3200, 0x3070)

	// the size covers the two descriptors but not the terminator
	f.dirs[dpe.IMAGE_DIRECTORY_ENTRY_IMPORT] = DataDirectory{VirtualAddress: fxIdata, Size: 40}
}

func (f *fixture) writeResources() {
	s := f.section(".rsrc")
	const hi = 0x80000000
	// root: one ID entry, RT_RCDATA
	s.u16(fxRsrc+14, 1)
	s.u32(fxRsrc+0x10, 10)
	s.u32(fxRsrc+0x14, hi|0x18)
	// names: one named entry, "CONFIG"
	s.u16(fxRsrc+0x18+12, 1)
	s.u32(fxRsrc+0x28, hi|0x60)
	s.u32(fxRsrc+0x2c, hi|0x30)
	// languages: 1033 -> data entry
	s.u16(fxRsrc+0x30+14, 1)
	s.u32(fxRsrc+0x40, 1033)
	s.u32(fxRsrc+0x44, 0x48)
	// data entry, addressed by RVA
	s.u32(fxRsrc+0x48, fxRsrc+0x100)
	s.u32(fxRsrc+0x4c, 5)
	s.u32(fxRsrc+0x50, 1252)

	s.u16(fxRsrc+0x60, 6)
	for i, c := range "CONFIG" {
		s.u16(fxRsrc+0x62+uint32(i)*2, uint16(c))
	}
	s.put(fxRsrc+0x100, []byte("hello"))

	f.dirs[dpe.IMAGE_DIRECTORY_ENTRY_RESOURCE] = DataDirectory{VirtualAddress: fxRsrc, Size: 0x70}
}

func (f *fixture) writeRelocs() {
	s := f.section(".reloc")
	typ := f.relocType() << 12

	s.u32(fxReloc, fxText)
	s.u32(fxReloc+4, 8+3*2)
	s.u16(fxReloc+8, typ|0x010)
	s.u16(fxReloc+10, typ|0x020)
	s.u16(fxReloc+12, RelBasedAbsolute<<12)

	const second = fxReloc + 14
	s.u32(second, fxEdata)
	s.u32(second+4, 8+5*2)
	for i := range uint32(5) {
		s.u16(second+8+i*2, typ|uint16(0x40+i*8))
	}

	// looks like a third block but lies past the declared size
	s.u32(fxReloc+32, fxIdata)
	s.u32(fxReloc+36, 12)

	f.dirs[dpe.IMAGE_DIRECTORY_ENTRY_BASERELOC] = DataDirectory{VirtualAddress: fxReloc, Size: 32}
}

func openFixture32(t testing.TB, f *fixture) *View[OptionalHeader32] {
	t.Helper()
	v, err := Open[OptionalHeader32](f.build(t))
	require.NoError(t, err)
	return v
}

func openFixture64(t testing.TB, f *fixture) *View[OptionalHeader64] {
	t.Helper()
	v, err := Open[OptionalHeader64](f.build(t))
	require.NoError(t, err)
	return v
}
