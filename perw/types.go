package perw

import (
	dpe "debug/pe"
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

type (
	FileHeader    = dpe.FileHeader
	DataDirectory = dpe.DataDirectory
	SectionHeader = dpe.SectionHeader32
)

const (
	dosMagic    = 0x5A4D // "MZ"
	ntSignature = "PE\x00\x00"

	sizeofDosHeader        = 64
	sizeofNtSignature      = 4
	sizeofFileHeader       = 20
	sizeofSectionHeader    = 40
	sizeofImportDescriptor = 20
	sizeofBaseRelocation   = 8
	sizeofResourceDir      = 16
	sizeofResourceEntry    = 8
	sizeofResourceData     = 16

	numDirectoryEntries = 16
	offsetSizeOfImage   = 56 // same in PE32 and PE32+ optional headers
)

type DosHeader struct {
	Magic    uint16
	Cblp     uint16
	Cp       uint16
	Crlc     uint16
	Cparhdr  uint16
	MinAlloc uint16
	MaxAlloc uint16
	Ss       uint16
	Sp       uint16
	Csum     uint16
	Ip       uint16
	Cs       uint16
	Lfarlc   uint16
	Ovno     uint16
	Res      [4]uint16
	OemID    uint16
	OemInfo  uint16
	Res2     [10]uint16
	Lfanew   uint32
}

type ExportDirectory struct {
	Characteristics       uint32
	TimeDateStamp         uint32
	MajorVersion          uint16
	MinorVersion          uint16
	Name                  uint32
	Base                  uint32
	NumberOfFunctions     uint32
	NumberOfNames         uint32
	AddressOfFunctions    uint32
	AddressOfNames        uint32
	AddressOfNameOrdinals uint32
}

type ImportDescriptor struct {
	OriginalFirstThunk uint32
	TimeDateStamp      uint32
	ForwarderChain     uint32
	Name               uint32
	FirstThunk         uint32
}

type BaseRelocation struct {
	VirtualAddress uint32
	SizeOfBlock    uint32
}

type ResourceDirectoryHeader struct {
	Characteristics      uint32
	TimeDateStamp        uint32
	MajorVersion         uint16
	MinorVersion         uint16
	NumberOfNamedEntries uint16
	NumberOfIdEntries    uint16
}

type ResourceDirectoryEntry struct {
	Name         uint32
	OffsetToData uint32
}

type ResourceDataEntry struct {
	OffsetToData uint32
	Size         uint32
	CodePage     uint32
	Reserved     uint32
}

// Uint32Array is a little-endian array view over the byte source.
type Uint32Array []byte

func (a Uint32Array) Len() int { return len(a) / 4 }

func (a Uint32Array) At(i int) uint32 { return binary.LittleEndian.Uint32(a[i*4:]) }

// Uint16Array is a little-endian array view over the byte source.
type Uint16Array []byte

func (a Uint16Array) Len() int { return len(a) / 2 }

func (a Uint16Array) At(i int) uint16 { return binary.LittleEndian.Uint16(a[i*2:]) }

func decode[T any](b []byte) T {
	var v T
	_, _ = binary.Decode(b, binary.LittleEndian, &v)
	return v
}

func readStruct[T any](t Translator, rva uint32) (T, error) {
	var v T
	b, err := t.Slice(rva, uint32(binary.Size(&v)))
	if err != nil {
		return v, err
	}
	return decode[T](b), nil
}

func arraySize(count, elem uint32) (uint32, error) {
	n := uint64(count) * uint64(elem)
	if n > math.MaxUint32 {
		return 0, errors.Wrapf(ErrOutOfBounds, "array of %d elements", count)
	}
	return uint32(n), nil
}

func addRVA(rva, off uint32) (uint32, error) {
	sum := uint64(rva) + uint64(off)
	if sum > math.MaxUint32 {
		return 0, errors.Wrapf(ErrOutOfBounds, "rva %#x + %#x overflows", rva, off)
	}
	return uint32(sum), nil
}
