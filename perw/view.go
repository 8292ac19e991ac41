// Package perw navigates PE32 and PE32+ images, either as the raw bytes of
// a file or as an image already mapped by a loader.
//
// A View is constructed once over a byte source; construction validates
// the DOS header, NT headers and section table. Every accessor afterwards
// goes through View.Slice, which translates an RVA into a bounds-checked
// slice of the source. Nothing is copied: slices, arrays and iterators
// returned by the accessors alias the source bytes.
package perw

import (
	dpe "debug/pe"
	"encoding/binary"
	"fmt"
	"iter"
	"strings"

	"github.com/pkg/errors"
)

// View is a validated, read-only view over a PE image of width H.
type View[H OptionalHeader] struct {
	src      Source
	dos      DosHeader
	ntOffset uint32
	file     FileHeader
	opt      H
	fields   optionalFields
	sections []byte
}

// Open validates data as the raw contents of a PE file (disk layout).
func Open[H OptionalHeader](data []byte) (*View[H], error) {
	return NewView[H](NewSource(data, LayoutDisk))
}

// OpenImage validates data as a loader-mapped image (image layout).
func OpenImage[H OptionalHeader](data []byte) (*View[H], error) {
	return NewView[H](NewSource(data, LayoutImage))
}

func NewView[H OptionalHeader](src Source) (*View[H], error) {
	data := src.data
	if len(data) < sizeofDosHeader {
		return nil, errors.Wrapf(ErrOutOfBounds, "dos header needs %d bytes, source has %d", sizeofDosHeader, len(data))
	}
	dos := decode[DosHeader](data)
	if dos.Magic != dosMagic {
		return nil, errors.Wrapf(ErrBadMagic, "dos signature %#04x", dos.Magic)
	}

	var opt H
	ntEnd := uint64(dos.Lfanew) + sizeofNtSignature + sizeofFileHeader + uint64(opt.size())
	if ntEnd > uint64(len(data)) {
		return nil, errors.Wrapf(ErrOutOfBounds, "nt headers at %#x end at %#x, source has %#x bytes", dos.Lfanew, ntEnd, len(data))
	}
	nt := data[dos.Lfanew:ntEnd]
	if string(nt[:sizeofNtSignature]) != ntSignature {
		return nil, errors.Wrapf(ErrBadMagic, "nt signature %q", nt[:sizeofNtSignature])
	}

	file := decode[FileHeader](nt[sizeofNtSignature:])
	if !opt.acceptsMachine(file.Machine) {
		return nil, errors.Wrapf(ErrBadWidth, "machine %s", machineName(file.Machine))
	}
	optBytes := nt[sizeofNtSignature+sizeofFileHeader:]
	if magic := binary.LittleEndian.Uint16(optBytes); magic != opt.wantMagic() {
		return nil, errors.Wrapf(ErrBadWidth, "optional header magic %#x, want %#x", magic, opt.wantMagic())
	}
	opt = decode[H](optBytes)

	secStart := uint64(dos.Lfanew) + sizeofNtSignature + sizeofFileHeader + uint64(file.SizeOfOptionalHeader)
	secEnd := secStart + uint64(file.NumberOfSections)*sizeofSectionHeader
	if secEnd > uint64(len(data)) {
		return nil, errors.Wrapf(ErrOutOfBounds, "section table [%#x, %#x) past source of %#x bytes", secStart, secEnd, len(data))
	}

	return &View[H]{
		src:      src,
		dos:      dos,
		ntOffset: dos.Lfanew,
		file:     file,
		opt:      opt,
		fields:   opt.fields(),
		sections: data[secStart:secEnd:secEnd],
	}, nil
}

// DetectWidth peeks at the optional header magic so that a caller can pick
// the right family before constructing a view.
func DetectWidth(data []byte) (is64 bool, err error) {
	if len(data) < sizeofDosHeader {
		return false, errors.Wrap(ErrOutOfBounds, "dos header")
	}
	if binary.LittleEndian.Uint16(data) != dosMagic {
		return false, errors.Wrap(ErrBadMagic, "dos signature")
	}
	off := uint64(binary.LittleEndian.Uint32(data[0x3c:])) + sizeofNtSignature + sizeofFileHeader
	if off+2 > uint64(len(data)) {
		return false, errors.Wrap(ErrOutOfBounds, "optional header magic")
	}
	switch magic := binary.LittleEndian.Uint16(data[off:]); magic {
	case OptionalHeader32{}.wantMagic():
		return false, nil
	case OptionalHeader64{}.wantMagic():
		return true, nil
	default:
		return false, errors.Wrapf(ErrBadMagic, "optional header magic %#x", magic)
	}
}

func (v *View[H]) Source() Source { return v.src }

func (v *View[H]) Layout() Layout { return v.src.layout }

func (v *View[H]) Bytes() []byte { return v.src.data }

func (v *View[H]) DosHeader() DosHeader { return v.dos }

func (v *View[H]) FileHeader() FileHeader { return v.file }

func (v *View[H]) OptionalHeader() H { return v.opt }

// NtHeadersOffset is e_lfanew.
func (v *View[H]) NtHeadersOffset() uint32 { return v.ntOffset }

func (v *View[H]) Is64() bool { return v.opt.thunkSize() == 8 }

func (v *View[H]) ImageBase() uint64 { return v.fields.ImageBase }

func (v *View[H]) EntryPoint() uint32 { return v.fields.AddressOfEntryPoint }

func (v *View[H]) SizeOfImage() uint32 { return v.fields.SizeOfImage }

func (v *View[H]) SizeOfHeaders() uint32 { return v.fields.SizeOfHeaders }

func (v *View[H]) SectionAlignment() uint32 { return v.fields.SectionAlignment }

func (v *View[H]) FileAlignment() uint32 { return v.fields.FileAlignment }

func (v *View[H]) CheckSum() uint32 { return v.fields.CheckSum }

func (v *View[H]) Subsystem() uint16 { return v.fields.Subsystem }

func (v *View[H]) DllCharacteristics() uint16 { return v.fields.DllCharacteristics }

func (v *View[H]) Machine() string { return machineName(v.file.Machine) }

func (v *View[H]) IsDLL() bool { return v.file.Characteristics&dpe.IMAGE_FILE_DLL != 0 }

// DataDirectories returns the directories the optional header declares,
// at most 16.
func (v *View[H]) DataDirectories() []DataDirectory {
	n := min(v.fields.NumberOfRvaAndSizes, numDirectoryEntries)
	return v.fields.DataDirectory[:n]
}

func (v *View[H]) DataDirectory(index int) (DataDirectory, error) {
	dirs := v.DataDirectories()
	if index < 0 || index >= len(dirs) {
		return DataDirectory{}, errors.Wrapf(ErrOutOfRange, "data directory %d of %d", index, len(dirs))
	}
	return dirs[index], nil
}

// directory is DataDirectory with an empty entry reported as ErrNotPresent.
func (v *View[H]) directory(index int) (DataDirectory, error) {
	dir, err := v.DataDirectory(index)
	if err != nil {
		return dir, errors.Wrap(ErrNotPresent, err.Error())
	}
	if dir.VirtualAddress == 0 {
		return dir, errors.Wrapf(ErrNotPresent, "%s directory", DirectoryName(index))
	}
	return dir, nil
}

func (v *View[H]) NumSections() int { return len(v.sections) / sizeofSectionHeader }

func (v *View[H]) Section(i int) SectionHeader {
	return decode[SectionHeader](v.sections[i*sizeofSectionHeader:])
}

// Sections yields the section table in file order.
func (v *View[H]) Sections() iter.Seq2[int, SectionHeader] {
	return func(yield func(int, SectionHeader) bool) {
		for i := range v.NumSections() {
			if !yield(i, v.Section(i)) {
				return
			}
		}
	}
}

func (v *View[H]) SectionByName(name string) (SectionHeader, error) {
	for _, s := range v.Sections() {
		if strings.EqualFold(SectionName(s), name) {
			return s, nil
		}
	}
	return SectionHeader{}, errors.Wrapf(ErrNotFound, "section %q", name)
}

// SectionByRVA returns the section whose virtual range contains rva.
func (v *View[H]) SectionByRVA(rva uint32) (SectionHeader, error) {
	if s, ok := v.containing(rva); ok {
		return s, nil
	}
	return SectionHeader{}, errors.Wrapf(ErrRvaNotMapped, "rva %#x", rva)
}

// SectionName trims the NUL padding of a section name.
func SectionName(s SectionHeader) string {
	return strings.TrimRight(string(s.Name[:]), "\x00")
}

func machineName(machine uint16) string {
	switch machine {
	case dpe.IMAGE_FILE_MACHINE_I386:
		return "i386"
	case dpe.IMAGE_FILE_MACHINE_AMD64:
		return "amd64"
	case dpe.IMAGE_FILE_MACHINE_ARM, dpe.IMAGE_FILE_MACHINE_ARMNT, dpe.IMAGE_FILE_MACHINE_THUMB:
		return "arm"
	case dpe.IMAGE_FILE_MACHINE_ARM64:
		return "arm64"
	case dpe.IMAGE_FILE_MACHINE_IA64:
		return "ia64"
	default:
		return fmt.Sprintf("unknown(%#x)", machine)
	}
}

var directoryNames = [numDirectoryEntries]string{
	"export", "import", "resource", "exception", "security", "basereloc",
	"debug", "architecture", "globalptr", "tls", "load config",
	"bound import", "iat", "delay import", "com descriptor", "reserved",
}

func DirectoryName(index int) string {
	if index < 0 || index >= len(directoryNames) {
		return fmt.Sprintf("directory %d", index)
	}
	return directoryNames[index]
}
