package perw

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// Translator is what the accessors need from a view: RVA in, bounded bytes
// out. Both width families implement it.
type Translator interface {
	Slice(rva, size uint32) ([]byte, error)
	Tail(rva uint32) ([]byte, error)
}

var (
	_ Translator = (*View[OptionalHeader32])(nil)
	_ Translator = (*View[OptionalHeader64])(nil)
)

// region maps rva to an offset in the source and the end of the readable
// range that offset belongs to. It is the only place RVAs become offsets.
func (v *View[H]) region(rva uint32) (off, end uint64, err error) {
	n := uint64(len(v.src.data))
	if v.src.layout == LayoutImage {
		if uint64(rva) >= n {
			return 0, 0, errors.Wrapf(ErrRvaNotMapped, "rva %#x past image of %#x bytes", rva, n)
		}
		return uint64(rva), n, nil
	}

	s, ok := v.containing(rva)
	if !ok {
		if rva < v.fields.SizeOfHeaders && uint64(rva) < n {
			return uint64(rva), min(uint64(v.fields.SizeOfHeaders), n), nil
		}
		return 0, 0, errors.Wrapf(ErrRvaNotMapped, "rva %#x is outside every section", rva)
	}
	rawStart := uint64(s.PointerToRawData)
	end = min(rawStart+uint64(s.SizeOfRawData), n)
	off = rawStart + uint64(rva-s.VirtualAddress)
	if off >= end {
		return 0, 0, errors.Wrapf(ErrOutOfBounds, "rva %#x lies past the raw data of section %q", rva, SectionName(s))
	}
	return off, end, nil
}

// containing finds the section whose virtual range holds rva. When ranges
// overlap the one with the highest virtual address wins, so the result does
// not depend on section table order.
func (v *View[H]) containing(rva uint32) (SectionHeader, bool) {
	var best SectionHeader
	found := false
	for _, s := range v.Sections() {
		size := s.VirtualSize
		if size == 0 {
			size = s.SizeOfRawData
		}
		if rva < s.VirtualAddress || uint64(rva) >= uint64(s.VirtualAddress)+uint64(size) {
			continue
		}
		if !found || s.VirtualAddress > best.VirtualAddress {
			best, found = s, true
		}
	}
	return best, found
}

// Slice returns the size bytes at rva. The range is never truncated: if it
// does not fit in the source (or, on disk, in the section's raw data) the
// call fails.
func (v *View[H]) Slice(rva, size uint32) ([]byte, error) {
	off, end, err := v.region(rva)
	if err != nil {
		return nil, err
	}
	stop := off + uint64(size)
	if stop > end {
		return nil, errors.Wrapf(ErrOutOfBounds, "rva %#x size %#x", rva, size)
	}
	return v.src.data[off:stop:stop], nil
}

// Tail returns everything readable from rva up to the end of its region.
func (v *View[H]) Tail(rva uint32) ([]byte, error) {
	off, end, err := v.region(rva)
	if err != nil {
		return nil, err
	}
	return v.src.data[off:end:end], nil
}

func (v *View[H]) ReadU16(rva uint32) (uint16, error) {
	b, err := v.Slice(rva, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (v *View[H]) ReadU32(rva uint32) (uint32, error) {
	b, err := v.Slice(rva, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (v *View[H]) ReadU64(rva uint32) (uint64, error) {
	b, err := v.Slice(rva, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadCString reads a NUL terminated string. The terminator has to be inside
// the region rva translates to.
func (v *View[H]) ReadCString(rva uint32) (string, error) {
	b, err := cstring(v, rva)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func cstring(t Translator, rva uint32) ([]byte, error) {
	tail, err := t.Tail(rva)
	if err != nil {
		return nil, err
	}
	i := bytes.IndexByte(tail, 0)
	if i < 0 {
		return nil, errors.Wrapf(ErrOutOfBounds, "unterminated string at rva %#x", rva)
	}
	return tail[:i:i], nil
}

// RvaToFileOffset converts through the section table regardless of layout.
func (v *View[H]) RvaToFileOffset(rva uint32) (uint32, error) {
	if s, ok := v.containing(rva); ok {
		delta := rva - s.VirtualAddress
		if delta >= s.SizeOfRawData {
			return 0, errors.Wrapf(ErrOutOfBounds, "rva %#x has no file backing in section %q", rva, SectionName(s))
		}
		return s.PointerToRawData + delta, nil
	}
	if rva < v.fields.SizeOfHeaders {
		return rva, nil
	}
	return 0, errors.Wrapf(ErrRvaNotMapped, "rva %#x", rva)
}

func (v *View[H]) FileOffsetToRva(offset uint32) (uint32, error) {
	for _, s := range v.Sections() {
		if s.SizeOfRawData == 0 || offset < s.PointerToRawData {
			continue
		}
		if uint64(offset) < uint64(s.PointerToRawData)+uint64(s.SizeOfRawData) {
			return s.VirtualAddress + (offset - s.PointerToRawData), nil
		}
	}
	if offset < v.fields.SizeOfHeaders {
		return offset, nil
	}
	return 0, errors.Wrapf(ErrRvaNotMapped, "file offset %#x is outside every section", offset)
}

// RvaToVa does not check that rva lies inside the image.
func (v *View[H]) RvaToVa(rva uint32) uint64 {
	return v.fields.ImageBase + uint64(rva)
}

func (v *View[H]) VaToRva(va uint64) (uint32, error) {
	if va < v.fields.ImageBase || va-v.fields.ImageBase > math.MaxUint32 {
		return 0, errors.Wrapf(ErrOutOfRange, "va %#x with image base %#x", va, v.fields.ImageBase)
	}
	return uint32(va - v.fields.ImageBase), nil
}
