package perw

import (
	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
)

func alignUp[T constraints.Unsigned](v, align T) T {
	if align == 0 {
		return v
	}
	return (v + align - 1) / align * align
}

// LoadImage lays a disk view out the way the loader would: headers at 0 and
// each section's raw data at its virtual address, zero filled up to
// SizeOfImage. Nothing is relocated or bound. The returned view owns a fresh
// buffer; an image view is returned as is. The buffer is as large as the
// headers claim, up to 4 GiB, whatever the size of the file.
func LoadImage[H OptionalHeader](disk *View[H]) (*View[H], error) {
	if disk.Layout() == LayoutImage {
		return disk, nil
	}
	data := disk.Bytes()
	size := alignUp(uint64(disk.SizeOfImage()), uint64(disk.SectionAlignment()))
	if size < uint64(disk.SizeOfHeaders()) {
		return nil, errors.Wrapf(ErrOutOfBounds, "size of image %#x is smaller than the headers", size)
	}
	img := make([]byte, size)
	copy(img, data[:min(uint64(disk.SizeOfHeaders()), uint64(len(data)))])

	for i, s := range disk.Sections() {
		n := uint64(s.SizeOfRawData)
		if s.VirtualSize != 0 {
			n = min(n, uint64(s.VirtualSize))
		}
		if n == 0 {
			continue
		}
		start := uint64(s.PointerToRawData)
		if start+n > uint64(len(data)) {
			return nil, errors.Wrapf(ErrOutOfBounds, "section %d (%s) raw data [%#x, %#x) past file of %#x bytes",
				i, SectionName(s), start, start+n, len(data))
		}
		dst := uint64(s.VirtualAddress)
		if dst+n > size {
			return nil, errors.Wrapf(ErrOutOfBounds, "section %d (%s) at rva %#x does not fit an image of %#x bytes",
				i, SectionName(s), dst, size)
		}
		copy(img[dst:], data[start:start+n])
	}
	return OpenImage[H](img)
}
