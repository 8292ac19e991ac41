package perw

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	dpe "debug/pe"
	"fmt"

	"github.com/pkg/errors"
)

type SectionInfo struct {
	Index          int
	Name           string
	VirtualAddress uint32
	VirtualSize    uint32
	Offset         uint32
	Size           uint32
	Flags          uint32
	IsExecutable   bool
	IsReadable     bool
	IsWritable     bool
	Entropy        float64
	MD5Hash        string
	SHA1Hash       string
	SHA256Hash     string
}

// SectionData returns the bytes of section i as the source holds them: the
// raw data on disk, the virtual extent in an image.
func (v *View[H]) SectionData(i int) ([]byte, error) {
	if i < 0 || i >= v.NumSections() {
		return nil, errors.Wrapf(ErrOutOfRange, "section %d of %d", i, v.NumSections())
	}
	s := v.Section(i)
	size := s.SizeOfRawData
	if v.Layout() == LayoutImage && s.VirtualSize != 0 {
		size = s.VirtualSize
	}
	if size == 0 {
		return nil, nil
	}
	b, err := v.Slice(s.VirtualAddress, size)
	return b, errors.Wrapf(err, "section %d (%s)", i, SectionName(s))
}

// SectionInfos summarizes every section. A section whose data cannot be
// read still gets an entry, with the hashes marked N/A.
func (v *View[H]) SectionInfos() []SectionInfo {
	out := make([]SectionInfo, 0, v.NumSections())
	for i, s := range v.Sections() {
		info := SectionInfo{
			Index:          i,
			Name:           SectionName(s),
			VirtualAddress: s.VirtualAddress,
			VirtualSize:    s.VirtualSize,
			Offset:         s.PointerToRawData,
			Size:           s.SizeOfRawData,
			Flags:          s.Characteristics,
			IsExecutable:   s.Characteristics&dpe.IMAGE_SCN_MEM_EXECUTE != 0,
			IsReadable:     s.Characteristics&dpe.IMAGE_SCN_MEM_READ != 0,
			IsWritable:     s.Characteristics&dpe.IMAGE_SCN_MEM_WRITE != 0,
		}
		data, err := v.SectionData(i)
		if err != nil || len(data) == 0 {
			info.MD5Hash = "N/A (no raw data)"
			info.SHA1Hash = "N/A (no raw data)"
			info.SHA256Hash = "N/A (no raw data)"
		} else {
			info.MD5Hash = fmt.Sprintf("%x", md5.Sum(data))
			info.SHA1Hash = fmt.Sprintf("%x", sha1.Sum(data))
			info.SHA256Hash = fmt.Sprintf("%x", sha256.Sum256(data))
			info.Entropy = CalculateEntropy(data)
		}
		out = append(out, info)
	}
	return out
}

// PhysicalSize is where the data the headers account for ends in the file.
func (v *View[H]) PhysicalSize() uint64 {
	end := uint64(v.SizeOfHeaders())
	for _, s := range v.Sections() {
		if s.SizeOfRawData > 0 {
			end = max(end, uint64(s.PointerToRawData)+uint64(s.SizeOfRawData))
		}
	}
	return end
}

// Overlay returns the bytes appended after the last section's raw data.
// Only files have one.
func (v *View[H]) Overlay() ([]byte, error) {
	if v.Layout() != LayoutDisk {
		return nil, errors.Wrap(ErrNotPresent, "overlay of an image layout view")
	}
	end := v.PhysicalSize()
	if end >= uint64(len(v.src.data)) {
		return nil, errors.Wrap(ErrNotPresent, "overlay")
	}
	return v.src.data[end:], nil
}
