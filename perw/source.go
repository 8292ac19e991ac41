package perw

import "fmt"

// Layout tells how offsets in a Source relate to RVAs.
type Layout int

const (
	// LayoutDisk is a file's raw bytes: sections sit at their
	// PointerToRawData and must be located through the section table.
	LayoutDisk Layout = iota
	// LayoutImage is a loader-mapped image: offset equals RVA.
	LayoutImage
)

func (l Layout) String() string {
	switch l {
	case LayoutDisk:
		return "disk"
	case LayoutImage:
		return "image"
	default:
		return fmt.Sprintf("Layout(%d)", int(l))
	}
}

// Source is a borrowed, read-only byte range. The engine never copies,
// grows or shrinks it; everything derived from a view aliases it and is
// invalid once the owner releases the bytes (for example File.Close).
type Source struct {
	data   []byte
	layout Layout
}

func NewSource(data []byte, layout Layout) Source {
	return Source{data: data, layout: layout}
}

func (s Source) Bytes() []byte { return s.data }

func (s Source) Layout() Layout { return s.layout }

func (s Source) Len() int { return len(s.data) }
