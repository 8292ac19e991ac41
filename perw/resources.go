package perw

import (
	dpe "debug/pe"
	"fmt"
	"iter"
	"slices"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding/unicode"
)

const (
	resourceHighBit = 0x80000000
	resourceMask    = 0x7fffffff
)

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// Resources is the resource tree. Offsets inside the tree are relative to
// the directory RVA and must stay within the directory's declared size;
// leaf data is addressed by RVA.
type Resources struct {
	t   Translator
	dir DataDirectory
}

func (v *View[H]) Resources() (*Resources, error) {
	dir, err := v.directory(dpe.IMAGE_DIRECTORY_ENTRY_RESOURCE)
	if err != nil {
		return nil, err
	}
	return &Resources{t: v, dir: dir}, nil
}

func (r *Resources) Directory() DataDirectory { return r.dir }

func (r *Resources) Root() (ResourceDirectory, error) {
	return r.directoryAt(0, nil)
}

func (r *Resources) slice(off, size uint32) ([]byte, error) {
	if uint64(off)+uint64(size) > uint64(r.dir.Size) {
		return nil, errors.Wrapf(ErrOutOfBounds, "resource offset %#x size %#x, directory size %#x", off, size, r.dir.Size)
	}
	return r.t.Slice(r.dir.VirtualAddress+off, size)
}

func (r *Resources) directoryAt(off uint32, ancestors []uint32) (ResourceDirectory, error) {
	b, err := r.slice(off, sizeofResourceDir)
	if err != nil {
		return ResourceDirectory{}, errors.Wrapf(err, "resource directory at %#x", off)
	}
	hdr := decode[ResourceDirectoryHeader](b)
	n := uint32(hdr.NumberOfNamedEntries) + uint32(hdr.NumberOfIdEntries)
	entries, err := r.slice(off+sizeofResourceDir, n*sizeofResourceEntry)
	if err != nil {
		return ResourceDirectory{}, errors.Wrapf(err, "entries of resource directory at %#x", off)
	}
	return ResourceDirectory{res: r, offset: off, hdr: hdr, entries: entries, ancestors: ancestors}, nil
}

// Lookup follows path from the root, one Find per level.
func (r *Resources) Lookup(path ...string) (ResourceEntry, error) {
	dir, err := r.Root()
	if err != nil {
		return ResourceEntry{}, err
	}
	var e ResourceEntry
	for i, name := range path {
		if i > 0 {
			if dir, err = e.Dir(); err != nil {
				return ResourceEntry{}, errors.Wrapf(err, "resource %s", strings.Join(path[:i], "/"))
			}
		}
		if e, err = dir.Find(name); err != nil {
			return ResourceEntry{}, err
		}
	}
	return e, nil
}

type walkFrame struct {
	dir  ResourceDirectory
	path []ResourceName
	next int
}

// Walk calls fn for every data leaf, depth first in table order. It keeps
// its own stack, so a deep or cyclic tree cannot exhaust the goroutine
// stack; a cycle is reported as ErrResourceCycle. A directory shared by
// several entries is descended into once, under the first path that
// reaches it, so the walk stays linear in the size of the tree.
func (r *Resources) Walk(fn func(path []ResourceName, data ResourceData) error) error {
	root, err := r.Root()
	if err != nil {
		return err
	}
	visited := map[uint32]struct{}{root.offset: {}}
	stack := []walkFrame{{dir: root}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next >= top.dir.Len() {
			stack = stack[:len(stack)-1]
			continue
		}
		e := top.dir.Entry(top.next)
		top.next++
		name, err := e.Name()
		if err != nil {
			return err
		}
		path := append(slices.Clip(top.path), name)
		if e.IsDir() {
			child, err := e.Dir()
			if err != nil {
				return err
			}
			if _, seen := visited[child.offset]; seen {
				continue
			}
			visited[child.offset] = struct{}{}
			stack = append(stack, walkFrame{dir: child, path: path})
			continue
		}
		data, err := e.Data()
		if err != nil {
			return err
		}
		if err := fn(path, data); err != nil {
			return err
		}
	}
	return nil
}

type ResourceDirectory struct {
	res       *Resources
	offset    uint32
	hdr       ResourceDirectoryHeader
	entries   []byte
	ancestors []uint32
}

func (d ResourceDirectory) Header() ResourceDirectoryHeader { return d.hdr }

// Offset is relative to the start of the resource directory.
func (d ResourceDirectory) Offset() uint32 { return d.offset }

// Depth is 0 for the root, 1 for type directories, and so on.
func (d ResourceDirectory) Depth() int { return len(d.ancestors) }

func (d ResourceDirectory) Len() int { return len(d.entries) / sizeofResourceEntry }

// Entry returns the i-th entry; named entries come before ID entries.
func (d ResourceDirectory) Entry(i int) ResourceEntry {
	return ResourceEntry{dir: d, raw: decode[ResourceDirectoryEntry](d.entries[i*sizeofResourceEntry:])}
}

func (d ResourceDirectory) Entries() iter.Seq2[int, ResourceEntry] {
	return func(yield func(int, ResourceEntry) bool) {
		for i := range d.Len() {
			if !yield(i, d.Entry(i)) {
				return
			}
		}
	}
}

// Find matches "#N" against ID entries and anything else, ignoring case,
// against named entries.
func (d ResourceDirectory) Find(name string) (ResourceEntry, error) {
	want, err := ParseResourceName(name)
	if err != nil {
		return ResourceEntry{}, err
	}
	for _, e := range d.Entries() {
		got, err := e.Name()
		if err != nil {
			return ResourceEntry{}, err
		}
		if got.Named == want.Named && got.ID == want.ID && strings.EqualFold(got.Str, want.Str) {
			return e, nil
		}
	}
	return ResourceEntry{}, errors.Wrapf(ErrNotFound, "resource %s", want)
}

type ResourceEntry struct {
	dir ResourceDirectory
	raw ResourceDirectoryEntry
}

func (e ResourceEntry) Raw() ResourceDirectoryEntry { return e.raw }

func (e ResourceEntry) IsDir() bool { return e.raw.OffsetToData&resourceHighBit != 0 }

func (e ResourceEntry) Name() (ResourceName, error) {
	if e.raw.Name&resourceHighBit == 0 {
		return ResourceName{ID: uint16(e.raw.Name)}, nil
	}
	off := e.raw.Name & resourceMask
	lb, err := e.dir.res.slice(off, 2)
	if err != nil {
		return ResourceName{}, errors.Wrap(err, "resource name length")
	}
	n := uint32(Uint16Array(lb).At(0))
	b, err := e.dir.res.slice(off+2, n*2)
	if err != nil {
		return ResourceName{}, errors.Wrap(err, "resource name")
	}
	s, err := utf16le.NewDecoder().Bytes(b)
	if err != nil {
		return ResourceName{}, errors.Wrap(err, "resource name")
	}
	return ResourceName{Named: true, Str: string(s)}, nil
}

// Dir descends into a subdirectory. An entry that points back at the
// directory holding it, or at any directory above that, is ErrResourceCycle.
func (e ResourceEntry) Dir() (ResourceDirectory, error) {
	if !e.IsDir() {
		return ResourceDirectory{}, errors.Wrap(ErrNotFound, "resource entry is a data leaf")
	}
	off := e.raw.OffsetToData & resourceMask
	if off == e.dir.offset || slices.Contains(e.dir.ancestors, off) {
		return ResourceDirectory{}, errors.Wrapf(ErrResourceCycle, "directory at %#x", off)
	}
	ancestors := append(slices.Clip(e.dir.ancestors), e.dir.offset)
	return e.dir.res.directoryAt(off, ancestors)
}

func (e ResourceEntry) Data() (ResourceData, error) {
	if e.IsDir() {
		return ResourceData{}, errors.Wrap(ErrNotFound, "resource entry is a directory")
	}
	b, err := e.dir.res.slice(e.raw.OffsetToData, sizeofResourceData)
	if err != nil {
		return ResourceData{}, errors.Wrap(err, "resource data entry")
	}
	return ResourceData{t: e.dir.res.t, entry: decode[ResourceDataEntry](b)}, nil
}

// ResourceName is either a numeric ID or a string.
type ResourceName struct {
	Named bool
	ID    uint16
	Str   string
}

// ParseResourceName is the inverse of String: "#N" is an ID.
func ParseResourceName(s string) (ResourceName, error) {
	if rest, ok := strings.CutPrefix(s, "#"); ok {
		id, err := strconv.ParseUint(rest, 10, 16)
		if err != nil {
			return ResourceName{}, errors.Wrapf(err, "resource id %q", s)
		}
		return ResourceName{ID: uint16(id)}, nil
	}
	return ResourceName{Named: true, Str: s}, nil
}

func (n ResourceName) String() string {
	if n.Named {
		return n.Str
	}
	return "#" + strconv.Itoa(int(n.ID))
}

// ResourceData is a leaf. Its OffsetToData is an RVA, not a tree offset.
type ResourceData struct {
	t     Translator
	entry ResourceDataEntry
}

func (d ResourceData) Entry() ResourceDataEntry { return d.entry }

func (d ResourceData) RVA() uint32 { return d.entry.OffsetToData }

func (d ResourceData) Size() uint32 { return d.entry.Size }

func (d ResourceData) CodePage() uint32 { return d.entry.CodePage }

func (d ResourceData) Bytes() ([]byte, error) {
	b, err := d.t.Slice(d.entry.OffsetToData, d.entry.Size)
	return b, errors.Wrap(err, "resource data")
}

var resourceTypeNames = map[uint16]string{
	1:  "CURSOR",
	2:  "BITMAP",
	3:  "ICON",
	4:  "MENU",
	5:  "DIALOG",
	6:  "STRING",
	7:  "FONTDIR",
	8:  "FONT",
	9:  "ACCELERATOR",
	10: "RCDATA",
	11: "MESSAGETABLE",
	12: "GROUP_CURSOR",
	14: "GROUP_ICON",
	16: "VERSION",
	17: "DLGINCLUDE",
	19: "PLUGPLAY",
	20: "VXD",
	21: "ANICURSOR",
	22: "ANIICON",
	23: "HTML",
	24: "MANIFEST",
}

// TypeName names a standard top-level resource type (RT_*).
func TypeName(id uint16) string {
	if s, ok := resourceTypeNames[id]; ok {
		return s
	}
	return fmt.Sprintf("#%d", id)
}
