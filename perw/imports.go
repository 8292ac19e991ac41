package perw

import (
	dpe "debug/pe"
	"encoding/binary"
	"fmt"
	"iter"
	"strings"

	"github.com/pkg/errors"
)

// Thunk is one decoded entry of an import lookup table.
type Thunk struct {
	ByOrdinal bool
	Ordinal   uint16
	Hint      uint16
	Name      string
}

func (t Thunk) String() string {
	if t.ByOrdinal {
		return fmt.Sprintf("#%d", t.Ordinal)
	}
	return t.Name
}

type Imports[H OptionalHeader] struct {
	v   *View[H]
	dir DataDirectory
}

func (v *View[H]) Imports() (*Imports[H], error) {
	dir, err := v.directory(dpe.IMAGE_DIRECTORY_ENTRY_IMPORT)
	if err != nil {
		return nil, err
	}
	return &Imports[H]{v: v, dir: dir}, nil
}

func (im *Imports[H]) Directory() DataDirectory { return im.dir }

// Modules walks the descriptor array up to the all-zero terminator. The
// directory size is not trusted for the count.
func (im *Imports[H]) Modules() iter.Seq2[ImportModule[H], error] {
	return func(yield func(ImportModule[H], error) bool) {
		rva := im.dir.VirtualAddress
		for {
			desc, err := readStruct[ImportDescriptor](im.v, rva)
			if err != nil {
				yield(ImportModule[H]{}, errors.Wrapf(err, "import descriptor at %#x", rva))
				return
			}
			if desc == (ImportDescriptor{}) {
				return
			}
			if !yield(ImportModule[H]{v: im.v, desc: desc}, nil) {
				return
			}
			if rva, err = addRVA(rva, sizeofImportDescriptor); err != nil {
				yield(ImportModule[H]{}, err)
				return
			}
		}
	}
}

// Find locates symbol (a name, or "#N" for an ordinal) in the module named
// dll and returns the RVA of its import address table slot. Module names
// compare case-insensitively.
func (im *Imports[H]) Find(dll, symbol string) (uint32, error) {
	for mod, err := range im.Modules() {
		if err != nil {
			return 0, err
		}
		name, err := mod.Name()
		if err != nil {
			return 0, err
		}
		if !strings.EqualFold(name, dll) {
			continue
		}
		i := 0
		for th, err := range mod.Thunks() {
			if err != nil {
				return 0, err
			}
			if th.String() == symbol {
				return mod.SlotRVA(i)
			}
			i++
		}
		return 0, errors.Wrapf(ErrNotFound, "%s!%s", dll, symbol)
	}
	return 0, errors.Wrapf(ErrNotFound, "import module %q", dll)
}

type ImportModule[H OptionalHeader] struct {
	v    *View[H]
	desc ImportDescriptor
}

func (m ImportModule[H]) Descriptor() ImportDescriptor { return m.desc }

func (m ImportModule[H]) Name() (string, error) {
	b, err := cstring(m.v, m.desc.Name)
	if err != nil {
		return "", errors.Wrap(err, "import module name")
	}
	return string(b), nil
}

// Thunks decodes the lookup table, falling back to the address table for
// binaries linked without one. On a bound image the address table holds
// resolved addresses, so the fallback only makes sense before binding.
func (m ImportModule[H]) Thunks() iter.Seq2[Thunk, error] {
	table := m.desc.OriginalFirstThunk
	if table == 0 {
		table = m.desc.FirstThunk
	}
	return func(yield func(Thunk, error) bool) {
		for raw, err := range m.entries(table) {
			if err != nil {
				yield(Thunk{}, err)
				return
			}
			th, err := m.decode(raw)
			if !yield(th, err) || err != nil {
				return
			}
		}
	}
}

// Addresses yields the raw values of the import address table.
func (m ImportModule[H]) Addresses() iter.Seq2[uint64, error] {
	return m.entries(m.desc.FirstThunk)
}

// SlotRVA is the RVA of the i-th import address table entry.
func (m ImportModule[H]) SlotRVA(i int) (uint32, error) {
	var h H
	off, err := arraySize(uint32(i), h.thunkSize())
	if err != nil {
		return 0, err
	}
	return addRVA(m.desc.FirstThunk, off)
}

// entries yields the non-zero thunk values of the table at start. Each
// range over the result starts again from start.
func (m ImportModule[H]) entries(start uint32) iter.Seq2[uint64, error] {
	var h H
	size := h.thunkSize()
	return func(yield func(uint64, error) bool) {
		rva := start
		for {
			b, err := m.v.Slice(rva, size)
			if err != nil {
				yield(0, errors.Wrapf(err, "thunk at %#x", rva))
				return
			}
			var raw uint64
			if size == 8 {
				raw = binary.LittleEndian.Uint64(b)
			} else {
				raw = uint64(binary.LittleEndian.Uint32(b))
			}
			if raw == 0 {
				return
			}
			if !yield(raw, nil) {
				return
			}
			if rva, err = addRVA(rva, size); err != nil {
				yield(0, err)
				return
			}
		}
	}
}

func (m ImportModule[H]) decode(raw uint64) (Thunk, error) {
	var h H
	if raw&h.ordinalFlag() != 0 {
		return Thunk{ByOrdinal: true, Ordinal: uint16(raw)}, nil
	}
	// hint/name entry: u16 hint followed by the NUL terminated name
	rva := uint32(raw)
	hint, err := m.v.ReadU16(rva)
	if err != nil {
		return Thunk{}, errors.Wrapf(err, "import hint at %#x", rva)
	}
	name, err := cstring(m.v, rva+2)
	if err != nil {
		return Thunk{}, errors.Wrapf(err, "import name at %#x", rva+2)
	}
	return Thunk{Hint: hint, Name: string(name)}, nil
}
