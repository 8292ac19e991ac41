package perw

import (
	"bytes"
	dpe "debug/pe"
	"iter"
	"math"

	"github.com/pkg/errors"
)

// Export is one entry of the export address table.
type Export struct {
	Ordinal uint16
	RVA     uint32
	// Name is empty for exports that only have an ordinal.
	Name string
	// Forward is "DLL.Symbol" when the export is forwarded to another
	// module, in which case RVA points at that string.
	Forward string
}

func (x Export) Named() bool { return x.Name != "" }

func (x Export) IsForward() bool { return x.Forward != "" }

type Exports struct {
	t   Translator
	dir DataDirectory
	hdr ExportDirectory
}

func (v *View[H]) Exports() (*Exports, error) {
	dir, err := v.directory(dpe.IMAGE_DIRECTORY_ENTRY_EXPORT)
	if err != nil {
		return nil, err
	}
	hdr, err := readStruct[ExportDirectory](v, dir.VirtualAddress)
	if err != nil {
		return nil, errors.Wrap(err, "export directory")
	}
	return &Exports{t: v, dir: dir, hdr: hdr}, nil
}

func (e *Exports) Header() ExportDirectory { return e.hdr }

func (e *Exports) Directory() DataDirectory { return e.dir }

func (e *Exports) Base() uint32 { return e.hdr.Base }

// DllName is the module name recorded by the linker.
func (e *Exports) DllName() (string, error) {
	b, err := cstring(e.t, e.hdr.Name)
	if err != nil {
		return "", errors.Wrap(err, "export dll name")
	}
	return string(b), nil
}

func (e *Exports) Functions() (Uint32Array, error) {
	size, err := arraySize(e.hdr.NumberOfFunctions, 4)
	if err != nil {
		return nil, err
	}
	b, err := e.t.Slice(e.hdr.AddressOfFunctions, size)
	return Uint32Array(b), errors.Wrap(err, "export address table")
}

func (e *Exports) Names() (Uint32Array, error) {
	size, err := arraySize(e.hdr.NumberOfNames, 4)
	if err != nil {
		return nil, err
	}
	b, err := e.t.Slice(e.hdr.AddressOfNames, size)
	return Uint32Array(b), errors.Wrap(err, "export name table")
}

// NameOrdinals holds, for each entry of Names, an index into Functions
// (not an ordinal, despite the name).
func (e *Exports) NameOrdinals() (Uint16Array, error) {
	size, err := arraySize(e.hdr.NumberOfNames, 2)
	if err != nil {
		return nil, err
	}
	b, err := e.t.Slice(e.hdr.AddressOfNameOrdinals, size)
	return Uint16Array(b), errors.Wrap(err, "export name ordinal table")
}

// ByName binary searches the name table, which the format requires to be
// sorted. An unsorted table can make a present name come back ErrNotFound.
func (e *Exports) ByName(name string) (Export, error) {
	names, err := e.Names()
	if err != nil {
		return Export{}, err
	}
	ords, err := e.NameOrdinals()
	if err != nil {
		return Export{}, err
	}
	target := []byte(name)
	lo, hi := 0, names.Len()
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		s, err := cstring(e.t, names.At(mid))
		if err != nil {
			return Export{}, errors.Wrapf(err, "export name %d", mid)
		}
		switch c := bytes.Compare(s, target); {
		case c < 0:
			lo = mid + 1
		case c > 0:
			hi = mid
		default:
			idx := uint32(ords.At(mid))
			fns, err := e.Functions()
			if err != nil {
				return Export{}, err
			}
			if int(idx) >= fns.Len() {
				return Export{}, errors.Wrapf(ErrOutOfRange, "export %q points at function %d of %d", name, idx, fns.Len())
			}
			x, err := e.export(idx, fns.At(int(idx)))
			if err != nil {
				return Export{}, err
			}
			x.Name = name
			return x, nil
		}
	}
	return Export{}, errors.Wrapf(ErrNotFound, "export %q", name)
}

// ByOrdinal indexes the address table with ord - Base.
func (e *Exports) ByOrdinal(ord uint16) (Export, error) {
	if uint32(ord) < e.hdr.Base || uint32(ord)-e.hdr.Base >= e.hdr.NumberOfFunctions {
		return Export{}, errors.Wrapf(ErrOutOfRange, "ordinal %d, base %d, %d functions", ord, e.hdr.Base, e.hdr.NumberOfFunctions)
	}
	idx := uint32(ord) - e.hdr.Base
	fns, err := e.Functions()
	if err != nil {
		return Export{}, err
	}
	rva := fns.At(int(idx))
	if rva == 0 {
		return Export{}, errors.Wrapf(ErrNotFound, "ordinal %d is unused", ord)
	}
	return e.export(idx, rva)
}

// ByRVA is the reverse lookup: the first export whose address is rva.
func (e *Exports) ByRVA(rva uint32) (Export, error) {
	fns, err := e.Functions()
	if err != nil {
		return Export{}, err
	}
	for i := range fns.Len() {
		if fns.At(i) == rva {
			return e.export(uint32(i), rva)
		}
	}
	return Export{}, errors.Wrapf(ErrNotFound, "no export at rva %#x", rva)
}

// All yields every used slot of the address table in ordinal order.
func (e *Exports) All() iter.Seq2[Export, error] {
	return func(yield func(Export, error) bool) {
		fns, err := e.Functions()
		if err != nil {
			yield(Export{}, err)
			return
		}
		for i := range fns.Len() {
			rva := fns.At(i)
			if rva == 0 {
				continue
			}
			x, err := e.export(uint32(i), rva)
			if !yield(x, err) || err != nil {
				return
			}
		}
	}
}

// IsForwarded reports whether rva points inside the export directory.
func (e *Exports) IsForwarded(rva uint32) bool {
	return rva >= e.dir.VirtualAddress && uint64(rva) < uint64(e.dir.VirtualAddress)+uint64(e.dir.Size)
}

// export builds the entry for address table slot idx. Ordinals are 16 bits
// wide, so a slot whose Base + idx does not fit is ErrOutOfRange.
func (e *Exports) export(idx, rva uint32) (Export, error) {
	ord := uint64(e.hdr.Base) + uint64(idx)
	if ord > math.MaxUint16 {
		return Export{}, errors.Wrapf(ErrOutOfRange, "function %d with base %d has no 16-bit ordinal", idx, e.hdr.Base)
	}
	x := Export{Ordinal: uint16(ord), RVA: rva}
	name, err := e.nameOf(idx)
	if err != nil {
		return x, err
	}
	x.Name = name
	if e.IsForwarded(rva) {
		fwd, err := cstring(e.t, rva)
		if err != nil {
			return x, errors.Wrapf(err, "forwarder of ordinal %d", x.Ordinal)
		}
		x.Forward = string(fwd)
	}
	return x, nil
}

func (e *Exports) nameOf(idx uint32) (string, error) {
	if e.hdr.NumberOfNames == 0 {
		return "", nil
	}
	ords, err := e.NameOrdinals()
	if err != nil {
		return "", err
	}
	for i := range ords.Len() {
		if uint32(ords.At(i)) != idx {
			continue
		}
		names, err := e.Names()
		if err != nil {
			return "", err
		}
		s, err := cstring(e.t, names.At(i))
		if err != nil {
			return "", errors.Wrapf(err, "export name %d", i)
		}
		return string(s), nil
	}
	return "", nil
}
