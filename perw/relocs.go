package perw

import (
	dpe "debug/pe"
	"fmt"
	"iter"

	"github.com/pkg/errors"
)

// Base relocation types.
const (
	RelBasedAbsolute = 0
	RelBasedHigh     = 1
	RelBasedLow      = 2
	RelBasedHighLow  = 3
	RelBasedHighAdj  = 4
	RelBasedDir64    = 10
)

var relocTypeNames = map[uint8]string{
	RelBasedAbsolute: "ABSOLUTE",
	RelBasedHigh:     "HIGH",
	RelBasedLow:      "LOW",
	RelBasedHighLow:  "HIGHLOW",
	RelBasedHighAdj:  "HIGHADJ",
	RelBasedDir64:    "DIR64",
}

// Reloc is a single entry of a relocation block.
type Reloc struct {
	Type   uint8
	Offset uint16
}

func decodeReloc(word uint16) Reloc {
	return Reloc{Type: uint8(word >> 12), Offset: word & 0x0fff}
}

func (r Reloc) TypeName() string {
	if s, ok := relocTypeNames[r.Type]; ok {
		return s
	}
	return fmt.Sprintf("TYPE%d", r.Type)
}

type RelocBlock struct {
	PageRVA     uint32
	SizeOfBlock uint32
	entries     Uint16Array
}

func (b RelocBlock) Len() int { return b.entries.Len() }

func (b RelocBlock) At(i int) Reloc { return decodeReloc(b.entries.At(i)) }

func (b RelocBlock) Entries() iter.Seq[Reloc] {
	return func(yield func(Reloc) bool) {
		for i := range b.Len() {
			if !yield(b.At(i)) {
				return
			}
		}
	}
}

// RVAOf is the address r patches.
func (b RelocBlock) RVAOf(r Reloc) uint32 { return b.PageRVA + uint32(r.Offset) }

type Relocations struct {
	t   Translator
	dir DataDirectory
}

func (v *View[H]) Relocations() (*Relocations, error) {
	dir, err := v.directory(dpe.IMAGE_DIRECTORY_ENTRY_BASERELOC)
	if err != nil {
		return nil, err
	}
	return &Relocations{t: v, dir: dir}, nil
}

func (r *Relocations) Directory() DataDirectory { return r.dir }

// Blocks yields blocks until the declared directory size is consumed.
// Bytes past that size are never looked at, even if they look like another
// block.
func (r *Relocations) Blocks() iter.Seq2[RelocBlock, error] {
	return func(yield func(RelocBlock, error) bool) {
		var pos uint32
		for pos < r.dir.Size {
			left := r.dir.Size - pos
			if left < sizeofBaseRelocation {
				yield(RelocBlock{}, errors.Wrapf(ErrTruncated, "%d bytes left for a block header", left))
				return
			}
			rva, err := addRVA(r.dir.VirtualAddress, pos)
			if err != nil {
				yield(RelocBlock{}, err)
				return
			}
			hdr, err := readStruct[BaseRelocation](r.t, rva)
			if err != nil {
				yield(RelocBlock{}, errors.Wrapf(err, "relocation block at %#x", rva))
				return
			}
			if hdr.SizeOfBlock < sizeofBaseRelocation || hdr.SizeOfBlock > left {
				yield(RelocBlock{}, errors.Wrapf(ErrTruncated, "block at %#x declares %d bytes, %d left", rva, hdr.SizeOfBlock, left))
				return
			}
			body, err := r.t.Slice(rva+sizeofBaseRelocation, (hdr.SizeOfBlock-sizeofBaseRelocation)&^1)
			if err != nil {
				yield(RelocBlock{}, errors.Wrapf(err, "relocation entries at %#x", rva))
				return
			}
			blk := RelocBlock{PageRVA: hdr.VirtualAddress, SizeOfBlock: hdr.SizeOfBlock, entries: Uint16Array(body)}
			if !yield(blk, nil) {
				return
			}
			pos += hdr.SizeOfBlock
		}
	}
}
