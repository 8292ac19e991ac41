package perw

import (
	"encoding/binary"
	"unsafe"
)

// Module builds an image view over a module mapped at base, taking the
// extent from the module's own SizeOfImage. It trusts base: the headers are
// read before anything is validated, and any validation failure panics. Use
// OpenImage when the bytes come from somewhere untrusted.
func Module[H OptionalHeader](base unsafe.Pointer) *View[H] {
	dos := unsafe.Slice((*byte)(base), sizeofDosHeader)
	if binary.LittleEndian.Uint16(dos) != dosMagic {
		panic(ErrBadMagic)
	}
	lfanew := uintptr(binary.LittleEndian.Uint32(dos[0x3c:]))
	var h H
	nt := unsafe.Slice((*byte)(unsafe.Add(base, lfanew)), sizeofNtSignature+sizeofFileHeader+uintptr(h.size()))
	size := binary.LittleEndian.Uint32(nt[sizeofNtSignature+sizeofFileHeader+offsetSizeOfImage:])

	v, err := OpenImage[H](unsafe.Slice((*byte)(base), size))
	if err != nil {
		panic(err)
	}
	return v
}
