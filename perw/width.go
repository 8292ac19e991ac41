package perw

import dpe "debug/pe"

// OptionalHeader32 is the PE32 optional header. Used as a type argument it
// selects the 32-bit family of views and accessors.
type OptionalHeader32 dpe.OptionalHeader32

// OptionalHeader64 is the PE32+ optional header. Used as a type argument it
// selects the 64-bit family of views and accessors.
type OptionalHeader64 dpe.OptionalHeader64

// OptionalHeader is the width of a view, fixed at compile time. There is no
// view that accepts either width: pick OptionalHeader32 or OptionalHeader64,
// or use the pe32/pe64 packages which do that for you.
type OptionalHeader interface {
	OptionalHeader32 | OptionalHeader64

	wantMagic() uint16
	size() uint32
	acceptsMachine(machine uint16) bool
	thunkSize() uint32
	ordinalFlag() uint64
	fields() optionalFields
}

// optionalFields holds what both widths have in common, widened to 64 bits.
type optionalFields struct {
	Magic               uint16
	AddressOfEntryPoint uint32
	ImageBase           uint64
	SectionAlignment    uint32
	FileAlignment       uint32
	SizeOfImage         uint32
	SizeOfHeaders       uint32
	CheckSum            uint32
	Subsystem           uint16
	DllCharacteristics  uint16
	NumberOfRvaAndSizes uint32
	DataDirectory       [numDirectoryEntries]DataDirectory
}

func is32BitMachine(machine uint16) bool {
	switch machine {
	case dpe.IMAGE_FILE_MACHINE_I386, dpe.IMAGE_FILE_MACHINE_ARM,
		dpe.IMAGE_FILE_MACHINE_ARMNT, dpe.IMAGE_FILE_MACHINE_THUMB:
		return true
	}
	return false
}

func is64BitMachine(machine uint16) bool {
	switch machine {
	case dpe.IMAGE_FILE_MACHINE_AMD64, dpe.IMAGE_FILE_MACHINE_ARM64,
		dpe.IMAGE_FILE_MACHINE_IA64:
		return true
	}
	return false
}

const (
	ordinalFlag32 = 1 << 31
	ordinalFlag64 = 1 << 63
)

func (OptionalHeader32) wantMagic() uint16   { return 0x10b }
func (OptionalHeader32) size() uint32        { return 224 }
func (OptionalHeader32) thunkSize() uint32   { return 4 }
func (OptionalHeader32) ordinalFlag() uint64 { return ordinalFlag32 }

func (OptionalHeader32) acceptsMachine(machine uint16) bool {
	return !is64BitMachine(machine)
}

func (h OptionalHeader32) fields() optionalFields {
	return optionalFields{
		Magic:               h.Magic,
		AddressOfEntryPoint: h.AddressOfEntryPoint,
		ImageBase:           uint64(h.ImageBase),
		SectionAlignment:    h.SectionAlignment,
		FileAlignment:       h.FileAlignment,
		SizeOfImage:         h.SizeOfImage,
		SizeOfHeaders:       h.SizeOfHeaders,
		CheckSum:            h.CheckSum,
		Subsystem:           h.Subsystem,
		DllCharacteristics:  h.DllCharacteristics,
		NumberOfRvaAndSizes: h.NumberOfRvaAndSizes,
		DataDirectory:       h.DataDirectory,
	}
}

func (OptionalHeader64) wantMagic() uint16   { return 0x20b }
func (OptionalHeader64) size() uint32        { return 240 }
func (OptionalHeader64) thunkSize() uint32   { return 8 }
func (OptionalHeader64) ordinalFlag() uint64 { return ordinalFlag64 }

func (OptionalHeader64) acceptsMachine(machine uint16) bool {
	return !is32BitMachine(machine)
}

func (h OptionalHeader64) fields() optionalFields {
	return optionalFields{
		Magic:               h.Magic,
		AddressOfEntryPoint: h.AddressOfEntryPoint,
		ImageBase:           h.ImageBase,
		SectionAlignment:    h.SectionAlignment,
		FileAlignment:       h.FileAlignment,
		SizeOfImage:         h.SizeOfImage,
		SizeOfHeaders:       h.SizeOfHeaders,
		CheckSum:            h.CheckSum,
		Subsystem:           h.Subsystem,
		DllCharacteristics:  h.DllCharacteristics,
		NumberOfRvaAndSizes: h.NumberOfRvaAndSizes,
		DataDirectory:       h.DataDirectory,
	}
}
