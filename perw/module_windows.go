//go:build windows

package perw

import (
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

// ModuleFromHandle is the checked counterpart of Module for a module loaded
// in this process. The low bits of h flag datafile and image-resource
// mappings and are ignored.
func ModuleFromHandle[H OptionalHeader](h windows.Handle) (*View[H], error) {
	base := uintptr(h) &^ 3
	var info windows.ModuleInfo
	if err := windows.GetModuleInformation(
		windows.CurrentProcess(),
		windows.Handle(base),
		&info,
		uint32(unsafe.Sizeof(info)),
	); err != nil {
		return nil, errors.Wrap(err, "querying module handle")
	}
	data := unsafe.Slice((*byte)(unsafe.Pointer(base)), info.SizeOfImage)
	return OpenImage[H](data)
}

// Executable returns a view over the running program's own image.
func Executable[H OptionalHeader]() (*View[H], error) {
	var h windows.Handle
	if err := windows.GetModuleHandleEx(0, nil, &h); err != nil {
		return nil, errors.Wrap(err, "GetModuleHandleEx")
	}
	return ModuleFromHandle[H](h)
}
