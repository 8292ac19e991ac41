//go:build windows && (amd64 || arm64)

package pe

import (
	"gopeview/pe64"
	"gopeview/perw"
	"unsafe"

	"golang.org/x/sys/windows"
)

type View = pe64.View

// Module wraps a module loaded in this process without checking it.
func Module(base unsafe.Pointer) *View { return pe64.Module(base) }

func OpenModule(h windows.Handle) (*View, error) {
	return perw.ModuleFromHandle[pe64.OptionalHeader](h)
}

// Self returns a view over the running executable.
func Self() (*View, error) { return perw.Executable[pe64.OptionalHeader]() }
