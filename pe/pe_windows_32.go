//go:build windows && (386 || arm)

package pe

import (
	"gopeview/pe32"
	"gopeview/perw"
	"unsafe"

	"golang.org/x/sys/windows"
)

type View = pe32.View

// Module wraps a module loaded in this process without checking it.
func Module(base unsafe.Pointer) *View { return pe32.Module(base) }

func OpenModule(h windows.Handle) (*View, error) {
	return perw.ModuleFromHandle[pe32.OptionalHeader](h)
}

// Self returns a view over the running executable.
func Self() (*View, error) { return perw.Executable[pe32.OptionalHeader]() }
