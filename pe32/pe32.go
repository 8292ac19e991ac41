// Package pe32 is the PE32 family of views. Its types are instantiations of
// the generic perw types and cannot be mixed with the other width.
package pe32

import (
	"gopeview/perw"
	"unsafe"
)

type (
	OptionalHeader = perw.OptionalHeader32
	View           = perw.View[OptionalHeader]
	File           = perw.File[OptionalHeader]
	Imports        = perw.Imports[OptionalHeader]
	ImportModule   = perw.ImportModule[OptionalHeader]
)

// Open validates data as the raw contents of a PE32 file.
func Open(data []byte) (*View, error) { return perw.Open[OptionalHeader](data) }

// OpenImage validates data as a loader-mapped PE32 image.
func OpenImage(data []byte) (*View, error) { return perw.OpenImage[OptionalHeader](data) }

func OpenFile(path string) (*File, error) { return perw.OpenFile[OptionalHeader](path) }

// Module wraps a loaded module without checking it; see perw.Module.
func Module(base unsafe.Pointer) *View { return perw.Module[OptionalHeader](base) }

func LoadImage(disk *View) (*View, error) { return perw.LoadImage(disk) }
