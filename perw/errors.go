package perw

import "github.com/pkg/errors"

// Construction errors are reported by Open, OpenImage and OpenFile; the
// remaining ones come back from accessor calls. All of them are wrapped with
// context, compare with errors.Is.
var (
	ErrBadMagic    = errors.New("bad magic")
	ErrBadWidth    = errors.New("header width does not match the requested view")
	ErrOutOfBounds = errors.New("range extends past the byte source")

	ErrRvaNotMapped  = errors.New("rva is not mapped")
	ErrOutOfRange    = errors.New("index out of range")
	ErrTruncated     = errors.New("table size is inconsistent with its directory")
	ErrNotPresent    = errors.New("not present in this image")
	ErrNotFound      = errors.New("not found")
	ErrResourceCycle = errors.New("resource directory refers to one of its ancestors")
)
