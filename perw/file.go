package perw

import (
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"
)

// Mapping is a read-only memory mapping of a whole file.
type Mapping struct {
	file *os.File
	data mmap.MMap
}

func MapFile(path string) (*Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "failed to get file info")
	}
	// an empty file cannot be mapped
	if info.Size() == 0 {
		return &Mapping{file: f}, nil
	}
	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "mmap %s", path)
	}
	return &Mapping{file: f, data: data}, nil
}

func (m *Mapping) Bytes() []byte { return m.data }

func (m *Mapping) Name() string { return m.file.Name() }

// Close unmaps the file. Slices obtained from views over the mapping must
// not be used afterwards.
func (m *Mapping) Close() error {
	var errs []error
	if m.data != nil {
		if err := m.data.Unmap(); err != nil {
			errs = append(errs, errors.Wrap(err, "failed to unmap"))
		}
		m.data = nil
	}
	if m.file != nil {
		if err := m.file.Close(); err != nil {
			errs = append(errs, errors.Wrap(err, "failed to close file"))
		}
		m.file = nil
	}
	if len(errs) > 0 {
		return errors.Errorf("close errors: %v", errs)
	}
	return nil
}

// File is a disk view over a mapped file.
type File[H OptionalHeader] struct {
	*View[H]
	m *Mapping
}

func OpenFile[H OptionalHeader](path string) (*File[H], error) {
	m, err := MapFile(path)
	if err != nil {
		return nil, err
	}
	v, err := Open[H](m.Bytes())
	if err != nil {
		_ = m.Close()
		return nil, errors.Wrap(err, path)
	}
	return &File[H]{View: v, m: m}, nil
}

func (f *File[H]) Name() string { return f.m.Name() }

func (f *File[H]) Close() error { return f.m.Close() }
