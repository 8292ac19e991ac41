package common

import "fmt"

// DirectoryResult records what happened when one part of an image was read
type DirectoryResult struct {
	Name     string
	Category string
	Present  bool
	Count    int // entries found: exports, import modules, blocks, leaves
	Message  string
	Err      error
}

// NewAbsent creates a result for a directory the image does not have
func NewAbsent(name, category string) *DirectoryResult {
	return &DirectoryResult{
		Name:     name,
		Category: category,
		Message:  "not present",
	}
}

// NewParsed creates a result for a directory that was read completely
func NewParsed(name, category, message string, count int) *DirectoryResult {
	return &DirectoryResult{
		Name:     name,
		Category: category,
		Present:  true,
		Count:    count,
		Message:  message,
	}
}

// NewFailed creates a result for a directory whose walk stopped on err
func NewFailed(name, category string, count int, err error) *DirectoryResult {
	return &DirectoryResult{
		Name:     name,
		Category: category,
		Present:  true,
		Count:    count,
		Message:  err.Error(),
		Err:      err,
	}
}

func (r *DirectoryResult) Failed() bool { return r.Err != nil }

// String returns a human-readable representation
func (r *DirectoryResult) String() string {
	switch {
	case r.Err != nil:
		return fmt.Sprintf("FAILED (%s after %d items)", r.Message, r.Count)
	case !r.Present:
		return fmt.Sprintf("ABSENT (%s)", r.Message)
	case r.Count > 0:
		return fmt.Sprintf("PARSED (%s, %d items)", r.Message, r.Count)
	default:
		return fmt.Sprintf("PARSED (%s)", r.Message)
	}
}
