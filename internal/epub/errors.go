package epub

import (
	"errors"
	"fmt"
)

var (
	// ErrContainerNotFound is returned when META-INF/container.xml is missing.
	ErrContainerNotFound = errors.New("container.xml not found")

	// ErrOPFNotFound is returned when container.xml names no package document.
	ErrOPFNotFound = errors.New("package document not found")

	// ErrOPFUnreadable is returned when the package document entry is missing
	// or cannot be read.
	ErrOPFUnreadable = errors.New("package document unreadable")

	// ErrNotArchive is returned when the input is not a ZIP container.
	ErrNotArchive = errors.New("not a zip archive")
)

// PatchError reports a file that could not be patched. The original file is
// left untouched whenever a PatchError is returned.
type PatchError struct {
	Path string
	Err  error
}

func (e *PatchError) Error() string {
	return fmt.Sprintf("cannot patch %s: %v", e.Path, e.Err)
}

func (e *PatchError) Unwrap() error {
	return e.Err
}
