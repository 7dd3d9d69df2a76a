// Package filemanager resolves compilation units by name for a compiler
// service: where outputs go and where referenced inputs come from.
package filemanager

import (
	"fmt"

	"github.com/stackb/memcompile/pkg/unit"
)

// ErrNotFound is returned by GetInput when no unit of the requested kind
// exists.
var ErrNotFound = fmt.Errorf("unit not found")

// ErrReadOnly is returned by GetOutput on managers that do not persist
// outputs.
var ErrReadOnly = fmt.Errorf("file manager is read-only")

// FileManager is the file-resolution protocol used by a compiler service.
type FileManager interface {
	// GetOutput returns the sink for the compiled form of the named unit.
	GetOutput(name string, kind unit.Kind) (unit.Output, error)
	// GetInput returns the named unit, or an error wrapping ErrNotFound.
	GetInput(name string, kind unit.Kind) (unit.Input, error)
	// List returns the units in the dotted package pkg ("" for the root),
	// descending into sub-packages when recurse is true.
	List(pkg string, recurse bool) ([]unit.File, error)
	// Close releases any resources held by the manager.
	Close() error
}

// MemberLister is implemented by inputs that know the public member names of
// the unit they represent without the unit having to be executed again.
type MemberLister interface {
	Members() []string
}

func notFound(name string, kind unit.Kind) error {
	return fmt.Errorf("%s (%v): %w", name, kind, ErrNotFound)
}
