package filemanager

import (
	"github.com/stackb/memcompile/pkg/loader"
	"github.com/stackb/memcompile/pkg/unit"
)

// TypeInput is a pseudo-input standing for a type that is already live in a
// loader.  It never reads the disk.
type TypeInput struct {
	typ *loader.Type
}

// NewTypeInput wraps a loaded type as an input.
func NewTypeInput(typ *loader.Type) *TypeInput {
	return &TypeInput{typ: typ}
}

// Name implements part of the unit.Input interface.
func (in *TypeInput) Name() string {
	return in.typ.Name()
}

// Kind implements part of the unit.Input interface.
func (in *TypeInput) Kind() unit.Kind {
	return unit.Compiled
}

// Content implements part of the unit.Input interface.  Types defined
// directly from values have no content.
func (in *TypeInput) Content() ([]byte, error) {
	return in.typ.Code(), nil
}

// Members implements the MemberLister interface.
func (in *TypeInput) Members() []string {
	return in.typ.Members()
}

// Type returns the wrapped type.
func (in *TypeInput) Type() *loader.Type {
	return in.typ
}
