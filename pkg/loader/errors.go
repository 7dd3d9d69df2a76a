package loader

import (
	"errors"
	"fmt"
)

// ErrTypeNotFound is the error value matched by every TypeNotFoundError.
var ErrTypeNotFound = fmt.Errorf("type not found")

// ErrImportCycle is reported when a type is requested while it is still being
// materialized.
var ErrImportCycle = fmt.Errorf("import cycle")

// ErrAlreadyDefined is reported when a name is defined twice in the same
// loader.
var ErrAlreadyDefined = fmt.Errorf("type already defined")

// errEmptyUnit is the cause recorded when an owned unit has no compiled bytes,
// typically because its compilation failed.
var errEmptyUnit = errors.New("compiled unit is empty")

// TypeNotFoundError describes a name that could not be turned into a live
// type.
type TypeNotFoundError struct {
	// Name is the requested type name.
	Name string
	// Loader is the name of the loader that gave up.
	Loader string
	// Cause is the underlying failure, if any.
	Cause error
}

func (e *TypeNotFoundError) Error() string {
	msg := fmt.Sprintf("type not found: %s (loader %s)", e.Name, e.Loader)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Is makes errors.Is(err, ErrTypeNotFound) hold.
func (e *TypeNotFoundError) Is(target error) bool {
	return target == ErrTypeNotFound
}

func (e *TypeNotFoundError) Unwrap() error {
	return e.Cause
}
