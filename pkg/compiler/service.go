// Package compiler defines the compiler service invoked by the orchestrator
// and provides an in-process Starlark implementation and an out-of-process
// client for it.
package compiler

import (
	"github.com/stackb/memcompile/pkg/diagnostic"
	"github.com/stackb/memcompile/pkg/filemanager"
	"github.com/stackb/memcompile/pkg/unit"
)

// Service compiles a batch of source units.  Problems in the sources are
// reported to the task listener; the returned error is reserved for failures
// of the service itself.
type Service interface {
	Compile(task *Task) error
}

// Task is one invocation of a compiler service.
type Task struct {
	// FileManager resolves outputs and referenced inputs.
	FileManager filemanager.FileManager
	// Diagnostics receives every diagnostic of the batch.
	Diagnostics diagnostic.Listener
	// Options are passed verbatim from the caller.
	Options []string
	// Units is the batch.
	Units []*unit.SourceUnit
}

// ServiceFunc adapts a function to the Service interface.
type ServiceFunc func(task *Task) error

// Compile implements Service.
func (f ServiceFunc) Compile(task *Task) error {
	return f(task)
}
