package mocks

import (
	"testing"

	compiler "github.com/stackb/memcompile/pkg/compiler"
	"github.com/stackb/memcompile/pkg/diagnostic"
	"github.com/stackb/memcompile/pkg/unit"
	mock "github.com/stretchr/testify/mock"
)

// CompileFunc is the behavior a TaskCapturer applies to each task.
type CompileFunc func(task *compiler.Task) error

// TaskCapturer is a mock Service that records every task it is given and
// answers with a scripted behavior.
type TaskCapturer struct {
	Service *Service
	Got     []*compiler.Task
}

func (c *TaskCapturer) capture(task *compiler.Task) bool {
	c.Got = append(c.Got, task)
	return true
}

// NewTaskCapturer creates a TaskCapturer that runs fn for each task.
func NewTaskCapturer(t *testing.T, fn CompileFunc) *TaskCapturer {
	c := &TaskCapturer{
		Service: NewService(t),
	}

	c.Service.
		On("Compile", mock.MatchedBy(c.capture)).
		Maybe().
		Return(func(task *compiler.Task) error {
			return fn(task)
		})

	return c
}

// WriteEach returns a CompileFunc that writes the given bytes as the output
// of every unit and reports the diagnostics.
func WriteEach(code func(name string) []byte, diagnostics ...diagnostic.Diagnostic) CompileFunc {
	return func(task *compiler.Task) error {
		for _, d := range diagnostics {
			task.Diagnostics.Report(d)
		}
		for _, src := range task.Units {
			out, err := task.FileManager.GetOutput(src.Name(), unit.Compiled)
			if err != nil {
				return err
			}
			w, err := out.Writer()
			if err != nil {
				return err
			}
			if _, err := w.Write(code(src.Name())); err != nil {
				return err
			}
		}
		return nil
	}
}
