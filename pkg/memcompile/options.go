package memcompile

import (
	"github.com/pcj/mobyprogress"
	"github.com/rs/zerolog"

	"github.com/stackb/memcompile/pkg/compiler"
	"github.com/stackb/memcompile/pkg/filemanager"
	"github.com/stackb/memcompile/pkg/loader"
)

// OverwritePolicy decides what AddSource does with a name that is already
// pending.
type OverwritePolicy int

const (
	// Overwrite replaces the pending source; the last write wins.
	Overwrite OverwritePolicy = iota
	// Reject keeps the first source and fails the next Compile with
	// ErrDuplicateSubmission.
	Reject
)

func (p OverwritePolicy) String() string {
	switch p {
	case Overwrite:
		return "overwrite"
	case Reject:
		return "reject"
	default:
		return "unknown"
	}
}

// Option is a function that configures a Compiler.
type Option func(*Compiler) *Compiler

// WithService sets the compiler service.  The default compiles in process
// with compiler.StarlarkService.
func WithService(service compiler.Service) Option {
	return func(c *Compiler) *Compiler {
		c.service = service
		return c
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Compiler) *Compiler {
		c.logger = logger
		return c
	}
}

// WithParentLoader sets the parent of the loaders created by Compile.  The
// default is loader.System().
func WithParentLoader(parent *loader.Loader) Option {
	return func(c *Compiler) *Compiler {
		c.parent = parent
		return c
	}
}

// WithOverwritePolicy sets the policy for repeated source names.
func WithOverwritePolicy(policy OverwritePolicy) Option {
	return func(c *Compiler) *Compiler {
		c.policy = policy
		return c
	}
}

// WithFileManager sets the manager consulted for units outside the batch,
// typically a filemanager.DiskFileManager over a search path.  Compiled
// units it provides are also loadable at run time.
func WithFileManager(fm filemanager.FileManager) Option {
	return func(c *Compiler) *Compiler {
		c.fileManager = fm
		return c
	}
}

// WithProgress reports batch progress to out.
func WithProgress(out mobyprogress.Output) Option {
	return func(c *Compiler) *Compiler {
		c.progress = out
		return c
	}
}
