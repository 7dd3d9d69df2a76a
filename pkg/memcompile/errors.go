package memcompile

import (
	"fmt"

	"github.com/stackb/memcompile/pkg/diagnostic"
)

// ErrNoSource is returned by Compile when no source has been added.
var ErrNoSource = fmt.Errorf("no source code to compile")

// ErrDuplicateSubmission is returned by Compile when a source name was added
// twice under the Reject overwrite policy.
var ErrDuplicateSubmission = fmt.Errorf("duplicate source submission")

// compilationErrorHeader starts the message of every CompilationError.
const compilationErrorHeader = "Unable to compile the source"

// CompilationError is returned by CheckNoErrors when a batch did not
// succeed.  It carries every diagnostic of the batch.
type CompilationError struct {
	Diagnostics []diagnostic.Diagnostic
}

func (e *CompilationError) Error() string {
	return diagnostic.Transcript(compilationErrorHeader, e.Diagnostics)
}
