package memcompile

import (
	"errors"

	"github.com/stackb/memcompile/pkg/diagnostic"
	"github.com/stackb/memcompile/pkg/loader"
)

// Result is the outcome of one Compile call.
type Result struct {
	diagnostics    []diagnostic.Diagnostic
	ignoreWarnings bool
	hasWarnings    bool
	hasErrors      bool
	loader         *loader.Loader
	names          []string
}

func newResult(diagnostics []diagnostic.Diagnostic, ignoreWarnings bool, l *loader.Loader, names []string) *Result {
	r := &Result{
		diagnostics:    diagnostics,
		ignoreWarnings: ignoreWarnings,
		loader:         l,
		names:          names,
	}
	for _, d := range diagnostics {
		if d.Kind.IsWarning() {
			r.hasWarnings = true
		} else {
			r.hasErrors = true
		}
	}
	return r
}

// ClassMap materializes every unit of the batch through the batch loader.
// Units that cannot be materialized, typically because they failed to
// compile, are left out of the map and reported in the joined error.
func (r *Result) ClassMap() (map[string]*loader.Type, error) {
	types := make(map[string]*loader.Type, len(r.names))
	var errs []error
	for _, name := range r.names {
		t, err := r.loader.LoadType(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		types[name] = t
	}
	return types, errors.Join(errs...)
}

// CompilationSucceeded reports whether the batch had no errors, and no
// warnings unless warnings are ignored.
func (r *Result) CompilationSucceeded() bool {
	if r.hasWarnings && !r.ignoreWarnings {
		return false
	}
	return !r.hasErrors
}

// HasWarnings reports whether any note or warning was reported.
func (r *Result) HasWarnings() bool {
	return r.hasWarnings
}

// HasErrors reports whether any error, or diagnostic of unknown kind, was
// reported.
func (r *Result) HasErrors() bool {
	return r.hasErrors
}

// Diagnostics returns a copy of every diagnostic of the batch in reporting
// order.
func (r *Result) Diagnostics() []diagnostic.Diagnostic {
	if len(r.diagnostics) == 0 {
		return nil
	}
	return append([]diagnostic.Diagnostic(nil), r.diagnostics...)
}

// CheckNoErrors returns the result itself if the compilation succeeded and
// a *CompilationError otherwise.
func (r *Result) CheckNoErrors() (*Result, error) {
	if !r.CompilationSucceeded() {
		return nil, &CompilationError{Diagnostics: r.Diagnostics()}
	}
	return r, nil
}

// Loader returns the loader of the batch.
func (r *Result) Loader() *loader.Loader {
	return r.loader
}

// Names returns the sorted unit names of the batch.
func (r *Result) Names() []string {
	return append([]string(nil), r.names...)
}
