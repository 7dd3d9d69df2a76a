package compiler

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/stackb/memcompile/pkg/diagnostic"
	"github.com/stackb/memcompile/pkg/filemanager"
	"github.com/stackb/memcompile/pkg/loader"
	"github.com/stackb/memcompile/pkg/unit"
)

// maxSuggestions bounds the names listed for an unresolved module.
const maxSuggestions = 5

// StarlarkServiceOption is a function that configures a StarlarkService.
type StarlarkServiceOption func(*StarlarkService) *StarlarkService

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) StarlarkServiceOption {
	return func(s *StarlarkService) *StarlarkService {
		s.logger = logger
		return s
	}
}

// WithPredeclared sets the predicate for names that units may reference
// without defining them.  It must agree with the predeclared environment of
// the loaders that will materialize the outputs.
func WithPredeclared(isPredeclared func(string) bool) StarlarkServiceOption {
	return func(s *StarlarkService) *StarlarkService {
		s.isPredeclared = isPredeclared
		return s
	}
}

// StarlarkService compiles Starlark source units in process.
type StarlarkService struct {
	logger        zerolog.Logger
	isPredeclared func(string) bool
}

// NewStarlarkService creates a StarlarkService.
func NewStarlarkService(options ...StarlarkServiceOption) *StarlarkService {
	s := &StarlarkService{
		logger:        zerolog.Nop(),
		isPredeclared: loader.Predeclared().Has,
	}
	for _, opt := range options {
		s = opt(s)
	}
	return s
}

// batchUnit is the per-unit state of one Compile call.
type batchUnit struct {
	src     *unit.SourceUnit
	file    *syntax.File
	prog    *starlark.Program
	globals map[string]bool
	failed  bool
}

// Compile implements the Service interface.
func (s *StarlarkService) Compile(task *Task) error {
	if task == nil || task.FileManager == nil || task.Diagnostics == nil {
		return errors.New("compile task requires a file manager and a diagnostic listener")
	}
	t1 := time.Now()

	opts := parseOptions(task.Options)
	for _, arg := range opts.invalid {
		task.Diagnostics.Report(diagnostic.Diagnostic{
			Kind:    diagnostic.Error,
			Message: fmt.Sprintf("invalid flag: %s", arg),
		})
	}

	units := make([]*batchUnit, 0, len(task.Units))
	byName := make(map[string]*batchUnit, len(task.Units))
	for _, src := range task.Units {
		u := &batchUnit{src: src}
		units = append(units, u)
		byName[src.Name()] = u
	}

	for _, u := range units {
		report := s.reporter(task.Diagnostics, opts, u)
		s.resolveUnit(u, opts, report)
	}
	for _, u := range units {
		if u.file == nil {
			continue
		}
		report := s.reporter(task.Diagnostics, opts, u)
		s.checkLoads(task.FileManager, u, byName, report)
		lintFile(u.src.Name(), u.file, report)
	}

	var written int
	for _, u := range units {
		if u.failed || u.prog == nil {
			continue
		}
		if err := s.writeOutput(task.FileManager, u); err != nil {
			u.failed = true
			task.Diagnostics.Report(diagnostic.Diagnostic{
				Kind:    diagnostic.Error,
				Source:  u.src.Name(),
				Message: err.Error(),
			})
			continue
		}
		written++
	}

	s.logger.Debug().
		Int("units", len(units)).
		Int("written", written).
		Dur("took", time.Since(t1)).
		Msg("starlark compile")

	return nil
}

// reporter returns a report function for the unit that applies the option
// filters and marks the unit failed on errors.
func (s *StarlarkService) reporter(listener diagnostic.Listener, opts *options, u *batchUnit) func(diagnostic.Diagnostic) {
	return func(d diagnostic.Diagnostic) {
		if !opts.filter(&d) {
			return
		}
		if !d.Kind.IsWarning() {
			u.failed = true
		}
		listener.Report(d)
	}
}

// resolveUnit parses and resolves a unit.  Constructs that only the lenient
// dialect accepts, and direct recursion while recursion is not allowed, are
// reported as warnings.
func (s *StarlarkService) resolveUnit(u *batchUnit, opts *options, report func(diagnostic.Diagnostic)) {
	name := u.src.Name()

	strict := opts.strict
	f, err := s.parse(u.src, &strict)
	if err != nil {
		reportErrors(diagnostic.Error, name, "", err, report)
		return
	}
	prog, strictErr := starlark.FileProgram(f, s.isPredeclared)
	if strictErr != nil {
		f, err = s.parse(u.src, opts.lenient())
		if err != nil {
			reportErrors(diagnostic.Error, name, "", err, report)
			return
		}
		prog, err = starlark.FileProgram(f, s.isPredeclared)
		if err != nil {
			// constructs rejected only by the strict dialect are still worth
			// reporting next to the real errors
			reportErrors(diagnostic.Warning, name, "unsafe construct: ", strictOnly(strictErr, err), report)
			reportErrors(diagnostic.Error, name, "", err, report)
			return
		}
		reportErrors(diagnostic.Warning, name, "unsafe construct: ", strictErr, report)
	}

	if !f.Options.Recursion {
		if calls := selfCalls(f); len(calls) > 0 {
			for _, call := range calls {
				report(diagnosticAt(diagnostic.Warning, name, call.pos,
					fmt.Sprintf("unsafe construct: function %s calls itself", call.fn)))
			}
			// the recursion flag is part of the compiled program
			relaxed := *f.Options
			relaxed.Recursion = true
			f, err = s.parse(u.src, &relaxed)
			if err == nil {
				prog, err = starlark.FileProgram(f, s.isPredeclared)
			}
			if err != nil {
				reportErrors(diagnostic.Error, name, "", err, report)
				return
			}
		}
	}

	u.file, u.prog = f, prog
	u.globals = globalNames(f)
}

func (s *StarlarkService) parse(src *unit.SourceUnit, opts *syntax.FileOptions) (*syntax.File, error) {
	return opts.Parse(src.Filename(), src.Text(), 0)
}

// checkLoads verifies that every load statement of the unit refers to a
// module that exists and defines the loaded names.
func (s *StarlarkService) checkLoads(fm filemanager.FileManager, u *batchUnit, batch map[string]*batchUnit, report func(diagnostic.Diagnostic)) {
	name := u.src.Name()
	for _, stmt := range u.file.Stmts {
		load, ok := stmt.(*syntax.LoadStmt)
		if !ok {
			continue
		}
		module, _ := load.Module.Value.(string)

		if dep, ok := batch[module]; ok {
			if dep.globals == nil {
				// the dependency already carries its own errors
				continue
			}
			checkLoadedNames(name, module, load, func(member string) bool {
				return dep.globals[member]
			}, report)
			continue
		}

		in, err := fm.GetInput(module, unit.Compiled)
		if errors.Is(err, filemanager.ErrNotFound) {
			in, err = fm.GetInput(module, unit.Source)
		}
		if err != nil {
			if !errors.Is(err, filemanager.ErrNotFound) {
				report(diagnosticAt(diagnostic.Error, name, load.Module.TokenPos,
					fmt.Sprintf("reading module %q: %v", module, err)))
				continue
			}
			report(diagnosticAt(diagnostic.Error, name, load.Module.TokenPos,
				s.missingModuleMessage(fm, module, batch)))
			continue
		}

		s.logger.Debug().Str("unit", name).Str("module", module).Stringer("kind", in.Kind()).Msg("resolved load")

		if lister, ok := in.(filemanager.MemberLister); ok {
			members := make(map[string]bool)
			for _, member := range lister.Members() {
				members[member] = true
			}
			checkLoadedNames(name, module, load, func(member string) bool {
				return members[member]
			}, report)
		}
	}
}

func checkLoadedNames(name, module string, load *syntax.LoadStmt, defines func(string) bool, report func(diagnostic.Diagnostic)) {
	for _, from := range load.From {
		if !defines(from.Name) {
			report(diagnosticAt(diagnostic.Error, name, from.NamePos,
				fmt.Sprintf("load: name %s not found in module %s", from.Name, module)))
		}
	}
}

func (s *StarlarkService) missingModuleMessage(fm filemanager.FileManager, module string, batch map[string]*batchUnit) string {
	msg := fmt.Sprintf("cannot find module %q", module)

	seen := make(map[string]bool)
	var candidates []string
	pkg := unit.Package(module)
	for other := range batch {
		if unit.Package(other) == pkg && !seen[other] {
			seen[other] = true
			candidates = append(candidates, other)
		}
	}
	if files, err := fm.List(pkg, false); err == nil {
		for _, f := range files {
			if !seen[f.Name()] {
				seen[f.Name()] = true
				candidates = append(candidates, f.Name())
			}
		}
	} else {
		s.logger.Debug().Err(err).Str("package", pkg).Msg("listing candidates")
	}
	if len(candidates) == 0 {
		return msg
	}
	sort.Strings(candidates)
	if len(candidates) > maxSuggestions {
		candidates = candidates[:maxSuggestions]
	}
	return msg + " (available: " + strings.Join(candidates, ", ") + ")"
}

func (s *StarlarkService) writeOutput(fm filemanager.FileManager, u *batchUnit) error {
	out, err := fm.GetOutput(u.src.Name(), unit.Compiled)
	if err != nil {
		return fmt.Errorf("cannot write output: %w", err)
	}
	w, err := out.Writer()
	if err != nil {
		return fmt.Errorf("cannot write output: %w", err)
	}
	if err := u.prog.Write(w); err != nil {
		return fmt.Errorf("cannot write output: %w", err)
	}
	return nil
}

func globalNames(f *syntax.File) map[string]bool {
	names := make(map[string]bool)
	module, ok := f.Module.(*resolve.Module)
	if !ok {
		return names
	}
	for _, b := range module.Globals {
		if b.First != nil {
			names[b.First.Name] = true
		}
	}
	return names
}

// strictOnly returns the resolver errors of strict that lenient does not
// share, or nil.
func strictOnly(strict, lenient error) error {
	var strictErrs, lenientErrs resolve.ErrorList
	if !errors.As(strict, &strictErrs) || !errors.As(lenient, &lenientErrs) {
		return nil
	}
	shared := make(map[string]bool, len(lenientErrs))
	for _, e := range lenientErrs {
		shared[e.Error()] = true
	}
	var only resolve.ErrorList
	for _, e := range strictErrs {
		if !shared[e.Error()] {
			only = append(only, e)
		}
	}
	if len(only) == 0 {
		return nil
	}
	return only
}

// reportErrors turns scanner, parser and resolver errors into diagnostics.
func reportErrors(kind diagnostic.Kind, name, prefix string, err error, report func(diagnostic.Diagnostic)) {
	if err == nil {
		return
	}
	var resolveErrs resolve.ErrorList
	var syntaxErr syntax.Error
	switch {
	case errors.As(err, &resolveErrs):
		for _, e := range resolveErrs {
			report(diagnosticAt(kind, name, e.Pos, prefix+e.Msg))
		}
	case errors.As(err, &syntaxErr):
		report(diagnosticAt(kind, name, syntaxErr.Pos, prefix+syntaxErr.Msg))
	default:
		report(diagnostic.Diagnostic{Kind: kind, Source: name, Message: prefix + err.Error()})
	}
}
