package compiler

import (
	"strings"

	"go.starlark.net/syntax"

	"github.com/stackb/memcompile/pkg/diagnostic"
)

const (
	allowPrefix = "-Xallow:"
	noWarn      = "-nowarn"
	warnError   = "-Werror"
)

// options is the parsed form of the option strings of a task.
type options struct {
	strict  syntax.FileOptions
	nowarn  bool
	werror  bool
	invalid []string
}

// allFileOptions permits every construct, including recursion.
func allFileOptions() *syntax.FileOptions {
	return &syntax.FileOptions{
		While:           true,
		TopLevelControl: true,
		GlobalReassign:  true,
		Recursion:       true,
	}
}

// lenient returns the strict options with every resolver-checked construct
// permitted.  Recursion is only checked at run time and is recorded in the
// compiled program, so it keeps its strict value.
func (o *options) lenient() *syntax.FileOptions {
	lenient := o.strict
	lenient.While = true
	lenient.TopLevelControl = true
	lenient.GlobalReassign = true
	return &lenient
}

func parseOptions(args []string) *options {
	opts := &options{}
	for _, arg := range args {
		switch {
		case arg == noWarn:
			opts.nowarn = true
		case arg == warnError:
			opts.werror = true
		case strings.HasPrefix(arg, allowPrefix):
			for _, feature := range strings.Split(strings.TrimPrefix(arg, allowPrefix), ",") {
				if !opts.allow(feature) {
					opts.invalid = append(opts.invalid, arg)
					break
				}
			}
		default:
			opts.invalid = append(opts.invalid, arg)
		}
	}
	return opts
}

func (o *options) allow(feature string) bool {
	switch feature {
	case "while":
		o.strict.While = true
	case "toplevel":
		o.strict.TopLevelControl = true
	case "reassign":
		o.strict.GlobalReassign = true
	case "recursion":
		o.strict.Recursion = true
	case "all":
		o.strict = *allFileOptions()
	default:
		return false
	}
	return true
}

// filter applies -nowarn and -Werror to a diagnostic.  It returns false if
// the diagnostic should be dropped.
func (o *options) filter(d *diagnostic.Diagnostic) bool {
	if o.nowarn && (d.Kind == diagnostic.Note || d.Kind == diagnostic.Warning) {
		return false
	}
	if o.werror && (d.Kind == diagnostic.Warning || d.Kind == diagnostic.MandatoryWarning) {
		d.Kind = diagnostic.Error
	}
	return true
}
