package starlarkeval

import (
	"fmt"
	"strings"

	"go.starlark.net/starlark"

	"github.com/stackb/memcompile/pkg/loader"
)

// Interpreter invokes members of loaded types on behalf of a command line.
type Interpreter struct {
	// Thread context
	thread *starlark.Thread
	// Last eval error
	evalErr *starlark.EvalError
	// reporter
	reporter Reporter
}

// Reporter is implemented by *testing.T.
type Reporter func(format string, args ...interface{})

func NewInterpreter(reporter Reporter) *Interpreter {
	return &Interpreter{
		reporter: reporter,
		thread: &starlark.Thread{
			Name: "interpreter",
			Print: func(_ *starlark.Thread, msg string) {
				reporter("%s", msg)
			},
		},
	}
}

// LastError returns the evaluation error of the most recent failed call,
// which carries the starlark backtrace.
func (i *Interpreter) LastError() *starlark.EvalError {
	return i.evalErr
}

// Invoke calls the named member of the type.  Arguments of the form
// "name=value" are passed by keyword, the others positionally; each value is
// parsed with ParseValue.
func (i *Interpreter) Invoke(typ *loader.Type, member string, args []string) (starlark.Value, error) {
	fn, ok := typ.Member(member)
	if !ok {
		return nil, fmt.Errorf("%s has no member %q (members: %s)", typ.Name(), member, strings.Join(typ.Members(), ", "))
	}
	positional, kwargs := ParseArgs(args)

	i.thread.Name = typ.Name() + "." + member
	value, err := starlark.Call(i.thread, fn, positional, kwargs)
	if evalErr, ok := err.(*starlark.EvalError); ok {
		i.evalErr = evalErr
	}
	return value, err
}

// ParseArgs splits command line arguments into positional and keyword
// arguments.
func ParseArgs(args []string) (starlark.Tuple, []starlark.Tuple) {
	var positional starlark.Tuple
	var kwargs []starlark.Tuple
	for _, arg := range args {
		if name, value, ok := strings.Cut(arg, "="); ok && isIdent(name) && !strings.HasPrefix(value, "=") {
			kwargs = append(kwargs, starlark.Tuple{starlark.String(name), ParseValue(value)})
			continue
		}
		positional = append(positional, ParseValue(arg))
	}
	return positional, kwargs
}

// ParseValue evaluates s as a Starlark literal expression.  Anything that is
// not a valid expression over the universe is taken as a plain string.
func ParseValue(s string) starlark.Value {
	thread := &starlark.Thread{Name: "parse"}
	v, err := starlark.Eval(thread, "<arg>", s, nil)
	if err != nil {
		return starlark.String(s)
	}
	return v
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
