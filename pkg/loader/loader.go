package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// LoaderOption is a function that configures a Loader.
type LoaderOption func(*Loader) *Loader

// WithParent sets the loader consulted for names this loader does not own.
func WithParent(parent *Loader) LoaderOption {
	return func(l *Loader) *Loader {
		l.parent = parent
		return l
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) LoaderOption {
	return func(l *Loader) *Loader {
		l.logger = logger
		return l
	}
}

// WithName sets the diagnostic name of the loader.
func WithName(name string) LoaderOption {
	return func(l *Loader) *Loader {
		l.name = name
		return l
	}
}

// WithPredeclared replaces the predeclared environment used when
// materializing types.
func WithPredeclared(predeclared starlark.StringDict) LoaderOption {
	return func(l *Loader) *Loader {
		l.predeclared = predeclared
		return l
	}
}

// WithPrint overrides the handler for the starlark print builtin.
func WithPrint(print func(typeName, msg string)) LoaderOption {
	return func(l *Loader) *Loader {
		l.print = print
		return l
	}
}

// Finder supplies compiled bytes for names that neither the loader nor its
// ancestors own.  It returns an error wrapping ErrTypeNotFound, or any error
// satisfying errors.Is(err, fs.ErrNotExist), when it has nothing to offer.
type Finder func(name string) ([]byte, error)

// WithFinder sets the last-resort source of compiled units.  Types found
// this way are defined by, and cached in, this loader.
func WithFinder(finder Finder) LoaderOption {
	return func(l *Loader) *Loader {
		l.finder = finder
		return l
	}
}

// Predeclared returns the environment visible to every unit in addition to
// the starlark universe.
func Predeclared() starlark.StringDict {
	return starlark.StringDict{
		"struct": starlark.NewBuiltin("struct", starlarkstruct.Make),
		"module": starlark.NewBuiltin("module", starlarkstruct.MakeModule),
	}
}

// Loader turns compiled units into live types.  Names it owns are resolved
// locally before the parent is consulted, so a newer compilation of a name
// shadows any previously loaded one.
type Loader struct {
	name        string
	parent      *Loader
	logger      zerolog.Logger
	predeclared starlark.StringDict
	print       func(typeName, msg string)
	finder      Finder

	mu        sync.Mutex
	units     map[string][]byte
	types     map[string]*Type
	resolving map[string]bool
}

// New creates a Loader that owns the given compiled units.  The unit bytes
// are consumed when the corresponding type is first requested.
func New(units map[string][]byte, options ...LoaderOption) *Loader {
	l := &Loader{
		name:        "loader",
		logger:      zerolog.Nop(),
		predeclared: Predeclared(),
		units:       make(map[string][]byte, len(units)),
		types:       make(map[string]*Type),
		resolving:   make(map[string]bool),
	}
	for name, code := range units {
		l.units[name] = code
	}
	for _, opt := range options {
		l = opt(l)
	}
	return l
}

// Name returns the diagnostic name of the loader.
func (l *Loader) Name() string {
	return l.name
}

// Parent returns the parent loader, or nil for a root loader.
func (l *Loader) Parent() *Loader {
	return l.parent
}

// IsPredeclared reports whether the name is part of the predeclared
// environment of this loader.
func (l *Loader) IsPredeclared(name string) bool {
	return l.predeclared.Has(name)
}

// Names returns the sorted names owned by this loader, including types
// defined directly.
func (l *Loader) Names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	seen := make(map[string]bool, len(l.units)+len(l.types))
	for name := range l.units {
		seen[name] = true
	}
	for name, t := range l.types {
		if t.loader == l {
			seen[name] = true
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Owns reports whether the name belongs to this loader.
func (l *Loader) Owns(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.units[name]; ok {
		return true
	}
	t, ok := l.types[name]
	return ok && t.loader == l
}

// AddUnit registers compiled bytes under the given name.  It fails if the
// name is already owned.
func (l *Loader) AddUnit(name string, code []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.units[name]; ok {
		return fmt.Errorf("%s: %w", name, ErrAlreadyDefined)
	}
	if _, ok := l.types[name]; ok {
		return fmt.Errorf("%s: %w", name, ErrAlreadyDefined)
	}
	l.units[name] = code
	return nil
}

// Define registers a type made directly from values, without compiled bytes.
func (l *Loader) Define(name string, members starlark.StringDict) (*Type, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.units[name]; ok {
		return nil, fmt.Errorf("%s: %w", name, ErrAlreadyDefined)
	}
	if _, ok := l.types[name]; ok {
		return nil, fmt.Errorf("%s: %w", name, ErrAlreadyDefined)
	}
	members.Freeze()
	t := newType(name, l, members, nil)
	l.types[name] = t
	return t, nil
}

// FindLoadedType returns a type previously materialized by this loader or
// one of its ancestors, without triggering any loading.
func (l *Loader) FindLoadedType(name string) (*Type, bool) {
	for cur := l; cur != nil; cur = cur.parent {
		cur.mu.Lock()
		t, ok := cur.types[name]
		cur.mu.Unlock()
		if ok {
			return t, true
		}
	}
	return nil, false
}

// FindUnit returns the compiled bytes owned by this loader or the nearest
// ancestor that owns the name, without materializing anything.
func (l *Loader) FindUnit(name string) ([]byte, bool) {
	for cur := l; cur != nil; cur = cur.parent {
		cur.mu.Lock()
		code, ok := cur.units[name]
		cur.mu.Unlock()
		if ok {
			return code, true
		}
	}
	return nil, false
}

// LoadType returns the live type for the name.  A name owned by this loader
// is always materialized here, and a failure to do so is not retried in the
// parent.
func (l *Loader) LoadType(name string) (*Type, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadTypeLocked(name)
}

func (l *Loader) loadTypeLocked(name string) (*Type, error) {
	if t, ok := l.types[name]; ok {
		return t, nil
	}
	if code, ok := l.units[name]; ok {
		return l.defineType(name, code)
	}
	if l.parent != nil {
		t, err := l.parent.LoadType(name)
		if err == nil || l.finder == nil || !isNotFound(err, name) {
			return t, err
		}
	}
	if l.finder != nil {
		code, err := l.finder(name)
		if err == nil {
			l.units[name] = code
			return l.defineType(name, code)
		}
		if !errors.Is(err, ErrTypeNotFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, &TypeNotFoundError{Name: name, Loader: l.name, Cause: err}
		}
	}
	return nil, &TypeNotFoundError{Name: name, Loader: l.name}
}

// isNotFound reports whether err says that name itself is unknown, as
// opposed to a failure while materializing it.
func isNotFound(err error, name string) bool {
	var notFound *TypeNotFoundError
	return errors.As(err, &notFound) && notFound.Name == name && notFound.Cause == nil
}

// defineType materializes a type from compiled bytes.  Must be called with
// the lock held; the lock stays held during Init, which re-enters through
// the thread Load hook.
func (l *Loader) defineType(name string, code []byte) (*Type, error) {
	if l.resolving[name] {
		return nil, &TypeNotFoundError{Name: name, Loader: l.name, Cause: ErrImportCycle}
	}
	if len(code) == 0 {
		return nil, &TypeNotFoundError{Name: name, Loader: l.name, Cause: errEmptyUnit}
	}

	prog, err := starlark.CompiledProgram(bytes.NewReader(code))
	if err != nil {
		return nil, &TypeNotFoundError{Name: name, Loader: l.name, Cause: fmt.Errorf("decoding: %w", err)}
	}

	l.resolving[name] = true
	defer delete(l.resolving, name)

	thread := l.newThread(name)
	thread.Load = func(_ *starlark.Thread, module string) (starlark.StringDict, error) {
		t, err := l.loadTypeLocked(module)
		if err != nil {
			return nil, err
		}
		return t.members, nil
	}

	globals, err := prog.Init(thread, l.predeclared)
	if err != nil {
		return nil, &TypeNotFoundError{Name: name, Loader: l.name, Cause: err}
	}
	globals.Freeze()

	t := newType(name, l, globals, code)
	l.types[name] = t

	l.logger.Debug().
		Str("loader", l.name).
		Str("type", name).
		Str("id", t.id.String()).
		Int("members", len(t.Members())).
		Msg("defined type")

	return t, nil
}

func (l *Loader) newThread(name string) *starlark.Thread {
	return &starlark.Thread{
		Name: name,
		Print: func(_ *starlark.Thread, msg string) {
			if l.print != nil {
				l.print(name, msg)
				return
			}
			l.logger.Info().Str("type", name).Msg(msg)
		},
		Load: func(_ *starlark.Thread, module string) (starlark.StringDict, error) {
			t, err := l.LoadType(module)
			if err != nil {
				return nil, err
			}
			return t.members, nil
		},
	}
}

func (l *Loader) String() string {
	if l.parent == nil {
		return l.name
	}
	return l.name + " -> " + l.parent.String()
}
