package loader

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.starlark.net/starlark"
)

// Type is a live unit that has been loaded into the process.  Two types
// materialized from the same name by different loaders are distinct.
type Type struct {
	id      uuid.UUID
	name    string
	loader  *Loader
	members starlark.StringDict
	code    []byte
}

func newType(name string, l *Loader, members starlark.StringDict, code []byte) *Type {
	return &Type{
		id:      uuid.New(),
		name:    name,
		loader:  l,
		members: members,
		code:    code,
	}
}

// ID is unique per materialization.
func (t *Type) ID() uuid.UUID {
	return t.id
}

// Name returns the fully-qualified name of the type.
func (t *Type) Name() string {
	return t.name
}

// Loader returns the loader that defined the type.
func (t *Type) Loader() *Loader {
	return t.loader
}

// Members returns the sorted names of the declared members.  Names starting
// with an underscore are private to the unit and are not included.
func (t *Type) Members() []string {
	names := make([]string, 0, len(t.members))
	for name := range t.members {
		if strings.HasPrefix(name, "_") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Member returns the value of the named member.
func (t *Type) Member(name string) (starlark.Value, bool) {
	v, ok := t.members[name]
	return v, ok
}

// Globals returns the frozen global environment of the type.
func (t *Type) Globals() starlark.StringDict {
	return t.members
}

// Code returns a copy of the compiled bytes the type was materialized from,
// or nil for a type defined directly from values.
func (t *Type) Code() []byte {
	if t.code == nil {
		return nil
	}
	return bytes.Clone(t.code)
}

// Call invokes the named callable member.
func (t *Type) Call(name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	v, ok := t.members[name]
	if !ok {
		return nil, fmt.Errorf("%s has no member %q", t.name, name)
	}
	if _, ok := v.(starlark.Callable); !ok {
		return nil, fmt.Errorf("%s.%s is not callable (%s)", t.name, name, v.Type())
	}
	thread := t.loader.newThread(t.name)
	return starlark.Call(thread, v, args, kwargs)
}

func (t *Type) String() string {
	return fmt.Sprintf("type %s (loader %s)", t.name, t.loader.name)
}
