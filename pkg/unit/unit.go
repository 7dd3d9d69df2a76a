package unit

import (
	"io"
	"path"
	"strings"
)

const (
	// SourceSuffix is the filename suffix of a source unit.
	SourceSuffix = ".star"
	// CompiledSuffix is the filename suffix of a compiled unit.
	CompiledSuffix = ".starc"
)

// Kind distinguishes source units from compiled units.
type Kind int

const (
	Source Kind = iota
	Compiled
)

func (k Kind) String() string {
	switch k {
	case Source:
		return "SOURCE"
	case Compiled:
		return "COMPILED"
	default:
		return "UNKNOWN"
	}
}

// Suffix returns the filename suffix for the kind.
func (k Kind) Suffix() string {
	if k == Compiled {
		return CompiledSuffix
	}
	return SourceSuffix
}

// File is a named compilation unit, either in memory or on disk.
type File interface {
	// Name is the fully-qualified unit name.
	Name() string
	Kind() Kind
}

// Input is a File whose content can be read.
type Input interface {
	File
	Content() ([]byte, error)
}

// Output is a File that a compiler service writes to.
type Output interface {
	File
	Writer() (io.Writer, error)
}

// PathOf maps a unit name to a slash-separated relative path.  Dotted names
// become directories ("org.mdkt.A" -> "org/mdkt/A.star"); path-qualified names
// only get the suffix.
func PathOf(name string, kind Kind) string {
	if strings.Contains(name, "/") {
		return name + kind.Suffix()
	}
	return strings.ReplaceAll(name, ".", "/") + kind.Suffix()
}

// NameOf maps a relative path produced by PathOf back to a dotted unit name.
func NameOf(filename string) string {
	filename = path.Clean(filepathToSlash(filename))
	for _, suffix := range []string{CompiledSuffix, SourceSuffix} {
		if strings.HasSuffix(filename, suffix) {
			filename = strings.TrimSuffix(filename, suffix)
			break
		}
	}
	return strings.ReplaceAll(strings.TrimPrefix(filename, "./"), "/", ".")
}

// Package returns the dotted package of a unit name, or "" for a top-level
// name.
func Package(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return ""
}

// InPackage reports whether name is in pkg.  When recurse is false only
// direct members match.
func InPackage(name, pkg string, recurse bool) bool {
	if pkg == "" {
		return recurse || !strings.Contains(name, ".")
	}
	if !strings.HasPrefix(name, pkg+".") {
		return false
	}
	return recurse || Package(name) == pkg
}

func filepathToSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}
