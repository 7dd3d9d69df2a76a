package filemanager

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dghubble/trie"

	"github.com/stackb/memcompile/pkg/unit"
)

// ZipSuffix marks a search path entry as an archive.
const ZipSuffix = ".zip"

// searchPathEntry is one root of the search path: a directory or a zip
// archive.
type searchPathEntry struct {
	root   string
	fsys   fs.FS
	closer io.Closer
}

func openSearchPathEntry(root string) (*searchPathEntry, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("not a legal path %s: %w", root, err)
	}
	if strings.HasSuffix(abs, ZipSuffix) {
		r, err := zip.OpenReader(abs)
		if err != nil {
			return nil, fmt.Errorf("opening archive %s: %w", abs, err)
		}
		return &searchPathEntry{root: abs, fsys: r, closer: r}, nil
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: not a directory or %s archive", abs, ZipSuffix)
	}
	return &searchPathEntry{root: abs, fsys: os.DirFS(abs)}, nil
}

func (e *searchPathEntry) String() string {
	return e.root
}

func (e *searchPathEntry) readFile(rel string) ([]byte, error) {
	return fs.ReadFile(e.fsys, rel)
}

func (e *searchPathEntry) exists(rel string) bool {
	info, err := fs.Stat(e.fsys, rel)
	return err == nil && !info.IsDir()
}

// glob returns the slash-separated paths matching the pattern, relative to
// the entry root.
func (e *searchPathEntry) glob(pattern string) ([]string, error) {
	return doublestar.Glob(e.fsys, pattern, doublestar.WithFilesOnly(), doublestar.WithFailOnIOErrors())
}

func (e *searchPathEntry) Close() error {
	if e.closer == nil {
		return nil
	}
	return e.closer.Close()
}

// mount binds a dotted package prefix to a search path entry.  Units under
// the prefix are looked up relative to the entry root with the prefix
// removed.
type mount struct {
	prefix string
	entry  *searchPathEntry
}

func (m *mount) relative(name string) string {
	if name == m.prefix {
		return ""
	}
	return strings.TrimPrefix(name, m.prefix+".")
}

// DiskFile is a unit found in a search path entry.
type DiskFile struct {
	name  string
	kind  unit.Kind
	rel   string
	entry *searchPathEntry
}

// Name implements part of the unit.Input interface.
func (f *DiskFile) Name() string {
	return f.name
}

// Kind implements part of the unit.Input interface.
func (f *DiskFile) Kind() unit.Kind {
	return f.kind
}

// Content implements part of the unit.Input interface.
func (f *DiskFile) Content() ([]byte, error) {
	return f.entry.readFile(f.rel)
}

// Path returns the location of the file, for messages.
func (f *DiskFile) Path() string {
	return path.Join(filepath.ToSlash(f.entry.root), f.rel)
}

func (f *DiskFile) String() string {
	return f.Path()
}

// DiskFileManager is a read-only FileManager over an ordered search path of
// directories and zip archives.  Package mounts take precedence over the
// search path; when mounts are nested the longest prefix wins.
type DiskFileManager struct {
	searchPath []*searchPathEntry
	mounts     *trie.PathTrie
	numMounts  int
}

// NewDiskFileManager opens each root of the search path.  An empty search
// path resolves nothing.
func NewDiskFileManager(roots ...string) (*DiskFileManager, error) {
	m := &DiskFileManager{
		mounts: trie.NewPathTrieWithConfig(&trie.PathTrieConfig{
			Segmenter: packageSegmenter,
		}),
	}
	for _, root := range roots {
		if root == "" {
			continue
		}
		entry, err := openSearchPathEntry(root)
		if err != nil {
			m.Close()
			return nil, err
		}
		m.searchPath = append(m.searchPath, entry)
	}
	return m, nil
}

// ParseSearchPath splits a list-separator delimited search path, as found in
// an environment variable, and opens it.
func ParseSearchPath(searchPath string) (*DiskFileManager, error) {
	return NewDiskFileManager(filepath.SplitList(searchPath)...)
}

// Mount binds the dotted package prefix to the directory or archive at root.
func (m *DiskFileManager) Mount(prefix, root string) error {
	if prefix == "" {
		return fmt.Errorf("mount prefix must not be empty")
	}
	entry, err := openSearchPathEntry(root)
	if err != nil {
		return err
	}
	if prev := m.mounts.Get(prefix); prev != nil {
		prev.(*mount).entry.Close()
	} else {
		m.numMounts++
	}
	m.mounts.Put(prefix, &mount{prefix: prefix, entry: entry})
	return nil
}

// String returns the search path.
func (m *DiskFileManager) String() string {
	roots := make([]string, len(m.searchPath))
	for i, entry := range m.searchPath {
		roots[i] = entry.String()
	}
	return strings.Join(roots, string(filepath.ListSeparator))
}

// GetOutput implements part of the FileManager interface.
func (m *DiskFileManager) GetOutput(name string, kind unit.Kind) (unit.Output, error) {
	return nil, fmt.Errorf("%s: %w", name, ErrReadOnly)
}

// GetInput implements part of the FileManager interface.
func (m *DiskFileManager) GetInput(name string, kind unit.Kind) (unit.Input, error) {
	if mnt, ok := m.longestMount(name); ok {
		if rel := mnt.relative(name); rel != "" {
			p := unit.PathOf(rel, kind)
			if mnt.entry.exists(p) {
				return &DiskFile{name: name, kind: kind, rel: p, entry: mnt.entry}, nil
			}
		}
		return nil, notFound(name, kind)
	}

	p := unit.PathOf(name, kind)
	for _, entry := range m.searchPath {
		if entry.exists(p) {
			return &DiskFile{name: name, kind: kind, rel: p, entry: entry}, nil
		}
	}
	return nil, notFound(name, kind)
}

// List implements part of the FileManager interface.  Earlier search path
// entries shadow later ones.
func (m *DiskFileManager) List(pkg string, recurse bool) ([]unit.File, error) {
	var files []unit.File
	seen := make(map[string]bool)

	// owner is the mount being listed, nil for the search path.  Names that
	// resolve through a different mount are skipped.
	add := func(entry *searchPathEntry, dir, namePrefix string, owner *mount) error {
		matches, err := entry.glob(listPattern(dir, recurse))
		if err != nil {
			return fmt.Errorf("listing %s: %w", entry, err)
		}
		for _, rel := range matches {
			kind := unit.Source
			if strings.HasSuffix(rel, unit.CompiledSuffix) {
				kind = unit.Compiled
			}
			name := unit.NameOf(rel)
			if namePrefix != "" {
				name = namePrefix + "." + name
			}
			if mnt, ok := m.longestMount(name); ok && mnt != owner {
				continue
			}
			key := kind.String() + ":" + name
			if seen[key] {
				continue
			}
			seen[key] = true
			files = append(files, &DiskFile{name: name, kind: kind, rel: rel, entry: entry})
		}
		return nil
	}

	if mnt, ok := m.longestMount(pkg); ok {
		if err := add(mnt.entry, packageDir(mnt.relative(pkg)), mnt.prefix, mnt); err != nil {
			return nil, err
		}
	} else {
		for _, entry := range m.searchPath {
			if err := add(entry, packageDir(pkg), "", nil); err != nil {
				return nil, err
			}
		}
	}

	if recurse {
		var nested []*mount
		m.mounts.Walk(func(key string, value interface{}) error {
			mnt := value.(*mount)
			if mnt.prefix != pkg && unit.InPackage(mnt.prefix, pkg, true) {
				nested = append(nested, mnt)
			}
			return nil
		})
		for _, mnt := range nested {
			if err := add(mnt.entry, "", mnt.prefix, mnt); err != nil {
				return nil, err
			}
		}
	}

	sortFiles(files)
	return files, nil
}

// Close implements part of the FileManager interface.
func (m *DiskFileManager) Close() error {
	var errs []error
	for _, entry := range m.searchPath {
		if err := entry.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if m.mounts != nil {
		m.mounts.Walk(func(key string, value interface{}) error {
			if err := value.(*mount).entry.Close(); err != nil {
				errs = append(errs, err)
			}
			return nil
		})
	}
	return errors.Join(errs...)
}

func (m *DiskFileManager) longestMount(name string) (*mount, bool) {
	if m.numMounts == 0 || name == "" {
		return nil, false
	}
	var last interface{}
	m.mounts.WalkPath(name, func(key string, value interface{}) error {
		last = value
		return nil
	})
	if last == nil {
		return nil, false
	}
	return last.(*mount), true
}

func packageDir(pkg string) string {
	if pkg == "" {
		return ""
	}
	return strings.ReplaceAll(pkg, ".", "/")
}

// globEscaper quotes doublestar metacharacters in literal path segments.
var globEscaper = strings.NewReplacer(
	`\`, `\\`,
	"*", `\*`,
	"?", `\?`,
	"[", `\[`,
	"]", `\]`,
	"{", `\{`,
	"}", `\}`,
)

func listPattern(dir string, recurse bool) string {
	pattern := "*.{star,starc}"
	if recurse {
		pattern = "**/" + pattern
	}
	if dir != "" {
		pattern = globEscaper.Replace(dir) + "/" + pattern
	}
	return pattern
}

// packageSegmenter segments dotted package names. For example, "a.b.c" ->
// ("a", 1), (".b", 3), (".c", -1) in successive calls. It does not allocate
// any heap memory.
func packageSegmenter(name string, start int) (segment string, next int) {
	if len(name) == 0 || start < 0 || start > len(name)-1 {
		return "", -1
	}
	end := strings.IndexRune(name[start+1:], '.')
	if end == -1 {
		return name[start:], -1
	}
	return name[start : start+end+1], start + end + 1
}
