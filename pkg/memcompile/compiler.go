// Package memcompile compiles named Starlark source units in memory and
// loads the results as live types in the running process.
package memcompile

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/pcj/mobyprogress"
	"github.com/rs/zerolog"

	"github.com/stackb/memcompile/pkg/compiler"
	"github.com/stackb/memcompile/pkg/diagnostic"
	"github.com/stackb/memcompile/pkg/filemanager"
	"github.com/stackb/memcompile/pkg/loader"
	"github.com/stackb/memcompile/pkg/unit"
)

// Compiler collects source units and compiles them as one batch.  Sources
// stay pending after Compile, so a later Compile recompiles them together
// with whatever was added since.  A Compiler is not safe for concurrent use.
type Compiler struct {
	service     compiler.Service
	logger      zerolog.Logger
	parent      *loader.Loader
	policy      OverwritePolicy
	fileManager filemanager.FileManager
	progress    mobyprogress.Output

	sources        map[string]*unit.SourceUnit
	options        []string
	ignoreWarnings bool
	duplicates     []string

	batches int
	loader  *loader.Loader
}

// New creates a Compiler.
func New(options ...Option) *Compiler {
	c := &Compiler{
		logger:  zerolog.Nop(),
		sources: make(map[string]*unit.SourceUnit),
	}
	for _, opt := range options {
		c = opt(c)
	}
	if c.service == nil {
		c.service = compiler.NewStarlarkService(compiler.WithLogger(c.logger))
	}
	if c.parent == nil {
		c.parent = loader.System()
	}
	return c
}

// AddSource adds a named source unit to the pending batch.
func (c *Compiler) AddSource(name, text string) *Compiler {
	if _, ok := c.sources[name]; ok && c.policy == Reject {
		c.duplicates = append(c.duplicates, name)
		return c
	}
	c.sources[name] = unit.NewSourceUnit(name, text)
	return c
}

// UseOptions sets the options passed verbatim to the compiler service,
// replacing any previous ones.
func (c *Compiler) UseOptions(options ...string) *Compiler {
	c.options = append([]string(nil), options...)
	return c
}

// IgnoreWarnings makes warnings alone not fail a batch.
func (c *Compiler) IgnoreWarnings() *Compiler {
	c.ignoreWarnings = true
	return c
}

// UseParentLoader sets the parent of the loaders created by subsequent
// Compile calls.
func (c *Compiler) UseParentLoader(parent *loader.Loader) *Compiler {
	c.parent = parent
	return c
}

// Loader returns the loader of the most recent batch, or nil before the
// first Compile.
func (c *Compiler) Loader() *loader.Loader {
	return c.loader
}

// Compile compiles every pending source in a single service invocation.
// The returned error is reserved for failures to run the batch; problems in
// the sources are reported through the Result.
func (c *Compiler) Compile() (*Result, error) {
	if len(c.duplicates) > 0 {
		names := c.duplicates
		c.duplicates = nil
		return nil, fmt.Errorf("%w: %v", ErrDuplicateSubmission, names)
	}
	if len(c.sources) == 0 {
		return nil, ErrNoSource
	}
	t1 := time.Now()
	c.batches++
	batchName := fmt.Sprintf("batch-%d", c.batches)

	names := make([]string, 0, len(c.sources))
	for name := range c.sources {
		names = append(names, name)
	}
	sort.Strings(names)

	units := make([]*unit.SourceUnit, len(names))
	outputs := make(map[string]*unit.OutputUnit, len(names))
	for i, name := range names {
		units[i] = c.sources[name]
		outputs[name] = unit.NewOutputUnit(name)
	}

	delegate, err := c.delegate()
	if err != nil {
		return nil, err
	}
	fm := filemanager.NewVirtualFileManager(delegate, outputs, c.parent,
		filemanager.WithLogger(c.logger.With().Str("batch", batchName).Logger()))
	defer func() {
		if err := fm.Close(); err != nil {
			c.logger.Warn().Err(err).Str("batch", batchName).Msg("closing file manager")
		}
	}()

	c.writeProgress(batchName, 0, len(units), false)
	collector := diagnostic.NewCollector()
	if err := c.service.Compile(&compiler.Task{
		FileManager: fm,
		Diagnostics: collector,
		Options:     c.options,
		Units:       units,
	}); err != nil {
		return nil, fmt.Errorf("compiler service: %w", err)
	}

	code := make(map[string][]byte, len(outputs))
	for name, out := range outputs {
		code[name] = out.Bytes()
	}
	loaderOptions := []loader.LoaderOption{
		loader.WithName(batchName),
		loader.WithParent(c.parent),
		loader.WithLogger(c.logger),
	}
	if c.fileManager != nil {
		loaderOptions = append(loaderOptions, loader.WithFinder(c.find))
	}
	c.loader = loader.New(code, loaderOptions...)

	result := newResult(collector.Diagnostics(), c.ignoreWarnings, c.loader, names)
	c.writeProgress(batchName, len(units), len(units), true)

	c.logger.Debug().
		Str("batch", batchName).
		Int("units", len(units)).
		Int("diagnostics", len(result.diagnostics)).
		Bool("warnings", result.hasWarnings).
		Bool("errors", result.hasErrors).
		Dur("took", time.Since(t1)).
		Msg("compiled")

	return result, nil
}

// CompileAll compiles the pending batch, fails unless it succeeded and
// returns every type of the batch.
func (c *Compiler) CompileAll() (map[string]*loader.Type, error) {
	result, err := c.Compile()
	if err != nil {
		return nil, err
	}
	if _, err := result.CheckNoErrors(); err != nil {
		return nil, err
	}
	return result.ClassMap()
}

// CompileSource adds a single source, compiles the pending batch and returns
// the type for name.
func (c *Compiler) CompileSource(name, text string) (*loader.Type, error) {
	types, err := c.AddSource(name, text).CompileAll()
	if err != nil {
		return nil, err
	}
	return types[name], nil
}

// LoadCompiledBytes defines a type from previously compiled bytes.
func (c *Compiler) LoadCompiledBytes(name string, code []byte) (*loader.Type, error) {
	types, err := c.LoadCompiledBytesMap(map[string][]byte{name: code})
	if err != nil {
		return nil, err
	}
	return types[name], nil
}

// LoadCompiledBytesMap defines types from previously compiled bytes through
// a disposable loader whose parent is the configured parent loader.  Units
// in the map may load each other.
func (c *Compiler) LoadCompiledBytesMap(code map[string][]byte) (map[string]*loader.Type, error) {
	l := loader.New(code,
		loader.WithName("bytes"),
		loader.WithParent(c.parent),
		loader.WithLogger(c.logger))

	types := make(map[string]*loader.Type, len(code))
	for name := range code {
		t, err := l.LoadType(name)
		if err != nil {
			return nil, err
		}
		types[name] = t
	}
	return types, nil
}

func (c *Compiler) writeProgress(batchName string, current, total int, lastUpdate bool) {
	if c.progress == nil {
		return
	}
	if err := c.progress.WriteProgress(mobyprogress.Progress{
		ID:         batchName,
		Action:     "compiling",
		Current:    int64(current),
		Total:      int64(total),
		Units:      "units",
		LastUpdate: lastUpdate,
	}); err != nil {
		c.logger.Warn().Err(err).Msg("progress")
	}
}

// newDiskFileManager opens the per-batch delegate used when no file manager
// is configured.
var newDiskFileManager = func() (filemanager.FileManager, error) {
	return filemanager.NewDiskFileManager()
}

func (c *Compiler) delegate() (filemanager.FileManager, error) {
	if c.fileManager != nil {
		return nopCloser{c.fileManager}, nil
	}
	return newDiskFileManager()
}

// find supplies compiled units from the configured file manager to the batch
// loader.
func (c *Compiler) find(name string) ([]byte, error) {
	in, err := c.fileManager.GetInput(name, unit.Compiled)
	if err != nil {
		if errors.Is(err, filemanager.ErrNotFound) {
			return nil, loader.ErrTypeNotFound
		}
		return nil, err
	}
	return in.Content()
}

// nopCloser keeps a caller-owned file manager open across batches.
type nopCloser struct {
	filemanager.FileManager
}

func (nopCloser) Close() error {
	return nil
}
