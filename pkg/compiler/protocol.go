package compiler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"go.starlark.net/syntax"

	"github.com/stackb/memcompile/pkg/diagnostic"
	"github.com/stackb/memcompile/pkg/filemanager"
	"github.com/stackb/memcompile/pkg/loader"
	"github.com/stackb/memcompile/pkg/unit"
)

// Request is the message an ExecService writes to the backend stdin.
type Request struct {
	Options []string      `json:"options,omitempty"`
	Units   []RequestUnit `json:"units"`
	// Modules are the units outside the batch that the batch loads, as the
	// caller's file manager resolved them.
	Modules []RequestModule `json:"modules,omitempty"`
	// Packages holds the caller's listing of the package of every module it
	// could not resolve.
	Packages map[string][]string `json:"packages,omitempty"`
}

// RequestModule is a loaded module outside the batch.
type RequestModule struct {
	Name string    `json:"name"`
	Kind unit.Kind `json:"kind"`
	// Members is only meaningful when Listed is set.
	Members []string `json:"members,omitempty"`
	Listed  bool     `json:"listed,omitempty"`
	// Error is set when the caller failed to read the module.
	Error string `json:"error,omitempty"`
}

// RequestUnit is a source unit on the wire.
type RequestUnit struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// Response is the message the backend writes to stdout.
type Response struct {
	// Outputs maps unit names to compiled bytes (base64 in JSON).  Units
	// that failed are absent.
	Outputs     map[string][]byte       `json:"outputs,omitempty"`
	Diagnostics []diagnostic.Diagnostic `json:"diagnostics,omitempty"`
}

// NewRequest builds the wire form of a task.  The modules loaded by the
// batch are resolved through the task's file manager so that the backend
// sees the same units as an in-process service would.
func NewRequest(task *Task) *Request {
	req := &Request{Options: task.Options, Units: make([]RequestUnit, len(task.Units))}
	inBatch := make(map[string]bool, len(task.Units))
	for i, src := range task.Units {
		req.Units[i] = RequestUnit{Name: src.Name(), Text: src.Text()}
		inBatch[src.Name()] = true
	}
	if task.FileManager == nil {
		return req
	}

	seen := make(map[string]bool)
	for _, src := range task.Units {
		for _, module := range loadedModules(src) {
			if inBatch[module] || seen[module] {
				continue
			}
			seen[module] = true
			if m, ok := resolveModule(task.FileManager, module); ok {
				req.Modules = append(req.Modules, *m)
				continue
			}
			pkg := unit.Package(module)
			if _, ok := req.Packages[pkg]; ok {
				continue
			}
			if req.Packages == nil {
				req.Packages = make(map[string][]string)
			}
			req.Packages[pkg] = listNames(task.FileManager, pkg, inBatch)
		}
	}
	return req
}

// loadedModules returns the modules named by the load statements of a
// source unit.  Units that do not parse load nothing; the backend reports
// their errors.
func loadedModules(src *unit.SourceUnit) []string {
	f, err := allFileOptions().Parse(src.Filename(), src.Text(), 0)
	if err != nil {
		return nil
	}
	var modules []string
	for _, stmt := range f.Stmts {
		if load, ok := stmt.(*syntax.LoadStmt); ok {
			if module, ok := load.Module.Value.(string); ok {
				modules = append(modules, module)
			}
		}
	}
	return modules
}

func resolveModule(fm filemanager.FileManager, module string) (*RequestModule, bool) {
	in, err := fm.GetInput(module, unit.Compiled)
	if errors.Is(err, filemanager.ErrNotFound) {
		in, err = fm.GetInput(module, unit.Source)
	}
	if errors.Is(err, filemanager.ErrNotFound) {
		return nil, false
	}
	if err != nil {
		return &RequestModule{Name: module, Kind: unit.Compiled, Error: err.Error()}, true
	}
	m := &RequestModule{Name: module, Kind: in.Kind()}
	if lister, ok := in.(filemanager.MemberLister); ok {
		m.Members = lister.Members()
		m.Listed = true
	}
	return m, true
}

func listNames(fm filemanager.FileManager, pkg string, exclude map[string]bool) []string {
	files, err := fm.List(pkg, false)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		if !exclude[f.Name()] {
			names = append(names, f.Name())
		}
	}
	return names
}

// Serve reads one Request from r, compiles it with the service and writes
// the Response to w.  Loads are checked against the system loader and the
// modules carried by the request.
func Serve(r io.Reader, w io.Writer, svc Service) error {
	var req Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return fmt.Errorf("decoding request: %w", err)
	}

	units := make([]*unit.SourceUnit, len(req.Units))
	outputs := make(map[string]*unit.OutputUnit, len(req.Units))
	for i, u := range req.Units {
		units[i] = unit.NewSourceUnit(u.Name, u.Text)
		outputs[u.Name] = unit.NewOutputUnit(u.Name)
	}

	fm := filemanager.NewVirtualFileManager(newRequestFileManager(&req), outputs, loader.System())
	defer fm.Close()

	collector := diagnostic.NewCollector()
	if err := svc.Compile(&Task{
		FileManager: fm,
		Diagnostics: collector,
		Options:     req.Options,
		Units:       units,
	}); err != nil {
		return err
	}

	resp := &Response{
		Outputs:     make(map[string][]byte),
		Diagnostics: collector.Diagnostics(),
	}
	names := make([]string, 0, len(outputs))
	for name := range outputs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if out := outputs[name]; out.Len() > 0 {
			resp.Outputs[name] = out.Bytes()
		}
	}
	return json.NewEncoder(w).Encode(resp)
}

// requestFileManager answers inputs from the modules of a Request.
type requestFileManager struct {
	modules  map[string]*RequestModule
	packages map[string][]string
}

func newRequestFileManager(req *Request) *requestFileManager {
	m := &requestFileManager{
		modules:  make(map[string]*RequestModule, len(req.Modules)),
		packages: req.Packages,
	}
	for i := range req.Modules {
		m.modules[req.Modules[i].Name] = &req.Modules[i]
	}
	return m
}

// GetOutput implements part of the FileManager interface.
func (m *requestFileManager) GetOutput(name string, kind unit.Kind) (unit.Output, error) {
	return nil, fmt.Errorf("%s (%v): %w", name, kind, filemanager.ErrReadOnly)
}

// GetInput implements part of the FileManager interface.
func (m *requestFileManager) GetInput(name string, kind unit.Kind) (unit.Input, error) {
	mod, ok := m.modules[name]
	if !ok || mod.Kind != kind {
		return nil, fmt.Errorf("%s (%v): %w", name, kind, filemanager.ErrNotFound)
	}
	if mod.Error != "" {
		return nil, errors.New(mod.Error)
	}
	if mod.Listed {
		return &listedModuleInput{moduleInput{mod}}, nil
	}
	return &moduleInput{mod}, nil
}

// List implements part of the FileManager interface.  Only the packages
// carried by the request are known, without sub-packages.
func (m *requestFileManager) List(pkg string, recurse bool) ([]unit.File, error) {
	var files []unit.File
	for _, name := range m.packages[pkg] {
		files = append(files, &moduleInput{&RequestModule{Name: name, Kind: unit.Source}})
	}
	for _, mod := range m.modules {
		if unit.InPackage(mod.Name, pkg, recurse) {
			files = append(files, &moduleInput{mod})
		}
	}
	return files, nil
}

// Close implements part of the FileManager interface.
func (m *requestFileManager) Close() error {
	return nil
}

// moduleInput is a module known by name and kind only.
type moduleInput struct {
	mod *RequestModule
}

func (in *moduleInput) Name() string {
	return in.mod.Name
}

func (in *moduleInput) Kind() unit.Kind {
	return in.mod.Kind
}

// Content implements part of the unit.Input interface.  Module contents do
// not cross the wire.
func (in *moduleInput) Content() ([]byte, error) {
	return nil, nil
}

// listedModuleInput is a module whose members are known.
type listedModuleInput struct {
	moduleInput
}

func (in *listedModuleInput) Members() []string {
	return in.mod.Members
}
