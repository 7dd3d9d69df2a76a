package filemanager

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/stackb/memcompile/pkg/loader"
	"github.com/stackb/memcompile/pkg/unit"
)

// VirtualFileManagerOption is a function that configures a
// VirtualFileManager.
type VirtualFileManagerOption func(*VirtualFileManager) *VirtualFileManager

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) VirtualFileManagerOption {
	return func(m *VirtualFileManager) *VirtualFileManager {
		m.logger = logger
		return m
	}
}

// VirtualFileManager routes the outputs of a batch into in-memory buffers and
// answers compiled-input requests from types that are already live.
// Everything else is delegated.
type VirtualFileManager struct {
	delegate FileManager
	outputs  map[string]*unit.OutputUnit
	loader   *loader.Loader
	logger   zerolog.Logger
}

// NewVirtualFileManager creates a VirtualFileManager over the batch outputs.
// The loader is consulted for already materialized types; it may be nil.
func NewVirtualFileManager(delegate FileManager, outputs map[string]*unit.OutputUnit, l *loader.Loader, options ...VirtualFileManagerOption) *VirtualFileManager {
	m := &VirtualFileManager{
		delegate: delegate,
		outputs:  outputs,
		loader:   l,
		logger:   zerolog.Nop(),
	}
	for _, opt := range options {
		m = opt(m)
	}
	return m
}

// GetOutput implements part of the FileManager interface.
func (m *VirtualFileManager) GetOutput(name string, kind unit.Kind) (unit.Output, error) {
	if kind == unit.Compiled {
		if out, ok := m.outputs[name]; ok {
			m.logger.Debug().Str("unit", name).Msg("capturing output")
			return out, nil
		}
	}
	m.logger.Debug().Str("unit", name).Stringer("kind", kind).Msg("delegating output")
	return m.delegate.GetOutput(name, kind)
}

// GetInput implements part of the FileManager interface.
func (m *VirtualFileManager) GetInput(name string, kind unit.Kind) (unit.Input, error) {
	if kind == unit.Compiled && m.loader != nil {
		if typ, ok := m.loader.FindLoadedType(name); ok {
			m.logger.Debug().Str("unit", name).Str("loader", typ.Loader().Name()).Msg("input from loaded type")
			return NewTypeInput(typ), nil
		}
		if code, ok := m.loader.FindUnit(name); ok && len(code) > 0 {
			m.logger.Debug().Str("unit", name).Msg("input from owned unit")
			return unit.NewOutputUnitBytes(name, code), nil
		}
	}
	return m.delegate.GetInput(name, kind)
}

// List implements part of the FileManager interface.  Batch names shadow
// delegate entries of the same name and kind.
func (m *VirtualFileManager) List(pkg string, recurse bool) ([]unit.File, error) {
	files, err := m.delegate.List(pkg, recurse)
	if err != nil {
		return nil, err
	}

	result := make([]unit.File, 0, len(files)+len(m.outputs))
	for name, out := range m.outputs {
		if unit.InPackage(name, pkg, recurse) {
			result = append(result, out)
		}
	}
	for _, f := range files {
		if _, ok := m.outputs[f.Name()]; ok && f.Kind() == unit.Compiled {
			continue
		}
		result = append(result, f)
	}
	sortFiles(result)
	return result, nil
}

// Close implements part of the FileManager interface.
func (m *VirtualFileManager) Close() error {
	return m.delegate.Close()
}

func sortFiles(files []unit.File) {
	sort.Slice(files, func(i, j int) bool {
		a, b := files[i], files[j]
		if a.Name() != b.Name() {
			return a.Name() < b.Name()
		}
		return a.Kind() < b.Kind()
	})
}
