package compiler

import (
	"github.com/stackb/memcompile/pkg/filemanager"
	"github.com/stackb/memcompile/pkg/unit"
)

// capturingFileManager collects compiled outputs in memory and forwards
// everything else.
type capturingFileManager struct {
	filemanager.FileManager
	outputs map[string]*unit.OutputUnit
}

// GetOutput implements part of the filemanager.FileManager interface.
func (m *capturingFileManager) GetOutput(name string, kind unit.Kind) (unit.Output, error) {
	if kind != unit.Compiled {
		return m.FileManager.GetOutput(name, kind)
	}
	out, ok := m.outputs[name]
	if !ok {
		out = unit.NewOutputUnit(name)
		m.outputs[name] = out
	}
	return out, nil
}

// Close is a no-op; the wrapped manager belongs to the caller.
func (m *capturingFileManager) Close() error {
	return nil
}
