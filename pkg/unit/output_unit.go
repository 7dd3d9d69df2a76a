package unit

import (
	"bytes"
	"io"
)

// OutputUnit captures the compiled bytes of one unit.  The compiler service
// appends to it during a batch; the loader reads a snapshot afterwards.
type OutputUnit struct {
	name string
	buf  bytes.Buffer
}

// NewOutputUnit constructs a new, empty OutputUnit.
func NewOutputUnit(name string) *OutputUnit {
	return &OutputUnit{name: name}
}

// NewOutputUnitBytes constructs an OutputUnit already holding the given
// compiled bytes.
func NewOutputUnitBytes(name string, data []byte) *OutputUnit {
	o := &OutputUnit{name: name}
	o.buf.Write(data)
	return o
}

// Name implements part of the File interface.
func (o *OutputUnit) Name() string {
	return o.name
}

// Kind implements part of the File interface.
func (o *OutputUnit) Kind() Kind {
	return Compiled
}

// Writer implements part of the Output interface.  Writes append to the
// buffer.
func (o *OutputUnit) Writer() (io.Writer, error) {
	return &o.buf, nil
}

// Content implements part of the Input interface.
func (o *OutputUnit) Content() ([]byte, error) {
	return o.Bytes(), nil
}

// Bytes returns a copy of the captured bytes.
func (o *OutputUnit) Bytes() []byte {
	return bytes.Clone(o.buf.Bytes())
}

// Len returns the number of captured bytes.
func (o *OutputUnit) Len() int {
	return o.buf.Len()
}
