package diagnostic

// Listener receives diagnostics from a compiler service.
type Listener interface {
	Report(d Diagnostic)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(d Diagnostic)

// Report implements Listener.
func (f ListenerFunc) Report(d Diagnostic) {
	f(d)
}

// Collector is a Listener that accumulates diagnostics in the order they are
// reported.
type Collector struct {
	diagnostics []Diagnostic
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Report implements Listener.
func (c *Collector) Report(d Diagnostic) {
	c.diagnostics = append(c.diagnostics, d)
}

// Diagnostics returns a copy of the collected diagnostics.
func (c *Collector) Diagnostics() []Diagnostic {
	if len(c.diagnostics) == 0 {
		return nil
	}
	out := make([]Diagnostic, len(c.diagnostics))
	copy(out, c.diagnostics)
	return out
}

// Len returns the number of collected diagnostics.
func (c *Collector) Len() int {
	return len(c.diagnostics)
}
