package unit

// SourceUnit is an in-memory source compilation unit.  It is immutable once
// constructed.
type SourceUnit struct {
	name string
	text string
}

// NewSourceUnit constructs a new SourceUnit.
func NewSourceUnit(name, text string) *SourceUnit {
	return &SourceUnit{name: name, text: text}
}

// Name implements part of the File interface.
func (s *SourceUnit) Name() string {
	return s.name
}

// Kind implements part of the File interface.
func (s *SourceUnit) Kind() Kind {
	return Source
}

// Text returns the full source text.
func (s *SourceUnit) Text() string {
	return s.text
}

// Content implements part of the Input interface.
func (s *SourceUnit) Content() ([]byte, error) {
	return []byte(s.text), nil
}

// Filename returns the path used for positions in diagnostics.
func (s *SourceUnit) Filename() string {
	return s.name
}
