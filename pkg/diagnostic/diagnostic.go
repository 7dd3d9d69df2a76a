package diagnostic

import (
	"fmt"
	"strings"
)

// Kind is the severity of a diagnostic.
type Kind int

const (
	// Other is a diagnostic that does not fit any other kind.
	Other Kind = iota
	// Note is an informational message.
	Note
	// Warning is a problem that does not prevent compilation.
	Warning
	// MandatoryWarning is a warning the compiler is required to report.
	MandatoryWarning
	// Error is a problem that prevents compilation of the unit.
	Error
)

var kindNames = map[Kind]string{
	Other:            "OTHER",
	Note:             "NOTE",
	Warning:          "WARNING",
	MandatoryWarning: "MANDATORY_WARNING",
	Error:            "ERROR",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("KIND(%d)", int(k))
}

// ParseKind returns the Kind for the given name.  Unrecognized names map to
// Other.
func ParseKind(name string) Kind {
	for k, v := range kindNames {
		if strings.EqualFold(v, name) {
			return k
		}
	}
	return Other
}

// IsWarning reports whether the kind belongs in the warning bucket.  Every
// other kind, including unrecognized ones, belongs in the error bucket.
func (k Kind) IsWarning() bool {
	switch k {
	case Note, Warning, MandatoryWarning:
		return true
	default:
		return false
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	*k = ParseKind(string(text))
	return nil
}

// Diagnostic is a message produced by a compiler service about one
// compilation unit.
type Diagnostic struct {
	Kind    Kind   `json:"kind"`
	Source  string `json:"source,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
	Message string `json:"message"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("[kind=%s, source=%s, line=%d, message=%s]", d.Kind, d.Source, d.Line, d.Message)
}

// Transcript formats the header followed by one line per diagnostic.
func Transcript(header string, diagnostics []Diagnostic) string {
	var sb strings.Builder
	sb.WriteString(header)
	for _, d := range diagnostics {
		sb.WriteString("\n")
		sb.WriteString(d.String())
	}
	return sb.String()
}
