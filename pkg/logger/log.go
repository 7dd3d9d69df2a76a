// Package logger builds the zerolog loggers used by the memcompile tools.
package logger

import (
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/stackb/memcompile/pkg/procutil"
)

// DebugEnv forces debug level logging when set to a true value.
const DebugEnv procutil.EnvVar = "MEMCOMPILE_DEBUG"

// Format selects how log events are rendered.
type Format string

const (
	// Console renders human-readable lines without color.
	Console Format = "console"
	// JSON renders one JSON object per event.
	JSON Format = "json"
)

// ParseFormat returns the Format for the given name.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(name)); f {
	case Console, JSON:
		return f, nil
	case "":
		return Console, nil
	default:
		return "", fmt.Errorf("unknown log format %q (want %q or %q)", name, Console, JSON)
	}
}

// New creates a logger writing to w. An empty level means "info".
func New(level string, format Format, w io.Writer) (zerolog.Logger, error) {
	lvl := zerolog.InfoLevel
	if level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(level))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", level, err)
		}
		lvl = parsed
	}
	if procutil.LookupBoolEnv(DebugEnv, false) && lvl > zerolog.DebugLevel {
		lvl = zerolog.DebugLevel
	}

	switch format {
	case JSON:
		return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
	case Console, "":
		writer := zerolog.ConsoleWriter{Out: w, NoColor: true}
		writer.FormatTimestamp = func(i interface{}) string {
			return ""
		}
		return zerolog.New(writer).Level(lvl), nil
	default:
		return zerolog.Nop(), fmt.Errorf("unknown log format %q", format)
	}
}
