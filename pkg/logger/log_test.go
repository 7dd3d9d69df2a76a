package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	for name, tc := range map[string]struct {
		in      string
		want    Format
		wantErr bool
	}{
		"empty":   {in: "", want: Console},
		"console": {in: "console", want: Console},
		"json":    {in: "JSON", want: JSON},
		"bogus":   {in: "xml", wantErr: true},
	} {
		t.Run(name, func(t *testing.T) {
			got, err := ParseFormat(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNewJSON(t *testing.T) {
	t.Setenv(string(DebugEnv), "")
	var buf bytes.Buffer
	log, err := New("warn", JSON, &buf)
	require.NoError(t, err)

	log.Info().Msg("hidden")
	log.Warn().Str("type", "A").Msg("shown")

	var event map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &event))
	assert.Equal(t, "shown", event["message"])
	assert.Equal(t, "A", event["type"])
	assert.Equal(t, "warn", event["level"])
}

func TestNewConsole(t *testing.T) {
	t.Setenv(string(DebugEnv), "")
	var buf bytes.Buffer
	log, err := New("", Console, &buf)
	require.NoError(t, err)
	assert.Equal(t, zerolog.InfoLevel, log.GetLevel())

	log.Info().Msg("hello")
	assert.Contains(t, buf.String(), "hello")
	assert.NotContains(t, buf.String(), "\x1b[")
}

func TestNewDebugEnv(t *testing.T) {
	t.Setenv(string(DebugEnv), "true")
	log, err := New("error", Console, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, log.GetLevel())
}

func TestNewInvalidLevel(t *testing.T) {
	_, err := New("loud", Console, &bytes.Buffer{})
	assert.Error(t, err)
}
