package memcompile

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/stackb/memcompile/pkg/loader"
)

// compileBytes compiles a source directly, bypassing any compiler service.
func compileBytes(t *testing.T, name, src string) []byte {
	t.Helper()
	_, prog, err := starlark.SourceProgramOptions(&syntax.FileOptions{}, name, src, loader.Predeclared().Has)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, prog.Write(&buf))
	return buf.Bytes()
}
