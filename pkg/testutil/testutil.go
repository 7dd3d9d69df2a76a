package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

// NewTestLogger returns a debug level logger that forwards events to t.Log.
func NewTestLogger(t testing.TB) zerolog.Logger {
	return zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.DebugLevel)
}

// WriteFiles writes files under dir, keyed by slash-separated relative path,
// creating parent directories as needed.
func WriteFiles(t testing.TB, dir string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		filename := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(filename), os.ModePerm); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filename, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

// MustPrepareTestFiles writes files into a fresh temporary directory and
// returns it.
func MustPrepareTestFiles(t testing.TB, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	WriteFiles(t, dir, files)
	return dir
}
