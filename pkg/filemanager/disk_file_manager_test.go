package filemanager

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackb/memcompile/pkg/testutil"
	"github.com/stackb/memcompile/pkg/unit"
)

func writeZip(t *testing.T, filename string, files map[string]string) {
	t.Helper()
	f, err := os.Create(filename)
	require.NoError(t, err)
	defer f.Close()
	w := zip.NewWriter(f)
	for rel, content := range files {
		fw, err := w.Create(rel)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
}

func fileNames(files []unit.File) []string {
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Kind().String() + ":" + f.Name()
	}
	return names
}

func TestDiskFileManagerGetInput(t *testing.T) {
	tmp := t.TempDir()
	first := filepath.Join(tmp, "first")
	second := filepath.Join(tmp, "second")
	archive := filepath.Join(tmp, "lib.zip")

	testutil.WriteFiles(t, first, map[string]string{
		"org/mdkt/A.star": "first A",
	})
	testutil.WriteFiles(t, second, map[string]string{
		"org/mdkt/A.star":  "second A",
		"org/mdkt/B.starc": "compiled B",
	})
	writeZip(t, archive, map[string]string{
		"util/strings.star": "zipped",
	})

	m, err := NewDiskFileManager(first, second, archive)
	require.NoError(t, err)
	defer m.Close()

	for name, tc := range map[string]struct {
		unit    string
		kind    unit.Kind
		want    string
		wantErr error
	}{
		"first entry wins": {
			unit: "org.mdkt.A",
			kind: unit.Source,
			want: "first A",
		},
		"compiled": {
			unit: "org.mdkt.B",
			kind: unit.Compiled,
			want: "compiled B",
		},
		"wrong kind": {
			unit:    "org.mdkt.B",
			kind:    unit.Source,
			wantErr: ErrNotFound,
		},
		"zip": {
			unit: "util.strings",
			kind: unit.Source,
			want: "zipped",
		},
		"missing": {
			unit:    "org.mdkt.C",
			kind:    unit.Source,
			wantErr: ErrNotFound,
		},
	} {
		t.Run(name, func(t *testing.T) {
			in, err := m.GetInput(tc.unit, tc.kind)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.unit, in.Name())
			assert.Equal(t, tc.kind, in.Kind())
			content, err := in.Content()
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(content))
		})
	}
}

func TestDiskFileManagerMounts(t *testing.T) {
	tmp := t.TempDir()
	outer := filepath.Join(tmp, "outer")
	inner := filepath.Join(tmp, "inner")
	testutil.WriteFiles(t, outer, map[string]string{
		"util.star":     "outer util",
		"deep/mod.star": "outer deep",
	})
	testutil.WriteFiles(t, inner, map[string]string{
		"mod.star": "inner deep",
	})

	m, err := NewDiskFileManager()
	require.NoError(t, err)
	defer m.Close()
	require.NoError(t, m.Mount("com.acme", outer))
	require.NoError(t, m.Mount("com.acme.deep", inner))

	read := func(name string) string {
		in, err := m.GetInput(name, unit.Source)
		require.NoError(t, err)
		content, err := in.Content()
		require.NoError(t, err)
		return string(content)
	}
	assert.Equal(t, "outer util", read("com.acme.util"))
	assert.Equal(t, "inner deep", read("com.acme.deep.mod"))

	_, err = m.GetInput("com.other", unit.Source)
	assert.ErrorIs(t, err, ErrNotFound)

	files, err := m.List("com", true)
	require.NoError(t, err)
	if diff := cmp.Diff([]string{
		"SOURCE:com.acme.deep.mod",
		"SOURCE:com.acme.util",
	}, fileNames(files)); diff != "" {
		t.Errorf("List (-want +got):\n%s", diff)
	}
}

func TestDiskFileManagerList(t *testing.T) {
	tmp := t.TempDir()
	testutil.WriteFiles(t, tmp, map[string]string{
		"a/A.star":    "",
		"a/A.starc":   "",
		"a/b/B.star":  "",
		"a/notes.txt": "",
		"top.star":    "",
	})

	m, err := NewDiskFileManager(tmp)
	require.NoError(t, err)
	defer m.Close()

	for name, tc := range map[string]struct {
		pkg     string
		recurse bool
		want    []string
	}{
		"root": {
			want: []string{"SOURCE:top"},
		},
		"root recursive": {
			recurse: true,
			want:    []string{"SOURCE:a.A", "COMPILED:a.A", "SOURCE:a.b.B", "SOURCE:top"},
		},
		"package": {
			pkg:  "a",
			want: []string{"SOURCE:a.A", "COMPILED:a.A"},
		},
		"package recursive": {
			pkg:     "a",
			recurse: true,
			want:    []string{"SOURCE:a.A", "COMPILED:a.A", "SOURCE:a.b.B"},
		},
		"missing package": {
			pkg: "zzz",
		},
	} {
		t.Run(name, func(t *testing.T) {
			files, err := m.List(tc.pkg, tc.recurse)
			require.NoError(t, err)
			if diff := cmp.Diff(tc.want, fileNames(files), cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
		})
	}
}

func TestDiskFileManagerListMetaPackage(t *testing.T) {
	tmp := t.TempDir()
	testutil.WriteFiles(t, tmp, map[string]string{
		"x{y}/C.star":  "",
		"xy/D.star":    "",
		"a[1]/E.starc": "",
		"a1/F.star":    "",
	})

	m, err := NewDiskFileManager(tmp)
	require.NoError(t, err)
	defer m.Close()

	for name, tc := range map[string]struct {
		pkg  string
		want []string
	}{
		"braces":   {pkg: "x{y}", want: []string{"SOURCE:x{y}.C"}},
		"brackets": {pkg: "a[1]", want: []string{"COMPILED:a[1].E"}},
	} {
		t.Run(name, func(t *testing.T) {
			files, err := m.List(tc.pkg, false)
			require.NoError(t, err)
			if diff := cmp.Diff(tc.want, fileNames(files)); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
		})
	}
}

func TestListPattern(t *testing.T) {
	assert.Equal(t, "*.{star,starc}", listPattern("", false))
	assert.Equal(t, "a/b/**/*.{star,starc}", listPattern("a/b", true))
	assert.Equal(t, `x\{y\}/*.{star,starc}`, listPattern("x{y}", false))
}

func TestDiskFileManagerReadOnly(t *testing.T) {
	m, err := NewDiskFileManager()
	require.NoError(t, err)
	_, err = m.GetOutput("A", unit.Compiled)
	assert.ErrorIs(t, err, ErrReadOnly)
	_, err = m.GetInput("A", unit.Source)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, m.Close())
}

func TestNewDiskFileManagerErrors(t *testing.T) {
	tmp := t.TempDir()
	testutil.WriteFiles(t, tmp, map[string]string{"file.txt": ""})

	_, err := NewDiskFileManager(filepath.Join(tmp, "file.txt"))
	assert.Error(t, err)
	_, err = NewDiskFileManager(filepath.Join(tmp, "missing"))
	assert.Error(t, err)
	_, err = NewDiskFileManager(filepath.Join(tmp, "missing.zip"))
	assert.Error(t, err)
}
