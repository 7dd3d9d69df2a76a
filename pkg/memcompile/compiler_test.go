package memcompile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pcj/mobyprogress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"

	"github.com/stackb/memcompile/pkg/compiler"
	"github.com/stackb/memcompile/pkg/compiler/mocks"
	"github.com/stackb/memcompile/pkg/diagnostic"
	"github.com/stackb/memcompile/pkg/filemanager"
	"github.com/stackb/memcompile/pkg/loader"
	"github.com/stackb/memcompile/pkg/testutil"
)

func readTestdata(t *testing.T, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func TestCompileWhenTypical(t *testing.T) {
	helloClass, err := New(WithLogger(testutil.NewTestLogger(t))).CompileSource("org.mdkt.HelloClass", readTestdata(t, "compile_typical/HelloClass.star"))
	require.NoError(t, err)
	require.NotNil(t, helloClass)

	assert.Len(t, helloClass.Members(), 1)
	v, err := helloClass.Call("hello", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, starlark.String("hello"), v)
}

func TestCompileAllWhenTypical(t *testing.T) {
	compiled, err := New().
		AddSource("A", readTestdata(t, "compile_all_typical/A.star")).
		AddSource("B", readTestdata(t, "compile_all_typical/B.star")).
		CompileAll()
	require.NoError(t, err)

	require.NotNil(t, compiled["A"])
	require.NotNil(t, compiled["B"])

	v, err := compiled["A"].Call("b", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "B!", string(v.(starlark.String)))
	assert.Same(t, compiled["A"].Loader(), compiled["B"].Loader())
}

func TestCompileWhenError(t *testing.T) {
	_, err := New().CompileSource("org.mdkt.HelloClass", readTestdata(t, "compile_error/HelloClass.star"))

	var compilationErr *CompilationError
	require.ErrorAs(t, err, &compilationErr)
	assert.Contains(t, err.Error(), "Unable to compile the source")
	require.NotEmpty(t, compilationErr.Diagnostics)
	assert.Equal(t, diagnostic.Error, compilationErr.Diagnostics[0].Kind)
	assert.Contains(t, err.Error(), "[kind=ERROR, source=org.mdkt.HelloClass, line=")
}

func TestCompileWhenFailOnWarnings(t *testing.T) {
	_, err := New().CompileSource("org.mdkt.HelloClass", readTestdata(t, "fail_on_warnings/HelloClass.star"))

	var compilationErr *CompilationError
	require.ErrorAs(t, err, &compilationErr)
	for _, d := range compilationErr.Diagnostics {
		assert.True(t, d.Kind.IsWarning(), "unexpected %v", d)
	}
}

func TestCompileWhenIgnoreWarnings(t *testing.T) {
	helloClass, err := New().IgnoreWarnings().
		CompileSource("org.mdkt.HelloClass", readTestdata(t, "ignore_warnings/HelloClass.star"))
	require.NoError(t, err)

	v, err := helloClass.Call("hello", nil, nil)
	require.NoError(t, err)
	list, ok := v.(*starlark.List)
	require.True(t, ok, "got %s", v.Type())
	assert.Zero(t, list.Len())
}

func TestCompileWhenWarningsAndErrors(t *testing.T) {
	c := New().IgnoreWarnings()
	result, err := c.AddSource("org.mdkt.HelloClass", readTestdata(t, "warnings_and_errors/HelloClass.star")).Compile()
	require.NoError(t, err)

	assert.True(t, result.HasWarnings())
	assert.True(t, result.HasErrors())
	assert.False(t, result.CompilationSucceeded())

	_, err = result.CheckNoErrors()
	var compilationErr *CompilationError
	require.ErrorAs(t, err, &compilationErr)
	assert.Contains(t, err.Error(), "kind=WARNING")
	assert.Contains(t, err.Error(), "kind=ERROR")

	_, err = result.ClassMap()
	assert.ErrorIs(t, err, loader.ErrTypeNotFound)
}

func TestCompileWhenTypicalUpdateType(t *testing.T) {
	old, err := New().CompileSource("org.mdkt.HelloClass", readTestdata(t, "update_type/HelloClass_v1.star"))
	require.NoError(t, err)

	updated, err := New(WithParentLoader(old.Loader())).
		CompileSource("org.mdkt.HelloClass", readTestdata(t, "update_type/HelloClass_v2.star"))
	require.NoError(t, err)

	assert.NotSame(t, old, updated)
	assert.NotEqual(t, old.ID(), updated.ID())
	assert.Same(t, old.Loader(), updated.Loader().Parent())

	oldResult, err := old.Call("hello", nil, nil)
	require.NoError(t, err)
	newResult, err := updated.Call("hello", nil, nil)
	require.NoError(t, err)
	assert.NotEqual(t, oldResult, newResult)
	assert.Equal(t, starlark.String("hello v2"), newResult)
}

func TestCompileSameSourceUnderParentLoader(t *testing.T) {
	src := readTestdata(t, "update_type/HelloClass_v1.star")
	first, err := New().CompileSource("org.mdkt.HelloClass", src)
	require.NoError(t, err)

	second, err := New(WithParentLoader(first.Loader())).CompileSource("org.mdkt.HelloClass", src)
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.NotEqual(t, first.ID(), second.ID())
	assert.Equal(t, first.Code(), second.Code())
	assert.Same(t, first.Loader(), second.Loader().Parent())
}

// closeCounter counts Close calls on a file manager.
type closeCounter struct {
	filemanager.FileManager
	closed int
}

func (c *closeCounter) Close() error {
	c.closed++
	return c.FileManager.Close()
}

func TestCompileClosesBatchFileManager(t *testing.T) {
	t.Run("default disk file manager", func(t *testing.T) {
		var opened []*closeCounter
		orig := newDiskFileManager
		newDiskFileManager = func() (filemanager.FileManager, error) {
			disk, err := filemanager.NewDiskFileManager()
			if err != nil {
				return nil, err
			}
			fm := &closeCounter{FileManager: disk}
			opened = append(opened, fm)
			return fm, nil
		}
		defer func() { newDiskFileManager = orig }()

		c := New()
		_, err := c.CompileSource("A", "a = 1\n")
		require.NoError(t, err)
		_, err = c.CompileSource("B", "b = 1\n")
		require.NoError(t, err)

		require.Len(t, opened, 2)
		for _, fm := range opened {
			assert.Equal(t, 1, fm.closed)
		}
	})

	t.Run("caller file manager stays open", func(t *testing.T) {
		disk, err := filemanager.NewDiskFileManager()
		require.NoError(t, err)
		fm := &closeCounter{FileManager: disk}
		defer fm.Close()

		c := New(WithFileManager(fm))
		_, err = c.CompileSource("A", "a = 1\n")
		require.NoError(t, err)
		_, err = c.CompileSource("B", "b = 1\n")
		require.NoError(t, err)

		assert.Equal(t, 0, fm.closed)
	})
}

func TestCompileRecompilesPendingSources(t *testing.T) {
	c := New()
	first, err := c.CompileSource("A", "def version():\n    return 1\n")
	require.NoError(t, err)
	firstLoader := c.Loader()

	c.AddSource("A", "def version():\n    return 2\n")
	c.UseParentLoader(firstLoader)
	second, err := c.CompileAll()
	require.NoError(t, err)

	assert.NotSame(t, firstLoader, c.Loader())
	assert.NotEqual(t, first.ID(), second["A"].ID())
	v, err := second["A"].Call("version", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, starlark.MakeInt(2), v)
}

func TestCompileErrors(t *testing.T) {
	_, err := New().Compile()
	assert.ErrorIs(t, err, ErrNoSource)

	c := New(WithOverwritePolicy(Reject))
	c.AddSource("A", "a = 1").AddSource("A", "a = 2")
	_, err = c.Compile()
	assert.ErrorIs(t, err, ErrDuplicateSubmission)

	// the duplicate is reported once and the first source is kept
	types, err := c.CompileAll()
	require.NoError(t, err)
	v, ok := types["A"].Member("a")
	require.True(t, ok)
	assert.Equal(t, starlark.MakeInt(1), v)

	boom := errors.New("boom")
	_, err = New(WithService(compiler.ServiceFunc(func(task *compiler.Task) error {
		return boom
	}))).AddSource("A", "").Compile()
	assert.ErrorIs(t, err, boom)
}

func TestCompileWithMockService(t *testing.T) {
	code := func(name string) []byte {
		return compileBytes(t, name, "name = "+`"`+name+`"`)
	}

	for name, tc := range map[string]struct {
		diagnostics    []diagnostic.Diagnostic
		ignoreWarnings bool
		wantWarnings   bool
		wantErrors     bool
		wantSucceeded  bool
	}{
		"clean": {
			wantSucceeded: true,
		},
		"note is a warning": {
			diagnostics:  []diagnostic.Diagnostic{{Kind: diagnostic.Note, Message: "n"}},
			wantWarnings: true,
		},
		"mandatory warning ignored": {
			diagnostics:    []diagnostic.Diagnostic{{Kind: diagnostic.MandatoryWarning, Message: "m"}},
			ignoreWarnings: true,
			wantWarnings:   true,
			wantSucceeded:  true,
		},
		"other is an error": {
			diagnostics:    []diagnostic.Diagnostic{{Kind: diagnostic.Other, Message: "o"}},
			ignoreWarnings: true,
			wantErrors:     true,
		},
		"unknown kind is an error": {
			diagnostics:    []diagnostic.Diagnostic{{Kind: diagnostic.Kind(42), Message: "?"}},
			ignoreWarnings: true,
			wantErrors:     true,
		},
	} {
		t.Run(name, func(t *testing.T) {
			capturer := mocks.NewTaskCapturer(t, mocks.WriteEach(code, tc.diagnostics...))
			c := New(WithService(capturer.Service)).
				UseOptions("-Xallow:all", "-custom").
				AddSource("pkg.A", "ignored").
				AddSource("pkg.B", "ignored")
			if tc.ignoreWarnings {
				c.IgnoreWarnings()
			}

			result, err := c.Compile()
			require.NoError(t, err)

			require.Len(t, capturer.Got, 1)
			task := capturer.Got[0]
			if diff := cmp.Diff([]string{"-Xallow:all", "-custom"}, task.Options); diff != "" {
				t.Errorf("options (-want +got):\n%s", diff)
			}
			require.Len(t, task.Units, 2)
			assert.Equal(t, "pkg.A", task.Units[0].Name())

			assert.Equal(t, tc.wantWarnings, result.HasWarnings())
			assert.Equal(t, tc.wantErrors, result.HasErrors())
			assert.Equal(t, tc.wantSucceeded, result.CompilationSucceeded())
			assert.Equal(t, []string{"pkg.A", "pkg.B"}, result.Names())
			assert.Same(t, c.Loader(), result.Loader())

			types, err := result.ClassMap()
			require.NoError(t, err)
			v, ok := types["pkg.B"].Member("name")
			require.True(t, ok)
			assert.Equal(t, starlark.String("pkg.B"), v)
		})
	}
}

func TestResultDiagnosticsIsCopy(t *testing.T) {
	warning := diagnostic.Diagnostic{Kind: diagnostic.Warning, Source: "A", Line: 2, Message: "w"}
	capturer := mocks.NewTaskCapturer(t, mocks.WriteEach(func(name string) []byte {
		return compileBytes(t, name, "x = 1")
	}, warning))

	result, err := New(WithService(capturer.Service)).AddSource("A", "").Compile()
	require.NoError(t, err)

	first := result.Diagnostics()
	first[0].Message = "changed"
	second := result.Diagnostics()
	assert.Equal(t, []diagnostic.Diagnostic{warning}, second)

	_, err = result.CheckNoErrors()
	assert.EqualError(t, err, "Unable to compile the source\n[kind=WARNING, source=A, line=2, message=w]")
}

func TestCompileMissingOutput(t *testing.T) {
	capturer := mocks.NewTaskCapturer(t, func(task *compiler.Task) error {
		return nil
	})
	result, err := New(WithService(capturer.Service)).AddSource("A", "").Compile()
	require.NoError(t, err)
	assert.True(t, result.CompilationSucceeded())

	types, err := result.ClassMap()
	assert.Empty(t, types)
	var notFound *loader.TypeNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "A", notFound.Name)
}

func TestLoadCompiledBytes(t *testing.T) {
	c := New()
	typ, err := c.LoadCompiledBytes("A", compileBytes(t, "A", "def f():\n    return 42\n"))
	require.NoError(t, err)
	v, err := typ.Call("f", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, starlark.MakeInt(42), v)
	assert.Same(t, loader.System(), typ.Loader().Parent())
	assert.Nil(t, c.Loader())

	types, err := c.LoadCompiledBytesMap(map[string][]byte{
		"A": compileBytes(t, "A", "load(\"B\", \"b\")\na = b + 1\n"),
		"B": compileBytes(t, "B", "b = 1\n"),
	})
	require.NoError(t, err)
	v, _ = types["A"].Member("a")
	assert.Equal(t, starlark.MakeInt(2), v)
	assert.Same(t, types["A"].Loader(), types["B"].Loader())

	_, err = c.LoadCompiledBytes("bad", []byte("garbage"))
	assert.ErrorIs(t, err, loader.ErrTypeNotFound)
}

func TestCompileWithSearchPath(t *testing.T) {
	greeter, err := New().CompileSource("org.mdkt.Greeter", readTestdata(t, "search_path/org/mdkt/Greeter.star"))
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "org", "mdkt"), os.ModePerm))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "org", "mdkt", "Greeter.starc"), greeter.Code(), 0644))

	disk, err := filemanager.NewDiskFileManager(dir)
	require.NoError(t, err)
	defer disk.Close()

	app, err := New(WithFileManager(disk)).CompileSource("app", `
load("org.mdkt.Greeter", "greet")

def main():
    return greet("world")
`)
	require.NoError(t, err)
	v, err := app.Call("main", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, starlark.String("hello, world"), v)

	loaded, ok := app.Loader().FindLoadedType("org.mdkt.Greeter")
	require.True(t, ok)
	assert.NotSame(t, greeter, loaded)

	_, err = New(WithFileManager(disk)).CompileSource("broken", "load(\"org.mdkt.Missing\", \"x\")\ny = x\n")
	assert.ErrorContains(t, err, `cannot find module "org.mdkt.Missing" (available: org.mdkt.Greeter)`)
}

type progressRecorder struct {
	updates []mobyprogress.Progress
}

func (r *progressRecorder) WriteProgress(p mobyprogress.Progress) error {
	r.updates = append(r.updates, p)
	return nil
}

func TestCompileWithProgress(t *testing.T) {
	rec := &progressRecorder{}
	_, err := New(WithProgress(rec)).
		AddSource("A", "a = 1").
		AddSource("B", "b = 2").
		Compile()
	require.NoError(t, err)

	require.Len(t, rec.updates, 2)
	first, last := rec.updates[0], rec.updates[1]
	assert.Equal(t, "batch-1", first.ID)
	assert.Equal(t, int64(0), first.Current)
	assert.Equal(t, int64(2), first.Total)
	assert.False(t, first.LastUpdate)
	assert.Equal(t, int64(2), last.Current)
	assert.True(t, last.LastUpdate)
}
