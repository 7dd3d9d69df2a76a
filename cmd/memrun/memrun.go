// memrun compiles a set of Starlark files in memory and calls a function
// of one of the resulting types.
//
//	memrun -root src -src '**/*.star' -call org.mdkt.Greeter.greet name=world
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pcj/mobyprogress"
	"github.com/rs/zerolog"

	"github.com/stackb/memcompile/pkg/collections"
	"github.com/stackb/memcompile/pkg/compiler"
	"github.com/stackb/memcompile/pkg/filemanager"
	"github.com/stackb/memcompile/pkg/logger"
	"github.com/stackb/memcompile/pkg/memcompile"
	"github.com/stackb/memcompile/pkg/starlarkeval"
	"github.com/stackb/memcompile/pkg/unit"
)

type config struct {
	root           string
	srcs           collections.StringSlice
	call           string
	allow          string
	options        []string
	ignoreWarnings bool
	searchPath     string
	logLevel       string
	logFormat      string
	progress       bool
	args           []string

	backend *compiler.ExecService
}

func main() {
	log.SetPrefix("memrun: ")
	log.SetFlags(0) // don't print timestamps

	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}
	defer cfg.backend.Stop()

	if err := run(cfg, os.Stdout, os.Stderr); err != nil {
		log.Fatal(err)
	}
}

func parseFlags(args []string) (*config, error) {
	cfg := &config{backend: compiler.NewExecService()}

	fs := flag.NewFlagSet("memrun", flag.ContinueOnError)
	fs.StringVar(&cfg.root, "root", ".", "directory that unit names are relative to")
	fs.Var(&cfg.srcs, "src", "doublestar glob of source files under -root (repeatable)")
	fs.StringVar(&cfg.call, "call", "", "function to call after compiling, as UNIT.FUNCTION")
	fs.StringVar(&cfg.allow, "Xallow", "", "comma separated relaxations passed as -Xallow:LIST")
	fs.Func("option", "additional compiler option, passed verbatim (repeatable)", func(v string) error {
		cfg.options = append(cfg.options, v)
		return nil
	})
	fs.BoolVar(&cfg.ignoreWarnings, "ignore_warnings", false, "drop warnings from the compilation result")
	fs.StringVar(&cfg.searchPath, "search_path", "", "list of directories or .zip files with compiled units")
	fs.StringVar(&cfg.logLevel, "log_level", "warn", "log level")
	fs.StringVar(&cfg.logFormat, "log_format", string(logger.Console), "log format (console or json)")
	fs.BoolVar(&cfg.progress, "progress", false, "log batch progress")
	cfg.backend.RegisterFlags(fs)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: memrun OPTIONS [ARGS...]\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if len(cfg.srcs) == 0 {
		return nil, fmt.Errorf("at least one -src is required")
	}
	if err := cfg.backend.CheckFlags(fs); err != nil {
		return nil, err
	}
	cfg.args = fs.Args()
	return cfg, nil
}

func run(cfg *config, stdout, stderr io.Writer) error {
	format, err := logger.ParseFormat(cfg.logFormat)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.logLevel, format, stderr)
	if err != nil {
		return err
	}

	files, err := collectSources(cfg.root, cfg.srcs)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no source files matched %v under %s", []string(cfg.srcs), cfg.root)
	}

	c, err := newCompiler(cfg, log)
	if err != nil {
		return err
	}
	for _, name := range sortedKeys(files) {
		c.AddSource(name, files[name])
	}

	result, err := c.Compile()
	if err != nil {
		return err
	}
	if diags := result.Diagnostics(); len(diags) > 0 {
		for _, d := range diags {
			fmt.Fprintln(stderr, d.String())
		}
	}
	if _, err := result.CheckNoErrors(); err != nil {
		return fmt.Errorf("compilation failed")
	}

	if cfg.call == "" {
		for _, name := range result.Names() {
			fmt.Fprintln(stdout, name)
		}
		return nil
	}
	return call(result, cfg.call, cfg.args, stdout, stderr)
}

func newCompiler(cfg *config, log zerolog.Logger) (*memcompile.Compiler, error) {
	opts := []memcompile.Option{memcompile.WithLogger(log)}
	if cfg.backend.Configured() {
		opts = append(opts, memcompile.WithService(cfg.backend))
	}
	if cfg.progress {
		opts = append(opts, memcompile.WithProgress(&logProgress{log}))
	}
	if cfg.searchPath != "" {
		fm, err := filemanager.ParseSearchPath(cfg.searchPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, memcompile.WithFileManager(fm))
	}

	c := memcompile.New(opts...)
	if cfg.allow != "" {
		c.UseOptions(append([]string{"-Xallow:" + cfg.allow}, cfg.options...)...)
	} else if len(cfg.options) > 0 {
		c.UseOptions(cfg.options...)
	}
	if cfg.ignoreWarnings {
		c.IgnoreWarnings()
	}
	return c, nil
}

func call(result *memcompile.Result, target string, args []string, stdout, stderr io.Writer) error {
	i := strings.LastIndexByte(target, '.')
	if i <= 0 || i == len(target)-1 {
		return fmt.Errorf("-call must be UNIT.FUNCTION: %q", target)
	}
	name, member := target[:i], target[i+1:]

	types, err := result.ClassMap()
	typ, ok := types[name]
	if !ok {
		if err != nil {
			return err
		}
		return fmt.Errorf("unit %q was not compiled (have: %s)", name, strings.Join(result.Names(), ", "))
	}

	interp := starlarkeval.NewInterpreter(func(format string, args ...interface{}) {
		fmt.Fprintf(stderr, format+"\n", args...)
	})
	value, err := interp.Invoke(typ, member, args)
	if err != nil {
		if evalErr := interp.LastError(); evalErr != nil {
			return fmt.Errorf("%s", evalErr.Backtrace())
		}
		return err
	}
	fmt.Fprintln(stdout, starlarkeval.FormatValue(value))
	return nil
}

// logProgress writes progress updates as log events.
type logProgress struct {
	log zerolog.Logger
}

func (p *logProgress) WriteProgress(prog mobyprogress.Progress) error {
	p.log.Info().
		Str("id", prog.ID).
		Str("action", prog.Action).
		Int64("current", prog.Current).
		Int64("total", prog.Total).
		Msg(prog.Units)
	return nil
}

// collectSources reads the files matched by the patterns under root, keyed
// by unit name.
func collectSources(root string, patterns []string) (map[string]string, error) {
	files := make(map[string]string)
	for _, pattern := range patterns {
		matches, err := doublestar.Glob(os.DirFS(root), pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("bad -src pattern %q: %w", pattern, err)
		}
		for _, rel := range matches {
			data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
			if err != nil {
				return nil, err
			}
			files[unit.NameOf(rel)] = string(data)
		}
	}
	return files, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
