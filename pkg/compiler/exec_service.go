package compiler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/amenzhinsky/go-memexec"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/stackb/memcompile/pkg/procutil"
	"github.com/stackb/memcompile/pkg/unit"
)

// StarlarkcPathEnv names the environment variable consulted for the backend
// binary when no flag is given.
const StarlarkcPathEnv procutil.EnvVar = "STARLARKC_PATH"

// Runner executes the backend once, feeding it stdin and returning its
// stdout.
type Runner func(ctx context.Context, stdin []byte) ([]byte, error)

// ExecServiceOption is a function that configures an ExecService.
type ExecServiceOption func(*ExecService) *ExecService

// WithRunner sets the runner, bypassing the backend binary.
func WithRunner(run Runner) ExecServiceOption {
	return func(s *ExecService) *ExecService {
		s.run = run
		return s
	}
}

// WithTimeout bounds a single backend invocation.
func WithTimeout(timeout time.Duration) ExecServiceOption {
	return func(s *ExecService) *ExecService {
		s.timeout = timeout
		return s
	}
}

// WithExecLogger sets the logger.
func WithExecLogger(logger zerolog.Logger) ExecServiceOption {
	return func(s *ExecService) *ExecService {
		s.logger = logger
		return s
	}
}

// ExecService is a Service whose compiler backend runs as a separate
// process.  The backend executable is held in memory and started once per
// batch.
type ExecService struct {
	backendPath string
	timeout     time.Duration
	logger      zerolog.Logger

	exe *memexec.Exec
	run Runner
}

// NewExecService creates an ExecService.  Either Start, CheckFlags or
// WithRunner must provide the backend before Compile is called.
func NewExecService(options ...ExecServiceOption) *ExecService {
	s := &ExecService{
		timeout: 30 * time.Second,
		logger:  zerolog.Nop(),
	}
	for _, opt := range options {
		s = opt(s)
	}
	return s
}

// RegisterFlags registers the backend flags.
func (s *ExecService) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&s.backendPath, "starlarkc_path", "", "filesystem path to the starlarkc compiler backend (default $STARLARKC_PATH)")
	fs.DurationVar(&s.timeout, "starlarkc_timeout", s.timeout, "maximum duration of a single backend compilation")
}

// CheckFlags validates the flags and loads the backend.  It is a no-op when
// no backend is configured.
func (s *ExecService) CheckFlags(fs *flag.FlagSet) error {
	if s.timeout <= 0 {
		return fmt.Errorf("-starlarkc_timeout must be positive: %v", s.timeout)
	}
	if s.backendPath == "" {
		if path, ok := procutil.LookupEnv(StarlarkcPathEnv); ok {
			s.backendPath = path
		}
	}
	if s.backendPath == "" {
		return nil
	}
	data, err := os.ReadFile(os.ExpandEnv(s.backendPath))
	if err != nil {
		return fmt.Errorf("reading starlarkc backend: %w", err)
	}
	return s.Start(data)
}

// Configured reports whether a backend is available.
func (s *ExecService) Configured() bool {
	return s.run != nil
}

// Start loads the backend executable into memory.
func (s *ExecService) Start(binary []byte) error {
	exe, err := memexec.New(binary)
	if err != nil {
		return status.Errorf(codes.FailedPrecondition, "loading backend: %v", err)
	}
	s.Stop()
	s.exe = exe
	s.run = s.runProcess
	return nil
}

// Stop releases the backend executable.
func (s *ExecService) Stop() {
	if s.exe != nil {
		s.exe.Close()
		s.exe = nil
		s.run = nil
	}
}

// Compile implements the Service interface.
func (s *ExecService) Compile(task *Task) error {
	if s.run == nil {
		return status.Errorf(codes.FailedPrecondition, "starlarkc backend not started")
	}
	t1 := time.Now()

	in, err := json.Marshal(NewRequest(task))
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "request error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	out, err := s.run(ctx, in)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return status.Errorf(codes.DeadlineExceeded, "backend did not finish within %v", s.timeout)
		}
		return status.Errorf(codes.Internal, "backend error: %v", err)
	}

	var resp Response
	if err := json.Unmarshal(out, &resp); err != nil {
		return status.Errorf(codes.Internal, "response body error: %v\n%s", err, string(out))
	}

	for _, d := range resp.Diagnostics {
		task.Diagnostics.Report(d)
	}
	for _, src := range task.Units {
		data, ok := resp.Outputs[src.Name()]
		if !ok {
			continue
		}
		output, err := task.FileManager.GetOutput(src.Name(), unit.Compiled)
		if err != nil {
			return status.Errorf(codes.Internal, "output %s: %v", src.Name(), err)
		}
		w, err := output.Writer()
		if err != nil {
			return status.Errorf(codes.Internal, "output %s: %v", src.Name(), err)
		}
		if _, err := w.Write(data); err != nil {
			return status.Errorf(codes.Internal, "output %s: %v", src.Name(), err)
		}
	}

	s.logger.Debug().
		Int("units", len(task.Units)).
		Int("outputs", len(resp.Outputs)).
		Int("diagnostics", len(resp.Diagnostics)).
		Dur("took", time.Since(t1)).
		Msg("backend compile")

	return nil
}

func (s *ExecService) runProcess(ctx context.Context, stdin []byte) ([]byte, error) {
	cmd := s.exe.Command()
	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(stdin)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting backend: %w", err)
	}
	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("backend exited with code %d: %w\n%s", procutil.CmdExitCode(cmd, err), err, stderr.String())
		}
		return stdout.Bytes(), nil
	case <-ctx.Done():
		cmd.Process.Kill()
		<-done
		return nil, ctx.Err()
	}
}
