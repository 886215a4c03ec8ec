package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/mattn/go-shellwords"
)

var (
	// ErrEmptyCommand is returned when the argument vector is empty.
	ErrEmptyCommand = errors.New("command cannot be empty")
	// ErrInvalidWorkdir is returned when the working directory is missing or not a directory.
	ErrInvalidWorkdir = errors.New("invalid workdir")
	// ErrShellOperator is returned by Split for pipes, redirects and command lists.
	ErrShellOperator = errors.New("shell operators are not supported; pass an argv array or wrap the command in sh -c")
)

// DefaultTimeout is used when neither the Spec nor the Runner set one.
const DefaultTimeout = 30 * time.Second

// waitDelay bounds how long Run waits for output pipes after the child
// exits or is killed.
const waitDelay = time.Second

// Spec describes a single command execution.
type Spec struct {
	Argv    []string
	Workdir string
	Timeout time.Duration
	// Env is the child's environment as KEY=VALUE entries. A nil Env means
	// the server's own environment filtered through DenyPolicy.
	Env []string
}

// Result is the outcome of a command that was started.
type Result struct {
	OK       bool   `json:"ok"`
	ExitCode *int   `json:"exitCode"`
	TimedOut bool   `json:"timedOut"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

// Runner executes commands with a wall-clock timeout and bounded output.
type Runner struct {
	DefaultTimeout time.Duration
	OutputLimit    int
}

// NewRunner creates a Runner with the given default timeout and the
// standard output budget.
func NewRunner(defaultTimeout time.Duration) *Runner {
	return &Runner{DefaultTimeout: defaultTimeout, OutputLimit: DefaultOutputLimit}
}

// Split tokenizes a command line using shell word rules. Quotes and
// backslash escapes are honored; variables, globs and substitutions are not
// expanded.
func Split(line string) ([]string, error) {
	p := shellwords.NewParser()
	p.ParseEnv = false
	p.ParseBacktick = false
	args, err := p.Parse(line)
	if err != nil {
		return nil, fmt.Errorf("failed to parse command: %w", err)
	}
	if p.Position != -1 {
		return nil, ErrShellOperator
	}
	if len(args) == 0 {
		return nil, ErrEmptyCommand
	}
	return args, nil
}

// Run starts spec.Argv in spec.Workdir and blocks until it exits or the
// timeout elapses. A timeout is not an error: the returned Result has
// TimedOut set and keeps the output captured so far. Errors are reserved
// for commands that could not be started or were canceled by ctx.
func (r *Runner) Run(ctx context.Context, spec Spec) (Result, error) {
	if len(spec.Argv) == 0 || spec.Argv[0] == "" {
		return Result{}, ErrEmptyCommand
	}
	info, err := os.Stat(spec.Workdir)
	if err != nil || !info.IsDir() {
		return Result{}, fmt.Errorf("%w: %s", ErrInvalidWorkdir, spec.Workdir)
	}

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = r.DefaultTimeout
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	limit := r.OutputLimit
	if limit <= 0 {
		limit = DefaultOutputLimit
	}
	env := spec.Env
	if env == nil {
		env = FilterEnv(os.Environ())
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stdout := newCappedBuffer(limit)
	stderr := newCappedBuffer(limit)

	cmd := exec.CommandContext(runCtx, spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Workdir
	cmd.Env = env
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay
	isolateProcessGroup(cmd)

	start := time.Now()
	runErr := cmd.Run()

	res := Result{
		Stdout: truncateChars(stdout.String(), limit),
		Stderr: truncateChars(stderr.String(), limit),
	}
	timedOut := runErr != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil

	slog.Debug("Command finished",
		"argv0", spec.Argv[0],
		"workdir", spec.Workdir,
		"duration", time.Since(start),
		"timedOut", timedOut,
	)

	switch {
	case timedOut:
		res.TimedOut = true
		if res.Stderr == "" {
			res.Stderr = truncateChars(fmt.Sprintf("Timed out after %ds", int(timeout.Seconds())), limit)
		}
		return res, nil
	case ctx.Err() != nil:
		return res, fmt.Errorf("command canceled: %w", ctx.Err())
	case runErr == nil:
		code := 0
		res.ExitCode = &code
		res.OK = true
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		code := exitErr.ExitCode()
		res.ExitCode = &code
		return res, nil
	}
	if errors.Is(runErr, exec.ErrWaitDelay) && cmd.ProcessState != nil {
		// The child exited but a descendant kept the output pipes open.
		code := cmd.ProcessState.ExitCode()
		res.ExitCode = &code
		res.OK = code == 0
		return res, nil
	}
	return Result{}, fmt.Errorf("failed to run %s: %w", spec.Argv[0], runErr)
}
