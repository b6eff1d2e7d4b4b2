package dispatch

import (
	"context"
	"errors"
	"io"
	"os/exec"

	"github.com/vnykmshr/opsched/pkg/scheduling/opsched"
)

// Runner executes a dispatched process and reports its exit code. A non-nil
// error means the process did not run to completion.
type Runner interface {
	Run(ctx context.Context, p *opsched.Process) (int, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, p *opsched.Process) (int, error)

// Run implements Runner.
func (f RunnerFunc) Run(ctx context.Context, p *opsched.Process) (int, error) {
	return f(ctx, p)
}

// ExecRunner runs process commands through a shell.
type ExecRunner struct {
	// Shell interprets the command with "-c" (default: /bin/sh).
	Shell string

	// Dir is the working directory. Empty means the current one.
	Dir string

	// Env replaces the environment when non-nil.
	Env []string

	Stdout io.Writer
	Stderr io.Writer
}

// Run starts the command and waits for it. A command that exits non-zero is
// not an error; its status becomes the exit code.
func (r ExecRunner) Run(ctx context.Context, p *opsched.Process) (int, error) {
	shell := r.Shell
	if shell == "" {
		shell = "/bin/sh"
	}

	cmd := exec.CommandContext(ctx, shell, "-c", p.Command())
	cmd.Dir = r.Dir
	cmd.Env = r.Env
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr

	err := cmd.Run()
	if ctx.Err() != nil {
		return -1, ctx.Err()
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return 0, nil
	case errors.As(err, &exitErr):
		return exitErr.ExitCode(), nil
	default:
		return -1, err
	}
}

// Simulated returns a runner that finishes immediately with code, without
// running anything.
func Simulated(code int) Runner {
	return RunnerFunc(func(ctx context.Context, _ *opsched.Process) (int, error) {
		if err := ctx.Err(); err != nil {
			return -1, err
		}
		return code, nil
	})
}
