package watcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultCommandTimeout bounds every companion CLI invocation.
const DefaultCommandTimeout = 10 * time.Second

// CommandResult is the outcome of one CLI invocation. Err is set when the
// command could not run to completion (not found, timed out); a non-zero
// exit alone is reported through ExitCode.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
}

// Output returns stdout followed by stderr.
func (r CommandResult) Output() string {
	return r.Stdout + r.Stderr
}

// Runner runs the companion CLI.
type Runner interface {
	Run(ctx context.Context, args ...string) CommandResult
}

// ExecRunner runs a local binary as a subprocess.
type ExecRunner struct {
	Binary  string
	Timeout time.Duration
}

// Run executes the binary with args, capturing stdout and stderr separately.
func (r ExecRunner) Run(ctx context.Context, args ...string) CommandResult {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, r.Binary, args...)
	command.Stdout = &stdout
	command.Stderr = &stderr
	command.WaitDelay = time.Second
	err := command.Run()

	res := CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res
	}

	name := r.Binary + " " + strings.Join(args, " ")
	var exitErr *exec.ExitError
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.ExitCode = -1
		res.Err = fmt.Errorf("%s: timed out after %s", name, timeout)
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		res.ExitCode = -1
		res.Err = fmt.Errorf("%s: %w", name, err)
	}
	return res
}
