package executor

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"github.com/ronnygunawan/opencopilot/pkg/utils"
)

// CommandResult is the outcome of one command invocation. A non-zero exit
// code is a normal result that reports failure, never a Go error.
type CommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Failed reports whether the command exited non-zero.
func (r *CommandResult) Failed() bool {
	return r.ExitCode != 0
}

// CombinedOutput returns stdout followed by stderr.
func (r *CommandResult) CombinedOutput() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// Runner executes a named command against a working directory. Errors are
// reserved for invocation faults (could not start, timed out, cancelled);
// tool failure travels in the result.
type Runner interface {
	Run(ctx context.Context, workdir, command string, args ...string) (*CommandResult, error)
}

// ShellRunner runs commands as real subprocesses. Each child is started in
// its own process group so cancellation kills the whole tree and leaves no
// orphans behind.
type ShellRunner struct {
	// Timeout bounds a single invocation on top of the caller's context.
	// Zero means no extra bound.
	Timeout time.Duration
	Logger  *utils.Logger
}

// NewShellRunner creates a runner with the given per-invocation timeout.
func NewShellRunner(timeout time.Duration, logger *utils.Logger) *ShellRunner {
	return &ShellRunner{Timeout: timeout, Logger: logger}
}

// Run executes command with args in workdir and captures its output.
func (r *ShellRunner) Run(ctx context.Context, workdir, command string, args ...string) (*CommandResult, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = workdir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		// Negative pid signals the process group.
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if r.Logger != nil {
		r.Logger.Logf("Running command in %s: %s %v", workdir, command, args)
	}

	start := time.Now()
	err := cmd.Run()
	result := &CommandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		// A timed-out child dies by signal and still yields an ExitError,
		// so the context has to be consulted first.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("command %s aborted: %w", command, ctxErr)
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return nil, fmt.Errorf("failed to start command %s: %w", command, err)
	}
	return result, nil
}
