package command

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// Result holds the outcome of executing an external command.
type Result struct {
	// Stdout contains the standard output captured from the command.
	Stdout string
	// Stderr contains the standard error captured from the command.
	Stderr string
	// ExitCode is the exit status code returned by the command. A value of
	// -1 indicates the command could not be started or completed (command
	// not found, context expiry).
	ExitCode int
	// Err is any error encountered while starting or managing the command
	// process itself. A non-zero exit code alone does not populate Err;
	// callers check ExitCode for that.
	Err error
}

// Runner defines the interface for running the external deploy and build
// tooling the pipeline drives (cluster CLI, cloud CLI, site-deploy CLI,
// package managers, arbitrary scripts). All calls are synchronous; the
// calling goroutine blocks until the command returns or the context expires.
type Runner interface {
	// Run executes the command with the given arguments and working
	// directory. extraEnv entries ("KEY=value") are appended to the current
	// process environment rather than replacing it, so the invoked CLI
	// keeps PATH, HOME, and its own credential discovery.
	Run(ctx context.Context, name string, args []string, workingDir string, extraEnv []string) (*Result, error)
}

// defaultRunner implements Runner using os/exec.
type defaultRunner struct{}

// NewRunner creates the default command runner.
func NewRunner() Runner {
	return &defaultRunner{}
}

func (r *defaultRunner) Run(ctx context.Context, name string, args []string, workingDir string, extraEnv []string) (*Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	if workingDir != "" {
		cmd.Dir = workingDir
	}
	if len(extraEnv) > 0 {
		cmd.Env = append(os.Environ(), extraEnv...)
	}

	result := &Result{ExitCode: -1}

	err := cmd.Run()

	result.Stdout = stdoutBuf.String()
	result.Stderr = stderrBuf.String()

	if err != nil {
		if ctx.Err() != nil {
			// Bounded waits (rollout status, service stability) surface
			// expiry as an ordinary failure, not a distinct cancellation
			// path; the caller turns this into its domain error.
			result.Err = ctx.Err()
			return result, ctx.Err()
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// The command ran but exited non-zero. The caller inspects
			// ExitCode, so this is not an execution error here.
			if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
				result.ExitCode = status.ExitStatus()
			}
			result.Err = err
			return result, nil
		}

		// Command not found, permission problems, and similar.
		result.Err = err
		return result, err
	}

	result.ExitCode = 0
	return result, nil
}
