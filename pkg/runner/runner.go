// Package runner executes external commands for the provisioning components.
//
// All package-manager, installer and converter invocations go through the
// Runner interface so the orchestration can be exercised without spawning
// real processes.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/openfroyo/gpuprep/pkg/engine"
)

// Runner runs one external command to completion.
type Runner interface {
	// Run executes spec and waits for it. A non-zero exit is reported through
	// Result.ExitCode, not as an error. The error is reserved for commands that
	// could not be started at all.
	Run(ctx context.Context, spec engine.CommandSpec) (*Result, error)

	// LookPath reports where an executable would be found.
	LookPath(name string) (string, error)
}

// Result is the outcome of an external command.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Success returns true if the command exited zero.
func (r *Result) Success() bool {
	return r != nil && r.ExitCode == 0
}

// Output returns stdout followed by stderr. Some tools print version banners
// on either stream.
func (r *Result) Output() string {
	if r == nil {
		return ""
	}
	return r.Stdout + r.Stderr
}

// ExitError describes a command that ran and exited non-zero.
func (r *Result) ExitError() error {
	if r.Success() {
		return nil
	}
	return fmt.Errorf("exit status %d", r.ExitCode)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Env overrides the environment when non-nil.
	Env []string

	// Stdout and Stderr receive a live copy of the command output, the way a
	// shell would show it. Output is captured either way.
	Stdout io.Writer
	Stderr io.Writer
}

// NewExecRunner creates a runner that mirrors command output to the given writers.
func NewExecRunner(stdout, stderr io.Writer) *ExecRunner {
	return &ExecRunner{Stdout: stdout, Stderr: stderr}
}

// Run executes the command.
func (r *ExecRunner) Run(ctx context.Context, spec engine.CommandSpec) (*Result, error) {
	if spec.Program() == "" {
		return nil, fmt.Errorf("command is required")
	}

	cmd := exec.CommandContext(ctx, spec.Program(), spec.Args()...)
	if r.Dir != "" {
		cmd.Dir = r.Dir
	}
	if r.Env != nil {
		cmd.Env = r.Env
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = tee(&stdout, r.Stdout)
	cmd.Stderr = tee(&stderr, r.Stderr)

	start := time.Now()
	err := cmd.Run()

	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return nil, fmt.Errorf("failed to execute %s: %w", spec.Program(), err)
	}

	return result, nil
}

// LookPath resolves an executable on PATH.
func (r *ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

func resultDuration(r *Result) time.Duration {
	if r == nil {
		return 0
	}
	return r.Duration
}

func tee(capture *bytes.Buffer, live io.Writer) io.Writer {
	if live == nil {
		return capture
	}
	return io.MultiWriter(capture, live)
}
