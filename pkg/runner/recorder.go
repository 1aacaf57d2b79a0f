package runner

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/openfroyo/gpuprep/pkg/engine"
)

// Recorder is a Runner that records every command instead of executing it.
// It backs the tests and the --dry-run mode.
//
// Without a Handler every command succeeds with exit code 0.
type Recorder struct {
	// Handler decides the result of a command. It may be nil.
	Handler func(ctx context.Context, spec engine.CommandSpec) (*Result, error)

	// Missing lists executables LookPath should fail for.
	Missing map[string]bool

	// PathLookup resolves executables not listed in Missing. Nil means
	// every executable is found.
	PathLookup func(name string) (string, error)

	calls []engine.CommandSpec
	mu    sync.Mutex
}

// NewRecorder creates a recorder that answers with handler.
func NewRecorder(handler func(ctx context.Context, spec engine.CommandSpec) (*Result, error)) *Recorder {
	return &Recorder{Handler: handler}
}

// Run records the call and delegates to Handler.
func (r *Recorder) Run(ctx context.Context, spec engine.CommandSpec) (*Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, spec)
	handler := r.Handler
	r.mu.Unlock()

	if handler == nil {
		return &Result{}, nil
	}
	return handler(ctx, spec)
}

// LookPath fails for executables listed in Missing.
func (r *Recorder) LookPath(name string) (string, error) {
	if r.Missing[name] {
		return "", fmt.Errorf("exec: %q: executable file not found in $PATH", name)
	}
	if r.PathLookup != nil {
		return r.PathLookup(name)
	}
	return name, nil
}

// Calls returns a copy of all recorded commands.
func (r *Recorder) Calls() []engine.CommandSpec {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]engine.CommandSpec, len(r.calls))
	copy(result, r.calls)
	return result
}

// CallsMatching returns recorded commands whose command line contains substr.
func (r *Recorder) CallsMatching(substr string) []engine.CommandSpec {
	var matched []engine.CommandSpec
	for _, c := range r.Calls() {
		if strings.Contains(c.String(), substr) {
			matched = append(matched, c)
		}
	}
	return matched
}

// Reset clears all recorded calls.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

// Exit returns a handler result with the given exit code.
func Exit(code int) *Result {
	return &Result{ExitCode: code}
}

// Output returns a successful handler result with the given stdout.
func Output(stdout string) *Result {
	return &Result{Stdout: stdout}
}
