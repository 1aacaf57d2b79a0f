package engine

import "strings"

// ExecutionState is threaded through every phase of a provisioning session.
// It replaces process-global flags: each phase receives it and returns it updated.
type ExecutionState struct {
	// RestartRequested is set when something was installed that the current
	// process cannot see without a fresh start.
	RestartRequested bool `json:"restart_requested"`

	// AlreadyRestarted is carried across the process boundary by a flag.
	// Once true the session must never relaunch again.
	AlreadyRestarted bool `json:"already_restarted"`

	// ErrorCount mirrors the error log counter at the time of reporting.
	ErrorCount int `json:"error_count"`
}

// RequestRestart marks that a relaunch would be needed to see new installs.
func (s *ExecutionState) RequestRestart() {
	s.RestartRequested = true
}

// ShouldRelaunch reports whether the driver must hand off to a new process.
func (s ExecutionState) ShouldRelaunch() bool {
	return s.RestartRequested && !s.AlreadyRestarted
}

// Component identifies what a VersionRequirement applies to.
type Component string

const (
	ComponentInterpreter Component = "interpreter"
	ComponentToolkit     Component = "toolkit"
)

// VersionRequirement is a version expected on the machine, constant per run.
type VersionRequirement struct {
	Component Component `json:"component"`
	Expected  string    `json:"expected"`
}

// Dependency is an auxiliary Python library the provisioner itself relies on.
type Dependency struct {
	// Package is the name passed to the package manager.
	Package string `json:"package"`

	// Module is the import name used to probe for the package.
	Module string `json:"module"`
}

// CommandSpec is one external command. Argv is never modified after construction.
type CommandSpec struct {
	// Name identifies the step in logs and history.
	Name string `json:"name"`

	// Description is printed before the command runs.
	Description string `json:"description"`

	// Failure is the message recorded when the command fails.
	Failure string `json:"failure"`

	argv []string
}

// NewCommandSpec creates a command spec with a private copy of argv.
func NewCommandSpec(name, description, failure string, argv ...string) CommandSpec {
	return CommandSpec{
		Name:        name,
		Description: description,
		Failure:     failure,
		argv:        append([]string(nil), argv...),
	}
}

// Command creates an anonymous command spec, used for probes and one-off calls.
func Command(argv ...string) CommandSpec {
	return NewCommandSpec("", "", "", argv...)
}

// Argv returns a copy of the command line.
func (c CommandSpec) Argv() []string {
	return append([]string(nil), c.argv...)
}

// Program returns the executable name, or "" for an empty spec.
func (c CommandSpec) Program() string {
	if len(c.argv) == 0 {
		return ""
	}
	return c.argv[0]
}

// Args returns the arguments after the program name.
func (c CommandSpec) Args() []string {
	if len(c.argv) < 2 {
		return nil
	}
	return append([]string(nil), c.argv[1:]...)
}

// String renders the command line for display.
func (c CommandSpec) String() string {
	return strings.Join(c.argv, " ")
}
