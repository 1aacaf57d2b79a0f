package orchestrator

import (
	"context"

	"github.com/openfroyo/gpuprep/pkg/convert"
	"github.com/openfroyo/gpuprep/pkg/deps"
	"github.com/openfroyo/gpuprep/pkg/engine"
	"github.com/openfroyo/gpuprep/pkg/probe"
	"github.com/openfroyo/gpuprep/pkg/provision"
	"github.com/openfroyo/gpuprep/pkg/toolkit"
)

// Action is what the driver must do when Run returns.
type Action string

const (
	// ActionComplete means every phase ran. Exit after the summary.
	ActionComplete Action = "complete"

	// ActionHalt means a fatal gate stopped provisioning.
	ActionHalt Action = "halt"

	// ActionRelaunch means the driver must start a successor process with
	// the restart flag and then exit.
	ActionRelaunch Action = "relaunch"
)

// DependencyEnsurer installs missing auxiliary libraries.
type DependencyEnsurer interface {
	EnsureAll(ctx context.Context, deps []engine.Dependency, state *engine.ExecutionState) *deps.Result
}

// EnvironmentProber inspects installed versions.
type EnvironmentProber interface {
	CheckInterpreterVersion(ctx context.Context, expected string) probe.VersionCheck
	CheckToolkitVersion(required string) (probe.VersionCheck, error)
}

// ToolkitEnsurer downloads and installs the toolkit.
type ToolkitEnsurer interface {
	EnsureInstalled(ctx context.Context, req toolkit.Request, state *engine.ExecutionState) *toolkit.Result
}

// PackageProvisioner runs the package-manager steps.
type PackageProvisioner interface {
	DisableExecutionAliases(ctx context.Context, opts provision.AliasOptions) (engine.StepOutcome, error)
	Run(ctx context.Context, steps []engine.CommandSpec) []engine.StepOutcome
}

// ModelConverter runs the optional conversion.
type ModelConverter interface {
	Offer(ctx context.Context, opts convert.Options) convert.Outcome
}

// Plan is everything a session installs. It does not change during a run.
type Plan struct {
	Interpreter  engine.VersionRequirement
	InstallerURL string
	Toolkit      toolkit.Request
	Dependencies []engine.Dependency
	Steps        []engine.CommandSpec
}

// Session identifies one logical run across a relaunch.
type Session struct {
	ID        string
	Restarted bool
	Convert   convert.Options

	// GOOS overrides platform detection for the alias step.
	GOOS string
}

// Report is the result of Run.
type Report struct {
	Action      Action
	Phase       engine.Phase
	State       engine.ExecutionState
	Interpreter probe.VersionCheck
	Toolkit     probe.VersionCheck
	Steps       []engine.StepOutcome
	Convert     convert.Outcome

	// Err is the fatal error for a halt.
	Err error
}
