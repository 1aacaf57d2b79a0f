package provision

import (
	"context"
	"runtime"

	"github.com/openfroyo/gpuprep/pkg/engine"
	"github.com/openfroyo/gpuprep/pkg/telemetry"
)

// disableAliasesScript turns off the Store "python.exe" shims that shadow a
// real interpreter on PATH.
const disableAliasesScript = `Get-AppExecutionAlias | Where-Object { $_.PackageFamilyName -like "*Python*" } | ForEach-Object { Disable-AppExecutionAlias -PackageFamilyName $_.PackageFamilyName -Executable $_.Executable }`

// AliasStep is the PowerShell command that disables Python execution aliases.
func AliasStep() engine.CommandSpec {
	return engine.NewCommandSpec(
		"disable-aliases",
		"Disabling python app execution aliases...",
		"Failed to disable python app execution aliases",
		"powershell", "-NoProfile", "-Command", disableAliasesScript,
	)
}

// aliasCmdletCheck fails when the execution alias cmdlets are not installed.
func aliasCmdletCheck() engine.CommandSpec {
	return engine.Command("powershell", "-NoProfile", "-Command", "Get-Command Get-AppExecutionAlias,Disable-AppExecutionAlias -ErrorAction Stop | Out-Null")
}

// AliasOptions controls platform detection, for tests.
type AliasOptions struct {
	GOOS string
}

// DisableExecutionAliases runs AliasStep on Windows. Without Windows,
// PowerShell or the alias cmdlets it does nothing and returns a silent error
// describing why. A failure of the step itself is recorded like any other.
func (p *Provisioner) DisableExecutionAliases(ctx context.Context, opts AliasOptions) (engine.StepOutcome, error) {
	goos := opts.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}

	step := AliasStep()
	skipped := engine.StepOutcome{Name: step.Name, Status: engine.StepStatusSkipped}

	if goos != "windows" {
		return skipped, engine.NewSilentError("execution aliases exist only on windows", nil).
			WithCode(engine.ErrCodeCapabilityMissing).WithStep(step.Name)
	}
	if _, err := p.runner.LookPath(step.Program()); err != nil {
		telemetry.FromContext(ctx).WithError(err).Debug("powershell not found")
		return skipped, engine.NewSilentError("powershell is not available", err).
			WithCode(engine.ErrCodeCapabilityMissing).WithStep(step.Name)
	}

	if res, err := p.runner.Run(ctx, aliasCmdletCheck()); err != nil || !res.Success() {
		if err == nil && res != nil {
			err = res.ExitError()
		}
		telemetry.FromContext(ctx).WithError(err).Debug("execution alias cmdlets not found")
		return skipped, engine.NewSilentError("execution alias cmdlets are not available", err).
			WithCode(engine.ErrCodeCapabilityMissing).WithStep(step.Name)
	}

	outcome := p.runStep(ctx, step)
	if outcome.Status.IsFailure() {
		return outcome, engine.NewLoggedError(step.Failure, nil).
			WithCode(engine.ErrCodeStepFailed).WithStep(step.Name)
	}
	return outcome, nil
}
