// Package provision runs the ordered package-manager steps.
//
// Steps are best effort: a failed step is recorded and the next one still
// runs. A failed uninstall is therefore followed by an install against
// whatever is left on the machine.
package provision

import (
	"context"
	"time"

	"github.com/openfroyo/gpuprep/pkg/engine"
	"github.com/openfroyo/gpuprep/pkg/errlog"
	"github.com/openfroyo/gpuprep/pkg/runner"
	"github.com/openfroyo/gpuprep/pkg/telemetry"
	"github.com/openfroyo/gpuprep/pkg/ui"
)

// StepObserver is told about every finished step, for example to write run
// history.
type StepObserver func(outcome engine.StepOutcome, duration time.Duration)

// Provisioner executes command specs in order.
type Provisioner struct {
	runner   runner.Runner
	log      *errlog.Log
	console  *ui.Console
	observer StepObserver
}

// NewProvisioner creates a provisioner.
func NewProvisioner(r runner.Runner, log *errlog.Log, console *ui.Console) *Provisioner {
	return &Provisioner{runner: r, log: log, console: console}
}

// OnStep sets the step observer.
func (p *Provisioner) OnStep(fn StepObserver) {
	p.observer = fn
}

// Run executes every step and returns one outcome per step, in order.
func (p *Provisioner) Run(ctx context.Context, steps []engine.CommandSpec) []engine.StepOutcome {
	outcomes := make([]engine.StepOutcome, 0, len(steps))
	for _, step := range steps {
		outcomes = append(outcomes, p.runStep(ctx, step))
	}
	return outcomes
}

func (p *Provisioner) runStep(ctx context.Context, step engine.CommandSpec) engine.StepOutcome {
	logger := telemetry.FromContext(ctx).WithStep(step.Name)
	outcome := engine.StepOutcome{Name: step.Name}

	if step.Description != "" {
		p.console.Step("%s", step.Description)
	}

	start := time.Now()
	res, err := p.runner.Run(ctx, step)
	duration := time.Since(start)

	switch {
	case err != nil:
		outcome.Status = engine.StepStatusFailed
		outcome.ExitCode = -1
		outcome.Error = err.Error()
	case !res.Success():
		outcome.Status = engine.StepStatusFailed
		outcome.ExitCode = res.ExitCode
		outcome.Error = res.ExitError().Error()
	default:
		outcome.Status = engine.StepStatusSucceeded
	}

	if outcome.Status.IsFailure() {
		logger.WithField("exit_code", outcome.ExitCode).Warnf("step failed: %s", outcome.Error)
		p.log.Record(step.Failure)
	} else {
		logger.Debugf("step finished in %s", duration)
	}

	if p.observer != nil {
		p.observer(outcome, duration)
	}
	return outcome
}

// Failed counts failed outcomes.
func Failed(outcomes []engine.StepOutcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Status.IsFailure() {
			n++
		}
	}
	return n
}
