// Package orchestrator sequences a provisioning session.
//
// The session is a state machine:
//
//	Init -> EnsureDeps -> RestartIfNeeded -> ProbeEnvironment -> HaltIfVersionMismatch
//	     -> EnsureToolkit -> RestartIfNeeded -> Provision -> OptionalConvert -> Report
//
// Run never starts or replaces processes. When a restart is needed it returns
// ActionRelaunch and the driver starts the successor. A successor repeats the
// EnsureDeps and EnsureToolkit checks, which install only what is still
// missing, and can never return ActionRelaunch.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/openfroyo/gpuprep/pkg/engine"
	"github.com/openfroyo/gpuprep/pkg/errlog"
	"github.com/openfroyo/gpuprep/pkg/probe"
	"github.com/openfroyo/gpuprep/pkg/provision"
	"github.com/openfroyo/gpuprep/pkg/stores"
	"github.com/openfroyo/gpuprep/pkg/telemetry"
	"github.com/openfroyo/gpuprep/pkg/ui"
)

// Components are the collaborators of a session. Converter may be nil.
type Components struct {
	Deps        DependencyEnsurer
	Probe       EnvironmentProber
	Toolkit     ToolkitEnsurer
	Provisioner PackageProvisioner
	Converter   ModelConverter

	Log       *errlog.Log
	Console   *ui.Console
	Telemetry *telemetry.Telemetry
	Journal   *stores.Journal
}

// Orchestrator runs sessions.
type Orchestrator struct {
	c Components
}

// New creates an orchestrator.
func New(c Components) *Orchestrator {
	if c.Telemetry == nil {
		c.Telemetry = telemetry.Nop()
	}
	return &Orchestrator{c: c}
}

// Run executes one process worth of the session and says what happens next.
func (o *Orchestrator) Run(ctx context.Context, plan Plan, session Session) *Report {
	tel := o.c.Telemetry
	ctx, span := tel.Tracer.StartSessionSpan(ctx, session.ID, session.Restarted)
	defer span.End()

	ctx = tel.Logger.WithSession(session.ID).WithContext(ctx)

	report := &Report{Phase: engine.PhaseInit}
	state := engine.ExecutionState{AlreadyRestarted: session.Restarted}

	finish := func(action Action) *Report {
		report.Action = action
		state.ErrorCount = o.c.Journal.PriorErrors() + o.c.Log.Count()
		report.State = state
		o.report(ctx, report)
		return report
	}

	// EnsureDeps
	o.phase(ctx, report, engine.PhaseEnsureDeps, func(ctx context.Context) (string, error) {
		res := o.c.Deps.EnsureAll(ctx, plan.Dependencies, &state)
		if len(res.Failed) > 0 {
			return "failed", nil
		}
		return "succeeded", nil
	})
	if state.ShouldRelaunch() {
		return finish(ActionRelaunch)
	}

	// ProbeEnvironment and the interpreter gate
	var halt error
	o.phase(ctx, report, engine.PhaseProbeEnvironment, func(ctx context.Context) (string, error) {
		report.Interpreter = o.c.Probe.CheckInterpreterVersion(ctx, plan.Interpreter.Expected)
		if report.Interpreter.Match {
			o.c.Console.Info("Python %s detected.", report.Interpreter.Found)
			return "succeeded", nil
		}
		halt = o.interpreterMismatch(plan, report.Interpreter)
		return "failed", halt
	})
	if halt != nil {
		report.Err = halt
		return finish(ActionHalt)
	}

	// EnsureToolkit
	o.phase(ctx, report, engine.PhaseEnsureToolkit, func(ctx context.Context) (string, error) {
		return o.ensureToolkit(ctx, plan, report, &state)
	})
	if state.ShouldRelaunch() {
		return finish(ActionRelaunch)
	}

	// Provision
	o.phase(ctx, report, engine.PhaseProvision, func(ctx context.Context) (string, error) {
		if _, err := o.c.Provisioner.DisableExecutionAliases(ctx, provision.AliasOptions{GOOS: session.GOOS}); engine.IsSilent(err) {
			telemetry.FromContext(ctx).WithError(err).Debug("alias step skipped")
		}

		report.Steps = o.c.Provisioner.Run(ctx, plan.Steps)
		if provision.Failed(report.Steps) > 0 {
			return "failed", nil
		}
		return "succeeded", nil
	})

	// OptionalConvert
	if o.c.Converter != nil {
		o.phase(ctx, report, engine.PhaseOptionalConvert, func(ctx context.Context) (string, error) {
			start := time.Now()
			report.Convert = o.c.Converter.Offer(ctx, session.Convert)
			if report.Convert.Accepted {
				o.journalStep(ctx, engine.PhaseOptionalConvert, engine.StepOutcome{
					Name:   "convert-model",
					Status: report.Convert.Status,
					Error:  errString(report.Convert.Err),
				}, time.Since(start))
			}
			return string(report.Convert.Status), nil
		})
	}

	return finish(ActionComplete)
}

// StepObserver writes provisioning steps to the journal. Wire it into the
// provisioner with OnStep.
func (o *Orchestrator) StepObserver(ctx context.Context) provision.StepObserver {
	return func(outcome engine.StepOutcome, duration time.Duration) {
		o.journalStep(ctx, engine.PhaseProvision, outcome, duration)
	}
}

func (o *Orchestrator) ensureToolkit(ctx context.Context, plan Plan, report *Report, state *engine.ExecutionState) (string, error) {
	logger := telemetry.FromContext(ctx)
	version := plan.Toolkit.Version

	check, err := o.c.Probe.CheckToolkitVersion(version)
	report.Toolkit = check
	if err != nil {
		// An unreadable root is treated like a missing toolkit.
		logger.WithError(err).Warn("toolkit scan failed")
	}

	switch {
	case check.Match:
		o.c.Console.Info("CUDA %s is already installed.", version)
		return "skipped", nil
	case len(check.All) > 0:
		o.c.Console.Info("CUDA version found, but not %s. Installing CUDA %s...", version, version)
	default:
		o.c.Console.Info("CUDA is not installed. Installing CUDA %s...", version)
	}

	res := o.c.Toolkit.EnsureInstalled(ctx, plan.Toolkit, state)
	if res.Err != nil {
		return "failed", res.Err
	}
	return "succeeded", nil
}

func (o *Orchestrator) interpreterMismatch(plan Plan, check probe.VersionCheck) error {
	msg := fmt.Sprintf("You do not have Python %s, which is the only supported version.", plan.Interpreter.Expected)
	if plan.InstallerURL != "" {
		msg += " " + plan.InstallerURL
	}
	o.c.Console.Error("%s", msg)
	o.c.Log.Record(msg)
	o.c.Telemetry.Metrics.RecordError(engine.ErrCodeVersionMismatch)

	return engine.NewFatalError(msg, nil).
		WithCode(engine.ErrCodeVersionMismatch).
		WithDetail("expected", check.Expected).
		WithDetail("found", check.Found)
}

// phase wraps fn with phase instrumentation.
func (o *Orchestrator) phase(ctx context.Context, report *Report, phase engine.Phase, fn func(context.Context) (string, error)) {
	report.Phase = phase
	pc := o.c.Telemetry.StartPhase(ctx, string(phase))
	status, err := fn(pc.Ctx)
	pc.End(status, err)
}

func (o *Orchestrator) report(ctx context.Context, report *Report) {
	report.Phase = engine.PhaseReport
	logger := telemetry.FromContext(ctx)
	metrics := o.c.Telemetry.Metrics

	metrics.RecordSession(string(report.Action))
	if err := o.c.Journal.Finish(string(report.Action), o.c.Log.Count()); err != nil {
		logger.WithError(err).Warn("failed to write run history")
	}

	switch report.Action {
	case ActionRelaunch:
		metrics.RecordRelaunch()
		o.c.Console.Warn("restarting command prompt...")
	default:
		o.c.Console.Summary(report.State.ErrorCount, o.c.Log.Path())
	}

	logger.WithField("action", string(report.Action)).
		WithField("errors", report.State.ErrorCount).
		Info("session finished")
}

func (o *Orchestrator) journalStep(ctx context.Context, phase engine.Phase, outcome engine.StepOutcome, duration time.Duration) {
	if err := o.c.Journal.Step(phase, outcome, duration); err != nil {
		telemetry.FromContext(ctx).WithError(err).Warn("failed to write step history")
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
