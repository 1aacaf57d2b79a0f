package runner

import (
	"context"

	"github.com/openfroyo/gpuprep/pkg/engine"
	"github.com/openfroyo/gpuprep/pkg/telemetry"
)

// Traced wraps a Runner with a span and step metrics per command.
type Traced struct {
	next Runner
	tel  *telemetry.Telemetry
}

// WithTelemetry instruments r. Anonymous probe commands get spans but are
// not counted as steps.
func WithTelemetry(r Runner, tel *telemetry.Telemetry) *Traced {
	return &Traced{next: r, tel: tel}
}

// Run executes spec inside a step span.
func (t *Traced) Run(ctx context.Context, spec engine.CommandSpec) (*Result, error) {
	name := spec.Name
	if name == "" {
		name = spec.Program()
	}

	ctx, span := t.tel.Tracer.StartStepSpan(ctx, name, spec.String())
	defer span.End()

	res, err := t.next.Run(ctx, spec)

	status := engine.StepStatusSucceeded
	switch {
	case err != nil:
		status = engine.StepStatusFailed
		telemetry.RecordError(span, err)
	case !res.Success():
		status = engine.StepStatusFailed
		span.SetAttributes(telemetry.AttrExitCode.Int(res.ExitCode))
		telemetry.RecordError(span, res.ExitError())
	default:
		span.SetAttributes(telemetry.AttrExitCode.Int(0))
		telemetry.RecordSuccess(span)
	}

	if spec.Name != "" {
		t.tel.Metrics.RecordStep(spec.Name, string(status), resultDuration(res))
	}

	return res, err
}

// LookPath delegates to the wrapped runner.
func (t *Traced) LookPath(name string) (string, error) {
	return t.next.LookPath(name)
}
