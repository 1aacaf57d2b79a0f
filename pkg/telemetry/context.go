package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/trace"
)

// Telemetry bundles logging, tracing and metrics for a session.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Config  *Config
}

// telemetryContextKey is the context key for telemetry instances.
type telemetryContextKey struct{}

// NewTelemetry creates a new telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: NewMetrics(cfg.Metrics),
		Config:  cfg,
	}, nil
}

// Nop returns telemetry that discards logs and exports nothing.
func Nop() *Telemetry {
	return &Telemetry{
		Logger:  NopLogger(),
		Tracer:  NopTracer(),
		Metrics: NewMetrics(MetricsConfig{Namespace: "gpuprep"}),
		Config:  DefaultConfig(),
	}
}

// WithContext adds the telemetry instance and its logger to the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	return t.Logger.WithContext(ctx)
}

// FromTelemetryContext retrieves the telemetry instance from the context.
// If no telemetry is found, it returns nil.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	if t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry); ok {
		return t
	}
	return nil
}

// Shutdown writes the metrics textfile and flushes the tracer.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(
		t.Metrics.WriteTextfile(),
		t.Tracer.Shutdown(ctx),
	)
}

// PhaseContext carries the span, logger and timer of a running phase.
type PhaseContext struct {
	Ctx    context.Context
	Span   trace.Span
	Logger *Logger
	Timer  *Timer

	phase string
	tel   *Telemetry
}

// StartPhase begins an instrumented phase with logging, tracing and timing.
func (t *Telemetry) StartPhase(ctx context.Context, phase string) *PhaseContext {
	spanCtx, span := t.Tracer.StartPhaseSpan(ctx, phase)
	logger := t.Logger.WithPhase(phase)
	if span.SpanContext().IsValid() {
		logger = logger.WithField("trace_id", span.SpanContext().TraceID().String())
	}
	logger.Debug("phase started")

	return &PhaseContext{
		Ctx:    logger.WithContext(spanCtx),
		Span:   span,
		Logger: logger,
		Timer:  NewTimer(),
		phase:  phase,
		tel:    t,
	}
}

// End completes the phase with the given status.
func (pc *PhaseContext) End(status string, err error) {
	duration := pc.Timer.Duration()
	if err != nil {
		RecordError(pc.Span, err)
		pc.Logger.WithError(err).Warnf("phase finished with status %s", status)
	} else {
		RecordSuccess(pc.Span)
		pc.Logger.Debugf("phase finished with status %s in %s", status, duration)
	}
	pc.tel.Metrics.RecordPhase(pc.phase, status, duration)
	pc.Span.End()
}
