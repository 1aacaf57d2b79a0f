// Package telemetry provides observability instrumentation for gpuprep.
//
// The telemetry package integrates structured logging (zerolog), tracing
// (OpenTelemetry) and metrics (Prometheus) into a single bundle that is
// created once per process and carried in the context.
//
// # Usage
//
//	cfg := telemetry.DefaultConfig()
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.WithContext(ctx)
//
// # Structured Logging
//
//	logger := tel.Logger.NewComponentLogger("toolkit")
//	logger.WithSession(sessionID).Info("downloading installer")
//	logger.WithError(err).Error("installer failed")
//
// Diagnostic logs are separate from the running commentary printed to the
// user and from the error log file.
//
// # Phases
//
// Each state-machine phase is wrapped in a PhaseContext that owns a span,
// a phase-scoped logger and a timer:
//
//	pc := tel.StartPhase(ctx, "provision")
//	defer pc.End("succeeded", nil)
//
// # Metrics
//
// gpuprep is a short-lived process, so metrics are not served over HTTP.
// When MetricsConfig.TextfilePath is set they are written at Shutdown in the
// node exporter textfile format.
package telemetry
