package telemetry

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics provides Prometheus metrics for a provisioning session.
// Metrics are written to a textfile at exit since the process is short-lived.
type Metrics struct {
	config MetricsConfig

	phasesCompleted *prometheus.CounterVec
	phaseDuration   *prometheus.HistogramVec

	stepsExecuted *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec

	errorsByCode *prometheus.CounterVec

	downloadBytes prometheus.Counter
	relaunches    prometheus.Counter
	sessions      *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) *Metrics {
	namespace := cfg.Namespace
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		phasesCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "phases_completed_total",
				Help:      "Total number of phases completed",
			},
			[]string{"phase", "status"},
		),
		phaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "phase_duration_seconds",
				Help:      "Duration of each phase in seconds",
				Buckets:   []float64{0.1, 1, 5, 30, 60, 300, 900, 1800},
			},
			[]string{"phase"},
		),
		stepsExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "steps_executed_total",
				Help:      "Total number of external commands executed",
			},
			[]string{"step", "status"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Duration of external commands in seconds",
				Buckets:   []float64{0.1, 1, 5, 30, 60, 300, 900, 1800},
			},
			[]string{"step"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of recorded errors by code",
			},
			[]string{"code"},
		),
		downloadBytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "download_bytes_total",
				Help:      "Bytes received while downloading installer artifacts",
			},
		),
		relaunches: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "relaunches_total",
				Help:      "Number of relaunch handoffs requested",
			},
		),
		sessions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_total",
				Help:      "Sessions by final action",
			},
			[]string{"action"},
		),
	}

	registry.MustRegister(
		m.phasesCompleted,
		m.phaseDuration,
		m.stepsExecuted,
		m.stepDuration,
		m.errorsByCode,
		m.downloadBytes,
		m.relaunches,
		m.sessions,
	)

	return m
}

// RecordPhase records a completed phase with its status and duration.
func (m *Metrics) RecordPhase(phase, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.phasesCompleted.WithLabelValues(phase, status).Inc()
	m.phaseDuration.WithLabelValues(phase).Observe(duration.Seconds())
}

// RecordStep records the execution of one external command.
func (m *Metrics) RecordStep(step, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.stepsExecuted.WithLabelValues(step, status).Inc()
	m.stepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// RecordError records an error by code.
func (m *Metrics) RecordError(code string) {
	if m == nil {
		return
	}
	m.errorsByCode.WithLabelValues(code).Inc()
}

// AddDownloadBytes adds to the downloaded byte counter.
func (m *Metrics) AddDownloadBytes(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.downloadBytes.Add(float64(n))
}

// RecordRelaunch counts a relaunch handoff.
func (m *Metrics) RecordRelaunch() {
	if m == nil {
		return
	}
	m.relaunches.Inc()
}

// RecordSession counts a finished session by its final action.
func (m *Metrics) RecordSession(action string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(action).Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes all metrics to the configured textfile, if any.
func (m *Metrics) WriteTextfile() error {
	if m == nil || m.config.TextfilePath == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(m.config.TextfilePath, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
