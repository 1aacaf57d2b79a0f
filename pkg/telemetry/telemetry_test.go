package telemetry

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestConfigValidate tests telemetry configuration validation
func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"missing service name", func(c *Config) { c.ServiceName = "" }, true},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, true},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"stdout exporter", func(c *Config) { c.Tracing.Exporter = "stdout" }, false},
		{"otlp without endpoint", func(c *Config) { c.Tracing.Exporter = "otlp" }, true},
		{"unknown exporter", func(c *Config) { c.Tracing.Exporter = "jaeger" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// TestLoggerFields tests that component and session fields reach the output
func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(LoggingConfig{Level: "debug", Format: "json"}, &buf)

	logger.NewComponentLogger("toolkit").WithSession("sess-1").WithStep("download").Info("downloading")

	out := buf.String()
	for _, want := range []string{`"component":"toolkit"`, `"session_id":"sess-1"`, `"step":"download"`, `"message":"downloading"`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in log output: %s", want, out)
		}
	}
}

// TestLoggerLevel tests level filtering
func TestLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(LoggingConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Error("warn message should be logged")
	}
}

// TestLoggerContext tests logger propagation through context
func TestLoggerContext(t *testing.T) {
	logger := NopLogger()
	ctx := logger.WithContext(context.Background())
	if FromContext(ctx) != logger {
		t.Error("expected logger from context")
	}
	if FromContext(context.Background()) == nil {
		t.Error("expected fallback logger")
	}
}

// TestMetricsRecording tests metric counters
func TestMetricsRecording(t *testing.T) {
	m := NewMetrics(MetricsConfig{Namespace: "test"})

	m.RecordStep("upgrade-pip", "failed", time.Second)
	m.RecordStep("upgrade-pip", "failed", time.Second)
	m.RecordError("STEP_FAILED")
	m.AddDownloadBytes(1024)
	m.AddDownloadBytes(-5)
	m.RecordRelaunch()

	if got := testutil.ToFloat64(m.stepsExecuted.WithLabelValues("upgrade-pip", "failed")); got != 2 {
		t.Errorf("expected 2 failed steps, got %v", got)
	}
	if got := testutil.ToFloat64(m.errorsByCode.WithLabelValues("STEP_FAILED")); got != 1 {
		t.Errorf("expected 1 error, got %v", got)
	}
	if got := testutil.ToFloat64(m.downloadBytes); got != 1024 {
		t.Errorf("expected 1024 bytes, got %v", got)
	}
	if got := testutil.ToFloat64(m.relaunches); got != 1 {
		t.Errorf("expected 1 relaunch, got %v", got)
	}
}

// TestMetricsNilSafe tests that a nil collector is a no-op
func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.RecordStep("x", "succeeded", time.Second)
	m.RecordError("X")
	m.RecordSession("complete")
	if err := m.WriteTextfile(); err != nil {
		t.Errorf("nil WriteTextfile returned error: %v", err)
	}
}

// TestMetricsTextfile tests writing metrics in textfile format
func TestMetricsTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gpuprep.prom")
	m := NewMetrics(MetricsConfig{Namespace: "gpuprep", TextfilePath: path})
	m.RecordSession("complete")

	if err := m.WriteTextfile(); err != nil {
		t.Fatalf("failed to write textfile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read textfile: %v", err)
	}
	if !strings.Contains(string(data), `gpuprep_sessions_total{action="complete"} 1`) {
		t.Errorf("unexpected textfile contents:\n%s", data)
	}
}

// TestStartPhase tests the phase instrumentation lifecycle
func TestStartPhase(t *testing.T) {
	tel := Nop()
	pc := tel.StartPhase(context.Background(), "provision")
	if pc.Ctx == nil || pc.Span == nil {
		t.Fatal("expected span and context")
	}
	if FromContext(pc.Ctx) != pc.Logger {
		t.Error("phase context should carry the phase logger")
	}
	pc.End("failed", errors.New("boom"))

	if got := testutil.ToFloat64(tel.Metrics.phasesCompleted.WithLabelValues("provision", "failed")); got != 1 {
		t.Errorf("expected phase to be counted, got %v", got)
	}

	if err := tel.Shutdown(context.Background()); err != nil {
		t.Errorf("shutdown failed: %v", err)
	}
}

// TestTelemetryContext tests bundle propagation
func TestTelemetryContext(t *testing.T) {
	tel := Nop()
	ctx := tel.WithContext(context.Background())
	if FromTelemetryContext(ctx) != tel {
		t.Error("expected telemetry from context")
	}
	if FromTelemetryContext(context.Background()) != nil {
		t.Error("expected nil without telemetry")
	}
}
