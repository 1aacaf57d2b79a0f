package telemetry

import (
	"fmt"
	"time"
)

// Config contains the telemetry configuration for a gpuprep session.
type Config struct {
	// ServiceName is the name reported on traces.
	ServiceName string `yaml:"service_name"`

	// ServiceVersion is the build version.
	ServiceVersion string `yaml:"service_version"`

	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Tracing contains tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`

	// Metrics contains metrics configuration.
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig configures structured diagnostic logging.
type LoggingConfig struct {
	// Level sets the minimum log level (trace, debug, info, warn, error).
	Level string `yaml:"level"`

	// Format specifies the log format (console, json).
	Format string `yaml:"format"`

	// Output specifies where logs are written (stdout, stderr, file path).
	Output string `yaml:"output"`

	// EnableCaller adds file:line caller information to logs.
	EnableCaller bool `yaml:"enable_caller"`

	// NoColor disables ANSI colors in console format.
	NoColor bool `yaml:"no_color"`
}

// TracingConfig configures span export.
type TracingConfig struct {
	// Exporter specifies the trace exporter (otlp, stdout, none).
	Exporter string `yaml:"exporter"`

	// Endpoint is the OTLP collector endpoint.
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS for the exporter connection.
	Insecure bool `yaml:"insecure"`

	// ExportTimeout bounds a single export.
	ExportTimeout time.Duration `yaml:"export_timeout"`
}

// MetricsConfig configures metrics collection.
type MetricsConfig struct {
	// Namespace is the metrics namespace prefix.
	Namespace string `yaml:"namespace"`

	// TextfilePath is where metrics are written at exit, in the node exporter
	// textfile format. Empty disables the write.
	TextfilePath string `yaml:"textfile_path"`
}

// DefaultConfig returns a default telemetry configuration.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "gpuprep",
		ServiceVersion: "dev",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
		Tracing: TracingConfig{
			Exporter:      "none",
			Insecure:      true,
			ExportTimeout: 10 * time.Second,
		},
		Metrics: MetricsConfig{
			Namespace: "gpuprep",
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service name is required")
	}

	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be 'console' or 'json')", c.Logging.Format)
	}

	switch c.Tracing.Exporter {
	case "none", "stdout":
	case "otlp":
		if c.Tracing.Endpoint == "" {
			return fmt.Errorf("otlp exporter requires an endpoint")
		}
	default:
		return fmt.Errorf("invalid trace exporter: %s", c.Tracing.Exporter)
	}

	return nil
}
