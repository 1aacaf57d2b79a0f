package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/openfroyo/gpuprep/pkg/telemetry"
)

// Settings are the runtime knobs of a gpuprep process. They are separate from
// the manifest: the manifest says what to install, settings say how to run.
type Settings struct {
	// LogFile is the append-only error log.
	LogFile string `yaml:"log_file"`

	// ResetLogOnFreshRun truncates LogFile when a session starts that is not
	// a restart.
	ResetLogOnFreshRun bool `yaml:"reset_log_on_fresh_run"`

	// HistoryDB is the SQLite run-history database. Empty disables history.
	HistoryDB string `yaml:"history_db"`

	// WorkDir is where the installer artifact is downloaded and where
	// package-manager commands run.
	WorkDir string `yaml:"work_dir"`

	// ExitDelay is the pause before the process exits.
	ExitDelay time.Duration `yaml:"exit_delay"`

	// PythonExecutable overrides the manifest interpreter when set.
	PythonExecutable string `yaml:"python_executable"`

	// Telemetry configures diagnostic logging, tracing and metrics.
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// DefaultSettings returns settings for a run in the current directory.
func DefaultSettings() *Settings {
	return &Settings{
		LogFile:   "output.txt",
		HistoryDB: "gpuprep.db",
		WorkDir:   ".",
		ExitDelay: 5 * time.Second,
		Telemetry: *telemetry.DefaultConfig(),
	}
}

// LoadSettings reads a YAML settings file over the defaults. An empty path
// returns the defaults.
func LoadSettings(path string) (*Settings, error) {
	s := DefaultSettings()
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse settings %s: %w", path, err)
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings %s: %w", path, err)
	}

	return s, nil
}

// Validate checks if the settings are usable.
func (s *Settings) Validate() error {
	if s.LogFile == "" {
		return fmt.Errorf("log_file is required")
	}
	if s.ExitDelay < 0 {
		return fmt.Errorf("exit_delay must not be negative")
	}
	return s.Telemetry.Validate()
}

// ApplyTo copies the settings that override manifest values.
func (s *Settings) ApplyTo(m *Manifest) {
	if s.PythonExecutable == "" || s.PythonExecutable == m.Interpreter.Executable {
		return
	}
	old := m.Interpreter.Executable
	m.Interpreter.Executable = s.PythonExecutable
	for i := range m.Steps {
		if len(m.Steps[i].Argv) > 0 && m.Steps[i].Argv[0] == old {
			m.Steps[i].Argv[0] = s.PythonExecutable
		}
	}
}
