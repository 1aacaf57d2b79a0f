package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/openfroyo/gpuprep/pkg/engine"
)

func TestLoader_Defaults(t *testing.T) {
	m, err := NewLoader().Load()
	if err != nil {
		t.Fatalf("failed to load default manifest: %v", err)
	}

	if m.Interpreter.Version != "3.10.5" {
		t.Errorf("expected interpreter 3.10.5, got %s", m.Interpreter.Version)
	}
	if m.Toolkit.Version != "12.6" {
		t.Errorf("expected toolkit 12.6, got %s", m.Toolkit.Version)
	}
	if m.Toolkit.TimeoutDuration() != 30*time.Second {
		t.Errorf("expected 30s timeout, got %s", m.Toolkit.TimeoutDuration())
	}
	if len(m.Dependencies) != 3 {
		t.Errorf("expected 3 dependencies, got %d", len(m.Dependencies))
	}
	if m.Converter.ImageSize != 320 {
		t.Errorf("expected image size 320, got %d", m.Converter.ImageSize)
	}

	wantOrder := []string{
		"upgrade-pip", "install-wheel", "uninstall-torch", "install-torch",
		"upgrade-tensorrt", "install-tensorrt", "install-requirements",
	}
	if len(m.Steps) != len(wantOrder) {
		t.Fatalf("expected %d steps, got %d", len(wantOrder), len(m.Steps))
	}
	for i, name := range wantOrder {
		if m.Steps[i].Name != name {
			t.Errorf("step %d: expected %s, got %s", i, name, m.Steps[i].Name)
		}
		if m.Steps[i].Argv[0] != "python" {
			t.Errorf("step %s: expected interpreter python, got %s", name, m.Steps[i].Argv[0])
		}
	}

	torch := strings.Join(m.Steps[3].Argv, " ")
	if !strings.Contains(torch, "--index-url https://download.pytorch.org/whl/cu126") {
		t.Errorf("torch step missing custom index: %s", torch)
	}
}

func TestLoader_Overrides(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantErr   bool
		checkFunc func(*testing.T, *Manifest)
	}{
		{
			name:    "toolkit version",
			content: `toolkit: version: "12.4"`,
			checkFunc: func(t *testing.T, m *Manifest) {
				if m.Toolkit.Version != "12.4" {
					t.Errorf("expected 12.4, got %s", m.Toolkit.Version)
				}
			},
		},
		{
			name:    "image size",
			content: `converter: image_size: 640`,
			checkFunc: func(t *testing.T, m *Manifest) {
				if m.Converter.ImageSize != 640 {
					t.Errorf("expected 640, got %d", m.Converter.ImageSize)
				}
			},
		},
		{
			name:    "replace dependencies",
			content: `dependencies: [{name: "numpy", module: "numpy"}]`,
			checkFunc: func(t *testing.T, m *Manifest) {
				deps := m.DependencyList()
				if len(deps) != 1 || deps[0].Package != "numpy" {
					t.Errorf("unexpected dependencies: %+v", deps)
				}
			},
		},
		{
			name:    "invalid version",
			content: `toolkit: version: "twelve"`,
			wantErr: true,
		},
		{
			name:    "negative image size",
			content: `converter: image_size: -1`,
			wantErr: true,
		},
		{
			name:    "syntax error",
			content: `toolkit: {`,
			wantErr: true,
		},
		{
			name:    "bad timeout",
			content: `toolkit: timeout: "soon"`,
			wantErr: true,
		},
		{
			name: "duplicate step names",
			content: `steps: [
	{name: "a", description: "A", failure: "Failed A", argv: ["true"]},
	{name: "a", description: "B", failure: "Failed B", argv: ["true"]},
]`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewLoader().LoadInline("override.cue", tt.content)
			if (err != nil) != tt.wantErr {
				t.Fatalf("LoadInline() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				var verrs ValidationErrors
				if !errors.As(err, &verrs) || len(verrs) == 0 {
					t.Errorf("expected ValidationErrors, got %T", err)
				}
				return
			}
			if tt.checkFunc != nil {
				tt.checkFunc(t, m)
			}
		})
	}
}

func TestLoader_LoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "site.cue")
	if err := os.WriteFile(path, []byte(`interpreter: version: "3.11.9"`+"\n"), 0644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}

	m, err := NewLoader().Load(path)
	if err != nil {
		t.Fatalf("failed to load manifest: %v", err)
	}
	req := m.Interpreter.Requirement()
	if req.Component != engine.ComponentInterpreter || req.Expected != "3.11.9" {
		t.Errorf("unexpected requirement: %+v", req)
	}

	if _, err := NewLoader().Load(filepath.Join(t.TempDir(), "missing.cue")); err == nil {
		t.Error("expected error for missing manifest")
	}
}

func TestManifest_CommandSpecs(t *testing.T) {
	m, err := NewLoader().Load()
	if err != nil {
		t.Fatalf("failed to load default manifest: %v", err)
	}

	specs := m.CommandSpecs()
	if len(specs) != len(m.Steps) {
		t.Fatalf("expected %d specs, got %d", len(m.Steps), len(specs))
	}
	if specs[2].Failure != "Failed to uninstall torch" {
		t.Errorf("unexpected failure message: %s", specs[2].Failure)
	}

	// Specs own their argv.
	m.Steps[0].Argv[0] = "changed"
	if specs[0].Program() != "python" {
		t.Errorf("spec argv changed with manifest: %s", specs[0].Program())
	}
}

func TestExport(t *testing.T) {
	m, err := NewLoader().Load()
	if err != nil {
		t.Fatalf("failed to load default manifest: %v", err)
	}

	js, err := ExportJSON(m)
	if err != nil {
		t.Fatalf("ExportJSON failed: %v", err)
	}
	if !strings.Contains(string(js), `"image_size": 320`) {
		t.Errorf("unexpected JSON export:\n%s", js)
	}

	ys, err := ExportYAML(m)
	if err != nil {
		t.Fatalf("ExportYAML failed: %v", err)
	}
	if !strings.Contains(string(ys), "image_size: 320") {
		t.Errorf("unexpected YAML export:\n%s", ys)
	}
}

func TestValidationError_String(t *testing.T) {
	tests := []struct {
		err  ValidationError
		want string
	}{
		{ValidationError{File: "a.cue", Line: 3, Column: 7, Message: "conflict"}, "a.cue:3:7: conflict"},
		{ValidationError{Path: "toolkit.timeout", Message: "bad"}, "toolkit.timeout: bad"},
		{ValidationError{Message: "plain"}, "plain"},
	}
	for _, tt := range tests {
		if got := tt.err.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestLoadSettings(t *testing.T) {
	s, err := LoadSettings("")
	if err != nil {
		t.Fatalf("failed to load default settings: %v", err)
	}
	if s.ExitDelay != 5*time.Second || s.LogFile != "output.txt" {
		t.Errorf("unexpected defaults: %+v", s)
	}

	path := filepath.Join(t.TempDir(), "gpuprep.yaml")
	content := `
log_file: setup.log
reset_log_on_fresh_run: true
exit_delay: 0s
python_executable: py
telemetry:
  logging:
    level: debug
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write settings: %v", err)
	}

	s, err = LoadSettings(path)
	if err != nil {
		t.Fatalf("failed to load settings: %v", err)
	}
	if s.LogFile != "setup.log" || !s.ResetLogOnFreshRun || s.ExitDelay != 0 {
		t.Errorf("unexpected settings: %+v", s)
	}
	if s.Telemetry.Logging.Level != "debug" || s.Telemetry.Logging.Format != "console" {
		t.Errorf("telemetry defaults not preserved: %+v", s.Telemetry.Logging)
	}
	if s.HistoryDB != "gpuprep.db" {
		t.Errorf("expected default history db, got %s", s.HistoryDB)
	}
}

func TestLoadSettings_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("log_file: \"\"\n"), 0644); err != nil {
		t.Fatalf("failed to write settings: %v", err)
	}
	if _, err := LoadSettings(path); err == nil {
		t.Error("expected error for empty log_file")
	}
}

func TestSettings_ApplyTo(t *testing.T) {
	m, err := NewLoader().Load()
	if err != nil {
		t.Fatalf("failed to load default manifest: %v", err)
	}

	s := DefaultSettings()
	s.PythonExecutable = `C:\Python310\python.exe`
	s.ApplyTo(m)

	if m.Interpreter.Executable != s.PythonExecutable {
		t.Errorf("interpreter not overridden: %s", m.Interpreter.Executable)
	}
	for _, step := range m.Steps {
		if step.Argv[0] != s.PythonExecutable {
			t.Errorf("step %s still uses %s", step.Name, step.Argv[0])
		}
	}
}
