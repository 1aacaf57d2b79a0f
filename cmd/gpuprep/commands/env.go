package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/openfroyo/gpuprep/pkg/config"
	"github.com/openfroyo/gpuprep/pkg/convert"
	"github.com/openfroyo/gpuprep/pkg/orchestrator"
	"github.com/openfroyo/gpuprep/pkg/probe"
	"github.com/openfroyo/gpuprep/pkg/toolkit"
)

// loadSettingsOnly reads the settings file.
func loadSettingsOnly() (*config.Settings, error) {
	return config.LoadSettings(configPath)
}

// loadConfig reads the settings file and the manifest with any overrides.
func loadConfig() (*config.Settings, *config.Manifest, error) {
	settings, err := config.LoadSettings(configPath)
	if err != nil {
		return nil, nil, err
	}
	if verbose {
		settings.Telemetry.Logging.Level = "debug"
	}

	manifest, err := config.NewLoader().Load(manifestPaths...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load manifest: %w", err)
	}
	settings.ApplyTo(manifest)

	return settings, manifest, nil
}

// buildPlan turns a resolved manifest into what the orchestrator installs.
func buildPlan(m *config.Manifest) orchestrator.Plan {
	return orchestrator.Plan{
		Interpreter:  m.Interpreter.Requirement(),
		InstallerURL: m.Interpreter.InstallerURL,
		Toolkit: toolkit.Request{
			Version:       m.Toolkit.Version,
			URL:           m.Toolkit.URL,
			Artifact:      m.Toolkit.Artifact,
			InstallerArgs: m.Toolkit.InstallerArgs,
			Timeout:       m.Toolkit.TimeoutDuration(),
		},
		Dependencies: m.DependencyList(),
		Steps:        m.CommandSpecs(),
	}
}

func converterSettings(m *config.Manifest) convert.Settings {
	return convert.Settings{
		Command:    m.Converter.Command,
		Format:     m.Converter.Format,
		ImageSize:  m.Converter.ImageSize,
		Extensions: m.Converter.Extensions,
	}
}

// inWorkDir resolves a relative settings path against the work directory.
func inWorkDir(settings *config.Settings, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(settings.WorkDir, path)
}

// pause waits before exit so a console window stays readable.
func pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func toolkitRoot(m *config.Manifest) string {
	return probe.DefaultToolkitRoot(os.Getenv, m.Toolkit.RootEnv, m.Toolkit.RootFallback)
}
