// Package deps makes sure the auxiliary Python libraries are importable.
//
// Anything installed here is invisible to an interpreter that already
// resolved its modules, so an install requests a restart instead of
// re-probing in process.
package deps

import (
	"context"
	"fmt"

	"github.com/openfroyo/gpuprep/pkg/engine"
	"github.com/openfroyo/gpuprep/pkg/errlog"
	"github.com/openfroyo/gpuprep/pkg/runner"
	"github.com/openfroyo/gpuprep/pkg/telemetry"
	"github.com/openfroyo/gpuprep/pkg/ui"
)

// Result summarizes one EnsureAll pass.
type Result struct {
	Present          []string
	Installed        []string
	Failed           []string
	RestartRequested bool
}

// Installer probes and installs auxiliary dependencies.
type Installer struct {
	runner      runner.Runner
	interpreter string
	log         *errlog.Log
	console     *ui.Console
}

// NewInstaller creates an installer using interpreter for both probing and pip.
func NewInstaller(r runner.Runner, interpreter string, log *errlog.Log, console *ui.Console) *Installer {
	return &Installer{
		runner:      r,
		interpreter: interpreter,
		log:         log,
		console:     console,
	}
}

// ImportCommand is the importability probe for a module.
func (i *Installer) ImportCommand(d engine.Dependency) engine.CommandSpec {
	return engine.Command(i.interpreter, "-c", "import "+d.Module)
}

// InstallCommand installs a package with pip.
func (i *Installer) InstallCommand(d engine.Dependency) engine.CommandSpec {
	return engine.NewCommandSpec(
		"install-"+d.Package,
		fmt.Sprintf("Installing %s...", d.Package),
		fmt.Sprintf("Failed to install %s", d.Package),
		i.interpreter, "-m", "pip", "install", d.Package,
	)
}

// EnsureAll probes each dependency and installs the missing ones. Every
// successful install sets the restart request on state.
func (i *Installer) EnsureAll(ctx context.Context, deps []engine.Dependency, state *engine.ExecutionState) *Result {
	logger := telemetry.FromContext(ctx).NewComponentLogger("deps")
	result := &Result{}

	for _, d := range deps {
		if i.importable(ctx, d) {
			logger.Debugf("%s is importable", d.Module)
			result.Present = append(result.Present, d.Package)
			continue
		}

		spec := i.InstallCommand(d)
		i.console.Step("%s", spec.Description)

		res, err := i.runner.Run(ctx, spec)
		if err == nil {
			err = res.ExitError()
		}
		if err != nil {
			logger.WithError(err).WithStep(spec.Name).Warn("dependency install failed")
			i.log.Record(spec.Failure)
			result.Failed = append(result.Failed, d.Package)
			continue
		}

		logger.WithStep(spec.Name).Infof("%s installed", d.Package)
		result.Installed = append(result.Installed, d.Package)
		state.RequestRestart()
		result.RestartRequested = true
	}

	return result
}

func (i *Installer) importable(ctx context.Context, d engine.Dependency) bool {
	res, err := i.runner.Run(ctx, i.ImportCommand(d))
	return err == nil && res.Success()
}
