package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/gpuprep/pkg/probe"
	"github.com/openfroyo/gpuprep/pkg/runner"
	"github.com/openfroyo/gpuprep/pkg/ui"
)

// probeReport is the JSON form of the probe command.
type probeReport struct {
	Interpreter     probe.VersionCheck `json:"interpreter"`
	Toolkit         probe.VersionCheck `json:"toolkit"`
	ToolkitRoot     string             `json:"toolkit_root"`
	CompilerRelease string             `json:"compiler_release,omitempty"`
}

func newProbeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Report installed interpreter and toolkit versions",
		Long: `Inspect the machine without changing it.

Reports the Python interpreter version, the CUDA toolkit versions found under
the toolkit root and the release of the CUDA compiler on PATH, and compares
them with the versions the manifest requires.`,
		Example: `  # Human-readable report
  gpuprep probe

  # JSON for scripts
  gpuprep probe --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			_, manifest, err := loadConfig()
			if err != nil {
				return err
			}

			p := probe.New(runner.NewExecRunner(nil, nil), manifest.Interpreter.Executable,
				probe.WithToolkitRoot(toolkitRoot(manifest)))

			report := probeReport{
				Interpreter: p.CheckInterpreterVersion(ctx, manifest.Interpreter.Version),
				ToolkitRoot: p.ToolkitRoot(),
			}
			report.Toolkit, err = p.CheckToolkitVersion(manifest.Toolkit.Version)
			if err != nil {
				return fmt.Errorf("failed to scan %s: %w", p.ToolkitRoot(), err)
			}
			release, err := p.CompilerRelease(ctx)
			if err != nil {
				log.Debug().Err(err).Msg("nvcc release unavailable")
			}
			report.CompilerRelease = release

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}

			printProbe(ui.Stdout(), report)
			return nil
		},
	}
}

func printProbe(console *ui.Console, r probeReport) {
	line := func(name string, check probe.VersionCheck) {
		found := check.Found
		if found == "" {
			found = "not found"
		}
		if check.Match {
			console.Success("%-12s %s", name, found)
		} else {
			console.Error("%-12s %s (required %s)", name, found, check.Expected)
		}
	}

	line("Python", r.Interpreter)
	line("CUDA", r.Toolkit)
	if len(r.Toolkit.All) > 0 {
		console.Muted("%-12s %s", "installed", strings.Join(r.Toolkit.All, ", "))
	}
	console.Muted("%-12s %s", "root", r.ToolkitRoot)
	if r.CompilerRelease != "" {
		console.Info("%-12s %s", "nvcc", r.CompilerRelease)
	} else {
		console.Muted("%-12s %s", "nvcc", "not on PATH")
	}
}
