package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath    string
	manifestPaths []string
	verbose       bool
	jsonOutput    bool
)

// ExitError carries a process exit status without an error message.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gpuprep",
		Short: "gpuprep - GPU machine-learning toolchain provisioning",
		Long: `gpuprep prepares a workstation for GPU inference.

It checks the Python interpreter, installs the CUDA toolkit when the required
version is missing, installs torch, TensorRT and the local requirements, and
can convert a trained model to a TensorRT engine.

Every failure is appended to the error log (output.txt by default) and counted
in the final summary. Provisioning continues past failed steps.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "settings file path (YAML)")
	rootCmd.PersistentFlags().StringArrayVarP(&manifestPaths, "manifest", "m", nil, "manifest file unified over the defaults (CUE, repeatable)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newSetupCommand(version))
	rootCmd.AddCommand(newProbeCommand())
	rootCmd.AddCommand(newConvertCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newManifestCommand())

	return rootCmd
}
