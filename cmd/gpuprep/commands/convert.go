package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/openfroyo/gpuprep/pkg/convert"
	"github.com/openfroyo/gpuprep/pkg/engine"
	"github.com/openfroyo/gpuprep/pkg/errlog"
	"github.com/openfroyo/gpuprep/pkg/runner"
	"github.com/openfroyo/gpuprep/pkg/telemetry"
	"github.com/openfroyo/gpuprep/pkg/ui"
)

func newConvertCommand() *cobra.Command {
	var (
		model string
		yes   bool
	)

	cmd := &cobra.Command{
		Use:   "convert [model]",
		Short: "Convert a trained model to a TensorRT engine",
		Long: `Convert a .pt or .onnx model with the export CLI configured in the manifest.

Without a model argument a file picker is shown. Failures are appended to the
error log like any other provisioning failure.`,
		Example: `  # Pick a model interactively
  gpuprep convert

  # Convert a specific model
  gpuprep convert best.pt`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				model = args[0]
			}

			settings, manifest, err := loadConfig()
			if err != nil {
				return err
			}

			logger, err := telemetry.NewLogger(settings.Telemetry.Logging)
			if err != nil {
				return err
			}
			ctx := logger.WithContext(cmd.Context())

			console := ui.Stdout()
			errLog := errlog.New(inWorkDir(settings, settings.LogFile), errlog.WithLogger(logger))
			exec := runner.NewExecRunner(os.Stdout, os.Stderr)
			exec.Dir = settings.WorkDir

			converter := convert.New(exec, errLog, console, convert.NewHuhPrompter(settings.WorkDir), converterSettings(manifest))
			outcome := converter.Offer(ctx, convert.Options{
				Force:       yes || model != "",
				ModelPath:   model,
				Interactive: convert.StdinIsTerminal(),
			})

			switch outcome.Status {
			case engine.StepStatusSucceeded:
				console.Success("Converted %s", outcome.Model)
			case engine.StepStatusFailed:
				console.Summary(errLog.Count(), errLog.Path())
				return &ExitError{Code: 1}
			default:
				console.Muted("Conversion skipped.")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation question")

	return cmd
}
