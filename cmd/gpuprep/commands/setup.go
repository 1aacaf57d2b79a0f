package commands

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/gpuprep/pkg/config"
	"github.com/openfroyo/gpuprep/pkg/convert"
	"github.com/openfroyo/gpuprep/pkg/deps"
	"github.com/openfroyo/gpuprep/pkg/engine"
	"github.com/openfroyo/gpuprep/pkg/errlog"
	"github.com/openfroyo/gpuprep/pkg/orchestrator"
	"github.com/openfroyo/gpuprep/pkg/probe"
	"github.com/openfroyo/gpuprep/pkg/provision"
	"github.com/openfroyo/gpuprep/pkg/runner"
	"github.com/openfroyo/gpuprep/pkg/stores"
	"github.com/openfroyo/gpuprep/pkg/telemetry"
	"github.com/openfroyo/gpuprep/pkg/toolkit"
	"github.com/openfroyo/gpuprep/pkg/ui"
)

type setupOptions struct {
	batLaunch bool
	restarted bool
	sessionID string
	dryRun    bool
	convert   bool
	model     string
}

func newSetupCommand(version string) *cobra.Command {
	opts := &setupOptions{}

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Provision the GPU toolchain",
		Long: `Provision the Python, CUDA and TensorRT toolchain on this machine.

The session runs in this order:
  1. Install missing auxiliary Python libraries
  2. Check the Python interpreter version (halts on mismatch)
  3. Download and install the CUDA toolkit if the required version is missing
  4. Run the package-manager steps (pip, torch, TensorRT, requirements)
  5. Offer to convert a model to a TensorRT engine

Installing libraries or the toolkit requires a fresh process to pick up the
new environment. The session then relaunches itself once with --restarted
and continues where it left off.

setup must be started through start.bat, which passes --bat-launch.`,
		Example: `  # Normal run (what start.bat does)
  gpuprep setup --bat-launch

  # Show what would run without installing anything
  gpuprep setup --bat-launch --dry-run

  # Convert a model without being asked
  gpuprep setup --bat-launch --convert --model best.pt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSetup(cmd.Context(), opts, version)
		},
	}

	cmd.Flags().BoolVar(&opts.batLaunch, "bat-launch", false, "set by start.bat")
	cmd.Flags().BoolVar(&opts.restarted, "restarted", false, "this process is the relaunched successor")
	cmd.Flags().StringVar(&opts.sessionID, "session", "", "session ID carried across the relaunch")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "print install steps instead of running them")
	cmd.Flags().BoolVar(&opts.convert, "convert", false, "convert a model without asking")
	cmd.Flags().StringVar(&opts.model, "model", "", "model file to convert")
	_ = cmd.Flags().MarkHidden("bat-launch")
	_ = cmd.Flags().MarkHidden("restarted")

	return cmd
}

func runSetup(ctx context.Context, opts *setupOptions, version string) error {
	// Nothing may be touched before the entry point check.
	if !opts.batLaunch {
		fmt.Fprintln(os.Stdout, engine.ErrEntryPoint.Message)
		return &ExitError{Code: 1}
	}

	settings, manifest, err := loadConfig()
	if err != nil {
		return err
	}

	if opts.sessionID == "" {
		opts.sessionID = uuid.NewString()
	}

	settings.Telemetry.ServiceVersion = version
	tel, err := telemetry.NewTelemetry(&settings.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	ctx = tel.WithContext(ctx)
	logger := tel.Logger.WithSession(opts.sessionID)

	console := ui.Stdout()
	errLog := errlog.New(inWorkDir(settings, settings.LogFile), errlog.WithLogger(tel.Logger))
	if settings.ResetLogOnFreshRun && !opts.restarted {
		if err := errLog.Reset(); err != nil {
			logger.WithError(err).Warn("failed to reset error log")
		}
	}

	store, journal := openHistory(ctx, settings, opts, logger)
	errLog.AddSink(journal.Sink())

	exec := runner.NewExecRunner(os.Stdout, os.Stderr)
	exec.Dir = settings.WorkDir
	var r runner.Runner = exec
	if opts.dryRun {
		r = dryRunner(exec, console)
	}
	r = runner.WithTelemetry(r, tel)

	interpreter := manifest.Interpreter.Executable
	prov := provision.NewProvisioner(r, errLog, console)

	var toolkitEnsurer orchestrator.ToolkitEnsurer = toolkit.NewInstaller(r, errLog, console, settings.WorkDir,
		toolkit.WithMetrics(tel.Metrics))
	if opts.dryRun {
		toolkitEnsurer = dryToolkit{console: console}
	}

	orch := orchestrator.New(orchestrator.Components{
		Deps:        deps.NewInstaller(r, interpreter, errLog, console),
		Probe:       probe.New(r, interpreter, probe.WithToolkitRoot(toolkitRoot(manifest)), probe.WithLogger(tel.Logger)),
		Toolkit:     toolkitEnsurer,
		Provisioner: prov,
		Converter:   convert.New(r, errLog, console, convert.NewHuhPrompter(settings.WorkDir), converterSettings(manifest)),
		Log:         errLog,
		Console:     console,
		Telemetry:   tel,
		Journal:     journal,
	})
	prov.OnStep(orch.StepObserver(ctx))

	report := orch.Run(ctx, buildPlan(manifest), orchestrator.Session{
		ID:        opts.sessionID,
		Restarted: opts.restarted,
		GOOS:      runtime.GOOS,
		Convert: convert.Options{
			Force:       opts.convert,
			ModelPath:   opts.model,
			Interactive: convert.StdinIsTerminal(),
		},
	})

	if err := tel.Shutdown(context.Background()); err != nil {
		logger.WithError(err).Warn("telemetry shutdown failed")
	}
	if store != nil {
		if err := store.Close(); err != nil {
			logger.WithError(err).Warn("failed to close run history")
		}
	}

	switch report.Action {
	case orchestrator.ActionRelaunch:
		return relaunch(opts, console)
	case orchestrator.ActionHalt:
		pause(ctx, settings.ExitDelay)
		return &ExitError{Code: 1}
	default:
		pause(ctx, settings.ExitDelay)
		return nil
	}
}

// openHistory opens the run-history store. History is best effort: when it
// cannot be opened the session runs without it.
func openHistory(ctx context.Context, settings *config.Settings, opts *setupOptions, logger *telemetry.Logger) (*stores.SQLiteStore, *stores.Journal) {
	if settings.HistoryDB == "" {
		return nil, nil
	}

	store, err := stores.Open(ctx, inWorkDir(settings, settings.HistoryDB))
	if err != nil {
		logger.WithError(err).Warn("run history disabled")
		return nil, nil
	}

	journal, err := stores.NewJournal(ctx, store, opts.sessionID, opts.restarted)
	if err != nil {
		logger.WithError(err).Warn("run history disabled")
		_ = store.Close()
		return nil, nil
	}
	return store, journal
}

// relaunch hands the session to the successor process and returns its exit
// status.
func relaunch(opts *setupOptions, console *ui.Console) error {
	args := orchestrator.RelaunchArgs(os.Args[1:], opts.sessionID)
	if opts.dryRun {
		console.Muted("[dry-run] would relaunch: %v", args)
		return nil
	}

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate executable: %w", err)
	}

	log.Debug().Str("executable", executable).Strs("args", args).Msg("relaunching")
	code, err := orchestrator.Relaunch(executable, args)
	if err != nil {
		return err
	}
	if code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}

// dryRunner runs read-only probes for real and prints every named step
// instead of running it.
func dryRunner(exec runner.Runner, console *ui.Console) *runner.Recorder {
	rec := runner.NewRecorder(func(ctx context.Context, spec engine.CommandSpec) (*runner.Result, error) {
		if spec.Name == "" {
			return exec.Run(ctx, spec)
		}
		console.Muted("[dry-run] %s", spec.String())
		return runner.Exit(0), nil
	})
	rec.PathLookup = exec.LookPath
	return rec
}

// dryToolkit reports the toolkit download instead of performing it.
type dryToolkit struct {
	console *ui.Console
}

func (d dryToolkit) EnsureInstalled(_ context.Context, req toolkit.Request, _ *engine.ExecutionState) *toolkit.Result {
	d.console.Muted("[dry-run] download %s", req.URL)
	d.console.Muted("[dry-run] %s", toolkit.InstallCommand(req.ArtifactName(), req.InstallerArgs).String())
	return &toolkit.Result{Artifact: req.ArtifactName()}
}
