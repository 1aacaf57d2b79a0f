// Package convert offers to convert a trained model into a TensorRT engine
// with the yolo export CLI.
//
// Conversion is opt-in. The extension of the chosen file is checked here even
// though the picker filters it, because a path can also be typed in.
package convert

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/openfroyo/gpuprep/pkg/engine"
	"github.com/openfroyo/gpuprep/pkg/errlog"
	"github.com/openfroyo/gpuprep/pkg/runner"
	"github.com/openfroyo/gpuprep/pkg/telemetry"
	"github.com/openfroyo/gpuprep/pkg/ui"
)

// Question is the opt-in prompt.
const Question = "Would you like to convert a model to a TensorRT engine?"

// Settings configure the conversion CLI.
type Settings struct {
	Command    string
	Format     string
	ImageSize  int
	Extensions []string
}

// Options come from the command line.
type Options struct {
	// Force skips the yes/no question.
	Force bool

	// ModelPath skips the file picker.
	ModelPath string

	// Interactive reports whether prompts can be shown. Without it and
	// without Force, conversion is declined.
	Interactive bool
}

// Outcome describes what the convert phase did.
type Outcome struct {
	Accepted bool
	Model    string
	Status   engine.StepStatus
	Err      error
}

// Converter runs the optional conversion.
type Converter struct {
	runner   runner.Runner
	log      *errlog.Log
	console  *ui.Console
	prompter Prompter
	settings Settings
}

// New creates a converter.
func New(r runner.Runner, log *errlog.Log, console *ui.Console, prompter Prompter, settings Settings) *Converter {
	return &Converter{
		runner:   r,
		log:      log,
		console:  console,
		prompter: prompter,
		settings: settings,
	}
}

// Command builds the export invocation for a model.
func (c *Converter) Command(model string) engine.CommandSpec {
	return engine.NewCommandSpec(
		"convert-model",
		fmt.Sprintf("Converting %s to %s...", filepath.Base(model), c.settings.Format),
		"Failed to convert model",
		c.settings.Command,
		"export",
		"model="+model,
		"format="+c.settings.Format,
		"imgsz="+strconv.Itoa(c.settings.ImageSize),
	)
}

// Offer asks whether to convert, lets the user pick a model and converts it.
// Declining or cancelling is a skip, not an error.
func (c *Converter) Offer(ctx context.Context, opts Options) Outcome {
	logger := telemetry.FromContext(ctx).NewComponentLogger("convert")
	skipped := Outcome{Status: engine.StepStatusSkipped}

	if !opts.Force {
		if !opts.Interactive {
			logger.Debug("no terminal, skipping conversion prompt")
			return skipped
		}
		ok, err := c.prompter.Confirm(ctx, Question)
		if err != nil && !errors.Is(err, ErrCancelled) {
			logger.WithError(err).Warn("conversion prompt failed")
		}
		if !ok {
			return skipped
		}
	}

	model := opts.ModelPath
	if model == "" {
		if !opts.Interactive {
			logger.Warn("conversion requested without a model path and no terminal to pick one")
			return skipped
		}
		picked, err := c.prompter.PickFile(ctx, "Select a model file", c.settings.Extensions)
		if err != nil {
			if !errors.Is(err, ErrCancelled) {
				logger.WithError(err).Warn("file picker failed")
			}
			return skipped
		}
		model = picked
	}

	outcome := Outcome{Accepted: true, Model: model}
	if err := c.Convert(ctx, model); err != nil {
		outcome.Status = engine.StepStatusFailed
		outcome.Err = err
		return outcome
	}
	outcome.Status = engine.StepStatusSucceeded
	return outcome
}

// Convert validates the model extension and runs the export CLI. Failures
// are recorded exactly once.
func (c *Converter) Convert(ctx context.Context, model string) error {
	if !c.Allowed(model) {
		perr := engine.NewLoggedError(
			fmt.Sprintf("invalid format: %s (expected %s)", model, strings.Join(c.settings.Extensions, " or ")), nil,
		).WithCode(engine.ErrCodeInvalidFormat)
		c.log.Record(perr.Message)
		return perr
	}

	spec := c.Command(model)
	c.console.Step("%s", spec.Description)

	res, err := c.runner.Run(ctx, spec)
	if err == nil {
		err = res.ExitError()
	}
	if err != nil {
		perr := engine.NewLoggedError(spec.Failure, err).WithCode(engine.ErrCodeConvertFailed).WithStep(spec.Name)
		c.log.Recordf("%s: %v", spec.Failure, err)
		return perr
	}

	c.console.Success("Model converted")
	return nil
}

// Allowed reports whether the extension of model is accepted, ignoring case.
func (c *Converter) Allowed(model string) bool {
	ext := strings.ToLower(filepath.Ext(model))
	for _, allowed := range c.settings.Extensions {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}
