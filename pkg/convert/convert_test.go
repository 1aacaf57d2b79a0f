package convert

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/gpuprep/pkg/engine"
	"github.com/openfroyo/gpuprep/pkg/errlog"
	"github.com/openfroyo/gpuprep/pkg/runner"
	"github.com/openfroyo/gpuprep/pkg/ui"
)

// scriptedPrompter answers prompts from fixed values.
type scriptedPrompter struct {
	answer     bool
	confirmErr error
	file       string
	pickErr    error

	confirms int
	picks    int
	exts     []string
}

func (p *scriptedPrompter) Confirm(context.Context, string) (bool, error) {
	p.confirms++
	return p.answer, p.confirmErr
}

func (p *scriptedPrompter) PickFile(_ context.Context, _ string, extensions []string) (string, error) {
	p.picks++
	p.exts = extensions
	return p.file, p.pickErr
}

func defaultSettings() Settings {
	return Settings{Command: "yolo", Format: "engine", ImageSize: 320, Extensions: []string{".pt", ".onnx"}}
}

func setup(t *testing.T, prompter Prompter) (*Converter, *runner.Recorder, *errlog.Log) {
	t.Helper()
	rec := runner.NewRecorder(nil)
	log := errlog.New(filepath.Join(t.TempDir(), "output.txt"))
	return New(rec, log, ui.NewConsole(&bytes.Buffer{}), prompter, defaultSettings()), rec, log
}

func TestOffer_Declined(t *testing.T) {
	prompter := &scriptedPrompter{answer: false}
	conv, rec, log := setup(t, prompter)

	outcome := conv.Offer(context.Background(), Options{Interactive: true})

	assert.Equal(t, engine.StepStatusSkipped, outcome.Status)
	assert.False(t, outcome.Accepted)
	assert.Equal(t, 1, prompter.confirms)
	assert.Equal(t, 0, prompter.picks)
	assert.Empty(t, rec.Calls(), "converter must never be invoked")
	assert.Equal(t, 0, log.Count())
}

func TestOffer_PromptAbortedCountsAsNo(t *testing.T) {
	prompter := &scriptedPrompter{answer: false, confirmErr: ErrCancelled}
	conv, rec, log := setup(t, prompter)

	outcome := conv.Offer(context.Background(), Options{Interactive: true})

	assert.Equal(t, engine.StepStatusSkipped, outcome.Status)
	assert.Empty(t, rec.Calls())
	assert.Equal(t, 0, log.Count())
}

func TestOffer_NonInteractiveSkips(t *testing.T) {
	prompter := &scriptedPrompter{answer: true, file: "model.pt"}
	conv, rec, _ := setup(t, prompter)

	outcome := conv.Offer(context.Background(), Options{})

	assert.Equal(t, engine.StepStatusSkipped, outcome.Status)
	assert.Equal(t, 0, prompter.confirms)
	assert.Empty(t, rec.Calls())
}

func TestOffer_AcceptedAndPicked(t *testing.T) {
	prompter := &scriptedPrompter{answer: true, file: filepath.Join("models", "best.pt")}
	conv, rec, log := setup(t, prompter)

	outcome := conv.Offer(context.Background(), Options{Interactive: true})

	require.Equal(t, engine.StepStatusSucceeded, outcome.Status)
	assert.True(t, outcome.Accepted)
	assert.Equal(t, []string{".pt", ".onnx"}, prompter.exts)

	calls := rec.Calls()
	require.Len(t, calls, 1)
	want := "yolo export model=" + filepath.Join("models", "best.pt") + " format=engine imgsz=320"
	assert.Equal(t, want, calls[0].String())
	assert.Equal(t, 0, log.Count())
}

func TestOffer_ForcedWithModelPath(t *testing.T) {
	prompter := &scriptedPrompter{}
	conv, rec, _ := setup(t, prompter)

	outcome := conv.Offer(context.Background(), Options{Force: true, ModelPath: "net.ONNX"})

	assert.Equal(t, engine.StepStatusSucceeded, outcome.Status)
	assert.Equal(t, 0, prompter.confirms)
	assert.Equal(t, 0, prompter.picks)
	assert.Len(t, rec.Calls(), 1)
}

func TestOffer_PickerCancelled(t *testing.T) {
	prompter := &scriptedPrompter{answer: true, pickErr: ErrCancelled}
	conv, rec, log := setup(t, prompter)

	outcome := conv.Offer(context.Background(), Options{Interactive: true})

	assert.Equal(t, engine.StepStatusSkipped, outcome.Status)
	assert.Empty(t, rec.Calls())
	assert.Equal(t, 0, log.Count())
}

func TestConvert_InvalidFormat(t *testing.T) {
	conv, rec, log := setup(t, &scriptedPrompter{})

	err := conv.Convert(context.Background(), "notes.txt")

	require.Error(t, err)
	assert.Equal(t, engine.ErrCodeInvalidFormat, engine.CodeOf(err))
	assert.Empty(t, rec.Calls(), "no CLI invocation for an invalid file")
	assert.Equal(t, 1, log.Count())

	lines, _ := log.Lines()
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "invalid format"), lines[0])
}

func TestOffer_TypedPathWithBadExtension(t *testing.T) {
	prompter := &scriptedPrompter{answer: true, file: "weights.txt"}
	conv, rec, log := setup(t, prompter)

	outcome := conv.Offer(context.Background(), Options{Interactive: true})

	assert.Equal(t, engine.StepStatusFailed, outcome.Status)
	assert.Empty(t, rec.Calls())
	assert.Equal(t, 1, log.Count())
}

func TestConvert_CLIFails(t *testing.T) {
	conv, rec, log := setup(t, &scriptedPrompter{})
	rec.Handler = func(context.Context, engine.CommandSpec) (*runner.Result, error) {
		return nil, errors.New(`exec: "yolo": executable file not found`)
	}

	err := conv.Convert(context.Background(), "best.pt")

	require.Error(t, err)
	assert.Equal(t, engine.ErrCodeConvertFailed, engine.CodeOf(err))
	assert.Equal(t, 1, log.Count())
}

func TestAllowed(t *testing.T) {
	conv, _, _ := setup(t, &scriptedPrompter{})
	for path, want := range map[string]bool{
		"a.pt":      true,
		"a.PT":      true,
		"a.onnx":    true,
		"a.txt":     false,
		"a":         false,
		"dir.pt/a":  false,
		"a.pt.onnx": true,
		"a.engine":  false,
	} {
		assert.Equal(t, want, conv.Allowed(path), path)
	}
}
