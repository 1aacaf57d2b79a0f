package convert

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
)

// ErrCancelled is returned when the user backs out of a prompt.
var ErrCancelled = errors.New("cancelled")

// Prompter asks the user questions.
type Prompter interface {
	// Confirm asks a yes/no question. Anything but an explicit yes is false.
	Confirm(ctx context.Context, question string) (bool, error)

	// PickFile lets the user choose a file with one of the given extensions.
	PickFile(ctx context.Context, title string, extensions []string) (string, error)
}

// HuhPrompter prompts on a terminal with huh forms.
type HuhPrompter struct {
	In  io.Reader
	Out io.Writer
	Dir string
}

// NewHuhPrompter creates a prompter on stdin/stdout starting in dir.
func NewHuhPrompter(dir string) *HuhPrompter {
	return &HuhPrompter{In: os.Stdin, Out: os.Stdout, Dir: dir}
}

// Confirm shows a yes/no prompt.
func (p *HuhPrompter) Confirm(ctx context.Context, question string) (bool, error) {
	var ok bool
	field := huh.NewConfirm().
		Title(question).
		Affirmative("Yes").
		Negative("No").
		Value(&ok)

	if err := p.run(ctx, field); err != nil {
		return false, err
	}
	return ok, nil
}

// PickFile shows a file picker limited to extensions.
func (p *HuhPrompter) PickFile(ctx context.Context, title string, extensions []string) (string, error) {
	var path string
	field := huh.NewFilePicker().
		Title(title).
		CurrentDirectory(p.Dir).
		AllowedTypes(extensions).
		FileAllowed(true).
		DirAllowed(false).
		Picking(true).
		Height(12).
		Value(&path)

	if err := p.run(ctx, field); err != nil {
		return "", err
	}
	if path == "" {
		return "", ErrCancelled
	}
	return path, nil
}

func (p *HuhPrompter) run(ctx context.Context, field huh.Field) error {
	form := huh.NewForm(huh.NewGroup(field)).
		WithInput(p.In).
		WithOutput(p.Out).
		WithShowHelp(true)

	err := form.RunWithContext(ctx)
	if errors.Is(err, huh.ErrUserAborted) {
		return ErrCancelled
	}
	return err
}

// StdinIsTerminal reports whether prompts can be shown at all.
func StdinIsTerminal() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
