// Package ui renders the running commentary shown to the user.
//
// This is separate from diagnostic logging: the console prints one line per
// step the way the user expects to follow an installer, while zerolog carries
// structured detail for troubleshooting.
package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Console prints styled progress messages.
type Console struct {
	out      io.Writer
	terminal bool

	step    lipgloss.Style
	info    lipgloss.Style
	success lipgloss.Style
	warn    lipgloss.Style
	fail    lipgloss.Style
	muted   lipgloss.Style
}

// NewConsole creates a console writing to out. Styles are disabled when out
// is not a terminal.
func NewConsole(out io.Writer) *Console {
	renderer := lipgloss.NewRenderer(out)
	return &Console{
		out:      out,
		terminal: IsTerminal(out),
		step:     renderer.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		info:     renderer.NewStyle(),
		success:  renderer.NewStyle().Foreground(lipgloss.Color("10")),
		warn:     renderer.NewStyle().Foreground(lipgloss.Color("11")),
		fail:     renderer.NewStyle().Foreground(lipgloss.Color("9")),
		muted:    renderer.NewStyle().Faint(true),
	}
}

// Stdout returns a console on standard output.
func Stdout() *Console {
	return NewConsole(os.Stdout)
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Writer returns the underlying writer, for progress bars.
func (c *Console) Writer() io.Writer {
	return c.out
}

// Terminal reports whether the console is interactive.
func (c *Console) Terminal() bool {
	return c.terminal
}

// Step announces the start of a step.
func (c *Console) Step(format string, args ...interface{}) {
	c.println(c.step, format, args...)
}

// Info prints a plain message.
func (c *Console) Info(format string, args ...interface{}) {
	c.println(c.info, format, args...)
}

// Success prints a success message.
func (c *Console) Success(format string, args ...interface{}) {
	c.println(c.success, format, args...)
}

// Warn prints a warning.
func (c *Console) Warn(format string, args ...interface{}) {
	c.println(c.warn, format, args...)
}

// Error prints an error message.
func (c *Console) Error(format string, args ...interface{}) {
	c.println(c.fail, format, args...)
}

// Muted prints secondary detail.
func (c *Console) Muted(format string, args ...interface{}) {
	c.println(c.muted, format, args...)
}

// Summary prints the final tally.
func (c *Console) Summary(errorCount int, logPath string) {
	if errorCount == 0 {
		c.Success("done!")
		return
	}
	c.Error("At least %d errors occurred.", errorCount)
	if logPath != "" {
		c.Muted("See %s for details.", logPath)
	}
}

func (c *Console) println(style lipgloss.Style, format string, args ...interface{}) {
	fmt.Fprintln(c.out, style.Render(fmt.Sprintf(format, args...)))
}
