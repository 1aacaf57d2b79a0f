// Package errlog is the append-only failure log of a provisioning session.
//
// Every failure is appended verbatim, one line per message, to a flat file in
// the working directory. The file survives relaunches, so the final tally can
// point the user at everything that went wrong across both processes.
package errlog

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/openfroyo/gpuprep/pkg/telemetry"
)

// DefaultPath is the log file name used when none is configured.
const DefaultPath = "output.txt"

// Level distinguishes counted failures from informational notes.
type Level string

const (
	LevelError Level = "error"
	LevelNote  Level = "note"
)

// Sink receives a copy of every line, for example the run-history store.
// Sink failures are reported like file failures and never propagate.
type Sink func(level Level, message string) error

// Log is the error log. The zero value is not usable; use New.
type Log struct {
	path   string
	count  int
	stderr io.Writer
	logger *telemetry.Logger
	sinks  []Sink
	mu     sync.Mutex
}

// Option configures a Log.
type Option func(*Log)

// WithStderr overrides where write failures are reported.
func WithStderr(w io.Writer) Option {
	return func(l *Log) { l.stderr = w }
}

// WithLogger mirrors records to a structured logger.
func WithLogger(logger *telemetry.Logger) Option {
	return func(l *Log) { l.logger = logger.NewComponentLogger("errlog") }
}

// WithSink adds a sink.
func WithSink(s Sink) Option {
	return func(l *Log) { l.sinks = append(l.sinks, s) }
}

// New creates a log appending to path.
func New(path string, opts ...Option) *Log {
	if path == "" {
		path = DefaultPath
	}
	l := &Log{
		path:   path,
		stderr: os.Stderr,
		logger: telemetry.NopLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// AddSink attaches a sink after construction.
func (l *Log) AddSink(s Sink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sinks = append(l.sinks, s)
}

// Record appends message and increments the failure counter. It never fails:
// problems writing the file are reported on stderr only.
func (l *Log) Record(message string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.count++
	l.logger.Error(message)
	l.write(LevelError, message)
}

// Recordf formats and records a message.
func (l *Log) Recordf(format string, args ...interface{}) {
	l.Record(fmt.Sprintf(format, args...))
}

// Note appends an informational line without counting it.
func (l *Log) Note(message string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.logger.Info(message)
	l.write(LevelNote, message)
}

// Count returns the number of failures recorded by this process.
func (l *Log) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Path returns the log file path.
func (l *Log) Path() string {
	return l.path
}

// Reset truncates the file. Only a fresh first run does this.
func (l *Log) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.Truncate(l.path, 0); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to reset error log: %w", err)
	}
	return nil
}

// Lines reads back every line in the file.
func (l *Log) Lines() ([]string, error) {
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read error log: %w", err)
	}
	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return nil, nil
	}
	return strings.Split(text, "\n"), nil
}

// write must be called with mu held.
func (l *Log) write(level Level, message string) {
	if err := l.appendLine(message); err != nil {
		fmt.Fprintf(l.stderr, "errlog: %v (message: %s)\n", err, message)
	}
	for _, sink := range l.sinks {
		if err := sink(level, message); err != nil {
			fmt.Fprintf(l.stderr, "errlog: sink failed: %v\n", err)
		}
	}
}

func (l *Log) appendLine(message string) error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(message + "\n"); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
