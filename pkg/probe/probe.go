// Package probe inspects the machine: the interpreter version, the installed
// CUDA toolkit versions and the compiler release.
package probe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/openfroyo/gpuprep/pkg/engine"
	"github.com/openfroyo/gpuprep/pkg/runner"
	"github.com/openfroyo/gpuprep/pkg/telemetry"
)

// ToolkitSubdir is the CUDA directory under the program files root.
var ToolkitSubdir = filepath.Join("NVIDIA GPU Computing Toolkit", "CUDA")

var (
	triplet = regexp.MustCompile(`(\d+)\.(\d+)\.(\d+)`)
	release = regexp.MustCompile(`release (\d+\.\d+)`)
)

// VersionCheck is the result of comparing a probed version to a requirement.
type VersionCheck struct {
	Expected string   `json:"expected"`
	Found    string   `json:"found"`
	Match    bool     `json:"match"`
	All      []string `json:"all,omitempty"`
}

// Probe runs environment checks.
type Probe struct {
	runner      runner.Runner
	interpreter string
	root        string
	logger      *telemetry.Logger
}

// Option configures a Probe.
type Option func(*Probe)

// WithToolkitRoot overrides the toolkit installation root.
func WithToolkitRoot(root string) Option {
	return func(p *Probe) { p.root = root }
}

// WithLogger sets the diagnostic logger.
func WithLogger(logger *telemetry.Logger) Option {
	return func(p *Probe) { p.logger = logger.NewComponentLogger("probe") }
}

// New creates a probe that queries interpreter through r.
func New(r runner.Runner, interpreter string, opts ...Option) *Probe {
	p := &Probe{
		runner:      r,
		interpreter: interpreter,
		root:        DefaultToolkitRoot(os.Getenv, "ProgramFiles", `C:\Program Files`),
		logger:      telemetry.NopLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DefaultToolkitRoot locates the toolkit root from the program files
// variable, falling back when it is unset.
func DefaultToolkitRoot(getenv func(string) string, envVar, fallback string) string {
	base := getenv(envVar)
	if base == "" {
		base = fallback
	}
	return filepath.Join(base, ToolkitSubdir)
}

// ToolkitRoot returns the directory scanned for toolkit versions.
func (p *Probe) ToolkitRoot() string {
	return p.root
}

// CheckInterpreterVersion compares the interpreter version to expected by
// exact string match. An interpreter that cannot run is a mismatch with an
// empty Found.
func (p *Probe) CheckInterpreterVersion(ctx context.Context, expected string) VersionCheck {
	check := VersionCheck{Expected: expected}

	res, err := p.runner.Run(ctx, engine.Command(p.interpreter, "--version"))
	if err != nil {
		p.logger.WithError(err).Warn("interpreter could not be started")
		return check
	}
	if !res.Success() {
		p.logger.Warnf("interpreter version query exited %d", res.ExitCode)
		return check
	}

	check.Found = ParseInterpreterVersion(res.Output())
	check.Match = check.Found != "" && check.Found == expected
	p.logger.WithField("found", check.Found).WithField("expected", expected).Debug("interpreter version probed")
	return check
}

// ParseInterpreterVersion extracts the first X.Y.Z triplet from output.
func ParseInterpreterVersion(output string) string {
	m := triplet.FindString(output)
	if m == "" || !semver.IsValid("v"+m) {
		return ""
	}
	return m
}

// CheckToolkitVersion reports whether required is among the installed
// toolkit versions. A missing root means nothing is installed.
func (p *Probe) CheckToolkitVersion(required string) (VersionCheck, error) {
	check := VersionCheck{Expected: required}

	versions, err := InstalledToolkits(p.root)
	if err != nil {
		return check, err
	}
	check.All = versions

	for _, v := range versions {
		if v == required {
			check.Found = v
			check.Match = true
			break
		}
	}
	if !check.Match && len(versions) > 0 {
		check.Found = versions[len(versions)-1]
	}

	p.logger.WithField("root", p.root).WithField("versions", strings.Join(versions, ",")).Debug("toolkit versions probed")
	return check, nil
}

// InstalledToolkits lists v<major>.<minor> subdirectories of root, lowest
// version first, without the leading "v".
func InstalledToolkits(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan toolkit root %s: %w", root, err)
	}

	var tags []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || !strings.HasPrefix(name, "v") || !semver.IsValid(name) {
			continue
		}
		tags = append(tags, name)
	}

	sort.Slice(tags, func(i, j int) bool {
		return semver.Compare(tags[i], tags[j]) < 0
	})

	versions := make([]string, 0, len(tags))
	for _, tag := range tags {
		versions = append(versions, strings.TrimPrefix(tag, "v"))
	}
	return versions, nil
}

// CompilerRelease runs nvcc and returns its "release X.Y" value, or "" when
// nvcc is absent or prints no release.
func (p *Probe) CompilerRelease(ctx context.Context) (string, error) {
	if _, err := p.runner.LookPath("nvcc"); err != nil {
		return "", nil
	}

	res, err := p.runner.Run(ctx, engine.Command("nvcc", "--version"))
	if err != nil {
		return "", fmt.Errorf("failed to run nvcc: %w", err)
	}
	if !res.Success() {
		return "", fmt.Errorf("nvcc --version: %w", res.ExitError())
	}

	m := release.FindStringSubmatch(res.Output())
	if m == nil {
		return "", nil
	}
	return m[1], nil
}
