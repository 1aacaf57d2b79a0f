// Package toolkit downloads and silently installs the CUDA toolkit.
//
// The installer artifact is downloaded next to the working directory under a
// temporary name and renamed only once its size checks out, so an artifact
// that exists under its final name is always complete and is never fetched
// again.
package toolkit

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/openfroyo/gpuprep/pkg/engine"
	"github.com/openfroyo/gpuprep/pkg/errlog"
	"github.com/openfroyo/gpuprep/pkg/runner"
	"github.com/openfroyo/gpuprep/pkg/telemetry"
	"github.com/openfroyo/gpuprep/pkg/ui"
)

const (
	msgDownloadSize = "Error downloading file."
	noteDownloaded  = "Cuda Toolkit downloaded"
	noteInstalled   = "Cuda Toolkit installed successfully"
)

// Request says which toolkit to install and where to get it.
type Request struct {
	Version       string
	URL           string
	Artifact      string
	InstallerArgs []string
	Timeout       time.Duration
}

// ArtifactName returns the configured artifact, or the last element of the
// URL path.
func (r Request) ArtifactName() string {
	if r.Artifact != "" {
		return r.Artifact
	}
	if u, err := url.Parse(r.URL); err == nil && u.Path != "" {
		return path.Base(u.Path)
	}
	return "cuda_installer.exe"
}

// Result reports what EnsureInstalled did.
type Result struct {
	Downloaded       bool
	Installed        bool
	RestartRequested bool
	Artifact         string
	Err              error
}

// Installer obtains and runs the toolkit installer.
type Installer struct {
	runner  runner.Runner
	log     *errlog.Log
	console *ui.Console
	metrics *telemetry.Metrics
	dir     string
}

// Option configures an Installer.
type Option func(*Installer)

// WithMetrics counts downloaded bytes.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(i *Installer) { i.metrics = m }
}

// NewInstaller creates an installer that keeps the artifact in dir.
func NewInstaller(r runner.Runner, log *errlog.Log, console *ui.Console, dir string, opts ...Option) *Installer {
	i := &Installer{
		runner:  r,
		log:     log,
		console: console,
		dir:     dir,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// InstallCommand is the silent installer invocation for an artifact.
func InstallCommand(artifact string, args []string) engine.CommandSpec {
	argv := append([]string{artifact}, args...)
	return engine.NewCommandSpec(
		"install-toolkit",
		"Installing Cuda Toolkit...",
		"Failed to install Cuda Toolkit",
		argv...,
	)
}

// EnsureInstalled downloads the artifact unless it is already present, then
// runs it. Failures are recorded in the error log and returned in Result.Err;
// they never abort the session. A successful install requests a restart.
func (i *Installer) EnsureInstalled(ctx context.Context, req Request, state *engine.ExecutionState) *Result {
	logger := telemetry.FromContext(ctx).NewComponentLogger("toolkit")
	artifact := filepath.Join(i.dir, req.ArtifactName())
	result := &Result{Artifact: artifact}

	if _, err := os.Stat(artifact); err == nil {
		logger.WithField("artifact", artifact).Info("installer already downloaded")
		i.console.Muted("Found %s, skipping download.", req.ArtifactName())
	} else {
		if perr := i.download(ctx, req, artifact); perr != nil {
			i.log.Record(perr.Message)
			i.metrics.RecordError(perr.Code)
			logger.WithError(perr).Warn("toolkit download failed")
			result.Err = perr
			return result
		}
		result.Downloaded = true
		i.console.Info("Cuda Toolkit downloaded. Attempting to install..")
		i.log.Note(noteDownloaded)
	}

	// Installers are often not marked executable after download.
	_ = os.Chmod(artifact, 0755)

	spec := InstallCommand(artifact, req.InstallerArgs)
	i.console.Step("%s", spec.Description)

	res, err := i.runner.Run(ctx, spec)
	if err == nil {
		err = res.ExitError()
	}
	if err != nil {
		perr := engine.NewLoggedError(fmt.Sprintf("Failed to install Cuda Toolkit due to: %v", err), err).
			WithCode(engine.ErrCodeInstallFailed).
			WithStep(spec.Name)
		i.log.Record(perr.Message)
		i.metrics.RecordError(perr.Code)
		logger.WithError(err).Warn("toolkit installer failed")
		result.Err = perr
		return result
	}

	i.console.Success("Cuda Toolkit installed")
	i.log.Note(noteInstalled)
	logger.WithField("version", req.Version).Info("toolkit installed")

	result.Installed = true
	result.RestartRequested = true
	state.RequestRestart()
	return result
}

// download fetches into a .part file and renames it into place on success.
func (i *Installer) download(ctx context.Context, req Request, artifact string) *engine.ProvisionError {
	i.console.Step("Downloading Cuda Toolkit...")
	part := artifact + ".part"

	bar := NewProgress(i.console.Writer(), i.console.Terminal())
	dl, err := NewDownloader(req.Timeout).Fetch(ctx, req.URL, part, bar)
	bar.Done()
	if dl != nil {
		i.metrics.AddDownloadBytes(dl.Received)
	}

	if dl != nil && !dl.Complete() {
		_ = os.Remove(part)
		return engine.NewLoggedError(msgDownloadSize, err).
			WithCode(engine.ErrCodeSizeMismatch).
			WithDetail("declared", dl.Declared).
			WithDetail("received", dl.Received)
	}
	if err != nil {
		_ = os.Remove(part)
		return engine.NewLoggedError(fmt.Sprintf("Failed to download CUDA Toolkit: %v", err), err).
			WithCode(engine.ErrCodeDownloadFailed)
	}

	if err := os.Rename(part, artifact); err != nil {
		_ = os.Remove(part)
		return engine.NewLoggedError(fmt.Sprintf("Failed to download CUDA Toolkit: %v", err), err).
			WithCode(engine.ErrCodeDownloadFailed)
	}
	return nil
}
