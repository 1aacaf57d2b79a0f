package toolkit

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/gpuprep/pkg/engine"
	"github.com/openfroyo/gpuprep/pkg/errlog"
	"github.com/openfroyo/gpuprep/pkg/runner"
	"github.com/openfroyo/gpuprep/pkg/ui"
)

type fixture struct {
	dir     string
	log     *errlog.Log
	rec     *runner.Recorder
	console *bytes.Buffer
	inst    *Installer
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		dir:     dir,
		log:     errlog.New(filepath.Join(dir, "output.txt")),
		rec:     runner.NewRecorder(nil),
		console: &bytes.Buffer{},
	}
	f.inst = NewInstaller(f.rec, f.log, ui.NewConsole(f.console), dir, opts...)
	return f
}

func (f *fixture) request(url string) Request {
	return Request{
		Version:       "12.6",
		URL:           url,
		Artifact:      "cuda_test.exe",
		InstallerArgs: []string{"/silent", "/noreboot"},
		Timeout:       5 * time.Second,
	}
}

func payloadServer(t *testing.T, payload []byte, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		_, _ = w.Write(payload)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEnsureInstalled_DownloadsAndInstalls(t *testing.T) {
	var hits int32
	payload := bytes.Repeat([]byte("x"), 64*1024)
	srv := payloadServer(t, payload, &hits)
	f := newFixture(t)

	var state engine.ExecutionState
	res := f.inst.EnsureInstalled(context.Background(), f.request(srv.URL+"/cuda_test.exe"), &state)

	require.NoError(t, res.Err)
	assert.True(t, res.Downloaded)
	assert.True(t, res.Installed)
	assert.True(t, state.RestartRequested)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))

	data, err := os.ReadFile(filepath.Join(f.dir, "cuda_test.exe"))
	require.NoError(t, err)
	assert.Len(t, data, len(payload))

	_, err = os.Stat(filepath.Join(f.dir, "cuda_test.exe.part"))
	assert.True(t, os.IsNotExist(err), "part file should be renamed")

	calls := f.rec.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"/silent", "/noreboot"}, calls[0].Args())
	assert.Equal(t, filepath.Join(f.dir, "cuda_test.exe"), calls[0].Program())

	assert.Equal(t, 0, f.log.Count())
	lines, err := f.log.Lines()
	require.NoError(t, err)
	assert.Equal(t, []string{noteDownloaded, noteInstalled}, lines)
}

func TestEnsureInstalled_ArtifactPresentSkipsNetwork(t *testing.T) {
	var hits int32
	srv := payloadServer(t, []byte("unused"), &hits)
	f := newFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "cuda_test.exe"), []byte("installer"), 0755))

	var state engine.ExecutionState
	res := f.inst.EnsureInstalled(context.Background(), f.request(srv.URL+"/cuda_test.exe"), &state)

	require.NoError(t, res.Err)
	assert.False(t, res.Downloaded)
	assert.True(t, res.Installed)
	assert.EqualValues(t, 0, atomic.LoadInt32(&hits), "no network request expected")
	assert.Len(t, f.rec.Calls(), 1)
}

func TestEnsureInstalled_SizeMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		_, _ = w.Write([]byte(strings.Repeat("x", 400)))
	}))
	t.Cleanup(srv.Close)
	f := newFixture(t)

	var state engine.ExecutionState
	res := f.inst.EnsureInstalled(context.Background(), f.request(srv.URL), &state)

	require.Error(t, res.Err)
	assert.Equal(t, engine.ErrCodeSizeMismatch, engine.CodeOf(res.Err))
	assert.False(t, res.Installed)
	assert.False(t, state.RestartRequested)
	assert.Empty(t, f.rec.Calls(), "installer must not run")
	assert.Equal(t, 1, f.log.Count())

	lines, err := f.log.Lines()
	require.NoError(t, err)
	assert.Equal(t, []string{msgDownloadSize}, lines)

	_, err = os.Stat(filepath.Join(f.dir, "cuda_test.exe"))
	assert.True(t, os.IsNotExist(err), "a short download must not leave an artifact behind")
	_, err = os.Stat(filepath.Join(f.dir, "cuda_test.exe.part"))
	assert.True(t, os.IsNotExist(err))
}

func TestEnsureInstalled_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)
	f := newFixture(t)

	var state engine.ExecutionState
	res := f.inst.EnsureInstalled(context.Background(), f.request(srv.URL), &state)

	require.Error(t, res.Err)
	assert.Equal(t, engine.ErrCodeDownloadFailed, engine.CodeOf(res.Err))
	assert.Empty(t, f.rec.Calls())
	assert.Equal(t, 1, f.log.Count())

	lines, _ := f.log.Lines()
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "Failed to download CUDA Toolkit: 404"), lines[0])
}

func TestEnsureInstalled_InstallerFails(t *testing.T) {
	f := newFixture(t)
	f.rec.Handler = func(context.Context, engine.CommandSpec) (*runner.Result, error) {
		return runner.Exit(1602), nil
	}
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "cuda_test.exe"), []byte("installer"), 0755))

	var state engine.ExecutionState
	res := f.inst.EnsureInstalled(context.Background(), f.request("http://unused.invalid/x.exe"), &state)

	require.Error(t, res.Err)
	assert.Equal(t, engine.ErrorClassLogged, engine.ClassOf(res.Err))
	assert.False(t, state.RestartRequested)
	assert.Equal(t, 1, f.log.Count())

	lines, _ := f.log.Lines()
	assert.Equal(t, []string{"Failed to install Cuda Toolkit due to: exit status 1602"}, lines)
}

func TestEnsureInstalled_IdleTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100")
		_, _ = w.Write([]byte("partial"))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})
	f := newFixture(t)

	req := f.request(srv.URL)
	req.Timeout = 200 * time.Millisecond

	var state engine.ExecutionState
	res := f.inst.EnsureInstalled(context.Background(), req, &state)

	require.Error(t, res.Err)
	assert.Empty(t, f.rec.Calls())
	assert.Equal(t, 1, f.log.Count())
}

func TestRequest_ArtifactName(t *testing.T) {
	tests := []struct {
		req  Request
		want string
	}{
		{Request{Artifact: "a.exe", URL: "https://x/y/b.exe"}, "a.exe"},
		{Request{URL: "https://x/y/b.exe?sig=1"}, "b.exe"},
		{Request{URL: "::bad"}, "cuda_installer.exe"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.req.ArtifactName())
	}
}

func TestProgress_NonTerminal(t *testing.T) {
	var out bytes.Buffer
	p := NewProgress(&out, false)
	p.Done()
	assert.Empty(t, out.String(), "nothing is printed before the transfer starts")

	p.Start(1000)
	for i := 0; i < 10; i++ {
		_, _ = p.Write(make([]byte, 100))
	}
	p.Done()

	assert.EqualValues(t, 1000, p.Received())
	assert.Contains(t, out.String(), "100% 1.0 kB / 1.0 kB")
	assert.NotContains(t, out.String(), "\r")
}

func TestProgress_Terminal(t *testing.T) {
	var out bytes.Buffer
	p := NewProgress(&out, true)
	p.Start(2048)
	_, _ = p.Write(make([]byte, 2048))
	p.Done()

	assert.Contains(t, out.String(), "\r")
	assert.Contains(t, out.String(), "2.0 kB / 2.0 kB")
}
