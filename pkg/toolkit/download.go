package toolkit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync"
	"time"
)

// ErrIdleTimeout is returned when the body stops delivering data.
var ErrIdleTimeout = errors.New("download stalled")

// Download describes a finished transfer.
type Download struct {
	// Declared is the Content-Length, or 0 when the server did not send one.
	Declared int64
	// Received is the number of body bytes written.
	Received int64
}

// Complete reports whether the received size matches a nonzero declared size.
// An undeclared length always counts as complete.
func (d *Download) Complete() bool {
	return d.Declared == 0 || d.Received == d.Declared
}

// Observer follows a transfer: Start once with the declared size, then every
// body chunk is written to it.
type Observer interface {
	io.Writer
	Start(declared int64)
}

// Downloader streams a URL to disk. There is no retry.
type Downloader struct {
	client      *http.Client
	idleTimeout time.Duration
}

// NewDownloader creates a downloader whose connect, header and idle-read
// limits are all timeout.
func NewDownloader(timeout time.Duration) *Downloader {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
	}
	return &Downloader{
		client:      &http.Client{Transport: transport},
		idleTimeout: timeout,
	}
}

// Fetch downloads url into dest, reporting to obs when it is not nil.
// The body is written to dest as it arrives; callers decide what to do with a
// short file.
func (d *Downloader) Fetch(ctx context.Context, url, dest string, obs Observer) (*Download, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%d %s for url: %s", resp.StatusCode, http.StatusText(resp.StatusCode), url)
	}

	dl := &Download{}
	if resp.ContentLength > 0 {
		dl.Declared = resp.ContentLength
	}

	f, err := os.Create(dest)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dest, err)
	}

	body := newIdleReader(resp.Body, d.idleTimeout, cancel)
	defer body.stop()

	var w io.Writer = f
	if obs != nil {
		obs.Start(dl.Declared)
		w = io.MultiWriter(f, obs)
	}

	n, copyErr := io.Copy(w, body)
	dl.Received = n

	if err := f.Close(); err != nil && copyErr == nil {
		copyErr = fmt.Errorf("failed to write %s: %w", dest, err)
	}
	if body.expired() {
		copyErr = ErrIdleTimeout
	}
	if copyErr != nil {
		return dl, copyErr
	}

	return dl, nil
}

// idleReader cancels the request when no data arrives for the timeout.
type idleReader struct {
	r       io.Reader
	timeout time.Duration
	timer   *time.Timer

	mu    sync.Mutex
	fired bool
}

func newIdleReader(r io.Reader, timeout time.Duration, cancel context.CancelFunc) *idleReader {
	ir := &idleReader{r: r, timeout: timeout}
	if timeout > 0 {
		ir.timer = time.AfterFunc(timeout, func() {
			ir.mu.Lock()
			ir.fired = true
			ir.mu.Unlock()
			cancel()
		})
	}
	return ir
}

func (ir *idleReader) Read(p []byte) (int, error) {
	n, err := ir.r.Read(p)
	if n > 0 && ir.timer != nil {
		ir.timer.Reset(ir.timeout)
	}
	return n, err
}

func (ir *idleReader) stop() {
	if ir.timer != nil {
		ir.timer.Stop()
	}
}

func (ir *idleReader) expired() bool {
	ir.mu.Lock()
	defer ir.mu.Unlock()
	return ir.fired
}
