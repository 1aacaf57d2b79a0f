package toolkit

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/dustin/go-humanize"
)

// Progress renders download progress. On a terminal it redraws a bar in
// place; otherwise it prints a line every tenth of the download.
type Progress struct {
	out      io.Writer
	bar      progress.Model
	terminal bool
	total    int64
	received int64
	started  bool

	lastDraw   time.Time
	lastDecile int64
}

// NewProgress creates a progress renderer.
func NewProgress(out io.Writer, terminal bool) *Progress {
	return &Progress{
		out:        out,
		bar:        progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		terminal:   terminal,
		lastDecile: -1,
	}
}

// Start sets the declared size. Zero means the length is unknown.
func (p *Progress) Start(total int64) {
	p.total = total
	p.received = 0
	p.started = true
}

// Write counts received bytes. It never fails.
func (p *Progress) Write(b []byte) (int, error) {
	p.received += int64(len(b))
	p.render(false)
	return len(b), nil
}

// Received returns the byte count so far.
func (p *Progress) Received() int64 {
	return p.received
}

// Done draws the final state. It prints nothing if the transfer never started.
func (p *Progress) Done() {
	if !p.started {
		return
	}
	p.render(true)
	if p.terminal {
		fmt.Fprintln(p.out)
	}
}

func (p *Progress) render(final bool) {
	if p.out == nil || !p.started {
		return
	}

	if !p.terminal {
		if p.total <= 0 {
			if final {
				fmt.Fprintf(p.out, "downloaded %s\n", humanize.Bytes(uint64(p.received)))
			}
			return
		}
		decile := p.received * 10 / p.total
		if decile > 10 {
			decile = 10
		}
		if decile != p.lastDecile && (decile > p.lastDecile || final) {
			p.lastDecile = decile
			fmt.Fprintf(p.out, "%3d%% %s / %s\n", decile*10, humanize.Bytes(uint64(p.received)), humanize.Bytes(uint64(p.total)))
		}
		return
	}

	if !final && time.Since(p.lastDraw) < 100*time.Millisecond {
		return
	}
	p.lastDraw = time.Now()

	if p.total <= 0 {
		fmt.Fprintf(p.out, "\r%s", humanize.Bytes(uint64(p.received)))
		return
	}

	pct := float64(p.received) / float64(p.total)
	if pct > 1 {
		pct = 1
	}
	fmt.Fprintf(p.out, "\r%s %s / %s", p.bar.ViewAs(pct), humanize.Bytes(uint64(p.received)), humanize.Bytes(uint64(p.total)))
}
