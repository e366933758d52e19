package terminal

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/vertextoedge/safe-downloader/internal/domain"
	"github.com/vertextoedge/safe-downloader/internal/service/transfer"
	"github.com/vertextoedge/safe-downloader/internal/util/ratelimiter"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))             // green
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))             // red
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))            // yellow
	barStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))           // light grey
	nameStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("69")) // purple
)

const (
	barWidth       = 30
	symbolPass     = "✓"
	symbolFail     = "✗"
	symbolCancel   = "!"
	symbolBullet   = "•"
	symbolHLine    = "━"
	clearLine      = "\r\033[K"
	defaultRefresh = 100 * time.Millisecond
)

// Renderer draws a single progress line for one transfer and reports its outcome
type Renderer struct {
	out     io.Writer
	target  string
	limiter *ratelimiter.Limiter
	now     func() time.Time

	mu       sync.Mutex
	started  time.Time
	received int64
	total    int64
	drawn    bool
}

// Ensure Renderer implements transfer.Listener
var _ transfer.Listener = (*Renderer)(nil)

// NewRenderer creates a Renderer writing to out. Progress is redrawn at most
// once per refresh (default: 100ms); a negative refresh redraws every chunk.
func NewRenderer(out io.Writer, target string, refresh time.Duration) *Renderer {
	if refresh == 0 {
		refresh = defaultRefresh
	}
	if refresh < 0 {
		refresh = 0
	}
	return &Renderer{
		out:     out,
		target:  target,
		limiter: ratelimiter.New(refresh),
		now:     time.Now,
		total:   domain.UnknownTotal,
	}
}

// OnProgress redraws the progress line
func (r *Renderer) OnProgress(received, total int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started.IsZero() {
		r.started = r.now()
	}
	r.received = received
	r.total = total

	if ok, _ := r.limiter.Allow(); !ok {
		return
	}
	fmt.Fprint(r.out, clearLine+r.progressLine())
	r.drawn = true
}

// OnCompleted prints the committed destination
func (r *Renderer) OnCompleted() {
	r.finish(successStyle.Render(fmt.Sprintf("%s saved %s (%s)",
		symbolPass, r.target, humanize.IBytes(uint64(max(r.receivedBytes(), 0))))))
}

// OnCancelled prints a cancellation notice
func (r *Renderer) OnCancelled() {
	r.finish(warningStyle.Render(fmt.Sprintf("%s cancelled after %s, %s left untouched",
		symbolCancel, humanize.IBytes(uint64(max(r.receivedBytes(), 0))), r.target)))
}

// OnFailed prints the failure description
func (r *Renderer) OnFailed(description string) {
	r.finish(errorStyle.Render(fmt.Sprintf("%s failed: %s", symbolFail, description)))
}

func (r *Renderer) receivedBytes() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.received
}

func (r *Renderer) finish(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.drawn {
		// Leave the final counters on screen
		fmt.Fprint(r.out, clearLine+r.progressLine()+"\n")
	}
	fmt.Fprintln(r.out, line)
	r.limiter.Reset()
	r.drawn = false
}

// progressLine formats the current counters; r.mu must be held
func (r *Renderer) progressLine() string {
	p := domain.Progress{BytesReceived: r.received, BytesTotal: r.total}
	report := p.Report()

	var b strings.Builder
	b.WriteString(nameStyle.Render(filepath.Base(r.target)))
	b.WriteString(" ")
	if report.Indeterminate {
		b.WriteString(barStyle.Render(fmt.Sprintf("%s %s", report.HumanReceived, "(size unknown)")))
	} else {
		b.WriteString(barStyle.Render(fmt.Sprintf("%s %s %s / %s",
			ProgressBar(report.Ratio, barWidth), report.Percent, report.HumanReceived, report.HumanTotal)))
	}

	if elapsed := r.now().Sub(r.started); elapsed > 0 && r.received > 0 {
		rate := float64(r.received) / elapsed.Seconds()
		b.WriteString(barStyle.Render(fmt.Sprintf(" %s %s/s", symbolBullet, humanize.IBytes(uint64(rate)))))
	}
	return b.String()
}

// ProgressBar renders ratio (0..1) as a fixed-width bar
func ProgressBar(ratio float64, width int) string {
	if width <= 0 {
		width = barWidth
	}
	ratio = max(0, min(ratio, 1))
	filled := int(ratio * float64(width))

	return symbolBullet + strings.Repeat(symbolHLine, filled) + strings.Repeat(" ", width-filled) + symbolBullet
}
