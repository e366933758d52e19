package terminal

import (
	"bytes"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vertextoedge/safe-downloader/internal/domain"
)

func TestProgressBar(t *testing.T) {
	tests := []struct {
		ratio  float64
		filled int
	}{
		{0, 0},
		{0.5, 5},
		{1, 10},
		{1.7, 10},
		{-1, 0},
	}

	for _, tt := range tests {
		bar := ProgressBar(tt.ratio, 10)
		assert.Equal(t, 12, utf8.RuneCountInString(bar), "ratio %v", tt.ratio)
		assert.Equal(t, tt.filled, strings.Count(bar, symbolHLine), "ratio %v", tt.ratio)
	}
}

func newTestRenderer(buf *bytes.Buffer) *Renderer {
	r := NewRenderer(buf, "/downloads/image.iso", -1)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	calls := 0
	r.now = func() time.Time {
		calls++
		return start.Add(time.Duration(calls) * time.Second)
	}
	return r
}

func TestRenderer_Known(t *testing.T) {
	var buf bytes.Buffer
	r := newTestRenderer(&buf)

	r.OnProgress(512, 1024)
	out := buf.String()
	assert.Contains(t, out, "image.iso")
	assert.Contains(t, out, "50.0%")
	assert.Contains(t, out, "512 B / 1.0 KiB")

	r.OnProgress(1024, 1024)
	r.OnCompleted()

	out = buf.String()
	assert.Contains(t, out, "100.0%")
	assert.Contains(t, out, "saved /downloads/image.iso (1.0 KiB)")
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestRenderer_Unknown(t *testing.T) {
	var buf bytes.Buffer
	r := newTestRenderer(&buf)

	r.OnProgress(2048, domain.UnknownTotal)
	assert.Contains(t, buf.String(), "2.0 KiB (size unknown)")
}

func TestRenderer_Outcomes(t *testing.T) {
	var buf bytes.Buffer
	r := newTestRenderer(&buf)
	r.OnProgress(100, 1000)
	r.OnCancelled()
	assert.Contains(t, buf.String(), "cancelled after 100 B")

	buf.Reset()
	r = newTestRenderer(&buf)
	r.OnFailed("server returned status 404")
	assert.Contains(t, buf.String(), "failed: server returned status 404")
	// Nothing was drawn, so only the outcome line is printed
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
}

func TestRenderer_Throttled(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, "/downloads/a.bin", time.Hour)

	r.OnProgress(1, 10)
	first := buf.Len()
	require.NotZero(t, first)

	r.OnProgress(2, 10)
	r.OnProgress(3, 10)
	assert.Equal(t, first, buf.Len(), "progress inside the refresh interval must not redraw")

	// The outcome always shows the latest counters
	r.OnCompleted()
	assert.Contains(t, buf.String(), "30.0%")
}
