package domain

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// UnknownTotal marks a transfer whose server did not report a length
const UnknownTotal int64 = -1

// Indeterminate is the ratio reported when the total is unknown.
// Consumers must not compute a percentage from it.
const Indeterminate float64 = -1

// Ratio converts byte counters into a completion ratio in [0, 1].
// It returns Indeterminate when total is negative and clamps overshoot to 1.
func Ratio(received, total int64) float64 {
	if total < 0 {
		return Indeterminate
	}
	if total == 0 {
		return 1
	}
	if received <= 0 {
		return 0
	}
	if received >= total {
		return 1
	}
	return float64(received) / float64(total)
}

// Progress is a snapshot of the byte counters of a transfer
type Progress struct {
	BytesReceived int64
	BytesTotal    int64
}

// Ratio returns the completion ratio, or Indeterminate
func (p Progress) Ratio() float64 {
	return Ratio(p.BytesReceived, p.BytesTotal)
}

// IsIndeterminate returns true when the total size is unknown
func (p Progress) IsIndeterminate() bool {
	return p.BytesTotal < 0
}

// ProgressReport is the human-facing form of a Progress snapshot
type ProgressReport struct {
	Received      int64   `json:"received"`
	Total         int64   `json:"total"`
	Ratio         float64 `json:"ratio"`
	Indeterminate bool    `json:"indeterminate"`
	HumanReceived string  `json:"human_received"`
	HumanTotal    string  `json:"human_total"`
	Percent       string  `json:"percent"`
}

// Report converts the snapshot into display values
func (p Progress) Report() ProgressReport {
	r := ProgressReport{
		Received:      p.BytesReceived,
		Total:         p.BytesTotal,
		Ratio:         p.Ratio(),
		Indeterminate: p.IsIndeterminate(),
		HumanReceived: humanize.IBytes(uint64(max(p.BytesReceived, 0))),
	}
	if r.Indeterminate {
		r.HumanTotal = "unknown"
		r.Percent = "--"
		return r
	}
	r.HumanTotal = humanize.IBytes(uint64(p.BytesTotal))
	r.Percent = fmt.Sprintf("%.1f%%", r.Ratio*100)
	return r
}
