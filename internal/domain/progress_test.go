package domain

import "testing"

func TestRatio(t *testing.T) {
	tests := []struct {
		name     string
		received int64
		total    int64
		want     float64
	}{
		{"unknown total", 100, UnknownTotal, Indeterminate},
		{"unknown total nothing received", 0, UnknownTotal, Indeterminate},
		{"nothing received", 0, 1000, 0},
		{"partial", 200, 1000, 0.2},
		{"half", 500, 1000, 0.5},
		{"complete", 1000, 1000, 1},
		{"overshoot is clamped", 1500, 1000, 1},
		{"negative received is clamped", -5, 1000, 0},
		{"empty resource", 0, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Ratio(tt.received, tt.total); got != tt.want {
				t.Errorf("Ratio(%d, %d) = %v, want %v", tt.received, tt.total, got, tt.want)
			}
		})
	}
}

func TestProgress_Report(t *testing.T) {
	t.Run("known total", func(t *testing.T) {
		r := Progress{BytesReceived: 512 * 1024, BytesTotal: 1024 * 1024}.Report()
		if r.Indeterminate {
			t.Error("Indeterminate = true, want false")
		}
		if r.Ratio != 0.5 {
			t.Errorf("Ratio = %v, want 0.5", r.Ratio)
		}
		if r.HumanReceived != "512 KiB" {
			t.Errorf("HumanReceived = %q, want %q", r.HumanReceived, "512 KiB")
		}
		if r.HumanTotal != "1.0 MiB" {
			t.Errorf("HumanTotal = %q, want %q", r.HumanTotal, "1.0 MiB")
		}
		if r.Percent != "50.0%" {
			t.Errorf("Percent = %q, want %q", r.Percent, "50.0%")
		}
	})

	t.Run("unknown total", func(t *testing.T) {
		p := Progress{BytesReceived: 200, BytesTotal: UnknownTotal}
		if !p.IsIndeterminate() {
			t.Fatal("IsIndeterminate() = false, want true")
		}
		r := p.Report()
		if !r.Indeterminate || r.Ratio != Indeterminate {
			t.Errorf("Report() = %+v, want indeterminate", r)
		}
		if r.HumanTotal != "unknown" {
			t.Errorf("HumanTotal = %q, want %q", r.HumanTotal, "unknown")
		}
		if r.HumanReceived != "200 B" {
			t.Errorf("HumanReceived = %q, want %q", r.HumanReceived, "200 B")
		}
	})
}
