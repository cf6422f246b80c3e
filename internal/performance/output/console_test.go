package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/wesleyorama2/contactload/internal/performance"
	"github.com/wesleyorama2/contactload/internal/performance/executor"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{500 * time.Millisecond, "500ms"},
		{1 * time.Second, "1.0s"},
		{1*time.Minute + 30*time.Second, "1m 30s"},
		{1*time.Hour + 2*time.Minute + 3*time.Second, "1h 02m 03s"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if result := formatDuration(tt.duration); result != tt.expected {
				t.Errorf("formatDuration(%v) = %q, want %q", tt.duration, result, tt.expected)
			}
		})
	}
}

func TestFormatDurationShort(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{0, "0ms"},
		{500 * time.Microsecond, "500µs"},
		{50 * time.Millisecond, "50ms"},
		{1500 * time.Millisecond, "1.50s"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if result := formatDurationShort(tt.duration); result != tt.expected {
				t.Errorf("formatDurationShort(%v) = %q, want %q", tt.duration, result, tt.expected)
			}
		})
	}
}

func TestRenderProgressBar(t *testing.T) {
	tests := []struct {
		progress float64
		expected string
	}{
		{-1, "[░░░░]"},
		{0.5, "[██░░]"},
		{2, "[████]"},
	}

	for _, tt := range tests {
		if result := renderProgressBar(tt.progress, 4); result != tt.expected {
			t.Errorf("renderProgressBar(%v) = %q, want %q", tt.progress, result, tt.expected)
		}
	}
}

func TestConsole_NonTTY(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{Profile: "smoke", TotalDuration: time.Minute, Writer: &buf})

	if c.IsTTY() {
		t.Fatal("IsTTY() = true for a buffer, want false")
	}

	c.PrintHeader()
	if !strings.Contains(buf.String(), "smoke - Running (1m 00s)") {
		t.Errorf("PrintHeader() = %q, want the profile and duration", buf.String())
	}

	buf.Reset()
	c.Update(&LiveStats{Progress: 0.5})
	if buf.Len() != 0 {
		t.Errorf("Update() wrote %q to a non-terminal", buf.String())
	}

	c.PrintNonInteractiveUpdate(&LiveStats{
		Elapsed:       30 * time.Second,
		Progress:      0.5,
		ActiveVUs:     3,
		TargetVUs:     4,
		TotalRequests: 120,
		RPS:           4,
		Failed:        6,
		FailedRate:    0.05,
		LatencyP95:    40 * time.Millisecond,
	})
	want := "[30.0s] Progress: 50% | VUs: 3/4 | Reqs: 120 | RPS: 4.0 | Failed: 6 (5.0%) | P95: 40ms"
	if got := strings.TrimSpace(buf.String()); got != want {
		t.Errorf("PrintNonInteractiveUpdate() = %q, want %q", got, want)
	}
}

func TestConsole_TTYRedraws(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{Profile: "load", Writer: &buf, ForceTTY: true, NoColor: true})

	stats := &LiveStats{Progress: 0.25, Stage: 2, StageName: "ramp", TotalStages: 4, ActiveVUs: 10, TargetVUs: 12}
	c.Update(stats)
	first := buf.String()
	if !strings.Contains(first, "Stage:    ramp (2/4)") {
		t.Errorf("Update() = %q, want the stage line", first)
	}
	if strings.Contains(first, "\033[2K") {
		t.Error("first Update() should not clear anything")
	}

	c.Update(stats)
	if !strings.Contains(buf.String()[len(first):], "\033[2K") {
		t.Error("second Update() should clear the previous display")
	}

	buf.Reset()
	c.Finish()
	if !strings.Contains(buf.String(), "\033[2K") {
		t.Error("Finish() should clear the display")
	}
}

func TestConsole_Quiet(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{Profile: "soak", Writer: &buf, Quiet: true, ForceTTY: true})

	c.PrintHeader()
	c.Update(&LiveStats{})
	c.PrintNonInteractiveUpdate(&LiveStats{})

	if buf.Len() != 0 {
		t.Errorf("quiet console wrote %q", buf.String())
	}
}

func TestStatsFromRun(t *testing.T) {
	if StatsFromRun(nil, nil) != nil {
		t.Error("StatsFromRun(nil, nil) should be nil")
	}

	rc, err := performance.NewRunContext("smoke", nil, nil)
	if err != nil {
		t.Fatalf("NewRunContext() error = %v", err)
	}
	b := rc.Builtin
	b.HTTPReqs.Add(10)
	b.HTTPReqFailed.Add(true)
	for i := 0; i < 9; i++ {
		b.HTTPReqFailed.Add(false)
	}
	b.HTTPReqDuration.AddDuration(20 * time.Millisecond)

	stats := StatsFromRun(&executor.Stats{
		Elapsed:       5 * time.Second,
		TotalDuration: 20 * time.Second,
		ActiveVUs:     2,
		TargetVUs:     3,
		CurrentStage:  0,
		TotalStages:   2,
	}, rc)

	if stats.Progress != 0.25 {
		t.Errorf("Progress = %v, want 0.25", stats.Progress)
	}
	if stats.Remaining != 15*time.Second {
		t.Errorf("Remaining = %v, want 15s", stats.Remaining)
	}
	if stats.Stage != 1 {
		t.Errorf("Stage = %d, want 1", stats.Stage)
	}
	if stats.TotalRequests != 10 || stats.Failed != 1 {
		t.Errorf("requests = %d/%d, want 10/1", stats.TotalRequests, stats.Failed)
	}
	if stats.RPS != 2 {
		t.Errorf("RPS = %v, want 2", stats.RPS)
	}
	if stats.FailedRate != 0.1 {
		t.Errorf("FailedRate = %v, want 0.1", stats.FailedRate)
	}
	if d := stats.LatencyAvg - 20*time.Millisecond; d < -time.Millisecond || d > time.Millisecond {
		t.Errorf("LatencyAvg = %v, want ~20ms", stats.LatencyAvg)
	}
}
