// Package output renders live run progress on the console.
package output

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/wesleyorama2/contactload/internal/performance"
	"github.com/wesleyorama2/contactload/internal/performance/engine"
	"github.com/wesleyorama2/contactload/internal/performance/executor"
)

// ANSI escape codes for cursor control
const (
	cursorUp  = "\033[%dA"
	clearLine = "\033[2K"

	boxHorizontal = "━"

	progressFilled = "█"
	progressEmpty  = "░"
)

// LiveStats contains real-time statistics for display.
type LiveStats struct {
	Progress  float64
	Elapsed   time.Duration
	Remaining time.Duration

	ActiveVUs int
	TargetVUs int

	RPS           float64
	TotalRequests int64
	Failed        int64
	FailedRate    float64
	Iterations    int64

	LatencyP95 time.Duration
	LatencyAvg time.Duration

	// Stage is 1-indexed; 0 before the first tick
	Stage       int
	StageName   string
	TotalStages int
	Draining    bool
}

// Console manages live console output during a run.
type Console struct {
	profile        string
	totalDuration  time.Duration
	updateInterval time.Duration
	writer         io.Writer
	isTTY          bool
	quiet          bool

	title  *color.Color
	good   *color.Color
	warn   *color.Color
	bad    *color.Color
	accent *color.Color
	dim    *color.Color

	mu          sync.Mutex
	linesOutput int
}

// ConsoleConfig contains configuration for Console.
type ConsoleConfig struct {
	Profile        string
	TotalDuration  time.Duration
	UpdateInterval time.Duration
	Writer         io.Writer
	Quiet          bool
	NoColor        bool
	ForceTTY       bool
}

// NewConsole creates a new console output handler.
func NewConsole(config ConsoleConfig) *Console {
	if config.Writer == nil {
		config.Writer = os.Stdout
	}
	if config.UpdateInterval == 0 {
		config.UpdateInterval = time.Second
	}

	isTTY := config.ForceTTY || isTerminal(config.Writer)

	c := &Console{
		profile:        config.Profile,
		totalDuration:  config.TotalDuration,
		updateInterval: config.UpdateInterval,
		writer:         config.Writer,
		isTTY:          isTTY,
		quiet:          config.Quiet,
		title:          color.New(color.FgCyan, color.Bold),
		good:           color.New(color.FgGreen),
		warn:           color.New(color.FgYellow),
		bad:            color.New(color.FgRed),
		accent:         color.New(color.FgMagenta),
		dim:            color.New(color.Faint),
	}

	if config.NoColor || !isTTY || os.Getenv("NO_COLOR") != "" {
		for _, col := range []*color.Color{c.title, c.good, c.warn, c.bad, c.accent, c.dim} {
			col.DisableColor()
		}
	}
	return c
}

// isTerminal checks if the writer is a terminal.
func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return checkIsTerminal(f)
	}
	return false
}

// IsTTY returns whether the output is a terminal.
func (c *Console) IsTTY() bool {
	return c.isTTY
}

// PrintHeader prints the run header.
func (c *Console) PrintHeader() {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	line := strings.Repeat(boxHorizontal, 56)
	c.writeln(c.title.Sprint(line))
	c.writeln(c.title.Sprintf("%s - Running (%s)", c.profile, formatDuration(c.totalDuration)))
	c.writeln(c.title.Sprint(line))
	c.writeln("")
}

// Update redraws the live display. It does nothing when the output is not
// a terminal.
func (c *Console) Update(stats *LiveStats) {
	if c.quiet || !c.isTTY {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.clear()

	lines := c.renderLiveStats(stats)
	c.linesOutput = len(lines)
	for _, line := range lines {
		c.writeln(line)
	}
}

// Finish removes the live display.
func (c *Console) Finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clear()
}

func (c *Console) clear() {
	if c.linesOutput == 0 {
		return
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	for i := 0; i < c.linesOutput; i++ {
		c.write(clearLine + "\n")
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	c.linesOutput = 0
}

func (c *Console) renderLiveStats(stats *LiveStats) []string {
	bar := renderProgressBar(stats.Progress, 40)
	timeInfo := fmt.Sprintf("%s / %s", formatDuration(stats.Elapsed), formatDuration(stats.Elapsed+stats.Remaining))

	stage := stats.StageName
	if stage == "" {
		stage = "stage"
	}
	if stats.TotalStages > 0 {
		stage = fmt.Sprintf("%s (%d/%d)", stage, stats.Stage, stats.TotalStages)
	}
	if stats.Draining {
		stage = "draining"
	}

	failColor := c.good
	if stats.FailedRate > 0.01 {
		failColor = c.warn
	}
	if stats.FailedRate > 0.05 {
		failColor = c.bad
	}

	return []string{
		fmt.Sprintf("Progress: %s %.0f%% | %s", c.good.Sprint(bar), stats.Progress*100, c.dim.Sprint(timeInfo)),
		fmt.Sprintf("Stage:    %s", c.accent.Sprint(stage)),
		fmt.Sprintf("VUs:      %d / %d    Iterations: %s", stats.ActiveVUs, stats.TargetVUs, formatNumber(stats.Iterations)),
		fmt.Sprintf("Requests: %s (%.1f/s)    Failed: %s",
			formatNumber(stats.TotalRequests), stats.RPS,
			failColor.Sprintf("%d (%.1f%%)", stats.Failed, stats.FailedRate*100)),
		fmt.Sprintf("Latency:  avg %s  p95 %s", formatDurationShort(stats.LatencyAvg), formatDurationShort(stats.LatencyP95)),
	}
}

// PrintNonInteractiveUpdate prints a one-line status update, for output
// that is not a terminal.
func (c *Console) PrintNonInteractiveUpdate(stats *LiveStats) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.writeln(fmt.Sprintf("[%s] Progress: %.0f%% | VUs: %d/%d | Reqs: %d | RPS: %.1f | Failed: %d (%.1f%%) | P95: %s",
		formatDuration(stats.Elapsed),
		stats.Progress*100,
		stats.ActiveVUs,
		stats.TargetVUs,
		stats.TotalRequests,
		stats.RPS,
		stats.Failed,
		stats.FailedRate*100,
		formatDurationShort(stats.LatencyP95)))
}

// Watch refreshes the display from e every update interval until ctx is
// done. On a terminal the display is redrawn in place; otherwise a status
// line is printed every ten intervals.
func (c *Console) Watch(ctx context.Context, e *engine.Engine) {
	if c.quiet {
		return
	}

	ticker := time.NewTicker(c.updateInterval)
	defer ticker.Stop()

	ticks := 0
	for {
		select {
		case <-ctx.Done():
			c.Finish()
			return
		case <-ticker.C:
			stats := StatsFromRun(e.GetStats(), e.RunContext())
			if stats == nil {
				continue
			}
			ticks++
			if c.isTTY {
				c.Update(stats)
			} else if ticks%10 == 0 {
				c.PrintNonInteractiveUpdate(stats)
			}
		}
	}
}

// StatsFromRun builds LiveStats from executor statistics and the run's
// metrics. It returns nil until the run has started.
func StatsFromRun(stats *executor.Stats, rc *performance.RunContext) *LiveStats {
	if stats == nil || rc == nil {
		return nil
	}

	live := &LiveStats{
		Elapsed:     stats.Elapsed,
		ActiveVUs:   stats.ActiveVUs,
		TargetVUs:   stats.TargetVUs,
		Iterations:  stats.Iterations,
		Stage:       stats.CurrentStage + 1,
		StageName:   stats.CurrentStageName,
		TotalStages: stats.TotalStages,
		Draining:    stats.Draining,
	}

	if stats.TotalDuration > 0 {
		live.Progress = float64(stats.Elapsed) / float64(stats.TotalDuration)
		if live.Progress > 1 {
			live.Progress = 1
		}
		if remaining := stats.TotalDuration - stats.Elapsed; remaining > 0 {
			live.Remaining = remaining
		}
	}

	b := rc.Builtin
	live.TotalRequests = b.HTTPReqs.Count()
	live.Failed = b.HTTPReqFailed.Passes()
	if rate, ok := b.HTTPReqFailed.Value(); ok {
		live.FailedRate = rate
	}
	if secs := stats.Elapsed.Seconds(); secs > 0 {
		live.RPS = float64(live.TotalRequests) / secs
	}
	if p95, err := b.HTTPReqDuration.Percentile(95); err == nil {
		live.LatencyP95 = millisToDuration(p95)
	}
	if avg, err := b.HTTPReqDuration.Stat("avg"); err == nil {
		live.LatencyAvg = millisToDuration(avg)
	}
	return live
}

func millisToDuration(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}

func (c *Console) write(s string) {
	fmt.Fprint(c.writer, s)
}

func (c *Console) writeln(s string) {
	fmt.Fprintln(c.writer, s)
}

// renderProgressBar renders a progress bar.
func renderProgressBar(progress float64, width int) string {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}

	filled := int(progress * float64(width))
	return "[" + strings.Repeat(progressFilled, filled) + strings.Repeat(progressEmpty, width-filled) + "]"
}

// formatDuration formats a duration in a human-readable format.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %02dm %02ds", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}

// formatDurationShort formats a latency.
func formatDurationShort(d time.Duration) string {
	if d < time.Microsecond {
		return "0ms"
	}
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

// formatNumber formats a number with thousands separators.
func formatNumber(n int64) string {
	str := fmt.Sprintf("%d", n)
	if n < 0 || len(str) <= 3 {
		return str
	}

	var result strings.Builder
	offset := len(str) % 3
	if offset > 0 {
		result.WriteString(str[:offset])
	}
	for i := offset; i < len(str); i += 3 {
		if result.Len() > 0 {
			result.WriteString(",")
		}
		result.WriteString(str[i : i+3])
	}
	return result.String()
}
