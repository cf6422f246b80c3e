package report

import (
	"fmt"
	"strings"

	"github.com/wesleyorama2/contactload/internal/performance/engine"
	"github.com/wesleyorama2/contactload/internal/performance/metrics"
)

// Profile layouts with a dedicated block.
const (
	LayoutSmoke  = "smoke"
	LayoutLoad   = "load"
	LayoutStress = "stress"
	LayoutSpike  = "spike"
	LayoutSoak   = "soak"
)

// metric names read by the profile blocks besides the built-in ones
const (
	totalRequestsMetric = "total_requests"
	errorsMetric        = "errors"
)

type textRenderer struct {
	colors *ColorScheme
	sb     strings.Builder
}

func newTextRenderer(colors *ColorScheme) *textRenderer {
	return &textRenderer{colors: colors}
}

func (r *textRenderer) line(format string, args ...interface{}) {
	fmt.Fprintf(&r.sb, format, args...)
	r.sb.WriteString("\n")
}

func (r *textRenderer) field(label, value string) {
	r.line("%s %s", r.colors.Label.Sprint(label+":"), r.colors.Value.Sprint(value))
}

func (r *textRenderer) render(s *engine.RunSummary) string {
	r.header(s)
	r.profileBlock(s)
	r.checks(s)
	r.thresholds(s)
	r.verdict(s)
	return r.sb.String()
}

func (r *textRenderer) header(s *engine.RunSummary) {
	line := strings.Repeat("━", 56)
	r.line("%s", r.colors.Title.Sprint(line))
	title := s.Profile
	if s.Description != "" {
		title = fmt.Sprintf("%s - %s", s.Profile, s.Description)
	}
	r.line("%s", r.colors.Title.Sprint(title))
	r.line("%s", r.colors.Title.Sprint(line))

	r.field("Run ID", s.RunID)
	r.field("Duration", formatDuration(s.Duration))
	r.field("Iterations", formatNumber(s.Iterations))
	if s.PeakVUs > 0 {
		r.field("VUs", fmt.Sprintf("peak %d at %s (max %d)", s.PeakVUs, formatDuration(s.PeakAt), s.MaxVUs))
	} else {
		r.field("VUs", fmt.Sprintf("max %d", s.MaxVUs))
	}
}

func (r *textRenderer) profileBlock(s *engine.RunSummary) {
	reqs := int64(s.Value(metrics.HTTPReqs, "count"))
	failed := int64(s.Value(metrics.HTTPReqFailed, "passes"))
	avg := s.Value(metrics.HTTPReqDuration, "avg")
	p95 := s.Value(metrics.HTTPReqDuration, "p(95)")

	switch s.Layout {
	case LayoutLoad:
		r.banner("LOAD TEST SUMMARY")
		r.field("Total Requests", formatNumber(reqs))
		r.field("Failed Requests", formatNumber(failed))
		r.field("Avg Response Time", formatMillis(avg))
		r.field("P95 Response Time", formatMillis(p95))
		r.field("P99 Response Time", formatMillis(s.Value(metrics.HTTPReqDuration, "p(99)")))

	case LayoutStress:
		passed := int64(s.Value(metrics.Checks, "passes"))
		fails := int64(s.Value(metrics.Checks, "fails"))
		total := passed + fails
		errRate := 0.0
		if total > 0 {
			errRate = float64(fails) / float64(total)
		}
		r.banner("STRESS TEST RESULTS")
		r.field("Max VUs reached", formatNumber(s.PeakVUs))
		r.field("Total requests", formatNumber(reqs))
		r.field("Total checks", fmt.Sprintf("%s (%s passed, %s failed)",
			formatNumber(total), formatNumber(passed), formatNumber(fails)))
		r.field("Error rate", formatPercent(errRate))
		r.field("Avg response time", formatMillis(avg))
		r.field("Max response time", formatMillis(s.Value(metrics.HTTPReqDuration, "max")))

	case LayoutSpike:
		r.banner("SPIKE TEST RESULTS")
		r.field("Peak VUs", formatNumber(s.PeakVUs))
		r.field("Total requests", formatNumber(reqs))
		r.field("Failed requests", formatNumber(failed))
		r.field("Avg response time", formatMillis(avg))
		r.field("P95 response time", formatMillis(p95))

	case LayoutSoak:
		total := reqs
		if _, ok := s.Metric(totalRequestsMetric); ok {
			total = int64(s.Value(totalRequestsMetric, "count"))
		}
		r.banner("SOAK TEST RESULTS")
		r.field("Test duration", formatHoursMinutes(s.Duration))
		r.field("Total requests", formatNumber(total))
		r.field("Error rate", formatPercent(s.Value(errorsMetric, "rate")))
		r.field("Avg response time", formatMillis(avg))

	default:
		name := strings.ToUpper(s.Layout)
		if name == "" {
			name = strings.ToUpper(s.Profile)
		}
		failedRate := s.Value(metrics.HTTPReqFailed, "rate")
		r.banner(name + " TEST SUMMARY")
		r.field("Total Requests", formatNumber(reqs))
		r.field("Failed Requests", formatPercent(failedRate))
		r.field("Avg Response Time", formatMillis(avg))
		r.field("P95 Response Time", formatMillis(p95))
	}
	r.line("%s", r.colors.Title.Sprint(strings.Repeat("=", 40)))
}

func (r *textRenderer) banner(title string) {
	r.line("")
	r.line("%s", r.colors.Title.Sprintf("========== %s ==========", title))
}

func (r *textRenderer) checks(s *engine.RunSummary) {
	if len(s.Checks) == 0 {
		return
	}
	r.line("")
	r.line("%s", r.colors.Verdict.Sprint("Checks:"))
	for _, c := range s.Checks {
		total := c.Passes + c.Fails
		detail := fmt.Sprintf("%s/%s", formatNumber(c.Passes), formatNumber(total))
		if c.Fails > 0 {
			detail += r.colors.Warn.Sprintf(" (%s failed)", formatNumber(c.Fails))
		}
		r.line("  %s %s %s", r.colors.icon(c.Fails == 0), c.Name, r.colors.Dim.Sprint(detail))
	}
}

func (r *textRenderer) thresholds(s *engine.RunSummary) {
	if len(s.Thresholds) == 0 {
		return
	}
	r.line("")
	r.line("%s", r.colors.Verdict.Sprint("Thresholds:"))
	for _, t := range s.Thresholds {
		actual := fmt.Sprintf("(actual: %s)", formatValue(t.Value))
		if t.Indeterminate {
			actual = fmt.Sprintf("(%s)", t.Message)
		}
		suffix := ""
		if t.AbortOnFail {
			suffix = r.colors.Dim.Sprint(" [abortOnFail]")
		}
		r.line("  %s %s %s %s%s", r.colors.icon(t.Passed), t.Metric, t.Expression, r.colors.Dim.Sprint(actual), suffix)
	}
}

func (r *textRenderer) verdict(s *engine.RunSummary) {
	r.line("")
	switch {
	case s.Aborted:
		r.line("%s %s", r.colors.Fail.Sprint("ABORTED"), s.AbortReason)
	case s.Passed:
		r.line("%s", r.colors.Pass.Sprint("PASSED"))
	default:
		failed := 0
		for _, t := range s.Thresholds {
			if !t.Passed {
				failed++
			}
		}
		r.line("%s %d of %d thresholds failed", r.colors.Fail.Sprint("FAILED"), failed, len(s.Thresholds))
	}
}
