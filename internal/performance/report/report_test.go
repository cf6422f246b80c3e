package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/contactload/internal/performance/check"
	"github.com/wesleyorama2/contactload/internal/performance/engine"
	"github.com/wesleyorama2/contactload/internal/performance/metrics"
	"github.com/wesleyorama2/contactload/internal/performance/threshold"
)

func createTestSummary(layout string) *engine.RunSummary {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return &engine.RunSummary{
		RunID:      "3f1c2a9e-0000-4000-8000-000000000001",
		Profile:    layout,
		Layout:     layout,
		StartTime:  start,
		EndTime:    start.Add(65 * time.Minute),
		Duration:   65 * time.Minute,
		PeakVUs:    300,
		PeakAt:     90 * time.Second,
		MaxVUs:     300,
		Iterations: 4321,
		Metrics: []metrics.Summary{
			{Name: metrics.Checks, Type: metrics.TypeRate, Samples: 100, Values: map[string]float64{"passes": 90, "fails": 10, "rate": 0.9}},
			{Name: "errors", Type: metrics.TypeRate, Samples: 100, Values: map[string]float64{"passes": 4, "fails": 96, "rate": 0.04}},
			{Name: metrics.HTTPReqDuration, Type: metrics.TypeTrend, Contains: metrics.ValueTime, Samples: 1200,
				Values: map[string]float64{"count": 1200, "avg": 12.3456, "max": 812.5, "p(95)": 40.1, "p(99)": 95.25}},
			{Name: metrics.HTTPReqFailed, Type: metrics.TypeRate, Samples: 1200, Values: map[string]float64{"passes": 12, "fails": 1188, "rate": 0.01}},
			{Name: metrics.HTTPReqs, Type: metrics.TypeCounter, Samples: 1200, Values: map[string]float64{"count": 1200, "rate": 20}},
			{Name: "total_requests", Type: metrics.TypeCounter, Samples: 1100, Values: map[string]float64{"count": 1100}},
		},
		Checks: []check.Summary{
			{Name: "status is 200", Passes: 1200, Fails: 0},
			{Name: "response time < 2s", Passes: 1190, Fails: 10},
		},
		Thresholds: []threshold.Result{
			{Metric: metrics.HTTPReqDuration, Expression: "p(95)<1500", Passed: true, Value: 40.1},
			{Metric: metrics.HTTPReqFailed, Expression: "rate<0.02", Passed: true, Value: 0.01},
		},
		Passed: true,
	}
}

func render(t *testing.T, s *engine.RunSummary) string {
	t.Helper()
	out, err := Render(s, Options{NoColor: true})
	require.NoError(t, err)
	return out.Text
}

func TestRender_ProfileBlocks(t *testing.T) {
	tests := []struct {
		layout string
		want   []string
	}{
		{
			layout: LayoutSmoke,
			want: []string{
				"========== SMOKE TEST SUMMARY ==========",
				"Total Requests: 1,200",
				"Failed Requests: 1.00%",
				"Avg Response Time: 12.35ms",
				"P95 Response Time: 40.10ms",
			},
		},
		{
			layout: LayoutLoad,
			want: []string{
				"========== LOAD TEST SUMMARY ==========",
				"Total Requests: 1,200",
				"Failed Requests: 12",
				"P99 Response Time: 95.25ms",
			},
		},
		{
			layout: LayoutStress,
			want: []string{
				"========== STRESS TEST RESULTS ==========",
				"Max VUs reached: 300",
				"Total checks: 100 (90 passed, 10 failed)",
				"Error rate: 10.00%",
				"Max response time: 812.50ms",
			},
		},
		{
			layout: LayoutSpike,
			want: []string{
				"========== SPIKE TEST RESULTS ==========",
				"Peak VUs: 300",
				"Failed requests: 12",
				"P95 response time: 40.10ms",
			},
		},
		{
			layout: LayoutSoak,
			want: []string{
				"========== SOAK TEST RESULTS ==========",
				"Test duration: 1h 5m",
				"Total requests: 1,100",
				"Error rate: 4.00%",
				"Avg response time: 12.35ms",
			},
		},
		{
			layout: "checkout",
			want: []string{
				"========== CHECKOUT TEST SUMMARY ==========",
				"Total Requests: 1,200",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.layout, func(t *testing.T) {
			text := render(t, createTestSummary(tt.layout))
			for _, want := range tt.want {
				if !strings.Contains(text, want) {
					t.Errorf("Render() text missing %q\n%s", want, text)
				}
			}
		})
	}
}

func TestRender_Sections(t *testing.T) {
	text := render(t, createTestSummary(LayoutSoak))

	assert.Contains(t, text, "Run ID: 3f1c2a9e-0000-4000-8000-000000000001")
	assert.Contains(t, text, "VUs: peak 300 at 1m 30s (max 300)")
	assert.Contains(t, text, "Iterations: 4,321")
	assert.Contains(t, text, "✓ status is 200 1,200/1,200")
	assert.Contains(t, text, "✗ response time < 2s 1,190/1,200 (10 failed)")
	assert.Contains(t, text, "✓ http_req_duration p(95)<1500 (actual: 40.1)")
	assert.Contains(t, text, "PASSED")

	// header, profile block, checks, thresholds, verdict
	order := []string{"Run ID", "SOAK TEST RESULTS", "Checks:", "Thresholds:", "PASSED"}
	last := -1
	for _, section := range order {
		idx := strings.Index(text, section)
		require.Greater(t, idx, last, "section %q out of order", section)
		last = idx
	}
}

func TestRender_Verdicts(t *testing.T) {
	failed := createTestSummary(LayoutLoad)
	failed.Passed = false
	failed.Thresholds = append(failed.Thresholds, threshold.Result{
		Metric:        "contacts_latency",
		Expression:    "p(95)<800",
		Indeterminate: true,
		Message:       "metric contacts_latency was never recorded",
	})
	text := render(t, failed)
	assert.Contains(t, text, "FAILED 1 of 3 thresholds failed")
	assert.Contains(t, text, "✗ contacts_latency p(95)<800 (metric contacts_latency was never recorded)")

	aborted := createTestSummary(LayoutLoad)
	aborted.Passed = false
	aborted.Aborted = true
	aborted.AbortReason = "threshold rate<0.1 on errors breached"
	assert.Contains(t, render(t, aborted), "ABORTED threshold rate<0.1 on errors breached")
}

func TestRender_NoColorHasNoEscapes(t *testing.T) {
	text := render(t, createTestSummary(LayoutSpike))
	assert.NotContains(t, text, "\x1b[")
}

func TestRender_NilSummary(t *testing.T) {
	_, err := Render(nil, Options{})
	assert.Error(t, err)
}

func TestRender_Artifact(t *testing.T) {
	out, err := Render(createTestSummary(LayoutLoad), Options{NoColor: true})
	require.NoError(t, err)

	var artifact map[string]interface{}
	require.NoError(t, json.Unmarshal(out.JSON, &artifact))

	assert.Equal(t, float64(ArtifactVersion), artifact["version"])
	assert.Equal(t, "load", artifact["profile"])
	assert.Equal(t, float64(65*60*1000), artifact["durationMs"])
	assert.Equal(t, float64(90000), artifact["peakAtMs"])
	assert.Equal(t, true, artifact["passed"])

	ms, ok := artifact["metrics"].(map[string]interface{})
	require.True(t, ok, "metrics should be keyed by name")
	reqs, ok := ms[metrics.HTTPReqs].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "counter", reqs["type"])
	assert.Equal(t, 1200.0, reqs["values"].(map[string]interface{})["count"])
}

func TestNewArtifact_EmptySummary(t *testing.T) {
	a := NewArtifact(&engine.RunSummary{Profile: "smoke"})

	assert.Equal(t, ArtifactVersion, a.Version)
	assert.NotNil(t, a.Metrics)
	assert.NotNil(t, a.Checks)
	assert.NotNil(t, a.Thresholds)
}

func TestWriteArtifact(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "results")

	path, err := WriteArtifact(dir, "spike", []byte(`{"version":1}`))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "spike-test-summary.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"version":1}`, string(data))
}

func TestFormatters(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"duration ms", formatDuration(500 * time.Millisecond), "500ms"},
		{"duration s", formatDuration(1500 * time.Millisecond), "1.5s"},
		{"duration m", formatDuration(90 * time.Second), "1m 30s"},
		{"duration h", formatDuration(time.Hour + 2*time.Minute + 3*time.Second), "1h 02m 03s"},
		{"hours minutes", formatHoursMinutes(59*time.Minute + 59*time.Second), "0h 59m"},
		{"hours minutes long", formatHoursMinutes(60 * time.Minute), "1h 0m"},
		{"number", formatNumber(1234567), "1,234,567"},
		{"number small", formatNumber(12), "12"},
		{"number negative", formatNumber(-1234), "-1,234"},
		{"percent", formatPercent(0.0525), "5.25%"},
		{"value int", formatValue(42), "42"},
		{"value frac", formatValue(0.0523), "0.0523"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}
}
