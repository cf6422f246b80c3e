// Package report turns a run summary into its persisted artifact and its
// console text.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/wesleyorama2/contactload/internal/performance/check"
	"github.com/wesleyorama2/contactload/internal/performance/engine"
	"github.com/wesleyorama2/contactload/internal/performance/metrics"
	"github.com/wesleyorama2/contactload/internal/performance/threshold"
)

// ArtifactVersion is the version of the JSON artifact layout.
const ArtifactVersion = 1

// Options controls rendering.
type Options struct {
	// NoColor disables colors in the text report
	NoColor bool

	// Colors overrides the color scheme. NoColor takes precedence.
	Colors *ColorScheme
}

// Output is a rendered report.
type Output struct {
	JSON []byte
	Text string
}

// Artifact is the persisted form of a run summary.
type Artifact struct {
	Version     int       `json:"version"`
	RunID       string    `json:"runId"`
	Profile     string    `json:"profile"`
	Description string    `json:"description,omitempty"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	DurationMs  float64   `json:"durationMs"`

	PeakVUs    int64   `json:"peakVUs"`
	PeakAtMs   float64 `json:"peakAtMs"`
	MaxVUs     int     `json:"maxVUs"`
	Iterations int64   `json:"iterations"`

	Metrics    map[string]MetricRecord `json:"metrics"`
	Checks     []check.Summary         `json:"checks"`
	Thresholds []threshold.Result      `json:"thresholds"`

	Passed      bool   `json:"passed"`
	Aborted     bool   `json:"aborted"`
	AbortReason string `json:"abortReason,omitempty"`
}

// MetricRecord is one metric of the artifact.
type MetricRecord struct {
	Type     metrics.Type       `json:"type"`
	Contains metrics.ValueType  `json:"contains"`
	Samples  int64              `json:"samples"`
	Values   map[string]float64 `json:"values"`
}

// NewArtifact converts a summary into its persisted form.
func NewArtifact(s *engine.RunSummary) *Artifact {
	a := &Artifact{
		Version:     ArtifactVersion,
		RunID:       s.RunID,
		Profile:     s.Profile,
		Description: s.Description,
		StartTime:   s.StartTime,
		EndTime:     s.EndTime,
		DurationMs:  millis(s.Duration),
		PeakVUs:     s.PeakVUs,
		PeakAtMs:    millis(s.PeakAt),
		MaxVUs:      s.MaxVUs,
		Iterations:  s.Iterations,
		Metrics:     make(map[string]MetricRecord, len(s.Metrics)),
		Checks:      s.Checks,
		Thresholds:  s.Thresholds,
		Passed:      s.Passed,
		Aborted:     s.Aborted,
		AbortReason: s.AbortReason,
	}
	for _, m := range s.Metrics {
		values := m.Values
		if values == nil {
			values = map[string]float64{}
		}
		a.Metrics[m.Name] = MetricRecord{
			Type:     m.Type,
			Contains: m.Contains,
			Samples:  m.Samples,
			Values:   values,
		}
	}
	if a.Checks == nil {
		a.Checks = []check.Summary{}
	}
	if a.Thresholds == nil {
		a.Thresholds = []threshold.Result{}
	}
	return a
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// Render renders the artifact and the text report of a summary.
func Render(s *engine.RunSummary, opts Options) (*Output, error) {
	if s == nil {
		return nil, fmt.Errorf("no summary to render")
	}

	data, err := json.MarshalIndent(NewArtifact(s), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode artifact: %w", err)
	}

	colors := opts.Colors
	if opts.NoColor || colors == nil {
		if opts.NoColor {
			colors = NoColorScheme()
		} else {
			colors = DefaultColorScheme()
		}
	}

	return &Output{
		JSON: data,
		Text: newTextRenderer(colors).render(s),
	}, nil
}

// ArtifactPath returns where the artifact of profile is written in dir.
func ArtifactPath(dir, profile string) string {
	return filepath.Join(dir, fmt.Sprintf("%s-test-summary.json", profile))
}

// WriteArtifact writes data to ArtifactPath(dir, profile), creating dir
// when needed, and returns the path written.
func WriteArtifact(dir, profile string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create results directory: %w", err)
	}

	path := ArtifactPath(dir, profile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	return path, nil
}
