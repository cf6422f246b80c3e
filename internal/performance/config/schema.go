// Package config describes load-test runs: the stages, the scenario every
// virtual user executes, the thresholds and the environment they run in.
package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/contactload/internal/performance/check"
	"github.com/wesleyorama2/contactload/internal/performance/metrics"
)

// RunConfig is the root configuration of a run.
//
// Example YAML:
//
//	name: checkout
//	stages:
//	  - duration: 1m
//	    target: 20
//	  - duration: 5m
//	    target: 20
//	    hold: true
//	  - duration: 30s
//	    target: 0
//	thresholds:
//	  http_req_duration: ["p(95)<800"]
//	  http_req_failed:
//	    - threshold: rate<0.05
//	      abortOnFail: true
//	scenario:
//	  steps:
//	    - name: list contacts
//	      requests:
//	        - url: "{{API_URL}}/api/contacts"
//	          checks:
//	            - name: status is 200
//	              kind: status
//	              status: [200]
//	      sleep: 1s
type RunConfig struct {
	// Name of the profile (for reporting and the artifact file name)
	Name string `json:"name" yaml:"name"`

	// Description of the profile (optional)
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Fixed form: VUs virtual users for Duration
	VUs      int      `json:"vus,omitempty" yaml:"vus,omitempty"`
	Duration Duration `json:"duration,omitempty" yaml:"duration,omitempty"`

	// Staged form
	Stages []StageConfig `json:"stages,omitempty" yaml:"stages,omitempty"`

	// GracefulStop bounds the drain at the end of the run (default: 30s)
	GracefulStop Duration `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`

	// Thresholds map metric names to pass/fail expressions
	Thresholds map[string][]ThresholdConfig `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`

	// Metrics declares custom metrics up front
	Metrics []metrics.Definition `json:"metrics,omitempty" yaml:"metrics,omitempty"`

	// Settings contains HTTP client settings
	Settings Settings `json:"settings,omitempty" yaml:"settings,omitempty"`

	// Variables are available to every request as {{name}}
	Variables map[string]string `json:"variables,omitempty" yaml:"variables,omitempty"`

	// Scenario is what every VU executes on each iteration
	Scenario ScenarioConfig `json:"scenario" yaml:"scenario"`

	// Summary selects the profile block of the text report
	Summary string `json:"summary,omitempty" yaml:"summary,omitempty"`
}

// StageConfig is one segment of the VU schedule.
type StageConfig struct {
	Duration Duration `json:"duration" yaml:"duration"`
	Target   int      `json:"target" yaml:"target"`

	// Hold keeps the count flat at Target instead of ramping to it
	Hold bool `json:"hold,omitempty" yaml:"hold,omitempty"`

	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// Settings contains HTTP client settings shared by every VU.
type Settings struct {
	// Timeout is the default request timeout
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	MaxConnectionsPerHost int  `json:"maxConnectionsPerHost,omitempty" yaml:"maxConnectionsPerHost,omitempty"`
	MaxIdleConnsPerHost   int  `json:"maxIdleConnsPerHost,omitempty" yaml:"maxIdleConnsPerHost,omitempty"`
	InsecureSkipVerify    bool `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty"`

	// NoConnectionReuse gives every VU its own HTTP client
	NoConnectionReuse bool `json:"noConnectionReuse,omitempty" yaml:"noConnectionReuse,omitempty"`

	UserAgent string            `json:"userAgent,omitempty" yaml:"userAgent,omitempty"`
	Headers   map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// ScenarioConfig defines one iteration.
type ScenarioConfig struct {
	Name  string       `json:"name,omitempty" yaml:"name,omitempty"`
	Steps []StepConfig `json:"steps" yaml:"steps"`

	// Sleep is applied once at the end of every iteration
	Sleep SleepConfig `json:"sleep,omitempty" yaml:"sleep,omitempty"`

	// ErrorRate names a rate metric fed with the check outcome of every
	// checked request
	ErrorRate string `json:"errorRate,omitempty" yaml:"errorRate,omitempty"`

	// IterationCounter names a counter incremented when an iteration starts
	IterationCounter string `json:"iterationCounter,omitempty" yaml:"iterationCounter,omitempty"`
}

// Step modes.
const (
	ModeSequence = "sequence"
	ModeBatch    = "batch"
	ModeChoice   = "choice"
)

// StepConfig is a named group of requests.
type StepConfig struct {
	Name string `json:"name" yaml:"name"`

	// Mode is "sequence" (default), "batch" or "choice"
	Mode string `json:"mode,omitempty" yaml:"mode,omitempty"`

	Requests []RequestConfig `json:"requests" yaml:"requests"`
	Sleep    SleepConfig     `json:"sleep,omitempty" yaml:"sleep,omitempty"`
}

// RequestConfig defines a single HTTP request.
type RequestConfig struct {
	Name    string            `json:"name,omitempty" yaml:"name,omitempty"`
	Method  string            `json:"method,omitempty" yaml:"method,omitempty"`
	URL     string            `json:"url" yaml:"url"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body    string            `json:"body,omitempty" yaml:"body,omitempty"`

	// Timeout overrides the client timeout
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	Checks []check.Definition `json:"checks,omitempty" yaml:"checks,omitempty"`

	// Trend names a time trend that also receives the request duration
	Trend string `json:"trend,omitempty" yaml:"trend,omitempty"`

	Extract []ExtractConfig `json:"extract,omitempty" yaml:"extract,omitempty"`
}

// ExtractConfig defines how to extract a variable from a response.
type ExtractConfig struct {
	Name string `json:"name" yaml:"name"`

	// Source is "body" (default), "header" or "status"
	Source string `json:"source,omitempty" yaml:"source,omitempty"`

	// Path is the header name, or a JSONPath for the body
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// SleepConfig is a think time: either a fixed duration ("1s") or a range
// ({min: 0s, max: 2s}) drawn uniformly.
type SleepConfig struct {
	Min Duration `json:"min" yaml:"min"`
	Max Duration `json:"max" yaml:"max"`
}

// Fixed returns a fixed sleep of d.
func Fixed(d time.Duration) SleepConfig {
	return SleepConfig{Min: Duration(d), Max: Duration(d)}
}

// Between returns a sleep drawn from [min, max].
func Between(min, max time.Duration) SleepConfig {
	return SleepConfig{Min: Duration(min), Max: Duration(max)}
}

// MarshalJSON writes a fixed sleep as a plain duration string.
func (s SleepConfig) MarshalJSON() ([]byte, error) {
	if s.Min == s.Max {
		return json.Marshal(s.Min)
	}
	type plain SleepConfig
	return json.Marshal(plain(s))
}

// UnmarshalJSON accepts a duration string or a {min, max} object.
func (s *SleepConfig) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var d Duration
		if err := json.Unmarshal(b, &d); err != nil {
			return err
		}
		*s = SleepConfig{Min: d, Max: d}
		return nil
	}
	type plain SleepConfig
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*s = SleepConfig(p)
	return nil
}

// MarshalYAML writes a fixed sleep as a plain duration string.
func (s SleepConfig) MarshalYAML() (interface{}, error) {
	if s.Min == s.Max {
		return s.Min.String(), nil
	}
	return map[string]string{"min": s.Min.String(), "max": s.Max.String()}, nil
}

// UnmarshalYAML accepts a duration string or a {min, max} mapping.
func (s *SleepConfig) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var d Duration
		if err := value.Decode(&d); err != nil {
			return err
		}
		*s = SleepConfig{Min: d, Max: d}
		return nil
	}
	type plain SleepConfig
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*s = SleepConfig(p)
	return nil
}

// ThresholdConfig is a threshold expression. In files it is either the
// expression itself or an object with abortOnFail.
type ThresholdConfig struct {
	Threshold   string `json:"threshold" yaml:"threshold"`
	AbortOnFail bool   `json:"abortOnFail,omitempty" yaml:"abortOnFail,omitempty"`
}

// UnmarshalJSON accepts "p(95)<500" or {"threshold": "...", "abortOnFail": true}.
func (t *ThresholdConfig) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = ThresholdConfig{Threshold: s}
		return nil
	}
	type plain ThresholdConfig
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*t = ThresholdConfig(p)
	return nil
}

// UnmarshalYAML accepts a scalar expression or a mapping.
func (t *ThresholdConfig) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*t = ThresholdConfig{Threshold: value.Value}
		return nil
	}
	type plain ThresholdConfig
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*t = ThresholdConfig(p)
	return nil
}

// Duration is a time.Duration that can be unmarshaled from JSON/YAML strings.
type Duration time.Duration

// ParseDuration parses a duration string. A bare integer is read as
// seconds.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}

	var seconds int
	var rest string
	if n, _ := fmt.Sscanf(s, "%d%s", &seconds, &rest); n == 1 {
		return time.Duration(seconds) * time.Second, nil
	}
	return 0, fmt.Errorf("invalid duration %q", s)
}

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// GetDuration returns the duration or a default if empty.
func (d Duration) GetDuration(defaultValue time.Duration) time.Duration {
	if d == 0 {
		return defaultValue
	}
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	// Remove quotes if present
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	if s == "null" {
		*d = 0
		return nil
	}

	dur, err := ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	dur, err := ParseDuration(value.Value)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}
