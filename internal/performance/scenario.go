package performance

import (
	"math/rand"
	"time"

	"github.com/wesleyorama2/contactload/internal/performance/check"
	"github.com/wesleyorama2/contactload/internal/performance/metrics"
)

// Scenario defines what a VU executes during each iteration.
type Scenario struct {
	// Name of the scenario
	Name string

	// Variables available to all requests, on top of the run variables
	Variables map[string]string

	// Steps run in order on every iteration
	Steps []*Step

	// Sleep is applied once at the end of every iteration
	Sleep Sleep

	// ErrorRate, when set, records true for every checked response whose
	// checks did not all pass and false otherwise
	ErrorRate *metrics.Rate

	// IterationCounter, when set, is incremented when an iteration starts
	IterationCounter *metrics.Counter
}

// StepMode controls how the requests of a step are issued.
type StepMode string

const (
	// ModeSequence issues the requests one after the other.
	ModeSequence StepMode = "sequence"

	// ModeBatch issues the requests concurrently and waits for all of them.
	ModeBatch StepMode = "batch"

	// ModeChoice issues one request picked uniformly at random.
	ModeChoice StepMode = "choice"
)

// Step is a named group of requests followed by an optional sleep.
type Step struct {
	Name     string
	Mode     StepMode
	Requests []*RequestConfig
	Sleep    Sleep
}

// RequestConfig defines a single HTTP request.
type RequestConfig struct {
	// Name for this request (used in logs)
	Name string

	// HTTP method
	Method string

	// URL (supports variable substitution)
	URL string

	// Headers (values support variable substitution)
	Headers map[string]string

	// Body (supports variable substitution)
	Body string

	// Timeout overrides the client timeout when positive
	Timeout time.Duration

	// Checks applied to the response
	Checks check.Set

	// Trend, when set, also receives the request duration
	Trend *metrics.Trend

	// Extract stores values from the response in VU data
	Extract []ExtractConfig
}

// ExtractConfig defines how to extract a variable from a response.
type ExtractConfig struct {
	// Name of the variable to store
	Name string

	// Source is where to extract from: "body", "header" or "status"
	Source string

	// Path is the header name, or a gjson/JSONPath expression for the body
	Path string
}

// Sleep is a think time. Min == Max is a fixed sleep; otherwise the
// duration is drawn uniformly from [Min, Max].
type Sleep struct {
	Min time.Duration
	Max time.Duration
}

// Fixed returns a sleep of exactly d.
func Fixed(d time.Duration) Sleep {
	return Sleep{Min: d, Max: d}
}

// Between returns a uniformly distributed sleep between min and max.
func Between(min, max time.Duration) Sleep {
	return Sleep{Min: min, Max: max}
}

// IsZero reports whether the sleep never waits.
func (s Sleep) IsZero() bool {
	return s.Min <= 0 && s.Max <= 0
}

// Pick draws a duration using rng.
func (s Sleep) Pick(rng *rand.Rand) time.Duration {
	min, max := s.Min, s.Max
	if min < 0 {
		min = 0
	}
	if max <= min {
		return min
	}
	return min + time.Duration(rng.Int63n(int64(max-min)+1))
}

// Scale multiplies both bounds by factor.
func (s Sleep) Scale(factor float64) Sleep {
	return Sleep{
		Min: time.Duration(float64(s.Min) * factor),
		Max: time.Duration(float64(s.Max) * factor),
	}
}
