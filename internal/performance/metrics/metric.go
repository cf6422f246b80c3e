// Package metrics provides the typed, concurrency-safe metrics recorded by
// virtual users during a run.
//
// Four metric types are supported:
//   - Counter: a monotonic sum (http_reqs, iterations)
//   - Rate: the fraction of true observations (http_req_failed, checks)
//   - Trend: a value distribution with percentile queries (http_req_duration)
//   - Gauge: a last value that remembers its peak (vus)
//
// # Thread Safety
//
// All metric types are safe for concurrent use. Counters, rates and gauges
// are plain atomics. Trends spread writes over several independently locked
// HDR histogram shards and merge them when read, so no single lock is shared
// by every writer.
package metrics

import (
	"errors"
	"fmt"
	"sort"
)

// Type identifies the kind of a metric.
type Type string

const (
	// TypeCounter is a monotonic sum.
	TypeCounter Type = "counter"

	// TypeRate is a fraction of true observations.
	TypeRate Type = "rate"

	// TypeTrend is a distribution of values.
	TypeTrend Type = "trend"

	// TypeGauge is a last value with its observed peak.
	TypeGauge Type = "gauge"
)

// ValueType describes what the values of a metric represent.
type ValueType string

const (
	// ValueDefault marks plain numbers.
	ValueDefault ValueType = "default"

	// ValueTime marks values in milliseconds.
	ValueTime ValueType = "time"

	// ValueData marks values in bytes.
	ValueData ValueType = "data"
)

var (
	// ErrNoSamples is returned when a statistic is read from a metric that
	// never received an observation.
	ErrNoSamples = errors.New("metric has no samples")

	// ErrUnknownStat is returned when a statistic is not supported by the
	// metric type.
	ErrUnknownStat = errors.New("unknown statistic")
)

// Metric is the read side shared by every metric type.
type Metric interface {
	// Name returns the metric name.
	Name() string

	// Type returns the metric type.
	Type() Type

	// Contains returns what the metric values represent.
	Contains() ValueType

	// Samples returns the number of observations recorded.
	Samples() int64

	// Stat returns a single statistic such as "rate", "count" or "p(95)".
	// It returns ErrNoSamples when the metric is empty and ErrUnknownStat
	// when the statistic does not apply to the metric type.
	Stat(stat string) (float64, error)

	// Summary returns all summary values of the metric.
	Summary() Summary
}

// Summary is a point-in-time view of a metric, as written to reports.
type Summary struct {
	Name     string             `json:"name"`
	Type     Type               `json:"type"`
	Contains ValueType          `json:"contains"`
	Samples  int64              `json:"samples"`
	Values   map[string]float64 `json:"values"`
}

// Value returns a summary value and whether it is present.
func (s Summary) Value(key string) (float64, bool) {
	v, ok := s.Values[key]
	return v, ok
}

// Keys returns the summary value keys in a stable order.
func (s Summary) Keys() []string {
	keys := make([]string, 0, len(s.Values))
	for k := range s.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Definition declares a metric to register before a run starts.
type Definition struct {
	Name     string    `json:"name" yaml:"name"`
	Type     Type      `json:"type" yaml:"type"`
	Contains ValueType `json:"contains,omitempty" yaml:"contains,omitempty"`
}

// Validate checks that the definition names a supported metric type.
func (d Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("metric name is required")
	}
	switch d.Type {
	case TypeCounter, TypeRate, TypeTrend, TypeGauge:
	default:
		return fmt.Errorf("metric %s: unknown type %q", d.Name, d.Type)
	}
	switch d.Contains {
	case "", ValueDefault, ValueTime, ValueData:
	default:
		return fmt.Errorf("metric %s: unknown value type %q", d.Name, d.Contains)
	}
	return nil
}

func unknownStat(name, stat string, t Type) error {
	return fmt.Errorf("%w %q for %s metric %s", ErrUnknownStat, stat, t, name)
}

func noSamples(name string) error {
	return fmt.Errorf("%w: %s", ErrNoSamples, name)
}
