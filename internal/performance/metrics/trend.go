package metrics

import (
	"fmt"
	"math"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// TrendConfig contains the HDR histogram settings used by trends.
//
// Values are stored as integers of value*Scale. With the defaults a trend of
// milliseconds has microsecond resolution and a range of 1µs to 1 hour, and
// percentiles carry at most 0.1% relative error (3 significant figures).
type TrendConfig struct {
	// Scale converts a value to the integer unit stored in the histogram
	Scale float64

	// HistogramMin is the lowest discernible stored value (default: 1)
	HistogramMin int64

	// HistogramMax is the highest trackable stored value (default: 3600000000)
	HistogramMax int64

	// HistogramSigFigs is the number of significant figures (default: 3)
	HistogramSigFigs int

	// Shards is the number of independently locked histograms
	// (default: GOMAXPROCS, at least 2)
	Shards int
}

// DefaultTrendConfig returns the default trend configuration.
func DefaultTrendConfig() TrendConfig {
	shards := runtime.GOMAXPROCS(0)
	if shards < 2 {
		shards = 2
	}
	return TrendConfig{
		Scale:            1000,
		HistogramMin:     1,
		HistogramMax:     3600000000, // 1 hour in microseconds
		HistogramSigFigs: 3,
		Shards:           shards,
	}
}

type trendShard struct {
	mu    sync.Mutex
	hist  *hdrhistogram.Histogram
	count int64
	sum   float64
	min   float64
	max   float64
}

// Trend records a distribution of values and answers percentile queries.
//
// Writers pick a shard round-robin, so concurrent Add calls rarely contend.
// Count, sum, min and max are exact; percentiles come from the merged
// histograms.
type Trend struct {
	name     string
	contains ValueType
	config   TrendConfig

	shards []*trendShard
	next   atomic.Uint64
}

func newTrend(name string, contains ValueType, config TrendConfig) *Trend {
	if contains == "" {
		contains = ValueDefault
	}
	if config.Shards <= 0 {
		config.Shards = 1
	}
	t := &Trend{
		name:     name,
		contains: contains,
		config:   config,
		shards:   make([]*trendShard, config.Shards),
	}
	for i := range t.shards {
		t.shards[i] = &trendShard{
			hist: t.newHistogram(),
			min:  math.Inf(1),
			max:  math.Inf(-1),
		}
	}
	return t
}

func (t *Trend) newHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(t.config.HistogramMin, t.config.HistogramMax, t.config.HistogramSigFigs)
}

// Add records a value.
func (t *Trend) Add(v float64) {
	if math.IsNaN(v) {
		return
	}

	stored := int64(math.Round(v * t.config.Scale))
	if stored < 0 {
		stored = 0
	}
	if stored > t.config.HistogramMax {
		stored = t.config.HistogramMax
	}

	s := t.shards[t.next.Add(1)%uint64(len(t.shards))]
	s.mu.Lock()
	// stored is clamped to the trackable range, so RecordValue cannot fail
	_ = s.hist.RecordValue(stored)
	s.count++
	s.sum += v
	if v < s.min {
		s.min = v
	}
	if v > s.max {
		s.max = v
	}
	s.mu.Unlock()
}

// AddDuration records a duration in milliseconds.
func (t *Trend) AddDuration(d time.Duration) {
	t.Add(float64(d) / float64(time.Millisecond))
}

// trendState is the merged view of every shard.
type trendState struct {
	hist  *hdrhistogram.Histogram
	count int64
	sum   float64
	min   float64
	max   float64
}

func (t *Trend) merge() trendState {
	st := trendState{
		hist: t.newHistogram(),
		min:  math.Inf(1),
		max:  math.Inf(-1),
	}
	for _, s := range t.shards {
		s.mu.Lock()
		st.hist.Merge(s.hist)
		st.count += s.count
		st.sum += s.sum
		if s.min < st.min {
			st.min = s.min
		}
		if s.max > st.max {
			st.max = s.max
		}
		s.mu.Unlock()
	}
	return st
}

func (st trendState) percentile(p float64, scale float64) float64 {
	v := float64(st.hist.ValueAtQuantile(p)) / scale
	// the histogram reports bucket upper bounds; keep them inside the
	// exact observed range
	if v > st.max {
		v = st.max
	}
	if v < st.min {
		v = st.min
	}
	return v
}

// Percentile returns the p-th percentile (0 < p <= 100).
func (t *Trend) Percentile(p float64) (float64, error) {
	if p <= 0 || p > 100 {
		return 0, fmt.Errorf("percentile %v out of range (0, 100]", p)
	}
	st := t.merge()
	if st.count == 0 {
		return 0, noSamples(t.name)
	}
	return st.percentile(p, t.config.Scale), nil
}

// Name returns the metric name.
func (t *Trend) Name() string { return t.name }

// Type returns TypeTrend.
func (t *Trend) Type() Type { return TypeTrend }

// Contains returns what the trend values represent.
func (t *Trend) Contains() ValueType { return t.contains }

// Samples returns the number of recorded values.
func (t *Trend) Samples() int64 {
	var n int64
	for _, s := range t.shards {
		s.mu.Lock()
		n += s.count
		s.mu.Unlock()
	}
	return n
}

// Stat supports "avg", "min", "max", "med", "count" and "p(N)".
func (t *Trend) Stat(stat string) (float64, error) {
	var pct float64
	switch stat {
	case "avg", "min", "max", "med", "count":
	default:
		p, ok := ParsePercentile(stat)
		if !ok {
			return 0, unknownStat(t.name, stat, TypeTrend)
		}
		pct = p
	}

	st := t.merge()
	if st.count == 0 {
		return 0, noSamples(t.name)
	}

	switch stat {
	case "avg":
		return st.sum / float64(st.count), nil
	case "min":
		return st.min, nil
	case "max":
		return st.max, nil
	case "med":
		return st.percentile(50, t.config.Scale), nil
	case "count":
		return float64(st.count), nil
	default:
		return st.percentile(pct, t.config.Scale), nil
	}
}

// Summary returns avg, min, med, max, p(90), p(95), p(99) and count.
// An empty trend only reports its count.
func (t *Trend) Summary() Summary {
	st := t.merge()
	values := map[string]float64{"count": float64(st.count)}
	if st.count > 0 {
		values["avg"] = st.sum / float64(st.count)
		values["min"] = st.min
		values["max"] = st.max
		values["med"] = st.percentile(50, t.config.Scale)
		values["p(90)"] = st.percentile(90, t.config.Scale)
		values["p(95)"] = st.percentile(95, t.config.Scale)
		values["p(99)"] = st.percentile(99, t.config.Scale)
	}
	return Summary{
		Name:     t.name,
		Type:     TypeTrend,
		Contains: t.contains,
		Samples:  st.count,
		Values:   values,
	}
}

// ParsePercentile parses "p(95)", "p(99.9)" or the short form "p95".
func ParsePercentile(stat string) (float64, bool) {
	s := strings.TrimSpace(stat)
	if !strings.HasPrefix(s, "p") || len(s) < 2 {
		return 0, false
	}
	s = s[1:]
	if strings.HasPrefix(s, "(") {
		if !strings.HasSuffix(s, ")") {
			return 0, false
		}
		s = s[1 : len(s)-1]
	}
	p, err := strconv.ParseFloat(s, 64)
	if err != nil || p <= 0 || p > 100 {
		return 0, false
	}
	return p, true
}

var _ Metric = (*Trend)(nil)
