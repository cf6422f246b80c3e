package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Gauge holds the last value set and remembers its peak.
type Gauge struct {
	name string

	value   atomic.Int64
	samples atomic.Int64

	// peak is read lock-free; peakMu only serialises new peaks so that the
	// value and the time it was reached stay consistent
	peak   atomic.Int64
	peakMu sync.Mutex
	peakAt time.Time
}

func newGauge(name string) *Gauge {
	return &Gauge{name: name}
}

// Set stores the current value.
func (g *Gauge) Set(v int64) {
	g.value.Store(v)
	first := g.samples.Add(1) == 1

	if !first && v <= g.peak.Load() {
		return
	}

	g.peakMu.Lock()
	if g.peakAt.IsZero() || v > g.peak.Load() {
		g.peak.Store(v)
		g.peakAt = time.Now()
	}
	g.peakMu.Unlock()
}

// Value returns the last value set.
func (g *Gauge) Value() int64 {
	return g.value.Load()
}

// Peak returns the highest value set and when it was first reached.
func (g *Gauge) Peak() (int64, time.Time) {
	g.peakMu.Lock()
	defer g.peakMu.Unlock()
	return g.peak.Load(), g.peakAt
}

// Name returns the metric name.
func (g *Gauge) Name() string { return g.name }

// Type returns TypeGauge.
func (g *Gauge) Type() Type { return TypeGauge }

// Contains returns ValueDefault.
func (g *Gauge) Contains() ValueType { return ValueDefault }

// Samples returns the number of Set calls.
func (g *Gauge) Samples() int64 { return g.samples.Load() }

// Stat supports "value" and "max".
func (g *Gauge) Stat(stat string) (float64, error) {
	switch stat {
	case "value", "max":
	default:
		return 0, unknownStat(g.name, stat, TypeGauge)
	}
	if g.Samples() == 0 {
		return 0, noSamples(g.name)
	}
	if stat == "value" {
		return float64(g.Value()), nil
	}
	peak, _ := g.Peak()
	return float64(peak), nil
}

// Summary returns the last value and the peak.
func (g *Gauge) Summary() Summary {
	values := map[string]float64{}
	if g.Samples() > 0 {
		peak, _ := g.Peak()
		values["value"] = float64(g.Value())
		values["max"] = float64(peak)
	}
	return Summary{
		Name:     g.name,
		Type:     TypeGauge,
		Contains: ValueDefault,
		Samples:  g.Samples(),
		Values:   values,
	}
}

var _ Metric = (*Gauge)(nil)
