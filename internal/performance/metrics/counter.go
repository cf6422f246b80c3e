package metrics

import "sync/atomic"

// Counter is a monotonic sum.
type Counter struct {
	name     string
	contains ValueType
	window   *window

	sum     atomic.Int64
	samples atomic.Int64
}

func newCounter(name string, contains ValueType, w *window) *Counter {
	if contains == "" {
		contains = ValueDefault
	}
	return &Counter{name: name, contains: contains, window: w}
}

// Add increments the counter by n. Negative values are ignored so the
// counter never decreases.
func (c *Counter) Add(n int64) {
	if n < 0 {
		return
	}
	c.sum.Add(n)
	c.samples.Add(1)
}

// Count returns the current sum.
func (c *Counter) Count() int64 {
	return c.sum.Load()
}

// Name returns the metric name.
func (c *Counter) Name() string { return c.name }

// Type returns TypeCounter.
func (c *Counter) Type() Type { return TypeCounter }

// Contains returns what the counter values represent.
func (c *Counter) Contains() ValueType { return c.contains }

// Samples returns the number of Add calls that were recorded.
func (c *Counter) Samples() int64 { return c.samples.Load() }

// Stat supports "count" and "rate" (sum per second of run time).
func (c *Counter) Stat(stat string) (float64, error) {
	switch stat {
	case "count", "rate":
	default:
		return 0, unknownStat(c.name, stat, TypeCounter)
	}
	if c.Samples() == 0 {
		return 0, noSamples(c.name)
	}
	if stat == "count" {
		return float64(c.Count()), nil
	}
	return c.rate(), nil
}

func (c *Counter) rate() float64 {
	secs := c.window.elapsed().Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(c.Count()) / secs
}

// Summary returns the count and the per-second rate.
func (c *Counter) Summary() Summary {
	return Summary{
		Name:     c.name,
		Type:     TypeCounter,
		Contains: c.contains,
		Samples:  c.Samples(),
		Values: map[string]float64{
			"count": float64(c.Count()),
			"rate":  c.rate(),
		},
	}
}

var _ Metric = (*Counter)(nil)
