package metrics

import "sync/atomic"

// Rate tracks the fraction of true observations.
//
// The rate of an empty Rate is undefined: Value reports ok == false and
// Stat returns ErrNoSamples instead of dividing by zero.
type Rate struct {
	name string

	trues atomic.Int64
	total atomic.Int64
}

func newRate(name string) *Rate {
	return &Rate{name: name}
}

// Add records one observation.
func (r *Rate) Add(ok bool) {
	if ok {
		r.trues.Add(1)
	}
	r.total.Add(1)
}

// Value returns trueCount/total, or ok == false when nothing was recorded.
func (r *Rate) Value() (float64, bool) {
	// total is read first; trues can only be ahead of it, never behind
	total := r.total.Load()
	if total == 0 {
		return 0, false
	}
	trues := r.trues.Load()
	if trues > total {
		trues = total
	}
	return float64(trues) / float64(total), true
}

// Passes returns the number of true observations.
func (r *Rate) Passes() int64 {
	return r.trues.Load()
}

// Fails returns the number of false observations.
func (r *Rate) Fails() int64 {
	fails := r.total.Load() - r.trues.Load()
	if fails < 0 {
		return 0
	}
	return fails
}

// Name returns the metric name.
func (r *Rate) Name() string { return r.name }

// Type returns TypeRate.
func (r *Rate) Type() Type { return TypeRate }

// Contains returns ValueDefault.
func (r *Rate) Contains() ValueType { return ValueDefault }

// Samples returns the number of observations.
func (r *Rate) Samples() int64 { return r.total.Load() }

// Stat supports "rate", "passes" and "fails".
func (r *Rate) Stat(stat string) (float64, error) {
	switch stat {
	case "rate":
		v, ok := r.Value()
		if !ok {
			return 0, noSamples(r.name)
		}
		return v, nil
	case "passes", "fails":
		if r.Samples() == 0 {
			return 0, noSamples(r.name)
		}
		if stat == "passes" {
			return float64(r.Passes()), nil
		}
		return float64(r.Fails()), nil
	default:
		return 0, unknownStat(r.name, stat, TypeRate)
	}
}

// Summary returns passes and fails, plus the rate when it is defined.
func (r *Rate) Summary() Summary {
	values := map[string]float64{
		"passes": float64(r.Passes()),
		"fails":  float64(r.Fails()),
	}
	if v, ok := r.Value(); ok {
		values["rate"] = v
	}
	return Summary{
		Name:     r.name,
		Type:     TypeRate,
		Contains: ValueDefault,
		Samples:  r.Samples(),
		Values:   values,
	}
}

var _ Metric = (*Rate)(nil)
