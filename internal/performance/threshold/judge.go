package threshold

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/wesleyorama2/contactload/internal/performance/metrics"
)

// Source gives the judge access to metrics by name. *metrics.Registry
// implements it.
type Source interface {
	Lookup(name string) (metrics.Metric, bool)
}

// Result is the outcome of one expression.
type Result struct {
	Metric      string  `json:"metric"`
	Expression  string  `json:"expression"`
	Passed      bool    `json:"passed"`
	Value       float64 `json:"value"`
	AbortOnFail bool    `json:"abortOnFail,omitempty"`

	// Indeterminate is set when the metric had no samples or the statistic
	// could not be computed. Indeterminate results never pass.
	Indeterminate bool   `json:"indeterminate,omitempty"`
	Message       string `json:"message,omitempty"`
}

// Verdict is the overall outcome of a judge evaluation.
type Verdict struct {
	Passed  bool     `json:"passed"`
	Results []Result `json:"results"`
}

// Failed returns the results that did not pass.
func (v Verdict) Failed() []Result {
	var failed []Result
	for _, r := range v.Results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

type metricThresholds struct {
	metric      string
	expressions []Expression
}

// Judge evaluates a fixed set of thresholds.
type Judge struct {
	thresholds []metricThresholds
}

// NewJudge creates a judge for thresholds keyed by metric name. Metrics are
// evaluated in name order and expressions in the order given.
func NewJudge(thresholds map[string][]Expression) *Judge {
	names := make([]string, 0, len(thresholds))
	for name := range thresholds {
		names = append(names, name)
	}
	sort.Strings(names)

	j := &Judge{}
	for _, name := range names {
		exprs := make([]Expression, len(thresholds[name]))
		copy(exprs, thresholds[name])
		j.thresholds = append(j.thresholds, metricThresholds{metric: name, expressions: exprs})
	}
	return j
}

// HasAbortOnFail reports whether any expression asks to abort the run.
func (j *Judge) HasAbortOnFail() bool {
	for _, mt := range j.thresholds {
		for _, e := range mt.expressions {
			if e.AbortOnFail {
				return true
			}
		}
	}
	return false
}

// Evaluate judges every expression against src. The run passes only when
// every expression passes; a metric that is missing or has no samples fails.
func (j *Judge) Evaluate(src Source) Verdict {
	v := Verdict{Passed: true}
	for _, mt := range j.thresholds {
		for _, e := range mt.expressions {
			r := evaluate(src, mt.metric, e)
			if !r.Passed {
				v.Passed = false
			}
			v.Results = append(v.Results, r)
		}
	}
	return v
}

// Breached evaluates only the abortOnFail expressions and returns the first
// one that has definitely failed. Indeterminate results are ignored because
// a metric can still be empty early in a run.
func (j *Judge) Breached(src Source) (Result, bool) {
	for _, mt := range j.thresholds {
		for _, e := range mt.expressions {
			if !e.AbortOnFail {
				continue
			}
			r := evaluate(src, mt.metric, e)
			if !r.Passed && !r.Indeterminate {
				return r, true
			}
		}
	}
	return Result{}, false
}

func evaluate(src Source, metric string, e Expression) Result {
	r := Result{
		Metric:      metric,
		Expression:  e.Source,
		AbortOnFail: e.AbortOnFail,
	}

	m, ok := src.Lookup(metric)
	if !ok {
		r.Indeterminate = true
		r.Message = fmt.Sprintf("metric %s was never recorded", metric)
		return r
	}

	actual, err := m.Stat(e.Stat)
	if err != nil {
		r.Indeterminate = true
		if errors.Is(err, metrics.ErrNoSamples) {
			r.Message = fmt.Sprintf("metric %s has no samples", metric)
		} else {
			r.Message = err.Error()
		}
		return r
	}

	r.Value = actual
	r.Passed = e.Compare(actual)
	if !r.Passed {
		r.Message = fmt.Sprintf("%s is %s, threshold: %s %s",
			e.Stat, formatValue(actual, m.Contains()), e.Op, formatValue(e.Limit, m.Contains()))
	}
	return r
}

func formatValue(v float64, contains metrics.ValueType) string {
	switch contains {
	case metrics.ValueTime:
		return strconv.FormatFloat(v, 'f', 2, 64) + "ms"
	default:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
}
