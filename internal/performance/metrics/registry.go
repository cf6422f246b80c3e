package metrics

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// window is the time span the counters' per-second rates are computed over.
type window struct {
	start atomic.Int64 // unix nanos, 0 until started
	end   atomic.Int64 // unix nanos, 0 while running
}

func (w *window) elapsed() time.Duration {
	start := w.start.Load()
	if start == 0 {
		return 0
	}
	end := w.end.Load()
	if end == 0 {
		end = time.Now().UnixNano()
	}
	return time.Duration(end - start)
}

// Registry owns every metric of a run.
//
// Metrics are registered before virtual users start; the registry lock is
// only taken to register and to look metrics up by name, never on the write
// path of a metric itself.
type Registry struct {
	mu      sync.RWMutex
	metrics map[string]Metric

	trendConfig TrendConfig
	window      window
}

// NewRegistry creates an empty registry with the default trend settings.
func NewRegistry() *Registry {
	return NewRegistryWithConfig(DefaultTrendConfig())
}

// NewRegistryWithConfig creates an empty registry with custom trend settings.
func NewRegistryWithConfig(trendConfig TrendConfig) *Registry {
	return &Registry{
		metrics:     make(map[string]Metric),
		trendConfig: trendConfig,
	}
}

// Start marks the beginning of the measurement window.
func (r *Registry) Start() {
	r.window.start.CompareAndSwap(0, time.Now().UnixNano())
}

// Stop closes the measurement window. Summaries taken afterwards are stable.
func (r *Registry) Stop() {
	r.window.end.CompareAndSwap(0, time.Now().UnixNano())
}

// Elapsed returns the length of the measurement window so far.
func (r *Registry) Elapsed() time.Duration {
	return r.window.elapsed()
}

// Counter returns the counter with the given name, creating it if needed.
func (r *Registry) Counter(name string) (*Counter, error) {
	m, err := r.Register(Definition{Name: name, Type: TypeCounter})
	if err != nil {
		return nil, err
	}
	return m.(*Counter), nil
}

// Rate returns the rate with the given name, creating it if needed.
func (r *Registry) Rate(name string) (*Rate, error) {
	m, err := r.Register(Definition{Name: name, Type: TypeRate})
	if err != nil {
		return nil, err
	}
	return m.(*Rate), nil
}

// Trend returns the trend with the given name, creating it if needed.
func (r *Registry) Trend(name string, contains ValueType) (*Trend, error) {
	m, err := r.Register(Definition{Name: name, Type: TypeTrend, Contains: contains})
	if err != nil {
		return nil, err
	}
	return m.(*Trend), nil
}

// Gauge returns the gauge with the given name, creating it if needed.
func (r *Registry) Gauge(name string) (*Gauge, error) {
	m, err := r.Register(Definition{Name: name, Type: TypeGauge})
	if err != nil {
		return nil, err
	}
	return m.(*Gauge), nil
}

// Register creates the metric described by def. Registering an existing
// name again returns the existing metric when the types match and an error
// otherwise.
func (r *Registry) Register(def Definition) (Metric, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.metrics[def.Name]; ok {
		if existing.Type() != def.Type {
			return nil, fmt.Errorf("metric %s already registered as %s, cannot register as %s",
				def.Name, existing.Type(), def.Type)
		}
		return existing, nil
	}

	var m Metric
	switch def.Type {
	case TypeCounter:
		m = newCounter(def.Name, def.Contains, &r.window)
	case TypeRate:
		m = newRate(def.Name)
	case TypeTrend:
		m = newTrend(def.Name, def.Contains, r.trendConfig)
	case TypeGauge:
		m = newGauge(def.Name)
	}
	r.metrics[def.Name] = m
	return m, nil
}

// Lookup returns the metric with the given name.
func (r *Registry) Lookup(name string) (Metric, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.metrics[name]
	return m, ok
}

// Names returns every registered metric name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.metrics))
	for name := range r.metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Summaries returns the summary of every metric, sorted by name.
func (r *Registry) Summaries() []Summary {
	names := r.Names()
	result := make([]Summary, 0, len(names))
	for _, name := range names {
		if m, ok := r.Lookup(name); ok {
			result = append(result, m.Summary())
		}
	}
	return result
}
