package metrics

import "fmt"

// Names of the metrics every run records.
const (
	HTTPReqs          = "http_reqs"
	HTTPReqDuration   = "http_req_duration"
	HTTPReqFailed     = "http_req_failed"
	DataReceived      = "data_received"
	Checks            = "checks"
	Iterations        = "iterations"
	IterationDuration = "iteration_duration"
	VUs               = "vus"
	VUsMax            = "vus_max"
)

// Builtin holds direct references to the built-in metrics so the hot path
// never goes through a registry lookup.
type Builtin struct {
	HTTPReqs          *Counter
	HTTPReqDuration   *Trend
	HTTPReqFailed     *Rate
	DataReceived      *Counter
	Checks            *Rate
	Iterations        *Counter
	IterationDuration *Trend
	VUs               *Gauge
	VUsMax            *Gauge
}

// RegisterBuiltin registers the built-in metrics in r.
func RegisterBuiltin(r *Registry) (*Builtin, error) {
	b := &Builtin{}
	var err error

	if b.HTTPReqs, err = r.Counter(HTTPReqs); err != nil {
		return nil, fmt.Errorf("register %s: %w", HTTPReqs, err)
	}
	if b.HTTPReqDuration, err = r.Trend(HTTPReqDuration, ValueTime); err != nil {
		return nil, fmt.Errorf("register %s: %w", HTTPReqDuration, err)
	}
	if b.HTTPReqFailed, err = r.Rate(HTTPReqFailed); err != nil {
		return nil, fmt.Errorf("register %s: %w", HTTPReqFailed, err)
	}
	m, err := r.Register(Definition{Name: DataReceived, Type: TypeCounter, Contains: ValueData})
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", DataReceived, err)
	}
	b.DataReceived = m.(*Counter)
	if b.Checks, err = r.Rate(Checks); err != nil {
		return nil, fmt.Errorf("register %s: %w", Checks, err)
	}
	if b.Iterations, err = r.Counter(Iterations); err != nil {
		return nil, fmt.Errorf("register %s: %w", Iterations, err)
	}
	if b.IterationDuration, err = r.Trend(IterationDuration, ValueTime); err != nil {
		return nil, fmt.Errorf("register %s: %w", IterationDuration, err)
	}
	if b.VUs, err = r.Gauge(VUs); err != nil {
		return nil, fmt.Errorf("register %s: %w", VUs, err)
	}
	if b.VUsMax, err = r.Gauge(VUsMax); err != nil {
		return nil, fmt.Errorf("register %s: %w", VUsMax, err)
	}

	return b, nil
}
