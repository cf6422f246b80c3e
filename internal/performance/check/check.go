// Package check evaluates named assertions against HTTP responses.
//
// A check never fails the virtual user that runs it: a predicate that
// returns an error or panics is recorded as a failed check and evaluation
// moves on to the next one.
package check

import (
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wesleyorama2/contactload/internal/performance/metrics"
)

// Response is the view of an HTTP exchange that predicates inspect.
type Response struct {
	Status   int
	Headers  http.Header
	Body     []byte
	Duration time.Duration

	// Err is the transport error, if the request never got a response
	Err error
}

// Predicate decides whether a response satisfies a check.
type Predicate func(resp *Response) (bool, error)

// Check is a named predicate.
type Check struct {
	Name      string
	Predicate Predicate
}

// Set is an ordered list of checks applied to one response.
type Set []Check

// Result is the outcome of one check against one response.
type Result struct {
	Name   string
	Passed bool
	Err    error
}

// Summary holds the pass and fail tallies of one check over a run.
type Summary struct {
	Name   string `json:"name"`
	Passes int64  `json:"passes"`
	Fails  int64  `json:"fails"`
}

type tally struct {
	passes atomic.Int64
	fails  atomic.Int64
}

// Evaluator runs check sets and records their outcomes.
//
// Outcomes go to the shared checks Rate and to per-check tallies. The tally
// map is only locked the first time a check name is seen.
type Evaluator struct {
	checks *metrics.Rate

	tallies sync.Map // name -> *tally

	mu    sync.Mutex
	order []string
}

// NewEvaluator creates an evaluator that feeds the given checks rate.
// A nil rate only keeps the per-check tallies.
func NewEvaluator(checks *metrics.Rate) *Evaluator {
	return &Evaluator{checks: checks}
}

// Evaluate applies every check in set, in order, and reports whether all
// of them passed. An empty set passes.
func (e *Evaluator) Evaluate(resp *Response, set Set) ([]Result, bool) {
	results := make([]Result, 0, len(set))
	allPassed := true

	for _, c := range set {
		passed, err := run(c.Predicate, resp)
		if err != nil {
			passed = false
		}
		results = append(results, Result{Name: c.Name, Passed: passed, Err: err})
		if !passed {
			allPassed = false
		}

		if e.checks != nil {
			e.checks.Add(passed)
		}
		t := e.tally(c.Name)
		if passed {
			t.passes.Add(1)
		} else {
			t.fails.Add(1)
		}
	}

	return results, allPassed
}

// run calls p and turns a panic into an error.
func run(p Predicate, resp *Response) (passed bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			passed = false
			err = fmt.Errorf("check panicked: %v", r)
		}
	}()
	if p == nil {
		return false, fmt.Errorf("check has no predicate")
	}
	if resp == nil {
		return false, fmt.Errorf("no response")
	}
	return p(resp)
}

func (e *Evaluator) tally(name string) *tally {
	if t, ok := e.tallies.Load(name); ok {
		return t.(*tally)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	t, loaded := e.tallies.LoadOrStore(name, &tally{})
	if !loaded {
		e.order = append(e.order, name)
	}
	return t.(*tally)
}

// Summaries returns the tallies of every check in the order the checks
// were first evaluated.
func (e *Evaluator) Summaries() []Summary {
	e.mu.Lock()
	order := make([]string, len(e.order))
	copy(order, e.order)
	e.mu.Unlock()

	result := make([]Summary, 0, len(order))
	for _, name := range order {
		v, ok := e.tallies.Load(name)
		if !ok {
			continue
		}
		t := v.(*tally)
		result = append(result, Summary{
			Name:   name,
			Passes: t.passes.Load(),
			Fails:  t.fails.Load(),
		})
	}
	return result
}
