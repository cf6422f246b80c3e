package performance

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/wesleyorama2/contactload/internal/performance/check"
)

// VUState represents the lifecycle state of a Virtual User.
type VUState int32

const (
	// VUStateIdle indicates the VU has no goroutine and can be activated.
	VUStateIdle VUState = iota
	// VUStateRunning indicates the VU is running iterations.
	VUStateRunning
	// VUStateStopping indicates the VU was deactivated and parks at the end
	// of its current iteration.
	VUStateStopping
)

func (s VUState) String() string {
	switch s {
	case VUStateIdle:
		return "idle"
	case VUStateRunning:
		return "running"
	case VUStateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// VirtualUser represents a single simulated user executing iterations.
//
// Each VU has its own:
// - random source (for sleeps and choice steps)
// - variable scope (for extracted values)
// - iteration counter
//
// A VU only observes deactivation between iterations. Sleeps and requests
// inside an iteration are only cut short when the run is aborted.
type VirtualUser struct {
	// Unique identifier for this VU
	ID int

	// Scenario defines what requests to execute
	Scenario *Scenario

	// HTTP client for this VU (may be shared or per-VU)
	HTTPClient *http.Client

	run *RunContext

	mu    sync.Mutex
	state VUState

	// iteration is the number of started iterations
	iteration atomic.Int64
	// completed is the number of iterations that ran to their end
	completed atomic.Int64

	// rng is only used by the goroutine running the VU
	rng *rand.Rand

	// Per-VU variable scope
	data   map[string]string
	dataMu sync.RWMutex
}

// NewVirtualUser creates a new idle Virtual User.
func NewVirtualUser(id int, scenario *Scenario, httpClient *http.Client, run *RunContext) *VirtualUser {
	return &VirtualUser{
		ID:         id,
		Scenario:   scenario,
		HTTPClient: httpClient,
		run:        run,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)*7919)),
		data:       make(map[string]string),
	}
}

// GetState returns the current VU state.
func (vu *VirtualUser) GetState() VUState {
	vu.mu.Lock()
	defer vu.mu.Unlock()
	return vu.state
}

// GetIteration returns the number of started iterations.
func (vu *VirtualUser) GetIteration() int64 {
	return vu.iteration.Load()
}

// Completed returns the number of iterations that ran to their end.
func (vu *VirtualUser) Completed() int64 {
	return vu.completed.Load()
}

// activate moves the VU to running. A stopping VU keeps its goroutine; an
// idle VU gets a new one through start, which is called under the VU lock.
func (vu *VirtualUser) activate(start func()) bool {
	vu.mu.Lock()
	defer vu.mu.Unlock()

	switch vu.state {
	case VUStateStopping:
		vu.state = VUStateRunning
		return true
	case VUStateIdle:
		vu.state = VUStateRunning
		start()
		return true
	default:
		return false
	}
}

// deactivate asks a running VU to park after its current iteration.
func (vu *VirtualUser) deactivate() bool {
	vu.mu.Lock()
	defer vu.mu.Unlock()

	if vu.state != VUStateRunning {
		return false
	}
	vu.state = VUStateStopping
	return true
}

// next is called by the VU goroutine between iterations. It reports whether
// another iteration should run and parks the VU otherwise.
func (vu *VirtualUser) next() bool {
	vu.mu.Lock()
	defer vu.mu.Unlock()

	if vu.state == VUStateRunning {
		return true
	}
	vu.state = VUStateIdle
	return false
}

// park forces the VU back to idle after an aborted iteration.
func (vu *VirtualUser) park() {
	vu.mu.Lock()
	vu.state = VUStateIdle
	vu.mu.Unlock()
}

// loop runs iterations until the VU is deactivated or ctx is cancelled.
func (vu *VirtualUser) loop(ctx context.Context) {
	for vu.next() {
		if err := vu.RunIteration(ctx); err != nil {
			vu.park()
			return
		}
	}
}

// RunIteration executes a single iteration of the scenario: every step in
// order, each followed by its sleep, then the scenario sleep.
//
// Failed requests and checks are recorded and never end the iteration.
// The only error returned is the context error when the run is aborted.
func (vu *VirtualUser) RunIteration(ctx context.Context) error {
	start := time.Now()
	vu.iteration.Add(1)

	if vu.Scenario.IterationCounter != nil {
		vu.Scenario.IterationCounter.Add(1)
	}

	for _, step := range vu.Scenario.Steps {
		vu.runStep(ctx, step)
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := vu.sleep(ctx, step.Sleep); err != nil {
			return err
		}
	}
	if err := vu.sleep(ctx, vu.Scenario.Sleep); err != nil {
		return err
	}

	vu.completed.Add(1)
	vu.run.Builtin.Iterations.Add(1)
	vu.run.Builtin.IterationDuration.AddDuration(time.Since(start))
	return nil
}

func (vu *VirtualUser) runStep(ctx context.Context, step *Step) {
	if len(step.Requests) == 0 {
		return
	}

	switch step.Mode {
	case ModeBatch:
		var wg sync.WaitGroup
		for _, req := range step.Requests {
			wg.Add(1)
			go func(req *RequestConfig) {
				defer wg.Done()
				vu.do(ctx, req)
			}(req)
		}
		wg.Wait()

	case ModeChoice:
		vu.do(ctx, step.Requests[vu.rng.Intn(len(step.Requests))])

	default:
		for _, req := range step.Requests {
			if ctx.Err() != nil {
				return
			}
			vu.do(ctx, req)
		}
	}
}

// do executes one request and records its outcome.
func (vu *VirtualUser) do(ctx context.Context, req *RequestConfig) {
	result := vu.executeRequest(ctx, req)

	// requests cut short by an abort are not data points
	if result.Error != nil && ctx.Err() != nil {
		return
	}

	b := vu.run.Builtin
	b.HTTPReqs.Add(1)
	b.HTTPReqDuration.AddDuration(result.Duration)
	b.HTTPReqFailed.Add(result.Error != nil || result.StatusCode < 200 || result.StatusCode >= 400)
	b.DataReceived.Add(result.BytesReceived)
	if req.Trend != nil {
		req.Trend.AddDuration(result.Duration)
	}

	if result.Error != nil {
		vu.run.Logger.Debug("request failed",
			zap.Int("vu", vu.ID),
			zap.String("request", req.Name),
			zap.Error(result.Error))
	}

	if len(req.Checks) > 0 {
		_, passed := vu.run.Checks.Evaluate(result.Response(), req.Checks)
		if vu.Scenario.ErrorRate != nil {
			vu.Scenario.ErrorRate.Add(!passed)
		}
	}

	if len(req.Extract) > 0 && result.Error == nil {
		vu.extractVariables(req.Extract, result)
	}
}

// executeRequest executes a single HTTP request and returns the result.
func (vu *VirtualUser) executeRequest(ctx context.Context, req *RequestConfig) *RequestResult {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	startTime := time.Now()
	result := &RequestResult{
		VUID:        vu.ID,
		Iteration:   vu.iteration.Load(),
		RequestName: req.Name,
		StartTime:   startTime,
	}

	httpReq, err := vu.buildRequest(ctx, req)
	if err != nil {
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(startTime)
		result.Error = fmt.Errorf("failed to build request: %w", err)
		return result
	}

	resp, err := vu.HTTPClient.Do(httpReq)
	if err != nil {
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(startTime)
		result.Error = err
		return result
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)
	result.StatusCode = resp.StatusCode
	result.Headers = resp.Header
	result.BytesReceived = int64(len(body))
	result.ResponseBody = body
	if err != nil {
		result.Error = fmt.Errorf("failed to read response body: %w", err)
	}
	return result
}

// buildRequest builds an HTTP request from the configuration.
func (vu *VirtualUser) buildRequest(ctx context.Context, req *RequestConfig) (*http.Request, error) {
	url := vu.resolveVariables(req.URL)

	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(vu.resolveVariables(req.Body))
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}

	for key, value := range req.Headers {
		httpReq.Header.Set(key, vu.resolveVariables(value))
	}

	return httpReq, nil
}

// resolveVariables replaces {{name}} placeholders. VU data wins over
// scenario variables, which win over run variables. {{timestamp}},
// {{uuid}}, {{vu}} and {{iteration}} are generated per call.
func (vu *VirtualUser) resolveVariables(input string) string {
	if !strings.Contains(input, "{{") {
		return input
	}
	result := input

	vu.dataMu.RLock()
	for key, value := range vu.data {
		result = strings.ReplaceAll(result, "{{"+key+"}}", value)
	}
	vu.dataMu.RUnlock()

	for key, value := range vu.Scenario.Variables {
		result = strings.ReplaceAll(result, "{{"+key+"}}", value)
	}
	for key, value := range vu.run.Variables {
		result = strings.ReplaceAll(result, "{{"+key+"}}", value)
	}

	if strings.Contains(result, "{{") {
		result = strings.NewReplacer(
			"{{timestamp}}", strconv.FormatInt(time.Now().UnixMilli(), 10),
			"{{uuid}}", uuid.NewString(),
			"{{vu}}", strconv.Itoa(vu.ID),
			"{{iteration}}", strconv.FormatInt(vu.iteration.Load(), 10),
		).Replace(result)
	}

	return result
}

// extractVariables stores values from the response in VU data.
func (vu *VirtualUser) extractVariables(extracts []ExtractConfig, result *RequestResult) {
	for _, extract := range extracts {
		var value string

		switch extract.Source {
		case "header":
			value = result.Headers.Get(extract.Path)
		case "status":
			value = strconv.Itoa(result.StatusCode)
		case "body", "":
			if gjson.ValidBytes(result.ResponseBody) {
				value = gjson.GetBytes(result.ResponseBody, check.GJSONPath(extract.Path)).String()
			}
		}

		if value != "" {
			vu.SetData(extract.Name, value)
		}
	}
}

// sleep waits for a duration drawn from s. Only ctx cancellation, which
// means the run was aborted, interrupts it.
func (vu *VirtualUser) sleep(ctx context.Context, s Sleep) error {
	if s.IsZero() {
		return nil
	}
	d := s.Pick(vu.rng)
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SetData stores a value in the VU's variable scope.
func (vu *VirtualUser) SetData(key, value string) {
	vu.dataMu.Lock()
	defer vu.dataMu.Unlock()
	vu.data[key] = value
}

// GetData retrieves a value from the VU's variable scope.
func (vu *VirtualUser) GetData(key string) (string, bool) {
	vu.dataMu.RLock()
	defer vu.dataMu.RUnlock()
	val, ok := vu.data[key]
	return val, ok
}

// RequestResult contains the result of a single HTTP request.
type RequestResult struct {
	VUID          int           `json:"vuId"`
	Iteration     int64         `json:"iteration"`
	RequestName   string        `json:"requestName"`
	StartTime     time.Time     `json:"startTime"`
	EndTime       time.Time     `json:"endTime"`
	Duration      time.Duration `json:"duration"`
	StatusCode    int           `json:"statusCode"`
	BytesReceived int64         `json:"bytesReceived"`
	Error         error         `json:"-"`
	Headers       http.Header   `json:"-"`
	ResponseBody  []byte        `json:"-"`
}

// Response returns the view of the result that checks inspect.
func (r *RequestResult) Response() *check.Response {
	return &check.Response{
		Status:   r.StatusCode,
		Headers:  r.Headers,
		Body:     r.ResponseBody,
		Duration: r.Duration,
		Err:      r.Error,
	}
}
