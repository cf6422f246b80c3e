package performance_test

import (
	"context"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/wesleyorama2/contactload/internal/performance"
	"github.com/wesleyorama2/contactload/internal/performance/check"
	"github.com/wesleyorama2/contactload/internal/performance/metrics"
)

// newTestRun creates a run context with a test logger
func newTestRun(t *testing.T, vars map[string]string) *performance.RunContext {
	t.Helper()
	run, err := performance.NewRunContext("test", vars, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewRunContext() error = %v", err)
	}
	return run
}

// createTestVU creates VU 1 with its own client
func createTestVU(run *performance.RunContext, scenario *performance.Scenario) *performance.VirtualUser {
	client := &http.Client{Timeout: 5 * time.Second}
	return performance.NewVirtualUser(1, scenario, client, run)
}

func singleRequest(req *performance.RequestConfig) []*performance.Step {
	return []*performance.Step{{Name: req.Name, Requests: []*performance.RequestConfig{req}}}
}

func TestNewVirtualUser(t *testing.T) {
	run := newTestRun(t, nil)
	vu := createTestVU(run, &performance.Scenario{Name: "test"})

	if vu.ID != 1 {
		t.Errorf("ID = %d, want 1", vu.ID)
	}
	if vu.GetState() != performance.VUStateIdle {
		t.Errorf("GetState() = %v, want idle", vu.GetState())
	}
	if vu.GetIteration() != 0 {
		t.Errorf("GetIteration() = %d, want 0", vu.GetIteration())
	}
}

func TestVUState_String(t *testing.T) {
	tests := []struct {
		state performance.VUState
		want  string
	}{
		{performance.VUStateIdle, "idle"},
		{performance.VUStateRunning, "running"},
		{performance.VUStateStopping, "stopping"},
		{performance.VUState(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("VUState(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestVirtualUser_RunIteration_RecordsMetrics(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`[{"id":"1"}]`))
	}))
	defer server.Close()

	run := newTestRun(t, nil)
	trend, err := run.Registry.Trend("contacts_latency", metrics.ValueTime)
	if err != nil {
		t.Fatalf("Trend() error = %v", err)
	}
	errorRate, err := run.Registry.Rate("errors")
	if err != nil {
		t.Fatalf("Rate() error = %v", err)
	}

	scenario := &performance.Scenario{
		Name:      "metrics",
		ErrorRate: errorRate,
		Steps: []*performance.Step{
			{
				Name: "ok",
				Requests: []*performance.RequestConfig{{
					Name:  "list",
					URL:   server.URL + "/contacts",
					Trend: trend,
					Checks: check.Set{
						{Name: "status is 200", Predicate: check.Status(200)},
						{Name: "returns array", Predicate: check.JSONArray("")},
					},
				}},
			},
			{
				Name: "fail",
				Requests: []*performance.RequestConfig{{
					Name: "broken",
					URL:  server.URL + "/fail",
					Checks: check.Set{
						{Name: "status is 200", Predicate: check.Status(200)},
					},
				}},
			},
		},
	}

	vu := createTestVU(run, scenario)
	if err := vu.RunIteration(context.Background()); err != nil {
		t.Fatalf("RunIteration() error = %v", err)
	}

	b := run.Builtin
	if got := b.HTTPReqs.Count(); got != 2 {
		t.Errorf("http_reqs = %d, want 2", got)
	}
	if got := b.HTTPReqFailed.Passes(); got != 1 {
		t.Errorf("http_req_failed true samples = %d, want 1", got)
	}
	if got := b.Checks.Passes(); got != 2 {
		t.Errorf("checks passes = %d, want 2", got)
	}
	if got := b.Checks.Fails(); got != 1 {
		t.Errorf("checks fails = %d, want 1", got)
	}
	if got := trend.Samples(); got != 1 {
		t.Errorf("contacts_latency samples = %d, want 1", got)
	}
	if got, _ := errorRate.Value(); got != 0.5 {
		t.Errorf("errors rate = %v, want 0.5", got)
	}
	if got := b.Iterations.Count(); got != 1 {
		t.Errorf("iterations = %d, want 1", got)
	}
	if got := vu.Completed(); got != 1 {
		t.Errorf("Completed() = %d, want 1", got)
	}

	summaries := run.Checks.Summaries()
	if len(summaries) != 2 {
		t.Fatalf("len(Summaries()) = %d, want 2", len(summaries))
	}
	if summaries[0].Name != "status is 200" || summaries[0].Passes != 1 || summaries[0].Fails != 1 {
		t.Errorf("Summaries()[0] = %+v, want status is 200 with 1 pass and 1 fail", summaries[0])
	}
}

func TestVirtualUser_RunIteration_ConnectionError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	run := newTestRun(t, nil)
	errorRate, _ := run.Registry.Rate("errors")
	scenario := &performance.Scenario{
		Name:      "down",
		ErrorRate: errorRate,
		Steps: singleRequest(&performance.RequestConfig{
			Name:   "unreachable",
			URL:    url,
			Checks: check.Set{{Name: "is available", Predicate: check.StatusIn(200, 503)}},
		}),
	}

	vu := createTestVU(run, scenario)
	if err := vu.RunIteration(context.Background()); err != nil {
		t.Fatalf("RunIteration() error = %v, want failed requests to be recorded only", err)
	}

	if got := run.Builtin.HTTPReqFailed.Passes(); got != 1 {
		t.Errorf("http_req_failed true samples = %d, want 1", got)
	}
	if got := run.Builtin.Checks.Fails(); got != 1 {
		t.Errorf("checks fails = %d, want 1", got)
	}
	if got := errorRate.Passes(); got != 1 {
		t.Errorf("errors true samples = %d, want 1", got)
	}
}

func TestVirtualUser_RunIteration_RequestTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/slow" {
			select {
			case <-time.After(2 * time.Second):
			case <-r.Context().Done():
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	run := newTestRun(t, nil)
	available := check.Set{{Name: "status is 200", Predicate: check.Status(200)}}
	scenario := &performance.Scenario{
		Name: "timeout",
		Steps: []*performance.Step{{
			Name: "slow then fast",
			Requests: []*performance.RequestConfig{
				{Name: "slow", URL: server.URL + "/slow", Timeout: 50 * time.Millisecond, Checks: available},
				{Name: "fast", URL: server.URL + "/fast", Checks: available},
			},
		}},
	}

	vu := createTestVU(run, scenario)
	start := time.Now()
	if err := vu.RunIteration(context.Background()); err != nil {
		t.Fatalf("RunIteration() error = %v, want the timeout to be recorded only", err)
	}
	if elapsed := time.Since(start); elapsed >= 2*time.Second {
		t.Errorf("RunIteration() took %v, want the request timeout to cut the slow call", elapsed)
	}

	if got := run.Builtin.HTTPReqs.Count(); got != 2 {
		t.Errorf("http_reqs = %d, want 2", got)
	}
	if got := run.Builtin.HTTPReqFailed.Passes(); got != 1 {
		t.Errorf("http_req_failed true samples = %d, want 1", got)
	}
	if got := run.Builtin.Checks.Fails(); got != 1 {
		t.Errorf("checks fails = %d, want 1", got)
	}
	if got := run.Builtin.Checks.Passes(); got != 1 {
		t.Errorf("checks passes = %d, want 1", got)
	}
	if got := vu.Completed(); got != 1 {
		t.Errorf("Completed() = %d, want 1", got)
	}
}

func TestVirtualUser_ResolveVariables(t *testing.T) {
	var mu sync.Mutex
	var paths []string
	var bodies []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf, _ := io.ReadAll(r.Body)
		mu.Lock()
		paths = append(paths, r.URL.Path)
		bodies = append(bodies, string(buf))
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	run := newTestRun(t, map[string]string{"API_URL": server.URL, "kind": "run"})
	scenario := &performance.Scenario{
		Name:      "vars",
		Variables: map[string]string{"kind": "scenario"},
		Steps: singleRequest(&performance.RequestConfig{
			Name:    "create",
			Method:  http.MethodPost,
			URL:     "{{API_URL}}/api/{{kind}}/{{vu}}",
			Headers: map[string]string{"Content-Type": "application/json"},
			Body:    `{"name":"User {{iteration}}"}`,
		}),
	}

	vu := createTestVU(run, scenario)
	if err := vu.RunIteration(context.Background()); err != nil {
		t.Fatalf("RunIteration() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(paths) != 1 {
		t.Fatalf("server saw %d requests, want 1", len(paths))
	}
	if paths[0] != "/api/scenario/1" {
		t.Errorf("path = %q, want /api/scenario/1", paths[0])
	}
	if bodies[0] != `{"name":"User 1"}` {
		t.Errorf("body = %q, want {\"name\":\"User 1\"}", bodies[0])
	}
}

func TestVirtualUser_ExtractAndReuse(t *testing.T) {
	var gotAuth atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login":
			w.Header().Set("X-Session", "s-1")
			w.Write([]byte(`{"data":{"token":"abc"}}`))
		default:
			gotAuth.Store(r.Header.Get("Authorization"))
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer server.Close()

	run := newTestRun(t, nil)
	scenario := &performance.Scenario{
		Name: "extract",
		Steps: []*performance.Step{{
			Name: "auth",
			Requests: []*performance.RequestConfig{
				{
					Name: "login",
					URL:  server.URL + "/login",
					Extract: []performance.ExtractConfig{
						{Name: "token", Source: "body", Path: "$.data.token"},
						{Name: "session", Source: "header", Path: "X-Session"},
						{Name: "status", Source: "status"},
					},
				},
				{
					Name:    "me",
					URL:     server.URL + "/me",
					Headers: map[string]string{"Authorization": "Bearer {{token}}"},
				},
			},
		}},
	}

	vu := createTestVU(run, scenario)
	if err := vu.RunIteration(context.Background()); err != nil {
		t.Fatalf("RunIteration() error = %v", err)
	}

	if got, _ := gotAuth.Load().(string); got != "Bearer abc" {
		t.Errorf("Authorization = %q, want Bearer abc", got)
	}
	for key, want := range map[string]string{"token": "abc", "session": "s-1", "status": "200"} {
		if got, ok := vu.GetData(key); !ok || got != want {
			t.Errorf("GetData(%q) = %q, %v, want %q", key, got, ok, want)
		}
	}
}

func TestVirtualUser_StepModes(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	requests := func() []*performance.RequestConfig {
		return []*performance.RequestConfig{
			{Name: "frontend", URL: server.URL + "/"},
			{Name: "contacts", URL: server.URL + "/api/contacts"},
			{Name: "health", URL: server.URL + "/health"},
		}
	}

	t.Run("batch", func(t *testing.T) {
		hits.Store(0)
		run := newTestRun(t, nil)
		scenario := &performance.Scenario{
			Name:  "batch",
			Steps: []*performance.Step{{Name: "batch", Mode: performance.ModeBatch, Requests: requests()}},
		}

		start := time.Now()
		if err := createTestVU(run, scenario).RunIteration(context.Background()); err != nil {
			t.Fatalf("RunIteration() error = %v", err)
		}
		if got := hits.Load(); got != 3 {
			t.Errorf("requests = %d, want 3", got)
		}
		// three 50ms requests in parallel
		if elapsed := time.Since(start); elapsed >= 140*time.Millisecond {
			t.Errorf("batch took %v, want requests to run concurrently", elapsed)
		}
	})

	t.Run("choice", func(t *testing.T) {
		hits.Store(0)
		run := newTestRun(t, nil)
		scenario := &performance.Scenario{
			Name:  "choice",
			Steps: []*performance.Step{{Name: "choice", Mode: performance.ModeChoice, Requests: requests()}},
		}

		vu := createTestVU(run, scenario)
		for i := 0; i < 3; i++ {
			if err := vu.RunIteration(context.Background()); err != nil {
				t.Fatalf("RunIteration() error = %v", err)
			}
		}
		if got := hits.Load(); got != 3 {
			t.Errorf("requests = %d, want one per iteration", got)
		}
	})

	t.Run("sequence", func(t *testing.T) {
		hits.Store(0)
		run := newTestRun(t, nil)
		scenario := &performance.Scenario{
			Name:  "sequence",
			Steps: []*performance.Step{{Name: "sequence", Requests: requests()}},
		}

		if err := createTestVU(run, scenario).RunIteration(context.Background()); err != nil {
			t.Fatalf("RunIteration() error = %v", err)
		}
		if got := hits.Load(); got != 3 {
			t.Errorf("requests = %d, want 3", got)
		}
	})
}

func TestVirtualUser_RunIteration_Aborted(t *testing.T) {
	run := newTestRun(t, nil)
	scenario := &performance.Scenario{
		Name:  "sleepy",
		Sleep: performance.Fixed(10 * time.Second),
	}
	vu := createTestVU(run, scenario)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := vu.RunIteration(ctx); err == nil {
		t.Fatal("RunIteration() error = nil, want context error")
	}
	if got := vu.Completed(); got != 0 {
		t.Errorf("Completed() = %d, want 0", got)
	}
	if got := run.Builtin.Iterations.Count(); got != 0 {
		t.Errorf("iterations = %d, want 0", got)
	}
}

func TestVirtualUser_IterationCounterCountsStarts(t *testing.T) {
	run := newTestRun(t, nil)
	counter, _ := run.Registry.Counter("total_requests")
	scenario := &performance.Scenario{
		Name:             "soak",
		IterationCounter: counter,
	}
	vu := createTestVU(run, scenario)

	for i := 0; i < 4; i++ {
		vu.RunIteration(context.Background())
	}
	if got := counter.Count(); got != 4 {
		t.Errorf("total_requests = %d, want 4", got)
	}
	if got := vu.GetIteration(); got != 4 {
		t.Errorf("GetIteration() = %d, want 4", got)
	}
}

func TestSleep_Pick(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	if got := performance.Fixed(time.Second).Pick(rng); got != time.Second {
		t.Errorf("Fixed(1s).Pick() = %v, want 1s", got)
	}
	if got := performance.Between(time.Second, 0).Pick(rng); got != time.Second {
		t.Errorf("Between(1s, 0).Pick() = %v, want 1s", got)
	}
	if got := performance.Between(-time.Second, -time.Second).Pick(rng); got != 0 {
		t.Errorf("negative Pick() = %v, want 0", got)
	}

	s := performance.Between(time.Second, 5*time.Second)
	for i := 0; i < 1000; i++ {
		got := s.Pick(rng)
		if got < time.Second || got > 5*time.Second {
			t.Fatalf("Between(1s, 5s).Pick() = %v, want within [1s, 5s]", got)
		}
	}

	scaled := s.Scale(0.01)
	if scaled.Min != 10*time.Millisecond || scaled.Max != 50*time.Millisecond {
		t.Errorf("Scale(0.01) = %+v, want [10ms, 50ms]", scaled)
	}
	if !(performance.Sleep{}).IsZero() {
		t.Error("Sleep{}.IsZero() = false, want true")
	}
}
