package executor_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/wesleyorama2/contactload/internal/performance"
	"github.com/wesleyorama2/contactload/internal/performance/executor"
)

// createRampingVUsTestServer creates a test HTTP server
func createRampingVUsTestServer(t *testing.T) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "ok"}`))
	}))
	t.Cleanup(server.Close)
	return server
}

// createRampingVUsTestScenario creates a scenario with one request and a
// fixed think time
func createRampingVUsTestScenario(serverURL string, sleep time.Duration) *performance.Scenario {
	scenario := &performance.Scenario{
		Name:  "ramping-vus-test",
		Sleep: performance.Fixed(sleep),
	}
	if serverURL != "" {
		scenario.Steps = []*performance.Step{{
			Name: "test-step",
			Requests: []*performance.RequestConfig{{
				Name:   "test-request",
				Method: http.MethodGet,
				URL:    serverURL,
			}},
		}}
	}
	return scenario
}

// startRampingVUs initializes an executor and a scheduler sized for config
func startRampingVUs(t *testing.T, config *executor.Config, scenario *performance.Scenario) (*executor.RampingVUs, *performance.RunContext, *performance.VUScheduler) {
	t.Helper()

	run, err := performance.NewRunContext("test", nil, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewRunContext() error = %v", err)
	}

	e := executor.NewRampingVUs().WithLogger(run.Logger)
	if err := e.Init(context.Background(), config); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	scheduler := performance.NewVUScheduler(run, scenario, e.Schedule().MaxTarget(), performance.DefaultHTTPClientConfig())
	return e, run, scheduler
}

func TestNewRampingVUs(t *testing.T) {
	e := executor.NewRampingVUs()
	if e == nil {
		t.Fatal("NewRampingVUs() returned nil")
	}
	if e.Type() != executor.TypeRampingVUs {
		t.Errorf("Type() = %v, want %v", e.Type(), executor.TypeRampingVUs)
	}
	if e.GetProgress() != 0 {
		t.Errorf("GetProgress() = %v, want 0 before Run", e.GetProgress())
	}
	if e.GetActiveVUs() != 0 {
		t.Errorf("GetActiveVUs() = %d, want 0 before Run", e.GetActiveVUs())
	}
}

func TestNew(t *testing.T) {
	for _, typ := range []executor.Type{executor.TypeRampingVUs, executor.TypeConstantVUs} {
		e, err := executor.New(typ, zaptest.NewLogger(t))
		if err != nil {
			t.Fatalf("New(%s) error = %v", typ, err)
		}
		if e == nil {
			t.Fatalf("New(%s) returned nil", typ)
		}
	}

	if _, err := executor.New("constant-arrival-rate", nil); err == nil {
		t.Error("New() with unknown type should fail")
	}
}

func TestRampingVUs_Init_InvalidConfig(t *testing.T) {
	e := executor.NewRampingVUs()

	err := e.Init(context.Background(), &executor.Config{Type: executor.TypeRampingVUs})
	if err == nil {
		t.Fatal("Init() error = nil, want error for config without stages")
	}
}

func TestRampingVUs_Run_NotInitialized(t *testing.T) {
	run, err := performance.NewRunContext("test", nil, nil)
	if err != nil {
		t.Fatalf("NewRunContext() error = %v", err)
	}
	scheduler := performance.NewVUScheduler(run, createRampingVUsTestScenario("", 0), 1, performance.DefaultHTTPClientConfig())

	if err := executor.NewRampingVUs().Run(context.Background(), scheduler); err == nil {
		t.Error("Run() error = nil, want error before Init")
	}
}

func TestRampingVUs_Run_FollowsStages(t *testing.T) {
	server := createRampingVUsTestServer(t)

	config := &executor.Config{
		Type: executor.TypeRampingVUs,
		Stages: []executor.Stage{
			{Duration: 200 * time.Millisecond, Target: 4},
			{Duration: 200 * time.Millisecond, Target: 4, Hold: true},
			{Duration: 100 * time.Millisecond, Target: 0},
		},
		TickInterval: 5 * time.Millisecond,
	}
	e, run, scheduler := startRampingVUs(t, config, createRampingVUsTestScenario(server.URL, 10*time.Millisecond))

	run.Start()
	if err := e.Run(context.Background(), scheduler); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	run.Stop()

	peak, _ := run.Builtin.VUs.Peak()
	if peak != 4 {
		t.Errorf("peak VUs = %d, want 4", peak)
	}
	if got := run.Builtin.VUsMax.Value(); got != 4 {
		t.Errorf("vus_max = %d, want 4", got)
	}
	if scheduler.Completed() == 0 {
		t.Error("Completed() = 0, want iterations to complete")
	}
	if run.Builtin.HTTPReqs.Count() == 0 {
		t.Error("http_reqs = 0, want requests to be recorded")
	}
	if e.GetActiveVUs() != 0 {
		t.Errorf("GetActiveVUs() = %d after Run, want 0", e.GetActiveVUs())
	}
	if e.GetProgress() != 1.0 {
		t.Errorf("GetProgress() = %v after Run, want 1.0", e.GetProgress())
	}

	stats := e.GetStats()
	if !stats.Draining {
		t.Error("GetStats().Draining = false after Run, want true")
	}
	if stats.TotalStages != 3 {
		t.Errorf("GetStats().TotalStages = %d, want 3", stats.TotalStages)
	}
	if stats.Iterations != scheduler.Completed() {
		t.Errorf("GetStats().Iterations = %d, want %d", stats.Iterations, scheduler.Completed())
	}
}

func TestRampingVUs_Run_DrainFinishesIterations(t *testing.T) {
	config := &executor.Config{
		Type: executor.TypeRampingVUs,
		Stages: []executor.Stage{
			{Duration: 100 * time.Millisecond, Target: 3, Hold: true},
		},
		TickInterval: 5 * time.Millisecond,
	}
	// every VU is still in its first sleep when the schedule ends
	e, run, scheduler := startRampingVUs(t, config, createRampingVUsTestScenario("", 400*time.Millisecond))

	run.Start()
	if err := e.Run(context.Background(), scheduler); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := scheduler.Completed(); got != 3 {
		t.Errorf("Completed() = %d, want 3", got)
	}
	if got := run.Builtin.Iterations.Count(); got != 3 {
		t.Errorf("iterations = %d, want 3", got)
	}
}

func TestRampingVUs_Stop(t *testing.T) {
	server := createRampingVUsTestServer(t)

	config := &executor.Config{
		Type: executor.TypeRampingVUs,
		Stages: []executor.Stage{
			{Duration: time.Minute, Target: 2, Hold: true},
		},
		TickInterval: 5 * time.Millisecond,
	}
	e, _, scheduler := startRampingVUs(t, config, createRampingVUsTestScenario(server.URL, 10*time.Millisecond))

	go func() {
		time.Sleep(100 * time.Millisecond)
		e.Stop(context.Background())
		e.Stop(context.Background())
	}()

	start := time.Now()
	if err := e.Run(context.Background(), scheduler); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Run() took %v after Stop, want well under the 1m schedule", elapsed)
	}
	if scheduler.ActiveCount() != 0 {
		t.Errorf("ActiveCount() = %d after Stop, want 0", scheduler.ActiveCount())
	}
}

func TestRampingVUs_ContextCancelAborts(t *testing.T) {
	config := &executor.Config{
		Type: executor.TypeRampingVUs,
		Stages: []executor.Stage{
			{Duration: time.Minute, Target: 2, Hold: true},
		},
		TickInterval: 5 * time.Millisecond,
	}
	e, run, scheduler := startRampingVUs(t, config, createRampingVUsTestScenario("", 10*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := e.Run(ctx, scheduler)
	if err == nil {
		t.Fatal("Run() error = nil, want context error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Run() took %v after cancel, want sleeps to be aborted", elapsed)
	}
	if got := run.Builtin.Iterations.Count(); got != 0 {
		t.Errorf("iterations = %d, want 0 for aborted iterations", got)
	}
}

// TestRampingVUs_SpikeTimeScaled runs the spike shape at 1/100 speed: 6s of
// schedule become 3.6s.
func TestRampingVUs_SpikeTimeScaled(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping time-scaled run in short mode")
	}

	const scale = 100
	stages := spikeStages()
	for i := range stages {
		stages[i].Duration /= scale
	}

	config := &executor.Config{
		Type:         executor.TypeRampingVUs,
		Stages:       stages,
		TickInterval: 5 * time.Millisecond,
	}
	e, run, scheduler := startRampingVUs(t, config, createRampingVUsTestScenario("", 3*time.Millisecond))

	run.Start()
	start := time.Now()
	if err := e.Run(context.Background(), scheduler); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	peak, peakAt := run.Builtin.VUs.Peak()
	if peak != 300 {
		t.Fatalf("peak VUs = %d, want 300", peak)
	}

	// the ramp to 300 ends at 0.9s and the plateau at 1.5s
	offset := peakAt.Sub(start)
	if offset < 600*time.Millisecond || offset > 1500*time.Millisecond {
		t.Errorf("peak reached at %v, want within [600ms, 1.5s]", offset)
	}

	if scheduler.MaxVUs() != 300 {
		t.Errorf("MaxVUs() = %d, want 300", scheduler.MaxVUs())
	}
	if got := run.Builtin.VUs.Value(); got != 0 {
		t.Errorf("vus = %d after Run, want 0", got)
	}
}
