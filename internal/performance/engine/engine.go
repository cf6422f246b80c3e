// Package engine runs a load-test profile from start to verdict.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/contactload/internal/performance"
	"github.com/wesleyorama2/contactload/internal/performance/check"
	"github.com/wesleyorama2/contactload/internal/performance/config"
	"github.com/wesleyorama2/contactload/internal/performance/executor"
	"github.com/wesleyorama2/contactload/internal/performance/metrics"
	"github.com/wesleyorama2/contactload/internal/performance/threshold"
)

// DefaultJudgeInterval is how often abortOnFail thresholds are checked.
const DefaultJudgeInterval = time.Second

// Engine is the orchestrator of a single run.
//
// It coordinates:
//   - Configuration validation
//   - The VU pool and the executor that sizes it
//   - Metrics collection
//   - Threshold evaluation, during the run for abortOnFail thresholds and
//     once at the end for the verdict
//
// Example usage:
//
//	cfg, _ := config.LoadProfile("checkout.yaml")
//	engine, _ := engine.NewEngine(cfg)
//	summary, _ := engine.Run(context.Background())
//	fmt.Printf("Run passed: %v\n", summary.Passed)
type Engine struct {
	config *config.RunConfig
	judge  *threshold.Judge

	logger        *zap.Logger
	httpConfig    performance.HTTPClientConfig
	tickInterval  time.Duration
	judgeInterval time.Duration

	mu        sync.RWMutex
	running   bool
	run       *performance.RunContext
	exec      executor.Executor
	scheduler *performance.VUScheduler

	abortMu     sync.Mutex
	abortReason string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithHTTPClientConfig replaces the client configuration derived from the
// profile settings.
func WithHTTPClientConfig(hc performance.HTTPClientConfig) Option {
	return func(e *Engine) {
		e.httpConfig = hc
	}
}

// WithTickInterval sets how often the VU target is re-applied.
func WithTickInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.tickInterval = d
		}
	}
}

// WithJudgeInterval sets how often abortOnFail thresholds are checked.
func WithJudgeInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.judgeInterval = d
		}
	}
}

// RunSummary is the complete outcome of a run.
type RunSummary struct {
	RunID       string `json:"runId"`
	Profile     string `json:"profile"`
	Description string `json:"description,omitempty"`

	// Layout selects the profile block of the text report
	Layout string `json:"layout,omitempty"`

	StartTime time.Time     `json:"startTime"`
	EndTime   time.Time     `json:"endTime"`
	Duration  time.Duration `json:"duration"`

	// PeakVUs is the highest active VU count and PeakAt the offset from the
	// start of the run at which it was first reached
	PeakVUs int64         `json:"peakVUs"`
	PeakAt  time.Duration `json:"peakAt"`
	MaxVUs  int           `json:"maxVUs"`

	Iterations int64 `json:"iterations"`

	Metrics    []metrics.Summary  `json:"metrics"`
	Checks     []check.Summary    `json:"checks"`
	Thresholds []threshold.Result `json:"thresholds"`

	Passed      bool   `json:"passed"`
	Aborted     bool   `json:"aborted"`
	AbortReason string `json:"abortReason,omitempty"`
}

// Metric returns the summary of the named metric.
func (s *RunSummary) Metric(name string) (metrics.Summary, bool) {
	for _, m := range s.Metrics {
		if m.Name == name {
			return m, true
		}
	}
	return metrics.Summary{}, false
}

// Value returns one value of the named metric, or 0.
func (s *RunSummary) Value(name, key string) float64 {
	m, ok := s.Metric(name)
	if !ok {
		return 0
	}
	v, _ := m.Value(key)
	return v
}

// NewEngine creates an engine for cfg. The configuration is copied,
// defaulted and validated; an invalid configuration is returned as an error
// wrapping *config.ValidationErrors.
func NewEngine(cfg *config.RunConfig, opts ...Option) (*Engine, error) {
	cfg = cfg.Clone()
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	exprs, err := cfg.ThresholdExpressions()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	e := &Engine{
		config:        cfg,
		judge:         threshold.NewJudge(exprs),
		logger:        zap.NewNop(),
		httpConfig:    cfg.HTTPClientConfig(),
		tickInterval:  executor.DefaultTickInterval,
		judgeInterval: DefaultJudgeInterval,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the validated configuration.
func (e *Engine) Config() *config.RunConfig {
	return e.config
}

// Run executes the profile and returns its summary.
//
// Cancelling ctx aborts in-flight iterations at once; the summary of what
// was recorded until then is still returned, together with the context
// error.
func (e *Engine) Run(ctx context.Context) (*RunSummary, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, fmt.Errorf("engine is already running")
	}
	e.running = true
	e.mu.Unlock()

	e.abortMu.Lock()
	e.abortReason = ""
	e.abortMu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	rc, err := performance.NewRunContext(e.config.Name, e.config.Variables, e.logger)
	if err != nil {
		return nil, err
	}

	scenario, err := e.config.BuildScenario(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to build scenario: %w", err)
	}

	ec := e.config.ExecutorConfig()
	ec.TickInterval = e.tickInterval

	exec, err := executor.New(ec.Type, rc.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create executor: %w", err)
	}
	if err := exec.Init(ctx, ec); err != nil {
		return nil, fmt.Errorf("failed to initialize executor: %w", err)
	}

	maxVUs := exec.Schedule().MaxTarget()
	scheduler := performance.NewVUScheduler(rc, scenario, maxVUs, e.httpConfig)

	e.mu.Lock()
	e.run = rc
	e.exec = exec
	e.scheduler = scheduler
	e.mu.Unlock()

	rc.Logger.Info("run started",
		zap.Int("max_vus", maxVUs),
		zap.Duration("duration", exec.Schedule().TotalDuration()),
		zap.Int("stages", len(exec.Schedule().Stages())))

	rc.Start()

	watchDone := make(chan struct{})
	var watchWG sync.WaitGroup
	if e.judge.HasAbortOnFail() {
		watchWG.Add(1)
		go func() {
			defer watchWG.Done()
			e.watchThresholds(ctx, rc, exec, watchDone)
		}()
	}

	runErr := exec.Run(ctx, scheduler)

	close(watchDone)
	watchWG.Wait()
	rc.Stop()

	summary := e.summarize(rc, scheduler, ctx.Err() != nil)

	if summary.Passed {
		rc.Logger.Info("run passed",
			zap.Int64("iterations", summary.Iterations),
			zap.Duration("duration", summary.Duration))
	} else {
		rc.Logger.Warn("run failed",
			zap.Int64("iterations", summary.Iterations),
			zap.Int("failed_thresholds", countFailed(summary.Thresholds)),
			zap.Bool("aborted", summary.Aborted),
			zap.String("abort_reason", summary.AbortReason))
	}

	return summary, runErr
}

// watchThresholds polls the abortOnFail thresholds and ends the schedule
// early on the first breach.
func (e *Engine) watchThresholds(ctx context.Context, rc *performance.RunContext, exec executor.Executor, done <-chan struct{}) {
	ticker := time.NewTicker(e.judgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, breached := e.judge.Breached(rc.Registry)
			if !breached {
				continue
			}

			reason := fmt.Sprintf("threshold %s on %s breached", result.Expression, result.Metric)
			e.abortMu.Lock()
			e.abortReason = reason
			e.abortMu.Unlock()

			rc.Logger.Warn("aborting run",
				zap.String("metric", result.Metric),
				zap.String("threshold", result.Expression),
				zap.Float64("value", result.Value))

			exec.Stop(ctx)
			return
		}
	}
}

func (e *Engine) summarize(rc *performance.RunContext, scheduler *performance.VUScheduler, interrupted bool) *RunSummary {
	verdict := e.judge.Evaluate(rc.Registry)

	end := time.Now()
	s := &RunSummary{
		RunID:       rc.RunID,
		Profile:     e.config.Name,
		Description: e.config.Description,
		Layout:      e.config.Summary,
		StartTime:   rc.StartTime,
		EndTime:     end,
		Duration:    end.Sub(rc.StartTime),
		MaxVUs:      scheduler.MaxVUs(),
		Iterations:  rc.Builtin.Iterations.Count(),
		Metrics:     rc.Registry.Summaries(),
		Checks:      rc.Checks.Summaries(),
		Thresholds:  verdict.Results,
		Passed:      verdict.Passed,
	}

	if peak, at := rc.Builtin.VUs.Peak(); !at.IsZero() {
		s.PeakVUs = peak
		s.PeakAt = at.Sub(rc.StartTime)
	}

	e.abortMu.Lock()
	s.AbortReason = e.abortReason
	e.abortMu.Unlock()

	if interrupted && s.AbortReason == "" {
		s.AbortReason = "interrupted"
	}
	if s.AbortReason != "" {
		s.Aborted = true
		s.Passed = false
	}
	return s
}

func countFailed(results []threshold.Result) int {
	n := 0
	for _, r := range results {
		if !r.Passed {
			n++
		}
	}
	return n
}

// IsRunning returns whether a run is in progress.
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// Stop ends the schedule early. VUs finish their current iteration within
// the graceful stop.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.RLock()
	if !e.running || e.exec == nil {
		e.mu.RUnlock()
		return nil
	}
	exec := e.exec
	e.mu.RUnlock()

	return exec.Stop(ctx)
}

// GetProgress returns current progress (0.0 to 1.0).
func (e *Engine) GetProgress() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.exec == nil {
		return 0.0
	}
	return e.exec.GetProgress()
}

// GetStats returns the executor statistics of the current or last run.
func (e *Engine) GetStats() *executor.Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.exec == nil {
		return nil
	}
	return e.exec.GetStats()
}

// RunContext returns the state of the current or last run.
func (e *Engine) RunContext() *performance.RunContext {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.run
}
