package config

import (
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/wesleyorama2/contactload/internal/performance"
	"github.com/wesleyorama2/contactload/internal/performance/check"
	"github.com/wesleyorama2/contactload/internal/performance/executor"
	"github.com/wesleyorama2/contactload/internal/performance/metrics"
	"github.com/wesleyorama2/contactload/internal/performance/threshold"
)

// ApplyDefaults fills in the optional fields.
func (c *RunConfig) ApplyDefaults() {
	if c.GracefulStop == 0 {
		c.GracefulStop = Duration(executor.DefaultGracefulStop)
	}
	if c.Scenario.Name == "" {
		c.Scenario.Name = c.Name
	}
	if c.Summary == "" {
		c.Summary = c.Name
	}
	for i := range c.Scenario.Steps {
		step := &c.Scenario.Steps[i]
		if step.Mode == "" {
			step.Mode = ModeSequence
		}
		for j := range step.Requests {
			req := &step.Requests[j]
			if req.Method == "" {
				req.Method = http.MethodGet
			}
			req.Method = strings.ToUpper(req.Method)
			if req.Name == "" {
				req.Name = step.Name
			}
		}
	}
}

// Clone returns a deep copy of the configuration.
func (c *RunConfig) Clone() *RunConfig {
	out := *c

	out.Stages = append([]StageConfig(nil), c.Stages...)
	out.Metrics = append([]metrics.Definition(nil), c.Metrics...)
	out.Variables = cloneMap(c.Variables)
	out.Settings.Headers = cloneMap(c.Settings.Headers)

	if c.Thresholds != nil {
		out.Thresholds = make(map[string][]ThresholdConfig, len(c.Thresholds))
		for name, ths := range c.Thresholds {
			out.Thresholds[name] = append([]ThresholdConfig(nil), ths...)
		}
	}

	out.Scenario.Steps = make([]StepConfig, len(c.Scenario.Steps))
	for i, step := range c.Scenario.Steps {
		step.Requests = append([]RequestConfig(nil), step.Requests...)
		for j := range step.Requests {
			req := &step.Requests[j]
			req.Headers = cloneMap(req.Headers)
			req.Checks = append([]check.Definition(nil), req.Checks...)
			req.Extract = append([]ExtractConfig(nil), req.Extract...)
		}
		out.Scenario.Steps[i] = step
	}
	return &out
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Scaled returns a copy whose stages, fixed duration and sleeps are
// multiplied by factor. The graceful stop, request timeouts and check
// limits are left alone, so in-flight iterations still drain at full
// length. It is used to rehearse long profiles in a fraction of the time.
func (c *RunConfig) Scaled(factor float64) *RunConfig {
	out := c.Clone()
	if factor <= 0 || factor == 1 {
		return out
	}

	scale := func(d Duration) Duration {
		return Duration(math.Round(float64(d) * factor))
	}
	scaleSleep := func(s SleepConfig) SleepConfig {
		return SleepConfig{Min: scale(s.Min), Max: scale(s.Max)}
	}

	for i := range out.Stages {
		out.Stages[i].Duration = scale(out.Stages[i].Duration)
	}
	out.Duration = scale(out.Duration)
	out.Scenario.Sleep = scaleSleep(out.Scenario.Sleep)
	for i := range out.Scenario.Steps {
		out.Scenario.Steps[i].Sleep = scaleSleep(out.Scenario.Steps[i].Sleep)
	}
	return out
}

// ExecutorConfig returns the executor configuration for the schedule.
func (c *RunConfig) ExecutorConfig() *executor.Config {
	ec := &executor.Config{
		Name:         c.Name,
		GracefulStop: c.GracefulStop.Std(),
	}

	if len(c.Stages) == 0 {
		ec.Type = executor.TypeConstantVUs
		ec.VUs = c.VUs
		ec.Duration = c.Duration.Std()
		return ec
	}

	ec.Type = executor.TypeRampingVUs
	ec.Stages = make([]executor.Stage, len(c.Stages))
	for i, st := range c.Stages {
		ec.Stages[i] = executor.Stage{
			Duration: st.Duration.Std(),
			Target:   st.Target,
			Hold:     st.Hold,
			Name:     st.Name,
		}
	}
	return ec
}

// ThresholdExpressions parses every threshold.
func (c *RunConfig) ThresholdExpressions() (map[string][]threshold.Expression, error) {
	out := make(map[string][]threshold.Expression, len(c.Thresholds))
	for name, ths := range c.Thresholds {
		for _, th := range ths {
			expr, err := threshold.Parse(th.Threshold)
			if err != nil {
				return nil, fmt.Errorf("thresholds.%s: %w", name, err)
			}
			expr.AbortOnFail = th.AbortOnFail
			out[name] = append(out[name], expr)
		}
	}
	return out, nil
}

// HTTPClientConfig returns the client configuration with Settings applied
// over the defaults.
func (c *RunConfig) HTTPClientConfig() performance.HTTPClientConfig {
	hc := performance.DefaultHTTPClientConfig()
	s := c.Settings

	if s.Timeout > 0 {
		hc.Timeout = s.Timeout.Std()
	}
	if s.MaxConnectionsPerHost > 0 {
		hc.MaxConnsPerHost = s.MaxConnectionsPerHost
	}
	if s.MaxIdleConnsPerHost > 0 {
		hc.MaxIdleConnsPerHost = s.MaxIdleConnsPerHost
	}
	if s.UserAgent != "" {
		hc.UserAgent = s.UserAgent
	}
	hc.InsecureSkipVerify = s.InsecureSkipVerify
	hc.UseSharedClient = !s.NoConnectionReuse
	hc.Headers = cloneMap(s.Headers)
	return hc
}

// RegisterMetrics registers the declared custom metrics in rc.
func (c *RunConfig) RegisterMetrics(rc *performance.RunContext) error {
	for _, def := range c.Metrics {
		if _, err := rc.Registry.Register(def); err != nil {
			return fmt.Errorf("metrics.%s: %w", def.Name, err)
		}
	}
	return nil
}

// BuildScenario compiles the scenario against rc: checks become predicates
// and metric names become references into the run's registry. Trends named
// by requests that were not declared are registered as time trends.
func (c *RunConfig) BuildScenario(rc *performance.RunContext) (*performance.Scenario, error) {
	if err := c.RegisterMetrics(rc); err != nil {
		return nil, err
	}

	sc := c.Scenario
	scenario := &performance.Scenario{
		Name:  sc.Name,
		Sleep: sc.Sleep.sleep(),
	}

	if sc.ErrorRate != "" {
		rate, err := rc.Registry.Rate(sc.ErrorRate)
		if err != nil {
			return nil, fmt.Errorf("scenario.errorRate: %w", err)
		}
		scenario.ErrorRate = rate
	}
	if sc.IterationCounter != "" {
		counter, err := rc.Registry.Counter(sc.IterationCounter)
		if err != nil {
			return nil, fmt.Errorf("scenario.iterationCounter: %w", err)
		}
		scenario.IterationCounter = counter
	}

	for i, stepCfg := range sc.Steps {
		step := &performance.Step{
			Name:  stepCfg.Name,
			Mode:  performance.StepMode(stepCfg.Mode),
			Sleep: stepCfg.Sleep.sleep(),
		}
		if step.Mode == "" {
			step.Mode = performance.ModeSequence
		}

		for j, reqCfg := range stepCfg.Requests {
			field := fmt.Sprintf("scenario.steps[%d].requests[%d]", i, j)

			checks, err := check.CompileAll(reqCfg.Checks)
			if err != nil {
				return nil, fmt.Errorf("%s.checks: %w", field, err)
			}

			req := &performance.RequestConfig{
				Name:    reqCfg.Name,
				Method:  reqCfg.Method,
				URL:     reqCfg.URL,
				Headers: cloneMap(reqCfg.Headers),
				Body:    reqCfg.Body,
				Timeout: reqCfg.Timeout.Std(),
				Checks:  checks,
			}
			if reqCfg.Trend != "" {
				trend, err := rc.Registry.Trend(reqCfg.Trend, metrics.ValueTime)
				if err != nil {
					return nil, fmt.Errorf("%s.trend: %w", field, err)
				}
				req.Trend = trend
			}
			for _, ex := range reqCfg.Extract {
				req.Extract = append(req.Extract, performance.ExtractConfig{
					Name:   ex.Name,
					Source: ex.Source,
					Path:   ex.Path,
				})
			}
			step.Requests = append(step.Requests, req)
		}
		scenario.Steps = append(scenario.Steps, step)
	}

	return scenario, nil
}

func (s SleepConfig) sleep() performance.Sleep {
	return performance.Between(s.Min.Std(), s.Max.Std())
}

// TotalDuration returns the length of the schedule.
func (c *RunConfig) TotalDuration() time.Duration {
	return c.ExecutorConfig().TotalDuration()
}

// MergeVariables adds vars that are not already set.
func (c *RunConfig) MergeVariables(vars map[string]string) {
	if len(vars) == 0 {
		return
	}
	if c.Variables == nil {
		c.Variables = make(map[string]string, len(vars))
	}
	for k, v := range vars {
		if _, ok := c.Variables[k]; !ok {
			c.Variables[k] = v
		}
	}
}
