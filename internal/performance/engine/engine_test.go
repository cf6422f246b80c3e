package engine

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/wesleyorama2/contactload/internal/performance/check"
	"github.com/wesleyorama2/contactload/internal/performance/config"
	"github.com/wesleyorama2/contactload/internal/performance/metrics"
)

// createTestServer creates a server answering every request with status
func createTestServer(t *testing.T, status int) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`[{"id":"1","name":"Ada"}]`))
	}))
	t.Cleanup(server.Close)
	return server
}

// createTestConfig creates a fixed-VU profile hitting url
func createTestConfig(url string, vus int, duration time.Duration) *config.RunConfig {
	return &config.RunConfig{
		Name:     "engine-test",
		VUs:      vus,
		Duration: config.Duration(duration),
		Variables: map[string]string{
			"API_URL": url,
		},
		Scenario: config.ScenarioConfig{
			ErrorRate: "errors",
			Steps: []config.StepConfig{{
				Name: "contacts",
				Requests: []config.RequestConfig{{
					URL:   "{{API_URL}}/api/contacts",
					Trend: "contacts_latency",
					Checks: []check.Definition{
						{Name: "contacts status is 200", Kind: check.KindStatus, Status: []int{200}},
						{Name: "contacts returns array", Kind: check.KindJSONArray},
					},
				}},
			}},
			Sleep: config.Fixed(10 * time.Millisecond),
		},
	}
}

func newTestEngine(t *testing.T, cfg *config.RunConfig, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithLogger(zaptest.NewLogger(t)), WithTickInterval(5 * time.Millisecond)}, opts...)
	e, err := NewEngine(cfg, opts...)
	require.NoError(t, err)
	return e
}

func TestNewEngine_InvalidConfig(t *testing.T) {
	cfg := createTestConfig("http://localhost", 0, 0)

	_, err := NewEngine(cfg)
	require.Error(t, err)

	var verrs *config.ValidationErrors
	assert.True(t, errors.As(err, &verrs), "NewEngine() error = %v, want *config.ValidationErrors", err)
}

func TestNewEngine_DoesNotModifyConfig(t *testing.T) {
	cfg := createTestConfig("http://localhost", 1, time.Second)

	e, err := NewEngine(cfg)
	require.NoError(t, err)

	assert.Equal(t, config.Duration(0), cfg.GracefulStop)
	assert.Equal(t, config.Duration(30*time.Second), e.Config().GracefulStop)
}

func TestEngine_Run_Passes(t *testing.T) {
	server := createTestServer(t, http.StatusOK)

	cfg := createTestConfig(server.URL, 2, 300*time.Millisecond)
	cfg.Thresholds = map[string][]config.ThresholdConfig{
		metrics.HTTPReqDuration: {{Threshold: "p(95)<1000"}},
		metrics.HTTPReqFailed:   {{Threshold: "rate<0.01"}},
		"errors":                {{Threshold: "rate<0.1"}},
		"contacts_latency":      {{Threshold: "p(95)<800"}},
	}

	e := newTestEngine(t, cfg)
	summary, err := e.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, summary)

	assert.True(t, summary.Passed, "thresholds: %+v", summary.Thresholds)
	assert.False(t, summary.Aborted)
	assert.Len(t, summary.Thresholds, 4)
	assert.Equal(t, "engine-test", summary.Profile)
	assert.Equal(t, "engine-test", summary.Layout)
	assert.NotEmpty(t, summary.RunID)

	assert.Equal(t, int64(2), summary.PeakVUs)
	assert.Equal(t, 2, summary.MaxVUs)
	assert.Greater(t, summary.Iterations, int64(0))
	assert.GreaterOrEqual(t, summary.Duration, 300*time.Millisecond)

	reqs := summary.Value(metrics.HTTPReqs, "count")
	assert.Greater(t, reqs, 0.0)
	assert.Equal(t, reqs, summary.Value("contacts_latency", "count"))

	require.Len(t, summary.Checks, 2)
	assert.Equal(t, "contacts status is 200", summary.Checks[0].Name)
	assert.Equal(t, int64(0), summary.Checks[0].Fails)

	assert.False(t, e.IsRunning())
	assert.Equal(t, 1.0, e.GetProgress())
}

func TestEngine_Run_FailsThresholds(t *testing.T) {
	server := createTestServer(t, http.StatusInternalServerError)

	cfg := createTestConfig(server.URL, 1, 200*time.Millisecond)
	cfg.Thresholds = map[string][]config.ThresholdConfig{
		metrics.HTTPReqFailed: {{Threshold: "rate<0.01"}},
		"errors":              {{Threshold: "rate<0.1"}},
	}

	summary, err := newTestEngine(t, cfg).Run(context.Background())
	require.NoError(t, err)

	assert.False(t, summary.Passed)
	assert.False(t, summary.Aborted)
	for _, r := range summary.Thresholds {
		assert.False(t, r.Passed, "%s %s", r.Metric, r.Expression)
		assert.Equal(t, 1.0, r.Value)
	}
}

func TestEngine_Run_UnknownMetricFails(t *testing.T) {
	server := createTestServer(t, http.StatusOK)

	cfg := createTestConfig(server.URL, 1, 100*time.Millisecond)
	cfg.Thresholds = map[string][]config.ThresholdConfig{
		"never_recorded": {{Threshold: "count>0"}},
	}

	summary, err := newTestEngine(t, cfg).Run(context.Background())
	require.NoError(t, err)

	assert.False(t, summary.Passed)
	require.Len(t, summary.Thresholds, 1)
	assert.True(t, summary.Thresholds[0].Indeterminate)
}

func TestEngine_Run_AbortOnFail(t *testing.T) {
	server := createTestServer(t, http.StatusInternalServerError)

	cfg := createTestConfig(server.URL, 2, time.Minute)
	cfg.Thresholds = map[string][]config.ThresholdConfig{
		metrics.HTTPReqFailed: {{Threshold: "rate<0.1", AbortOnFail: true}},
	}

	e := newTestEngine(t, cfg, WithJudgeInterval(20*time.Millisecond))

	start := time.Now()
	summary, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 10*time.Second)
	assert.True(t, summary.Aborted)
	assert.False(t, summary.Passed)
	assert.True(t, strings.Contains(summary.AbortReason, metrics.HTTPReqFailed), "AbortReason = %q", summary.AbortReason)
}

func TestEngine_Stop(t *testing.T) {
	server := createTestServer(t, http.StatusOK)

	cfg := createTestConfig(server.URL, 2, time.Minute)
	e := newTestEngine(t, cfg)

	assert.NoError(t, e.Stop(context.Background()), "Stop() before Run should be a no-op")

	go func() {
		time.Sleep(150 * time.Millisecond)
		_ = e.Stop(context.Background())
	}()

	start := time.Now()
	summary, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 10*time.Second)
	assert.False(t, summary.Aborted)
	assert.Greater(t, summary.Iterations, int64(0))
}

func TestEngine_Run_ContextCancelled(t *testing.T) {
	server := createTestServer(t, http.StatusOK)

	cfg := createTestConfig(server.URL, 2, time.Minute)
	cfg.Scenario.Sleep = config.Fixed(10 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	start := time.Now()
	summary, err := newTestEngine(t, cfg).Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotNil(t, summary)

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.True(t, summary.Aborted)
	assert.Equal(t, "interrupted", summary.AbortReason)
	assert.False(t, summary.Passed)
	assert.Equal(t, int64(0), summary.Iterations)
}

func TestEngine_Run_Twice(t *testing.T) {
	server := createTestServer(t, http.StatusOK)

	e := newTestEngine(t, createTestConfig(server.URL, 1, 50*time.Millisecond))

	first, err := e.Run(context.Background())
	require.NoError(t, err)
	second, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestRunSummary_Value(t *testing.T) {
	s := &RunSummary{Metrics: []metrics.Summary{{
		Name:   metrics.HTTPReqs,
		Values: map[string]float64{"count": 12},
	}}}

	assert.Equal(t, 12.0, s.Value(metrics.HTTPReqs, "count"))
	assert.Equal(t, 0.0, s.Value(metrics.HTTPReqs, "rate"))
	assert.Equal(t, 0.0, s.Value("missing", "count"))
}
