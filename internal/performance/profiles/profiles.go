// Package profiles holds the built-in load-test profiles run against the
// contacts application.
package profiles

import (
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/wesleyorama2/contactload/internal/performance/check"
	"github.com/wesleyorama2/contactload/internal/performance/config"
	"github.com/wesleyorama2/contactload/internal/performance/metrics"
	"github.com/wesleyorama2/contactload/internal/performance/threshold"
)

// Built-in profile names.
const (
	Smoke  = "smoke"
	Load   = "load"
	Stress = "stress"
	Spike  = "spike"
	Soak   = "soak"
)

// Custom metric names used by the profiles.
const (
	ErrorsMetric          = "errors"
	ContactsLatencyMetric = "contacts_latency"
	TotalRequestsMetric   = "total_requests"
)

const (
	frontendURL = "{{BASE_URL}}"
	healthURL   = "{{API_URL}}/health"
	contactsURL = "{{API_URL}}/api/contacts"
)

var builtin = map[string]func() *config.RunConfig{
	Smoke:  smoke,
	Load:   load,
	Stress: stress,
	Spike:  spike,
	Soak:   soak,
}

var order = []string{Smoke, Load, Stress, Spike, Soak}

// Names returns the built-in profile names from the lightest to the
// longest.
func Names() []string {
	return append([]string(nil), order...)
}

// Get returns a fresh copy of the named profile with the environment's
// variables merged in.
func Get(name string, env config.Env) (*config.RunConfig, error) {
	build, ok := builtin[name]
	if !ok {
		known := make([]string, 0, len(builtin))
		for n := range builtin {
			known = append(known, n)
		}
		sort.Strings(known)
		return nil, fmt.Errorf("unknown profile %q (available: %v)", name, known)
	}

	cfg := build()
	cfg.MergeVariables(env.Variables())
	cfg.ApplyDefaults()
	return cfg, nil
}

func stage(d time.Duration, target int) config.StageConfig {
	return config.StageConfig{Duration: config.Duration(d), Target: target}
}

func hold(d time.Duration, target int) config.StageConfig {
	return config.StageConfig{Duration: config.Duration(d), Target: target, Hold: true}
}

// thresholds panics on an expression that does not parse.
func thresholds(exprs ...string) []config.ThresholdConfig {
	out := make([]config.ThresholdConfig, len(exprs))
	for i, e := range exprs {
		out[i] = config.ThresholdConfig{Threshold: threshold.MustParse(e).Source}
	}
	return out
}

func status(name string, codes ...int) check.Definition {
	return check.Definition{Name: name, Kind: check.KindStatus, Status: codes}
}

func get(name, url string, checks ...check.Definition) config.RequestConfig {
	return config.RequestConfig{Name: name, Method: http.MethodGet, URL: url, Checks: checks}
}

// smoke verifies the system works under minimal load.
func smoke() *config.RunConfig {
	return &config.RunConfig{
		Name:        Smoke,
		Description: "Verify the system works under minimal load",
		VUs:         1,
		Duration:    config.Duration(time.Minute),
		Thresholds: map[string][]config.ThresholdConfig{
			metrics.HTTPReqDuration: thresholds("p(95)<500"),
			metrics.HTTPReqFailed:   thresholds("rate<0.01"),
		},
		Scenario: config.ScenarioConfig{
			Steps: []config.StepConfig{
				{
					Name: "frontend",
					Requests: []config.RequestConfig{get("frontend", frontendURL,
						status("frontend status is 200", http.StatusOK),
						check.Definition{Name: "frontend loads in < 500ms", Kind: check.KindDurationBelow, Within: "500ms"},
					)},
					Sleep: config.Fixed(time.Second),
				},
				{
					Name: "health",
					Requests: []config.RequestConfig{get("health", healthURL,
						status("health check status is 200", http.StatusOK),
						check.Definition{Name: "health check response is healthy", Kind: check.KindJSONEquals, Path: "status", Equals: "healthy"},
					)},
					Sleep: config.Fixed(time.Second),
				},
				{
					Name: "contacts",
					Requests: []config.RequestConfig{get("contacts", contactsURL,
						status("contacts status is 200", http.StatusOK),
						check.Definition{Name: "contacts returns array", Kind: check.KindJSONArray},
					)},
					Sleep: config.Fixed(time.Second),
				},
			},
		},
	}
}

// load tests behavior under the expected load.
func load() *config.RunConfig {
	return &config.RunConfig{
		Name:        Load,
		Description: "Test system behavior under expected load",
		Stages: []config.StageConfig{
			stage(2*time.Minute, 10),
			stage(5*time.Minute, 50),
			hold(2*time.Minute, 50),
			stage(time.Minute, 0),
		},
		Thresholds: map[string][]config.ThresholdConfig{
			metrics.HTTPReqDuration: thresholds("p(95)<1000", "p(99)<2000"),
			metrics.HTTPReqFailed:   thresholds("rate<0.05"),
			ErrorsMetric:            thresholds("rate<0.1"),
			ContactsLatencyMetric:   thresholds("p(95)<800"),
		},
		Metrics: []metrics.Definition{
			{Name: ErrorsMetric, Type: metrics.TypeRate},
			{Name: ContactsLatencyMetric, Type: metrics.TypeTrend, Contains: metrics.ValueTime},
		},
		Scenario: config.ScenarioConfig{
			ErrorRate: ErrorsMetric,
			Steps: []config.StepConfig{
				{
					Name: "frontend",
					Requests: []config.RequestConfig{get("frontend", frontendURL,
						status("frontend status is 200", http.StatusOK),
					)},
					Sleep: config.Fixed(time.Second),
				},
				{
					Name: "get contacts",
					Requests: []config.RequestConfig{{
						Name:   "get contacts",
						Method: http.MethodGet,
						URL:    contactsURL,
						Trend:  ContactsLatencyMetric,
						Checks: []check.Definition{
							status("contacts status is 200", http.StatusOK),
							{Name: "contacts has data", Kind: check.KindJSONArrayNotEmpty},
						},
					}},
					Sleep: config.Fixed(time.Second),
				},
				{
					Name: "create contact",
					Requests: []config.RequestConfig{{
						Name:    "create contact",
						Method:  http.MethodPost,
						URL:     contactsURL,
						Headers: map[string]string{"Content-Type": "application/json"},
						Body:    `{"name":"Load Test User {{timestamp}}","gender":"Other","phone":"555-0100","street":"123 Test St","city":"Test City"}`,
						Checks: []check.Definition{
							status("create status is 201", http.StatusCreated),
						},
					}},
					Sleep: config.Fixed(500 * time.Millisecond),
				},
			},
			Sleep: config.Between(0, 2*time.Second),
		},
	}
}

// stress looks for the breaking point of the system.
func stress() *config.RunConfig {
	available := func(name, url string) config.RequestConfig {
		req := get(name, url, status(name+" is available", http.StatusOK, http.StatusServiceUnavailable))
		req.Timeout = config.Duration(10 * time.Second)
		return req
	}

	return &config.RunConfig{
		Name:        Stress,
		Description: "Find the breaking point of the system",
		Stages: []config.StageConfig{
			stage(2*time.Minute, 50),
			stage(3*time.Minute, 100),
			stage(3*time.Minute, 150),
			stage(3*time.Minute, 200),
			stage(2*time.Minute, 250),
			stage(2*time.Minute, 0),
		},
		Thresholds: map[string][]config.ThresholdConfig{
			metrics.HTTPReqDuration: thresholds("p(95)<3000"),
			metrics.HTTPReqFailed:   thresholds("rate<0.15"),
		},
		Metrics: []metrics.Definition{
			{Name: ErrorsMetric, Type: metrics.TypeRate},
		},
		Scenario: config.ScenarioConfig{
			ErrorRate: ErrorsMetric,
			Steps: []config.StepConfig{{
				Name: "availability",
				Requests: []config.RequestConfig{
					available("frontend", frontendURL),
					available("API", contactsURL),
				},
			}},
			Sleep: config.Fixed(500 * time.Millisecond),
		},
	}
}

// spike tests behavior under a sudden surge of traffic.
func spike() *config.RunConfig {
	notServerError := check.Definition{Name: "status is not 5xx", Kind: check.KindStatusBelow, Below: 500}

	return &config.RunConfig{
		Name:        Spike,
		Description: "Test system behavior under sudden traffic spikes",
		Stages: []config.StageConfig{
			stage(time.Minute, 10),
			stage(30*time.Second, 300),
			hold(time.Minute, 300),
			stage(30*time.Second, 10),
			hold(2*time.Minute, 10),
			stage(time.Minute, 0),
		},
		Thresholds: map[string][]config.ThresholdConfig{
			metrics.HTTPReqDuration: thresholds("p(95)<5000"),
			metrics.HTTPReqFailed:   thresholds("rate<0.25"),
		},
		Scenario: config.ScenarioConfig{
			Steps: []config.StepConfig{{
				Name: "batch",
				Mode: config.ModeBatch,
				Requests: []config.RequestConfig{
					get("frontend", frontendURL, notServerError),
					get("api-contacts", contactsURL, notServerError),
					get("api-health", healthURL, notServerError),
				},
			}},
			Sleep: config.Fixed(300 * time.Millisecond),
		},
	}
}

// soak tests stability over an extended period.
func soak() *config.RunConfig {
	checks := []check.Definition{
		status("status is 200", http.StatusOK),
		{Name: "response time < 2s", Kind: check.KindDurationBelow, Within: "2s"},
	}

	return &config.RunConfig{
		Name:        Soak,
		Description: "Test system stability over an extended period",
		Stages: []config.StageConfig{
			stage(5*time.Minute, 50),
			hold(50*time.Minute, 50),
			stage(5*time.Minute, 0),
		},
		Thresholds: map[string][]config.ThresholdConfig{
			metrics.HTTPReqDuration: thresholds("p(95)<1500", "p(99)<3000"),
			metrics.HTTPReqFailed:   thresholds("rate<0.02"),
			ErrorsMetric:            thresholds("rate<0.05"),
		},
		Metrics: []metrics.Definition{
			{Name: ErrorsMetric, Type: metrics.TypeRate},
			{Name: TotalRequestsMetric, Type: metrics.TypeCounter},
		},
		Scenario: config.ScenarioConfig{
			ErrorRate:        ErrorsMetric,
			IterationCounter: TotalRequestsMetric,
			Steps: []config.StepConfig{{
				Name: "action",
				Mode: config.ModeChoice,
				Requests: []config.RequestConfig{
					get("frontend", frontendURL, checks...),
					get("contacts", contactsURL, checks...),
					get("health", healthURL, checks...),
				},
			}},
			Sleep: config.Between(time.Second, 5*time.Second),
		},
	}
}
