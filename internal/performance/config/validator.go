package config

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/wesleyorama2/contactload/internal/performance/metrics"
	"github.com/wesleyorama2/contactload/internal/performance/threshold"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Has reports whether an error was recorded for field.
func (e *ValidationErrors) Has(field string) bool {
	for _, err := range e.Errors {
		if err.Field == field {
			return true
		}
	}
	return false
}

var validMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodOptions: true,
}

// Validate validates the entire run configuration.
//
// Returns nil if valid, or a *ValidationErrors containing all validation
// errors.
func (c *RunConfig) Validate() error {
	errs := &ValidationErrors{}

	if strings.TrimSpace(c.Name) == "" {
		errs.Add("name", "name is required")
	}

	validateSchedule(c, errs)

	if c.GracefulStop < 0 {
		errs.Add("gracefulStop", "gracefulStop must be >= 0")
	}

	validateMetrics(c.Metrics, errs)
	validateThresholds(c.Thresholds, errs)
	validateSettings(&c.Settings, errs)
	validateScenario(&c.Scenario, errs)

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// validateSchedule checks that exactly one of the fixed and staged forms is
// used and that it describes a non-empty run.
func validateSchedule(c *RunConfig, errs *ValidationErrors) {
	fixed := c.VUs != 0 || c.Duration != 0

	if len(c.Stages) == 0 {
		if !fixed {
			errs.Add("stages", "either stages or vus and duration are required")
			return
		}
		if c.VUs <= 0 {
			errs.Add("vus", "vus must be greater than 0")
		}
		if c.Duration <= 0 {
			errs.Add("duration", "duration must be greater than 0")
		}
		return
	}

	if fixed {
		errs.Add("stages", "stages cannot be combined with vus and duration")
	}

	var total Duration
	negative := false
	for i, stage := range c.Stages {
		prefix := fmt.Sprintf("stages[%d]", i)
		if stage.Duration < 0 {
			errs.Add(prefix+".duration", "duration must be >= 0")
			negative = true
		} else {
			total += stage.Duration
		}
		if stage.Target < 0 {
			errs.Add(prefix+".target", "target must be >= 0")
		}
	}
	if total == 0 && !negative {
		errs.Add("stages", "total duration must be greater than 0")
	}
}

func validateMetrics(defs []metrics.Definition, errs *ValidationErrors) {
	seen := make(map[string]bool, len(defs))
	for i, def := range defs {
		prefix := fmt.Sprintf("metrics[%d]", i)
		if err := def.Validate(); err != nil {
			errs.Add(prefix, err.Error())
			continue
		}
		if seen[def.Name] {
			errs.Add(prefix+".name", fmt.Sprintf("duplicate metric: %s", def.Name))
		}
		seen[def.Name] = true
	}
}

func validateThresholds(ths map[string][]ThresholdConfig, errs *ValidationErrors) {
	for name, exprs := range ths {
		if strings.TrimSpace(name) == "" {
			errs.Add("thresholds", "metric name is required")
			continue
		}
		for i, th := range exprs {
			if _, err := threshold.Parse(th.Threshold); err != nil {
				errs.Add(fmt.Sprintf("thresholds.%s[%d]", name, i), err.Error())
			}
		}
	}
}

func validateSettings(s *Settings, errs *ValidationErrors) {
	if s.Timeout < 0 {
		errs.Add("settings.timeout", "timeout must be >= 0")
	}
	if s.MaxConnectionsPerHost < 0 {
		errs.Add("settings.maxConnectionsPerHost", "must be >= 0")
	}
	if s.MaxIdleConnsPerHost < 0 {
		errs.Add("settings.maxIdleConnsPerHost", "must be >= 0")
	}
}

func validateScenario(sc *ScenarioConfig, errs *ValidationErrors) {
	if len(sc.Steps) == 0 {
		errs.Add("scenario.steps", "at least one step is required")
	}

	validateSleep("scenario.sleep", sc.Sleep, errs)

	for i := range sc.Steps {
		step := &sc.Steps[i]
		prefix := fmt.Sprintf("scenario.steps[%d]", i)

		switch step.Mode {
		case "", ModeSequence, ModeBatch, ModeChoice:
		default:
			errs.Add(prefix+".mode", fmt.Sprintf("unknown step mode: %s", step.Mode))
		}

		if len(step.Requests) == 0 && step.Sleep.Max <= 0 {
			errs.Add(prefix+".requests", "a step needs at least one request or a sleep")
		}
		if step.Mode == ModeChoice && len(step.Requests) == 0 {
			errs.Add(prefix+".requests", "a choice step needs at least one request")
		}

		validateSleep(prefix+".sleep", step.Sleep, errs)

		for j := range step.Requests {
			validateRequest(fmt.Sprintf("%s.requests[%d]", prefix, j), &step.Requests[j], errs)
		}
	}
}

func validateRequest(prefix string, req *RequestConfig, errs *ValidationErrors) {
	if strings.TrimSpace(req.URL) == "" {
		errs.Add(prefix+".url", "url is required")
	}

	if req.Method != "" && !validMethods[strings.ToUpper(req.Method)] {
		errs.Add(prefix+".method", fmt.Sprintf("unsupported method: %s", req.Method))
	}

	if req.Timeout < 0 {
		errs.Add(prefix+".timeout", "timeout must be >= 0")
	}

	for i, def := range req.Checks {
		if _, err := def.Compile(); err != nil {
			errs.Add(fmt.Sprintf("%s.checks[%d]", prefix, i), err.Error())
		}
	}

	for i, ex := range req.Extract {
		field := fmt.Sprintf("%s.extract[%d]", prefix, i)
		if ex.Name == "" {
			errs.Add(field+".name", "name is required")
		}
		switch ex.Source {
		case "", "body", "header", "status":
		default:
			errs.Add(field+".source", fmt.Sprintf("unknown source: %s", ex.Source))
		}
		if ex.Source == "header" && ex.Path == "" {
			errs.Add(field+".path", "header name is required")
		}
	}
}

func validateSleep(field string, s SleepConfig, errs *ValidationErrors) {
	if s.Min < 0 || s.Max < 0 {
		errs.Add(field, "sleep must be >= 0")
		return
	}
	if s.Max < s.Min {
		errs.Add(field, fmt.Sprintf("max (%s) must be >= min (%s)", s.Max, s.Min))
	}
}
