// Package performance runs virtual users against HTTP endpoints.
//
// A RunContext carries everything a run shares: variables, the metric
// registry, the check evaluator and the logger. It is created at run start
// and handed to the VU pool explicitly; nothing in this package keeps run
// state in package-level variables.
package performance

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wesleyorama2/contactload/internal/performance/check"
	"github.com/wesleyorama2/contactload/internal/performance/metrics"
)

// RunContext is the shared state of one run.
type RunContext struct {
	// RunID identifies the run in logs and artifacts
	RunID string

	// Profile is the name of the profile being run
	Profile string

	// Variables are available to every request as {{name}}
	Variables map[string]string

	Registry *metrics.Registry
	Builtin  *metrics.Builtin
	Checks   *check.Evaluator
	Logger   *zap.Logger

	// StartTime is set when the run starts
	StartTime time.Time
}

// NewRunContext creates the run state and registers the built-in metrics.
// A nil logger is replaced by a no-op logger.
func NewRunContext(profile string, variables map[string]string, logger *zap.Logger) (*RunContext, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	registry := metrics.NewRegistry()
	builtin, err := metrics.RegisterBuiltin(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register built-in metrics: %w", err)
	}

	vars := make(map[string]string, len(variables))
	for k, v := range variables {
		vars[k] = v
	}

	runID := uuid.NewString()
	return &RunContext{
		RunID:     runID,
		Profile:   profile,
		Variables: vars,
		Registry:  registry,
		Builtin:   builtin,
		Checks:    check.NewEvaluator(builtin.Checks),
		Logger:    logger.With(zap.String("run_id", runID), zap.String("profile", profile)),
	}, nil
}

// Start marks the start of the run and of the metric window.
func (rc *RunContext) Start() {
	rc.StartTime = time.Now()
	rc.Registry.Start()
}

// Stop freezes the metric window.
func (rc *RunContext) Stop() {
	rc.Registry.Stop()
}
