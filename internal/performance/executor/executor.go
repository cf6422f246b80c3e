// Package executor drives the number of active virtual users over time.
package executor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/contactload/internal/performance"
)

// Type identifies the type of executor.
type Type string

const (
	// TypeConstantVUs runs a fixed number of VUs for a duration.
	TypeConstantVUs Type = "constant-vus"

	// TypeRampingVUs ramps VU count up and down according to stages.
	TypeRampingVUs Type = "ramping-vus"
)

const (
	// DefaultGracefulStop bounds how long a drain waits for iterations.
	DefaultGracefulStop = 30 * time.Second

	// DefaultTickInterval is how often the controller applies the schedule.
	DefaultTickInterval = 100 * time.Millisecond
)

// Executor defines the interface for load generation strategies.
type Executor interface {
	// Type returns the executor type.
	Type() Type

	// Init initializes the executor with configuration.
	// Called once before Run().
	Init(ctx context.Context, config *Config) error

	// Run drives the scheduler until the schedule ends or Stop is called,
	// then drains it. It blocks until every VU has stopped.
	Run(ctx context.Context, scheduler *performance.VUScheduler) error

	// GetProgress returns current progress (0.0 to 1.0).
	GetProgress() float64

	// GetActiveVUs returns current active VU count.
	GetActiveVUs() int

	// GetStats returns executor-specific statistics.
	GetStats() *Stats

	// Schedule returns the schedule set by Init.
	Schedule() Schedule

	// Stop ends the schedule early. Running iterations still finish.
	Stop(ctx context.Context) error
}

// Config contains configuration for an executor.
type Config struct {
	// Name is the name of this executor instance
	Name string `json:"name" yaml:"name"`

	// Type is the executor type
	Type Type `json:"type" yaml:"type"`

	// Fixed form (constant-vus)
	VUs      int           `json:"vus,omitempty" yaml:"vus,omitempty"`
	Duration time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`

	// Stages (ramping-vus)
	Stages []Stage `json:"stages,omitempty" yaml:"stages,omitempty"`

	// GracefulStop bounds the drain at the end of the run (default: 30s)
	GracefulStop time.Duration `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`

	// TickInterval is how often the target is re-applied (default: 100ms)
	TickInterval time.Duration `json:"tickInterval,omitempty" yaml:"tickInterval,omitempty"`
}

// Stage defines a stage in ramping executors.
type Stage struct {
	// Duration of this stage
	Duration time.Duration `json:"duration" yaml:"duration"`

	// Target VU count at the end of the stage
	Target int `json:"target" yaml:"target"`

	// Hold keeps the VU count at Target for the whole stage instead of
	// ramping from the previous target
	Hold bool `json:"hold,omitempty" yaml:"hold,omitempty"`

	// Optional name for this stage (for reporting)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// Stats contains real-time executor statistics.
type Stats struct {
	// Timing
	StartTime     time.Time     `json:"startTime"`
	CurrentTime   time.Time     `json:"currentTime"`
	Elapsed       time.Duration `json:"elapsed"`
	TotalDuration time.Duration `json:"totalDuration"`

	// VU stats
	ActiveVUs int `json:"activeVUs"`
	TargetVUs int `json:"targetVUs"`
	MaxVUs    int `json:"maxVUs"`

	// Iteration stats
	Iterations int64 `json:"iterations"`

	// Stage info
	CurrentStage     int    `json:"currentStage"`
	CurrentStageName string `json:"currentStageName"`
	TotalStages      int    `json:"totalStages"`

	// Draining is true once the schedule ended and VUs are finishing
	Draining bool `json:"draining"`
}

// Validate validates the executor configuration.
func (c *Config) Validate() error {
	if c.Type == "" {
		return &ValidationError{Field: "type", Message: "executor type is required"}
	}

	switch c.Type {
	case TypeConstantVUs:
		if c.VUs <= 0 {
			return &ValidationError{Field: "vus", Message: "vus must be > 0"}
		}
		if c.Duration <= 0 {
			return &ValidationError{Field: "duration", Message: "duration must be > 0"}
		}
		if len(c.Stages) > 0 {
			return &ValidationError{Field: "stages", Message: "stages cannot be combined with vus and duration"}
		}

	case TypeRampingVUs:
		if len(c.Stages) == 0 {
			return &ValidationError{Field: "stages", Message: "at least one stage is required"}
		}
		if c.VUs != 0 || c.Duration != 0 {
			return &ValidationError{Field: "stages", Message: "stages cannot be combined with vus and duration"}
		}
		var total time.Duration
		for i, stage := range c.Stages {
			field := fmt.Sprintf("stages[%d]", i)
			if stage.Duration < 0 {
				return &ValidationError{Field: field + ".duration", Message: "duration must be >= 0"}
			}
			if stage.Target < 0 {
				return &ValidationError{Field: field + ".target", Message: "target must be >= 0"}
			}
			total += stage.Duration
		}
		if total <= 0 {
			return &ValidationError{Field: "stages", Message: "total duration must be > 0"}
		}

	default:
		return &ValidationError{Field: "type", Message: "unknown executor type: " + string(c.Type)}
	}

	if c.GracefulStop < 0 {
		return &ValidationError{Field: "gracefulStop", Message: "gracefulStop must be >= 0"}
	}
	return nil
}

// Schedule returns the VU schedule described by the configuration. The
// fixed form is a single plateau stage.
func (c *Config) Schedule() Schedule {
	if c.Type == TypeConstantVUs {
		return NewSchedule([]Stage{{Duration: c.Duration, Target: c.VUs, Hold: true}})
	}
	return NewSchedule(c.Stages)
}

// TotalDuration calculates the total duration for this executor.
func (c *Config) TotalDuration() time.Duration {
	return c.Schedule().TotalDuration()
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "validation error on field '" + e.Field + "': " + e.Message
}

// New creates an executor for the given type. A nil logger discards
// everything.
func New(t Type, logger *zap.Logger) (Executor, error) {
	switch t {
	case TypeRampingVUs, TypeConstantVUs:
		return NewRampingVUs().WithLogger(logger), nil
	default:
		return nil, fmt.Errorf("unknown executor type: %s", t)
	}
}
