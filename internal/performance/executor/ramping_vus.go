package executor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/contactload/internal/performance"
)

// RampingVUs ramps VU count up and down according to stages.
//
// A controller re-applies the schedule every TickInterval. When the last
// stage ends, or Stop is called, the executor drains the pool: every
// running VU finishes the iteration it is in, sleeps included. Only when
// GracefulStop expires are in-flight requests and sleeps cancelled.
//
// Example stages:
//
//	stages:
//	  - duration: 30s
//	    target: 10     # Ramp from 0 to 10 VUs over 30s
//	  - duration: 2m
//	    target: 10
//	    hold: true     # Stay at 10 VUs for 2 minutes
//	  - duration: 30s
//	    target: 0      # Ramp down to 0 VUs over 30s
type RampingVUs struct {
	config   *Config
	schedule Schedule
	logger   *zap.Logger

	scheduler atomic.Pointer[performance.VUScheduler]

	// State
	startNanos   atomic.Int64
	targetVUs    atomic.Int32
	currentStage atomic.Int32
	running      atomic.Bool
	draining     atomic.Bool
	finished     atomic.Bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRampingVUs creates a new ramping VUs executor.
func NewRampingVUs() *RampingVUs {
	return &RampingVUs{
		logger: zap.NewNop(),
		stopCh: make(chan struct{}),
	}
}

// WithLogger sets the logger used for stage changes and the drain.
func (e *RampingVUs) WithLogger(logger *zap.Logger) *RampingVUs {
	if logger != nil {
		e.logger = logger
	}
	return e
}

// Type returns the executor type.
func (e *RampingVUs) Type() Type {
	if e.config != nil && e.config.Type == TypeConstantVUs {
		return TypeConstantVUs
	}
	return TypeRampingVUs
}

// Init initializes the executor with configuration.
func (e *RampingVUs) Init(ctx context.Context, config *Config) error {
	if config.Type != TypeRampingVUs && config.Type != TypeConstantVUs {
		return fmt.Errorf("invalid config type: expected %s or %s, got %s",
			TypeRampingVUs, TypeConstantVUs, config.Type)
	}

	if err := config.Validate(); err != nil {
		return err
	}

	e.config = config
	e.schedule = config.Schedule()
	e.currentStage.Store(-1)
	return nil
}

// Schedule returns the schedule being executed.
func (e *RampingVUs) Schedule() Schedule {
	return e.schedule
}

// Run drives the scheduler until the schedule ends or Stop is called, then
// drains it. Cancelling ctx aborts in-flight iterations immediately.
func (e *RampingVUs) Run(ctx context.Context, scheduler *performance.VUScheduler) error {
	if e.config == nil {
		return fmt.Errorf("executor is not initialized")
	}
	if !e.running.CompareAndSwap(false, true) {
		return fmt.Errorf("executor is already running")
	}
	defer e.running.Store(false)

	e.scheduler.Store(scheduler)
	scheduler.Start(ctx)

	start := time.Now()
	e.startNanos.Store(start.UnixNano())

	tick := e.config.TickInterval
	if tick <= 0 {
		tick = DefaultTickInterval
	}

	deadline := time.NewTimer(e.schedule.TotalDuration())
	defer deadline.Stop()
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	e.apply(scheduler, 0)

	reason := "schedule completed"
loop:
	for {
		select {
		case <-ctx.Done():
			reason = "context cancelled"
			break loop
		case <-e.stopCh:
			reason = "stopped"
			break loop
		case <-deadline.C:
			break loop
		case <-ticker.C:
			e.apply(scheduler, time.Since(start))
		}
	}

	graceful := e.config.GracefulStop
	if graceful == 0 {
		graceful = DefaultGracefulStop
	}

	e.draining.Store(true)
	e.targetVUs.Store(0)
	e.logger.Info("draining virtual users",
		zap.String("reason", reason),
		zap.Int("active_vus", scheduler.ActiveCount()),
		zap.Duration("graceful_stop", graceful))

	if ctx.Err() != nil {
		scheduler.Abort()
	}
	clean := scheduler.Shutdown(graceful)
	e.finished.Store(true)

	e.logger.Info("virtual users stopped",
		zap.Bool("graceful", clean),
		zap.Duration("elapsed", time.Since(start)))

	return ctx.Err()
}

// apply sets the pool to C(elapsed).
func (e *RampingVUs) apply(scheduler *performance.VUScheduler, elapsed time.Duration) {
	target := e.schedule.At(elapsed)
	e.targetVUs.Store(int32(target))

	stage := e.schedule.StageAt(elapsed)
	if prev := e.currentStage.Swap(int32(stage)); prev != int32(stage) && stage >= 0 {
		st := e.schedule.stages[stage]
		e.logger.Info("stage started",
			zap.Int("stage", stage),
			zap.String("name", st.Name),
			zap.Int("target", st.Target),
			zap.Bool("hold", st.Hold),
			zap.Duration("duration", st.Duration))
	}

	scheduler.Scale(target)
}

func (e *RampingVUs) elapsed() time.Duration {
	startNanos := e.startNanos.Load()
	if startNanos == 0 {
		return 0
	}
	return time.Since(time.Unix(0, startNanos))
}

// GetProgress returns current progress (0.0 to 1.0).
func (e *RampingVUs) GetProgress() float64 {
	if e.finished.Load() {
		return 1.0
	}
	if e.startNanos.Load() == 0 {
		return 0.0
	}

	total := e.schedule.TotalDuration()
	if total == 0 {
		return 1.0
	}

	progress := float64(e.elapsed()) / float64(total)
	if progress > 1.0 {
		progress = 1.0
	}
	return progress
}

// GetActiveVUs returns current active VU count.
func (e *RampingVUs) GetActiveVUs() int {
	s := e.scheduler.Load()
	if s == nil {
		return 0
	}
	return s.ActiveCount()
}

// GetStats returns executor statistics.
func (e *RampingVUs) GetStats() *Stats {
	stats := &Stats{
		CurrentTime:   time.Now(),
		Elapsed:       e.elapsed(),
		TotalDuration: e.schedule.TotalDuration(),
		TargetVUs:     int(e.targetVUs.Load()),
		CurrentStage:  int(e.currentStage.Load()),
		TotalStages:   len(e.schedule.stages),
		Draining:      e.draining.Load(),
	}
	if startNanos := e.startNanos.Load(); startNanos != 0 {
		stats.StartTime = time.Unix(0, startNanos)
	}
	if s := e.scheduler.Load(); s != nil {
		stats.ActiveVUs = s.ActiveCount()
		stats.MaxVUs = s.MaxVUs()
		stats.Iterations = s.Completed()
	}
	if stats.CurrentStage >= 0 && stats.CurrentStage < len(e.schedule.stages) {
		stats.CurrentStageName = e.schedule.stages[stats.CurrentStage].Name
	}
	return stats
}

// Stop ends the schedule early. Running iterations still finish within
// GracefulStop.
func (e *RampingVUs) Stop(ctx context.Context) error {
	e.stopOnce.Do(func() { close(e.stopCh) })
	return nil
}

// Ensure RampingVUs implements Executor
var _ Executor = (*RampingVUs)(nil)
