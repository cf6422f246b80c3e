package executor

import (
	"math"
	"time"
)

// Schedule computes the target VU count C(t) for any elapsed time t.
//
// Stage i owns the window (t0, t0+d] where t0 is the sum of the durations
// before it; the first stage also owns t = 0. A ramp stage interpolates
// linearly from the previous target to its own, a hold stage is flat at its
// own target. At the end of every stage C(t) is exactly that stage's
// target. Zero-duration stages own no time and only change the starting
// point of the next ramp. After the last stage C(t) is the last target.
type Schedule struct {
	stages []Stage
	total  time.Duration
	max    int
}

// NewSchedule creates a schedule from stages.
func NewSchedule(stages []Stage) Schedule {
	s := Schedule{stages: make([]Stage, len(stages))}
	copy(s.stages, stages)
	for _, st := range stages {
		if st.Duration > 0 {
			s.total += st.Duration
		}
		if st.Target > s.max {
			s.max = st.Target
		}
	}
	return s
}

// Stages returns a copy of the stages.
func (s Schedule) Stages() []Stage {
	out := make([]Stage, len(s.stages))
	copy(out, s.stages)
	return out
}

// TotalDuration returns the sum of the stage durations.
func (s Schedule) TotalDuration() time.Duration {
	return s.total
}

// MaxTarget returns the highest target across all stages. C(t) never
// exceeds it.
func (s Schedule) MaxTarget() int {
	return s.max
}

// At returns C(t).
func (s Schedule) At(t time.Duration) int {
	if len(s.stages) == 0 {
		return 0
	}
	if t < 0 {
		t = 0
	}

	var start time.Duration
	prev := 0
	for _, st := range s.stages {
		if st.Duration <= 0 {
			prev = st.Target
			continue
		}
		end := start + st.Duration
		if t <= end {
			if st.Hold || t == end {
				return st.Target
			}
			return interpolate(prev, st.Target, t-start, st.Duration)
		}
		prev = st.Target
		start = end
	}

	return s.stages[len(s.stages)-1].Target
}

// StageAt returns the index of the stage that owns t, the last stage past
// the end, or -1 for an empty schedule.
func (s Schedule) StageAt(t time.Duration) int {
	if len(s.stages) == 0 {
		return -1
	}
	if t < 0 {
		t = 0
	}

	var start time.Duration
	for i, st := range s.stages {
		if st.Duration <= 0 {
			continue
		}
		end := start + st.Duration
		if t <= end {
			return i
		}
		start = end
	}
	return len(s.stages) - 1
}

// interpolate rounds prev + (target-prev)*elapsed/d half up and keeps the
// result between prev and target.
func interpolate(prev, target int, elapsed, d time.Duration) int {
	v := float64(prev) + float64(target-prev)*float64(elapsed)/float64(d)
	c := int(math.Floor(v + 0.5))

	lo, hi := prev, target
	if lo > hi {
		lo, hi = hi, lo
	}
	if c < lo {
		return lo
	}
	if c > hi {
		return hi
	}
	return c
}
