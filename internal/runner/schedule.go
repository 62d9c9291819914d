package runner

import (
	"math"
	"time"

	"bookload/internal/config"
)

// State is where a scheduler is in its cycle.
type State int32

const (
	StatePending State = iota
	StateRamping
	StateSteady
	StateDraining
	StateStopped
)

var stateNames = [...]string{"pending", "ramping", "steady", "draining", "stopped"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Schedule is an arrival-rate profile: starting at StartRate, each stage moves
// the rate linearly to its Target over its Duration. Rates are arrivals per
// TimeUnit.
type Schedule struct {
	StartRate float64
	Stages    []config.Stage
	TimeUnit  time.Duration
}

func NewSchedule(sc config.Scenario) Schedule {
	return Schedule{StartRate: sc.StartRate, Stages: sc.Stages, TimeUnit: sc.TimeUnit}
}

func (s Schedule) perSecond(rate float64) float64 {
	if s.TimeUnit <= 0 {
		return rate
	}
	return rate / s.TimeUnit.Seconds()
}

// Duration is the sum of all stage durations.
func (s Schedule) Duration() time.Duration {
	var d time.Duration
	for _, st := range s.Stages {
		d += st.Duration
	}
	return d
}

// stages calls fn for each stage with its start offset and per-second rates,
// until fn returns false.
func (s Schedule) stages(fn func(off time.Duration, r0, r1, secs float64) bool) {
	var off time.Duration
	prev := s.StartRate
	for _, st := range s.Stages {
		if !fn(off, s.perSecond(prev), s.perSecond(st.Target), st.Duration.Seconds()) {
			return
		}
		off += st.Duration
		prev = st.Target
	}
}

// RateAt is the arrival rate, per TimeUnit, at offset t.
func (s Schedule) RateAt(t time.Duration) float64 {
	rate := 0.0
	s.stages(func(off time.Duration, r0, r1, secs float64) bool {
		x := (t - off).Seconds()
		if x < 0 || x >= secs {
			return true
		}
		rate = r0 + (r1-r0)*x/secs
		return false
	})
	if s.TimeUnit <= 0 {
		return rate
	}
	return rate * s.TimeUnit.Seconds()
}

// ArrivalsBy is the exact number of arrivals expected by offset t: the
// integral of the rate over [0, t].
func (s Schedule) ArrivalsBy(t time.Duration) float64 {
	total := 0.0
	s.stages(func(off time.Duration, r0, r1, secs float64) bool {
		x := (t - off).Seconds()
		if x <= 0 {
			return false
		}
		if x >= secs {
			total += (r0 + r1) / 2 * secs
			return true
		}
		total += r0*x + (r1-r0)/(2*secs)*x*x
		return false
	})
	return total
}

// ArrivalTime returns the offset at which ArrivalsBy reaches n, or false if
// the schedule ends first.
//
// Within a stage the cumulative count is r0·τ + a·τ² with a = (r1-r0)/(2D).
// Its inverse is taken as τ = 2x / (r0 + sqrt(r0² + 4ax)), which stays exact
// for flat stages (a = 0) and for ramps down to zero.
func (s Schedule) ArrivalTime(n float64) (time.Duration, bool) {
	var (
		at    time.Duration
		found bool
	)
	remaining := n
	s.stages(func(off time.Duration, r0, r1, secs float64) bool {
		area := (r0 + r1) / 2 * secs
		if secs <= 0 || remaining > area {
			remaining -= area
			return true
		}
		a := (r1 - r0) / (2 * secs)
		disc := r0*r0 + 4*a*remaining
		if disc < 0 {
			disc = 0
		}
		den := r0 + math.Sqrt(disc)
		if den <= 0 {
			return true
		}
		tau := 2 * remaining / den
		if tau > secs {
			tau = secs
		}
		at = off + time.Duration(tau*float64(time.Second))
		found = true
		return false
	})
	return at, found
}

// StateAt is the scheduler state at offset t: ramping while the current
// stage's rate changes, steady while it is flat, draining once all stages
// are over.
func (s Schedule) StateAt(t time.Duration) State {
	state := StateDraining
	s.stages(func(off time.Duration, r0, r1, secs float64) bool {
		x := (t - off).Seconds()
		if x < 0 || x >= secs {
			return true
		}
		state = StateSteady
		if r0 != r1 {
			state = StateRamping
		}
		return false
	})
	return state
}
