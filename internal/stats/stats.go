package stats

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Collector is the in-memory, append-only sample store. It also keeps running
// counters and per-step histograms so live views never scan the samples.
type Collector struct {
	mu      sync.Mutex
	samples []Sample

	Requests       atomic.Uint64
	RequestsFailed atomic.Uint64
	Iterations     atomic.Uint64
	IterationsOK   atomic.Uint64
	Dropped        atomic.Uint64
	Interrupted    atomic.Uint64

	histMu sync.RWMutex
	steps  map[string]*SafeHistogram

	// Schedule lag: how far behind its arrival instant an instance started.
	Lag *SafeHistogram
}

func NewCollector() *Collector {
	return &Collector{
		samples: make([]Sample, 0, 4096),
		steps:   make(map[string]*SafeHistogram),
		Lag:     NewSafeHistogram(),
	}
}

// Record appends s. Safe for concurrent use.
func (c *Collector) Record(s Sample) {
	c.mu.Lock()
	c.samples = append(c.samples, s)
	c.mu.Unlock()

	if s.Outcome == Interrupted {
		c.Interrupted.Add(1)
	}

	switch s.Kind {
	case KindRequest:
		if s.Outcome == Interrupted {
			return
		}
		c.Requests.Add(1)
		if s.Outcome.Failed() {
			c.RequestsFailed.Add(1)
		}
		c.stepHistogram(s.Step).RecordDuration(s.Duration)
	case KindIteration:
		c.Iterations.Add(1)
		if s.Outcome == OK {
			c.IterationsOK.Add(1)
		}
		c.Lag.RecordDuration(s.Lag)
	case KindDropped:
		c.Dropped.Add(1)
	}
}

func (c *Collector) stepHistogram(step string) *SafeHistogram {
	c.histMu.RLock()
	h, ok := c.steps[step]
	c.histMu.RUnlock()
	if ok {
		return h
	}

	c.histMu.Lock()
	defer c.histMu.Unlock()
	if h, ok = c.steps[step]; !ok {
		h = NewSafeHistogram()
		c.steps[step] = h
	}
	return h
}

// Samples returns a copy of everything recorded so far.
func (c *Collector) Samples() []Sample {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Sample, len(c.samples))
	copy(out, c.samples)
	return out
}

func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.samples)
}

// StepLatency is a live latency summary for one step tag.
type StepLatency struct {
	Step  string
	Count int64
	P50Ms float64
	P90Ms float64
	P99Ms float64
	MaxMs float64
}

// Live is a cheap point-in-time copy of the collector's counters.
type Live struct {
	Requests       uint64
	RequestsFailed uint64
	Iterations     uint64
	IterationsOK   uint64
	Dropped        uint64
	Interrupted    uint64
	AvgLagMs       float64
	Steps          []StepLatency
}

// ErrorRate is the failed share of completed requests, in percent.
func (l Live) ErrorRate() float64 {
	if l.Requests == 0 {
		return 0
	}
	return float64(l.RequestsFailed) / float64(l.Requests) * 100
}

func (c *Collector) Live() Live {
	l := Live{
		Requests:       c.Requests.Load(),
		RequestsFailed: c.RequestsFailed.Load(),
		Iterations:     c.Iterations.Load(),
		IterationsOK:   c.IterationsOK.Load(),
		Dropped:        c.Dropped.Load(),
		Interrupted:    c.Interrupted.Load(),
		AvgLagMs:       c.Lag.MeanMs(),
	}

	c.histMu.RLock()
	for step, h := range c.steps {
		l.Steps = append(l.Steps, StepLatency{
			Step:  step,
			Count: h.TotalCount(),
			P50Ms: h.QuantileMs(50),
			P90Ms: h.QuantileMs(90),
			P99Ms: h.QuantileMs(99),
			MaxMs: h.MaxMs(),
		})
	}
	c.histMu.RUnlock()

	sort.Slice(l.Steps, func(i, j int) bool { return l.Steps[i].Step < l.Steps[j].Step })
	return l
}
