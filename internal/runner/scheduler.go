package runner

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"bookload/internal/config"
	"bookload/internal/stats"

	"go.uber.org/zap"
)

// Iterator runs one journey instance. It must return once ctx is done.
type Iterator interface {
	Iterate(ctx context.Context, a Arrival)
}

// Status is a point-in-time view of one scheduler.
type Status struct {
	Journey   string
	State     State
	Rate      float64 // current target, per time unit
	Active    int
	Peak      int
	Allocated int
	Scheduled int64
	Started   int64
	Dropped   int64
}

// Scheduler starts journey instances at the instants its Schedule dictates,
// whether or not earlier instances have finished.
type Scheduler struct {
	journey      string
	schedule     Schedule
	pool         *Pool[Iterator]
	sink         stats.Sink
	logger       *zap.Logger
	gracefulStop time.Duration
	queueTimeout time.Duration

	state     atomic.Int32
	startedAt atomic.Int64 // unix nanos, 0 until Run
	scheduled atomic.Int64
	started   atomic.Int64
	dropped   atomic.Int64
	waiting   atomic.Int64
	lastWarn  atomic.Int64
}

// NewScheduler builds the scheduler and its worker pool. newIterator is
// called PreAllocated times upfront and then on demand up to MaxWorkers.
func NewScheduler(sc config.Scenario, newIterator func() Iterator, sink stats.Sink, logger *zap.Logger) (*Scheduler, error) {
	pool, err := NewPool(sc.PreAllocated, sc.MaxWorkers, newIterator)
	if err != nil {
		return nil, fmt.Errorf("journey %s: %w", sc.Journey, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		journey:      sc.Journey,
		schedule:     NewSchedule(sc),
		pool:         pool,
		sink:         sink,
		logger:       logger.With(zap.String("journey", sc.Journey)),
		gracefulStop: sc.GracefulStop,
		queueTimeout: sc.QueueTimeout,
	}, nil
}

func (s *Scheduler) Journey() string { return s.journey }

func (s *Scheduler) State() State { return State(s.state.Load()) }

func (s *Scheduler) setState(st State) {
	if old := State(s.state.Swap(int32(st))); old != st {
		s.logger.Info("scheduler state", zap.Stringer("from", old), zap.Stringer("to", st))
	}
}

// Status is safe to call from any goroutine.
func (s *Scheduler) Status() Status {
	st := Status{
		Journey:   s.journey,
		State:     s.State(),
		Active:    s.pool.Active(),
		Peak:      s.pool.Peak(),
		Allocated: s.pool.Allocated(),
		Scheduled: s.scheduled.Load(),
		Started:   s.started.Load(),
		Dropped:   s.dropped.Load(),
	}
	if ns := s.startedAt.Load(); ns != 0 && st.State < StateDraining {
		st.Rate = s.schedule.RateAt(time.Since(time.Unix(0, ns)))
	}
	return st
}

// Run dispatches arrivals until the schedule ends or ctx is done, then drains
// in-flight instances. It returns ctx's error if the cycle was cut short.
func (s *Scheduler) Run(ctx context.Context) error {
	// Instances outlive ctx by up to gracefulStop; drain cancels them.
	iterCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	var wg sync.WaitGroup
	start := time.Now()
	s.startedAt.Store(start.UnixNano())
	s.setState(s.schedule.StateAt(0))

	end := s.schedule.Duration()
	for n := int64(1); ; n++ {
		off, ok := s.schedule.ArrivalTime(float64(n))
		if !ok || off > end {
			// nothing left to start; hold until the schedule is over
			sleepUntil(ctx, start.Add(end))
			break
		}
		if !sleepUntil(ctx, start.Add(off)) {
			break
		}
		s.setState(s.schedule.StateAt(off))
		s.dispatch(iterCtx, &wg, Arrival{Seq: n, At: start.Add(off)})
	}

	s.setState(StateDraining)
	s.drain(&wg, cancel)
	s.setState(StateStopped)
	s.logger.Info("scheduler finished",
		zap.Int64("scheduled", s.scheduled.Load()),
		zap.Int64("started", s.started.Load()),
		zap.Int64("dropped", s.dropped.Load()),
		zap.Int("peak_workers", s.pool.Peak()),
	)
	return ctx.Err()
}

func (s *Scheduler) dispatch(ctx context.Context, wg *sync.WaitGroup, a Arrival) {
	s.scheduled.Add(1)

	if it, ok := s.pool.TryAcquire(); ok {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.run(ctx, it, a)
		}()
		return
	}

	if s.queueTimeout <= 0 {
		s.drop(a)
		return
	}
	if s.waiting.Add(1) > int64(s.pool.Max()) {
		s.waiting.Add(-1)
		s.drop(a)
		return
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		qctx, qcancel := context.WithTimeout(ctx, s.queueTimeout)
		it, err := s.pool.Acquire(qctx)
		qcancel()
		s.waiting.Add(-1)
		if err != nil {
			s.drop(a)
			return
		}
		s.run(ctx, it, a)
	}()
}

func (s *Scheduler) run(ctx context.Context, it Iterator, a Arrival) {
	s.started.Add(1)
	defer s.pool.Release(it)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("iteration panicked", zap.Any("panic", r), zap.Int64("seq", a.Seq))
			s.sink.Record(stats.Sample{
				Time:    time.Now(),
				Kind:    stats.KindIteration,
				Journey: s.journey,
				Outcome: stats.AssertionFailed,
				Detail:  fmt.Sprintf("panic: %v", r),
			})
		}
	}()
	it.Iterate(ctx, a)
}

func (s *Scheduler) drop(a Arrival) {
	s.dropped.Add(1)
	s.sink.Record(stats.Sample{
		Time:    a.At,
		Kind:    stats.KindDropped,
		Journey: s.journey,
		Outcome: stats.Dropped,
		Lag:     max(time.Since(a.At), 0),
	})

	now := time.Now().UnixNano()
	last := s.lastWarn.Load()
	if now-last >= int64(time.Second) && s.lastWarn.CompareAndSwap(last, now) {
		s.logger.Warn("worker pool saturated, dropping arrivals",
			zap.Int("max_workers", s.pool.Max()),
			zap.Int64("dropped", s.dropped.Load()),
		)
	}
}

// drain waits up to gracefulStop for in-flight instances, then cancels the
// rest and waits for them to unwind.
func (s *Scheduler) drain(wg *sync.WaitGroup, cancel context.CancelFunc) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	if s.gracefulStop > 0 {
		t := time.NewTimer(s.gracefulStop)
		defer t.Stop()
		select {
		case <-done:
			return
		case <-t.C:
		}
	}

	if active := s.pool.Active(); active > 0 {
		s.logger.Info("interrupting in-flight instances", zap.Int("active", active))
	}
	cancel()
	<-done
}

// sleepUntil reports false if ctx ended before at.
func sleepUntil(ctx context.Context, at time.Time) bool {
	return sleepCtx(ctx, time.Until(at)) == nil
}
