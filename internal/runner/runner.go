package runner

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"

	"bookload/internal/config"
	"bookload/internal/journey"
	"bookload/internal/stats"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// JourneyStatus is the end-of-run account of one journey.
type JourneyStatus struct {
	Journey     string `json:"journey"`
	Scheduled   int64  `json:"scheduled"`
	Started     int64  `json:"started"`
	Dropped     int64  `json:"dropped"`
	Completed   int    `json:"completed"`
	Succeeded   int    `json:"succeeded"`
	Failed      int    `json:"failed"`
	Interrupted int    `json:"interrupted"`
	PeakWorkers int    `json:"peak_workers"`

	Duration stats.Summary `json:"iteration_duration"`
}

// Report is the outcome of a whole run.
type Report struct {
	RunID      string          `json:"run_id"`
	StartedAt  time.Time       `json:"started_at"`
	Elapsed    time.Duration   `json:"elapsed_ns"`
	Aborted    bool            `json:"aborted"`
	Journeys   []JourneyStatus `json:"journeys"`
	Steps      []stats.Summary `json:"steps"`
	Thresholds []stats.Result  `json:"-"`
	Passed     bool            `json:"passed"`
}

type Runner struct {
	RunID     string
	Cfg       config.Config
	Client    *http.Client
	Collector *stats.Collector

	Schedulers []*Scheduler

	rules  []stats.Rule
	logger *zap.Logger
	start  time.Time

	// Event Channel
	Updates StatsUpdateChan
}

// NewRunner builds one scheduler and worker pool per journey spec. Every spec
// must have a matching entry in cfg.Journeys. Samples go to the runner's own
// Collector and, if non-nil, to sink as well.
func NewRunner(cfg config.Config, specs []journey.Spec, sink stats.Sink, logger *zap.Logger) (*Runner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	rules, err := stats.ParseRules(cfg.Thresholds)
	if err != nil {
		return nil, err
	}

	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 2000
	t.MaxConnsPerHost = 2000
	t.MaxIdleConnsPerHost = 2000
	t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}

	client := &http.Client{
		Timeout:   cfg.RequestTimeout,
		Transport: t,
	}

	r := &Runner{
		RunID:     uuid.Must(uuid.NewV7()).String(),
		Cfg:       cfg,
		Client:    client,
		Collector: stats.NewCollector(),
		rules:     rules,
		Updates:   make(StatsUpdateChan, 10),
	}
	r.logger = logger.With(zap.String("run_id", r.RunID))

	var out stats.Sink = r.Collector
	if sink != nil {
		out = stats.Fanout{r.Collector, sink}
	}

	for i := range specs {
		spec := &specs[i]
		jc, ok := findJourney(cfg, spec.ID)
		if !ok {
			return nil, fmt.Errorf("journey %s: no rate configured", spec.ID)
		}

		log := r.logger.With(zap.String("journey", spec.ID))
		next := 0
		newWorker := func() Iterator {
			next++
			return &Worker{
				ID:      next,
				Spec:    spec,
				BaseURL: cfg.BaseURL,
				Client:  client,
				Sink:    out,
				Rand:    journey.DefaultRand,
				Logger:  log,
			}
		}

		s, err := NewScheduler(cfg.Scenario(jc), newWorker, out, r.logger)
		if err != nil {
			return nil, err
		}
		r.Schedulers = append(r.Schedulers, s)
	}
	return r, nil
}

func findJourney(cfg config.Config, id string) (config.JourneyConfig, bool) {
	for _, j := range cfg.Journeys {
		if j.ID == id {
			return j, true
		}
	}
	return config.JourneyConfig{}, false
}

// StartTickLoop starts a goroutine that pushes stats updates
func (r *Runner) StartTickLoop(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.sendUpdate()
			}
		}
	}()
}

// Snapshot is a cheap copy of the live counters and scheduler states.
func (r *Runner) Snapshot() StatsSnapshot {
	s := StatsSnapshot{
		Total: r.Cfg.TotalDuration(),
		Live:  r.Collector.Live(),
	}
	if !r.start.IsZero() {
		s.Elapsed = time.Since(r.start)
	}
	for _, sch := range r.Schedulers {
		s.Journeys = append(s.Journeys, sch.Status())
	}
	return s
}

func (r *Runner) sendUpdate() {
	// Non-blocking send
	select {
	case r.Updates <- r.Snapshot():
	default:
		// Drop update if channel full, UI acts as backpressure
	}
}

// Run drives every scheduler through its full cycle concurrently, then
// evaluates the thresholds over everything recorded. Cancelling ctx ends the
// arrival phase early; the report is still produced and marked Aborted.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	r.start = time.Now()
	r.logger.Info("run starting",
		zap.String("base_url", r.Cfg.BaseURL),
		zap.Int("journeys", len(r.Schedulers)),
		zap.Duration("duration", r.Cfg.TotalDuration()),
	)

	tickCtx, stopTicks := context.WithCancel(ctx)
	defer stopTicks()
	r.StartTickLoop(tickCtx, 200*time.Millisecond)

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range r.Schedulers {
		g.Go(func() error {
			return s.Run(gctx)
		})
	}
	err := g.Wait()
	stopTicks()
	r.sendUpdate()

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return Report{}, err
	}

	rep := r.Evaluate()
	rep.Aborted = err != nil
	r.logger.Info("run finished", zap.Bool("passed", rep.Passed), zap.Bool("aborted", rep.Aborted), zap.Duration("elapsed", rep.Elapsed))
	return rep, nil
}

// Evaluate builds the report from the samples recorded so far.
func (r *Runner) Evaluate() Report {
	samples := r.Collector.Samples()
	rep := Report{
		RunID:     r.RunID,
		StartedAt: r.start,
		Elapsed:   time.Since(r.start),
		Steps:     stats.StepSummaries(samples),
	}

	for _, s := range r.Schedulers {
		st := s.Status()
		sum := stats.Summarize(samples, stats.Selector{Kind: stats.KindIteration, Journey: st.Journey})
		rep.Journeys = append(rep.Journeys, JourneyStatus{
			Journey:     st.Journey,
			Scheduled:   st.Scheduled,
			Started:     st.Started,
			Dropped:     st.Dropped,
			Completed:   sum.Count,
			Succeeded:   sum.Count - sum.Failed,
			Failed:      sum.Failed,
			Interrupted: sum.Interrupted,
			PeakWorkers: st.Peak,
			Duration:    sum,
		})
	}

	rep.Thresholds = stats.Evaluate(r.rules, samples)
	rep.Passed = stats.AllPassed(rep.Thresholds)
	for _, res := range rep.Thresholds {
		if !res.Passed {
			r.logger.Warn("threshold violated", zap.Stringer("rule", res.Rule), zap.Float64("value", res.Value))
		}
	}
	return rep
}
