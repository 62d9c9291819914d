// Package cli is the headless console front end: a progress line while the
// run is going and a plain-text summary at the end.
package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"bookload/internal/report"
	"bookload/internal/runner"
	"bookload/internal/stats"
	"bookload/internal/tui/styles"
)

const rule = "======================================================================"

// Start drives r to completion, printing progress to w, then prints the
// summary. Cancelling ctx ends the run early.
func Start(ctx context.Context, w io.Writer, r *runner.Runner) (runner.Report, error) {
	printHeader(w, r)

	type result struct {
		rep runner.Report
		err error
	}
	done := make(chan result, 1)
	go func() {
		rep, err := r.Run(ctx)
		done <- result{rep, err}
	}()

	for {
		select {
		case snap := <-r.Updates:
			fmt.Fprint(w, "\r"+progressLine(snap))
		case res := <-done:
			fmt.Fprintln(w)
			if res.err != nil {
				return res.rep, res.err
			}
			printSummary(w, res.rep, r.Collector.Samples())
			return res.rep, nil
		}
	}
}

func printHeader(w io.Writer, r *runner.Runner) {
	cfg := r.Cfg
	fmt.Fprintf(w, "\n🚀 STARTING BOOKLOAD RUN %s\n", r.RunID)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Target URL : %s\n", cfg.BaseURL)
	for _, j := range cfg.Journeys {
		fmt.Fprintf(w, "%-10s : %s -> %s at %g/%s\n", j.ID, j.Route.From, j.Route.To, j.Rate, cfg.TimeUnit)
	}
	fmt.Fprintf(w, "Duration   : %s (RampUp) + %s (Steady)\n", cfg.RampUp, cfg.Duration)
	fmt.Fprintf(w, "Workers    : %d pre-allocated, %d max per journey\n", cfg.PreAllocated, cfg.MaxWorkers)
	fmt.Fprintf(w, "Timeout    : %s\n", cfg.RequestTimeout)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)
}

func progressBar(pct float64, width int) string {
	filled := int(pct * float64(width))
	filled = min(max(filled, 0), width)
	return "[" + strings.Repeat("█", filled) + strings.Repeat("-", width-filled) + "]"
}

func progressLine(s runner.StatsSnapshot) string {
	pct := 0.0
	if s.Total > 0 {
		pct = min(float64(s.Elapsed)/float64(s.Total), 1.0)
	}

	if s.Elapsed >= s.Total && s.Active() > 0 {
		return fmt.Sprintf("%s %3.0f%% | %s/%s | Draining: %d journeys...          ",
			progressBar(1.0, 20), 100.0,
			s.Elapsed.Round(time.Second), s.Total, s.Active())
	}

	rate := 0.0
	if s.Elapsed > 0 {
		rate = float64(s.Live.Iterations) / s.Elapsed.Seconds()
	}
	return fmt.Sprintf("%s %3.0f%% | %s/%s | Act: %3d | It/s: %.1f | OK: %d | Err: %d | Drop: %d",
		progressBar(pct, 20), pct*100,
		s.Elapsed.Round(time.Second), s.Total,
		s.Active(),
		rate,
		s.Live.IterationsOK,
		s.Live.Iterations-s.Live.IterationsOK,
		s.Live.Dropped,
	)
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}

func printSummary(w io.Writer, rep runner.Report, samples []stats.Sample) {
	fmt.Fprintf(w, "\n📊 BOOKLOAD RESULTS\n")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Run ID         : %s\n", rep.RunID)
	fmt.Fprintf(w, "Total Duration : %s\n", rep.Elapsed.Round(time.Second))
	if rep.Aborted {
		fmt.Fprintf(w, "Status         : %s\n", styles.Warn.Render("aborted"))
	}

	fmt.Fprintf(w, "\n🧭 JOURNEYS\n")
	fmt.Fprintf(w, "   %-10s %9s %9s %9s %9s %9s %9s %6s\n", "journey", "scheduled", "started", "ok", "failed", "interr", "dropped", "peak")
	for _, j := range rep.Journeys {
		fmt.Fprintf(w, "   %-10s %9d %9d %9d %9d %9d %9d %6d\n",
			j.Journey, j.Scheduled, j.Started, j.Succeeded, j.Failed, j.Interrupted, j.Dropped, j.PeakWorkers)
	}

	fmt.Fprintf(w, "\n⏱️  STEP RESPONSE TIMES (ms)\n")
	fmt.Fprintf(w, "   %-10s %8s %8s %9s %9s %9s %9s %9s\n", "step", "count", "failed", "avg", "med", "p90", "p99", "max")
	for _, s := range rep.Steps {
		fmt.Fprintf(w, "   %-10s %8d %8d %9.2f %9.2f %9.2f %9.2f %9.2f\n",
			s.Step, s.Count, s.Failed, ms(s.Avg), ms(s.Med), ms(s.P90), ms(s.P99), ms(s.Max))
	}

	if errs := errorCounts(samples); len(errs) > 0 {
		fmt.Fprintf(w, "\n❌ FAILURE SUMMARY\n")
		for _, e := range errs {
			fmt.Fprintf(w, "   %d x %s\n", e.count, e.detail)
		}
	}

	fmt.Fprintf(w, "\n🎯 THRESHOLDS\n")
	for _, res := range rep.Thresholds {
		fmt.Fprintf(w, "   %s %-45s %g\n", styles.Verdict(res.Passed), res.Rule, res.Value)
	}
	verdict := styles.Success.Render("PASSED")
	if !rep.Passed {
		verdict = styles.Error.Render("FAILED")
	}
	fmt.Fprintf(w, "\nResult: %s\n", verdict)
	fmt.Fprintln(w, rule)
}

type failure struct {
	detail string
	count  int
}

const maxFailureLines = 10

// errorCounts groups failed request samples by detail, most frequent first.
func errorCounts(samples []stats.Sample) []failure {
	counts := make(map[string]int)
	for _, s := range samples {
		if s.Kind != stats.KindRequest || !s.Outcome.Failed() {
			continue
		}
		d := s.Detail
		if d == "" {
			d = s.Step + ": " + s.Outcome.String()
		}
		counts[d]++
	}

	out := make([]failure, 0, len(counts))
	for d, n := range counts {
		out = append(out, failure{d, n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].detail < out[j].detail
	})
	if len(out) > maxFailureLines {
		out = out[:maxFailureLines]
	}
	return out
}

// HandleAutoReport writes the export files when prefix is set.
func HandleAutoReport(w io.Writer, prefix string, r *runner.Runner, rep runner.Report) error {
	if prefix == "" {
		return nil
	}

	fmt.Fprintf(w, "\n💾 Generating reports with prefix: %s\n", prefix)
	if _, err := report.Export(prefix, rep, r.Cfg.BaseURL, r.Collector.Samples()); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	fmt.Fprintf(w, "✅ Reports saved to %s.{csv,json,_summary.json}\n", prefix)
	return nil
}
