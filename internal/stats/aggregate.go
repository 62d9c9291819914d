package stats

import (
	"math"
	"sort"
	"time"
)

// Selector picks the samples an aggregate is computed over. Empty Journey or
// Step match any value.
type Selector struct {
	Kind    Kind
	Journey string
	Step    string
}

func (s Selector) Match(x Sample) bool {
	return x.Kind == s.Kind &&
		(s.Journey == "" || s.Journey == x.Journey) &&
		(s.Step == "" || s.Step == x.Step)
}

// Summary aggregates the samples matched by one Selector.
//
// Durations come from completed samples only; interrupted ones are counted
// but their truncated durations are left out.
type Summary struct {
	Journey     string  `json:"journey,omitempty"`
	Step        string  `json:"step,omitempty"`
	Count       int     `json:"count"`
	Failed      int     `json:"failed"`
	Interrupted int     `json:"interrupted"`
	FailureRate float64 `json:"failure_rate"`

	Min time.Duration `json:"min_ns"`
	Avg time.Duration `json:"avg_ns"`
	Med time.Duration `json:"med_ns"`
	P90 time.Duration `json:"p90_ns"`
	P95 time.Duration `json:"p95_ns"`
	P99 time.Duration `json:"p99_ns"`
	Max time.Duration `json:"max_ns"`

	sorted []time.Duration
}

// Percentile returns the p-th percentile of the summary's durations.
func (s Summary) Percentile(p float64) time.Duration {
	return Percentile(s.sorted, p)
}

// Summarize aggregates samples matched by sel.
func Summarize(samples []Sample, sel Selector) Summary {
	acc := summarizer{sum: Summary{Journey: sel.Journey, Step: sel.Step}}
	for _, x := range samples {
		if sel.Match(x) {
			acc.add(x)
		}
	}
	return acc.finish()
}

// summarizer builds one Summary incrementally so several can be filled from
// a single pass over the samples.
type summarizer struct {
	sum   Summary
	total time.Duration
}

func (a *summarizer) add(x Sample) {
	if x.Outcome == Interrupted {
		a.sum.Interrupted++
		return
	}
	a.sum.Count++
	if x.Outcome.Failed() {
		a.sum.Failed++
	}
	a.sum.sorted = append(a.sum.sorted, x.Duration)
	a.total += x.Duration
}

func (a *summarizer) finish() Summary {
	sum := a.sum
	if sum.Count == 0 {
		return sum
	}

	sort.Slice(sum.sorted, func(i, j int) bool { return sum.sorted[i] < sum.sorted[j] })

	sum.FailureRate = float64(sum.Failed) / float64(sum.Count)
	sum.Min = sum.sorted[0]
	sum.Max = sum.sorted[len(sum.sorted)-1]
	sum.Avg = a.total / time.Duration(sum.Count)
	sum.Med = Percentile(sum.sorted, 50)
	sum.P90 = Percentile(sum.sorted, 90)
	sum.P95 = Percentile(sum.sorted, 95)
	sum.P99 = Percentile(sum.sorted, 99)
	return sum
}

// Percentile is the nearest-rank estimator: the smallest value such that at
// least p percent of the values are less than or equal to it. sorted must be
// ascending. The result depends only on the multiset of values.
func Percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	i := int(math.Ceil((p/100)*float64(len(sorted)))) - 1
	if i < 0 {
		i = 0
	}
	if i >= len(sorted) {
		i = len(sorted) - 1
	}
	return sorted[i]
}

// StepSummaries groups request samples by (journey, step), plus one summary
// per step across all journeys (Journey empty). Sorted by journey then step.
func StepSummaries(samples []Sample) []Summary {
	type key struct{ journey, step string }
	groups := make(map[key]*summarizer)
	var keys []key
	for _, x := range samples {
		if x.Kind != KindRequest {
			continue
		}
		for _, k := range []key{{x.Journey, x.Step}, {"", x.Step}} {
			acc, ok := groups[k]
			if !ok {
				acc = &summarizer{sum: Summary{Journey: k.journey, Step: k.step}}
				groups[k] = acc
				keys = append(keys, k)
			}
			acc.add(x)
		}
	}

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].journey != keys[j].journey {
			return keys[i].journey < keys[j].journey
		}
		return keys[i].step < keys[j].step
	})

	out := make([]Summary, 0, len(keys))
	for _, k := range keys {
		out = append(out, groups[k].finish())
	}
	return out
}
