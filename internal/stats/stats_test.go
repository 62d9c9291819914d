package stats

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func req(journey, step string, ms int, o Outcome) Sample {
	return Sample{
		Kind:     KindRequest,
		Journey:  journey,
		Step:     step,
		Duration: time.Duration(ms) * time.Millisecond,
		Outcome:  o,
	}
}

func TestPercentile_NearestRank(t *testing.T) {
	var sorted []time.Duration
	for i := 1; i <= 100; i++ {
		sorted = append(sorted, time.Duration(i)*time.Millisecond)
	}

	assert.Equal(t, 50*time.Millisecond, Percentile(sorted, 50))
	assert.Equal(t, 99*time.Millisecond, Percentile(sorted, 99))
	assert.Equal(t, 100*time.Millisecond, Percentile(sorted, 100))
	assert.Equal(t, time.Millisecond, Percentile(sorted, 0))
	assert.Equal(t, time.Millisecond, Percentile(sorted, 0.5))

	small := []time.Duration{10, 20, 30, 40}
	assert.Equal(t, time.Duration(20), Percentile(small, 50))
	assert.Equal(t, time.Duration(40), Percentile(small, 99))
	assert.Equal(t, time.Duration(0), Percentile(nil, 99))
}

func TestSummarize_DeterministicForMultiset(t *testing.T) {
	a := []Sample{
		req("j1", "reserve", 30, OK),
		req("j1", "reserve", 10, OK),
		req("j1", "reserve", 20, AssertionFailed),
		req("j1", "reserve", 40, OK),
	}
	b := []Sample{a[3], a[1], a[0], a[2]}

	sel := Selector{Kind: KindRequest, Step: "reserve"}
	sa, sb := Summarize(a, sel), Summarize(b, sel)
	assert.Equal(t, sa.P99, sb.P99)
	assert.Equal(t, sa.Med, sb.Med)

	assert.Equal(t, 4, sa.Count)
	assert.Equal(t, 1, sa.Failed)
	assert.Equal(t, 0.25, sa.FailureRate)
	assert.Equal(t, 10*time.Millisecond, sa.Min)
	assert.Equal(t, 40*time.Millisecond, sa.Max)
	assert.Equal(t, 25*time.Millisecond, sa.Avg)
	assert.Equal(t, 20*time.Millisecond, sa.Med)
	assert.Equal(t, 40*time.Millisecond, sa.P99)
}

func TestSummarize_ExcludesInterruptedDurations(t *testing.T) {
	samples := []Sample{
		req("j1", "confirm", 10, OK),
		req("j1", "confirm", 5, Interrupted),
		{Kind: KindDropped, Journey: "j1", Outcome: Dropped},
	}
	s := Summarize(samples, Selector{Kind: KindRequest})
	assert.Equal(t, 1, s.Count)
	assert.Equal(t, 1, s.Interrupted)
	assert.Zero(t, s.FailureRate)
	assert.Equal(t, 10*time.Millisecond, s.Min)
}

func TestStepSummaries(t *testing.T) {
	samples := []Sample{
		req("journey2", "reserve", 10, OK),
		req("journey1", "reserve", 20, OK),
		req("journey1", "confirm", 30, AssertionFailed),
		{Kind: KindIteration, Journey: "journey1"},
	}

	sums := StepSummaries(samples)
	require.Len(t, sums, 5)

	got := make([][2]string, len(sums))
	for i, s := range sums {
		got[i] = [2]string{s.Journey, s.Step}
	}
	assert.Equal(t, [][2]string{
		{"", "confirm"}, {"", "reserve"},
		{"journey1", "confirm"}, {"journey1", "reserve"},
		{"journey2", "reserve"},
	}, got)
	assert.Equal(t, 2, sums[1].Count)
}

func TestCollector_ConcurrentAppend(t *testing.T) {
	c := NewCollector()

	const writers, per = 16, 500
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < per; i++ {
				o := OK
				if i%10 == 0 {
					o = TransportError
				}
				c.Record(req("j", "reserve", i%50, o))
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, writers*per, c.Len())
	assert.Len(t, c.Samples(), writers*per)

	live := c.Live()
	assert.EqualValues(t, writers*per, live.Requests)
	assert.EqualValues(t, writers*per/10, live.RequestsFailed)
	assert.InDelta(t, 10.0, live.ErrorRate(), 0.001)
	require.Len(t, live.Steps, 1)
	assert.EqualValues(t, writers*per, live.Steps[0].Count)
}

func TestCollector_Counters(t *testing.T) {
	c := NewCollector()
	c.Record(req("j", "reserve", 10, OK))
	c.Record(req("j", "purchase", 10, Interrupted))
	c.Record(Sample{Kind: KindIteration, Journey: "j", Outcome: OK, Lag: 2 * time.Millisecond})
	c.Record(Sample{Kind: KindIteration, Journey: "j", Outcome: Interrupted})
	c.Record(Sample{Kind: KindDropped, Journey: "j", Outcome: Dropped})

	l := c.Live()
	assert.EqualValues(t, 1, l.Requests)
	assert.EqualValues(t, 2, l.Iterations)
	assert.EqualValues(t, 1, l.IterationsOK)
	assert.EqualValues(t, 1, l.Dropped)
	assert.EqualValues(t, 2, l.Interrupted)
	assert.Equal(t, 5, c.Len())
}

func TestFanout(t *testing.T) {
	a, b := NewCollector(), NewCollector()
	var seen []Sample
	f := Fanout{a, b, SinkFunc(func(s Sample) { seen = append(seen, s) })}
	f.Record(req("j", "reserve", 1, OK))

	assert.Equal(t, 1, a.Len())
	assert.Equal(t, 1, b.Len())
	assert.Len(t, seen, 1)
}

func TestSampleJSON(t *testing.T) {
	b, err := json.Marshal(Sample{Kind: KindRequest, Outcome: AssertionFailed, Step: "confirm"})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"kind":"request"`)
	assert.Contains(t, string(b), `"outcome":"assertion_failed"`)
}

func TestParseRule(t *testing.T) {
	r, err := ParseRule("http_req_duration{name:reserve}", "p(99)<1000")
	require.NoError(t, err)
	assert.Equal(t, MetricReqDuration, r.Metric)
	assert.Equal(t, Selector{Kind: KindRequest, Step: "reserve"}, r.Selector)
	assert.Equal(t, "p(99)", r.Aggregate)
	assert.Equal(t, 99.0, r.Pct)
	assert.Equal(t, "<", r.Op)
	assert.Equal(t, 1000.0, r.Limit)
	assert.Equal(t, "http_req_duration{name:reserve} p(99)<1000", r.String())

	r, err = ParseRule("http_req_failed{journey:journey3, name:confirm}", "rate <= 0.01")
	require.NoError(t, err)
	assert.Equal(t, Selector{Kind: KindRequest, Journey: "journey3", Step: "confirm"}, r.Selector)
	assert.Equal(t, "<=", r.Op)

	r, err = ParseRule("dropped_iterations", "count==0")
	require.NoError(t, err)
	assert.Equal(t, KindDropped, r.Selector.Kind)

	bad := [][2]string{
		{"http_req_waiting", "p(99)<1"},
		{"http_req_duration{name}", "p(99)<1"},
		{"http_req_duration{method:GET}", "p(99)<1"},
		{"http_req_duration", "p(101)<1"},
		{"http_req_duration", "rate<1"},
		{"http_req_failed", "p(99)<1"},
		{"dropped_iterations", "avg<1"},
		{"http_req_duration", "p99<1"},
		{"http_req_duration", "avg ~ 1"},
	}
	for _, b := range bad {
		_, err := ParseRule(b[0], b[1])
		assert.Error(t, err, "%s %s", b[0], b[1])
	}
}

func TestParseRules_StableOrder(t *testing.T) {
	rules, err := ParseRules(map[string][]string{
		"http_req_failed":                 {"rate<0.01"},
		"http_req_duration{name:reserve}": {"p(99)<1000", "avg<500"},
	})
	require.NoError(t, err)
	require.Len(t, rules, 3)
	assert.Equal(t, "http_req_duration{name:reserve} p(99)<1000", rules[0].String())
	assert.Equal(t, "http_req_duration{name:reserve} avg<500", rules[1].String())
	assert.Equal(t, "http_req_failed rate<0.01", rules[2].String())
}

func TestEvaluate(t *testing.T) {
	var samples []Sample
	for i := 1; i <= 100; i++ {
		samples = append(samples, req("journey1", "reserve", i*10, OK))
	}
	samples = append(samples,
		req("journey1", "confirm", 5, AssertionFailed),
		req("journey1", "confirm", 5, Interrupted),
		Sample{Kind: KindDropped, Journey: "journey1", Outcome: Dropped},
	)

	rules, err := ParseRules(map[string][]string{
		"http_req_duration{name:reserve}": {"p(99)<1000", "p(99)<990", "max<=1000", "med==500"},
		"http_req_failed":                 {"rate<0.01", "count<2"},
		"dropped_iterations":              {"count<1"},
	})
	require.NoError(t, err)

	results := Evaluate(rules, samples)
	byRule := map[string]Result{}
	for _, r := range results {
		byRule[r.Rule.String()] = r
	}

	assert.True(t, byRule["http_req_duration{name:reserve} p(99)<1000"].Passed)
	assert.Equal(t, 990.0, byRule["http_req_duration{name:reserve} p(99)<1000"].Value)
	assert.False(t, byRule["http_req_duration{name:reserve} p(99)<990"].Passed)
	assert.True(t, byRule["http_req_duration{name:reserve} max<=1000"].Passed)
	assert.True(t, byRule["http_req_duration{name:reserve} med==500"].Passed)

	// 1 failed out of 101 completed requests; the interrupted one is not counted
	rate := byRule["http_req_failed rate<0.01"]
	assert.InDelta(t, 1.0/101, rate.Value, 1e-9)
	assert.True(t, rate.Passed)
	assert.True(t, byRule["http_req_failed count<2"].Passed)

	assert.False(t, byRule["dropped_iterations count<1"].Passed)
	assert.False(t, AllPassed(results))
	assert.True(t, AllPassed([]Result{byRule["http_req_failed rate<0.01"]}))
}

func TestEvaluate_NoSamples(t *testing.T) {
	rules, err := ParseRules(map[string][]string{
		"http_req_duration": {"p(99)<1000"},
		"http_req_failed":   {"rate<0.01"},
	})
	require.NoError(t, err)
	assert.True(t, AllPassed(Evaluate(rules, nil)))
}

func TestEvaluate_SharedSelectorsMatchPerRuleValues(t *testing.T) {
	var samples []Sample
	for i := 1; i <= 50; i++ {
		o := OK
		if i%10 == 0 {
			o = TransportError
		}
		samples = append(samples, req("journey1", "reserve", i, o), req("journey2", "purchase", 2*i, OK))
	}

	rules, err := ParseRules(map[string][]string{
		"http_req_duration":                   {"p(95)<100", "avg<30", "min>0"},
		"http_req_failed":                     {"rate<0.05", "count<10"},
		"http_req_duration{journey:journey2}": {"max<=100", "med<60"},
	})
	require.NoError(t, err)

	results := Evaluate(rules, samples)
	require.Len(t, results, len(rules))
	for i, r := range results {
		assert.Equal(t, rules[i].Value(samples), r.Value, r.Rule.String())
	}
}

func TestStepSummaries_MatchSummarize(t *testing.T) {
	samples := []Sample{
		req("journey1", "reserve", 10, OK),
		req("journey2", "reserve", 30, AssertionFailed),
		req("journey1", "purchase", 20, Interrupted),
		req("journey1", "purchase", 40, OK),
	}
	for _, sum := range StepSummaries(samples) {
		want := Summarize(samples, Selector{Kind: KindRequest, Journey: sum.Journey, Step: sum.Step})
		assert.Equal(t, want, sum)
	}
}
