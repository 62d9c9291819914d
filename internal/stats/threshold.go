package stats

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Metric names accepted in threshold expressions.
const (
	MetricReqDuration       = "http_req_duration"
	MetricReqFailed         = "http_req_failed"
	MetricIterationDuration = "iteration_duration"
	MetricIterationsFailed  = "iterations_failed"
	MetricDropped           = "dropped_iterations"
)

type metricKind int

const (
	trendMetric metricKind = iota // durations, reported in milliseconds
	rateMetric                    // share of failed samples
	counterMetric
)

var metrics = map[string]struct {
	kind metricKind
	of   Kind
}{
	MetricReqDuration:       {trendMetric, KindRequest},
	MetricReqFailed:         {rateMetric, KindRequest},
	MetricIterationDuration: {trendMetric, KindIteration},
	MetricIterationsFailed:  {rateMetric, KindIteration},
	MetricDropped:           {counterMetric, KindDropped},
}

// Rule is one threshold: an aggregate of a metric compared against a limit,
// e.g. http_req_duration{name:reserve} p(99)<1000.
type Rule struct {
	Metric    string
	Selector  Selector
	Aggregate string  // p(N), avg, min, max, med, rate, count
	Pct       float64 // N for p(N)
	Op        string
	Limit     float64

	expr      string
	condition string
}

func (r Rule) String() string {
	return r.expr + " " + r.condition
}

var (
	exprRe      = regexp.MustCompile(`^\s*([a-z_]+)\s*(?:\{([^}]*)\})?\s*$`)
	conditionRe = regexp.MustCompile(`^\s*(p\(\s*\d+(?:\.\d+)?\s*\)|avg|min|max|med|rate|count)\s*(<=|>=|==|!=|<|>)\s*(-?\d+(?:\.\d+)?(?:[eE]-?\d+)?)\s*$`)
)

// ParseRule parses a metric expression and one condition in k6 syntax.
func ParseRule(expr, condition string) (Rule, error) {
	m := exprRe.FindStringSubmatch(expr)
	if m == nil {
		return Rule{}, fmt.Errorf("threshold %q: malformed metric expression", expr)
	}
	def, ok := metrics[m[1]]
	if !ok {
		return Rule{}, fmt.Errorf("threshold %q: unknown metric %q", expr, m[1])
	}

	r := Rule{
		Metric:    m[1],
		Selector:  Selector{Kind: def.of},
		expr:      strings.TrimSpace(expr),
		condition: strings.TrimSpace(condition),
	}

	if m[2] != "" {
		for _, tag := range strings.Split(m[2], ",") {
			k, v, ok := strings.Cut(tag, ":")
			if !ok {
				return Rule{}, fmt.Errorf("threshold %q: tag %q needs key:value", expr, tag)
			}
			k, v = strings.TrimSpace(k), strings.TrimSpace(v)
			switch k {
			case "name":
				r.Selector.Step = v
			case "journey":
				r.Selector.Journey = v
			default:
				return Rule{}, fmt.Errorf("threshold %q: unsupported tag %q", expr, k)
			}
		}
	}

	c := conditionRe.FindStringSubmatch(condition)
	if c == nil {
		return Rule{}, fmt.Errorf("threshold %q: malformed condition %q", expr, condition)
	}
	r.Aggregate, r.Op = strings.ReplaceAll(c[1], " ", ""), c[2]
	r.Limit, _ = strconv.ParseFloat(c[3], 64)

	if strings.HasPrefix(r.Aggregate, "p(") {
		r.Pct, _ = strconv.ParseFloat(strings.TrimSuffix(strings.TrimPrefix(r.Aggregate, "p("), ")"), 64)
		if r.Pct <= 0 || r.Pct > 100 {
			return Rule{}, fmt.Errorf("threshold %q: percentile %g out of range", expr, r.Pct)
		}
	}

	if !aggregateFits(def.kind, r.Aggregate) {
		return Rule{}, fmt.Errorf("threshold %q: %s does not apply to %s", expr, r.Aggregate, r.Metric)
	}
	return r, nil
}

func aggregateFits(kind metricKind, agg string) bool {
	switch kind {
	case trendMetric:
		return agg != "rate"
	case rateMetric:
		return agg == "rate" || agg == "count"
	default:
		return agg == "count"
	}
}

// ParseRules parses a metric expression → conditions map. Rules come back in
// a stable order.
func ParseRules(m map[string][]string) ([]Rule, error) {
	exprs := make([]string, 0, len(m))
	for e := range m {
		exprs = append(exprs, e)
	}
	sort.Strings(exprs)

	var rules []Rule
	for _, e := range exprs {
		for _, cond := range m[e] {
			r, err := ParseRule(e, cond)
			if err != nil {
				return nil, err
			}
			rules = append(rules, r)
		}
	}
	return rules, nil
}

// Value computes the rule's aggregate over samples. Trend values are in
// milliseconds.
func (r Rule) Value(samples []Sample) float64 {
	return r.valueOf(Summarize(samples, r.Selector))
}

func (r Rule) valueOf(sum Summary) float64 {
	ms := func(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

	switch r.Aggregate {
	case "count":
		if r.Metric == MetricReqFailed || r.Metric == MetricIterationsFailed {
			return float64(sum.Failed)
		}
		return float64(sum.Count)
	case "rate":
		return sum.FailureRate
	case "avg":
		return ms(sum.Avg)
	case "min":
		return ms(sum.Min)
	case "max":
		return ms(sum.Max)
	case "med":
		return ms(sum.Med)
	default:
		return ms(sum.Percentile(r.Pct))
	}
}

// Check compares v against the limit.
func (r Rule) Check(v float64) bool {
	switch r.Op {
	case "<":
		return v < r.Limit
	case "<=":
		return v <= r.Limit
	case ">":
		return v > r.Limit
	case ">=":
		return v >= r.Limit
	case "==":
		return v == r.Limit
	default:
		return v != r.Limit
	}
}

// Result is the evaluation of one rule.
type Result struct {
	Rule   Rule
	Value  float64
	Passed bool
}

// Evaluate checks every rule against the full sample set. Rules sharing a
// selector share one summary.
func Evaluate(rules []Rule, samples []Sample) []Result {
	sums := make(map[Selector]Summary)
	out := make([]Result, 0, len(rules))
	for _, r := range rules {
		sum, ok := sums[r.Selector]
		if !ok {
			sum = Summarize(samples, r.Selector)
			sums[r.Selector] = sum
		}
		v := r.valueOf(sum)
		out = append(out, Result{Rule: r, Value: v, Passed: r.Check(v)})
	}
	return out
}

// AllPassed reports whether no rule was violated.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}
