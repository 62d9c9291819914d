package runner

import (
	"fmt"
	"strings"
	"time"

	"bookload/internal/stats"
)

// Arrival is one scheduled journey start.
type Arrival struct {
	Seq int64     // 1-based index within the scheduler
	At  time.Time // scheduled instant
}

// StepResult is what one step of an instance produced.
type StepResult struct {
	Step     string
	Outcome  stats.Outcome
	Status   int
	Duration time.Duration
	Err      error
}

// TransportError means no usable response came back: refused connections,
// timeouts, malformed URLs, unreadable bodies.
type TransportError struct {
	Step string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport: %v", e.Step, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AssertionError is the first predicate a response failed.
type AssertionError struct {
	Step    string
	Check   string
	Status  int
	Snippet string // set for checks that read the body
}

func (e *AssertionError) Error() string {
	if e.Snippet != "" {
		return fmt.Sprintf("%s: check %q failed (status %d): %s", e.Step, e.Check, e.Status, e.Snippet)
	}
	return fmt.Sprintf("%s: check %q failed (status %d)", e.Step, e.Check, e.Status)
}

// ExtractionError means a step that must yield offers yielded none.
type ExtractionError struct {
	Step   string
	Status int
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%s: no offers found in response (status %d)", e.Step, e.Status)
}

const snippetLen = 180

// snippet collapses whitespace runs and cuts the body to snippetLen runes.
func snippet(body string) string {
	s := strings.Join(strings.Fields(body), " ")
	if r := []rune(s); len(r) > snippetLen {
		return string(r[:snippetLen])
	}
	return s
}

// StatsSnapshot is sent over the update channel.
type StatsSnapshot struct {
	Elapsed  time.Duration
	Total    time.Duration
	Live     stats.Live
	Journeys []Status
}

// Active is the number of instances in flight across all journeys.
func (s StatsSnapshot) Active() int {
	n := 0
	for _, j := range s.Journeys {
		n += j.Active
	}
	return n
}

// StatsUpdateChan is the channel type
type StatsUpdateChan chan StatsSnapshot
