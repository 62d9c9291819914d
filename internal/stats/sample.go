package stats

import (
	"fmt"
	"time"
)

// Kind says what a Sample measures.
type Kind uint8

const (
	KindRequest   Kind = iota // one HTTP request of a step
	KindIteration             // one whole journey instance
	KindDropped               // an arrival the worker pool could not take
)

var kindNames = [...]string{"request", "iteration", "dropped"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Outcome is the result recorded with a Sample.
type Outcome uint8

const (
	OK Outcome = iota
	AssertionFailed
	TransportError
	ExtractionFailed
	// Interrupted marks work cut off at run end; its duration is truncated.
	Interrupted
	// Dropped marks a saturated arrival. It is not a request failure.
	Dropped
)

var outcomeNames = [...]string{"ok", "assertion_failed", "transport_error", "extraction_failed", "interrupted", "dropped"}

func (o Outcome) String() string {
	if int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return fmt.Sprintf("outcome(%d)", o)
}

func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// Failed reports whether the outcome counts toward failure rates.
func (o Outcome) Failed() bool {
	return o == AssertionFailed || o == TransportError || o == ExtractionFailed
}

// Sample is an immutable measurement. Samples are only ever appended.
type Sample struct {
	Time     time.Time     `json:"time"`
	Kind     Kind          `json:"kind"`
	Journey  string        `json:"journey"`
	Step     string        `json:"step,omitempty"`
	Instance string        `json:"instance,omitempty"`
	Duration time.Duration `json:"duration_ns"`
	Lag      time.Duration `json:"lag_ns,omitempty"` // dispatch delay behind the scheduled arrival
	Outcome  Outcome       `json:"outcome"`
	Status   int           `json:"status,omitempty"`
	Detail   string        `json:"detail,omitempty"`
}

// Sink receives samples. Implementations must be safe for concurrent use.
type Sink interface {
	Record(s Sample)
}

// Fanout forwards each sample to every sink in order.
type Fanout []Sink

func (f Fanout) Record(s Sample) {
	for _, sink := range f {
		sink.Record(s)
	}
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Sample)

func (f SinkFunc) Record(s Sample) { f(s) }
