package runner

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"bookload/internal/extract"
	"bookload/internal/journey"
	"bookload/internal/stats"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Doer sends one HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Worker runs journey instances one at a time. A Worker is owned by the pool
// of a single journey; instances never share one concurrently.
type Worker struct {
	ID      int
	Spec    *journey.Spec
	BaseURL string
	Client  Doer
	Sink    stats.Sink
	Rand    journey.Rand
	Logger  *zap.Logger
}

// Iterate runs one instance for arrival a.
func (w *Worker) Iterate(ctx context.Context, a Arrival) {
	w.Run(ctx, a)
}

// Run executes every step of the journey in order, stopping at the first
// failure, and records one request sample per step sent plus one iteration
// sample for the whole instance.
func (w *Worker) Run(ctx context.Context, a Arrival) (results []StepResult) {
	start := time.Now()
	instance := uuid.NewString()
	iter := stats.Sample{
		Time:     start,
		Kind:     stats.KindIteration,
		Journey:  w.Spec.ID,
		Instance: instance,
		Lag:      max(start.Sub(a.At), 0),
		Outcome:  stats.OK,
	}
	log := w.Logger.With(zap.String("instance", instance))

	defer func() {
		if r := recover(); r != nil {
			log.Error("journey instance panicked", zap.Any("panic", r), zap.Stack("stack"))
			iter.Outcome = stats.AssertionFailed
			iter.Detail = fmt.Sprintf("panic: %v", r)
		}
		iter.Duration = time.Since(start)
		w.Sink.Record(iter)
	}()

	data := journey.TemplateData{InstanceID: instance, Journey: w.Spec.ID, UUID: uuid.NewString()}
	var offer extract.Record

	for i := range w.Spec.Steps {
		step := &w.Spec.Steps[i]
		if i > 0 {
			if err := sleepCtx(ctx, w.Spec.Think.Draw(w.Rand)); err != nil {
				iter.Outcome = stats.Interrupted
				iter.Step = step.Name
				return results
			}
		}

		res, rec := w.step(ctx, step, data, offer)
		results = append(results, res)
		if res.Outcome != stats.OK {
			iter.Outcome = res.Outcome
			iter.Step = res.Step
			iter.Status = res.Status
			if res.Err != nil {
				iter.Detail = res.Err.Error()
			}
			if res.Outcome != stats.Interrupted {
				log.Debug("journey step failed", zap.String("step", res.Step), zap.Error(res.Err))
			}
			return results
		}
		if rec != nil {
			offer = rec
		}
	}
	return results
}

func (w *Worker) step(ctx context.Context, step *journey.Step, data journey.TemplateData, offer extract.Record) (StepResult, extract.Record) {
	res := StepResult{Step: step.Name}
	sample := stats.Sample{
		Time:     time.Now(),
		Kind:     stats.KindRequest,
		Journey:  w.Spec.ID,
		Step:     step.Name,
		Instance: data.InstanceID,
	}
	defer func() {
		sample.Duration = res.Duration
		sample.Outcome = res.Outcome
		sample.Status = res.Status
		if res.Err != nil {
			sample.Detail = res.Err.Error()
		}
		w.Sink.Record(sample)
	}()

	form, err := step.Form(data, offer)
	if err != nil {
		res.Outcome, res.Err = stats.TransportError, &TransportError{Step: step.Name, Err: err}
		return res, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.BaseURL+step.Path, strings.NewReader(form.Encode()))
	if err != nil {
		res.Outcome, res.Err = stats.TransportError, &TransportError{Step: step.Name, Err: err}
		return res, nil
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	t0 := time.Now()
	body, status, err := w.send(req)
	res.Duration = time.Since(t0)
	res.Status = status

	if err != nil {
		if ctx.Err() != nil {
			res.Outcome, res.Err = stats.Interrupted, ctx.Err()
			return res, nil
		}
		res.Outcome, res.Err = stats.TransportError, &TransportError{Step: step.Name, Err: err}
		return res, nil
	}

	for _, p := range step.Predicates {
		if p.Check(status, body) {
			continue
		}
		ae := &AssertionError{Step: step.Name, Check: p.Name(), Status: status}
		if p.Body() {
			ae.Snippet = snippet(body)
		}
		res.Outcome, res.Err = stats.AssertionFailed, ae
		return res, nil
	}

	res.Outcome = stats.OK
	if step.Extractor == nil {
		return res, nil
	}
	offers := step.Extractor.Extract(body)
	if len(offers) == 0 {
		res.Outcome, res.Err = stats.ExtractionFailed, &ExtractionError{Step: step.Name, Status: status}
		return res, nil
	}
	return res, w.Spec.Selector.Select(w.Rand, offers)
}

// maxBodyBytes caps how much of a response a step will buffer.
const maxBodyBytes = 4 << 20

func (w *Worker) send(req *http.Request) (string, int, error) {
	resp, err := w.Client.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return "", resp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	if len(b) > maxBodyBytes {
		return "", resp.StatusCode, fmt.Errorf("response body exceeds %d bytes", maxBodyBytes)
	}
	return string(b), resp.StatusCode, nil
}

// sleepCtx pauses for d unless ctx ends first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
