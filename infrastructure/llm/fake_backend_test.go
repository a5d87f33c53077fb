package llm

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errSimulated = errors.New("simulated failure")

// fakeBackend is a configurable Backend for middleware tests.
type fakeBackend struct {
	mu sync.Mutex

	text      string
	tokensIn  int
	tokensOut int
	err       error
	model     string
	delay     time.Duration

	// failFirst fails the first N calls with err (or errSimulated), then
	// succeeds.
	failFirst int

	calls   int
	prompts []string
	opts    []map[string]any
	ctxs    []context.Context
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{text: "fake response", tokensIn: 10, tokensOut: 20, model: "fake-model"}
}

func (f *fakeBackend) Generate(ctx context.Context, prompt string, opts map[string]any) (Completion, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.prompts = append(f.prompts, prompt)
	f.opts = append(f.opts, opts)
	f.ctxs = append(f.ctxs, ctx)
	delay, err, failFirst := f.delay, f.err, f.failFirst
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return Completion{}, ctx.Err()
		}
	}

	if failFirst > 0 {
		if call > failFirst {
			return Completion{Text: f.text, TokensIn: f.tokensIn, TokensOut: f.tokensOut}, nil
		}
		if err == nil {
			err = errSimulated
		}
		return Completion{}, err
	}
	if err != nil {
		return Completion{}, err
	}
	return Completion{Text: f.text, TokensIn: f.tokensIn, TokensOut: f.tokensOut}, nil
}

func (f *fakeBackend) Model() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.model
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// recordingCollector captures metrics keyed by name.
type recordingCollector struct {
	mu         sync.Mutex
	counters   map[string]float64
	histograms map[string][]float64
	labels     map[string][]map[string]string
}

func newRecordingCollector() *recordingCollector {
	return &recordingCollector{
		counters:   map[string]float64{},
		histograms: map[string][]float64{},
		labels:     map[string][]map[string]string{},
	}
}

func (r *recordingCollector) RecordLatency(op string, d time.Duration, labels map[string]string) {
	r.RecordHistogram(op, d.Seconds(), labels)
}

func (r *recordingCollector) RecordCounter(metric string, v float64, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[metric] += v
	r.labels[metric] = append(r.labels[metric], copyLabels(labels))
}

func (r *recordingCollector) RecordGauge(metric string, v float64, labels map[string]string) {
	r.RecordCounter(metric, v, labels)
}

func (r *recordingCollector) RecordHistogram(metric string, v float64, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.histograms[metric] = append(r.histograms[metric], v)
	r.labels[metric] = append(r.labels[metric], copyLabels(labels))
}

func copyLabels(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
