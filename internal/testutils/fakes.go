package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/ahrav/pitchpanel/internal/domain"
	"github.com/ahrav/pitchpanel/internal/ports"
)

// QueueCapture is a SpeechCapture fed by Say. CaptureUtterance blocks
// until a line is queued or ctx is done.
type QueueCapture struct {
	lines   chan string
	mu      sync.Mutex
	waiting int
}

// NewQueueCapture returns a capture with room for buffered lines.
func NewQueueCapture(buffered ...string) *QueueCapture {
	q := &QueueCapture{lines: make(chan string, 64)}
	for _, l := range buffered {
		q.lines <- l
	}
	return q
}

// Say queues an utterance.
func (q *QueueCapture) Say(text string) { q.lines <- text }

// CaptureUtterance implements ports.SpeechCapture.
func (q *QueueCapture) CaptureUtterance(ctx context.Context) (string, error) {
	q.mu.Lock()
	q.waiting++
	q.mu.Unlock()
	defer func() {
		q.mu.Lock()
		q.waiting--
		q.mu.Unlock()
	}()

	select {
	case l := <-q.lines:
		return l, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Waiting reports how many callers are blocked in CaptureUtterance.
func (q *QueueCapture) Waiting() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.waiting
}

// Utterance is one recorded Speak call.
type Utterance struct {
	Text    string
	VoiceID string
}

// RecordingSpeaker is a TextToSpeech that records what it was asked to say.
type RecordingSpeaker struct {
	mu     sync.Mutex
	spoken []Utterance
	Err    error
	Delay  time.Duration
}

// Speak implements ports.TextToSpeech.
func (s *RecordingSpeaker) Speak(ctx context.Context, text, voiceID string) error {
	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spoken = append(s.spoken, Utterance{Text: text, VoiceID: voiceID})
	return s.Err
}

// Spoken returns the recorded utterances.
func (s *RecordingSpeaker) Spoken() []Utterance {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Utterance, len(s.spoken))
	copy(out, s.spoken)
	return out
}

// StaticClassifier always answers Name, or Err when set.
type StaticClassifier struct {
	Name string
	Err  error

	mu    sync.Mutex
	calls int
}

// Classify implements ports.RoutingClassifier.
func (c *StaticClassifier) Classify(context.Context, string) (string, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.Name, c.Err
}

// Calls returns the number of Classify calls.
func (c *StaticClassifier) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// TranscriptRecorder is a TranscriptSink that keeps every entry.
type TranscriptRecorder struct {
	mu      sync.Mutex
	entries []domain.TranscriptEntry
}

// Publish implements ports.TranscriptSink.
func (r *TranscriptRecorder) Publish(e domain.TranscriptEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

// Entries returns the published entries.
func (r *TranscriptRecorder) Entries() []domain.TranscriptEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.TranscriptEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// RecordingMetrics is a MetricsCollector that sums values by metric name.
type RecordingMetrics struct {
	mu     sync.Mutex
	values map[string]float64
	labels map[string][]map[string]string
}

// NewRecordingMetrics returns an empty collector.
func NewRecordingMetrics() *RecordingMetrics {
	return &RecordingMetrics{values: map[string]float64{}, labels: map[string][]map[string]string{}}
}

func (m *RecordingMetrics) record(metric string, v float64, labels map[string]string, set bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if set {
		m.values[metric] = v
	} else {
		m.values[metric] += v
	}
	cp := make(map[string]string, len(labels))
	for k, val := range labels {
		cp[k] = val
	}
	m.labels[metric] = append(m.labels[metric], cp)
}

// RecordLatency implements ports.MetricsCollector.
func (m *RecordingMetrics) RecordLatency(op string, d time.Duration, labels map[string]string) {
	m.record(op, d.Seconds(), labels, false)
}

// RecordCounter implements ports.MetricsCollector.
func (m *RecordingMetrics) RecordCounter(metric string, v float64, labels map[string]string) {
	m.record(metric, v, labels, false)
}

// RecordGauge implements ports.MetricsCollector.
func (m *RecordingMetrics) RecordGauge(metric string, v float64, labels map[string]string) {
	m.record(metric, v, labels, true)
}

// RecordHistogram implements ports.MetricsCollector.
func (m *RecordingMetrics) RecordHistogram(metric string, v float64, labels map[string]string) {
	m.record(metric, v, labels, false)
}

// Value returns the summed (or last gauge) value of metric.
func (m *RecordingMetrics) Value(metric string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[metric]
}

// Labels returns the label sets recorded for metric.
func (m *RecordingMetrics) Labels(metric string) []map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]map[string]string(nil), m.labels[metric]...)
}

var (
	_ ports.SpeechCapture     = (*QueueCapture)(nil)
	_ ports.TextToSpeech      = (*RecordingSpeaker)(nil)
	_ ports.RoutingClassifier = (*StaticClassifier)(nil)
	_ ports.TranscriptSink    = (*TranscriptRecorder)(nil)
	_ ports.MetricsCollector  = (*RecordingMetrics)(nil)
)
