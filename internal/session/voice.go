package session

import (
	"context"
	"sync"

	"github.com/chainguard-dev/clog"

	"github.com/ahrav/pitchpanel/internal/ports"
)

// DefaultVoiceBuffer is the queue length used when none is given.
const DefaultVoiceBuffer = 16

type speech struct {
	persona string
	text    string
	voiceID string
}

// VoiceDispatcher speaks judge messages on a background worker so the Q&A
// loop never waits on audio. Failures are logged and counted, never
// returned.
type VoiceDispatcher struct {
	tts     ports.TextToSpeech
	metrics ports.MetricsCollector
	ctx     context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	closed bool
	queue  chan speech
	done   chan struct{}
}

// NewVoiceDispatcher starts the worker. ctx carries the logger and bounds
// every Speak call; Close cancels it.
func NewVoiceDispatcher(ctx context.Context, tts ports.TextToSpeech, buffer int, metrics ports.MetricsCollector) *VoiceDispatcher {
	if buffer <= 0 {
		buffer = DefaultVoiceBuffer
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	ctx, cancel := context.WithCancel(ctx)
	d := &VoiceDispatcher{
		tts:     tts,
		metrics: metrics,
		ctx:     ctx,
		cancel:  cancel,
		queue:   make(chan speech, buffer),
		done:    make(chan struct{}),
	}
	go d.work()
	return d
}

// Dispatch queues text for speaking and reports whether it was accepted.
// It never blocks; a full queue or a closed dispatcher drops the message.
func (d *VoiceDispatcher) Dispatch(persona, text, voiceID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	select {
	case d.queue <- speech{persona: persona, text: text, voiceID: voiceID}:
		return true
	default:
		clog.FromContext(d.ctx).With("persona", persona).Warn("voice queue full, dropping message")
		d.metrics.RecordCounter(ports.MetricVoiceFailures, 1, map[string]string{"reason": "queue_full"})
		return false
	}
}

// Close stops accepting messages, cancels in-flight speech and waits for
// the worker to exit. It is safe to call more than once.
func (d *VoiceDispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.cancel()
	<-d.done
}

func (d *VoiceDispatcher) work() {
	defer close(d.done)
	log := clog.FromContext(d.ctx)
	for s := range d.queue {
		if d.ctx.Err() != nil {
			continue
		}
		if err := d.speak(s); err != nil {
			log.With("persona", s.persona, "error", err).Warn("text-to-speech failed")
			d.metrics.RecordCounter(ports.MetricVoiceFailures, 1, map[string]string{"reason": "speak"})
		}
	}
}

func (d *VoiceDispatcher) speak(s speech) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError{value: r}
		}
	}()
	return d.tts.Speak(d.ctx, s.text, s.voiceID)
}
