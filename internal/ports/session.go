package ports

import (
	"context"

	"github.com/ahrav/pitchpanel/internal/domain"
)

// SpeechCapture yields transcribed human utterances.
type SpeechCapture interface {
	// CaptureUtterance blocks until an utterance is available or ctx is
	// done. It returns "" when no speech was captured.
	CaptureUtterance(ctx context.Context) (string, error)
}

// CaptureResetter is implemented by captures that queue utterances. Reset
// discards anything queued so a new session does not consume speech from
// the previous one.
type CaptureResetter interface {
	Reset()
}

// RoutingClassifier picks the persona best suited to answer text.
type RoutingClassifier interface {
	// Classify returns a persona name. Callers must treat the result as
	// untrusted and resolve it against the registry.
	Classify(ctx context.Context, text string) (string, error)
}

// TextToSpeech plays text in the given voice. Callers never wait on it.
type TextToSpeech interface {
	Speak(ctx context.Context, text, voiceID string) error
}

// TranscriptSink receives every transcript entry as it is appended.
type TranscriptSink interface {
	Publish(entry domain.TranscriptEntry)
}

// TranscriptSinkFunc adapts a function to TranscriptSink.
type TranscriptSinkFunc func(domain.TranscriptEntry)

// Publish calls f(entry).
func (f TranscriptSinkFunc) Publish(entry domain.TranscriptEntry) { f(entry) }
