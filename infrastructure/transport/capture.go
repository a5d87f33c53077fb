package transport

import (
	"context"
	"strings"

	"github.com/ahrav/pitchpanel/internal/ports"
)

// SocketCapture receives utterances transcribed in the browser and hands
// them to the session one at a time.
type SocketCapture struct {
	utterances chan string
}

var (
	_ ports.SpeechCapture   = (*SocketCapture)(nil)
	_ ports.CaptureResetter = (*SocketCapture)(nil)
)

// NewSocketCapture queues up to buffer pending utterances.
func NewSocketCapture(buffer int) *SocketCapture {
	if buffer < 1 {
		buffer = 1
	}
	return &SocketCapture{utterances: make(chan string, buffer)}
}

// Submit queues text. It reports false when the queue is full and the
// utterance was dropped.
func (s *SocketCapture) Submit(text string) bool {
	select {
	case s.utterances <- strings.TrimSpace(text):
		return true
	default:
		return false
	}
}

// CaptureUtterance implements ports.SpeechCapture.
func (s *SocketCapture) CaptureUtterance(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case text := <-s.utterances:
		return text, nil
	}
}

// Reset drops every queued utterance.
func (s *SocketCapture) Reset() {
	for {
		select {
		case <-s.utterances:
		default:
			return
		}
	}
}
