// Package speech holds text-only stand-ins for the audio collaborators:
// utterances are read as lines and speech is written to the log.
package speech

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/chainguard-dev/clog"

	"github.com/ahrav/pitchpanel/internal/ports"
)

// ConsoleCapture treats each line read from an io.Reader as one utterance.
// A single reader goroutine feeds every CaptureUtterance call, so a call
// abandoned through its context never loses a line.
type ConsoleCapture struct {
	lines chan string
	once  sync.Once
	src   io.Reader

	mu  sync.Mutex
	err error
}

var _ ports.SpeechCapture = (*ConsoleCapture)(nil)

// NewConsoleCapture reads utterances from r.
func NewConsoleCapture(r io.Reader) *ConsoleCapture {
	return &ConsoleCapture{lines: make(chan string), src: r}
}

func (c *ConsoleCapture) start() {
	c.once.Do(func() {
		go func() {
			sc := bufio.NewScanner(c.src)
			for sc.Scan() {
				c.lines <- strings.TrimSpace(sc.Text())
			}
			c.mu.Lock()
			c.err = sc.Err()
			if c.err == nil {
				c.err = io.EOF
			}
			c.mu.Unlock()
			close(c.lines)
		}()
	})
}

// CaptureUtterance returns the next line. Once the reader is exhausted it
// returns io.EOF, or the read error that stopped it.
func (c *ConsoleCapture) CaptureUtterance(ctx context.Context) (string, error) {
	c.start()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-c.lines:
		if !ok {
			c.mu.Lock()
			defer c.mu.Unlock()
			return "", fmt.Errorf("console capture: %w", c.err)
		}
		return line, nil
	}
}

// LogSpeaker implements ports.TextToSpeech by logging what would be spoken
// and, when Out is set, printing it as "[voice] text".
type LogSpeaker struct {
	Out io.Writer

	mu sync.Mutex
}

var _ ports.TextToSpeech = (*LogSpeaker)(nil)

// Speak records text for voiceID.
func (s *LogSpeaker) Speak(ctx context.Context, text, voiceID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	clog.FromContext(ctx).With("voice", voiceID, "chars", len(text)).Info("speaking")
	if s.Out == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.Out, "[%s] %s\n", voiceID, text)
	return err
}
