package speech

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleCapture_ReadsLines(t *testing.T) {
	c := NewConsoleCapture(strings.NewReader("  my pitch  \n\nGoogle Judge, any questions?\n"))
	ctx := context.Background()

	got, err := c.CaptureUtterance(ctx)
	require.NoError(t, err)
	assert.Equal(t, "my pitch", got)

	got, err = c.CaptureUtterance(ctx)
	require.NoError(t, err)
	assert.Empty(t, got, "blank lines are empty utterances")

	got, err = c.CaptureUtterance(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Google Judge, any questions?", got)

	_, err = c.CaptureUtterance(ctx)
	assert.ErrorIs(t, err, io.EOF)
	_, err = c.CaptureUtterance(ctx)
	assert.ErrorIs(t, err, io.EOF, "exhaustion is sticky")
}

func TestConsoleCapture_HonoursContext(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	c := NewConsoleCapture(pr)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.CaptureUtterance(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The line written after the abandoned call is still delivered.
	go func() { _, _ = pw.Write([]byte("late answer\n")) }()
	got, err := c.CaptureUtterance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "late answer", got)
}

func TestConsoleCapture_ReadError(t *testing.T) {
	boom := errors.New("device unplugged")
	pr, pw := io.Pipe()
	c := NewConsoleCapture(pr)
	pw.CloseWithError(boom)

	_, err := c.CaptureUtterance(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestLogSpeaker(t *testing.T) {
	var buf bytes.Buffer
	s := &LogSpeaker{Out: &buf}

	require.NoError(t, s.Speak(context.Background(), "Tell me about your users.", "voice-rbc"))
	assert.Equal(t, "[voice-rbc] Tell me about your users.\n", buf.String())

	require.NoError(t, (&LogSpeaker{}).Speak(context.Background(), "quiet", "v"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Speak(ctx, "late", "v"), context.Canceled)
}
