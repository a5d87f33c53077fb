package domain

import (
	"fmt"
	"strings"
	"time"
)

// Speaker labels that are not persona names.
const (
	SpeakerHuman  = "User"
	SpeakerSystem = "System"
)

// TranscriptEntry is one line of the live session record.
type TranscriptEntry struct {
	Speaker string    `json:"speaker"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

// Transcript is the ordered, append-only record of a session.
type Transcript []TranscriptEntry

// Render joins the entries as "Speaker: text" lines. The result is the
// pitch text handed to evaluation.
func (t Transcript) Render() string {
	var b strings.Builder
	for i, e := range t {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", e.Speaker, e.Text)
	}
	return b.String()
}

// SessionState holds the flags and transcript of one rehearsal session.
// It carries no locking of its own; the orchestrator owns synchronization.
type SessionState struct {
	Active        bool
	QnAInProgress bool
	Transcript    Transcript
}

// Reset clears both flags and drops the transcript.
func (s *SessionState) Reset() {
	s.Active = false
	s.QnAInProgress = false
	s.Transcript = nil
}

// Append adds an entry to the transcript and returns it.
func (s *SessionState) Append(speaker, text string, at time.Time) TranscriptEntry {
	e := TranscriptEntry{Speaker: speaker, Text: text, At: at}
	s.Transcript = append(s.Transcript, e)
	return e
}

// Snapshot returns a copy of the transcript that callers may keep.
func (s *SessionState) Snapshot() Transcript {
	out := make(Transcript, len(s.Transcript))
	copy(out, s.Transcript)
	return out
}
