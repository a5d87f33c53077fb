package transport

import (
	"sync"

	"github.com/google/uuid"

	"github.com/ahrav/pitchpanel/internal/domain"
	"github.com/ahrav/pitchpanel/internal/ports"
)

// TranscriptMessage is the wire form of a transcript entry.
type TranscriptMessage struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// Hub fans transcript entries out to websocket subscribers. Publish never
// blocks: a subscriber whose queue is full is dropped.
type Hub struct {
	buffer int

	mu   sync.Mutex
	subs map[uuid.UUID]chan TranscriptMessage
}

var _ ports.TranscriptSink = (*Hub)(nil)

// NewHub returns a hub that queues up to buffer messages per subscriber.
func NewHub(buffer int) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	return &Hub{buffer: buffer, subs: make(map[uuid.UUID]chan TranscriptMessage)}
}

// Subscribe registers a new subscriber. The channel is closed when the
// subscriber is dropped or unsubscribed.
func (h *Hub) Subscribe() (uuid.UUID, <-chan TranscriptMessage) {
	id := uuid.New()
	ch := make(chan TranscriptMessage, h.buffer)
	h.mu.Lock()
	h.subs[id] = ch
	h.mu.Unlock()
	return id, ch
}

// Unsubscribe removes id. It is a no-op for unknown or dropped ids.
func (h *Hub) Unsubscribe(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

// Publish implements ports.TranscriptSink.
func (h *Hub) Publish(e domain.TranscriptEntry) {
	msg := TranscriptMessage{Speaker: e.Speaker, Text: e.Text}
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		select {
		case ch <- msg:
		default:
			delete(h.subs, id)
			close(ch)
		}
	}
}

// Len returns the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
