package session

import (
	"sync"

	"github.com/promptforge/enhancer-api/internal/models"
)

// Hub fans session events out to stream subscribers. Slow subscribers are
// skipped rather than blocking the state machine.
type Hub struct {
	mu     sync.Mutex
	subs   map[chan models.SessionEvent]struct{}
	closed bool
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		subs: make(map[chan models.SessionEvent]struct{}),
	}
}

// Subscribe registers a new listener and returns its channel plus a cancel
// function. Cancel is safe to call more than once.
func (h *Hub) Subscribe() (<-chan models.SessionEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan models.SessionEvent, 16)
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[ch]; ok {
				delete(h.subs, ch)
				close(ch)
			}
		})
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber with room in its buffer
func (h *Hub) Publish(event models.SessionEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for ch := range h.subs {
		select {
		case ch <- event:
		default:
			// Subscriber buffer full; drop rather than stall the session.
		}
	}
}

// Close drops all subscribers. Used when a session is evicted.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}
