package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

const (
	defaultHubCapacity = 256
	subscriberBuffer   = 64
)

// Hub keeps the most recent events in a ring buffer and fans them out to live
// subscribers. Slow subscribers miss events rather than block recording.
type Hub struct {
	mu     sync.RWMutex
	ring   []SecurityEvent
	next   int
	full   bool
	subs   map[int]chan SecurityEvent
	nextID int
}

func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = defaultHubCapacity
	}
	return &Hub{
		ring: make([]SecurityEvent, capacity),
		subs: make(map[int]chan SecurityEvent),
	}
}

func (h *Hub) Record(_ context.Context, ev SecurityEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ring[h.next] = ev
	h.next = (h.next + 1) % len(h.ring)
	if h.next == 0 {
		h.full = true
	}
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

// Ingest decodes a JSON event received from the bus and records it.
func (h *Hub) Ingest(data []byte) error {
	var ev SecurityEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return fmt.Errorf("decode security event: %w", err)
	}
	return h.Record(context.Background(), ev)
}

// Recent returns up to limit events, newest first.
func (h *Hub) Recent(limit int) []SecurityEvent {
	h.mu.RLock()
	defer h.mu.RUnlock()
	size := h.next
	if h.full {
		size = len(h.ring)
	}
	if limit <= 0 || limit > size {
		limit = size
	}
	out := make([]SecurityEvent, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (h.next - i + len(h.ring)) % len(h.ring)
		out = append(out, h.ring[idx])
	}
	return out
}

// Subscribe registers a live listener. The returned cancel func must be called
// once the listener is done; it closes the channel.
func (h *Hub) Subscribe() (<-chan SecurityEvent, func()) {
	ch := make(chan SecurityEvent, subscriberBuffer)
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}
