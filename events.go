package bridge

import "sync"

// eventBuffer is the per-subscriber channel capacity. A subscriber that
// falls this far behind starts losing events rather than blocking the
// store's request path.
const eventBuffer = 16

// EventHub is a small fan-out helper session stores can embed to satisfy
// the Subscribe contract. Emit never blocks.
type EventHub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan AuthEvent
}

func NewEventHub() *EventHub {
	return &EventHub{
		subs: map[int]chan AuthEvent{},
	}
}

// Subscribe registers a listener. The cancel function releases it and
// closes the channel.
func (h *EventHub) Subscribe() (<-chan AuthEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++

	ch := make(chan AuthEvent, eventBuffer)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub)
		}
	}

	return ch, cancel
}

// Emit delivers the event to every listener, dropping it for any
// listener whose buffer is full.
func (h *EventHub) Emit(event AuthEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subs {
		select {
		case sub <- event:
		default:
		}
	}
}
