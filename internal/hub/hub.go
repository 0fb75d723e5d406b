package hub

import (
	"context"
	"sync"
	"time"
)

// Event is a single message on a live feed.
type Event struct {
	Kind      string    `json:"kind"`
	Thread    string    `json:"thread,omitempty"`
	Sender    string    `json:"sender,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Well-known event kinds.
const (
	KindLog         string = "log"
	KindAgentStatus string = "agent_status"
	KindAgentToken  string = "agent_token"
	KindAgentError  string = "agent_error"
	KindDone        string = "message_complete"
)

type subscriber struct {
	ch     chan Event
	thread string // empty subscribes to every event
}

// Hub fan-outs events to all active subscribers (SSE clients). Subscribers
// bound to a thread only receive that thread's events.
type Hub struct {
	mu   sync.RWMutex
	subs map[int]subscriber
	next int
}

// New initialises an empty hub.
func New() *Hub {
	return &Hub{subs: make(map[int]subscriber)}
}

// Subscribe registers a subscriber for every event. The channel is closed
// when the provided context ends.
func (h *Hub) Subscribe(ctx context.Context) <-chan Event {
	return h.subscribe(ctx, "")
}

// SubscribeThread registers a subscriber for a single thread's events.
func (h *Hub) SubscribeThread(ctx context.Context, thread string) <-chan Event {
	return h.subscribe(ctx, thread)
}

func (h *Hub) subscribe(ctx context.Context, thread string) <-chan Event {
	// Sized to hold a full streamed agent reply even if the receiver
	// stalls briefly.
	ch := make(chan Event, 64)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = subscriber{ch: ch, thread: thread}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, id)
		close(ch)
		h.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to matching subscribers.
func (h *Hub) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if sub.thread != "" && sub.thread != evt.Thread {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			// Drop when a subscriber is slow to avoid blocking.
		}
	}
}
