// Package agent consumes the incident-response assistant as an opaque
// capability: create a conversation thread, hand it one message, stream back
// text chunks. The actual tool-calling integration lives outside this
// service; Demo stands in for it with scripted replies.
package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/carsonmellblom/IncidentCommander/internal/ids"
)

// ErrUnknownThread means the thread id was never created or has been evicted.
var ErrUnknownThread = errors.New("agent: unknown thread")

// Responder processes one message for a thread and streams back text chunks.
type Responder interface {
	CreateThread(ctx context.Context) (string, error)
	ProcessMessage(ctx context.Context, threadID, message string) (<-chan string, error)
}

const defaultThreadTTL = 30 * time.Minute

type threadState struct {
	createdAt time.Time
	lastSeen  time.Time
	messages  int
}

// Demo is a scripted Responder. Thread state is a keyed store with explicit
// TTL eviction, checked on every call, so idle conversations cannot
// accumulate without bound.
type Demo struct {
	mu      sync.Mutex
	threads map[string]*threadState
	ttl     time.Duration
	now     func() time.Time
}

// DemoOption configures Demo behavior.
type DemoOption func(*Demo)

// WithThreadTTL overrides how long an idle thread survives.
func WithThreadTTL(ttl time.Duration) DemoOption {
	return func(d *Demo) {
		if ttl > 0 {
			d.ttl = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) DemoOption {
	return func(d *Demo) {
		if fn != nil {
			d.now = fn
		}
	}
}

func NewDemo(opts ...DemoOption) *Demo {
	d := &Demo{
		threads: make(map[string]*threadState),
		ttl:     defaultThreadTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// CreateThread registers a new conversation thread.
func (d *Demo) CreateThread(context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now().UTC()
	d.evictLocked(now)
	id := ids.New()
	d.threads[id] = &threadState{createdAt: now, lastSeen: now}
	return id, nil
}

// ProcessMessage streams a scripted reply word by word. The returned channel
// is closed when the reply is complete or the context ends.
func (d *Demo) ProcessMessage(ctx context.Context, threadID, message string) (<-chan string, error) {
	d.mu.Lock()
	now := d.now().UTC()
	d.evictLocked(now)
	state, ok := d.threads[threadID]
	if !ok {
		d.mu.Unlock()
		return nil, ErrUnknownThread
	}
	state.lastSeen = now
	state.messages++
	d.mu.Unlock()

	reply := scriptedReply(message)
	out := make(chan string)
	go func() {
		defer close(out)
		for _, word := range strings.SplitAfter(reply, " ") {
			select {
			case out <- word:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// ThreadCount reports live threads after eviction.
func (d *Demo) ThreadCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.evictLocked(d.now().UTC())
	return len(d.threads)
}

func (d *Demo) evictLocked(now time.Time) {
	for id, state := range d.threads {
		if now.Sub(state.lastSeen) > d.ttl {
			delete(d.threads, id)
		}
	}
}

func scriptedReply(message string) string {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "status"), strings.Contains(lower, "incident"):
		return "Checking the incident timeline now. The most recent alerts point at the primary database node; I recommend reviewing the connection pool metrics before failing over."
	case strings.Contains(lower, "resolve"), strings.Contains(lower, "fix"):
		return "I can resolve the active incident once you confirm the database node is reachable again. Say the word and I will mark it resolved and post a closing log entry."
	default:
		return "I'm the incident response assistant. Ask me about the current incident status, recent log activity, or tell me to resolve an incident."
	}
}
