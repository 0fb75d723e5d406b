package hub

import (
	"context"
	"testing"
	"time"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	h := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := h.Subscribe(ctx)
	b := h.Subscribe(ctx)

	h.Publish(Event{Kind: KindLog, Message: "[ERR] database down"})

	for _, ch := range []<-chan Event{a, b} {
		select {
		case evt := <-ch:
			if evt.Message != "[ERR] database down" {
				t.Fatalf("unexpected event: %+v", evt)
			}
			if evt.Timestamp.IsZero() {
				t.Fatalf("expected timestamp to be stamped")
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber did not receive event")
		}
	}
}

func TestThreadSubscribersAreIsolated(t *testing.T) {
	h := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mine := h.SubscribeThread(ctx, "thread-1")
	other := h.SubscribeThread(ctx, "thread-2")

	h.Publish(Event{Kind: KindAgentToken, Thread: "thread-1", Message: "hello"})

	select {
	case evt := <-mine:
		if evt.Thread != "thread-1" {
			t.Fatalf("unexpected thread: %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatalf("thread subscriber did not receive its event")
	}

	select {
	case evt := <-other:
		t.Fatalf("foreign thread received event: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscriptionEndsWithContext(t *testing.T) {
	h := New()
	ctx, cancel := context.WithCancel(context.Background())

	ch := h.Subscribe(ctx)
	cancel()

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("channel was not closed after context cancellation")
		}
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	h := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.Subscribe(ctx) // never drained

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			h.Publish(Event{Kind: KindLog, Message: "flood"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Publish blocked on a slow subscriber")
	}
}
