package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/carsonmellblom/IncidentCommander/internal/hub"
)

func TestChatMessageStreamsReplyToThread(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, "admin@example.com", "correct horse battery")

	resp, body := env.do(t, http.MethodPost, "/hubs/chat/threads", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create thread: status %d, body %s", resp.StatusCode, body)
	}
	var created struct {
		ThreadID string `json:"thread_id"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if created.ThreadID == "" {
		t.Fatalf("empty thread id")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := env.hub.SubscribeThread(ctx, created.ThreadID)

	collected := make(chan []hub.Event, 1)
	go func() {
		var got []hub.Event
		for evt := range events {
			got = append(got, evt)
			if evt.Kind == hub.KindDone {
				break
			}
		}
		collected <- got
	}()

	resp, body = env.do(t, http.MethodPost, "/hubs/chat/messages", map[string]string{
		"thread_id": created.ThreadID,
		"message":   "what is the incident status?",
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("post message: status %d, body %s", resp.StatusCode, body)
	}

	var got []hub.Event
	select {
	case got = <-collected:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for stream")
	}

	if got[0].Kind != hub.KindAgentStatus {
		t.Fatalf("first event kind = %q, want agent_status", got[0].Kind)
	}
	var reply strings.Builder
	sawTokens := false
	for _, evt := range got {
		if evt.Kind == hub.KindAgentToken {
			sawTokens = true
			reply.WriteString(evt.Message)
		}
	}
	if !sawTokens {
		t.Fatalf("no token events in %d events", len(got))
	}
	if reply.Len() == 0 {
		t.Fatalf("empty assembled reply")
	}
	if got[len(got)-1].Kind != hub.KindDone {
		t.Fatalf("last collected event kind = %q, want message_complete", got[len(got)-1].Kind)
	}
}

func TestChatMessageUnknownThreadIs404(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, "admin@example.com", "correct horse battery")

	resp, _ := env.do(t, http.MethodPost, "/hubs/chat/messages", map[string]string{
		"thread_id": "no-such-thread",
		"message":   "hello",
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d, want 404", resp.StatusCode)
	}
}

func TestChatEndpointsRequireAdmin(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, "viewer@example.com", "correct horse battery")

	resp, _ := env.do(t, http.MethodPost, "/hubs/chat/threads", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("threads as viewer: status %d, want 403", resp.StatusCode)
	}
}

func TestAppendLogBroadcastsToIncidentFeed(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/incidents", map[string]string{
		"status": "database_failure",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: status %d, body %s", resp.StatusCode, body)
	}
	var inc struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &inc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := env.hub.Subscribe(ctx)

	resp, body = env.do(t, http.MethodPost, "/api/incidents/"+inc.ID+"/logs", map[string]string{
		"level": "error", "message": "connection pool exhausted",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("append: status %d, body %s", resp.StatusCode, body)
	}

	select {
	case evt := <-events:
		if evt.Kind != hub.KindLog {
			t.Fatalf("event kind = %q, want log", evt.Kind)
		}
		if evt.Message != "[ERR] connection pool exhausted" {
			t.Fatalf("event message = %q", evt.Message)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no event on incident feed")
	}
}
