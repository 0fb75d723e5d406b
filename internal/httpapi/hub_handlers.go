package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/carsonmellblom/IncidentCommander/internal/agent"
	"github.com/carsonmellblom/IncidentCommander/internal/hub"
)

// GET /hubs/incident
//
// Streams the live incident log feed as server-sent events. EventSource
// clients authenticate with the access_token query parameter, which only
// hub paths accept.
func (a *API) handleIncidentHub(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.requireRole(w, r, RoleAdmin) {
		return
	}
	a.streamEvents(w, r, a.events.Subscribe(r.Context()))
}

// GET /hubs/chat?thread={id}
func (a *API) handleChatHub(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.requireRole(w, r, RoleAdmin) {
		return
	}
	thread := r.URL.Query().Get("thread")
	if thread == "" {
		writeError(w, r, http.StatusBadRequest, "thread is required")
		return
	}
	a.streamEvents(w, r, a.events.SubscribeThread(r.Context(), thread))
}

func (a *API) streamEvents(w http.ResponseWriter, r *http.Request, events <-chan hub.Event) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// Initial comment so proxies and EventSource see an open stream.
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	for evt := range events {
		payload, err := json.Marshal(evt)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}
}

// POST /hubs/chat/threads
func (a *API) handleChatThreads(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.requireRole(w, r, RoleAdmin) {
		return
	}
	thread, err := a.responder.CreateThread(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "could not create thread")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"thread_id": thread})
}

type chatMessageRequest struct {
	ThreadID string `json:"thread_id"`
	Message  string `json:"message"`
}

// POST /hubs/chat/messages
//
// Feeds a user message to the responder and relays the reply onto the
// thread's event stream token by token. The request returns once the reply
// is fully published.
func (a *API) handleChatMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.requireRole(w, r, RoleAdmin) {
		return
	}
	var req chatMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.ThreadID == "" || req.Message == "" {
		writeError(w, r, http.StatusBadRequest, "thread_id and message are required")
		return
	}

	a.events.Publish(hub.Event{
		Kind:    hub.KindAgentStatus,
		Thread:  req.ThreadID,
		Sender:  "Commander",
		Message: "Thinking...",
	})

	tokens, err := a.responder.ProcessMessage(r.Context(), req.ThreadID, req.Message)
	if err != nil {
		a.events.Publish(hub.Event{
			Kind:    hub.KindAgentError,
			Thread:  req.ThreadID,
			Sender:  "Commander",
			Message: "The assistant is unavailable.",
		})
		if errors.Is(err, agent.ErrUnknownThread) {
			writeError(w, r, http.StatusNotFound, "unknown thread")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "could not process message")
		return
	}

	for tok := range tokens {
		a.events.Publish(hub.Event{
			Kind:    hub.KindAgentToken,
			Thread:  req.ThreadID,
			Sender:  "Commander",
			Message: tok,
		})
	}
	a.events.Publish(hub.Event{
		Kind:   hub.KindDone,
		Thread: req.ThreadID,
		Sender: "Commander",
	})
	a.events.Publish(hub.Event{
		Kind:    hub.KindAgentStatus,
		Thread:  req.ThreadID,
		Sender:  "Commander",
		Message: "Idle",
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"message": "reply streamed"})
}
