// Package audit records security-relevant events (logins, token rotations,
// chaos toggles) as JSON lines on the shared logger, enriched with the
// request id and the acting user when the context carries them.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/carsonmellblom/IncidentCommander/internal/auth"
	"github.com/carsonmellblom/IncidentCommander/internal/obs"
)

type requestIDKey struct{}

// WithRequestID tags the context so subsequent audit entries carry the
// request identifier.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

type entry struct {
	TS        string         `json:"ts"`
	Type      string         `json:"type"`
	Event     string         `json:"event"`
	RequestID string         `json:"request_id,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	Fields    map[string]any `json:"fields"`
}

// LogEvent writes one audit entry. The event name is required; fields are
// copied so callers may reuse their map.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}

	e := entry{
		TS:     time.Now().UTC().Format(time.RFC3339Nano),
		Type:   "audit",
		Event:  event,
		Fields: make(map[string]any, len(fields)),
	}
	for k, v := range fields {
		e.Fields[k] = v
	}
	if rid, ok := ctx.Value(requestIDKey{}).(string); ok {
		e.RequestID = rid
	}
	if claims, ok := auth.ClaimsFromContext(ctx); ok {
		e.UserID = claims.Subject
	}

	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}
