package incident

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("incident: not found")

// Store persists incidents and their log feeds.
type Store interface {
	// Current returns the most recent unresolved incident, ErrNotFound if
	// everything is healthy.
	Current(ctx context.Context) (*Incident, error)
	Create(ctx context.Context, inc *Incident) error
	Find(ctx context.Context, id string) (*Incident, error)
	Resolve(ctx context.Context, id, by string, at time.Time) (*Incident, error)

	// Logs returns the incident's log lines, newest first.
	Logs(ctx context.Context, incidentID string) ([]*Log, error)
	AddLog(ctx context.Context, entry *Log) error
}
