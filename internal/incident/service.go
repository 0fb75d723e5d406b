package incident

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Canned demo content used by the chaos toggle.
const (
	chaosStartMessage = "CRITICAL: Could not connect to primary database node at 10.0.0.5"
	chaosStopMessage  = "Manual override: Chaos stopped."
	chaosResolvedBy   = "Dashboard"
)

// Service implements the incident workflows over a Store.
type Service struct {
	store Store
	now   func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

func NewService(store Store, opts ...ServiceOption) *Service {
	svc := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Current returns the active incident, or ErrNotFound when healthy.
func (s *Service) Current(ctx context.Context) (*Incident, error) {
	return s.store.Current(ctx)
}

// Open creates a new incident in the given failure mode.
func (s *Service) Open(ctx context.Context, status Status) (*Incident, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("incident: unknown status %q", status)
	}
	inc := &Incident{Status: status, CreatedAt: s.now().UTC()}
	if err := s.store.Create(ctx, inc); err != nil {
		return nil, err
	}
	return inc, nil
}

// Resolve closes the incident and records who closed it.
func (s *Service) Resolve(ctx context.Context, id, by string) (*Incident, error) {
	if strings.TrimSpace(by) == "" {
		return nil, errors.New("incident: resolved_by is required")
	}
	return s.store.Resolve(ctx, id, by, s.now().UTC())
}

// Logs returns the incident's log feed, newest first.
func (s *Service) Logs(ctx context.Context, id string) ([]*Log, error) {
	return s.store.Logs(ctx, id)
}

// Append attaches a log line to the incident.
func (s *Service) Append(ctx context.Context, id string, level LogLevel, message string) (*Log, error) {
	if !level.Valid() {
		return nil, fmt.Errorf("incident: unknown log level %q", level)
	}
	if strings.TrimSpace(message) == "" {
		return nil, errors.New("incident: message is required")
	}
	entry := &Log{IncidentID: id, Timestamp: s.now().UTC(), Level: level, Message: message}
	if err := s.store.AddLog(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// ToggleResult reports the state after a chaos toggle, with the log entry
// that should be broadcast on the live feed.
type ToggleResult struct {
	Active bool
	Mode   Status
	Entry  *Log
}

// Toggle flips the demo chaos state: it resolves the active incident if one
// exists, otherwise it opens a database-failure incident with its first log
// line.
func (s *Service) Toggle(ctx context.Context) (*ToggleResult, error) {
	active, err := s.store.Current(ctx)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if active != nil {
		if _, err := s.Resolve(ctx, active.ID, chaosResolvedBy); err != nil {
			return nil, err
		}
		entry, err := s.Append(ctx, active.ID, LevelInfo, chaosStopMessage)
		if err != nil {
			return nil, err
		}
		return &ToggleResult{Active: false, Mode: StatusHealthy, Entry: entry}, nil
	}

	inc, err := s.Open(ctx, StatusDatabaseFailure)
	if err != nil {
		return nil, err
	}
	entry, err := s.Append(ctx, inc.ID, LevelError, chaosStartMessage)
	if err != nil {
		return nil, err
	}
	return &ToggleResult{Active: true, Mode: inc.Status, Entry: entry}, nil
}
