package incident

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/carsonmellblom/IncidentCommander/internal/ids"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore implements Store in process memory for demo mode and tests.
type MemoryStore struct {
	mu        sync.Mutex
	incidents map[string]*Incident
	logs      map[string][]*Log // keyed by incident id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		incidents: make(map[string]*Incident),
		logs:      make(map[string][]*Log),
	}
}

func (s *MemoryStore) Current(context.Context) (*Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *Incident
	for _, inc := range s.incidents {
		if inc.Resolved() {
			continue
		}
		if latest == nil || inc.CreatedAt.After(latest.CreatedAt) {
			latest = inc
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *MemoryStore) Create(_ context.Context, inc *Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inc.ID == "" {
		inc.ID = ids.New()
	}
	if inc.CreatedAt.IsZero() {
		inc.CreatedAt = time.Now().UTC()
	}
	cp := *inc
	s.incidents[inc.ID] = &cp
	return nil
}

func (s *MemoryStore) Find(_ context.Context, id string) (*Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inc, ok := s.incidents[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *inc
	return &cp, nil
}

func (s *MemoryStore) Resolve(_ context.Context, id, by string, at time.Time) (*Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inc, ok := s.incidents[id]
	if !ok {
		return nil, ErrNotFound
	}
	resolved := at
	inc.ResolvedAt = &resolved
	inc.ResolvedBy = by
	cp := *inc
	return &cp, nil
}

func (s *MemoryStore) Logs(_ context.Context, incidentID string) ([]*Log, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.incidents[incidentID]; !ok {
		return nil, ErrNotFound
	}
	entries := s.logs[incidentID]
	out := make([]*Log, len(entries))
	for i, entry := range entries {
		cp := *entry
		out[i] = &cp
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func (s *MemoryStore) AddLog(_ context.Context, entry *Log) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.incidents[entry.IncidentID]; !ok {
		return ErrNotFound
	}
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	cp := *entry
	s.logs[entry.IncidentID] = append(s.logs[entry.IncidentID], &cp)
	return nil
}
