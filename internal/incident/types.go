package incident

import "time"

// Status describes the failure mode of an incident.
type Status string

const (
	StatusHealthy         Status = "healthy"
	StatusDatabaseFailure Status = "database_failure"
	StatusDatabaseLatency Status = "database_latency"
)

// Valid reports whether the status is one of the known failure modes.
func (s Status) Valid() bool {
	switch s {
	case StatusHealthy, StatusDatabaseFailure, StatusDatabaseLatency:
		return true
	}
	return false
}

// LogLevel classifies incident log lines.
type LogLevel string

const (
	LevelInfo    LogLevel = "info"
	LevelWarning LogLevel = "warning"
	LevelError   LogLevel = "error"
)

// Valid reports whether the level is known.
func (l LogLevel) Valid() bool {
	switch l {
	case LevelInfo, LevelWarning, LevelError:
		return true
	}
	return false
}

// Prefix renders the level the way the live log feed displays it.
func (l LogLevel) Prefix() string {
	switch l {
	case LevelError:
		return "[ERR]"
	case LevelWarning:
		return "[WRN]"
	default:
		return "[INF]"
	}
}

// Incident is a tracked outage. ResolvedBy records who closed it, e.g.
// "Dashboard" or "AI Agent".
type Incident struct {
	ID         string     `json:"id"`
	Status     Status     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy string     `json:"resolved_by,omitempty"`
}

// Resolved reports whether the incident has been closed.
func (i *Incident) Resolved() bool {
	return i.ResolvedAt != nil
}

// Log is a single diagnostic line attached to an incident.
type Log struct {
	ID         string    `json:"id"`
	IncidentID string    `json:"incident_id"`
	Timestamp  time.Time `json:"timestamp"`
	Level      LogLevel  `json:"level"`
	Message    string    `json:"message"`
}
