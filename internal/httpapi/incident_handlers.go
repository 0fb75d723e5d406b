package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/carsonmellblom/IncidentCommander/internal/audit"
	"github.com/carsonmellblom/IncidentCommander/internal/hub"
	"github.com/carsonmellblom/IncidentCommander/internal/incident"
)

type createIncidentRequest struct {
	Status string `json:"status"`
}

type resolveIncidentRequest struct {
	ResolvedBy string `json:"resolved_by"`
}

type appendLogRequest struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// POST /api/incidents
func (a *API) handleIncidents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req createIncidentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	inc, err := a.incidents.Open(r.Context(), incident.Status(req.Status))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	w.Header().Set("Location", "/api/incidents/"+inc.ID)
	writeJSON(w, http.StatusCreated, inc)
}

// GET /api/incidents/current
func (a *API) handleIncidentCurrent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	inc, err := a.incidents.Current(r.Context())
	if errors.Is(err, incident.ErrNotFound) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":   string(incident.StatusHealthy),
			"incident": nil,
		})
		return
	}
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "could not load incident")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   string(inc.Status),
		"incident": inc,
	})
}

// handleIncidentResource dispatches /api/incidents/{id}/resolve and
// /api/incidents/{id}/logs.
func (a *API) handleIncidentResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/incidents/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" {
		writeError(w, r, http.StatusNotFound, "not found")
		return
	}
	id, action := parts[0], parts[1]

	switch action {
	case "resolve":
		if r.Method != http.MethodPatch {
			methodNotAllowed(w, r, http.MethodPatch)
			return
		}
		a.resolveIncident(w, r, id)
	case "logs":
		switch r.Method {
		case http.MethodGet:
			a.listIncidentLogs(w, r, id)
		case http.MethodPost:
			a.appendIncidentLog(w, r, id)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		}
	default:
		writeError(w, r, http.StatusNotFound, "not found")
	}
}

func (a *API) resolveIncident(w http.ResponseWriter, r *http.Request, id string) {
	var req resolveIncidentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.ResolvedBy == "" {
		req.ResolvedBy = "Dashboard"
	}
	inc, err := a.incidents.Resolve(r.Context(), id, req.ResolvedBy)
	if err != nil {
		if errors.Is(err, incident.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "incident not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "could not resolve incident")
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

func (a *API) listIncidentLogs(w http.ResponseWriter, r *http.Request, id string) {
	logs, err := a.incidents.Logs(r.Context(), id)
	if err != nil {
		if errors.Is(err, incident.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "incident not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "could not load logs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (a *API) appendIncidentLog(w http.ResponseWriter, r *http.Request, id string) {
	var req appendLogRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	entry, err := a.incidents.Append(r.Context(), id, incident.LogLevel(req.Level), req.Message)
	if err != nil {
		if errors.Is(err, incident.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "incident not found")
			return
		}
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	a.events.Publish(hub.Event{
		Kind:    hub.KindLog,
		Sender:  "System",
		Message: entry.Level.Prefix() + " " + entry.Message,
	})
	writeJSON(w, http.StatusCreated, entry)
}

// POST /api/chaos/toggle
func (a *API) handleChaosToggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.requireRole(w, r, RoleAdmin) {
		return
	}
	if !a.chaosEnabled {
		writeError(w, r, http.StatusForbidden, "chaos controls are disabled")
		return
	}
	res, err := a.incidents.Toggle(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "could not toggle chaos")
		return
	}
	audit.LogEvent(r.Context(), "chaos.toggle", map[string]any{
		"active": res.Active,
		"mode":   string(res.Mode),
	})
	if res.Entry != nil {
		a.events.Publish(hub.Event{
			Kind:    hub.KindLog,
			Sender:  "System",
			Message: res.Entry.Level.Prefix() + " " + res.Entry.Message,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"active": res.Active,
		"mode":   string(res.Mode),
	})
}

// GET /api/chaos/status
func (a *API) handleChaosStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.requireRole(w, r, RoleAdmin) {
		return
	}
	inc, err := a.incidents.Current(r.Context())
	if err != nil && !errors.Is(err, incident.ErrNotFound) {
		writeError(w, r, http.StatusInternalServerError, "could not load status")
		return
	}
	active := inc != nil
	mode := incident.StatusHealthy
	if active {
		mode = inc.Status
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled": a.chaosEnabled,
		"active":  active,
		"mode":    string(mode),
	})
}
