package httpapi

import (
	"encoding/json"
	"net/http"
	"testing"
)

func TestIncidentLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	// Healthy to start.
	resp, body := env.do(t, http.MethodGet, "/api/incidents/current", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("current: status %d", resp.StatusCode)
	}
	var current struct {
		Status   string          `json:"status"`
		Incident json.RawMessage `json:"incident"`
	}
	if err := json.Unmarshal(body, &current); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if current.Status != "healthy" || string(current.Incident) != "null" {
		t.Fatalf("expected healthy/null, got %s", body)
	}

	// Open an incident.
	resp, body = env.do(t, http.MethodPost, "/api/incidents", map[string]string{
		"status": "database_latency",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: status %d, body %s", resp.StatusCode, body)
	}
	var inc struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &inc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if inc.ID == "" || inc.Status != "database_latency" {
		t.Fatalf("created incident %+v", inc)
	}
	if loc := resp.Header.Get("Location"); loc != "/api/incidents/"+inc.ID {
		t.Fatalf("Location = %q", loc)
	}

	// Append and list logs.
	resp, body = env.do(t, http.MethodPost, "/api/incidents/"+inc.ID+"/logs", map[string]string{
		"level": "warning", "message": "query latency above threshold",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("append log: status %d, body %s", resp.StatusCode, body)
	}
	resp, body = env.do(t, http.MethodGet, "/api/incidents/"+inc.ID+"/logs", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list logs: status %d", resp.StatusCode)
	}
	var feed struct {
		Logs []struct {
			Level   string `json:"level"`
			Message string `json:"message"`
		} `json:"logs"`
	}
	if err := json.Unmarshal(body, &feed); err != nil {
		t.Fatalf("unmarshal logs: %v", err)
	}
	if len(feed.Logs) != 1 || feed.Logs[0].Level != "warning" {
		t.Fatalf("logs = %+v", feed.Logs)
	}

	// Resolve it.
	resp, body = env.do(t, http.MethodPatch, "/api/incidents/"+inc.ID+"/resolve", map[string]string{
		"resolved_by": "oncall",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resolve: status %d, body %s", resp.StatusCode, body)
	}
	var resolved struct {
		ResolvedBy string `json:"resolved_by"`
	}
	if err := json.Unmarshal(body, &resolved); err != nil {
		t.Fatalf("unmarshal resolved: %v", err)
	}
	if resolved.ResolvedBy != "oncall" {
		t.Fatalf("resolved_by = %q", resolved.ResolvedBy)
	}

	// Back to healthy.
	resp, body = env.do(t, http.MethodGet, "/api/incidents/current", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("current after resolve: status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, &current); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if current.Status != "healthy" {
		t.Fatalf("status after resolve = %q", current.Status)
	}
}

func TestCreateIncidentRejectsUnknownStatus(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.do(t, http.MethodPost, "/api/incidents", map[string]string{
		"status": "on_fire",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", resp.StatusCode)
	}
}

func TestResolveUnknownIncidentIs404(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.do(t, http.MethodPatch, "/api/incidents/nope/resolve", map[string]string{
		"resolved_by": "oncall",
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d, want 404", resp.StatusCode)
	}
}

func TestChaosToggleRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)

	// Anonymous.
	resp, _ := env.do(t, http.MethodPost, "/api/chaos/toggle", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous toggle: status %d, want 401", resp.StatusCode)
	}

	// Authenticated but not an admin.
	env.login(t, "viewer@example.com", "correct horse battery")
	resp, _ = env.do(t, http.MethodPost, "/api/chaos/toggle", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("viewer toggle: status %d, want 403", resp.StatusCode)
	}
}

func TestChaosToggleFlipsIncidentState(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, "admin@example.com", "correct horse battery")

	resp, body := env.do(t, http.MethodPost, "/api/chaos/toggle", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("toggle on: status %d, body %s", resp.StatusCode, body)
	}
	var state struct {
		Active bool   `json:"active"`
		Mode   string `json:"mode"`
	}
	if err := json.Unmarshal(body, &state); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !state.Active || state.Mode != "database_failure" {
		t.Fatalf("after toggle on: %+v", state)
	}

	resp, body = env.do(t, http.MethodPost, "/api/chaos/toggle", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("toggle off: status %d, body %s", resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, &state); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if state.Active || state.Mode != "healthy" {
		t.Fatalf("after toggle off: %+v", state)
	}
}

func TestChaosToggleDisabledByConfig(t *testing.T) {
	env := newTestEnv(t, WithChaosEnabled(false))
	env.login(t, "admin@example.com", "correct horse battery")

	resp, _ := env.do(t, http.MethodPost, "/api/chaos/toggle", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status %d, want 403", resp.StatusCode)
	}
}
