// Package httpapi exposes the incident dashboard API over HTTP: auth with
// cookie-carried tokens, incident lifecycle endpoints, chaos controls, and
// the SSE hubs that stream logs and agent replies to the browser.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"strings"

	"github.com/carsonmellblom/IncidentCommander/internal/agent"
	"github.com/carsonmellblom/IncidentCommander/internal/auth"
	"github.com/carsonmellblom/IncidentCommander/internal/hub"
	"github.com/carsonmellblom/IncidentCommander/internal/incident"
	"github.com/carsonmellblom/IncidentCommander/internal/obs"
)

// RoleAdmin guards the chaos controls and the streaming hubs.
const RoleAdmin = "Admin"

// ReadyProbe reports whether downstream dependencies can serve traffic.
// A nil DB means the API runs on in-memory state and is always ready.
type ReadyProbe struct {
	DB *sql.DB
}

func (p ReadyProbe) Check(ctx context.Context) error {
	if p.DB == nil {
		return nil
	}
	return p.DB.PingContext(ctx)
}

type API struct {
	mux *http.ServeMux

	auth      *auth.Service
	incidents *incident.Service
	events    *hub.Hub
	responder agent.Responder

	probe   ReadyProbe
	version string

	corsOrigin   string
	cookieSecure bool
	chaosEnabled bool
	rateBurst    int
	ratePerSec   int
}

type Option func(*API)

func WithCORSOrigin(origin string) Option {
	return func(a *API) { a.corsOrigin = origin }
}

func WithCookieSecure(secure bool) Option {
	return func(a *API) { a.cookieSecure = secure }
}

func WithChaosEnabled(enabled bool) Option {
	return func(a *API) { a.chaosEnabled = enabled }
}

func WithRateLimit(burst, perSecond int) Option {
	return func(a *API) {
		a.rateBurst = burst
		a.ratePerSec = perSecond
	}
}

func New(authSvc *auth.Service, incidents *incident.Service, events *hub.Hub, responder agent.Responder, probe ReadyProbe, version string, opts ...Option) *API {
	a := &API{
		mux:          http.NewServeMux(),
		auth:         authSvc,
		incidents:    incidents,
		events:       events,
		responder:    responder,
		probe:        probe,
		version:      version,
		corsOrigin:   "http://localhost:5173",
		cookieSecure: true,
		rateBurst:    50,
		ratePerSec:   25,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.routes()
	return a
}

func (a *API) routes() {
	a.mux.HandleFunc("/healthz", a.handleHealthz)
	a.mux.HandleFunc("/readyz", a.handleReadyz)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/api/auth/login", a.handleLogin)
	a.mux.HandleFunc("/api/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/api/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/api/auth/me", a.handleMe)

	a.mux.HandleFunc("/api/incidents", a.handleIncidents)
	a.mux.HandleFunc("/api/incidents/current", a.handleIncidentCurrent)
	a.mux.HandleFunc("/api/incidents/", a.handleIncidentResource)

	a.mux.HandleFunc("/api/chaos/toggle", a.handleChaosToggle)
	a.mux.HandleFunc("/api/chaos/status", a.handleChaosStatus)

	a.mux.HandleFunc("/hubs/incident", a.handleIncidentHub)
	a.mux.HandleFunc("/hubs/chat", a.handleChatHub)
	a.mux.HandleFunc("/hubs/chat/threads", a.handleChatThreads)
	a.mux.HandleFunc("/hubs/chat/messages", a.handleChatMessages)
}

// Handler assembles the middleware chain around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = a.cors(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": a.version})
}

func (a *API) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if err := a.probe.Check(r.Context()); err != nil {
		writeError(w, r, http.StatusServiceUnavailable, "not ready")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// withAuth validates the access token for protected paths and stashes the
// claims in the request context. Validity is purely cryptographic plus the
// clock: no store round-trip happens here.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.publicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		token := requestAccessToken(r)
		if token == "" {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}
		claims, err := a.auth.Authenticate(token)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
			writeError(w, r, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithClaims(r.Context(), claims)))
	})
}

// publicPath lists what is reachable without a token. Incident reads and
// writes stay open so the ops tooling can poll them without a session.
func (a *API) publicPath(path string) bool {
	switch path {
	case "/healthz", "/readyz", "/metrics", "/api/auth/login", "/api/auth/refresh":
		return true
	}
	return path == "/api/incidents" || strings.HasPrefix(path, "/api/incidents/")
}

// requireRole enforces role membership for handlers behind withAuth.
func (a *API) requireRole(w http.ResponseWriter, r *http.Request, role string) bool {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return false
	}
	if !claims.HasRole(role) {
		writeError(w, r, http.StatusForbidden, "insufficient role")
		return false
	}
	return true
}
