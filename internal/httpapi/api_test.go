package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/carsonmellblom/IncidentCommander/internal/agent"
	"github.com/carsonmellblom/IncidentCommander/internal/auth"
	"github.com/carsonmellblom/IncidentCommander/internal/hub"
	"github.com/carsonmellblom/IncidentCommander/internal/incident"
	"github.com/carsonmellblom/IncidentCommander/internal/obs"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	srv    *httptest.Server
	client *http.Client
	clock  *fakeClock
	users  *auth.MemoryStore
	hub    *hub.Hub
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	obs.Init()

	// The jar evaluates cookie expiry against the real clock, so the fake
	// clock starts at real time and only drifts forward from there.
	clock := &fakeClock{t: time.Now().UTC()}
	store := auth.NewMemoryStore()

	hash, err := auth.HashPassword("correct horse battery")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if err := store.Users(context.Background()).Create(context.Background(), &auth.User{
		ID:           "user-admin",
		Email:        "admin@example.com",
		Username:     "admin",
		PasswordHash: hash,
		Roles:        []string{"Admin"},
		CreatedAt:    clock.Now(),
	}); err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	if err := store.Users(context.Background()).Create(context.Background(), &auth.User{
		ID:           "user-viewer",
		Email:        "viewer@example.com",
		Username:     "viewer",
		PasswordHash: hash,
		Roles:        []string{"Viewer"},
		CreatedAt:    clock.Now(),
	}); err != nil {
		t.Fatalf("seed viewer: %v", err)
	}

	authSvc, err := auth.NewService(store,
		auth.WithSigningSecret("test-secret-material"),
		auth.WithClock(clock.Now),
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	incidents := incident.NewService(incident.NewMemoryStore(), incident.WithClock(clock.Now))
	events := hub.New()
	responder := agent.NewDemo(agent.WithClock(clock.Now))

	defaults := []Option{
		WithCookieSecure(false),
		WithChaosEnabled(true),
		WithRateLimit(1000, 1000),
	}
	api := New(authSvc, incidents, events, responder, ReadyProbe{}, "test", append(defaults, opts...)...)
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return &testEnv{
		srv:    srv,
		client: &http.Client{Jar: jar},
		clock:  clock,
		users:  store,
		hub:    events,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func (e *testEnv) login(t *testing.T, email, password string) {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: status %d, body %s", resp.StatusCode, body)
	}
}
