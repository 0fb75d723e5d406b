package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func seedUser(t *testing.T, store Store, email, password string, roles ...string) *User {
	t.Helper()
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	user := &User{
		Email:        email,
		Username:     "ops",
		PasswordHash: hash,
		Roles:        roles,
	}
	if err := store.Users(context.Background()).Create(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func TestLoginIssuesActivePair(t *testing.T) {
	store := NewMemoryStore()
	clock := newFakeClock()
	svc := newTestService(t, store, clock)
	user := seedUser(t, store, "ops@example.com", "hunter2-hunter2", "Admin")

	pair, got, err := svc.Login(context.Background(), "Ops@Example.com", "hunter2-hunter2", "10.0.0.9")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if got.ID != user.ID {
		t.Fatalf("unexpected user: %s", got.ID)
	}

	claims, err := svc.ParseAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("ParseAccessToken: %v", err)
	}
	if claims.Subject != user.ID || claims.Email != "ops@example.com" || !claims.HasRole("Admin") {
		t.Fatalf("claims do not match identity: %+v", claims)
	}

	record, _, err := store.RefreshTokens(context.Background()).GetByToken(context.Background(), pair.RefreshToken)
	if err != nil {
		t.Fatalf("GetByToken: %v", err)
	}
	if !record.IsActive(clock.Now()) {
		t.Fatalf("expected freshly issued refresh token to be active")
	}
	if record.CreatedByIP != "10.0.0.9" {
		t.Fatalf("creator ip not recorded: %q", record.CreatedByIP)
	}
	if !record.ExpiresAt.Equal(clock.Now().Add(defaultRefreshTTL)) {
		t.Fatalf("unexpected refresh expiry: %v", record.ExpiresAt)
	}
}

func TestLoginNeverDistinguishesFailureCause(t *testing.T) {
	store := NewMemoryStore()
	svc := newTestService(t, store, newFakeClock())
	seedUser(t, store, "ops@example.com", "hunter2-hunter2")

	if _, _, err := svc.Login(context.Background(), "ops@example.com", "wrong", "ip"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := svc.Login(context.Background(), "nobody@example.com", "hunter2-hunter2", "ip"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email: expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := svc.Login(context.Background(), "", "", "ip"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("empty input: expected ErrInvalidCredentials, got %v", err)
	}
}

func TestRefreshRotatesAndLinksReplacement(t *testing.T) {
	store := NewMemoryStore()
	clock := newFakeClock()
	svc := newTestService(t, store, clock)
	seedUser(t, store, "ops@example.com", "hunter2-hunter2", "Admin")

	first, _, err := svc.Login(context.Background(), "ops@example.com", "hunter2-hunter2", "10.0.0.1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	second, _, err := svc.Refresh(context.Background(), first.RefreshToken, "10.0.0.2")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatalf("rotation must mint a new token value")
	}

	old, _, err := store.RefreshTokens(context.Background()).GetByToken(context.Background(), first.RefreshToken)
	if err != nil {
		t.Fatalf("GetByToken: %v", err)
	}
	if old.IsActive(clock.Now()) {
		t.Fatalf("rotated-away token must be inactive immediately")
	}
	if old.ReplacedByToken != second.RefreshToken {
		t.Fatalf("replacement link missing: %q", old.ReplacedByToken)
	}
	if old.RevokedByIP != "10.0.0.2" {
		t.Fatalf("revoking ip not recorded: %q", old.RevokedByIP)
	}
}

func TestReplayRevokesSessionFamily(t *testing.T) {
	store := NewMemoryStore()
	clock := newFakeClock()
	svc := newTestService(t, store, clock)
	user := seedUser(t, store, "ops@example.com", "hunter2-hunter2")

	// Two independent sessions for the same user.
	sessionA, _, err := svc.Login(context.Background(), "ops@example.com", "hunter2-hunter2", "ip-a")
	if err != nil {
		t.Fatalf("Login A: %v", err)
	}
	sessionB, _, err := svc.Login(context.Background(), "ops@example.com", "hunter2-hunter2", "ip-b")
	if err != nil {
		t.Fatalf("Login B: %v", err)
	}

	rotated, _, err := svc.Refresh(context.Background(), sessionA.RefreshToken, "ip-a")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	// Replaying the superseded token is a theft signal.
	_, _, err = svc.Refresh(context.Background(), sessionA.RefreshToken, "attacker")
	if !errors.Is(err, ErrReuseDetected) {
		t.Fatalf("expected ErrReuseDetected, got %v", err)
	}
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("reuse must render as an invalid token externally")
	}

	active, err := store.RefreshTokens(context.Background()).GetActiveForUser(context.Background(), user.ID, clock.Now())
	if err != nil {
		t.Fatalf("GetActiveForUser: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected whole session family revoked, %d tokens still active", len(active))
	}

	// Every previously issued token is now rejected.
	for _, tok := range []string{rotated.RefreshToken, sessionB.RefreshToken} {
		if _, _, err := svc.Refresh(context.Background(), tok, "ip"); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken for revoked token, got %v", err)
		}
	}
}

func TestExpiredTokenDoesNotMassRevoke(t *testing.T) {
	store := NewMemoryStore()
	clock := newFakeClock()
	svc := newTestService(t, store, clock)
	user := seedUser(t, store, "ops@example.com", "hunter2-hunter2")

	stale, _, err := svc.Login(context.Background(), "ops@example.com", "hunter2-hunter2", "ip")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	clock.Advance(30 * time.Minute)
	fresh, _, err := svc.Login(context.Background(), "ops@example.com", "hunter2-hunter2", "ip")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	// Past the first token's expiry, before the second's.
	clock.Advance(40 * time.Minute)
	if _, _, err := svc.Refresh(context.Background(), stale.RefreshToken, "ip"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
	if _, _, err := svc.Refresh(context.Background(), stale.RefreshToken, "ip"); errors.Is(err, ErrReuseDetected) {
		t.Fatalf("expiry alone must not look like reuse")
	}

	active, err := store.RefreshTokens(context.Background()).GetActiveForUser(context.Background(), user.ID, clock.Now())
	if err != nil {
		t.Fatalf("GetActiveForUser: %v", err)
	}
	if len(active) != 1 || active[0].Token != fresh.RefreshToken {
		t.Fatalf("other sessions must survive an expired-token refresh attempt")
	}
}

func TestRevokeIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	clock := newFakeClock()
	svc := newTestService(t, store, clock)
	seedUser(t, store, "ops@example.com", "hunter2-hunter2")

	pair, _, err := svc.Login(context.Background(), "ops@example.com", "hunter2-hunter2", "ip")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := svc.Revoke(context.Background(), pair.RefreshToken, "ip"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	record, _, err := store.RefreshTokens(context.Background()).GetByToken(context.Background(), pair.RefreshToken)
	if err != nil {
		t.Fatalf("GetByToken: %v", err)
	}
	if record.RevokedAt == nil {
		t.Fatalf("expected token revoked")
	}
	firstRevokedAt := *record.RevokedAt

	clock.Advance(time.Minute)
	if err := svc.Revoke(context.Background(), pair.RefreshToken, "other-ip"); err != nil {
		t.Fatalf("second Revoke must be a no-op, got %v", err)
	}
	record, _, _ = store.RefreshTokens(context.Background()).GetByToken(context.Background(), pair.RefreshToken)
	if !record.RevokedAt.Equal(firstRevokedAt) || record.RevokedByIP != "ip" {
		t.Fatalf("second Revoke must not mutate state")
	}

	if err := svc.Revoke(context.Background(), "no-such-token", "ip"); err != nil {
		t.Fatalf("revoking an unknown token must be a no-op, got %v", err)
	}
}

// gateStore forces two concurrent Refresh calls to both read the presented
// token before either commits its rotation, the worst-case benign race.
type gateStore struct {
	inner Store
	gate  *sync.WaitGroup
}

func (g *gateStore) Users(ctx context.Context) UserStore { return g.inner.Users(ctx) }

func (g *gateStore) RefreshTokens(ctx context.Context) RefreshTokenStore {
	return &gateTokenStore{RefreshTokenStore: g.inner.RefreshTokens(ctx), gate: g.gate}
}

type gateTokenStore struct {
	RefreshTokenStore
	gate *sync.WaitGroup
}

func (g *gateTokenStore) GetByToken(ctx context.Context, token string) (*RefreshToken, *User, error) {
	record, user, err := g.RefreshTokenStore.GetByToken(ctx, token)
	g.gate.Done()
	g.gate.Wait()
	return record, user, err
}

func TestConcurrentRotationHasSingleWinner(t *testing.T) {
	mem := NewMemoryStore()
	clock := newFakeClock()

	login := newTestService(t, mem, clock)
	user := seedUser(t, mem, "ops@example.com", "hunter2-hunter2")
	pair, _, err := login.Login(context.Background(), "ops@example.com", "hunter2-hunter2", "ip")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	var gate sync.WaitGroup
	gate.Add(2)
	svc := newTestService(t, &gateStore{inner: mem, gate: &gate}, clock)

	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, _, err := svc.Refresh(context.Background(), pair.RefreshToken, "ip")
			results <- err
		}()
	}

	var wins, losses int
	for i := 0; i < 2; i++ {
		err := <-results
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrReuseDetected):
			t.Fatalf("benign race must not trigger reuse detection")
		case errors.Is(err, ErrInvalidToken):
			losses++
		default:
			t.Fatalf("unexpected refresh error: %v", err)
		}
	}
	if wins != 1 || losses != 1 {
		t.Fatalf("expected one winner and one loser, got %d/%d", wins, losses)
	}

	active, err := mem.RefreshTokens(context.Background()).GetActiveForUser(context.Background(), user.ID, clock.Now())
	if err != nil {
		t.Fatalf("GetActiveForUser: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected the winner's replacement to remain active, got %d", len(active))
	}
}
