package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/carsonmellblom/IncidentCommander/internal/ids"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore implements Store without external dependencies. It backs demo
// mode when no database is configured, and the test suites.
type MemoryStore struct {
	mu     sync.Mutex
	users  map[string]*User         // keyed by id
	emails map[string]string        // lower-cased email -> id
	tokens map[string]*RefreshToken // keyed by token value
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:  make(map[string]*User),
		emails: make(map[string]string),
		tokens: make(map[string]*RefreshToken),
	}
}

func (s *MemoryStore) Users(context.Context) UserStore                 { return (*memUserStore)(s) }
func (s *MemoryStore) RefreshTokens(context.Context) RefreshTokenStore { return (*memTokenStore)(s) }

type memUserStore MemoryStore

func (s *memUserStore) Create(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(u.Email)
	if _, ok := s.emails[email]; ok {
		return ErrAlreadyExists
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	cp := *u
	s.users[u.ID] = &cp
	s.emails[email] = u.ID
	return nil
}

func (s *memUserStore) Find(_ context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memUserStore) FindByEmail(_ context.Context, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.emails[strings.ToLower(email)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.users[id]
	return &cp, nil
}

type memTokenStore MemoryStore

func (s *memTokenStore) Insert(_ context.Context, tok *RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[tok.Token]; ok {
		return ErrAlreadyExists
	}
	cp := *tok
	s.tokens[tok.Token] = &cp
	return nil
}

func (s *memTokenStore) GetByToken(_ context.Context, token string) (*RefreshToken, *User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[token]
	if !ok {
		return nil, nil, ErrNotFound
	}
	user, ok := s.users[tok.UserID]
	if !ok {
		return nil, nil, ErrNotFound
	}
	tcp := *tok
	ucp := *user
	return &tcp, &ucp, nil
}

func (s *memTokenStore) GetActiveForUser(_ context.Context, userID string, now time.Time) ([]*RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*RefreshToken
	for _, tok := range s.tokens {
		if tok.UserID == userID && tok.IsActive(now) {
			cp := *tok
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memTokenStore) Rotate(_ context.Context, old *RefreshToken, next *RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.tokens[old.Token]
	if !ok {
		return ErrNotFound
	}
	// Conditional revoke: a concurrent rotation that already revoked the
	// token wins; the loser sees ErrTokenRotated and nothing is inserted.
	if current.RevokedAt != nil {
		return ErrTokenRotated
	}
	current.RevokedAt = old.RevokedAt
	current.RevokedByIP = old.RevokedByIP
	current.ReplacedByToken = old.ReplacedByToken
	cp := *next
	s.tokens[next.Token] = &cp
	return nil
}

func (s *memTokenStore) Revoke(_ context.Context, token, ip string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[token]
	if !ok || !tok.IsActive(at) {
		return nil
	}
	revoked := at
	tok.RevokedAt = &revoked
	tok.RevokedByIP = ip
	return nil
}

func (s *memTokenStore) RevokeAllForUser(_ context.Context, userID, ip string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tok := range s.tokens {
		if tok.UserID == userID && tok.IsActive(at) {
			revoked := at
			tok.RevokedAt = &revoked
			tok.RevokedByIP = ip
		}
	}
	return nil
}
