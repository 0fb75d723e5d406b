package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	defaultIssuer   = "IncidentCommanderAPI"
	defaultAudience = "IncidentCommanderClient"

	// Access tokens live 15 minutes; compromise window is bounded by this
	// lifetime since access tokens cannot be revoked.
	defaultAccessTTL = 15 * time.Minute

	defaultRefreshTTL = 60 * time.Minute

	refreshTokenBytes = 64
)

// Service issues access tokens and manages the refresh token lifecycle:
// minting, validation, rotation and reuse detection.
type Service struct {
	store  Store
	now    func() time.Time
	secret []byte

	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithSigningSecret sets the HMAC key material used for access tokens.
func WithSigningSecret(secret string) ServiceOption {
	return func(s *Service) error {
		if strings.TrimSpace(secret) != "" {
			s.secret = []byte(secret)
		}
		return nil
	}
}

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) ServiceOption {
	return func(s *Service) error {
		if strings.TrimSpace(issuer) != "" {
			s.issuer = strings.TrimSpace(issuer)
		}
		return nil
	}
}

// WithAudience overrides the token audience claim.
func WithAudience(audience string) ServiceOption {
	return func(s *Service) error {
		if strings.TrimSpace(audience) != "" {
			s.audience = strings.TrimSpace(audience)
		}
		return nil
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs a Service. A signing secret is required; its absence
// is a configuration error and must abort startup.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	svc := &Service{
		store:      store,
		now:        time.Now,
		issuer:     defaultIssuer,
		audience:   defaultAudience,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	if len(svc.secret) == 0 {
		return nil, ErrMissingSecret
	}
	return svc, nil
}

// Login verifies the email/password pair and, on success, mints an access
// token and a persisted refresh token. Unknown email and wrong password are
// indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password, ip string) (TokenPair, *User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return TokenPair{}, nil, ErrInvalidCredentials
	}
	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, nil, ErrInvalidCredentials
		}
		return TokenPair{}, nil, err
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return TokenPair{}, nil, ErrInvalidCredentials
	}

	now := s.now().UTC()
	access, accessExp, err := s.signAccessToken(user, now)
	if err != nil {
		return TokenPair{}, nil, err
	}
	refresh, err := s.generateRefreshToken(ip, now)
	if err != nil {
		return TokenPair{}, nil, err
	}
	refresh.UserID = user.ID
	if err := s.store.RefreshTokens(ctx).Insert(ctx, refresh); err != nil {
		return TokenPair{}, nil, err
	}

	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh.Token,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refresh.ExpiresAt,
	}, user, nil
}

// Refresh validates the presented refresh token and rotates it: a new access
// and refresh token are issued, the old token is revoked with a forward link
// to its replacement, both in one unit of work.
//
// Presenting a token that was already revoked is treated as evidence of
// theft: every active token for that user is revoked and the call fails. An
// expired-but-never-revoked token simply fails, with no further action.
func (s *Service) Refresh(ctx context.Context, presented, ip string) (TokenPair, *User, error) {
	if strings.TrimSpace(presented) == "" {
		return TokenPair{}, nil, ErrInvalidToken
	}

	tokens := s.store.RefreshTokens(ctx)
	record, user, err := tokens.GetByToken(ctx, presented)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, nil, ErrInvalidToken
		}
		return TokenPair{}, nil, err
	}

	now := s.now().UTC()
	if !record.IsActive(now) {
		if record.RevokedAt != nil {
			// Replay of a rotated-away token. Invalidate the whole
			// session family.
			if err := tokens.RevokeAllForUser(ctx, record.UserID, ip, now); err != nil {
				return TokenPair{}, nil, err
			}
			return TokenPair{}, nil, ErrReuseDetected
		}
		return TokenPair{}, nil, ErrInvalidToken
	}

	access, accessExp, err := s.signAccessToken(user, now)
	if err != nil {
		return TokenPair{}, nil, err
	}
	next, err := s.generateRefreshToken(ip, now)
	if err != nil {
		return TokenPair{}, nil, err
	}
	next.UserID = record.UserID

	revokedAt := now
	record.RevokedAt = &revokedAt
	record.RevokedByIP = ip
	record.ReplacedByToken = next.Token

	if err := tokens.Rotate(ctx, record, next); err != nil {
		if errors.Is(err, ErrTokenRotated) {
			// A concurrent rotation won the conditional revoke. The
			// losing caller is benign, so no mass revocation.
			return TokenPair{}, nil, ErrInvalidToken
		}
		return TokenPair{}, nil, err
	}

	return TokenPair{
		AccessToken:      access,
		RefreshToken:     next.Token,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: next.ExpiresAt,
	}, user, nil
}

// Revoke marks the presented refresh token revoked (logout). Revoking an
// absent or already-inactive token is a no-op, not an error.
func (s *Service) Revoke(ctx context.Context, presented, ip string) error {
	if strings.TrimSpace(presented) == "" {
		return nil
	}
	return s.store.RefreshTokens(ctx).Revoke(ctx, presented, ip, s.now().UTC())
}

// Authenticate validates an access token and returns its claims.
func (s *Service) Authenticate(token string) (*Claims, error) {
	return s.ParseAccessToken(token)
}

// generateRefreshToken draws 64 bytes from crypto/rand and base64-encodes
// them. The owning user id is attached by the caller before persisting.
func (s *Service) generateRefreshToken(ip string, now time.Time) (*RefreshToken, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	return &RefreshToken{
		Token:       base64.StdEncoding.EncodeToString(buf),
		CreatedAt:   now,
		CreatedByIP: ip,
		ExpiresAt:   now.Add(s.refreshTTL),
	}, nil
}
