package auth

import "time"

// User is an account that can sign in and hold roles.
type User struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	Roles        []string
	CreatedAt    time.Time
}

// RefreshToken is a persisted opaque credential used solely to obtain new
// access tokens. Rows are never deleted; revocation fields are set once and
// never cleared.
type RefreshToken struct {
	Token           string
	UserID          string
	CreatedAt       time.Time
	CreatedByIP     string
	ExpiresAt       time.Time
	RevokedAt       *time.Time
	RevokedByIP     string
	ReplacedByToken string
}

// IsExpired reports whether the token is past its expiry at the given instant.
func (t *RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// IsActive reports whether the token is neither revoked nor expired.
func (t *RefreshToken) IsActive(now time.Time) bool {
	return t.RevokedAt == nil && !t.IsExpired(now)
}

// TokenPair bundles freshly minted credentials with their expirations.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}
