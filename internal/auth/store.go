package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the credential subsystem.
type Store interface {
	Users(ctx context.Context) UserStore
	RefreshTokens(ctx context.Context) RefreshTokenStore
}

// UserStore manages accounts.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
}

// RefreshTokenStore owns persisted refresh token rows. The credential service
// is its only writer.
type RefreshTokenStore interface {
	Insert(ctx context.Context, tok *RefreshToken) error

	// GetByToken returns the record and its owning user.
	GetByToken(ctx context.Context, token string) (*RefreshToken, *User, error)

	// GetActiveForUser lists tokens that are neither revoked nor expired at now.
	GetActiveForUser(ctx context.Context, userID string, now time.Time) ([]*RefreshToken, error)

	// Rotate persists old's revocation fields and inserts next as a single
	// unit. The revocation is conditional on old being unrevoked; if a
	// concurrent rotation already revoked it, Rotate returns ErrTokenRotated
	// and next is not inserted.
	Rotate(ctx context.Context, old *RefreshToken, next *RefreshToken) error

	// Revoke marks the token revoked if it is still active. Revoking an
	// inactive token is a no-op.
	Revoke(ctx context.Context, token, ip string, at time.Time) error

	// RevokeAllForUser revokes every active token for the user atomically.
	RevokeAllForUser(ctx context.Context, userID, ip string, at time.Time) error
}
