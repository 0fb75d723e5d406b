package auth

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("auth: not found")
	ErrAlreadyExists = errors.New("auth: already exists")

	// ErrInvalidCredentials covers both unknown email and wrong password so
	// responses cannot be used for account enumeration.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrInvalidToken covers absent, expired, revoked and replayed refresh
	// tokens alike; callers must not leak which case occurred.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrMissingSecret means no signing secret was configured. Surfaced at
	// startup from NewService, never per-request.
	ErrMissingSecret = errors.New("auth: signing secret is not configured")

	// ErrReuseDetected marks a replay of an already-revoked refresh token.
	// It unwraps to ErrInvalidToken so the transport layer renders it
	// identically to any other refresh failure.
	ErrReuseDetected = fmt.Errorf("%w: reuse detected", ErrInvalidToken)

	// ErrTokenRotated is returned by stores when a conditional revocation
	// finds the token already revoked, i.e. a concurrent rotation won.
	ErrTokenRotated = errors.New("auth: token already rotated")
)
