package auth

import "errors"

// Domain errors for token handling.
var (
	// ErrTokenInvalid is returned for a token with a bad signature, an
	// unexpected algorithm, missing claims or an expiry in the past.
	ErrTokenInvalid = errors.New("auth: invalid token")

	// ErrInvalidRole is returned when issuing a token for an unknown role.
	ErrInvalidRole = errors.New("auth: invalid role")

	// ErrNoSecret is returned when no signing secret is configured.
	ErrNoSecret = errors.New("auth: no signing secret")
)
