package auth

import "errors"

var (
	// ErrInvalidCredentials is returned for any login failure: unknown email, inactive
	// identity or wrong password. Callers must not be able to tell these apart.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrTokenMalformed     = errors.New("auth: token malformed")
	ErrTokenExpired       = errors.New("auth: token expired")
	ErrTokenRevoked       = errors.New("auth: token revoked")
	// ErrIdentityStale means the token is genuine but the identity behind it is gone,
	// deactivated, or no longer holds the role the token was issued for.
	ErrIdentityStale   = errors.New("auth: identity stale")
	ErrUnauthenticated = errors.New("auth: authentication required")
	ErrForbidden       = errors.New("auth: forbidden")
	ErrConflict        = errors.New("auth: conflict")
	ErrNotFound        = errors.New("auth: not found")
	ErrInvalidInput    = errors.New("auth: invalid input")
)

// IsAuthenticationError reports whether err should be answered with a re-login prompt.
func IsAuthenticationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrTokenMalformed),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrTokenRevoked),
		errors.Is(err, ErrIdentityStale),
		errors.Is(err, ErrUnauthenticated):
		return true
	default:
		return false
	}
}
