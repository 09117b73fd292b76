package session

import "errors"

var (
	// ErrInvalidToken is returned when a login token matches no single user.
	ErrInvalidToken = errors.New("invalid token")

	// ErrInvalidCookie is returned for a cookie that fails signature or expiry checks.
	ErrInvalidCookie = errors.New("invalid session cookie")

	// ErrNoSession is returned when the cookie is valid but the session is gone.
	ErrNoSession = errors.New("session not found")

	// ErrAuthRequired is returned when a request has no identity.
	ErrAuthRequired = errors.New("authentication required")
)
