package idp

import "errors"

// Error taxonomy for identity provider calls. The split between
// ErrAuthenticationFailed and ErrUpstreamUnavailable matters for recovery
// policy: the former means the credentials are wrong and retrying is
// pointless, the latter may be transient.
var (
	// ErrInvalidCredentials rejects malformed login input before any
	// network call is made.
	ErrInvalidCredentials = errors.New("invalid credentials format")

	// ErrAuthenticationFailed means the provider explicitly rejected the
	// password grant (HTTP 400-class).
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrUpstreamUnavailable covers transport failures, timeouts and
	// non-auth server errors.
	ErrUpstreamUnavailable = errors.New("identity provider unavailable")

	// ErrMissingAttribute means a lookup succeeded but a required field
	// was absent from the response. Fatal to login, never retried.
	ErrMissingAttribute = errors.New("required attribute missing")

	// ErrRefreshFailed means the refresh grant was rejected. The caller
	// must purge all cached credentials; reusing a refresh token after a
	// failed exchange is unsafe.
	ErrRefreshFailed = errors.New("failed to refresh access token")
)
