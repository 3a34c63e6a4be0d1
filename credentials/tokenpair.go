// Package credentials holds the token pair issued by the identity
// provider and an in-memory cache for it. The cache is an optimization
// only; the identity provider remains the source of truth.
package credentials

import "time"

// TokenPair is the currently issued access/refresh token pair.
// ExpiresAt is the wall-clock time after which the access token must be
// treated as unusable. It is already shortened by the caller's safety
// margin, so refresh happens before real expiry.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Remaining returns the time left until the pair expires, relative to now.
func (tp TokenPair) Remaining(now time.Time) time.Duration {
	return tp.ExpiresAt.Sub(now)
}
