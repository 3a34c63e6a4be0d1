package server

import (
	"time"

	"github.com/drinkorder/order-gateway/session"
)

// Authorized is the request gate: a pure, side-effect-free predicate
// evaluated before any protected handler runs. It never refreshes;
// refreshing belongs exclusively to the session manager at the point
// the session is materialized. A request passes iff the session claims
// exist, carry an expiry in the future, and have all three of access
// token, instance URL and tenant id.
func Authorized(claims *session.Claims, now time.Time) bool {
	if claims == nil {
		return false
	}
	if claims.ExpiresAt == nil || !now.Before(claims.ExpiresAt.Time) {
		return false
	}
	if claims.AccessToken == "" || claims.InstanceURL == "" || claims.TenantID == "" {
		return false
	}
	return true
}
