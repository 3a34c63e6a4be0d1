// Package session owns the token lifecycle for a logged-in user: login,
// lazy refresh-on-read, failure signaling, and the projection consumed
// by the UI and the proxy endpoints.
package session

import (
	"github.com/drinkorder/order-gateway/credentials"
)

// RefreshAccessTokenError is the well-known marker the UI checks to
// force a re-login prompt instead of a generic failure message.
const RefreshAccessTokenError = "RefreshAccessTokenError"

// Record is the session for one authenticated user. A non-empty Error
// is terminal: the record must not be healed, only replaced by a fresh
// login.
type Record struct {
	UserID      string
	Username    string
	Name        string
	Email       string
	TokenPair   credentials.TokenPair
	InstanceURL string
	TenantID    string
	Error       string
}

// Errored reports whether the record is in the terminal refresh-failed
// state.
func (r Record) Errored() bool {
	return r.Error != ""
}

// ProjectedUser is the user shape downstream collaborators consume.
type ProjectedUser struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	AccessToken string `json:"accessToken"`
	InstanceURL string `json:"instanceUrl"`
	TenantID    string `json:"tenantId"`
}

// Projection is the externally visible session object. Downstream code
// must check Error before trusting AccessToken.
type Projection struct {
	User  ProjectedUser `json:"user"`
	Error string        `json:"error,omitempty"`
}

// Projection maps the internal token state onto the external session
// object.
func (r Record) Projection() Projection {
	return Projection{
		User: ProjectedUser{
			Name:        r.Name,
			Email:       r.Email,
			AccessToken: r.TokenPair.AccessToken,
			InstanceURL: r.InstanceURL,
			TenantID:    r.TenantID,
		},
		Error: r.Error,
	}
}
