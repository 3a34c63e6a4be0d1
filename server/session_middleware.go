package server

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/drinkorder/order-gateway/session"
)

// SessionCookieName is the cookie carrying the signed session token.
const SessionCookieName = "order_gateway_session"

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

// ContextKeySession stores the materialized session record.
const ContextKeySession ContextKey = "session"

// RequireSession is middleware for the proxy routes. It decodes the
// session cookie, runs the request gate, then materializes the session
// through the manager (which may refresh the token pair lazily). A
// changed record is re-issued as a fresh cookie. A session in the
// refresh-failed state is rejected with the well-known marker so the
// UI prompts for re-login rather than showing a generic failure.
func (s *Server) RequireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := s.sessionClaims(r)
		if !Authorized(claims, time.Now()) {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		rec, changed := s.sessions.Materialize(r.Context(), claims.Record())
		if changed {
			s.setSessionCookie(w, rec)
		}
		if rec.Errored() {
			writeJSONError(w, http.StatusUnauthorized, rec.Error)
			return
		}

		ctx := context.WithValue(r.Context(), ContextKeySession, rec)
		next(w, r.WithContext(ctx))
	}
}

// sessionClaims decodes the session cookie, returning nil when absent
// or invalid.
func (s *Server) sessionClaims(r *http.Request) *session.Claims {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return nil
	}
	claims, err := s.codec.Decode(cookie.Value)
	if err != nil {
		return nil
	}
	return claims
}

// sessionFromContext returns the record RequireSession stored.
func sessionFromContext(ctx context.Context) (session.Record, bool) {
	rec, ok := ctx.Value(ContextKeySession).(session.Record)
	return rec, ok
}

func (s *Server) setSessionCookie(w http.ResponseWriter, rec session.Record) {
	token, err := s.codec.Encode(rec)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode session cookie")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.config.SessionMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   !s.config.IsDev(),
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   !s.config.IsDev(),
		SameSite: http.SameSiteLaxMode,
	})
}
