package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginHandler authenticates a user against the identity provider and
// issues the session cookie. Whatever went wrong, the user sees the
// same generic message; the precise cause goes to the log only, so a
// caller can't probe which part failed.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		rec, err := s.sessions.Login(r.Context(), req.Username, req.Password)
		if err != nil {
			log.Warn().Err(err).Str("username", req.Username).Msg("login failed")
			writeJSONError(w, http.StatusUnauthorized, "authentication failed")
			return
		}

		s.setSessionCookie(w, rec)
		writeJSON(w, http.StatusOK, rec.Projection())
	}
}

// LogoutHandler drops the cached credentials and expires the cookie.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.sessions.Logout()
		s.clearSessionCookie(w)
		w.WriteHeader(http.StatusNoContent)
	}
}

// SessionHandler returns the current session projection. Reading the
// session is what triggers the lazy refresh check; a session whose
// refresh failed keeps reporting the error marker until re-login.
// Without a session it returns an empty object rather than an error,
// since the UI polls this endpoint to decide whether to show login.
func (s *Server) SessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := s.sessionClaims(r)
		if !Authorized(claims, time.Now()) {
			writeJSON(w, http.StatusOK, struct{}{})
			return
		}

		rec, changed := s.sessions.Materialize(r.Context(), claims.Record())
		if changed {
			s.setSessionCookie(w, rec)
		}
		writeJSON(w, http.StatusOK, rec.Projection())
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
