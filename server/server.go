// Package server is the HTTP surface of the order gateway: the login
// and session endpoints plus the thin proxy endpoints that forward
// SOQL queries to the CRM on behalf of an authenticated session.
package server

import (
	"net/http"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/drinkorder/order-gateway/crm"
	"github.com/drinkorder/order-gateway/internal/config"
	"github.com/drinkorder/order-gateway/session"
)

// Server routes requests and holds the gateway's collaborators.
type Server struct {
	env    string
	mux    *http.ServeMux
	routes []string

	config   *config.Config
	sessions *session.Manager
	codec    *session.Codec
	crm      *crm.Client
	coords   *crm.CoordinateUpdater
}

// New creates a Server from its collaborators.
func New(cfg *config.Config, sessions *session.Manager, codec *session.Codec, crmClient *crm.Client) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("[server.New] config is required")
	}
	if sessions == nil {
		return nil, errors.New("[server.New] session manager is required")
	}
	if codec == nil {
		return nil, errors.New("[server.New] session codec is required")
	}
	if crmClient == nil {
		return nil, errors.New("[server.New] crm client is required")
	}

	s := &Server{
		env:      cfg.Environment,
		mux:      http.NewServeMux(),
		config:   cfg,
		sessions: sessions,
		codec:    codec,
		crm:      crmClient,
		coords:   crm.NewCoordinateUpdater(crmClient),
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Close stops background work (pending coordinate writes).
func (s *Server) Close() {
	s.coords.Stop()
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip route logging in non-development environments
	}
	for _, route := range s.routes {
		log.Debug().Str("route", route).Msg("registered")
	}
}
