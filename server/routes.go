package server

func (s *Server) initRoutes() {
	// Auth
	s.RegisterRouteFunc("POST /api/auth/login", ChainMiddleware(s.LoginHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST /api/auth/logout", ChainMiddleware(s.LogoutHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("GET /api/auth/session", ChainMiddleware(s.SessionHandler(), s.APIMiddleware()...))

	// CRM proxies (require a valid session)
	s.RegisterRouteFunc("GET /api/customers", ChainMiddleware(s.CustomersHandler(), s.ProtectedMiddleware()...))
	s.RegisterRouteFunc("PATCH /api/customers/{customerId}/coordinates", ChainMiddleware(s.CoordinatesHandler(), s.ProtectedMiddleware()...))
	s.RegisterRouteFunc("GET /api/categories", ChainMiddleware(s.CategoriesHandler(), s.ProtectedMiddleware()...))
	s.RegisterRouteFunc("GET /api/menus", ChainMiddleware(s.MenusHandler(), s.ProtectedMiddleware()...))
	s.RegisterRouteFunc("POST /api/orders", ChainMiddleware(s.OrdersHandler(), s.ProtectedMiddleware()...))
}
