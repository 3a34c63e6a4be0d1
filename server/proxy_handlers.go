package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/drinkorder/order-gateway/crm"
	"github.com/drinkorder/order-gateway/schedule"
)

// CustomersHandler lists today's seated visitor chips for the session's
// store.
func (s *Server) CustomersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, ok := sessionFromContext(r.Context())
		if !ok {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		soql := fmt.Sprintf(
			"SELECT Id, VisitorName__c, VisitedAt__c, PartySize__c, XCoord__c, YCoord__c "+
				"FROM %s WHERE VisitedAt__c = TODAY AND Seated__c = true AND Departed__c = false "+
				"AND Store__c = '%s' ORDER BY VisitedAt__c ASC",
			crm.VisitorChipObject, crm.EscapeSOQL(rec.TenantID))

		records, err := s.crm.Query(r.Context(), rec.InstanceURL, rec.TokenPair.AccessToken, soql)
		if err != nil {
			s.proxyError(w, "customer query failed", err)
			return
		}

		customers := make([]crm.Customer, 0, len(records.Array()))
		for _, record := range records.Array() {
			customers = append(customers, crm.CustomerFromRecord(record))
		}
		writeJSON(w, http.StatusOK, customers)
	}
}

type coordinatesRequest struct {
	XCoordinate float64 `json:"xCoordinate"`
	YCoordinate float64 `json:"yCoordinate"`
}

// CoordinatesHandler persists a chip position. Writes are debounced per
// chip: a burst of drags collapses into the final position, and a
// superseded write reports success since a newer position replaced it.
func (s *Server) CoordinatesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, ok := sessionFromContext(r.Context())
		if !ok {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		customerID := r.PathValue("customerId")
		if customerID == "" {
			writeJSONError(w, http.StatusBadRequest, "customer id is required")
			return
		}

		var req coordinatesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		err := <-s.coords.Update(rec.InstanceURL, rec.TokenPair.AccessToken, customerID, req.XCoordinate, req.YCoordinate)
		switch {
		case err == nil, errors.Is(err, schedule.ErrSuperseded):
			writeJSON(w, http.StatusOK, map[string]bool{"success": true})
		default:
			s.proxyError(w, "coordinate update failed", err)
		}
	}
}

// CategoriesHandler lists menu categories.
func (s *Server) CategoriesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, ok := sessionFromContext(r.Context())
		if !ok {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		soql := "SELECT Id, Name, SortOrder__c FROM MenuCategory__c ORDER BY SortOrder__c ASC"
		records, err := s.crm.Query(r.Context(), rec.InstanceURL, rec.TokenPair.AccessToken, soql)
		if err != nil {
			s.proxyError(w, "category query failed", err)
			return
		}

		categories := make([]crm.Category, 0, len(records.Array()))
		for _, record := range records.Array() {
			categories = append(categories, crm.CategoryFromRecord(record))
		}
		writeJSON(w, http.StatusOK, categories)
	}
}

// MenusHandler lists orderable items, optionally filtered by category.
func (s *Server) MenusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, ok := sessionFromContext(r.Context())
		if !ok {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		soql := "SELECT Id, Name, Price__c, Category__c FROM Menu__c"
		if categoryID := r.URL.Query().Get("categoryId"); categoryID != "" {
			soql += fmt.Sprintf(" WHERE Category__c = '%s'", crm.EscapeSOQL(categoryID))
		}
		soql += " ORDER BY Name ASC"

		records, err := s.crm.Query(r.Context(), rec.InstanceURL, rec.TokenPair.AccessToken, soql)
		if err != nil {
			s.proxyError(w, "menu query failed", err)
			return
		}

		menus := make([]crm.Menu, 0, len(records.Array()))
		for _, record := range records.Array() {
			menus = append(menus, crm.MenuFromRecord(record))
		}
		writeJSON(w, http.StatusOK, menus)
	}
}

type orderRequest struct {
	CustomerID string `json:"customerId"`
	Items      []struct {
		MenuID   string `json:"menuId"`
		Quantity int    `json:"quantity"`
	} `json:"items"`
}

// OrdersHandler creates one order entry per requested item.
func (s *Server) OrdersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, ok := sessionFromContext(r.Context())
		if !ok {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		var req orderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.CustomerID == "" || len(req.Items) == 0 {
			writeJSONError(w, http.StatusBadRequest, "customer id and items are required")
			return
		}

		ids := make([]string, 0, len(req.Items))
		for _, item := range req.Items {
			if item.MenuID == "" || item.Quantity <= 0 {
				writeJSONError(w, http.StatusBadRequest, "every item needs a menu id and a positive quantity")
				return
			}

			id, err := s.crm.CreateRecord(r.Context(), rec.InstanceURL, rec.TokenPair.AccessToken, crm.OrderObject,
				map[string]interface{}{
					"Customer__c": req.CustomerID,
					"Menu__c":     item.MenuID,
					"Quantity__c": item.Quantity,
					"Store__c":    rec.TenantID,
				})
			if err != nil {
				s.proxyError(w, "order creation failed", err)
				return
			}
			ids = append(ids, id)
		}

		writeJSON(w, http.StatusCreated, map[string]interface{}{"success": true, "ids": ids})
	}
}

func (s *Server) proxyError(w http.ResponseWriter, message string, err error) {
	log.Error().Err(err).Msg(message)
	writeJSONError(w, http.StatusBadGateway, message)
}
