package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/drinkorder/order-gateway/credentials"
	"github.com/drinkorder/order-gateway/crm"
	"github.com/drinkorder/order-gateway/idp"
	"github.com/drinkorder/order-gateway/idp/idpfakes"
	"github.com/drinkorder/order-gateway/internal/config"
	"github.com/drinkorder/order-gateway/server"
	"github.com/drinkorder/order-gateway/session"
)

// crmBackend is a stand-in CRM data API that records what the gateway
// sends it.
type crmBackend struct {
	*httptest.Server

	mu        sync.Mutex
	lastAuth  string
	lastQuery string
	patches   []map[string]interface{}
	created   []map[string]interface{}
}

func newCRMBackend(t *testing.T) *crmBackend {
	t.Helper()

	b := &crmBackend{}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /services/data/v58.0/query", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.lastAuth = r.Header.Get("Authorization")
		b.lastQuery = r.URL.Query().Get("q")
		b.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"totalSize":1,"done":true,"records":[
			{"Id":"C1","VisitorName__c":"Table 4","VisitedAt__c":"2026-03-01T11:30:00Z",
			 "PartySize__c":3,"XCoord__c":120.5,"YCoord__c":80}]}`)
	})

	mux.HandleFunc("PATCH /services/data/v58.0/sobjects/VisitorChip__c/{id}", func(w http.ResponseWriter, r *http.Request) {
		fields := map[string]interface{}{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&fields))
		fields["Id"] = r.PathValue("id")

		b.mu.Lock()
		b.lastAuth = r.Header.Get("Authorization")
		b.patches = append(b.patches, fields)
		b.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /services/data/v58.0/sobjects/OrderEntry__c", func(w http.ResponseWriter, r *http.Request) {
		fields := map[string]interface{}{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&fields))

		b.mu.Lock()
		b.created = append(b.created, fields)
		id := fmt.Sprintf("801%03d", len(b.created))
		b.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"id":%q,"success":true}`, id)
	})

	b.Server = httptest.NewServer(mux)
	t.Cleanup(b.Close)
	return b
}

func (b *crmBackend) snapshot() (auth, query string, patches, created []map[string]interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastAuth, b.lastQuery, b.patches, b.created
}

type gatewayFixture struct {
	srv      *server.Server
	backend  *crmBackend
	provider *idpfakes.FakeProvider
	codec    *session.Codec
	pair     credentials.TokenPair
}

func newGateway(t *testing.T) *gatewayFixture {
	t.Helper()

	backend := newCRMBackend(t)

	// Unix-second precision so the pair survives a cookie round trip
	// unchanged.
	pair := credentials.TokenPair{
		AccessToken:  "tok-1",
		RefreshToken: "rt-1",
		ExpiresAt:    time.Now().Add(55 * time.Minute).Truncate(time.Second),
	}
	provider := idpfakes.NewFakeProvider(pair)

	cfg := &config.Config{
		Environment:    "DEV",
		CRMInstanceURL: backend.URL,
		CRMAPIVersion:  "v58.0",
		SessionSecret:  "local test secret",
		SessionMaxAge:  12 * time.Hour,
	}

	sessions, err := session.NewManager(provider, credentials.NewStore(), backend.URL)
	require.NoError(t, err)

	codec, err := session.NewCodec(cfg.SessionSecret, cfg.SessionMaxAge)
	require.NoError(t, err)

	srv, err := server.New(cfg, sessions, codec, crm.NewClient(cfg.CRMAPIVersion))
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	return &gatewayFixture{
		srv:      srv,
		backend:  backend,
		provider: provider,
		codec:    codec,
		pair:     pair,
	}
}

func (f *gatewayFixture) do(t *testing.T, method, target string, body interface{}, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var reqBody *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewReader(raw)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reqBody)
	if cookie != nil {
		req.AddCookie(cookie)
	}

	w := httptest.NewRecorder()
	f.srv.ServeHTTP(w, req)
	return w
}

// login performs a full password login and returns the session cookie.
func (f *gatewayFixture) login(t *testing.T) *http.Cookie {
	t.Helper()

	w := f.do(t, http.MethodPost, "/api/auth/login",
		map[string]string{"username": "alice@example.com", "password": "hunter22"}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	for _, c := range w.Result().Cookies() {
		if c.Name == server.SessionCookieName {
			return c
		}
	}
	t.Fatal("login response did not set a session cookie")
	return nil
}

func TestLoginIssuesSessionCookie(t *testing.T) {
	f := newGateway(t)

	w := f.do(t, http.MethodPost, "/api/auth/login",
		map[string]string{"username": "alice@example.com", "password": "hunter22"}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var proj session.Projection
	require.NoError(t, json.NewDecoder(w.Body).Decode(&proj))
	require.Equal(t, "Alice", proj.User.Name)
	require.Equal(t, "tok-1", proj.User.AccessToken)
	require.Equal(t, "T1", proj.User.TenantID)
	require.Empty(t, proj.Error)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	cookie := cookies[0]
	require.Equal(t, server.SessionCookieName, cookie.Name)
	require.True(t, cookie.HttpOnly)

	claims, err := f.codec.Decode(cookie.Value)
	require.NoError(t, err)
	require.Equal(t, "U1", claims.Subject)
	require.Equal(t, "tok-1", claims.AccessToken)
	require.Equal(t, f.pair.ExpiresAt.Unix(), claims.TokenExpiresAt)
}

func TestLoginFailureIsGeneric(t *testing.T) {
	f := newGateway(t)
	f.provider.PasswordLoginFunc = func(ctx context.Context, username, password string) (credentials.TokenPair, error) {
		return credentials.TokenPair{}, idp.ErrAuthenticationFailed
	}

	w := f.do(t, http.MethodPost, "/api/auth/login",
		map[string]string{"username": "alice@example.com", "password": "wrong"}, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.JSONEq(t, `{"error":"authentication failed"}`, w.Body.String())
	require.Empty(t, w.Result().Cookies())
}

func TestLoginRejectsMalformedBody(t *testing.T) {
	f := newGateway(t)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	f.srv.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProtectedRouteWithoutSession(t *testing.T) {
	f := newGateway(t)

	w := f.do(t, http.MethodGet, "/api/customers", nil, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.JSONEq(t, `{"error":"unauthorized"}`, w.Body.String())
}

func TestProtectedRouteWithTamperedCookie(t *testing.T) {
	f := newGateway(t)
	cookie := f.login(t)
	cookie.Value += "x"

	w := f.do(t, http.MethodGet, "/api/customers", nil, cookie)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCustomersProxy(t *testing.T) {
	f := newGateway(t)
	cookie := f.login(t)
	loginCalls := f.provider.RemoteCalls()

	w := f.do(t, http.MethodGet, "/api/customers", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)

	var customers []crm.Customer
	require.NoError(t, json.NewDecoder(w.Body).Decode(&customers))
	require.Len(t, customers, 1)
	require.Equal(t, "C1", customers[0].ID)
	require.Equal(t, "Table 4", customers[0].Name)
	require.Equal(t, int64(3), customers[0].NumberOfGuests)
	require.Equal(t, 120.5, customers[0].XCoordinate)

	auth, query, _, _ := f.backend.snapshot()
	require.Equal(t, "Bearer tok-1", auth)
	require.Contains(t, query, "FROM VisitorChip__c")
	require.Contains(t, query, "Store__c = 'T1'")

	// A session nowhere near expiry must not touch the identity provider.
	require.Equal(t, loginCalls, f.provider.RemoteCalls())
}

func TestMenusProxyFiltersByCategory(t *testing.T) {
	f := newGateway(t)
	cookie := f.login(t)

	w := f.do(t, http.MethodGet, "/api/menus?categoryId=CAT1", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)

	_, query, _, _ := f.backend.snapshot()
	require.Contains(t, query, "WHERE Category__c = 'CAT1'")
}

func TestOrdersCreateOneRecordPerItem(t *testing.T) {
	f := newGateway(t)
	cookie := f.login(t)

	w := f.do(t, http.MethodPost, "/api/orders", map[string]interface{}{
		"customerId": "C1",
		"items": []map[string]interface{}{
			{"menuId": "M1", "quantity": 2},
			{"menuId": "M2", "quantity": 1},
		},
	}, cookie)
	require.Equal(t, http.StatusCreated, w.Code)

	var reply struct {
		Success bool     `json:"success"`
		IDs     []string `json:"ids"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&reply))
	require.True(t, reply.Success)
	require.Len(t, reply.IDs, 2)

	_, _, _, created := f.backend.snapshot()
	require.Len(t, created, 2)
	require.Equal(t, "M1", created[0]["Menu__c"])
	require.Equal(t, float64(2), created[0]["Quantity__c"])
	require.Equal(t, "T1", created[0]["Store__c"])
}

func TestOrdersRejectEmptyItems(t *testing.T) {
	f := newGateway(t)
	cookie := f.login(t)

	w := f.do(t, http.MethodPost, "/api/orders",
		map[string]interface{}{"customerId": "C1", "items": []map[string]interface{}{}}, cookie)
	require.Equal(t, http.StatusBadRequest, w.Code)

	_, _, _, created := f.backend.snapshot()
	require.Empty(t, created)
}

func TestCoordinatesDebouncedWrite(t *testing.T) {
	f := newGateway(t)
	cookie := f.login(t)

	w := f.do(t, http.MethodPatch, "/api/customers/C1/coordinates",
		map[string]float64{"xCoordinate": 40, "yCoordinate": 60}, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"success":true}`, w.Body.String())

	_, _, patches, _ := f.backend.snapshot()
	require.Len(t, patches, 1)
	require.Equal(t, "C1", patches[0]["Id"])
	require.Equal(t, float64(40), patches[0]["XCoord__c"])
	require.Equal(t, float64(60), patches[0]["YCoord__c"])
}

func TestSessionEndpointWithoutCookie(t *testing.T) {
	f := newGateway(t)

	w := f.do(t, http.MethodGet, "/api/auth/session", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{}`, w.Body.String())
}

func TestSessionEndpointReturnsProjection(t *testing.T) {
	f := newGateway(t)
	cookie := f.login(t)

	w := f.do(t, http.MethodGet, "/api/auth/session", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)

	var proj session.Projection
	require.NoError(t, json.NewDecoder(w.Body).Decode(&proj))
	require.Equal(t, "tok-1", proj.User.AccessToken)
	require.Equal(t, "T1", proj.User.TenantID)
	require.Empty(t, proj.Error)
}

func TestExpiringSessionRefreshReissuesCookie(t *testing.T) {
	f := newGateway(t)

	stale := session.Record{
		UserID:   "U1",
		Username: "alice@example.com",
		Name:     "Alice",
		Email:    "a@x.com",
		TokenPair: credentials.TokenPair{
			AccessToken:  "stale",
			RefreshToken: "rt-1",
			ExpiresAt:    time.Now().Add(time.Minute).Truncate(time.Second),
		},
		InstanceURL: f.backend.URL,
		TenantID:    "T1",
	}
	value, err := f.codec.Encode(stale)
	require.NoError(t, err)

	fresh := credentials.TokenPair{
		AccessToken:  "fresh",
		RefreshToken: "rt-2",
		ExpiresAt:    time.Now().Add(55 * time.Minute).Truncate(time.Second),
	}
	f.provider.ValidateFunc = func(context.Context, string) bool { return false }
	f.provider.RefreshFunc = func(context.Context, string) (credentials.TokenPair, error) {
		return fresh, nil
	}

	w := f.do(t, http.MethodGet, "/api/customers", nil,
		&http.Cookie{Name: server.SessionCookieName, Value: value})
	require.Equal(t, http.StatusOK, w.Code)

	auth, _, _, _ := f.backend.snapshot()
	require.Equal(t, "Bearer fresh", auth)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	claims, err := f.codec.Decode(cookies[0].Value)
	require.NoError(t, err)
	require.Equal(t, "fresh", claims.AccessToken)
	require.Equal(t, "rt-2", claims.RefreshToken)
	require.Empty(t, claims.SessionError)
}

func TestRefreshFailureRejectsWithMarker(t *testing.T) {
	f := newGateway(t)

	stale := session.Record{
		UserID:   "U1",
		Username: "alice@example.com",
		TokenPair: credentials.TokenPair{
			AccessToken:  "stale",
			RefreshToken: "rt-1",
			ExpiresAt:    time.Now().Add(time.Minute).Truncate(time.Second),
		},
		InstanceURL: f.backend.URL,
		TenantID:    "T1",
	}
	value, err := f.codec.Encode(stale)
	require.NoError(t, err)

	f.provider.ValidateFunc = func(context.Context, string) bool { return false }
	f.provider.RefreshFunc = func(context.Context, string) (credentials.TokenPair, error) {
		return credentials.TokenPair{}, idp.ErrRefreshFailed
	}

	w := f.do(t, http.MethodGet, "/api/customers", nil,
		&http.Cookie{Name: server.SessionCookieName, Value: value})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.JSONEq(t, fmt.Sprintf(`{"error":%q}`, session.RefreshAccessTokenError), w.Body.String())

	// A refresh failure is terminal: the reissued cookie carries the
	// marker so the client prompts for a fresh login.
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	claims, err := f.codec.Decode(cookies[0].Value)
	require.NoError(t, err)
	require.Equal(t, session.RefreshAccessTokenError, claims.SessionError)
}

func TestLogoutClearsSession(t *testing.T) {
	f := newGateway(t)
	cookie := f.login(t)

	w := f.do(t, http.MethodPost, "/api/auth/logout", nil, cookie)
	require.Equal(t, http.StatusNoContent, w.Code)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, server.SessionCookieName, cookies[0].Name)
	require.Empty(t, cookies[0].Value)
	require.Negative(t, cookies[0].MaxAge)
}

func TestSecurityHeaders(t *testing.T) {
	f := newGateway(t)

	w := f.do(t, http.MethodGet, "/api/auth/session", nil, nil)
	h := w.Header()
	require.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", h.Get("X-Frame-Options"))
	require.Equal(t, "strict-origin-when-cross-origin", h.Get("Referrer-Policy"))
	require.NotEmpty(t, h.Get("Content-Security-Policy"))
	require.NotEmpty(t, h.Get("X-Request-Id"))
}

func TestRequestIDIsPreserved(t *testing.T) {
	f := newGateway(t)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
	req.Header.Set("X-Request-Id", "req-42")
	w := httptest.NewRecorder()
	f.srv.ServeHTTP(w, req)
	require.Equal(t, "req-42", w.Header().Get("X-Request-Id"))
}

