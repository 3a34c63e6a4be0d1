// Package idp is the client for the CRM platform's identity provider.
// It performs the three remote exchanges the session layer needs: the
// OAuth2 password grant, the refresh grant, and bearer-token lookups
// against the userinfo and user-record endpoints.
package idp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"

	"github.com/drinkorder/order-gateway/credentials"
)

const (
	userAgent       = "order-gateway/1.0"
	requestTimeout  = 30 * time.Second
	maxRedirects    = 5
	maxFieldLength  = 255
	defaultLifetime = time.Hour

	// tokenMargin is subtracted from the issuer-reported lifetime so the
	// session layer refreshes before the token actually expires.
	tokenMargin = 5 * time.Minute
)

// Principal is the identity behind an access token.
type Principal struct {
	UserID      string
	DisplayName string
	Email       string
}

// Provider is the surface the session layer depends on. Client is the
// real implementation; idpfakes has a hand-written fake for tests.
type Provider interface {
	PasswordLogin(ctx context.Context, username, password string) (credentials.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (credentials.TokenPair, error)
	Validate(ctx context.Context, accessToken string) bool
	FetchPrincipal(ctx context.Context, accessToken string) (Principal, error)
	FetchTenant(ctx context.Context, accessToken, userID string) (string, error)
}

// Config holds the endpoints and client identity for the provider.
type Config struct {
	ClientID     string
	ClientSecret string
	TokenURL     string // form-encoded OAuth2 token endpoint
	InstanceURL  string // base URL for userinfo and data API calls
	APIVersion   string // data API version, e.g. "v58.0"
	TenantField  string // custom user field holding the tenant assignment
}

// Client talks to the identity provider over HTTPS. TLS verification is
// always enforced; all calls share a fixed timeout and a bounded number
// of redirects.
type Client struct {
	oauth       *oauth2.Config
	httpClient  *http.Client
	instanceURL string
	apiVersion  string
	tenantField string
	nowTime     func() time.Time
}

var _ Provider = (*Client)(nil)

// ClientOption modifies a Client.
type ClientOption func(*Client)

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) ClientOption {
	return func(c *Client) {
		c.nowTime = nowFunc
	}
}

// WithHTTPClient replaces the underlying HTTP client (primarily for testing).
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a provider client from cfg.
func NewClient(cfg Config, options ...ClientOption) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("[NewClient] client id and secret are required")
	}
	if cfg.TokenURL == "" || cfg.InstanceURL == "" {
		return nil, errors.New("[NewClient] token URL and instance URL are required")
	}
	if cfg.TenantField == "" {
		return nil, errors.New("[NewClient] tenant field is required")
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "v58.0"
	}

	c := &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient:  newHTTPClient(),
		instanceURL: strings.TrimRight(cfg.InstanceURL, "/"),
		apiVersion:  cfg.APIVersion,
		tenantField: cfg.TenantField,
		nowTime:     time.Now,
	}

	for _, opt := range options {
		opt(c)
	}

	return c, nil
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout:   requestTimeout,
		Transport: headerTransport{base: http.DefaultTransport},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
}

// headerTransport stamps the stable client identifier on every request,
// including the token-endpoint requests issued by the oauth2 package.
type headerTransport struct {
	base http.RoundTripper
}

func (t headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", userAgent)
	return t.base.RoundTrip(req)
}

// PasswordLogin exchanges a username/password pair using the OAuth2
// password grant. Input failing basic validation is rejected with
// ErrInvalidCredentials before any network call.
func (c *Client) PasswordLogin(ctx context.Context, username, password string) (credentials.TokenPair, error) {
	if !validCredentialInput(username) || !validCredentialInput(password) {
		return credentials.TokenPair{}, ErrInvalidCredentials
	}

	tok, err := c.oauth.PasswordCredentialsToken(c.oauthContext(ctx), username, password)
	if err != nil {
		var rErr *oauth2.RetrieveError
		if errors.As(err, &rErr) && rErr.Response != nil &&
			rErr.Response.StatusCode >= http.StatusBadRequest && rErr.Response.StatusCode < http.StatusInternalServerError {
			return credentials.TokenPair{}, errors.Wrap(ErrAuthenticationFailed, err.Error())
		}
		return credentials.TokenPair{}, errors.Wrap(ErrUpstreamUnavailable, err.Error())
	}
	if tok.AccessToken == "" {
		return credentials.TokenPair{}, errors.Wrap(ErrAuthenticationFailed, "no access token received")
	}

	return c.toTokenPair(tok, ""), nil
}

// Refresh exchanges the refresh grant for a new token pair. On any
// failure the caller must purge all cached credentials. A reply that
// omits a new refresh token keeps the old one.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (credentials.TokenPair, error) {
	if refreshToken == "" {
		return credentials.TokenPair{}, ErrRefreshFailed
	}

	src := c.oauth.TokenSource(c.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return credentials.TokenPair{}, errors.Wrap(ErrRefreshFailed, err.Error())
	}
	if tok.AccessToken == "" {
		return credentials.TokenPair{}, errors.Wrap(ErrRefreshFailed, "no access token received")
	}

	return c.toTokenPair(tok, refreshToken), nil
}

// Validate is a cheap liveness probe for an access token: a bearer call
// to the userinfo endpoint. It returns false on any non-2xx response or
// network error and never fails.
func (c *Client) Validate(ctx context.Context, accessToken string) bool {
	resp, err := c.getBearer(ctx, c.instanceURL+"/services/oauth2/userinfo", accessToken)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// FetchPrincipal looks up the identity behind an access token.
func (c *Client) FetchPrincipal(ctx context.Context, accessToken string) (Principal, error) {
	body, err := c.getJSON(ctx, c.instanceURL+"/services/oauth2/userinfo", accessToken)
	if err != nil {
		return Principal{}, errors.Wrap(err, "[Client.FetchPrincipal] userinfo")
	}

	userID := gjson.GetBytes(body, "user_id").String()
	if userID == "" {
		return Principal{}, errors.Wrap(ErrMissingAttribute, "userinfo response has no user_id")
	}

	return Principal{
		UserID:      userID,
		DisplayName: gjson.GetBytes(body, "name").String(),
		Email:       gjson.GetBytes(body, "email").String(),
	}, nil
}

// FetchTenant reads the tenant assignment from the user's CRM record.
// A user with no tenant assignment cannot use the system, so an absent
// field is ErrMissingAttribute.
func (c *Client) FetchTenant(ctx context.Context, accessToken, userID string) (string, error) {
	url := fmt.Sprintf("%s/services/data/%s/sobjects/User/%s", c.instanceURL, c.apiVersion, userID)
	body, err := c.getJSON(ctx, url, accessToken)
	if err != nil {
		return "", errors.Wrap(err, "[Client.FetchTenant] user record")
	}

	tenantID := gjson.GetBytes(body, c.tenantField).String()
	if tenantID == "" {
		return "", errors.Wrapf(ErrMissingAttribute, "%s not set for user %s", c.tenantField, userID)
	}
	return tenantID, nil
}

func (c *Client) getBearer(ctx context.Context, url, accessToken string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	return c.httpClient.Do(req)
}

func (c *Client) getJSON(ctx context.Context, url, accessToken string) ([]byte, error) {
	resp, err := c.getBearer(ctx, url, accessToken)
	if err != nil {
		return nil, errors.Wrap(ErrUpstreamUnavailable, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(ErrUpstreamUnavailable, err.Error())
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Wrapf(ErrUpstreamUnavailable, "GET %s returned status %d", url, resp.StatusCode)
	}
	return body, nil
}

// oauthContext routes the oauth2 package's token-endpoint requests
// through our configured HTTP client.
func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// toTokenPair converts an issuer token into a TokenPair with the safety
// margin already applied to the expiry.
func (c *Client) toTokenPair(tok *oauth2.Token, prevRefreshToken string) credentials.TokenPair {
	refreshToken := tok.RefreshToken
	if refreshToken == "" {
		refreshToken = prevRefreshToken
	}

	expiresAt := tok.Expiry
	if expiresAt.IsZero() {
		// Issuer omitted expires_in; assume the platform default lifetime.
		expiresAt = c.nowTime().Add(defaultLifetime)
	}

	return credentials.TokenPair{
		AccessToken:  tok.AccessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt.Add(-tokenMargin),
	}
}

// validCredentialInput is a minimal injection guard: non-empty, bounded
// length, no angle brackets.
func validCredentialInput(s string) bool {
	if s == "" || len(s) > maxFieldLength {
		return false
	}
	return !strings.ContainsAny(s, "<>")
}
