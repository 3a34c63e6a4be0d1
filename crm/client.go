// Package crm talks to the remote CRM platform's REST data API on
// behalf of an authenticated session. Every call targets the session's
// own instance URL with its bearer token; this package holds no
// credentials of its own.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

const (
	requestTimeout    = 30 * time.Second
	defaultAPIVersion = "v58.0"
)

// Client issues bearer-authenticated calls against the CRM data API.
type Client struct {
	httpClient *http.Client
	apiVersion string
}

// ClientOption modifies a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client (primarily for testing).
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a CRM client for the given data API version.
func NewClient(apiVersion string, options ...ClientOption) *Client {
	if apiVersion == "" {
		apiVersion = defaultAPIVersion
	}

	c := &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		apiVersion: apiVersion,
	}

	for _, opt := range options {
		opt(c)
	}

	return c
}

// Query runs a SOQL query and returns the records array. A reply
// without a records field is treated as malformed.
func (c *Client) Query(ctx context.Context, instanceURL, accessToken, soql string) (gjson.Result, error) {
	endpoint := fmt.Sprintf("%s/services/data/%s/query?q=%s", strings.TrimRight(instanceURL, "/"), c.apiVersion, queryEscape(soql))
	body, err := c.do(ctx, http.MethodGet, endpoint, accessToken, nil)
	if err != nil {
		return gjson.Result{}, errors.Wrap(err, "[Client.Query]")
	}

	records := gjson.GetBytes(body, "records")
	if !records.Exists() {
		return gjson.Result{}, errors.New("[Client.Query] response has no records field")
	}
	return records, nil
}

// UpdateRecord patches fields on an object record.
func (c *Client) UpdateRecord(ctx context.Context, instanceURL, accessToken, object, id string, fields map[string]interface{}) error {
	endpoint := c.recordURL(instanceURL, object, id)
	if _, err := c.do(ctx, http.MethodPatch, endpoint, accessToken, fields); err != nil {
		return errors.Wrapf(err, "[Client.UpdateRecord] %s/%s", object, id)
	}
	return nil
}

// CreateRecord inserts an object record and returns its new id.
func (c *Client) CreateRecord(ctx context.Context, instanceURL, accessToken, object string, fields map[string]interface{}) (string, error) {
	endpoint := fmt.Sprintf("%s/services/data/%s/sobjects/%s", strings.TrimRight(instanceURL, "/"), c.apiVersion, object)
	body, err := c.do(ctx, http.MethodPost, endpoint, accessToken, fields)
	if err != nil {
		return "", errors.Wrapf(err, "[Client.CreateRecord] %s", object)
	}

	id := gjson.GetBytes(body, "id").String()
	if id == "" {
		return "", errors.Errorf("[Client.CreateRecord] %s: response has no id", object)
	}
	return id, nil
}

func (c *Client) recordURL(instanceURL, object, id string) string {
	return fmt.Sprintf("%s/services/data/%s/sobjects/%s/%s", strings.TrimRight(instanceURL, "/"), c.apiVersion, object, id)
}

func (c *Client) do(ctx context.Context, method, endpoint, accessToken string, payload interface{}) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrap(err, "marshalling request body")
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, errors.Wrap(err, "creating request")
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "sending request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Errorf("CRM returned status %d: %s", resp.StatusCode, excerpt(body))
	}
	return body, nil
}

func excerpt(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}

// EscapeSOQL escapes a string literal for interpolation into a SOQL
// WHERE clause.
func EscapeSOQL(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return r.Replace(s)
}

func queryEscape(soql string) string {
	// SOQL travels as the q query parameter; spaces must be %20, not +.
	return strings.ReplaceAll(url.QueryEscape(soql), "+", "%20")
}
