// Package testutil provides helpers for integration tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
)

// Client calls the server API with a bearer token and, when a validator is
// set, checks every response against the OpenAPI document.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Validator  *OpenAPIValidator
	t          *testing.T
}

// NewClient creates a client. validator may be nil.
func NewClient(baseURL string, validator *OpenAPIValidator) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{},
		Validator:  validator,
	}
}

// For returns a copy of the client that reports validation failures to t.
func (c *Client) For(t *testing.T) *Client {
	clone := *c
	clone.t = t
	return &clone
}

// WithoutValidation returns a copy of the client that skips OpenAPI checks.
func (c *Client) WithoutValidation() *Client {
	clone := *c
	clone.Validator = nil
	return &clone
}

// LoginAs signs in and keeps the issued access token for later calls.
func (c *Client) LoginAs(t *testing.T, email, password string) {
	t.Helper()
	c.t = t

	resp, err := c.POST("/api/v1/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		t.Fatalf("login request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login failed: status=%d body=%s", resp.StatusCode, ReadBody(t, resp))
	}

	var body struct {
		Data struct {
			AccessToken string `json:"access_token"`
		} `json:"data"`
	}
	DecodeJSON(t, resp, &body)
	c.Token = body.Data.AccessToken
}

// GET performs a GET request.
func (c *Client) GET(path string) (*http.Response, error) {
	return c.do(http.MethodGet, path, nil)
}

// POST performs a POST request with a JSON body.
func (c *Client) POST(path string, body any) (*http.Response, error) {
	return c.do(http.MethodPost, path, body)
}

// PATCH performs a PATCH request with a JSON body.
func (c *Client) PATCH(path string, body any) (*http.Response, error) {
	return c.do(http.MethodPatch, path, body)
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
	}

	req, err := http.NewRequest(method, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}

	if c.Validator != nil && c.t != nil {
		validationReq, _ := http.NewRequest(method, c.BaseURL+path, bytes.NewReader(payload))
		validationReq.Header = req.Header
		c.Validator.ValidateResponse(c.t, validationReq, resp)
	}
	return resp, nil
}

// DecodeJSON decodes the response body into v and closes it.
func DecodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// ReadBody returns the response body as a string and closes it.
func ReadBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}
