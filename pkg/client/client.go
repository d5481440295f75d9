// Package client is a Go client for the warden REST API. It maps error
// responses back onto the apperrors taxonomy so callers handle a remote
// failure the same way as a local one.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/platinummonkey/warden/pkg/apperrors"
	"github.com/platinummonkey/warden/pkg/httputil"
)

// ErrUnauthorized is returned for 401 responses
var ErrUnauthorized = errors.New("unauthorized")

// APIError is a non-2xx response outside the error taxonomy
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("warden api: %d %s", e.StatusCode, e.Message)
}

// Client talks to one warden server with one bearer token
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	userAgent  string
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the request timeout of the default HTTP client
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithUserAgent sets the User-Agent header
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// New creates a client. baseURL includes the API prefix, for example
// http://localhost:8080/api/v1.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		userAgent:  "warden-client",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body, dest interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if dest == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// decodeError turns an error response into the matching apperrors value
func decodeError(resp *http.Response) error {
	var body httputil.ErrorResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err := json.Unmarshal(data, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(data))
		if body.Error == "" {
			body.Error = http.StatusText(resp.StatusCode)
		}
	}

	switch resp.StatusCode {
	case http.StatusUnprocessableEntity:
		return apperrors.NewValidation(body.Field, "%s", body.Error)
	case http.StatusUnauthorized:
		return wrap(body.Error, ErrUnauthorized)
	case http.StatusForbidden:
		return wrap(body.Error, apperrors.ErrPermissionDenied)
	case http.StatusNotFound:
		return wrap(body.Error, apperrors.ErrNotFound)
	case http.StatusConflict:
		return wrap(body.Error, apperrors.ErrConflict)
	default:
		return &APIError{StatusCode: resp.StatusCode, Message: body.Error}
	}
}

// wrap attaches sentinel to a server message that may already end with it
func wrap(message string, sentinel error) error {
	message = strings.TrimSuffix(message, ": "+sentinel.Error())
	return fmt.Errorf("%s: %w", message, sentinel)
}
