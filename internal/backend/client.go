// Package backend talks to the remote scripting backend. Every call is a
// JSON POST to one endpoint carrying an "action" tag plus the fields that
// action needs; the response body is relayed as opaque JSON.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout bounds one backend call.
const DefaultTimeout = 30 * time.Second

// ErrInvalidResponse is returned when the backend answers with something
// that is not JSON.
var ErrInvalidResponse = errors.New("backend: response is not valid JSON")

// StatusError reports a non-2xx answer from the backend.
type StatusError struct {
	Action     string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend: %s: unexpected status %d: %s", e.Action, e.StatusCode, e.Body)
}

// Request is one remote call. It is encoded as a single flat JSON object:
// {"action": Action, <Fields...>}.
type Request struct {
	Action string
	Fields map[string]any
}

// MarshalJSON flattens Fields next to the action tag.
func (r Request) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(r.Fields)+1)
	for k, v := range r.Fields {
		m[k] = v
	}
	m["action"] = r.Action
	return json.Marshal(m)
}

// Caller performs remote calls.
type Caller interface {
	Call(ctx context.Context, req Request) (json.RawMessage, error)
}

// Client is the HTTP Caller used in production.
type Client struct {
	endpoint string
	hc       *http.Client
	timeout  time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

// WithTimeout bounds each call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// New returns a client posting to endpoint.
func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint: endpoint,
		hc:       &http.Client{},
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call posts req and returns the backend's JSON answer unchanged.
func (c *Client) Call(ctx context.Context, req Request) (json.RawMessage, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("backend: %s: encoding request: %w", req.Action, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("backend: %s: building request: %w", req.Action, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("backend: %s: %w", req.Action, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("backend: %s: reading response: %w", req.Action, err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, &StatusError{Action: req.Action, StatusCode: resp.StatusCode, Body: truncate(string(body), 256)}
	}
	body = bytes.TrimSpace(body)
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w (action %s)", ErrInvalidResponse, req.Action)
	}
	return json.RawMessage(body), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
