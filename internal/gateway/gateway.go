// Package gateway is the typed request/response boundary to the remote
// tutoring service. Every method takes its inputs explicitly, performs exactly
// one HTTP exchange and never retries.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// DefaultBasePath is the versioned API prefix of the service.
const DefaultBasePath = "/api/v1"

// Client talks to the remote tutoring service.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. The default client has
// no timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a client for the service rooted at serviceURL. When serviceURL
// has no path, DefaultBasePath is appended.
func New(serviceURL string, opts ...Option) (*Client, error) {
	serviceURL = strings.TrimRight(strings.TrimSpace(serviceURL), "/")
	if serviceURL == "" {
		return nil, errors.New("service URL is required")
	}
	if !strings.HasPrefix(serviceURL, "http://") && !strings.HasPrefix(serviceURL, "https://") {
		return nil, fmt.Errorf("service URL %q must be http or https", serviceURL)
	}
	if !strings.Contains(strings.TrimPrefix(strings.TrimPrefix(serviceURL, "https://"), "http://"), "/") {
		serviceURL += DefaultBasePath
	}
	c := &Client{baseURL: serviceURL, http: &http.Client{}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the resolved API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type errorBody struct {
	Detail string `json:"detail"`
}

// do performs one JSON exchange. in may be nil; out may be nil to discard the
// response body.
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return &RemoteError{Op: op, Kind: KindNetwork, Err: fmt.Errorf("marshal request: %w", err)}
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &RemoteError{Op: op, Kind: KindNetwork, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &RemoteError{Op: op, Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &RemoteError{Op: op, Kind: KindNetwork, Status: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		re := &RemoteError{Op: op, Kind: KindService, Status: resp.StatusCode}
		var eb errorBody
		if json.Unmarshal(data, &eb) == nil {
			re.Detail = eb.Detail
		}
		slog.Debug("remote service error", "op", op, "status", resp.StatusCode, "detail", re.Detail)
		return re
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &RemoteError{Op: op, Kind: KindService, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
