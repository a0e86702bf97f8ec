// Package docstore talks to a remote JSON tree store over REST. Every path
// maps to <base>/<path>.json; POST appends a child under a generated key.
package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNotConfigured is returned by a Client without a base URL.
var ErrNotConfigured = errors.New("docstore: base url not configured")

// StatusError carries a non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("docstore: %s %s returned status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// Client wraps interactions with the document store.
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

// Option customises a Client.
type Option func(*Client)

// WithAuthToken appends ?auth=<token> to every request.
func WithAuthToken(token string) Option {
	return func(c *Client) { c.authToken = token }
}

// WithHTTPClient replaces the default http client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient constructs a new client.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether a base URL is set.
func (c *Client) Configured() bool { return c != nil && c.baseURL != "" }

// Get decodes the JSON value at path into dest. A null value leaves dest untouched.
func (c *Client) Get(ctx context.Context, path string, query url.Values, dest any) error {
	body, err := c.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(body)) == 0 || string(bytes.TrimSpace(body)) == "null" {
		return nil
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("docstore: decode %s: %w", path, err)
	}
	return nil
}

// Put replaces the value at path.
func (c *Client) Put(ctx context.Context, path string, value any) error {
	_, err := c.do(ctx, http.MethodPut, path, nil, value)
	return err
}

// Post appends value under path and returns the generated key.
func (c *Client) Post(ctx context.Context, path string, value any) (string, error) {
	body, err := c.do(ctx, http.MethodPost, path, nil, value)
	if err != nil {
		return "", err
	}
	var resp struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("docstore: decode post response: %w", err)
	}
	if resp.Name == "" {
		return "", fmt.Errorf("docstore: post %s returned no key", path)
	}
	return resp.Name, nil
}

// Delete removes the value at path.
func (c *Client) Delete(ctx context.Context, path string) error {
	_, err := c.do(ctx, http.MethodDelete, path, nil, nil)
	return err
}

// Ping checks that the store answers a shallow read of the root.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "", url.Values{"shallow": {"true"}}, nil)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, value any) ([]byte, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	var reader io.Reader
	if value != nil {
		payload, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("docstore: encode %s: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), reader)
	if err != nil {
		return nil, err
	}
	if value != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("docstore: %s %s: %w", method, path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, &StatusError{Method: method, Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	path = strings.Trim(path, "/")
	u := c.baseURL + "/" + path + ".json"
	q := url.Values{}
	for k, v := range query {
		q[k] = v
	}
	if c.authToken != "" {
		q.Set("auth", c.authToken)
	}
	if encoded := q.Encode(); encoded != "" {
		u += "?" + encoded
	}
	return u
}
