// Package api is the HTTP side of the suite harness: an authenticated
// client for the application under test and JSON schema checks for its
// responses.
package api

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

	"github.com/kamilpajak/smarttest/internal/config"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"
)

// Client sends requests to the API under test.
type Client struct {
	baseURL string
	header  http.Header
	http    *http.Client
	logger  *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l.Named("api") }
}

// New builds a client for baseURL with the given auth.
func New(baseURL string, timeout time.Duration, auth config.AuthSettings, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		header:  AuthHeader(auth),
		http:    &http.Client{Timeout: timeout},
		logger:  zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// NewFromConfig builds a client from the suite's api and auth sections.
// api.base_url falls back to suite_info.base_url.
func NewFromConfig(cfg *config.SuiteConfig, opts ...Option) *Client {
	base := cfg.API.BaseURL
	if base == "" {
		base = cfg.Info.BaseURL
	}
	return New(base, cfg.API.TimeoutDuration(), cfg.Auth, opts...)
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
}

// JSON decodes the body into the generic form the schema validator takes.
// Numbers are kept as json.Number.
func (r *Response) JSON() (any, error) {
	v, err := jsonschema.UnmarshalJSON(bytes.NewReader(r.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	return v, nil
}

// Decode unmarshals the body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}

// Get sends a GET request.
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, path, nil)
}

// Post sends body as JSON.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, http.MethodPost, path, body)
}

// Put sends body as JSON.
func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, http.MethodPut, path, body)
}

// Delete sends a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, http.MethodDelete, path, nil)
}

// Do sends a request. path is joined to the base URL unless it is absolute.
// A []byte or string body is sent as is; anything else is encoded as JSON.
func (c *Client) Do(ctx context.Context, method, path string, body any) (*Response, error) {
	target, err := c.resolve(path)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	contentType := ""
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range c.header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	out := &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
		Duration:   time.Since(start),
	}
	c.logger.Debug("request done",
		zap.String("method", method),
		zap.String("url", target),
		zap.Int("status", out.StatusCode),
		zap.Duration("duration", out.Duration))
	return out, nil
}

func (c *Client) resolve(path string) (string, error) {
	if u, err := url.Parse(path); err == nil && u.IsAbs() {
		return path, nil
	}
	if c.baseURL == "" {
		return "", fmt.Errorf("relative path %q needs api.base_url", path)
	}
	return c.baseURL + "/" + strings.TrimLeft(path, "/"), nil
}
