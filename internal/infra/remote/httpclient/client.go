// Package httpclient implements domain.RemoteClient over a JSON HTTP API and
// a transferer that uploads variants to presigned URLs.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"entitysync/pkg/domain"
)

// EnvAPIURL names the base URL of the remote API.
const EnvAPIURL = "ENTITYSYNC_API_URL"

// Client defaults.
const (
	DefaultTimeout        = 60 * time.Second
	DefaultConnectTimeout = 5 * time.Second
	DefaultTLSTimeout     = 5 * time.Second
	// maxErrorBody caps how much of a failed response is kept on RemoteError.
	maxErrorBody = 64 << 10
)

// NewHTTPClient returns an *http.Client with bounded connect, TLS and
// overall timeouts.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	dialer := &net.Dialer{Timeout: DefaultConnectTimeout}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: DefaultTLSTimeout,
		MaxIdleConnsPerHost: 8,
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

// Client issues JSON calls against base. Paths are joined onto it, so
// "teams/7" against https://api.example.com/v1 becomes
// https://api.example.com/v1/teams/7.
type Client struct {
	base   *url.URL
	http   *http.Client
	bearer string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithBearerToken attaches an Authorization header to every call.
func WithBearerToken(token string) Option {
	return func(cl *Client) { cl.bearer = token }
}

// New constructs a Client for baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("api url %q must be absolute", baseURL)
	}
	c := &Client{base: base, http: NewHTTPClient(0)}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewFromEnv constructs a Client from ENTITYSYNC_API_URL.
func NewFromEnv(opts ...Option) (*Client, error) {
	raw := os.Getenv(EnvAPIURL)
	if raw == "" {
		return nil, fmt.Errorf("%s is not set", EnvAPIURL)
	}
	return New(raw, opts...)
}

func (c *Client) Get(ctx context.Context, path string) (domain.Response, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *Client) Patch(ctx context.Context, path string, body any) (domain.Response, error) {
	return c.do(ctx, http.MethodPatch, path, body)
}

func (c *Client) Post(ctx context.Context, path string, body any) (domain.Response, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

func (c *Client) Delete(ctx context.Context, path string, body any) (domain.Response, error) {
	return c.do(ctx, http.MethodDelete, path, body)
}

func (c *Client) do(ctx context.Context, method, path string, body any) (domain.Response, error) {
	target := c.base.JoinPath(path).String()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return domain.Response{}, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return domain.Response{}, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Response{}, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return domain.Response{}, remoteError(resp.StatusCode, raw)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Response{}, fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	return domain.Response{Status: resp.StatusCode, Body: raw}, nil
}

// remoteError extracts the {"message": "..."} payload when present.
func remoteError(status int, raw []byte) *domain.RemoteError {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		payload.Message = ""
	}
	return &domain.RemoteError{Status: status, Message: payload.Message, Body: raw}
}

var _ domain.RemoteClient = (*Client)(nil)
