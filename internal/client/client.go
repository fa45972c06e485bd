// Package client talks to the management endpoints of a running keyrelay.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/firefly-engineering/keyrelay/internal/admin"
	"github.com/firefly-engineering/keyrelay/internal/errors"
)

// DefaultTimeout bounds each management call.
const DefaultTimeout = 5 * time.Second

// Client calls /health and /rotate-key on one proxy.
type Client struct {
	base       *url.URL
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New creates a client for addr. A bare host:port is treated as http.
func New(addr string, opts ...Option) (*Client, error) {
	if addr == "" {
		return nil, errors.ValidationError("proxy address is required")
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	base, err := url.Parse(addr)
	if err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("invalid proxy address %q", addr), err)
	}
	if base.Host == "" {
		return nil, errors.ValidationError(fmt.Sprintf("proxy address %q has no host", addr))
	}
	base.Path = strings.TrimRight(base.Path, "/")

	c := &Client{
		base:       base,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Addr returns the base URL the client talks to.
func (c *Client) Addr() string {
	return c.base.String()
}

// Health fetches the proxy's health report.
func (c *Client) Health(ctx context.Context) (*admin.HealthReport, error) {
	var report admin.HealthReport
	if err := c.get(ctx, "/health", &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Rotate advances the proxy's key cursor by one.
func (c *Client) Rotate(ctx context.Context) (*admin.RotateResult, error) {
	var result admin.RotateResult
	if err := c.get(ctx, "/rotate-key", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) get(ctx context.Context, path string, v any) error {
	u := *c.base
	u.Path += path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return errors.Wrap(errors.ExitGeneralError, "failed to build request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(errors.ExitGeneralError, fmt.Sprintf("cannot reach proxy at %s", c.base), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.Wrap(errors.ExitGeneralError, "failed to read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return responseError(resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errors.Wrap(errors.ExitGeneralError, fmt.Sprintf("unexpected response from %s", path), err)
	}
	return nil
}

// responseError turns a non-200 management response back into a RelayError.
func responseError(status int, body []byte) error {
	var eb admin.ErrorBody
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &eb) == nil && eb.Error != "" {
		msg = eb.Error
	}
	if status == http.StatusBadRequest && eb.Error == errors.NoCredentials().Error() {
		return errors.NoCredentials()
	}
	return errors.New(errors.ExitGeneralError, fmt.Sprintf("proxy returned %d: %s", status, msg))
}
