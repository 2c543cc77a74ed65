package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/fleetconf/shepherd/pkg/types"
)

// Client talks to the v3 HTTP API.
type Client struct {
	base string
	http *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithTimeout overrides the default 30 second request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithCACert trusts the given PEM-encoded CA for server verification.
func WithCACert(pem []byte) Option {
	return func(c *Client) {
		pool := x509.NewCertPool()
		pool.AppendCertsFromPEM(pem)
		c.http.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{
				RootCAs:    pool,
				MinVersion: tls.VersionTLS13,
			},
		}
	}
}

// New creates a client for the service at base, e.g. "http://localhost:8080".
func New(base string, opts ...Option) *Client {
	c := &Client{
		base: base,
		http: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Title      string
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Title, e.StatusCode, e.Detail)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Title: http.StatusText(resp.StatusCode)}
		var p struct {
			Title  string `json:"title"`
			Detail string `json:"detail"`
		}
		if json.NewDecoder(resp.Body).Decode(&p) == nil && p.Title != "" {
			apiErr.Title = p.Title
			apiErr.Detail = p.Detail
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ComponentPage is one page of a component listing.
type ComponentPage struct {
	Components []*types.Component `json:"components"`
	Next       string             `json:"next"`
}

// ListComponents fetches one page of components. Pass the previous page's
// Next cursor to continue; an empty Next means the listing is complete.
func (c *Client) ListComponents(ctx context.Context, query url.Values) (*ComponentPage, error) {
	var page ComponentPage
	if err := c.do(ctx, http.MethodGet, "/v3/components", query, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetComponent fetches a component by ID.
func (c *Client) GetComponent(ctx context.Context, id string) (*types.Component, error) {
	var comp types.Component
	if err := c.do(ctx, http.MethodGet, "/v3/components/"+url.PathEscape(id), nil, nil, &comp); err != nil {
		return nil, err
	}
	return &comp, nil
}

// PutComponent creates or replaces a component.
func (c *Client) PutComponent(ctx context.Context, comp *types.Component) (*types.Component, error) {
	var out types.Component
	if err := c.do(ctx, http.MethodPut, "/v3/components/"+url.PathEscape(comp.ID), nil, comp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PatchComponent applies a partial update to a component.
func (c *Client) PatchComponent(ctx context.Context, id string, patch *types.ComponentPatch) (*types.Component, error) {
	var out types.Component
	if err := c.do(ctx, http.MethodPatch, "/v3/components/"+url.PathEscape(id), nil, patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteComponent removes a component.
func (c *Client) DeleteComponent(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v3/components/"+url.PathEscape(id), nil, nil, nil)
}

// ConfigurationPage is one page of a configuration listing.
type ConfigurationPage struct {
	Configurations []*types.Configuration `json:"configurations"`
	Next           string                 `json:"next"`
}

// ListConfigurations fetches one page of configurations.
func (c *Client) ListConfigurations(ctx context.Context, query url.Values) (*ConfigurationPage, error) {
	var page ConfigurationPage
	if err := c.do(ctx, http.MethodGet, "/v3/configurations", query, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetConfiguration fetches a configuration by name.
func (c *Client) GetConfiguration(ctx context.Context, name string) (*types.Configuration, error) {
	var cfg types.Configuration
	if err := c.do(ctx, http.MethodGet, "/v3/configurations/"+url.PathEscape(name), nil, nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// PutConfiguration creates or replaces a configuration.
func (c *Client) PutConfiguration(ctx context.Context, cfg *types.Configuration) (*types.Configuration, error) {
	var out types.Configuration
	if err := c.do(ctx, http.MethodPut, "/v3/configurations/"+url.PathEscape(cfg.Name), nil, cfg, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteConfiguration soft-deletes a configuration.
func (c *Client) DeleteConfiguration(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/v3/configurations/"+url.PathEscape(name), nil, nil, nil)
}

// RestoreConfiguration reinstates a soft-deleted configuration.
func (c *Client) RestoreConfiguration(ctx context.Context, name string) (*types.Configuration, error) {
	var cfg types.Configuration
	if err := c.do(ctx, http.MethodPost, "/v3/configurations/"+url.PathEscape(name)+"/restore", nil, nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SessionPage is one page of a session listing.
type SessionPage struct {
	Sessions []*types.Session `json:"sessions"`
	Next     string           `json:"next"`
}

// ListSessions fetches one page of sessions.
func (c *Client) ListSessions(ctx context.Context, query url.Values) (*SessionPage, error) {
	var page SessionPage
	if err := c.do(ctx, http.MethodGet, "/v3/sessions", query, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// CreateSession creates a new session.
func (c *Client) CreateSession(ctx context.Context, s *types.Session) (*types.Session, error) {
	var out types.Session
	if err := c.do(ctx, http.MethodPost, "/v3/sessions", nil, s, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSession fetches a session by name.
func (c *Client) GetSession(ctx context.Context, name string) (*types.Session, error) {
	var s types.Session
	if err := c.do(ctx, http.MethodGet, "/v3/sessions/"+url.PathEscape(name), nil, nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// DeleteSession removes a session.
func (c *Client) DeleteSession(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/v3/sessions/"+url.PathEscape(name), nil, nil, nil)
}

// GetOptions fetches the service options.
func (c *Client) GetOptions(ctx context.Context) (*types.Options, error) {
	var opts types.Options
	if err := c.do(ctx, http.MethodGet, "/v3/options", nil, nil, &opts); err != nil {
		return nil, err
	}
	return &opts, nil
}
