// Package remote is a thin client for the generic resource REST API of the business-records
// store. It owns request authentication, filter encoding, timeouts and the canonical
// unwrapping of the store's response envelopes.
package remote

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

	"github.com/rs/zerolog"

	"onboarding-reconciler/internal/domain"
)

const (
	resourcePrefix = "/api/resource/"
	methodPrefix   = "/api/method/"

	// DefaultRequestTimeout bounds every remote call when Config.RequestTimeout is zero.
	DefaultRequestTimeout = 15 * time.Second

	maxBodyBytes = 32 << 20
)

// Record is one remote document.
type Record = map[string]any

// Link references a remote document by doctype and name.
type Link struct {
	Doctype string
	Name    string
}

// Config holds the injected endpoint, credential and timeout.
type Config struct {
	Endpoint       string
	Credential     string
	RequestTimeout time.Duration
}

// Validate fails when the endpoint or credential is missing.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return &domain.ConfigError{Component: "remote", Message: "endpoint is not set"}
	}
	if _, err := url.ParseRequestURI(c.Endpoint); err != nil {
		return &domain.ConfigError{Component: "remote", Message: fmt.Sprintf("endpoint is not a valid URL: %v", err)}
	}
	if strings.TrimSpace(c.Credential) == "" {
		return &domain.ConfigError{Component: "remote", Message: "credential is not set"}
	}
	if c.RequestTimeout < 0 {
		return &domain.ConfigError{Component: "remote", Message: "request timeout must not be negative"}
	}
	return nil
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger attaches a logger for request tracing.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client talks to the remote resource API.
type Client struct {
	endpoint      string
	authorization string
	timeout       time.Duration
	http          *http.Client
	logger        zerolog.Logger
}

// New validates cfg and builds a Client. No remote call is made.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = DefaultRequestTimeout
	}
	c := &Client{
		endpoint:      strings.TrimRight(cfg.Endpoint, "/"),
		authorization: FormatCredential(cfg.Credential),
		timeout:       timeout,
		http:          &http.Client{Timeout: timeout},
		logger:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Endpoint returns the configured base URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Fetch lists records of resourceType matching q. A 404 is reported as a NotFoundError.
func (c *Client) Fetch(ctx context.Context, resourceType string, q Query) ([]Record, error) {
	values, err := q.Values()
	if err != nil {
		return nil, domain.NewValidationError("query", err.Error())
	}
	resp, err := c.do(ctx, http.MethodGet, resourcePath(resourceType, ""), values, nil, "")
	if err != nil {
		return nil, err
	}
	if resp.status == http.StatusNotFound {
		return nil, domain.NewNotFoundError(resourceType, "", resourceType)
	}
	if err := resp.check(); err != nil {
		return nil, err
	}
	records, err := Unwrap(resp.body)
	if err != nil {
		return nil, &domain.RemoteError{Method: http.MethodGet, Resource: resourceType, Status: resp.status, Message: "unparseable response body", Err: err}
	}
	return records, nil
}

// Get reads one record by its primary key. A 404 is reported as a NotFoundError.
func (c *Client) Get(ctx context.Context, resourceType, key string) (Record, error) {
	resp, err := c.do(ctx, http.MethodGet, resourcePath(resourceType, key), nil, nil, "")
	if err != nil {
		return nil, err
	}
	if resp.status == http.StatusNotFound {
		return nil, domain.NewNotFoundError(resourceType, key)
	}
	if err := resp.check(); err != nil {
		return nil, err
	}
	rec, err := UnwrapOne(resp.body)
	if err != nil {
		return nil, &domain.RemoteError{Method: http.MethodGet, Resource: resourceType, Status: resp.status, Message: "unparseable response body", Err: err}
	}
	if rec == nil {
		return nil, domain.NewNotFoundError(resourceType, key)
	}
	return rec, nil
}

// Create posts a new record and returns the stored version.
func (c *Client) Create(ctx context.Context, resourceType string, payload Record) (Record, error) {
	return c.write(ctx, http.MethodPost, resourceType, resourcePath(resourceType, ""), payload)
}

// Update replaces the given fields of the record identified by key.
func (c *Client) Update(ctx context.Context, resourceType, key string, payload Record) (Record, error) {
	if strings.TrimSpace(key) == "" {
		return nil, domain.NewValidationError("key", "update requires a record key")
	}
	return c.write(ctx, http.MethodPut, resourceType, resourcePath(resourceType, key), payload)
}

func (c *Client) write(ctx context.Context, method, resourceType, path string, payload Record) (Record, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", resourceType, err)
	}
	resp, err := c.do(ctx, method, path, nil, bytes.NewReader(body), "application/json")
	if err != nil {
		return nil, err
	}
	if err := resp.check(); err != nil {
		return nil, err
	}
	rec, err := UnwrapOne(resp.body)
	if err != nil {
		return nil, &domain.RemoteError{Method: method, Resource: resourceType, Status: resp.status, Message: "unparseable response body", Err: err}
	}
	if rec == nil {
		rec = Record{}
	}
	return rec, nil
}

type response struct {
	method string
	path   string
	status int
	header http.Header
	body   []byte
}

func (r *response) check() error {
	if r.status >= 200 && r.status < 300 {
		return nil
	}
	return parseRemoteError(r.method, r.path, r.status, r.body)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string) (*response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	target := c.endpoint + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, &domain.RemoteError{Method: method, Resource: path, Err: err}
	}
	req.Header.Set("Authorization", c.authorization)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("method", method).Str("path", path).Dur("elapsed", time.Since(start)).Msg("remote request failed")
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %v", ctxErr, err)
		}
		return nil, &domain.RemoteError{Method: method, Resource: path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &domain.RemoteError{Method: method, Resource: path, Status: resp.StatusCode, Err: err}
	}
	c.logger.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).Dur("elapsed", time.Since(start)).Msg("remote request")

	return &response{method: method, path: path, status: resp.StatusCode, header: resp.Header, body: data}, nil
}

func resourcePath(resourceType, key string) string {
	p := resourcePrefix + url.PathEscape(resourceType)
	if key != "" {
		p += "/" + url.PathEscape(key)
	}
	return p
}
