// Package client provides a typed Go client for the archgate HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/Mindburn-Labs/archgate/pkg/acr"
	"github.com/Mindburn-Labs/archgate/pkg/api"
	"github.com/Mindburn-Labs/archgate/pkg/constraints"
)

// APIError is returned when the API responds with a non-2xx status.
type APIError struct {
	Status  int
	Title   string
	Detail  string
	Field   string
	TraceID string
}

func (e *APIError) Error() string {
	msg := e.Detail
	if msg == "" {
		msg = e.Title
	}
	return fmt.Sprintf("archgate api %d: %s", e.Status, msg)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Client talks to an archgate server. It satisfies api.ACRService, so CLI
// commands can drive a remote workflow the same way as a local one.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

var _ api.ACRService = (*Client)(nil)

// Option configures the client.
type Option func(*Client)

// WithToken sets the bearer token sent on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.Token = token }
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.HTTPClient.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var p api.ProblemDetail
		if err := json.NewDecoder(resp.Body).Decode(&p); err != nil || p.Title == "" {
			return &APIError{Status: resp.StatusCode, Title: http.StatusText(resp.StatusCode)}
		}
		return &APIError{Status: resp.StatusCode, Title: p.Title, Detail: p.Detail, Field: p.Field, TraceID: p.TraceID}
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.do(ctx, http.MethodGet, "/health", nil, &out)
	return out, err
}

// ListPending calls GET /v1/acrs/pending.
func (c *Client) ListPending(ctx context.Context) ([]*acr.ACR, error) {
	var out api.PendingResponse
	if err := c.do(ctx, http.MethodGet, "/v1/acrs/pending", nil, &out); err != nil {
		return nil, err
	}
	return out.ACRs, nil
}

// Get calls GET /v1/acrs/{id}.
func (c *Client) Get(ctx context.Context, id string) (*acr.ACR, error) {
	var out acr.ACR
	if err := c.do(ctx, http.MethodGet, "/v1/acrs/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Create calls POST /v1/acrs.
func (c *Client) Create(ctx context.Context, opts acr.CreateOptions) (*acr.ACR, error) {
	var out acr.ACR
	if err := c.do(ctx, http.MethodPost, "/v1/acrs", opts, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Review calls POST /v1/acrs/review. Rejections the workflow itself would
// report (unknown id, bad decision, closed ACR) come back as an unsuccessful
// result; authentication and transport problems are errors.
func (c *Client) Review(ctx context.Context, opts acr.ReviewOptions) (*acr.ReviewResult, error) {
	var out api.ReviewResponse
	err := c.do(ctx, http.MethodPost, "/v1/acrs/review", opts, &out)
	if err == nil {
		return &acr.ReviewResult{Success: true, ACR: out.ACR}, nil
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return nil, err
	}
	res := &acr.ReviewResult{Success: false, Error: apiErr.Detail}
	switch {
	case apiErr.Status == http.StatusNotFound:
		res.Failure = acr.FailureNotFound
	case apiErr.Status == http.StatusConflict:
		res.Failure = acr.FailureTerminal
	case apiErr.Status == http.StatusBadRequest && apiErr.Field == "decision":
		res.Failure = acr.FailureInvalidDecision
	case apiErr.Status == http.StatusBadRequest:
		res.Failure = acr.FailureInvalidRequest
	default:
		return nil, err
	}
	return res, nil
}

// Query calls GET /v1/constraints with f as query parameters.
func (c *Client) Query(ctx context.Context, f constraints.Filter) (constraints.QueryResult, error) {
	q := url.Values{}
	if f.Type != "" {
		q.Set("type", string(f.Type))
	}
	if f.Severity != "" {
		q.Set("severity", string(f.Severity))
	}
	if f.Scope != "" {
		q.Set("scope", f.Scope)
	}
	if f.Owner != "" {
		q.Set("owner", f.Owner)
	}
	path := "/v1/constraints"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out constraints.QueryResult
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// Constraint calls GET /v1/constraints/{id}.
func (c *Client) Constraint(ctx context.Context, id string) (constraints.Constraint, error) {
	var out constraints.Constraint
	err := c.do(ctx, http.MethodGet, "/v1/constraints/"+url.PathEscape(id), nil, &out)
	return out, err
}

// Rejected calls GET /v1/constraints/rejected.
func (c *Client) Rejected(ctx context.Context) ([]constraints.Rejected, error) {
	var out struct {
		Rejected []constraints.Rejected `json:"rejected"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/constraints/rejected", nil, &out)
	return out.Rejected, err
}
