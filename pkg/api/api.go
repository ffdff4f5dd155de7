// pkg/api/api.go

// Package api is a typed HTTP client for the dashboard API. It covers
// every endpoint: triggering crawls, reading run history, querying and
// exporting listings, stats and health.
package api

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

	"github.com/propertylens/propertylens/pkg/types"
)

const defaultTimeout = 30 * time.Second

// APIError is a non-2xx response decoded from the server's error body.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("dashboard api: %s (status %d)", e.Message, e.StatusCode)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client talks to one dashboard server.
type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
}

// Option adjusts a client at construction.
type Option func(*Client)

// WithToken sets the bearer token sent on API requests.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpc = hc }
}

// NewClient creates a client for the server at baseURL, for example
// "http://localhost:8080".
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StartRun asks the server to launch a crawl and returns the run id.
func (c *Client) StartRun(ctx context.Context, req StartRunRequest) (string, error) {
	var resp StartRunResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/runs", nil, req, &resp); err != nil {
		return "", err
	}
	return resp.RunID, nil
}

// Runs returns active runs and recent history.
func (c *Client) Runs(ctx context.Context) (*RunsOverview, error) {
	var overview RunsOverview
	if err := c.do(ctx, http.MethodGet, "/api/v1/runs", nil, nil, &overview); err != nil {
		return nil, err
	}
	return &overview, nil
}

// Run fetches one run by id. IsNotFound(err) reports an unknown id.
func (c *Client) Run(ctx context.Context, runID string) (*types.RunSummary, error) {
	var sum types.RunSummary
	path := "/api/v1/runs/" + url.PathEscape(runID)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &sum); err != nil {
		return nil, err
	}
	return &sum, nil
}

// Listings returns one page of listings matching the query.
func (c *Client) Listings(ctx context.Context, q ListingQuery) (*ListingsPage, error) {
	var page ListingsPage
	if err := c.do(ctx, http.MethodGet, "/api/v1/listings", q.values(), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// ExportCSV streams the CSV export for the query into w.
func (c *Client) ExportCSV(ctx context.Context, q ListingQuery, w io.Writer) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/listings/export", q.values(), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("dashboard api: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("read export: %w", err)
	}
	return nil
}

// Stats returns store-wide aggregates.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var stats Stats
	if err := c.do(ctx, http.MethodGet, "/api/v1/stats", nil, nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Health checks the server. A degraded or unhealthy report is returned
// as a value, not an error; only transport and protocol failures error.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/health", nil, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dashboard api: %w", err)
	}
	defer resp.Body.Close()
	// The health endpoint answers 503 with a report body when unhealthy.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return nil, decodeError(resp)
	}
	var h Health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return nil, fmt.Errorf("decode health: %w", err)
	}
	return &h, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body interface{}) (*http.Request, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("dashboard api: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		apiErr.Message = body.Error
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
