package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/lazypower/recall/internal/retrieval"
)

const (
	// DefaultURL is where `recall serve` listens by default.
	DefaultURL  = "http://127.0.0.1:37777"
	httpTimeout = 30 * time.Second
)

// Client talks to a running recall server.
type Client struct {
	http      *http.Client
	serverURL string
}

// New creates a client for baseURL. An empty baseURL uses RECALL_URL,
// falling back to DefaultURL.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("RECALL_URL")
	}
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Client{
		http:      &http.Client{Timeout: httpTimeout},
		serverURL: strings.TrimRight(baseURL, "/"),
	}
}

// URL returns the server base URL.
func (c *Client) URL() string { return c.serverURL }

// Health is the body of GET /api/health.
type Health struct {
	Status  string           `json:"status"`
	Version string           `json:"version"`
	Uptime  float64          `json:"uptime"`
	DB      bool             `json:"db"`
	DBPath  string           `json:"db_path"`
	Modes   []retrieval.Mode `json:"modes"`
}

// Health fetches server status.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.do(ctx, http.MethodGet, "/api/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Healthy reports whether the server answers its health check.
func (c *Client) Healthy(ctx context.Context) bool {
	_, err := c.Health(ctx)
	return err == nil
}

// Retrieve runs a pipeline retrieval. An empty mode and a nil topK use
// the server defaults.
func (c *Client) Retrieve(ctx context.Context, query string, topK *int, mode retrieval.Mode, filters retrieval.Filters) (*retrieval.Response, error) {
	body := queryBody(query, topK)
	if mode != "" {
		body["mode"] = mode
	}
	if len(filters) > 0 {
		body["filters"] = filters
	}
	var resp retrieval.Response
	if err := c.do(ctx, http.MethodPost, "/api/retrieve", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SearchHybrid runs a fusion retrieval.
func (c *Client) SearchHybrid(ctx context.Context, query string, topK *int, filters retrieval.Filters) (*retrieval.Response, error) {
	body := queryBody(query, topK)
	if len(filters) > 0 {
		body["filters"] = filters
	}
	var resp retrieval.Response
	if err := c.do(ctx, http.MethodPost, "/api/search/hybrid", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Enrich appends retrieved context to existing, which may be nil.
func (c *Client) Enrich(ctx context.Context, query string, existing *string, topK *int) (*retrieval.Enrichment, error) {
	body := queryBody(query, topK)
	body["context"] = existing
	var out retrieval.Enrichment
	if err := c.do(ctx, http.MethodPost, "/api/enrich", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func queryBody(query string, topK *int) map[string]any {
	body := map[string]any{"query": query}
	if topK != nil {
		body["top_k"] = *topK
	}
	return body
}

// SearchNodes queries the knowledge graph on the server.
func (c *Client) SearchNodes(ctx context.Context, query string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/api/graph/search?q="+url.QueryEscape(query), nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// do sends body as JSON and decodes the response into out. Status codes
// of 400 and above are errors carrying the response body.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		rd = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, rd)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response %s: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(data))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
