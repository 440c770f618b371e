package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/lazypower/recall/internal/retrieval"
)

// DefaultWebEndpoint is the Bing Web Search v7 endpoint.
const DefaultWebEndpoint = "https://api.bing.microsoft.com/v7.0/search"

// WebRetriever queries a Bing v7 compatible web search API.
type WebRetriever struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewWebRetriever creates a web source, or returns nil when it is not
// configured so callers can leave it unregistered.
func NewWebRetriever(endpoint, apiKey string, timeout time.Duration) *WebRetriever {
	if endpoint == "" || apiKey == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebRetriever{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

type bingResponse struct {
	WebPages struct {
		Value []struct {
			Name    string `json:"name"`
			URL     string `json:"url"`
			Snippet string `json:"snippet"`
		} `json:"value"`
	} `json:"webPages"`
}

// Retrieve returns up to topK web pages for query. Pages carry no score.
func (w *WebRetriever) Retrieve(ctx context.Context, query string, topK int, _ retrieval.Filters) ([]retrieval.Result, error) {
	if topK <= 0 {
		return []retrieval.Result{}, nil
	}

	u, err := url.Parse(w.endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse web endpoint: %w", err)
	}
	params := u.Query()
	params.Set("q", query)
	params.Set("count", strconv.Itoa(topK))
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create web search request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", w.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("web search: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read web search response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("web search status %d: %s", resp.StatusCode, body)
	}

	var parsed bingResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode web search response: %w", err)
	}

	results := make([]retrieval.Result, 0, len(parsed.WebPages.Value))
	for _, page := range parsed.WebPages.Value {
		if page.URL == "" {
			continue
		}
		results = append(results, retrieval.Result{
			ID:   page.URL,
			Text: page.Name + "\n" + page.Snippet,
			Metadata: map[string]any{
				"title": page.Name,
				"url":   page.URL,
			},
		})
		if len(results) == topK {
			break
		}
	}
	return results, nil
}
