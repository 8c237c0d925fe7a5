package serper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"leadgen-server/internal/observability"
)

const serperSearchURL = "https://google.serper.dev/search"

var (
	ErrAPIKeyMissing = errors.New("serper API key not configured")

	// ErrRateLimited covers 429 and 5xx responses. Callers may retry.
	ErrRateLimited = errors.New("serper request throttled")
)

// Result is one organic search hit.
type Result struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// Client calls the serper.dev Google search API.
type Client struct {
	apiKey     string
	logger     *observability.Logger
	httpClient *http.Client
}

func NewClient(apiKey string, logger *observability.Logger) *Client {
	return &Client{
		apiKey:     apiKey,
		logger:     logger,
		httpClient: &http.Client{},
	}
}

// Search runs one query and returns up to num organic results.
func (c *Client) Search(ctx context.Context, query string, num int) ([]Result, error) {
	if c.apiKey == "" {
		return nil, ErrAPIKeyMissing
	}

	payload, err := json.Marshal(map[string]any{"q": query, "num": num})
	if err != nil {
		return nil, fmt.Errorf("failed to encode search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serperSearchURL, bytes.NewReader(payload))
	if err != nil {
		c.logger.InfoWithError(ctx, "failed to create request", err)
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.InfoWithError(ctx, "search request failed", err)
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.InfoWithError(ctx, "failed to read response body", err)
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: status %d", ErrRateLimited, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("search failed: status %d: %s", resp.StatusCode, string(body))
	}

	var searchResponse struct {
		Organic []Result `json:"organic"`
	}
	if err := json.Unmarshal(body, &searchResponse); err != nil {
		c.logger.InfoWithError(ctx, "failed to decode response body", err)
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}

	return searchResponse.Organic, nil
}
