package emaillistverify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"leadgen-server/internal/leads"
	"leadgen-server/internal/observability"
)

const defaultBaseURL = "https://apps.emaillistverify.com/api/verifyEmail"

var (
	ErrAPIKeyMissing = errors.New("emaillistverify API key not configured")

	// ErrRateLimited covers 429 and 5xx responses. Callers may retry.
	ErrRateLimited = errors.New("emaillistverify request throttled")
)

// Client calls the EmailListVerify single-email verification API.
type Client struct {
	apiKey     string
	baseURL    string
	logger     *observability.Logger
	httpClient *http.Client
}

func NewClient(apiKey string, logger *observability.Logger) *Client {
	return &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		logger:     logger,
		httpClient: &http.Client{},
	}
}

// NewClientWithBaseURL is used by tests to point the client at a stub server.
func NewClientWithBaseURL(apiKey, baseURL string, logger *observability.Logger) *Client {
	c := NewClient(apiKey, logger)
	c.baseURL = baseURL
	return c
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

type verifyResponse struct {
	Status         string  `json:"status"`
	Deliverability string  `json:"deliverability"`
	SpamTrap       bool    `json:"spam_trap"`
	Disposable     bool    `json:"disposable"`
	CatchAll       bool    `json:"catch_all"`
	Score          float64 `json:"score"`
}

// Verify checks one email address and maps the provider response to a
// validation result. A "success" status means the address is deliverable.
func (c *Client) Verify(ctx context.Context, email string) (leads.ValidationResult, error) {
	if c.apiKey == "" {
		return leads.ValidationResult{}, ErrAPIKeyMissing
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		c.logger.InfoWithError(ctx, "failed to create request", err)
		return leads.ValidationResult{}, fmt.Errorf("failed to create request: %w", err)
	}
	q := req.URL.Query()
	q.Add("secret", c.apiKey)
	q.Add("email", email)
	req.URL.RawQuery = q.Encode()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.InfoWithError(ctx, "verification request failed", err)
		return leads.ValidationResult{}, fmt.Errorf("verification request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.InfoWithError(ctx, "failed to read response body", err)
		return leads.ValidationResult{}, fmt.Errorf("failed to read response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return leads.ValidationResult{}, fmt.Errorf("%w: status %d", ErrRateLimited, resp.StatusCode)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return leads.ValidationResult{}, fmt.Errorf("%w: status %d", ErrAPIKeyMissing, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return leads.ValidationResult{}, fmt.Errorf("verification failed: status %d: %s", resp.StatusCode, string(body))
	}

	var verified verifyResponse
	if err := json.Unmarshal(body, &verified); err != nil {
		c.logger.InfoWithError(ctx, "failed to decode response body", err)
		return leads.ValidationResult{}, fmt.Errorf("failed to decode response body: %w", err)
	}

	return leads.ValidationResult{
		Email:          email,
		IsValid:        verified.Status == "success",
		Deliverability: mapDeliverability(verified.Deliverability),
		IsSpamTrap:     verified.SpamTrap,
		IsDisposable:   verified.Disposable,
		IsCatchAll:     verified.CatchAll,
		Score:          verified.Score,
	}, nil
}

func mapDeliverability(s string) leads.Deliverability {
	switch s {
	case "high":
		return leads.DeliverabilityHigh
	case "medium":
		return leads.DeliverabilityMedium
	case "low":
		return leads.DeliverabilityLow
	default:
		return leads.DeliverabilityUnknown
	}
}
