package googleoauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"leadgen-server/internal/observability"
)

const (
	googleOauthTokenURL = "https://oauth2.googleapis.com/token"
	googleUserInfoURL   = "https://www.googleapis.com/oauth2/v3/userinfo"
)

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
	ExpiresIn    int    `json:"expires_in"`
}

type UserInfo struct {
	ID        string `json:"sub"`
	Email     string `json:"email"`
	FirstName string `json:"given_name"`
	LastName  string `json:"family_name"`
}

type Client struct {
	clientID     string
	clientSecret string
	redirectURL  string
	logger       *observability.Logger
	httpClient   *http.Client
}

func NewClient(clientID, clientSecret, redirectURL string, logger *observability.Logger) *Client {
	return &Client{
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURL:  redirectURL,
		logger:       logger,
		httpClient:   &http.Client{},
	}
}

// ExchangeCode trades an authorization code for tokens. The refresh token is
// only present on the first consent and must be stored.
func (c *Client) ExchangeCode(ctx context.Context, code string) (TokenResponse, error) {
	return c.tokenRequest(ctx, map[string]string{
		"code":         code,
		"redirect_uri": c.redirectURL,
		"grant_type":   "authorization_code",
	})
}

// RefreshAccessToken trades a stored refresh token for a fresh access token.
func (c *Client) RefreshAccessToken(ctx context.Context, refreshToken string) (TokenResponse, error) {
	return c.tokenRequest(ctx, map[string]string{
		"refresh_token": refreshToken,
		"grant_type":    "refresh_token",
	})
}

func (c *Client) tokenRequest(ctx context.Context, params map[string]string) (TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, googleOauthTokenURL, nil)
	if err != nil {
		c.logger.InfoWithError(ctx, "failed to create request", err)
		return TokenResponse{}, fmt.Errorf("failed to create request: %w", err)
	}

	q := req.URL.Query()
	q.Add("client_id", c.clientID)
	q.Add("client_secret", c.clientSecret)
	for key, value := range params {
		q.Add(key, value)
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error(ctx, "failed to make request", err)
		return TokenResponse{}, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.InfoWithError(ctx, "failed to read response body", err)
		return TokenResponse{}, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errorResponse struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		if err := json.Unmarshal(body, &errorResponse); err != nil {
			c.logger.InfoWithError(ctx, "failed to unmarshal response body", err)
			return TokenResponse{}, fmt.Errorf("failed to unmarshal response body: %w", err)
		}
		c.logger.Error(ctx, "token request rejected",
			fmt.Errorf("error: %s, description: %s", errorResponse.Error, errorResponse.ErrorDescription))
		return TokenResponse{}, fmt.Errorf("token request rejected: %s", errorResponse.ErrorDescription)
	}

	var tokenResponse TokenResponse
	if err := json.Unmarshal(body, &tokenResponse); err != nil {
		c.logger.InfoWithError(ctx, "failed to unmarshal response body", err)
		return TokenResponse{}, fmt.Errorf("failed to unmarshal response body: %w", err)
	}

	return tokenResponse, nil
}

func (c *Client) GetUserInfo(ctx context.Context, token string) (UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, googleUserInfoURL, nil)
	if err != nil {
		c.logger.InfoWithError(ctx, "failed to create request", err)
		return UserInfo{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.InfoWithError(ctx, "failed to make request", err)
		return UserInfo{}, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.InfoWithError(ctx, "failed to read response body", err)
		return UserInfo{}, fmt.Errorf("failed to read response body: %w", err)
	}

	var userInfo UserInfo
	if err := json.Unmarshal(body, &userInfo); err != nil {
		c.logger.InfoWithError(ctx, "failed to unmarshal response body", err)
		return UserInfo{}, fmt.Errorf("failed to unmarshal response body: %w", err)
	}

	return userInfo, nil
}
