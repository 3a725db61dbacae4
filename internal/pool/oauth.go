package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// googleOAuthURL is Google's token endpoint, unchanged from the teacher.
const googleOAuthURL = "https://oauth2.googleapis.com/token"

// tokenResponse is the OAuth token response shape from Google.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// OAuthRefresher is the default TokenRefresher, grounded on the teacher's
// quota.RefreshAccessToken but parameterized per-instance instead of using
// package-level client credentials.
type OAuthRefresher struct {
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

// NewOAuthRefresher builds a refresher bound to one OAuth client.
func NewOAuthRefresher(clientID, clientSecret string) *OAuthRefresher {
	return &OAuthRefresher{
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
	}
}

// Refresh exchanges refreshToken for a fresh access token.
func (r *OAuthRefresher) Refresh(ctx context.Context, refreshToken string) (string, time.Duration, error) {
	if refreshToken == "" {
		return "", 0, fmt.Errorf("refresh token is empty")
	}

	data := url.Values{}
	data.Set("client_id", r.clientID)
	data.Set("client_secret", r.clientSecret)
	data.Set("refresh_token", refreshToken)
	data.Set("grant_type", "refresh_token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, googleOAuthURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("token request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, fmt.Errorf("read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("token refresh failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", 0, fmt.Errorf("parse token response: %w", err)
	}

	return tr.AccessToken, time.Duration(tr.ExpiresIn) * time.Second, nil
}
