package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// authManager handles bearer-token acquisition and proactive refresh for
// REST calls against the ClipForge backend
type authManager struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *zap.SugaredLogger

	mu     sync.Mutex
	token  string
	expiry time.Time
}

func newAuthManager(baseURL, apiKey string, httpClient *http.Client, log *zap.SugaredLogger) *authManager {
	return &authManager{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: httpClient,
		log:        log,
	}
}

// ValidToken returns a bearer token with more than TokenRefreshBuffer of
// lifetime remaining, authenticating if necessary
func (a *authManager) ValidToken(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.token != "" && time.Until(a.expiry) > TokenRefreshBuffer {
		return a.token, nil
	}

	a.log.Debugw("Acquiring new bearer token")
	return a.authenticateLocked(ctx)
}

// Invalidate drops the cached token so the next call re-authenticates
func (a *authManager) Invalidate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = ""
	a.expiry = time.Time{}
}

// authenticateLocked exchanges the API key for a bearer token.
// Callers must hold the lock.
func (a *authManager) authenticateLocked(ctx context.Context) (string, error) {
	payload := fmt.Sprintf(`{"grant_type":"api_key","api_key":%q}`, a.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/auth/v1/token", strings.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("authentication request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if apiErr := decodeAPIError(resp.Body); apiErr != nil {
			return "", fmt.Errorf("authentication failed (HTTP %d): %w", resp.StatusCode, apiErr)
		}
		return "", fmt.Errorf("authentication failed with HTTP %d", resp.StatusCode)
	}

	var tokenResp TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("failed to parse auth response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("auth response missing token")
	}

	a.token = tokenResp.AccessToken
	a.expiry = tokenResp.ExpiresAt
	a.log.Debugw("Authenticated with backend", "expiry", tokenResp.ExpiresAt.Format(time.RFC3339))
	return a.token, nil
}
