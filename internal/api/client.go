package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultRequestTimeout bounds each HTTP request to the backend
	DefaultRequestTimeout = 30 * time.Second

	// TokenRefreshBuffer is how long before bearer-token expiry the client
	// re-authenticates instead of reusing the cached token
	TokenRefreshBuffer = time.Minute
)

// Client handles authenticated communication with the ClipForge backend API.
// Bearer tokens obtained for the configured API key are cached until they
// approach expiry; stream tokens are minted fresh on every call and never
// cached.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *zap.SugaredLogger

	auth *authManager
}

// NewClient creates a backend API client. A zero timeout selects
// DefaultRequestTimeout; a nil logger disables logging.
func NewClient(baseURL, apiKey string, timeout time.Duration, log *zap.SugaredLogger) *Client {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	httpClient := &http.Client{Timeout: timeout}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: httpClient,
		log:        log,
		auth:       newAuthManager(baseURL, apiKey, httpClient, log),
	}
}

// ListProjects fetches all projects visible to the API key
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var resp ProjectsResponse
	if err := c.get(ctx, "/api/v1/projects", &resp); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return resp.Projects, nil
}

// GetProject fetches a single project by id
func (c *Client) GetProject(ctx context.Context, projectID string) (*Project, error) {
	var project Project
	path := "/api/v1/projects/" + url.PathEscape(projectID)
	if err := c.get(ctx, path, &project); err != nil {
		return nil, fmt.Errorf("get project %s: %w", projectID, err)
	}
	return &project, nil
}

// ListClips fetches the generated clips for a project
func (c *Client) ListClips(ctx context.Context, projectID string) ([]Clip, error) {
	var resp ClipsResponse
	path := "/api/v1/projects/" + url.PathEscape(projectID) + "/clips"
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("list clips for %s: %w", projectID, err)
	}
	return resp.Clips, nil
}

// StreamToken mints a fresh single-connection credential for a project's
// status stream. It satisfies statuschannel.TokenSource.
func (c *Client) StreamToken(ctx context.Context, projectID string) (string, error) {
	var resp StreamTokenResponse
	path := "/api/v1/projects/" + url.PathEscape(projectID) + "/stream-token"
	if err := c.post(ctx, path, nil, &resp); err != nil {
		return "", fmt.Errorf("mint stream token for %s: %w", projectID, err)
	}
	if resp.Token == "" {
		return "", fmt.Errorf("stream token response missing token")
	}
	return resp.Token, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

// do executes one authenticated request. A 401 from a token that went stale
// between the buffer check and the request triggers exactly one forced
// re-authentication and retry.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	retried := false
	for {
		token, err := c.auth.ValidToken(ctx)
		if err != nil {
			return fmt.Errorf("failed to get auth token: %w", err)
		}

		status, err := c.execute(ctx, method, path, token, body, out)
		if err == nil {
			return nil
		}

		if status == http.StatusUnauthorized && !retried {
			retried = true
			c.log.Debugw("Bearer token rejected, re-authenticating", "path", path)
			c.auth.Invalidate()
			continue
		}

		return err
	}
}

func (c *Client) execute(ctx context.Context, method, path, token string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		// Success - parse response below
	case http.StatusUnauthorized:
		return resp.StatusCode, fmt.Errorf("authentication error (HTTP 401): token invalid or expired")
	case http.StatusNotFound:
		if apiErr := decodeAPIError(resp.Body); apiErr != nil {
			return resp.StatusCode, fmt.Errorf("not found (HTTP 404): %w", apiErr)
		}
		return resp.StatusCode, fmt.Errorf("not found (HTTP 404)")
	case http.StatusTooManyRequests:
		return resp.StatusCode, fmt.Errorf("rate limit exceeded (HTTP 429): too many requests")
	case http.StatusInternalServerError:
		if apiErr := decodeAPIError(resp.Body); apiErr != nil {
			return resp.StatusCode, fmt.Errorf("server error (HTTP 500): %w", apiErr)
		}
		return resp.StatusCode, fmt.Errorf("server error (HTTP 500)")
	case http.StatusBadRequest:
		if apiErr := decodeAPIError(resp.Body); apiErr != nil {
			return resp.StatusCode, fmt.Errorf("bad request (HTTP 400): %w", apiErr)
		}
		return resp.StatusCode, fmt.Errorf("bad request (HTTP 400): invalid request parameters")
	default:
		return resp.StatusCode, fmt.Errorf("unexpected HTTP status %d", resp.StatusCode)
	}

	if out == nil {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to parse response: %w", err)
	}
	return resp.StatusCode, nil
}

// decodeAPIError attempts to read a structured error body, returning nil if
// the body is not in the expected format
func decodeAPIError(body io.Reader) *APIError {
	var apiErr APIError
	if err := json.NewDecoder(body).Decode(&apiErr); err != nil || len(apiErr.Errors) == 0 {
		return nil
	}
	return &apiErr
}
