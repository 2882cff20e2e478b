package api

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/clipforge/clipforge-go/internal/statuschannel"
)

// TokenResponse represents the bearer token issued for an API key
type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"-"` // Parsed from expires_at milliseconds
}

// UnmarshalJSON converts expires_at from epoch milliseconds to time.Time
func (t *TokenResponse) UnmarshalJSON(data []byte) error {
	// Type alias avoids infinite recursion through this method
	type Alias TokenResponse
	aux := &struct {
		ExpiresAtMs int64 `json:"expires_at"`
		*Alias
	}{
		Alias: (*Alias)(t),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.ExpiresAtMs > 0 {
		t.ExpiresAt = time.Unix(0, aux.ExpiresAtMs*int64(time.Millisecond)).UTC()
	}
	return nil
}

// StreamTokenResponse represents the short-lived credential minted for one
// status stream connection
type StreamTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"-"` // Parsed from expires_at milliseconds
}

// UnmarshalJSON converts expires_at from epoch milliseconds to time.Time
func (t *StreamTokenResponse) UnmarshalJSON(data []byte) error {
	type Alias StreamTokenResponse
	aux := &struct {
		ExpiresAtMs int64 `json:"expires_at"`
		*Alias
	}{
		Alias: (*Alias)(t),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.ExpiresAtMs > 0 {
		t.ExpiresAt = time.Unix(0, aux.ExpiresAtMs*int64(time.Millisecond)).UTC()
	}
	return nil
}

// Project represents one clipping project owned by the backend
type Project struct {
	ID          string                      `json:"id"`
	Title       string                      `json:"title"`
	SourceURL   string                      `json:"source_url"`
	Status      statuschannel.ProjectStatus `json:"status"`
	Progress    float64                     `json:"progress"`
	CurrentStep string                      `json:"current_step,omitempty"`
	ClipCount   int                         `json:"clip_count"`
	CreatedAt   time.Time                   `json:"-"` // Parsed from created_at milliseconds
}

// UnmarshalJSON converts created_at from epoch milliseconds to time.Time
func (p *Project) UnmarshalJSON(data []byte) error {
	type Alias Project
	aux := &struct {
		CreatedAtMs int64 `json:"created_at"`
		*Alias
	}{
		Alias: (*Alias)(p),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.CreatedAtMs > 0 {
		p.CreatedAt = time.Unix(0, aux.CreatedAtMs*int64(time.Millisecond)).UTC()
	}
	return nil
}

// Clip represents one generated clip within a project
type Clip struct {
	ID          string  `json:"id"`
	ProjectID   string  `json:"project_id"`
	Title       string  `json:"title"`
	ViralScore  float64 `json:"viral_score"`
	StartMs     int64   `json:"start_ms"`
	EndMs       int64   `json:"end_ms"`
	DownloadURL string  `json:"download_url,omitempty"`
}

// ProjectsResponse is the envelope for the project listing endpoint
type ProjectsResponse struct {
	Projects []Project `json:"projects"`
}

// ClipsResponse is the envelope for the clip listing endpoint
type ClipsResponse struct {
	Clips []Clip `json:"clips"`
}

// APIError represents a structured error body from the backend.
// Format: {"errors": [{"code": "not_found", "message": "unknown project"}]}
type APIError struct {
	Errors []ErrorDetail `json:"errors"`
}

// ErrorDetail represents one entry of an API error body
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface for APIError
func (e *APIError) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("%s: %s", e.Errors[0].Code, e.Errors[0].Message)
	}
	return "unknown API error"
}
