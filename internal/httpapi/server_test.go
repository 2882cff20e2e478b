package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipforge/clipforge-go/internal/statuschannel"
	"github.com/clipforge/clipforge-go/internal/watcher"
)

type stubChannel struct{}

func (s *stubChannel) Open(projectID string) {}
func (s *stubChannel) Close()                {}
func (s *stubChannel) Reconnect()            {}
func (s *stubChannel) Health() statuschannel.Health {
	return statuschannel.Health{Phase: statuschannel.PhaseOpen, Connected: true}
}

func newTestServer(t *testing.T, token string) *Server {
	t.Helper()
	service := watcher.NewServiceWithFactory(func(projectID string, onMessage func(statuschannel.StatusMessage)) watcher.Channel {
		return &stubChannel{}
	}, nil, nil)
	t.Cleanup(func() { _ = service.Close() })
	return NewServer(service, token, nil)
}

func doRequest(s *Server, method, path, token, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestAuthorization(t *testing.T) {
	t.Run("should reject requests without the bearer token", func(t *testing.T) {
		s := newTestServer(t, "secret")
		rec := doRequest(s, http.MethodGet, "/api/v1/health", "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("should reject requests with the wrong token", func(t *testing.T) {
		s := newTestServer(t, "secret")
		rec := doRequest(s, http.MethodGet, "/api/v1/health", "wrong", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("should accept requests with the configured token", func(t *testing.T) {
		s := newTestServer(t, "secret")
		rec := doRequest(s, http.MethodGet, "/api/v1/health", "secret", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("should allow all requests when no token is configured", func(t *testing.T) {
		s := newTestServer(t, "")
		rec := doRequest(s, http.MethodGet, "/api/v1/health", "", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, "")
	rec := doRequest(s, http.MethodPost, "/api/v1/watches", "", `{"project_id":"proj-1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(s, http.MethodGet, "/api/v1/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var health struct {
		Status  string `json:"status"`
		Watches int    `json:"watches"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 1, health.Watches)
}

func TestWatchEndpoints(t *testing.T) {
	t.Run("should create a watch", func(t *testing.T) {
		s := newTestServer(t, "")
		rec := doRequest(s, http.MethodPost, "/api/v1/watches", "", `{"project_id":"proj-1"}`)
		require.Equal(t, http.StatusCreated, rec.Code)

		var status watcher.Status
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
		assert.Equal(t, "proj-1", status.ProjectID)
		assert.True(t, status.Connected)
	})

	t.Run("should reject a watch without a project id", func(t *testing.T) {
		s := newTestServer(t, "")
		rec := doRequest(s, http.MethodPost, "/api/v1/watches", "", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("should reject malformed request bodies", func(t *testing.T) {
		s := newTestServer(t, "")
		rec := doRequest(s, http.MethodPost, "/api/v1/watches", "", `{not json`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("should conflict on a duplicate watch", func(t *testing.T) {
		s := newTestServer(t, "")
		rec := doRequest(s, http.MethodPost, "/api/v1/watches", "", `{"project_id":"proj-1"}`)
		require.Equal(t, http.StatusCreated, rec.Code)

		rec = doRequest(s, http.MethodPost, "/api/v1/watches", "", `{"project_id":"proj-1"}`)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("should list watches", func(t *testing.T) {
		s := newTestServer(t, "")
		doRequest(s, http.MethodPost, "/api/v1/watches", "", `{"project_id":"proj-b"}`)
		doRequest(s, http.MethodPost, "/api/v1/watches", "", `{"project_id":"proj-a"}`)

		rec := doRequest(s, http.MethodGet, "/api/v1/watches", "", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var statuses []watcher.Status
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &statuses))
		require.Len(t, statuses, 2)
		assert.Equal(t, "proj-a", statuses[0].ProjectID)
		assert.Equal(t, "proj-b", statuses[1].ProjectID)
	})

	t.Run("should fetch a single watch", func(t *testing.T) {
		s := newTestServer(t, "")
		doRequest(s, http.MethodPost, "/api/v1/watches", "", `{"project_id":"proj-1"}`)

		rec := doRequest(s, http.MethodGet, "/api/v1/watches/proj-1", "", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var status watcher.Status
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
		assert.Equal(t, "proj-1", status.ProjectID)
	})

	t.Run("should return not found for an unknown watch", func(t *testing.T) {
		s := newTestServer(t, "")
		rec := doRequest(s, http.MethodGet, "/api/v1/watches/missing", "", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("should delete a watch", func(t *testing.T) {
		s := newTestServer(t, "")
		doRequest(s, http.MethodPost, "/api/v1/watches", "", `{"project_id":"proj-1"}`)

		rec := doRequest(s, http.MethodDelete, "/api/v1/watches/proj-1", "", "")
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = doRequest(s, http.MethodGet, "/api/v1/watches/proj-1", "", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("should return not found when deleting an unknown watch", func(t *testing.T) {
		s := newTestServer(t, "")
		rec := doRequest(s, http.MethodDelete, "/api/v1/watches/missing", "", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("should reconnect a watch", func(t *testing.T) {
		s := newTestServer(t, "")
		doRequest(s, http.MethodPost, "/api/v1/watches", "", `{"project_id":"proj-1"}`)

		rec := doRequest(s, http.MethodPost, "/api/v1/watches/proj-1/reconnect", "", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("should return not found reconnecting an unknown watch", func(t *testing.T) {
		s := newTestServer(t, "")
		rec := doRequest(s, http.MethodPost, "/api/v1/watches/missing/reconnect", "", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
