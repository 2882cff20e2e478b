package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/clipforge/clipforge-go/internal/watcher"
)

// Server exposes the watch service over a local HTTP API.
// The root URL is /api/v1/.
type Server struct {
	service *watcher.Service
	token   string
	log     *zap.SugaredLogger
	router  *mux.Router
}

// NewServer builds the HTTP API around a watch service. When token is
// non-empty every request must carry it as a bearer credential.
func NewServer(service *watcher.Service, token string, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	s := &Server{
		service: service,
		token:   token,
		log:     log,
	}

	router := mux.NewRouter()
	router.Use(s.authorizationRequired)

	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	apiRouter.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	apiRouter.HandleFunc("/watches", s.handleListWatches).Methods(http.MethodGet)
	apiRouter.HandleFunc("/watches", s.handleCreateWatch).Methods(http.MethodPost)
	apiRouter.HandleFunc("/watches/{projectID}", s.handleGetWatch).Methods(http.MethodGet)
	apiRouter.HandleFunc("/watches/{projectID}", s.handleDeleteWatch).Methods(http.MethodDelete)
	apiRouter.HandleFunc("/watches/{projectID}/reconnect", s.handleReconnectWatch).Methods(http.MethodPost)

	s.router = router
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// authorizationRequired rejects requests without the configured bearer token
func (s *Server) authorizationRequired(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" && r.Header.Get("Authorization") != "Bearer "+s.token {
			http.Error(w, "Not authorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type healthResponse struct {
	Status  string `json:"status"`
	Watches int    `json:"watches"`
}

type createWatchRequest struct {
	ProjectID string `json:"project_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Watches: s.service.Count(),
	})
}

func (s *Server) handleListWatches(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.service.Statuses())
}

func (s *Server) handleCreateWatch(w http.ResponseWriter, r *http.Request) {
	var req createWatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProjectID == "" {
		s.writeError(w, http.StatusBadRequest, "project_id is required")
		return
	}

	watch, err := s.service.WatchProject(req.ProjectID)
	if err != nil {
		if s.service.Get(req.ProjectID) != nil {
			s.writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.log.Errorw("Failed to create watch", "projectId", req.ProjectID, "error", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusCreated, watch.Status())
}

func (s *Server) handleGetWatch(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["projectID"]
	watch := s.service.Get(projectID)
	if watch == nil {
		s.writeError(w, http.StatusNotFound, "watch not found")
		return
	}

	s.writeJSON(w, http.StatusOK, watch.Status())
}

func (s *Server) handleDeleteWatch(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["projectID"]
	if s.service.Get(projectID) == nil {
		s.writeError(w, http.StatusNotFound, "watch not found")
		return
	}

	if err := s.service.Unwatch(projectID); err != nil {
		s.log.Errorw("Failed to remove watch", "projectId", projectID, "error", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReconnectWatch(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["projectID"]
	watch := s.service.Get(projectID)
	if watch == nil {
		s.writeError(w, http.StatusNotFound, "watch not found")
		return
	}

	watch.Reconnect()
	s.writeJSON(w, http.StatusOK, watch.Status())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Errorw("Failed to write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}
