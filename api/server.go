package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/wricardo/mediatracker/media/config"
	"github.com/wricardo/mediatracker/media/event"
	"github.com/wricardo/mediatracker/media/processor"
	"github.com/wricardo/mediatracker/media/service"
	"github.com/wricardo/mediatracker/transport/websocket"
)

// Server represents the REST API server
type Server struct {
	service service.MediaService
	hub     *websocket.Hub
	router  *mux.Router
}

// NewServer creates a new API server. hub may be nil, which disables /ws.
func NewServer(mediaService service.MediaService, hub *websocket.Hub) *Server {
	s := &Server{
		service: mediaService,
		hub:     hub,
		router:  mux.NewRouter(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Session management
	api.HandleFunc("/sessions", s.handleCreateSession).Methods("POST")
	api.HandleFunc("/sessions", s.handleListSessions).Methods("GET")
	// Must be before the {id} patterns
	api.HandleFunc("/sessions/abort", s.handleAbortAll).Methods("POST")
	api.HandleFunc("/sessions/{id}/events", s.handleTrackEvent).Methods("POST")
	api.HandleFunc("/sessions/{id}", s.handleEndSession).Methods("DELETE")

	// Shared state
	api.HandleFunc("/state", s.handleGetState).Methods("GET")
	api.HandleFunc("/state", s.handleUpdateState).Methods("PUT")

	// Presets
	api.HandleFunc("/presets", s.handleListPresets).Methods("GET")
	api.HandleFunc("/presets/{name}/apply", s.handleApplyPreset).Methods("POST")

	// Backend responses
	api.HandleFunc("/edge/session-update", s.handleSessionUpdate).Methods("POST")
	api.HandleFunc("/edge/error", s.handleEdgeError).Methods("POST")

	// WebSocket
	s.router.HandleFunc("/ws", s.handleWebSocket)

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func respondServiceError(w http.ResponseWriter, err error) {
	respondError(w, errorStatus(err), err.Error())
}

// errorStatus maps service errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, event.ErrInvalidEvent),
		errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, config.ErrInvalidPreset):
		return http.StatusBadRequest
	case errors.Is(err, config.ErrPresetNotFound):
		return http.StatusNotFound
	case errors.Is(err, processor.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody decodes an optional JSON body. An empty body leaves v as is.
func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func accepted(w http.ResponseWriter, fields map[string]interface{}) {
	body := map[string]interface{}{"status": "accepted"}
	for k, v := range fields {
		body[k] = v
	}
	respondJSON(w, http.StatusAccepted, body)
}

// Session Handlers

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req service.CreateSessionRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	session, err := s.service.CreateSession(r.Context(), req)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, session)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.service.ListSessions(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	query := r.URL.Query()
	if status := query.Get("status"); status != "" {
		filtered := sessions[:0]
		for _, sess := range sessions {
			if sess.Status.String() == status {
				filtered = append(filtered, sess)
			}
		}
		sessions = filtered
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			respondError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		if limit < len(sessions) {
			sessions = sessions[:limit]
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func (s *Server) handleAbortAll(w http.ResponseWriter, r *http.Request) {
	if err := s.service.AbortAllSessions(r.Context()); err != nil {
		respondServiceError(w, err)
		return
	}

	accepted(w, nil)
}

func (s *Server) handleTrackEvent(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var ev event.XDMEvent
	if err := decodeBody(r, &ev); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.service.TrackEvent(r.Context(), sessionID, ev); err != nil {
		respondServiceError(w, err)
		return
	}

	accepted(w, map[string]interface{}{
		"session_id": sessionID,
		"event_type": ev.Type,
	})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	if err := s.service.EndSession(r.Context(), sessionID); err != nil {
		respondServiceError(w, err)
		return
	}

	accepted(w, map[string]interface{}{"session_id": sessionID})
}

// State Handlers

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	st, err := s.service.GetState(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleUpdateState(w http.ResponseWriter, r *http.Request) {
	var data map[string]interface{}
	if err := decodeBody(r, &data); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.service.UpdateState(r.Context(), data); err != nil {
		respondServiceError(w, err)
		return
	}

	accepted(w, map[string]interface{}{"keys": len(data)})
}

// Preset Handlers

func (s *Server) handleListPresets(w http.ResponseWriter, r *http.Request) {
	presets, err := s.service.ListPresets(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, presets)
}

func (s *Server) handleApplyPreset(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	preset, err := s.service.ApplyPreset(r.Context(), name)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	accepted(w, map[string]interface{}{"preset": preset})
}

// Backend response handlers

func (s *Server) handleSessionUpdate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RequestEventID   string `json:"request_event_id"`
		BackendSessionID string `json:"backend_session_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.service.NotifySessionUpdate(r.Context(), req.RequestEventID, req.BackendSessionID); err != nil {
		respondServiceError(w, err)
		return
	}

	accepted(w, nil)
}

func (s *Server) handleEdgeError(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RequestEventID string                 `json:"request_event_id"`
		Data           map[string]interface{} `json:"data"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.service.NotifyError(r.Context(), req.RequestEventID, req.Data); err != nil {
		respondServiceError(w, err)
		return
	}

	accepted(w, nil)
}

// WebSocket Handler

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		http.Error(w, "record stream disabled", http.StatusServiceUnavailable)
		return
	}

	// An empty session subscribes to every session's records
	sessionID := r.URL.Query().Get("session")
	if sessionID != websocket.AllSessions {
		sessions, err := s.service.ListSessions(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		found := false
		for _, sess := range sessions {
			if sess.ID == sessionID {
				found = true
				break
			}
		}
		if !found {
			http.Error(w, "Invalid session", http.StatusNotFound)
			return
		}
	}

	s.hub.ServeWS(w, r, sessionID)
}

// Health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}
