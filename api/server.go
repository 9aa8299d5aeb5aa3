package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"

	"github.com/wricardo/collabboard/board/export"
	"github.com/wricardo/collabboard/board/service"
	"github.com/wricardo/collabboard/board/session"
	"github.com/wricardo/collabboard/transport/piston"
	"github.com/wricardo/collabboard/transport/websocket"
)

// maxExecuteBody caps the size of a code execution request
const maxExecuteBody = 1 << 20

// Server represents the REST API server
type Server struct {
	service   service.BoardService
	hub       *websocket.Hub
	router    *mux.Router
	staticDir string
}

// NewServer creates a new API server serving static files from ./static/
func NewServer(boardService service.BoardService, hub *websocket.Hub) *Server {
	return NewServerWithStatic(boardService, hub, "./static/")
}

// NewServerWithStatic creates a new API server serving static files from staticDir
func NewServerWithStatic(boardService service.BoardService, hub *websocket.Hub, staticDir string) *Server {
	s := &Server{
		service:   boardService,
		hub:       hub,
		router:    mux.NewRouter(),
		staticDir: staticDir,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Use(logRequests)

	// Realtime board connections
	s.router.HandleFunc("/realtime/session/{sessionId}", s.handleWebSocket)
	s.router.HandleFunc("/ws/board/{sessionId}", s.handleWebSocket)

	// Board snapshots
	s.router.HandleFunc("/session-state/{sessionId}", s.handleSessionState).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/session/{sessionId}", s.handleSessionState).Methods("GET")

	// Session management
	api.HandleFunc("/sessions", s.handleCreateSession).Methods("POST")
	api.HandleFunc("/sessions", s.handleListSessions).Methods("GET")
	api.HandleFunc("/sessions/{sessionId}", s.handleGetSession).Methods("GET")
	api.HandleFunc("/sessions/{sessionId}/export.pdf", s.handleExportPDF).Methods("GET")
	api.HandleFunc("/sessions/{sessionId}/textbox-id", s.handleNewTextboxID).Methods("POST")

	// Code editor
	api.HandleFunc("/languages", s.handleListLanguages).Methods("GET")
	api.HandleFunc("/execute", s.handleExecute).Methods("POST")

	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Board page; the client reads the session ID from the path
	s.router.HandleFunc("/board/{sessionId}", s.handleBoardPage).Methods("GET")

	// Static files
	s.router.PathPrefix("/").Handler(http.FileServer(http.Dir(s.staticDir)))
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// logRequests logs one line per request with its status and duration
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		log.Printf("%s %s %d %s (%d bytes)", r.Method, r.URL.Path, m.Code, m.Duration.Round(time.Millisecond), m.Written)
	})
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

// respondServiceError maps session errors to HTTP statuses
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, session.ErrSessionNotFound.Error())
	case errors.Is(err, session.ErrInvalidSessionID):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrSessionAlreadyExists):
		respondError(w, http.StatusConflict, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// WebSocket Handler

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.hub.ServeWS(w, r, mux.Vars(r)["sessionId"])
}

// Session Handlers

func (s *Server) handleSessionState(w http.ResponseWriter, r *http.Request) {
	st, err := s.service.GetSessionState(r.Context(), mux.Vars(r)["sessionId"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id,omitempty"`
	}

	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	info, err := s.service.CreateSession(r.Context(), req.SessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, info)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.service.ListSessions(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	total := len(sessions)

	query := r.URL.Query()
	sortBy := query.Get("sort")    // "created", "active" (default)
	order := query.Get("order")    // "asc", "desc" (default)
	limitStr := query.Get("limit") // number of sessions to return

	if sortBy == "" {
		sortBy = "active"
	}
	if order == "" {
		order = "desc"
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		var ti, tj time.Time
		if sortBy == "created" {
			ti, tj = sessions[i].CreatedAt, sessions[j].CreatedAt
		} else {
			ti, tj = sessions[i].LastActiveAt, sessions[j].LastActiveAt
		}

		if order == "asc" {
			return ti.Before(tj)
		}
		return ti.After(tj)
	})

	if limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l < len(sessions) {
			sessions = sessions[:l]
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(sessions),
		"total":    total,
		"sessions": sessions,
		"sort":     sortBy,
		"order":    order,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	info, err := s.service.GetSession(r.Context(), mux.Vars(r)["sessionId"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleNewTextboxID(w http.ResponseWriter, r *http.Request) {
	id, err := s.service.NewTextboxID(r.Context(), mux.Vars(r)["sessionId"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleExportPDF(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]

	st, err := s.service.GetSessionState(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WritePDF(&buf, sessionID, st); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "board-"+sessionID+".pdf"))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// Code editor handlers

func (s *Server) handleListLanguages(w http.ResponseWriter, r *http.Request) {
	languages, err := s.service.ListLanguages(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":     len(languages),
		"languages": languages,
	})
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req piston.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxExecuteBody)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.service.ExecuteCode(r.Context(), req)
	if err != nil {
		var upstream *piston.UpstreamError
		switch {
		case errors.As(err, &upstream):
			respondJSON(w, http.StatusInternalServerError, map[string]interface{}{
				"error":   upstream.Error(),
				"details": upstream.Details,
			})
		case errors.Is(err, piston.ErrMissingLanguage):
			respondError(w, http.StatusBadRequest, err.Error())
		default:
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(result)
}

func (s *Server) handleBoardPage(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, filepath.Join(s.staticDir, "index.html"))
}

// Health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}
