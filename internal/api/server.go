// Package api implements the HTTP session API.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cartlens/cartlens/internal/agent"
	"github.com/cartlens/cartlens/internal/buildinfo"
	"github.com/cartlens/cartlens/internal/llm"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

func errorResponse(w http.ResponseWriter, status int, message string, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	writeJSON(w, map[string]any{"error": message}, logger)
}

// Server is the HTTP API server.
type Server struct {
	address string
	port    int
	manager *agent.Manager
	client  llm.Client
	logger  *slog.Logger
	server  *http.Server
}

// NewServer creates the API server over a session manager.
func NewServer(address string, port int, manager *agent.Manager, client llm.Client, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		address: address,
		port:    port,
		manager: manager,
		client:  client,
		logger:  logger.With("component", "api"),
	}
}

// Start begins serving HTTP requests. Blocks until the listener fails
// or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	// Session lifecycle
	mux.HandleFunc("POST /v1/sessions", s.handleSessionStart)
	mux.HandleFunc("GET /v1/sessions/{id}", s.handleSessionGet)
	mux.HandleFunc("POST /v1/sessions/{id}/messages", s.handleMessage)
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleSessionEnd)

	// Health endpoints
	mux.HandleFunc("GET /v1/version", s.handleVersion)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /", s.handleRoot)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:      s.withLogging(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // message handling waits on the reasoning loop
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"name":    "CartLens",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, buildinfo.Info(), s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	if err := s.client.Ping(r.Context()); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
		s.logger.Warn("provider unreachable", "error", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{
		"status":   status,
		"sessions": s.manager.Count(),
	}, s.logger)
}

func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	sess := s.manager.StartSession()
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, map[string]any{
		"session_id": sess.ID,
		"state":      sess.State(),
		"created_at": sess.CreatedAt.UTC().Format(time.RFC3339),
	}, s.logger)
}

func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	sess := s.manager.Session(r.PathValue("id"))
	if sess == nil {
		errorResponse(w, http.StatusNotFound, "unknown session", s.logger)
		return
	}
	writeJSON(w, map[string]any{
		"session_id": sess.ID,
		"state":      sess.State(),
		"created_at": sess.CreatedAt.UTC().Format(time.RFC3339),
		"messages":   len(sess.History()),
	}, s.logger)
}

type messageRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "invalid JSON body", s.logger)
		return
	}
	if req.Content == "" {
		errorResponse(w, http.StatusBadRequest, "content is required", s.logger)
		return
	}

	if s.manager.Session(id) == nil {
		errorResponse(w, http.StatusNotFound, "unknown session", s.logger)
		return
	}

	reply, err := s.manager.PostMessage(r.Context(), id, req.Content)
	if err != nil {
		s.logger.Error("message processing failed", "session", id, "error", err)
		errorResponse(w, http.StatusInternalServerError, err.Error(), s.logger)
		return
	}

	writeJSON(w, map[string]any{
		"session_id": id,
		"reply":      reply,
	}, s.logger)
}

func (s *Server) handleSessionEnd(w http.ResponseWriter, r *http.Request) {
	if !s.manager.EndSession(r.PathValue("id")) {
		errorResponse(w, http.StatusNotFound, "unknown session", s.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
