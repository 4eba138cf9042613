// Package server – server.go is the HTTP surface: SSE chat endpoints, the
// confirmation resume endpoint, the manual consolidation trigger, and a
// health probe. All endpoints except /healthz require the service token.
package server

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/oeduardop1/life-assistant/pkg/assistant/agent"
	"github.com/oeduardop1/life-assistant/pkg/assistant/memory"
)

// Server hosts the HTTP API.
type Server struct {
	runner         *agent.Runner
	consolidation  *memory.Worker
	serviceToken   string
	maxInputLength int
	logger         *slog.Logger
}

// Options configures a Server.
type Options struct {
	ServiceToken   string
	MaxInputLength int
}

// New creates the HTTP API server.
func New(runner *agent.Runner, consolidation *memory.Worker, opts Options, logger *slog.Logger) *Server {
	return &Server{
		runner:         runner,
		consolidation:  consolidation,
		serviceToken:   opts.ServiceToken,
		maxInputLength: opts.MaxInputLength,
		logger:         logger.With("component", "server"),
	}
}

// Router builds the chi routing tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Get("/healthz", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.requireToken)
		r.Post("/chat/invoke", s.handleInvoke)
		r.Post("/chat/resume", s.handleResume)
		r.Post("/consolidation/run", s.handleConsolidation)
	})

	return r
}

// ---------- Middleware ----------

// requireToken enforces bearer authentication with the configured service
// token. An unset token disables the API entirely rather than opening it.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.serviceToken == "" {
			s.logger.Warn("request rejected: no service token configured")
			writeError(w, http.StatusServiceUnavailable, "serviço não configurado")
			return
		}

		auth := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.serviceToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "token inválido")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ---------- Handlers ----------

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type invokeRequest struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
	Message        string `json:"message"`
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	var req invokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "JSON inválido")
		return
	}

	req.Message = strings.TrimSpace(req.Message)
	switch {
	case req.UserID == "":
		writeError(w, http.StatusBadRequest, "userId obrigatório")
		return
	case req.ConversationID == "":
		writeError(w, http.StatusBadRequest, "conversationId obrigatório")
		return
	case req.Message == "":
		writeError(w, http.StatusBadRequest, "mensagem vazia")
		return
	case s.maxInputLength > 0 && len([]rune(req.Message)) > s.maxInputLength:
		writeError(w, http.StatusBadRequest, "mensagem muito longa")
		return
	}

	sink, ok := NewSSESink(w, s.logger)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming não suportado")
		return
	}

	start := time.Now()
	err := s.runner.Invoke(r.Context(), req.UserID, req.ConversationID, req.Message, sink)
	s.logger.Info("chat turn finished",
		"user_id", req.UserID,
		"conversation_id", req.ConversationID,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err != nil,
	)
}

type resumeRequest struct {
	ThreadID   string                    `json:"threadId"`
	Action     string                    `json:"action"`
	EditedArgs map[string]map[string]any `json:"editedArgs"`
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	var req resumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "JSON inválido")
		return
	}
	if req.ThreadID == "" {
		writeError(w, http.StatusBadRequest, "threadId obrigatório")
		return
	}
	switch req.Action {
	case agent.ActionConfirm, agent.ActionEdit, agent.ActionReject:
	default:
		writeError(w, http.StatusBadRequest, "action deve ser confirm, edit ou reject")
		return
	}

	sink, ok := NewSSESink(w, s.logger)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming não suportado")
		return
	}

	start := time.Now()
	err := s.runner.Resume(r.Context(), req.ThreadID, req.Action, req.EditedArgs, sink)
	s.logger.Info("resume finished",
		"thread_id", req.ThreadID,
		"action", req.Action,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err != nil,
	)
}

type consolidationRequest struct {
	UserID   string `json:"userId"`
	Timezone string `json:"timezone"`
}

func (s *Server) handleConsolidation(w http.ResponseWriter, r *http.Request) {
	var req consolidationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "JSON inválido")
		return
	}

	var (
		summary *memory.Summary
		err     error
	)
	switch {
	case req.UserID != "":
		summary, err = s.consolidation.RunForUser(r.Context(), req.UserID)
	case req.Timezone != "":
		summary, err = s.consolidation.RunForTimezone(r.Context(), req.Timezone)
	default:
		writeError(w, http.StatusBadRequest, "userId ou timezone obrigatório")
		return
	}
	if err != nil {
		s.logger.Error("manual consolidation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "falha na consolidação")
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// ---------- Helpers ----------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
