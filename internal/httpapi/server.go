package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/fitron/coachd/internal/coach"
	"github.com/fitron/coachd/internal/config"
	"github.com/fitron/coachd/internal/convo"
	"github.com/fitron/coachd/internal/intent"
	"github.com/fitron/coachd/internal/observability"
	"github.com/fitron/coachd/internal/policy"
	"github.com/fitron/coachd/internal/prompt"
	"github.com/fitron/coachd/internal/risk"
	"github.com/fitron/coachd/internal/session"
)

type Server struct {
	cfg          config.Config
	orchestrator *coach.Orchestrator
	metrics      *observability.Metrics
	upgrader     websocket.Upgrader
}

func New(cfg config.Config, orchestrator *coach.Orchestrator, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:          cfg,
		orchestrator: orchestrator,
		metrics:      metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browser connections by default so another
				// site cannot drive a user's coaching session.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/coach/chat", s.handleChat)
	r.Get("/v1/coach/history/{key}", s.handleHistory)
	r.Get("/v1/coach/ws", s.handleChatWS)
	r.Get("/v1/coach/perf", s.handlePerf)

	return r
}

type chatRequest struct {
	Text       string `json:"text"`
	UserID     string `json:"user_id,omitempty"`
	SessionKey string `json:"session_key,omitempty"`
}

type chatResponse struct {
	SessionKey          string        `json:"session_key"`
	Reply               string        `json:"reply"`
	RiskTier            risk.Tier     `json:"risk_tier"`
	EscalationSuggested bool          `json:"escalation_suggested"`
	EscalationReason    policy.Reason `json:"escalation_reason"`
	Intents             intent.Set    `json:"intents"`
	ContextLength       int           `json:"context_length"`
	Degraded            bool          `json:"degraded,omitempty"`
	Timestamp           time.Time     `json:"timestamp"`
}

type historyResponse struct {
	SessionKey string        `json:"session_key"`
	Turns      []convo.Turn  `json:"turns"`
	Audit      session.Audit `json:"audit"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"brain_mode": s.cfg.BrainMode,
		"store_mode": s.storeMode(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ready",
		"brain_mode": s.cfg.BrainMode,
		"store_mode": s.storeMode(),
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	result, err := s.orchestrator.HandleMessage(r.Context(), req.UserID, req.SessionKey, req.Text)
	if err != nil {
		s.respondTurnError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, turnToResponse(result))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if strings.TrimSpace(key) == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_key", "missing session key")
		return
	}

	turns, audit, err := s.orchestrator.History(key)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, historyResponse{
		SessionKey: key,
		Turns:      turns,
		Audit:      audit,
	})
}

func (s *Server) handlePerf(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.metrics.SnapshotTurnStages())
}

func (s *Server) respondTurnError(w http.ResponseWriter, err error) {
	var tooLarge *prompt.TooLargeError
	switch {
	case errors.Is(err, coach.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.As(err, &tooLarge):
		respondError(w, http.StatusRequestEntityTooLarge, "prompt_too_large", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func turnToResponse(result coach.TurnResult) chatResponse {
	if result.Intents == nil {
		result.Intents = intent.Set{}
	}
	return chatResponse{
		SessionKey:          result.SessionKey,
		Reply:               result.Reply,
		RiskTier:            result.RiskTier,
		EscalationSuggested: result.Escalation.ShouldEscalate,
		EscalationReason:    result.Escalation.Reason,
		Intents:             result.Intents,
		ContextLength:       result.ContextLength,
		Degraded:            result.Degraded,
		Timestamp:           result.Timestamp,
	}
}

func (s *Server) storeMode() string {
	if strings.TrimSpace(s.cfg.DatabaseURL) != "" {
		return "postgres"
	}
	return "in-memory"
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
