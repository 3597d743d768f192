package httpapi

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/fitron/coachd/internal/coach"
	"github.com/fitron/coachd/internal/intent"
	"github.com/fitron/coachd/internal/prompt"
	"github.com/fitron/coachd/internal/protocol"
)

// handleChatWS runs a chat conversation over a websocket. Each
// user_message frame is one turn with the same semantics as the REST
// endpoint; the connection pins the session key after the first turn
// so anonymous clients keep one session for the connection lifetime.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	sessionKey := strings.TrimSpace(r.URL.Query().Get("session_key"))

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("chat ws: read error: %v", err)
			}
			return
		}

		msg, err := protocol.ParseClientMessage(raw)
		if err != nil {
			s.writeWSError(conn, "invalid_message", err.Error())
			continue
		}

		result, err := s.orchestrator.HandleMessage(r.Context(), userID, sessionKey, msg.Text)
		if err != nil {
			s.writeWSTurnError(conn, err)
			continue
		}
		sessionKey = result.SessionKey

		intents := result.Intents
		if intents == nil {
			intents = intent.Set{}
		}
		event := protocol.TurnResultEvent{
			Type:                protocol.TypeTurnResult,
			SessionKey:          result.SessionKey,
			Reply:               result.Reply,
			RiskTier:            result.RiskTier,
			EscalationSuggested: result.Escalation.ShouldEscalate,
			EscalationReason:    result.Escalation.Reason,
			Intents:             intents,
			ContextLength:       result.ContextLength,
			Timestamp:           result.Timestamp,
		}
		if err := conn.WriteJSON(event); err != nil {
			log.Printf("chat ws: write error: %v", err)
			return
		}
	}
}

func (s *Server) writeWSTurnError(conn *websocket.Conn, err error) {
	var tooLarge *prompt.TooLargeError
	switch {
	case errors.Is(err, coach.ErrInvalidInput):
		s.writeWSError(conn, "invalid_input", err.Error())
	case errors.As(err, &tooLarge):
		s.writeWSError(conn, "prompt_too_large", err.Error())
	default:
		s.writeWSError(conn, "internal_error", err.Error())
	}
}

func (s *Server) writeWSError(conn *websocket.Conn, code, detail string) {
	event := protocol.ErrorEvent{
		Type:   protocol.TypeErrorEvent,
		Code:   code,
		Detail: detail,
	}
	if err := conn.WriteJSON(event); err != nil {
		log.Printf("chat ws: write error: %v", err)
	}
}
