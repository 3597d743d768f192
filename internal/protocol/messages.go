package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fitron/coachd/internal/intent"
	"github.com/fitron/coachd/internal/policy"
	"github.com/fitron/coachd/internal/risk"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeUserMessage MessageType = "user_message"
	TypeTurnResult  MessageType = "turn_result"
	TypeErrorEvent  MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// UserMessage is one inbound chat turn over the websocket.
type UserMessage struct {
	Type MessageType `json:"type"`
	Text string      `json:"text"`
}

// TurnResultEvent mirrors the REST chat response as a pushed frame.
type TurnResultEvent struct {
	Type                MessageType   `json:"type"`
	SessionKey          string        `json:"session_key"`
	Reply               string        `json:"reply"`
	RiskTier            risk.Tier     `json:"risk_tier"`
	EscalationSuggested bool          `json:"escalation_suggested"`
	EscalationReason    policy.Reason `json:"escalation_reason"`
	Intents             intent.Set    `json:"intents"`
	ContextLength       int           `json:"context_length"`
	Timestamp           time.Time     `json:"timestamp"`
}

type ErrorEvent struct {
	Type   MessageType `json:"type"`
	Code   string      `json:"code"`
	Detail string      `json:"detail"`
}

// ParseClientMessage decodes and validates one inbound frame.
func ParseClientMessage(raw []byte) (UserMessage, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return UserMessage{}, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeUserMessage:
		var msg UserMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return UserMessage{}, err
		}
		if msg.Text == "" {
			return UserMessage{}, errors.New("invalid user_message: text required")
		}
		return msg, nil
	default:
		return UserMessage{}, ErrUnsupportedType
	}
}
