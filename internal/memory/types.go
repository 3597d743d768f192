package memory

import (
	"context"
	"time"
)

// TurnRecord stores a single user or assistant conversational turn.
type TurnRecord struct {
	ID          string    `json:"id"`
	SessionKey  string    `json:"session_key"`
	UserID      string    `json:"user_id,omitempty"`
	Role        string    `json:"role"`
	Text        string    `json:"text"`
	RiskTier    string    `json:"risk_tier,omitempty"`
	PIIRedacted bool      `json:"pii_redacted"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store persists turns and rehydrates recent context. Persistence is
// best-effort from the orchestrator's perspective: failures are logged
// and never block turn handling.
type Store interface {
	SaveTurn(ctx context.Context, record TurnRecord) error
	RecentTurns(ctx context.Context, sessionKey string, limit int) ([]TurnRecord, error)
	Close() error
}
