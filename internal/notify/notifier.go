package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/fitron/coachd/internal/policy"
	"github.com/fitron/coachd/internal/risk"
)

// Notifier flags a session for human-supervisor attention.
// Fire-and-forget: failures never affect the turn result.
type Notifier interface {
	Notify(ctx context.Context, sessionKey string, decision policy.Decision, tier risk.Tier)
}

// New returns a webhook notifier when a URL is configured, otherwise
// a log-only notifier.
func New(webhookURL string) Notifier {
	if strings.TrimSpace(webhookURL) == "" {
		return &LogNotifier{}
	}
	return NewWebhookNotifier(webhookURL)
}

// LogNotifier records escalations in the service log only.
type LogNotifier struct{}

func (n *LogNotifier) Notify(_ context.Context, sessionKey string, decision policy.Decision, tier risk.Tier) {
	log.Printf("escalation: session=%s reason=%s tier=%s", sessionKey, decision.Reason, tier)
}

// WebhookNotifier POSTs escalation events to a supervisor endpoint.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url: strings.TrimSpace(url),
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

type escalationEvent struct {
	SessionKey string    `json:"session_key"`
	Reason     string    `json:"reason"`
	RiskTier   string    `json:"risk_tier"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (n *WebhookNotifier) Notify(ctx context.Context, sessionKey string, decision policy.Decision, tier risk.Tier) {
	payload, err := json.Marshal(escalationEvent{
		SessionKey: sessionKey,
		Reason:     string(decision.Reason),
		RiskTier:   tier.String(),
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		log.Printf("escalation notify: marshal failed: %v", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		log.Printf("escalation notify: create request failed: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := n.client.Do(req)
	if err != nil {
		log.Printf("escalation notify: %v", err)
		return
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		log.Printf("escalation notify: status %d", res.StatusCode)
	}
}
