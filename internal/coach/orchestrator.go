package coach

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fitron/coachd/internal/brain"
	"github.com/fitron/coachd/internal/convo"
	"github.com/fitron/coachd/internal/intent"
	"github.com/fitron/coachd/internal/memory"
	"github.com/fitron/coachd/internal/notify"
	"github.com/fitron/coachd/internal/observability"
	"github.com/fitron/coachd/internal/policy"
	"github.com/fitron/coachd/internal/prompt"
	"github.com/fitron/coachd/internal/risk"
	"github.com/fitron/coachd/internal/session"
)

// ErrInvalidInput rejects empty or oversized message text before any
// classification or session work happens.
var ErrInvalidInput = errors.New("invalid input")

// FallbackReply is returned when the generation backend is down or
// times out. Risk classification and escalation never depend on the
// backend, so a degraded turn still carries both.
const FallbackReply = "I'm experiencing some technical difficulties. Please try again in a moment."

// TurnResult is the structured outcome of one handled message.
type TurnResult struct {
	SessionKey    string          `json:"session_key"`
	Reply         string          `json:"reply"`
	Degraded      bool            `json:"degraded,omitempty"`
	RiskTier      risk.Tier       `json:"risk_tier"`
	Escalation    policy.Decision `json:"escalation"`
	Intents       intent.Set      `json:"intents"`
	ContextLength int             `json:"context_length"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Config bounds orchestrator behavior.
type Config struct {
	WindowSize        int
	MaxMessageBytes   int
	PromptBudgetBytes int
	GenerationTimeout time.Duration
	SystemPrompt      string
}

// Orchestrator coordinates classification, escalation, prompt
// assembly, the generation call, and session bookkeeping for each
// inbound message. Turns for one session key are serialized; turns
// for different keys run fully in parallel.
type Orchestrator struct {
	cfg      Config
	sessions *session.Registry
	store    memory.Store
	client   brain.Client
	notifier notify.Notifier
	metrics  *observability.Metrics
}

func New(cfg Config, sessions *session.Registry, store memory.Store, client brain.Client, notifier notify.Notifier, metrics *observability.Metrics) *Orchestrator {
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = 4096
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = 30 * time.Second
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = prompt.CoachSystemPrompt
	}
	return &Orchestrator{
		cfg:      cfg,
		sessions: sessions,
		store:    store,
		client:   client,
		notifier: notifier,
		metrics:  metrics,
	}
}

// ResolveKey maps the optional caller identifiers onto a session key.
// A provided session key wins (anonymous continuations), then the user
// ID, then a fresh anonymous fingerprint.
func (o *Orchestrator) ResolveKey(userID, sessionKey string) string {
	if k := strings.TrimSpace(sessionKey); k != "" {
		return k
	}
	if u := strings.TrimSpace(userID); u != "" {
		return "user:" + u
	}
	return "anon:" + uuid.NewString()
}

// HandleMessage runs one full turn: validate, resolve the session,
// classify risk, detect intents, decide escalation, build the prompt,
// call the generation backend under its timeout, merge both turns into
// the context window, persist best-effort, and notify an escalation
// fire-and-forget.
func (o *Orchestrator) HandleMessage(ctx context.Context, userID, sessionKey, text string) (TurnResult, error) {
	started := time.Now()

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return TurnResult{}, fmt.Errorf("%w: text must be non-empty", ErrInvalidInput)
	}
	if len(text) > o.cfg.MaxMessageBytes {
		return TurnResult{}, fmt.Errorf("%w: text exceeds %d bytes", ErrInvalidInput, o.cfg.MaxMessageBytes)
	}

	key := o.ResolveKey(userID, sessionKey)
	sess, created := o.sessions.GetOrCreate(key, strings.TrimSpace(userID))
	if created {
		o.metrics.ActiveSessions.Set(float64(o.sessions.Count()))
	}

	sess.Lock()
	defer sess.Unlock()

	if sess.NeedsHydration() {
		o.rehydrate(ctx, sess)
	}

	classifyStart := time.Now()
	assessment := risk.Classify(text)
	intents := intent.Detect(text, assessment.Tier, sess.LastIntents())
	decision := policy.Decide(assessment, sess.RecentTiers(), policy.RequestsHuman(text))
	o.metrics.ObserveTurnStage("classify", time.Since(classifyStart))

	req, err := prompt.Build(o.cfg.SystemPrompt, sess.Window().Snapshot(), text, assessment, intents, o.cfg.PromptBudgetBytes)
	if err != nil {
		// Fatal for this turn; session state stays untouched.
		return TurnResult{}, err
	}
	req.SessionKey = key
	req.TurnID = uuid.NewString()

	genStart := time.Now()
	genCtx, cancel := context.WithTimeout(ctx, o.cfg.GenerationTimeout)
	reply, genErr := o.client.Generate(genCtx, req)
	cancel()
	o.metrics.ObserveTurnStage("generate", time.Since(genStart))

	degraded := false
	if genErr != nil || strings.TrimSpace(reply) == "" {
		degraded = true
		reply = FallbackReply
		o.metrics.BackendErrors.Inc()
		log.Printf("generation degraded: session=%s err=%v", key, genErr)
	}

	now := time.Now().UTC()
	userTurn := convo.Turn{Role: convo.RoleUser, Text: text, Timestamp: now}
	assistantTurn := convo.Turn{Role: convo.RoleAssistant, Text: reply, Timestamp: now.Add(time.Nanosecond)}
	sess.Window().Append(userTurn)
	sess.Window().Append(assistantTurn)
	sess.RecordTurn(assessment, intents, decision.ShouldEscalate)

	o.persistTurn(ctx, sess, userTurn, assessment.Tier)
	o.persistTurn(ctx, sess, assistantTurn, risk.TierNone)

	if decision.ShouldEscalate {
		o.metrics.Escalations.WithLabelValues(string(decision.Reason)).Inc()
		go o.notifyEscalation(key, decision, assessment.Tier)
	}
	o.metrics.Turns.WithLabelValues(assessment.Tier.String()).Inc()
	for _, in := range intents {
		o.metrics.IntentsDetected.WithLabelValues(string(in.Kind)).Inc()
	}
	o.metrics.ObserveTurnLatency(time.Since(started))
	o.metrics.ObserveTurnStage("turn_total", time.Since(started))

	return TurnResult{
		SessionKey:    key,
		Reply:         reply,
		Degraded:      degraded,
		RiskTier:      assessment.Tier,
		Escalation:    decision,
		Intents:       intents,
		ContextLength: sess.Window().Size(),
		Timestamp:     assistantTurn.Timestamp,
	}, nil
}

// History returns the current context window snapshot and audit
// counters for a session key. Read-only and idempotent: two calls
// without an intervening HandleMessage return identical snapshots.
func (o *Orchestrator) History(key string) ([]convo.Turn, session.Audit, error) {
	sess, err := o.sessions.Get(key)
	if err != nil {
		return nil, session.Audit{}, err
	}
	sess.Lock()
	audit := sess.AuditSnapshot()
	sess.Unlock()
	return sess.Window().Snapshot(), audit, nil
}

// rehydrate replays recent persisted turns into the window and
// re-classifies the user turns to rebuild the assessment history.
// Classification is deterministic, so the rebuilt history matches what
// the original turns produced. Idempotent per session and best-effort:
// a store failure leaves an empty window rather than failing the turn.
func (o *Orchestrator) rehydrate(ctx context.Context, sess *session.Session) {
	defer sess.MarkHydrated()

	records, err := o.store.RecentTurns(ctx, sess.Key, o.cfg.WindowSize)
	if err != nil {
		log.Printf("rehydrate: session=%s err=%v", sess.Key, err)
		o.metrics.PersistenceFailures.Inc()
		return
	}
	for _, rec := range records {
		sess.Window().Append(convo.Turn{
			Role:      convo.Role(rec.Role),
			Text:      rec.Text,
			Timestamp: rec.CreatedAt,
		})
		if rec.Role == string(convo.RoleUser) {
			sess.RecordTurn(risk.Classify(rec.Text), nil, false)
		}
	}
}

// persistTurn writes the turn to the external store with PII masked.
// Best-effort: failures are logged and counted, never surfaced.
func (o *Orchestrator) persistTurn(ctx context.Context, sess *session.Session, turn convo.Turn, tier risk.Tier) {
	start := time.Now()
	text, redacted := policy.RedactPII(turn.Text)
	// Detached from the request: a client disconnect mid-turn should not
	// lose the turn record.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	err := o.store.SaveTurn(ctx, memory.TurnRecord{
		SessionKey:  sess.Key,
		UserID:      sess.UserID,
		Role:        string(turn.Role),
		Text:        text,
		RiskTier:    tier.String(),
		PIIRedacted: redacted,
		CreatedAt:   turn.Timestamp,
	})
	o.metrics.ObserveTurnStage("persist", time.Since(start))
	if err != nil {
		log.Printf("persist turn: session=%s err=%v", sess.Key, err)
		o.metrics.PersistenceFailures.Inc()
	}
}

func (o *Orchestrator) notifyEscalation(key string, decision policy.Decision, tier risk.Tier) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	o.notifier.Notify(ctx, key, decision, tier)
}
