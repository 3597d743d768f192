package coach

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fitron/coachd/internal/brain"
	"github.com/fitron/coachd/internal/intent"
	"github.com/fitron/coachd/internal/memory"
	"github.com/fitron/coachd/internal/notify"
	"github.com/fitron/coachd/internal/observability"
	"github.com/fitron/coachd/internal/policy"
	"github.com/fitron/coachd/internal/prompt"
	"github.com/fitron/coachd/internal/risk"
	"github.com/fitron/coachd/internal/session"
)

type failingBrain struct{}

func (failingBrain) Generate(context.Context, brain.Request) (string, error) {
	return "", fmt.Errorf("%w: connection refused", brain.ErrUnavailable)
}

type slowBrain struct{ delay time.Duration }

func (b slowBrain) Generate(ctx context.Context, _ brain.Request) (string, error) {
	select {
	case <-time.After(b.delay):
		return "late reply", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []policy.Decision
}

func (n *recordingNotifier) Notify(_ context.Context, _ string, d policy.Decision, _ risk.Tier) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, d)
}

var metricsSeq int

func newTestOrchestrator(t *testing.T, client brain.Client, cfg Config) (*Orchestrator, *recordingNotifier) {
	t.Helper()
	metricsSeq++
	if client == nil {
		client = brain.NewMockClient()
	}
	if cfg.WindowSize == 0 {
		cfg.WindowSize = 5
	}
	notifier := &recordingNotifier{}
	metrics := observability.NewMetrics(fmt.Sprintf("test_coach_%d_%d", time.Now().UnixNano(), metricsSeq))
	o := New(cfg, session.NewRegistry(cfg.WindowSize), memory.NewInMemoryStore(), client, notifier, metrics)
	return o, notifier
}

func TestHandleMessageCriticalEscalates(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil, Config{})

	res, err := o.HandleMessage(context.Background(), "u1", "", "I think I tore something in my shoulder, the pain is severe")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if res.RiskTier != risk.TierCritical {
		t.Fatalf("RiskTier = %v, want critical", res.RiskTier)
	}
	if !res.Escalation.ShouldEscalate || res.Escalation.Reason != policy.ReasonRiskThreshold {
		t.Fatalf("Escalation = %+v, want risk-threshold", res.Escalation)
	}
	if res.Reply == "" || res.ContextLength != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestHandleMessageSustainedRiskEscalates(t *testing.T) {
	o, notifier := newTestOrchestrator(t, nil, Config{})

	first, err := o.HandleMessage(context.Background(), "u1", "", "my knee is sore")
	if err != nil {
		t.Fatalf("first turn error = %v", err)
	}
	if first.RiskTier != risk.TierMedium || first.Escalation.ShouldEscalate {
		t.Fatalf("first turn = %+v, want medium without escalation", first)
	}

	second, err := o.HandleMessage(context.Background(), "u1", "", "still aching today")
	if err != nil {
		t.Fatalf("second turn error = %v", err)
	}
	if second.RiskTier != risk.TierMedium {
		t.Fatalf("second RiskTier = %v, want medium", second.RiskTier)
	}
	if !second.Escalation.ShouldEscalate || second.Escalation.Reason != policy.ReasonRepeatedRisk {
		t.Fatalf("second Escalation = %+v, want repeated-high-risk", second.Escalation)
	}

	// The notifier runs fire-and-forget.
	deadline := time.Now().Add(time.Second)
	for {
		notifier.mu.Lock()
		n := len(notifier.calls)
		notifier.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("notifier calls = %d, want 1", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHandleMessageTravelAdjustment(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil, Config{})

	res, err := o.HandleMessage(context.Background(), "u1", "", "I'm traveling next week, can you adjust my plan?")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if res.RiskTier != risk.TierNone {
		t.Fatalf("RiskTier = %v, want none", res.RiskTier)
	}
	if res.Escalation.ShouldEscalate {
		t.Fatalf("Escalation = %+v, want none", res.Escalation)
	}
	reasons := res.Intents.AdjustmentReasons()
	if len(reasons) != 1 || reasons[0] != intent.ReasonTravel {
		t.Fatalf("intents = %v, want plan adjustment (travel)", res.Intents)
	}
}

func TestHandleMessageDegradedPathStillClassifies(t *testing.T) {
	o, _ := newTestOrchestrator(t, failingBrain{}, Config{})

	res, err := o.HandleMessage(context.Background(), "u1", "", "sharp pain in my lower back")
	if err != nil {
		t.Fatalf("backend failure must not fail the turn: %v", err)
	}
	if !res.Degraded || res.Reply != FallbackReply {
		t.Fatalf("result = %+v, want degraded fallback reply", res)
	}
	if res.RiskTier != risk.TierHigh {
		t.Fatalf("RiskTier = %v, want high on degraded path", res.RiskTier)
	}
	if !res.Escalation.ShouldEscalate || res.Escalation.Reason != policy.ReasonRiskThreshold {
		t.Fatalf("Escalation = %+v, want risk-threshold on degraded path", res.Escalation)
	}
}

func TestHandleMessageBackendTimeoutDegrades(t *testing.T) {
	o, _ := newTestOrchestrator(t, slowBrain{delay: time.Second}, Config{GenerationTimeout: 20 * time.Millisecond})

	res, err := o.HandleMessage(context.Background(), "u1", "", "my knee hurts")
	if err != nil {
		t.Fatalf("timeout must not fail the turn: %v", err)
	}
	if !res.Degraded || res.RiskTier != risk.TierMedium {
		t.Fatalf("result = %+v, want degraded with medium tier", res)
	}
}

func TestHandleMessageInvalidInput(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil, Config{MaxMessageBytes: 64})

	if _, err := o.HandleMessage(context.Background(), "u1", "", "   "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty text error = %v, want ErrInvalidInput", err)
	}
	if _, err := o.HandleMessage(context.Background(), "u1", "", strings.Repeat("x", 65)); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("oversized text error = %v, want ErrInvalidInput", err)
	}

	// No session may be created by a rejected message.
	if _, _, err := o.History("user:u1"); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("History after rejection error = %v, want ErrNotFound", err)
	}
}

func TestHandleMessagePromptTooLarge(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil, Config{PromptBudgetBytes: 32, SystemPrompt: "sys"})

	_, err := o.HandleMessage(context.Background(), "u1", "", "this message is comfortably past the tiny budget")
	var tooLarge *prompt.TooLargeError
	if !errors.As(err, &tooLarge) {
		t.Fatalf("error = %v, want TooLargeError", err)
	}

	// Fatal for the turn, but the session holds no partial state.
	snap, _, err := o.History("user:u1")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(snap) != 0 {
		t.Fatalf("window = %v, want empty after failed turn", snap)
	}
}

func TestHistoryIdempotent(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil, Config{})

	if _, err := o.HandleMessage(context.Background(), "u1", "", "hello coach"); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	first, _, err := o.History("user:u1")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	second, _, err := o.History("user:u1")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("snapshots differ in length: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("snapshots differ at %d: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestHandleMessageWindowBounded(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil, Config{WindowSize: 5})

	var last TurnResult
	for i := 0; i < 8; i++ {
		res, err := o.HandleMessage(context.Background(), "u1", "", fmt.Sprintf("message number %d", i))
		if err != nil {
			t.Fatalf("turn %d error = %v", i, err)
		}
		last = res
	}
	if last.ContextLength != 5 {
		t.Fatalf("ContextLength = %d, want 5", last.ContextLength)
	}
}

func TestHandleMessageAnonymousGetsFreshKey(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil, Config{})

	first, err := o.HandleMessage(context.Background(), "", "", "hello")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if !strings.HasPrefix(first.SessionKey, "anon:") {
		t.Fatalf("SessionKey = %q, want anon prefix", first.SessionKey)
	}

	// Passing the key back continues the same session.
	second, err := o.HandleMessage(context.Background(), "", first.SessionKey, "still me")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if second.SessionKey != first.SessionKey {
		t.Fatalf("SessionKey = %q, want %q", second.SessionKey, first.SessionKey)
	}
	if second.ContextLength != 4 {
		t.Fatalf("ContextLength = %d, want 4", second.ContextLength)
	}
}

func TestRehydrationRebuildsAssessmentHistory(t *testing.T) {
	store := memory.NewInMemoryStore()
	ctx := context.Background()
	// A prior process persisted a medium-risk user turn.
	if err := store.SaveTurn(ctx, memory.TurnRecord{
		SessionKey: "user:u1", Role: "user", Text: "my knee is sore", RiskTier: "medium",
	}); err != nil {
		t.Fatalf("SaveTurn() error = %v", err)
	}
	if err := store.SaveTurn(ctx, memory.TurnRecord{
		SessionKey: "user:u1", Role: "assistant", Text: "rest it today",
	}); err != nil {
		t.Fatalf("SaveTurn() error = %v", err)
	}

	metricsSeq++
	metrics := observability.NewMetrics(fmt.Sprintf("test_coach_rehydrate_%d_%d", time.Now().UnixNano(), metricsSeq))
	o := New(Config{WindowSize: 5}, session.NewRegistry(5), store, brain.NewMockClient(), &recordingNotifier{}, metrics)

	// First message after restart: the prior medium turn plus this one
	// trips the sustained-risk rule.
	res, err := o.HandleMessage(ctx, "u1", "", "still aching today")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if !res.Escalation.ShouldEscalate || res.Escalation.Reason != policy.ReasonRepeatedRisk {
		t.Fatalf("Escalation = %+v, want repeated-high-risk after rehydration", res.Escalation)
	}
	if res.ContextLength != 4 {
		t.Fatalf("ContextLength = %d, want 4 (2 rehydrated + 2 new)", res.ContextLength)
	}
}

func TestConcurrentSessionsProceedIndependently(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil, Config{})

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("u%d", i%4)
			if _, err := o.HandleMessage(context.Background(), user, "", fmt.Sprintf("message %d", i)); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent HandleMessage error = %v", err)
	}

	for i := 0; i < 4; i++ {
		snap, _, err := o.History(fmt.Sprintf("user:u%d", i))
		if err != nil {
			t.Fatalf("History(u%d) error = %v", i, err)
		}
		if len(snap) != 5 {
			// 4 turns each (8 messages) exceed the window; each session
			// saw exactly 4 of its own exchanges = 8 turns, capped at 5.
			t.Fatalf("History(u%d) length = %d, want 5", i, len(snap))
		}
	}
}

var _ notify.Notifier = (*recordingNotifier)(nil)
