package session

import (
	"errors"
	"sync"
	"time"

	"github.com/fitron/coachd/internal/convo"
	"github.com/fitron/coachd/internal/intent"
	"github.com/fitron/coachd/internal/risk"
)

var ErrNotFound = errors.New("session not found")

// assessmentHistory bounds the recent-tier history a session retains
// for the sustained-risk escalation rule. The rule needs only the
// immediately prior turn; a few more are kept for the history surface.
const assessmentHistory = 8

// Session is the per-key conversational state. The registry owns the
// value; callers hold the pointer as a handle, never a copy, so
// concurrent rehydration cannot produce divergent state.
//
// mu serializes turn handling for one key. All other fields are
// guarded by it except the window, which carries its own lock so
// read-only history snapshots stay safe without taking the turn lock.
type Session struct {
	mu sync.Mutex

	Key            string
	UserID         string
	CreatedAt      time.Time
	lastActivityAt time.Time

	window          *convo.Window
	hydrated        bool
	recentTiers     []risk.Tier
	lastIntents     intent.Set
	escalationCount int
	flaggedSignals  map[string]bool
}

// NeedsHydration reports whether the session has not yet been
// rehydrated from the external store. Callers must hold the session
// lock; the first lock-holder rehydrates, later ones see it done.
func (s *Session) NeedsHydration() bool { return !s.hydrated }

// MarkHydrated records that rehydration ran (or was not needed).
// Callers must hold the session lock.
func (s *Session) MarkHydrated() { s.hydrated = true }

// Lock serializes turn handling for this session. Messages for
// different sessions proceed in parallel; messages for the same key
// are processed one at a time.
func (s *Session) Lock()   { s.mu.Lock() }
func (s *Session) Unlock() { s.mu.Unlock() }

// Window returns the session's bounded context window handle.
func (s *Session) Window() *convo.Window { return s.window }

// RecentTiers returns the assessed tiers of recent user turns in
// chronological order, current turn excluded. Callers must hold the
// session lock.
func (s *Session) RecentTiers() []risk.Tier {
	out := make([]risk.Tier, len(s.recentTiers))
	copy(out, s.recentTiers)
	return out
}

// LastIntents returns the intent set of the immediately preceding
// user turn. Callers must hold the session lock.
func (s *Session) LastIntents() intent.Set { return s.lastIntents }

// RecordTurn folds one assessed user turn into the session history.
// Callers must hold the session lock.
func (s *Session) RecordTurn(assessment risk.Assessment, intents intent.Set, escalated bool) {
	s.recentTiers = append(s.recentTiers, assessment.Tier)
	if len(s.recentTiers) > assessmentHistory {
		s.recentTiers = s.recentTiers[len(s.recentTiers)-assessmentHistory:]
	}
	s.lastIntents = intents
	if escalated {
		s.escalationCount++
	}
	for _, sig := range assessment.MatchedSignals {
		s.flaggedSignals[sig] = true
	}
	s.lastActivityAt = time.Now().UTC()
}

// Audit is the session's risk bookkeeping, surfaced on the history API.
type Audit struct {
	EscalationCount int       `json:"escalation_count"`
	FlaggedSignals  []string  `json:"flagged_signals,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	LastActivityAt  time.Time `json:"last_activity_at"`
}

// AuditSnapshot copies the audit counters. Callers must hold the
// session lock.
func (s *Session) AuditSnapshot() Audit {
	signals := make([]string, 0, len(s.flaggedSignals))
	for sig := range s.flaggedSignals {
		signals = append(signals, sig)
	}
	return Audit{
		EscalationCount: s.escalationCount,
		FlaggedSignals:  signals,
		CreatedAt:       s.CreatedAt,
		LastActivityAt:  s.lastActivityAt,
	}
}

// Registry is the process-wide map of session key to session. Lookups
// and inserts are concurrent-safe with insert-if-absent semantics, so
// two first messages for the same key race to a single Session value.
// Sessions are never deleted here; removal is an external-store
// administrative operation.
type Registry struct {
	mu         sync.RWMutex
	sessions   map[string]*Session
	windowSize int
}

func NewRegistry(windowSize int) *Registry {
	if windowSize <= 0 {
		windowSize = convo.DefaultWindowSize
	}
	return &Registry{
		sessions:   make(map[string]*Session),
		windowSize: windowSize,
	}
}

// GetOrCreate returns the session for key, creating it on first use.
// created reports whether this call inserted the session, which is the
// caller's cue to rehydrate from the external store.
func (r *Registry) GetOrCreate(key, userID string) (s *Session, created bool) {
	r.mu.RLock()
	s = r.sessions[key]
	r.mu.RUnlock()
	if s != nil {
		return s, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s = r.sessions[key]; s != nil {
		return s, false
	}
	now := time.Now().UTC()
	s = &Session{
		Key:            key,
		UserID:         userID,
		CreatedAt:      now,
		lastActivityAt: now,
		window:         convo.NewWindow(r.windowSize),
		flaggedSignals: make(map[string]bool),
	}
	r.sessions[key] = s
	return s, true
}

// Get returns the session handle for key, or ErrNotFound.
func (r *Registry) Get(key string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[key]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
