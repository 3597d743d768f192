package convo

import (
	"sync"
	"time"
)

// DefaultWindowSize bounds the per-session context supplied to the
// generation backend.
const DefaultWindowSize = 5

// Role identifies the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message within a session. Immutable once appended.
type Turn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Window is a bounded FIFO of the most recent turns. It carries its
// own lock so a Snapshot taken while another request appends to the
// same session never observes mutation.
type Window struct {
	mu       sync.Mutex
	capacity int
	turns    []Turn
	lastTS   time.Time
}

func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultWindowSize
	}
	return &Window{capacity: capacity}
}

// Append adds a turn, evicting the oldest when the window is full.
// Timestamps are kept strictly increasing: a turn stamped at or before
// the previous one is nudged forward a nanosecond past it.
func (w *Window) Append(t Turn) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now().UTC()
	}
	if !t.Timestamp.After(w.lastTS) {
		t.Timestamp = w.lastTS.Add(time.Nanosecond)
	}
	w.lastTS = t.Timestamp

	if len(w.turns) >= w.capacity {
		copy(w.turns, w.turns[1:])
		w.turns = w.turns[:len(w.turns)-1]
	}
	w.turns = append(w.turns, t)
}

// Snapshot returns a defensive copy in chronological order.
func (w *Window) Snapshot() []Turn {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Turn, len(w.turns))
	copy(out, w.turns)
	return out
}

func (w *Window) Size() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.turns)
}
