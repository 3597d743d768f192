package prompt

import (
	"fmt"
	"strings"

	"github.com/fitron/coachd/internal/brain"
	"github.com/fitron/coachd/internal/convo"
	"github.com/fitron/coachd/internal/intent"
	"github.com/fitron/coachd/internal/risk"
)

// CoachSystemPrompt is the fixed persona sent with every request.
const CoachSystemPrompt = `You are FITRON, an AI-powered fitness coach and personal trainer.
Prioritize safety and proper form above all else. When risk signals are
flagged in the hint block, respond with safety-first phrasing and advise
rest or professional evaluation before training advice. Be encouraging
but realistic, give specific actionable guidance, and end with a clear
next step or question.`

// TooLargeError reports a request that exceeds the caller's size
// budget. The turn fails without mutating session state; the builder
// never drops turns silently.
type TooLargeError struct {
	Size   int
	Budget int
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("prompt too large: %d bytes exceeds budget %d", e.Size, e.Budget)
}

// Build assembles a generation request: persona system text, each
// prior turn in chronological order, then the new user turn, plus a
// hint block describing the detected risk tier and intents so the
// backend can tailor tone. budget <= 0 disables the size check.
func Build(system string, snapshot []convo.Turn, text string, assessment risk.Assessment, intents intent.Set, budget int) (brain.Request, error) {
	messages := make([]brain.Message, 0, len(snapshot)+1)
	for _, turn := range snapshot {
		messages = append(messages, brain.Message{Role: string(turn.Role), Content: turn.Text})
	}
	messages = append(messages, brain.Message{Role: string(convo.RoleUser), Content: text})

	req := brain.Request{
		System:   system,
		Messages: messages,
		Hint:     hintBlock(assessment, intents),
	}

	if budget > 0 {
		if size := requestSize(req); size > budget {
			return brain.Request{}, &TooLargeError{Size: size, Budget: budget}
		}
	}
	return req, nil
}

// hintBlock renders a machine-readable annotation for the backend.
func hintBlock(assessment risk.Assessment, intents intent.Set) string {
	var b strings.Builder
	b.WriteString("[coach-hints]\n")
	fmt.Fprintf(&b, "risk_tier: %s\n", assessment.Tier)
	if len(assessment.MatchedSignals) > 0 {
		fmt.Fprintf(&b, "risk_signals: %s\n", strings.Join(assessment.MatchedSignals, ", "))
	}
	if len(intents) == 0 {
		b.WriteString("intents: none\n")
	} else {
		names := make([]string, 0, len(intents))
		for _, in := range intents {
			if in.Reason != "" {
				names = append(names, fmt.Sprintf("%s(%s)", in.Kind, in.Reason))
			} else {
				names = append(names, string(in.Kind))
			}
		}
		fmt.Fprintf(&b, "intents: %s\n", strings.Join(names, ", "))
	}
	b.WriteString("[/coach-hints]")
	return b.String()
}

func requestSize(req brain.Request) int {
	size := len(req.System) + len(req.Hint)
	for _, m := range req.Messages {
		size += len(m.Role) + len(m.Content)
	}
	return size
}
