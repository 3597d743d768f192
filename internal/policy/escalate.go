package policy

import (
	"strings"

	"github.com/fitron/coachd/internal/risk"
)

// Reason explains why a session was (or was not) flagged for a human.
type Reason string

const (
	ReasonRiskThreshold Reason = "risk-threshold"
	ReasonRepeatedRisk  Reason = "repeated-high-risk"
	ReasonUserOverride  Reason = "user-override-request"
	ReasonNone          Reason = "none"
)

// Decision is the escalation outcome for one turn.
type Decision struct {
	ShouldEscalate bool   `json:"should_escalate"`
	Reason         Reason `json:"reason"`
}

var humanRequestPhrases = []string{
	"talk to a human", "real person", "real trainer", "human trainer",
	"speak to someone", "talk to someone", "human coach",
}

// RequestsHuman reports whether the message explicitly asks for a
// human supervisor instead of the assistant.
func RequestsHuman(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range humanRequestPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Decide applies the escalation rules in order, first match wins:
//
//  1. current tier critical -> risk-threshold
//  2. current tier high -> risk-threshold
//  3. current and immediately prior assessment both >= medium -> repeated-high-risk
//  4. explicit human request -> user-override-request
//  5. otherwise no escalation
//
// recent is the session's assessed tiers in chronological order, the
// current turn excluded. Decide is pure; acting on the decision is the
// orchestrator's job.
func Decide(current risk.Assessment, recent []risk.Tier, humanRequested bool) Decision {
	switch {
	case current.Tier == risk.TierCritical, current.Tier == risk.TierHigh:
		return Decision{ShouldEscalate: true, Reason: ReasonRiskThreshold}
	case current.Tier >= risk.TierMedium && len(recent) > 0 && recent[len(recent)-1] >= risk.TierMedium:
		return Decision{ShouldEscalate: true, Reason: ReasonRepeatedRisk}
	case humanRequested:
		return Decision{ShouldEscalate: true, Reason: ReasonUserOverride}
	default:
		return Decision{ShouldEscalate: false, Reason: ReasonNone}
	}
}
