package intent

import (
	"strings"

	"github.com/fitron/coachd/internal/risk"
)

// Kind identifies an actionable intent category detected in a message.
type Kind string

const (
	KindGoalProgress   Kind = "goal_progress"
	KindPlanAdjustment Kind = "plan_adjustment"
	KindFormReview     Kind = "form_review"
)

// AdjustReason qualifies a plan-adjustment intent.
type AdjustReason string

const (
	ReasonTravel          AdjustReason = "travel"
	ReasonInjury          AdjustReason = "injury"
	ReasonNoGym           AdjustReason = "no-gym"
	ReasonTimeConstrained AdjustReason = "time-constrained"
)

// Intent is one detected category. Reason is set only for plan adjustments.
type Intent struct {
	Kind   Kind         `json:"kind"`
	Reason AdjustReason `json:"reason,omitempty"`
}

// Set holds the intents detected in a single message. A message can
// carry zero, one, or several; detection is independent per class.
type Set []Intent

func (s Set) Contains(kind Kind) bool {
	for _, in := range s {
		if in.Kind == kind {
			return true
		}
	}
	return false
}

func (s Set) AdjustmentReasons() []AdjustReason {
	var out []AdjustReason
	for _, in := range s {
		if in.Kind == KindPlanAdjustment {
			out = append(out, in.Reason)
		}
	}
	return out
}

var goalNouns = []string{
	"goal", "physique", "progress", "arms", "shoulders", "chest",
	"celebrity", "target",
}

var progressQueries = []string{
	"progress", "how am i doing", "closer to", "on track",
	"am i making", "how close", "status",
}

var adjustmentSignals = map[AdjustReason][]string{
	ReasonTravel: {
		"travel", "traveling", "travelling", "trip", "vacation", "hotel",
		"business trip", "on the road",
	},
	ReasonInjury: {
		"injury", "injured", "recovery", "recovering", "rehab", "heal",
	},
	ReasonNoGym: {
		"no gym", "home workout", "no equipment", "limited equipment",
		"without a gym",
	},
	ReasonTimeConstrained: {
		"short on time", "busy", "quick workout", "time limit", "no time",
		"only have",
	},
}

var formSignals = []string{
	"check my form", "form check", "check form", "form analysis",
	"pose analysis", "video analysis", "upload", "send video",
	"record", "my technique", "my form",
}

// Detect classifies text into zero or more actionable intents.
//
// riskTier is the classifier output for the same message: an injury
// signal at medium or above implies an injury-driven plan adjustment
// even without explicit adjustment wording. prior is the intent set of
// the immediately preceding turn; a FormReview there stays pending
// across a follow-up ("yes, here it is") that carries no intent
// keywords of its own.
func Detect(text string, riskTier risk.Tier, prior Set) Set {
	lower := strings.ToLower(text)
	var out Set

	if matchesAny(lower, goalNouns) && matchesAny(lower, progressQueries) {
		out = append(out, Intent{Kind: KindGoalProgress})
	}

	seen := map[AdjustReason]bool{}
	for _, reason := range []AdjustReason{ReasonTravel, ReasonInjury, ReasonNoGym, ReasonTimeConstrained} {
		if matchesAny(lower, adjustmentSignals[reason]) {
			out = append(out, Intent{Kind: KindPlanAdjustment, Reason: reason})
			seen[reason] = true
		}
	}
	if riskTier >= risk.TierMedium && !seen[ReasonInjury] {
		out = append(out, Intent{Kind: KindPlanAdjustment, Reason: ReasonInjury})
	}

	if matchesAny(lower, formSignals) {
		out = append(out, Intent{Kind: KindFormReview})
	} else if len(out) == 0 && prior.Contains(KindFormReview) {
		// Follow-up to a pending form-review request.
		out = append(out, Intent{Kind: KindFormReview})
	}

	return out
}

func matchesAny(lower string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
