package risk

import "strings"

// Tier is the ordinal physical-safety severity assigned to a message.
// Ordering is total: TierNone < TierLow < TierMedium < TierHigh < TierCritical.
type Tier int

const (
	TierNone Tier = iota
	TierLow
	TierMedium
	TierHigh
	TierCritical
)

var tierNames = [...]string{"none", "low", "medium", "high", "critical"}

func (t Tier) String() string {
	if t < TierNone || t > TierCritical {
		return "none"
	}
	return tierNames[t]
}

func (t Tier) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// Assessment is the classifier output for a single message.
type Assessment struct {
	Tier           Tier     `json:"tier"`
	MatchedSignals []string `json:"matched_signals,omitempty"`
}

// Keyword tables in priority order. A message is assigned the highest
// tier with at least one match; lower-tier matches never downgrade it.
var tierSignals = []struct {
	tier    Tier
	phrases []string
}{
	{TierCritical, []string{
		"tear", "tore", "torn", "rupture", "broken", "fracture",
		"dislocation", "dislocated", "severe pain", "can't move", "cannot move",
	}},
	{TierHigh, []string{
		"sharp pain", "stabbing", "burning", "numbness", "tingling",
		"swelling", "swollen", "bruising",
	}},
	{TierMedium, []string{
		"pain", "hurt", "sore", "ache", "aching", "stiff", "tight",
		"uncomfortable", "discomfort",
	}},
	{TierLow, []string{
		"tired", "fatigue", "weak", "slight", "minor", "mild",
	}},
}

// Classify scans text against all four keyword tiers and reports the
// highest tier that matched. MatchedSignals carries every matching
// phrase across tiers so flagged sessions can be audited later.
//
// Matching is case-insensitive substring matching. Negated phrasing
// ("no pain", "pain free") is a known limitation: it still matches and
// the tier is conservative rather than precise. Empty or unmatched
// text yields TierNone; Classify never fails.
func Classify(text string) Assessment {
	out := Assessment{Tier: TierNone}
	if text == "" {
		return out
	}
	lower := strings.ToLower(text)

	for _, set := range tierSignals {
		for _, phrase := range set.phrases {
			if strings.Contains(lower, phrase) {
				if set.tier > out.Tier {
					out.Tier = set.tier
				}
				out.MatchedSignals = append(out.MatchedSignals, phrase)
			}
		}
	}
	return out
}
