package intent

import (
	"testing"

	"github.com/fitron/coachd/internal/risk"
)

func TestDetectGoalProgressNeedsNounAndQuery(t *testing.T) {
	got := Detect("am I making progress toward my goal?", risk.TierNone, nil)
	if !got.Contains(KindGoalProgress) {
		t.Fatalf("expected goal progress intent, got %v", got)
	}

	// A goal noun alone is conversation, not a status query.
	got = Detect("my goal is a bigger chest", risk.TierNone, nil)
	if got.Contains(KindGoalProgress) {
		t.Fatalf("noun without query should not detect goal progress: %v", got)
	}
}

func TestDetectTravelAdjustment(t *testing.T) {
	got := Detect("I'm traveling next week, can you adjust my plan?", risk.TierNone, nil)
	if !got.Contains(KindPlanAdjustment) {
		t.Fatalf("expected plan adjustment, got %v", got)
	}
	reasons := got.AdjustmentReasons()
	if len(reasons) != 1 || reasons[0] != ReasonTravel {
		t.Fatalf("reasons = %v, want [travel]", reasons)
	}
}

func TestDetectAdjustmentReasons(t *testing.T) {
	cases := []struct {
		text string
		want AdjustReason
	}{
		{"no gym access at the hotel gym this week", ReasonNoGym},
		{"I'm short on time today, quick workout?", ReasonTimeConstrained},
		{"still recovering from last week, go easier?", ReasonInjury},
	}
	for _, tc := range cases {
		got := Detect(tc.text, risk.TierNone, nil)
		found := false
		for _, r := range got.AdjustmentReasons() {
			if r == tc.want {
				found = true
			}
		}
		if !found {
			t.Fatalf("Detect(%q) reasons = %v, want %v", tc.text, got.AdjustmentReasons(), tc.want)
		}
	}
}

func TestDetectMediumRiskImpliesInjuryAdjustment(t *testing.T) {
	assessment := risk.Classify("my knee hurts when I squat")
	got := Detect("my knee hurts when I squat", assessment.Tier, nil)
	reasons := got.AdjustmentReasons()
	if len(reasons) != 1 || reasons[0] != ReasonInjury {
		t.Fatalf("reasons = %v, want [injury]", reasons)
	}
}

func TestDetectMultipleIntents(t *testing.T) {
	text := "I'm traveling and my shoulder hurts, also how's my physique progress?"
	got := Detect(text, risk.Classify(text).Tier, nil)
	if !got.Contains(KindGoalProgress) || !got.Contains(KindPlanAdjustment) {
		t.Fatalf("expected goal progress and plan adjustment, got %v", got)
	}
	reasons := map[AdjustReason]bool{}
	for _, r := range got.AdjustmentReasons() {
		reasons[r] = true
	}
	if !reasons[ReasonTravel] || !reasons[ReasonInjury] {
		t.Fatalf("reasons = %v, want travel and injury preserved", got.AdjustmentReasons())
	}
}

func TestDetectFormReview(t *testing.T) {
	got := Detect("can you check my form on deadlifts?", risk.TierNone, nil)
	if !got.Contains(KindFormReview) {
		t.Fatalf("expected form review, got %v", got)
	}
}

func TestDetectFormReviewFollowUpContinuation(t *testing.T) {
	prior := Set{{Kind: KindFormReview}}
	got := Detect("yes, here it is", risk.TierNone, prior)
	if !got.Contains(KindFormReview) {
		t.Fatalf("follow-up should keep form review pending, got %v", got)
	}

	// New intent keywords supersede the continuation.
	got = Detect("actually I'm traveling, change of plans", risk.TierNone, prior)
	if got.Contains(KindFormReview) {
		t.Fatalf("new intent keywords should drop the pending form review: %v", got)
	}
}

func TestDetectNothing(t *testing.T) {
	got := Detect("good morning!", risk.TierNone, nil)
	if len(got) != 0 {
		t.Fatalf("expected empty intent set, got %v", got)
	}
}
