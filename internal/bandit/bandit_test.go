package bandit

import (
	"testing"

	"github.com/abathur-ai/abathur/internal/types"
)

func TestEligible_FixedPointLowRemainingIsNarrow(t *testing.T) {
	input := EligibilityInput{
		Attractor: types.AttractorState{Type: types.AttractorType{Kind: types.AttractorFixedPoint, RemainingIterations: 2}},
	}
	got := Eligible(input)
	if len(got) != 2 {
		t.Fatalf("expected 2 strategies for low-remaining FixedPoint, got %d", len(got))
	}
}

func TestEligible_FixedPointHigherRemainingAddsStrategies(t *testing.T) {
	input := EligibilityInput{
		Attractor: types.AttractorState{Type: types.AttractorType{Kind: types.AttractorFixedPoint, RemainingIterations: 5}},
	}
	got := Eligible(input)
	if len(got) != 4 {
		t.Fatalf("expected 4 strategies for higher-remaining FixedPoint, got %d", len(got))
	}
}

func TestEligible_LimitCycleEmptyWhenAllRecentlyUsed(t *testing.T) {
	// Spec §8 scenario 2: history contains Reframe, AlternativeApproach,
	// Decompose in the last 2*period entries, and the remaining budget cannot
	// afford the Decompose fallback -> empty eligible set -> Trapped.
	input := EligibilityInput{
		Attractor: types.AttractorState{Type: types.AttractorType{Kind: types.AttractorLimitCycle, Period: 2}},
		StrategyLog: []types.StrategyEntry{
			{Kind: types.StrategyReframe},
			{Kind: types.StrategyAlternativeApproach},
			{Kind: types.StrategyDecompose},
			{Kind: types.StrategyReframe},
		},
		Budget: types.ConvergenceBudget{MaxTokens: 1},
	}
	got := Eligible(input)
	if len(got) != 0 {
		t.Fatalf("expected empty eligible set (Trapped), got %v", got)
	}
}

func TestEligible_LimitCycleFallsBackToDecomposeWhenBudgetPermits(t *testing.T) {
	input := EligibilityInput{
		Attractor: types.AttractorState{Type: types.AttractorType{Kind: types.AttractorLimitCycle, Period: 2}},
		StrategyLog: []types.StrategyEntry{
			{Kind: types.StrategyReframe},
			{Kind: types.StrategyAlternativeApproach},
			{Kind: types.StrategyDecompose},
			{Kind: types.StrategyReframe},
		},
		Budget: types.ConvergenceBudget{MaxTokens: 100000, ConsumedTokens: 1000},
	}
	got := Eligible(input)
	if len(got) != 1 || got[0].Kind != types.StrategyDecompose {
		t.Fatalf("expected fallback to Decompose, got %v", got)
	}
}

func TestEligible_DivergentAccumulatedRegressionTargetsBestObservation(t *testing.T) {
	input := EligibilityInput{
		Attractor:               types.AttractorState{Type: types.AttractorType{Kind: types.AttractorDivergent, Cause: types.CauseAccumulatedRegression}},
		BestObservationSequence: 3,
	}
	got := Eligible(input)
	if len(got) != 1 || got[0].Kind != types.StrategyRevertAndBranch || got[0].TargetObservation != 3 {
		t.Fatalf("expected RevertAndBranch{3}, got %v", got)
	}
}

func TestEligible_PlateauStallWithFreshStartsRemainingIsFreshStart(t *testing.T) {
	input := EligibilityInput{
		Attractor:        types.AttractorState{Type: types.AttractorType{Kind: types.AttractorPlateau, StallDuration: 3, PlateauLevel: 0.6}},
		TotalFreshStarts: 0,
		MaxFreshStarts:   3,
	}
	got := Eligible(input)
	if len(got) != 1 || got[0].Kind != types.StrategyFreshStart {
		t.Fatalf("expected FreshStart, got %v", got)
	}
}

func TestEligible_PlateauHighLevelPrefersExploitation(t *testing.T) {
	// Spec §8 scenario 5: stall=3, level=0.82 still selects FocusedRepair /
	// IncrementalRefinement, not FreshStart, because level > 0.8 takes
	// precedence over the stall-duration rule.
	input := EligibilityInput{
		Attractor:        types.AttractorState{Type: types.AttractorType{Kind: types.AttractorPlateau, StallDuration: 3, PlateauLevel: 0.82}},
		TotalFreshStarts: 0,
		MaxFreshStarts:   3,
	}
	got := Eligible(input)
	if len(got) != 2 {
		t.Fatalf("expected 2 exploitation strategies, got %v", got)
	}
	for _, s := range got {
		if s.Kind != types.StrategyFocusedRepair && s.Kind != types.StrategyIncrementalRefinement {
			t.Fatalf("unexpected strategy %v for high-level plateau", s.Kind)
		}
	}
}

func TestUpdate_SkipsWhenForced(t *testing.T) {
	b := New()
	key := Key{Attractor: types.AttractorFixedPoint, Strategy: types.StrategyRetryWithFeedback}
	b.Update(types.AttractorFixedPoint, types.StrategyRetryWithFeedback, 0.9, true)
	if _, seen := b.Snapshot()[key]; seen {
		t.Fatalf("expected forced update to leave the posterior unseeded")
	}
}

func TestUpdate_SuccessIncrementsAlpha(t *testing.T) {
	b := New()
	b.Update(types.AttractorFixedPoint, types.StrategyRetryWithFeedback, 0.9, false)
	p := b.Snapshot()[Key{Attractor: types.AttractorFixedPoint, Strategy: types.StrategyRetryWithFeedback}]
	if p.Alpha != 2 {
		t.Fatalf("expected alpha incremented by 1 from prior 1, got %f", p.Alpha)
	}
}

func TestUpdate_FailureIncrementsBeta(t *testing.T) {
	b := New()
	b.Update(types.AttractorDivergent, types.StrategyReframe, -0.9, false)
	p := b.Snapshot()[Key{Attractor: types.AttractorDivergent, Strategy: types.StrategyReframe}]
	if p.Beta != 2 {
		t.Fatalf("expected beta incremented by 1 from prior 1, got %f", p.Beta)
	}
}

func TestSelect_ReturnsEligibleStrategy(t *testing.T) {
	b := New()
	eligible := strategies(types.StrategyRetryWithFeedback, types.StrategyIncrementalRefinement)
	chosen, ok := b.Select(types.AttractorFixedPoint, eligible, false)
	if !ok {
		t.Fatal("expected a selection from non-empty eligible set")
	}
	found := false
	for _, s := range eligible {
		if s.Kind == chosen.Kind {
			found = true
		}
	}
	if !found {
		t.Fatalf("selected strategy %v not in eligible set", chosen)
	}
}

func TestSelect_EmptyEligibleReturnsFalse(t *testing.T) {
	b := New()
	_, ok := b.Select(types.AttractorIndeterminate, nil, false)
	if ok {
		t.Fatal("expected no selection from empty eligible set")
	}
}
