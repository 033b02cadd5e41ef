package bandit

import "github.com/abathur-ai/abathur/internal/types"

// EligibilityInput is the context the deterministic eligibility filter
// needs beyond the attractor state itself (§4.4 table).
type EligibilityInput struct {
	Attractor               types.AttractorState
	StrategyLog             []types.StrategyEntry
	TotalFreshStarts        int
	MaxFreshStarts          int
	BestObservationSequence int
	Budget                  types.ConvergenceBudget
}

// Eligible narrows the full strategy space by the current attractor type,
// per the eligibility table (§4.4). An empty result for LimitCycle signals
// the engine should terminate the trajectory as Trapped.
func Eligible(input EligibilityInput) []types.Strategy {
	switch input.Attractor.Type.Kind {
	case types.AttractorFixedPoint:
		return fixedPointEligible(input.Attractor.Type)
	case types.AttractorLimitCycle:
		return limitCycleEligible(input)
	case types.AttractorDivergent:
		return divergentEligible(input.Attractor.Type, input.BestObservationSequence)
	case types.AttractorPlateau:
		return plateauEligible(input)
	default:
		return indeterminateEligible()
	}
}

func strategies(kinds ...types.StrategyKind) []types.Strategy {
	out := make([]types.Strategy, len(kinds))
	for i, k := range kinds {
		out[i] = types.Strategy{Kind: k}
	}
	return out
}

func fixedPointEligible(t types.AttractorType) []types.Strategy {
	base := strategies(types.StrategyRetryWithFeedback, types.StrategyIncrementalRefinement)
	if t.RemainingIterations <= 2 {
		return base
	}
	return append(base, strategies(types.StrategyFocusedRepair, types.StrategyRetryAugmented)...)
}

func limitCycleEligible(input EligibilityInput) []types.Strategy {
	period := input.Attractor.Type.Period
	candidates := []types.StrategyKind{types.StrategyReframe, types.StrategyAlternativeApproach, types.StrategyDecompose}
	used := recentlyUsedKinds(input.StrategyLog, 2*period)

	var eligible []types.Strategy
	for _, k := range candidates {
		if !used[k] {
			eligible = append(eligible, types.Strategy{Kind: k})
		}
	}
	if len(eligible) > 0 {
		return eligible
	}

	decompose := types.Strategy{Kind: types.StrategyDecompose}
	if budgetPermits(input.Budget, decompose) {
		return []types.Strategy{decompose}
	}
	return nil
}

func recentlyUsedKinds(log []types.StrategyEntry, n int) map[types.StrategyKind]bool {
	used := make(map[types.StrategyKind]bool)
	if n <= 0 || len(log) == 0 {
		return used
	}
	start := len(log) - n
	if start < 0 {
		start = 0
	}
	for _, e := range log[start:] {
		used[e.Kind] = true
	}
	return used
}

func budgetPermits(budget types.ConvergenceBudget, s types.Strategy) bool {
	if budget.MaxTokens <= 0 {
		return true
	}
	remaining := budget.MaxTokens - budget.ConsumedTokens
	return remaining >= s.EstimatedCost()
}

func divergentEligible(t types.AttractorType, bestObservation int) []types.Strategy {
	switch t.Cause {
	case types.CauseSpecificationAmbiguity:
		return strategies(types.StrategyArchitectReview, types.StrategyReframe)
	case types.CauseWrongApproach:
		return strategies(types.StrategyAlternativeApproach, types.StrategyReframe)
	case types.CauseAccumulatedRegression:
		return []types.Strategy{{Kind: types.StrategyRevertAndBranch, TargetObservation: bestObservation}}
	default:
		return strategies(types.StrategyReframe, types.StrategyAlternativeApproach)
	}
}

// plateauEligible resolves the table in §4.4. A high plateau level takes
// priority over the stall-duration rule: per §8 scenario 5, stall=3 with
// level=0.82 still selects FocusedRepair/IncrementalRefinement rather than
// FreshStart, since a plateau that high is "stuck but good" rather than
// stuck-and-failing.
func plateauEligible(input EligibilityInput) []types.Strategy {
	t := input.Attractor.Type
	switch {
	case t.PlateauLevel > 0.8:
		return strategies(types.StrategyFocusedRepair, types.StrategyIncrementalRefinement)
	case t.StallDuration >= 3:
		if input.TotalFreshStarts < input.MaxFreshStarts {
			return []types.Strategy{{Kind: types.StrategyFreshStart}}
		}
		return strategies(types.StrategyDecompose, types.StrategyAlternativeApproach, types.StrategyArchitectReview)
	case t.PlateauLevel > 0.5:
		return strategies(types.StrategyAlternativeApproach, types.StrategyReframe, types.StrategyDecompose)
	default:
		return strategies(types.StrategyDecompose, types.StrategyArchitectReview)
	}
}

func indeterminateEligible() []types.Strategy {
	return strategies(types.StrategyRetryAugmented, types.StrategyRetryWithFeedback, types.StrategyFocusedRepair)
}
