package decompose

import "github.com/abathur-ai/abathur/internal/types"

// perSubtaskOverhead is the fixed per-subtask iteration cost added on top
// of each subtask's own estimate, to account for planning and
// coordination overhead that a monolithic trajectory doesn't pay (§4.8).
const perSubtaskOverhead = 0.5

// decomposedDiscount is the threshold below which decomposition is worth
// recommending: decomposed total iterations must come in under 80% of the
// monolithic estimate (§4.8).
const decomposedDiscount = 0.8

// Recommendation is the outcome of the proactive decomposition check.
type Recommendation struct {
	Recommend       bool
	AutoApply       bool
	SavingsEstimate float64
	MonolithicIterations float64
	DecomposedIterations float64
}

// Evaluate runs the proactive check: compare the monolithic estimate to
// the sum of per-subtask estimates plus fixed overhead, and recommend
// decomposition only when the basin isn't already Wide (a wide basin
// converges easily on its own; splitting it just adds coordination cost)
// and the decomposed total beats the discount threshold. Auto-apply
// requires a Narrow basin and a priority hint (§4.8).
func Evaluate(basin types.BasinEstimate, monolithic types.ConvergenceEstimate, subtasks []types.ConvergenceEstimate, priorityHint *types.PriorityHint) Recommendation {
	if basin.Classification == types.BasinWide || len(subtasks) == 0 {
		return Recommendation{MonolithicIterations: monolithic.ExpectedIterations}
	}

	decomposedTotal := 0.0
	for _, s := range subtasks {
		decomposedTotal += s.ExpectedIterations + perSubtaskOverhead
	}

	recommend := decomposedTotal < decomposedDiscount*monolithic.ExpectedIterations
	savings := 0.0
	if monolithic.ExpectedIterations > 0 {
		savings = 1 - decomposedTotal/monolithic.ExpectedIterations
		if savings < 0 {
			savings = 0
		}
	}

	autoApply := recommend && basin.Classification == types.BasinNarrow && priorityHint != nil

	return Recommendation{
		Recommend:            recommend,
		AutoApply:             autoApply,
		SavingsEstimate:       savings,
		MonolithicIterations:  monolithic.ExpectedIterations,
		DecomposedIterations:  decomposedTotal,
	}
}
