package budget

import "github.com/abathur-ai/abathur/internal/types"

// burnRateWindow is how many trailing observations feed the projection,
// mirroring internal/cost/budget.go's calculateBurnRate sampling a trailing
// window of quota snapshots rather than the whole history.
const burnRateWindow = 5

// ProjectBurnRate extrapolates token consumption across the trailing
// observations to estimate how many iterations remain before the token
// budget is exhausted (supplemented feature, SPEC_FULL.md §4: an early
// warning ahead of the bare remaining_fraction check, adapted from
// internal/cost/budget.go's BurnRate/QuotaAlert machinery).
func ProjectBurnRate(budget types.ConvergenceBudget, observations []types.Observation) types.BurnRate {
	window := observations
	if len(window) > burnRateWindow {
		window = window[len(window)-burnRateWindow:]
	}
	if len(window) < 2 {
		return types.BurnRate{Confidence: 0}
	}

	totalTokens := 0
	for _, o := range window {
		totalTokens += o.Tokens
	}
	tokensPerIteration := float64(totalTokens) / float64(len(window))
	if tokensPerIteration <= 0 {
		return types.BurnRate{Confidence: 0}
	}

	remaining := float64(budget.MaxTokens - budget.ConsumedTokens)
	if remaining < 0 {
		remaining = 0
	}

	confidence := float64(len(window)) / float64(burnRateWindow)
	if confidence > 1 {
		confidence = 1
	}

	return types.BurnRate{
		TokensPerIteration:     tokensPerIteration,
		IterationsToExhaustion: remaining / tokensPerIteration,
		Confidence:             confidence,
	}
}
