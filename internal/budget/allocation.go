// Package budget implements the Budget & Basin component (spec §4.6):
// per-complexity envelope allocation, basin-width estimation, extension
// request/grant logic, and convergence-cost estimation. New logic — the
// teacher's internal/cost addresses hourly AI-spend limits for an
// issue-tracker loop, a different resource model — but follows the same
// threshold-table-over-a-struct-of-signals shape as internal/cost/budget.go,
// and its burn-rate projection is adapted directly from
// internal/cost/budget.go's calculateBurnRate.
package budget

import (
	"time"

	"github.com/abathur-ai/abathur/internal/types"
)

// allocation is the (tokens, iterations, wall-time) tuple for one
// complexity tier (§4.6).
type allocation struct {
	tokens     int
	iterations int
	wallTime   time.Duration
}

// baseAllocations is the per-complexity table. Trivial through Complex are
// named explicitly in spec.md §4.6; Exploratory extends the table for the
// fifth complexity tier this implementation's Complexity enum carries (see
// DESIGN.md) with a row larger than Complex in every dimension, including a
// wider wall-time budget since exploratory tasks are expected to need more
// real-world iteration.
var baseAllocations = map[types.Complexity]allocation{
	types.ComplexityTrivial:     {tokens: 50_000, iterations: 5, wallTime: 10 * time.Minute},
	types.ComplexitySimple:      {tokens: 150_000, iterations: 10, wallTime: 20 * time.Minute},
	types.ComplexityModerate:    {tokens: 400_000, iterations: 20, wallTime: 45 * time.Minute},
	types.ComplexityComplex:     {tokens: 1_000_000, iterations: 35, wallTime: 90 * time.Minute},
	types.ComplexityExploratory: {tokens: 1_500_000, iterations: 50, wallTime: 150 * time.Minute},
}

// defaultMaxExtensions is the MaxExtensions every budget built by Allocate
// carries.
const defaultMaxExtensions = 2

// Allocate builds the initial ConvergenceBudget for a task of the given
// complexity, adjusted by the basin classification's budget multipliers
// (§4.6: "Wide: 0.75x iterations... Narrow: 1.5x iterations, 1.3x tokens").
func Allocate(complexity types.Complexity, basin types.BasinEstimate) types.ConvergenceBudget {
	a, ok := baseAllocations[complexity]
	if !ok {
		a = baseAllocations[types.ComplexityModerate]
	}

	iterationMultiplier, tokenMultiplier := basinBudgetMultipliers(basin.Classification)

	return types.ConvergenceBudget{
		MaxTokens:     int(float64(a.tokens) * tokenMultiplier),
		MaxIterations: int(float64(a.iterations) * iterationMultiplier),
		MaxWallTime:   a.wallTime,
		MaxExtensions: defaultMaxExtensions,
	}
}

// basinBudgetMultipliers returns the (iteration, token) multipliers the
// basin classification applies to the base allocation (§4.6).
func basinBudgetMultipliers(class types.BasinClassification) (iterationMultiplier, tokenMultiplier float64) {
	switch class {
	case types.BasinWide:
		return 0.75, 1.0
	case types.BasinNarrow:
		return 1.5, 1.3
	default:
		return 1.0, 1.0
	}
}

// AdjustPolicy applies the basin classification's policy multipliers to a
// copy of policy (§4.6: exploration weight, forced acceptance-test
// generation for Narrow basins).
func AdjustPolicy(policy types.ConvergencePolicy, basin types.BasinEstimate) types.ConvergencePolicy {
	adjusted := policy
	switch basin.Classification {
	case types.BasinWide:
		adjusted.ExplorationWeight = 0.2
	case types.BasinNarrow:
		adjusted.ExplorationWeight = 0.6
		adjusted.GenerateAcceptanceTests = true
	}
	return adjusted
}
