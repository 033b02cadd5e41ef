// Package metrics implements the Metrics Core (spec §4.1): the composite
// convergence_delta/convergence_level computation applied between two
// observations.
package metrics

import (
	"math"

	"github.com/abathur-ai/abathur/internal/types"
)

// DefaultWeights is the per-complexity delta weight table resolving the
// Open Question in spec.md §9 (see SPEC_FULL.md §5). Each row sums to 1.0.
var DefaultWeights = map[types.Complexity]types.DeltaWeights{
	types.ComplexityTrivial:     {Test: 0.60, Error: 0.15, Regression: 0.10, Structural: 0.15},
	types.ComplexitySimple:      {Test: 0.55, Error: 0.20, Regression: 0.10, Structural: 0.15},
	types.ComplexityModerate:    {Test: 0.50, Error: 0.20, Regression: 0.10, Structural: 0.20},
	types.ComplexityComplex:     {Test: 0.40, Error: 0.20, Regression: 0.10, Structural: 0.30},
	types.ComplexityExploratory: {Test: 0.35, Error: 0.15, Regression: 0.10, Structural: 0.40},
}

// WeightsFor returns the effective weight table for a complexity, honoring
// any policy override before falling back to DefaultWeights.
func WeightsFor(complexity types.Complexity, policy types.ConvergencePolicy) types.DeltaWeights {
	if policy.DeltaWeights != nil {
		if w, ok := policy.DeltaWeights[complexity]; ok {
			return w
		}
	}
	if w, ok := DefaultWeights[complexity]; ok {
		return w
	}
	return DefaultWeights[types.ComplexityModerate]
}

// overseerLevelWeights are the weights used by the absolute convergence_level
// computation (§4.1): 0.55 test, 0.20 build, 0.10 type, 0.15 custom.
const (
	levelWeightTest   = 0.55
	levelWeightBuild  = 0.20
	levelWeightType   = 0.10
	levelWeightCustom = 0.15
)

// maxStructuralDiff is the AST-diff-node normalisation ceiling used by
// structural_stability (§4.1).
const maxStructuralDiff = 200.0

// signalToNoiseFloor is the context-degradation-penalty threshold (§4.1).
const signalToNoiseFloor = 0.5

// Compute produces the ObservationMetrics for the current observation given
// its raw signals, diff size, and the previous observation (nil for
// observation 0, in which case convergence_delta is left undefined and only
// convergence_level is computed).
func Compute(complexity types.Complexity, policy types.ConvergencePolicy, contextHealth types.ContextHealth, astDiffNodes int, current, previous *types.OverseerSignals) *types.ObservationMetrics {
	m := &types.ObservationMetrics{
		StructuralDiffNodes: astDiffNodes,
		ConvergenceLevel:    convergenceLevel(current),
	}

	if previous == nil {
		return m
	}

	m.TestPassDelta = current.TestResults.PassFraction() - previous.TestResults.PassFraction()
	m.TestRegressionCount = current.RegressionCount()
	m.ErrorCountDelta = current.ErrorCount() - previous.ErrorCount()
	m.VulnerabilityDelta = current.VulnerabilityCount() - previous.VulnerabilityCount()

	weights := WeightsFor(complexity, policy)
	structuralStability := 1 - math.Min(float64(astDiffNodes)/maxStructuralDiff, 1)

	errorRecoveryFrac := errorRecoveryFraction(m.ErrorCountDelta, previous.ErrorCount())
	regressionFrac := regressionFraction(m.TestRegressionCount, current.TestResults)

	delta := weights.Test*m.TestPassDelta +
		weights.Error*errorRecoveryFrac +
		weights.Regression*(1-regressionFrac) +
		weights.Structural*structuralStability

	// Security veto: a vuln-count increase clamps delta to non-positive,
	// regardless of how favorable the rest of the composite is.
	if m.VulnerabilityDelta > 0 {
		delta = math.Min(delta, 0)
	}

	// Context-degradation penalty: scale delta toward zero when the
	// context's signal-to-noise ratio has degraded.
	if contextHealth.SignalToNoise < signalToNoiseFloor && contextHealth.SignalToNoise >= 0 {
		delta *= contextHealth.SignalToNoise / signalToNoiseFloor
	}

	m.ConvergenceDelta = clamp(delta, -1, 1)
	return m
}

// errorRecoveryFraction maps a negative error-count delta (errors fixed) to
// a [0,1] fraction of the previous error count resolved; a non-improving
// delta contributes 0.
func errorRecoveryFraction(delta, previousErrors int) float64 {
	if previousErrors <= 0 {
		if delta < 0 {
			return 0
		}
		return 0
	}
	if delta >= 0 {
		return 0
	}
	fixed := float64(-delta)
	return math.Min(fixed/float64(previousErrors), 1)
}

// regressionFraction maps the regression count to a [0,1] fraction of the
// total test count, so that `1 - regressionFrac` rewards regression-free
// iterations.
func regressionFraction(regressions int, current *types.TestResults) float64 {
	if current == nil || current.Total == 0 {
		if regressions > 0 {
			return 1
		}
		return 0
	}
	return math.Min(float64(regressions)/float64(current.Total), 1)
}

// convergenceLevel computes the absolute [0,1] readiness level from the
// current signals, applying the build/type hard gates (§4.1).
func convergenceLevel(signals *types.OverseerSignals) float64 {
	if signals == nil || !signals.HasAnySignal() {
		return 0
	}

	var totalWeight, level float64

	if signals.TestResults != nil {
		totalWeight += levelWeightTest
		level += levelWeightTest * signals.TestResults.PassFraction()
	}
	if signals.BuildResult != nil {
		totalWeight += levelWeightBuild
		if signals.BuildResult.Passed {
			level += levelWeightBuild
		}
	}
	if signals.TypeCheck != nil {
		totalWeight += levelWeightType
		if signals.TypeCheck.Passed {
			level += levelWeightType
		}
	}
	if len(signals.CustomChecks) > 0 {
		totalWeight += levelWeightCustom
		passed := 0
		for _, c := range signals.CustomChecks {
			if c.Passed {
				passed++
			}
		}
		level += levelWeightCustom * (float64(passed) / float64(len(signals.CustomChecks)))
	}

	if totalWeight == 0 {
		return 0
	}
	// Renormalize over the overseers actually configured, so that "one
	// overseer configured" collapses to that overseer's sub-score (§8).
	result := level / totalWeight

	if signals.BuildResult != nil && !signals.BuildResult.Passed {
		result = math.Min(result, 0.3)
	}
	if signals.TypeCheck != nil && !signals.TypeCheck.Passed {
		result = math.Min(result, 0.6)
	}

	return clamp(result, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// StructuralDiffNodes counts the Myers-diff-derived structural change size
// between two artifact contents, following the same algorithm
// (github.com/hexops/gotextdiff) the teacher's iterative package uses for
// convergence-by-diff detection.
func StructuralDiffNodes(previous, current string) int {
	return diffNodeCount(previous, current)
}
