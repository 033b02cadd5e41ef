// Package health implements the Context-Health Monitor (spec §4.5):
// signal computation from recent observations plus the forced-FreshStart
// trigger table. New logic — the teacher's internal/watchdog addresses a
// different, unrelated concern (detecting runaway agent processes) — but
// follows the same threshold-table-over-a-struct-of-float-signals shape as
// internal/cost/budget.go's BudgetStatus checks.
package health

import (
	"fmt"
	"math"

	"github.com/abathur-ai/abathur/internal/types"
)

// maxStructuralDiff mirrors internal/metrics's structural_stability
// normalisation constant: diffs at or above this size count as maximally
// disruptive.
const maxStructuralDiff = 200.0

// ComputeInput is the raw material the engine assembles for one health
// computation. UsefulContextTokens/TotalContextTokens come from the
// substrate's token accounting; RecentObservations is the trailing window
// (at least 3, where available) used for churn and similarity.
type ComputeInput struct {
	UsefulContextTokens int
	TotalContextTokens  int
	RecentObservations  []types.Observation
}

// Compute derives ContextHealth from the current window (§4.5).
func Compute(input ComputeInput) types.ContextHealth {
	return types.ContextHealth{
		SignalToNoise:          signalToNoise(input.UsefulContextTokens, input.TotalContextTokens),
		StructuralChurnRate:    meanChurn(input.RecentObservations, 3),
		ArtifactSelfSimilarity: selfSimilarity(input.RecentObservations),
	}
}

func signalToNoise(useful, total int) float64 {
	if total <= 0 {
		return 1.0
	}
	ratio := float64(useful) / float64(total)
	return clamp(ratio, 0, 1)
}

// meanChurn averages StructuralDiffNodes over the last n metriced
// observations (§4.5: "mean AST-diff over last 3").
func meanChurn(observations []types.Observation, n int) float64 {
	window := trailingMetriced(observations, n)
	if len(window) == 0 {
		return 0
	}
	sum := 0
	for _, o := range window {
		sum += o.Metrics.StructuralDiffNodes
	}
	return float64(sum) / float64(len(window))
}

// selfSimilarity derives artifact self-similarity from the most recent
// observation's structural diff against its predecessor: a tiny diff means
// the artifact barely changed, i.e. high self-similarity.
func selfSimilarity(observations []types.Observation) float64 {
	window := trailingMetriced(observations, 1)
	if len(window) == 0 {
		return 0
	}
	last := window[len(window)-1]
	return clamp(1-math.Min(float64(last.Metrics.StructuralDiffNodes)/maxStructuralDiff, 1), 0, 1)
}

func trailingMetriced(observations []types.Observation, n int) []types.Observation {
	var metriced []types.Observation
	for _, o := range observations {
		if o.Metrics != nil {
			metriced = append(metriced, o)
		}
	}
	if len(metriced) <= n {
		return metriced
	}
	return metriced[len(metriced)-n:]
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

// ShouldForceFreshStart evaluates the §4.5 trigger table: a forced
// FreshStart fires when total_fresh_starts < max_fresh_starts and any of
// the four degradation conditions hold. Returns the triggering rationale
// for the ContextDegradationDetected event.
func ShouldForceFreshStart(health types.ContextHealth, recentObservations []types.Observation, totalFreshStarts, maxFreshStarts int) (bool, string) {
	if totalFreshStarts >= maxFreshStarts {
		return false, ""
	}

	last3 := trailingMetriced(recentObservations, 3)

	if health.StructuralChurnRate > 50 && len(last3) >= 3 && allDeltasBelow(last3, 0.03) {
		return true, fmt.Sprintf("high structural churn (%.1f) with negligible progress (|delta| < 0.03) over the last %d iterations", health.StructuralChurnRate, len(last3))
	}

	if health.SignalToNoise < 0.4 {
		return true, fmt.Sprintf("signal-to-noise dropped to %.2f, below the 0.4 floor", health.SignalToNoise)
	}

	if maxVulnerabilityDelta(last3) > 2 {
		return true, "vulnerability delta exceeded 2 within the last 3 iterations"
	}

	if health.ArtifactSelfSimilarity > 0.9 && len(recentObservations) >= 2 {
		return true, fmt.Sprintf("artifact self-similarity %.2f exceeded 0.9 across successive iterations", health.ArtifactSelfSimilarity)
	}

	return false, ""
}

func allDeltasBelow(observations []types.Observation, threshold float64) bool {
	for _, o := range observations {
		if math.Abs(o.Metrics.ConvergenceDelta) >= threshold {
			return false
		}
	}
	return true
}

func maxVulnerabilityDelta(observations []types.Observation) int {
	max := 0
	for _, o := range observations {
		if o.Metrics.VulnerabilityDelta > max {
			max = o.Metrics.VulnerabilityDelta
		}
	}
	return max
}
