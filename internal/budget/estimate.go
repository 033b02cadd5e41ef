package budget

import (
	"sort"

	"github.com/abathur-ai/abathur/internal/types"
)

// HistoricalSample is one prior trajectory of similar shape, as returned by
// the Trajectory Store's similarity search.
type HistoricalSample struct {
	Iterations int
	Converged  bool
}

// minBasinScoreForScaling floors the basin score used as a divisor so a
// near-zero basin doesn't blow the heuristic estimate up toward infinity.
const minBasinScoreForScaling = 0.1

// EstimateConvergence predicts how many iterations a trajectory of this
// complexity and basin is likely to need (§4.6). With at least 10 similar
// historical trajectories it uses their empirical mean/p95 iteration counts
// and convergence rate; otherwise it falls back to the per-complexity
// heuristic base scaled by 1/basin.score.
func EstimateConvergence(complexity types.Complexity, basin types.BasinEstimate, samples []HistoricalSample) types.ConvergenceEstimate {
	if len(samples) >= 10 {
		return empiricalEstimate(samples)
	}
	return heuristicEstimate(complexity, basin)
}

func empiricalEstimate(samples []HistoricalSample) types.ConvergenceEstimate {
	iterations := make([]float64, len(samples))
	converged := 0
	sum := 0.0
	for i, s := range samples {
		iterations[i] = float64(s.Iterations)
		sum += float64(s.Iterations)
		if s.Converged {
			converged++
		}
	}
	sort.Float64s(iterations)

	return types.ConvergenceEstimate{
		ExpectedIterations:     sum / float64(len(samples)),
		P95Iterations:          percentile(iterations, 0.95),
		ConvergenceProbability: float64(converged) / float64(len(samples)),
		Empirical:              true,
		SampleSize:             len(samples),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p*float64(len(sorted)-1) + 0.9999999)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func heuristicEstimate(complexity types.Complexity, basin types.BasinEstimate) types.ConvergenceEstimate {
	a, ok := baseAllocations[complexity]
	if !ok {
		a = baseAllocations[types.ComplexityModerate]
	}
	score := basin.Score
	if score < minBasinScoreForScaling {
		score = minBasinScoreForScaling
	}
	expected := float64(a.iterations) / score
	return types.ConvergenceEstimate{
		ExpectedIterations:     expected,
		P95Iterations:          expected * 1.5,
		ConvergenceProbability: score,
		Empirical:              false,
		SampleSize:             0,
	}
}
