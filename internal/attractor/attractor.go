// Package attractor implements the Attractor Classifier (spec §4.3):
// sliding-window classification of a trajectory's dynamics into one of
// FixedPoint, LimitCycle, Divergent, Plateau, or Indeterminate. Grounded on
// internal/iterative/detector.go's ConvergenceDetector fallback-chain idea
// (diff-based detection as a cheap, deterministic alternative to an
// AI-driven judgment) generalised into a five-way classification over a
// window of observations rather than a binary converged/not-converged call.
package attractor

import (
	"fmt"
	"math"

	"github.com/abathur-ai/abathur/internal/types"
)

const (
	// DefaultWindow is the number of trailing observations considered.
	DefaultWindow = 5
	// DefaultCycleSimilarityThreshold is the fuzzy-match bar for declaring
	// a repeating cycle at a candidate period.
	DefaultCycleSimilarityThreshold = 0.85
	// DefaultPlateauEpsilon is the mean-|delta| ceiling for Plateau.
	DefaultPlateauEpsilon = 0.02
)

// Classifier classifies trajectory dynamics from a sliding window of
// observations (§4.3).
type Classifier struct {
	Window                   int
	CycleSimilarityThreshold float64
	PlateauEpsilon           float64
}

// NewClassifier builds a Classifier with the spec's default thresholds.
func NewClassifier() *Classifier {
	return &Classifier{
		Window:                   DefaultWindow,
		CycleSimilarityThreshold: DefaultCycleSimilarityThreshold,
		PlateauEpsilon:           DefaultPlateauEpsilon,
	}
}

// Classify inspects the trailing window of observations (plus the
// specification's amendment history, for Divergent cause inference, and the
// current budget, for FixedPoint's remaining-tokens estimate) and returns
// the resulting AttractorState.
func (c *Classifier) Classify(observations []types.Observation, amendments []types.SpecificationAmendment, budget types.ConvergenceBudget) types.AttractorState {
	window := c.window(observations)

	sigs := make([]string, len(window))
	for i, o := range window {
		sigs[i] = signature(o.Signals)
	}

	metriced := withMetrics(window)
	detectedAt := 0
	if len(window) > 0 {
		detectedAt = window[len(window)-1].Sequence
	}

	if len(metriced) < 3 {
		return c.indeterminate(window, sigs, detectedAt, "fewer than 3 observations carry metrics")
	}

	deltas := make([]float64, len(metriced))
	for i, o := range metriced {
		deltas[i] = o.Metrics.ConvergenceDelta
	}

	if state, ok := c.detectCycle(sigs, deltas, detectedAt); ok {
		return state
	}

	if meanAbs(deltas) < c.PlateauEpsilon {
		return plateau(metriced, deltas, sigs, detectedAt)
	}

	negFrac := fractionNegative(deltas)
	if negFrac >= 0.70 {
		return divergent(metriced, deltas, sigs, amendments, detectedAt)
	}

	posFrac := fractionPositive(deltas)
	if posFrac >= 0.60 {
		return fixedPoint(metriced, deltas, sigs, detectedAt, budget)
	}

	return c.indeterminate(window, sigs, detectedAt, "mixed signal: no dominant attractor")
}

func (c *Classifier) window(observations []types.Observation) []types.Observation {
	n := c.Window
	if n <= 0 {
		n = DefaultWindow
	}
	if len(observations) <= n {
		return observations
	}
	return observations[len(observations)-n:]
}

func withMetrics(window []types.Observation) []types.Observation {
	var out []types.Observation
	for _, o := range window {
		if o.Metrics != nil {
			out = append(out, o)
		}
	}
	return out
}

// detectCycle checks candidate periods 2, 3, 4 in order; the first period
// whose trailing two windows fuzzy-match above threshold wins (§4.3 step 1).
func (c *Classifier) detectCycle(sigs []string, deltas []float64, detectedAt int) (types.AttractorState, bool) {
	threshold := c.CycleSimilarityThreshold
	if threshold <= 0 {
		threshold = DefaultCycleSimilarityThreshold
	}

	for _, p := range []int{2, 3, 4} {
		if len(sigs) < 2*p {
			continue
		}
		recent := sigs[len(sigs)-p:]
		preceding := sigs[len(sigs)-2*p : len(sigs)-p]
		sim := similarity(recent, preceding)
		if sim >= threshold {
			state := types.AttractorState{
				Type: types.AttractorType{
					Kind:       types.AttractorLimitCycle,
					Period:     p,
					Signatures: append([]string(nil), recent...),
				},
				Confidence:            sim,
				DetectedAtObservation: detectedAt,
				RecentDeltas:          deltas,
				RecentSignatures:      sigs,
				Rationale:             fmt.Sprintf("period-%d signature match %.0f%% >= threshold %.0f%%", p, sim*100, threshold*100),
			}
			return state, true
		}
	}
	return types.AttractorState{}, false
}

// plateau handles §4.3 step 2: mean |delta| below epsilon. stall_duration
// counts trailing observations whose |delta| stays below the epsilon;
// plateau_level is the most recent convergence level.
func plateau(metriced []types.Observation, deltas []float64, sigs []string, detectedAt int) types.AttractorState {
	stall := 0
	for i := len(metriced) - 1; i >= 0; i-- {
		if math.Abs(metriced[i].Metrics.ConvergenceDelta) >= DefaultPlateauEpsilon {
			break
		}
		stall++
	}
	level := metriced[len(metriced)-1].Metrics.ConvergenceLevel

	return types.AttractorState{
		Type: types.AttractorType{
			Kind:          types.AttractorPlateau,
			StallDuration: stall,
			PlateauLevel:  level,
		},
		Confidence:            1 - meanAbs(deltas)/DefaultPlateauEpsilon*0.5,
		DetectedAtObservation: detectedAt,
		RecentDeltas:          deltas,
		RecentSignatures:      sigs,
		Rationale:             fmt.Sprintf("mean |delta| %.4f < plateau epsilon %.4f, stalled for %d observations at level %.2f", meanAbs(deltas), DefaultPlateauEpsilon, stall, level),
	}
}

// divergent handles §4.3 step 3: 70%+ of deltas negative. Cause inference
// prefers accumulated regression over ambiguity over wrong-approach, falling
// back to Unknown.
func divergent(metriced []types.Observation, deltas []float64, sigs []string, amendments []types.SpecificationAmendment, detectedAt int) types.AttractorState {
	cause := inferDivergentCause(metriced, sigs, amendments)

	return types.AttractorState{
		Type: types.AttractorType{
			Kind:  types.AttractorDivergent,
			Rate:  mean(deltas),
			Cause: cause,
		},
		Confidence:            fractionNegative(deltas),
		DetectedAtObservation: detectedAt,
		RecentDeltas:          deltas,
		RecentSignatures:      sigs,
		Rationale:             fmt.Sprintf("%.0f%% of recent deltas negative, mean rate %.4f, cause=%s", fractionNegative(deltas)*100, mean(deltas), cause),
	}
}

func inferDivergentCause(metriced []types.Observation, sigs []string, amendments []types.SpecificationAmendment) types.DivergentCause {
	for _, o := range metriced {
		if o.Metrics.TestRegressionCount > 0 {
			return types.CauseAccumulatedRegression
		}
	}
	if recentAmbiguityAmendment(amendments) {
		return types.CauseSpecificationAmbiguity
	}
	if allDistinct(sigs) {
		return types.CauseWrongApproach
	}
	return types.CauseUnknown
}

// recentAmbiguityAmendment reports whether the trailing amendments reflect
// specification ambiguity surfacing mid-trajectory, rather than a stable
// starting specification.
func recentAmbiguityAmendment(amendments []types.SpecificationAmendment) bool {
	n := len(amendments)
	if n == 0 {
		return false
	}
	window := amendments
	if n > 3 {
		window = amendments[n-3:]
	}
	for _, a := range window {
		switch a.Source {
		case types.AmendmentImplicitRequirement, types.AmendmentTestDisambiguation, types.AmendmentOverseerDiscovery:
			return true
		}
	}
	return false
}

func allDistinct(sigs []string) bool {
	seen := make(map[string]bool, len(sigs))
	for _, s := range sigs {
		if seen[s] {
			return false
		}
		seen[s] = true
	}
	return true
}

// fixedPoint handles §4.3 step 4: 60%+ of deltas positive. remaining
// iterations extrapolate the mean positive rate to reach level 1.0;
// remaining tokens scale the same ratio against the per-iteration token
// cost observed so far.
func fixedPoint(metriced []types.Observation, deltas []float64, sigs []string, detectedAt int, budget types.ConvergenceBudget) types.AttractorState {
	meanPositive := meanPositiveRate(deltas)
	level := metriced[len(metriced)-1].Metrics.ConvergenceLevel

	remainingIterations := 1
	if meanPositive > 0 {
		remainingIterations = int(math.Ceil((1 - level) / meanPositive))
		if remainingIterations < 1 {
			remainingIterations = 1
		}
	}

	avgTokens := meanTokens(metriced)
	remainingTokens := int(float64(remainingIterations) * avgTokens)
	if budget.MaxTokens > 0 {
		if budgetRemaining := budget.MaxTokens - budget.ConsumedTokens; remainingTokens > budgetRemaining {
			remainingTokens = budgetRemaining
		}
	}

	return types.AttractorState{
		Type: types.AttractorType{
			Kind:                 types.AttractorFixedPoint,
			RemainingIterations:  remainingIterations,
			RemainingTokens:      remainingTokens,
		},
		Confidence:            fractionPositive(deltas),
		DetectedAtObservation: detectedAt,
		RecentDeltas:          deltas,
		RecentSignatures:      sigs,
		Rationale:             fmt.Sprintf("%.0f%% of recent deltas positive, projecting %d more iterations (~%d tokens) to reach level 1.0 from %.2f", fractionPositive(deltas)*100, remainingIterations, remainingTokens, level),
	}
}

func meanTokens(observations []types.Observation) float64 {
	if len(observations) == 0 {
		return 0
	}
	total := 0
	for _, o := range observations {
		total += o.Tokens
	}
	return float64(total) / float64(len(observations))
}

// indeterminate is the §4.3 step 5 fallback, also used for the "fewer than
// 3 metriced observations" boundary case.
func (c *Classifier) indeterminate(window []types.Observation, sigs []string, detectedAt int, reason string) types.AttractorState {
	tendency := types.TendencyFlat
	var deltas []float64
	var last *types.ObservationMetrics
	for _, o := range window {
		if o.Metrics != nil {
			deltas = append(deltas, o.Metrics.ConvergenceDelta)
			last = o.Metrics
		}
	}
	if last != nil {
		switch {
		case last.ConvergenceDelta > DefaultPlateauEpsilon:
			tendency = types.TendencyImproving
		case last.ConvergenceDelta < -DefaultPlateauEpsilon:
			tendency = types.TendencyDeclining
		}
	}

	return types.AttractorState{
		Type: types.AttractorType{
			Kind:     types.AttractorIndeterminate,
			Tendency: tendency,
		},
		Confidence:            0.3,
		DetectedAtObservation: detectedAt,
		RecentDeltas:          deltas,
		RecentSignatures:      sigs,
		Rationale:             reason,
	}
}

func mean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

func meanAbs(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vs {
		sum += math.Abs(v)
	}
	return sum / float64(len(vs))
}

func meanPositiveRate(vs []float64) float64 {
	sum, n := 0.0, 0
	for _, v := range vs {
		if v > 0 {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func fractionNegative(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	n := 0
	for _, v := range vs {
		if v < 0 {
			n++
		}
	}
	return float64(n) / float64(len(vs))
}

func fractionPositive(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	n := 0
	for _, v := range vs {
		if v > 0 {
			n++
		}
	}
	return float64(n) / float64(len(vs))
}
