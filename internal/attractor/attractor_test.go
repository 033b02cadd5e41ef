package attractor

import (
	"testing"
	"time"

	"github.com/abathur-ai/abathur/internal/types"
)

func observationWithDelta(seq int, delta, level float64, passed bool) types.Observation {
	return types.Observation{
		Sequence: seq,
		Signals: types.OverseerSignals{
			BuildResult: &types.CheckResult{Passed: passed},
			TestResults: &types.TestResults{Passed: seq, Total: 10},
		},
		Metrics: &types.ObservationMetrics{
			ConvergenceDelta: delta,
			ConvergenceLevel: level,
		},
		Tokens:    1000,
		Timestamp: time.Unix(int64(seq), 0),
	}
}

func TestClassify_FewerThanThreeMetricedIsIndeterminate(t *testing.T) {
	obs := []types.Observation{
		{Sequence: 0},
		observationWithDelta(1, 0.1, 0.3, true),
	}
	state := NewClassifier().Classify(obs, nil, types.ConvergenceBudget{})
	if state.Type.Kind != types.AttractorIndeterminate {
		t.Fatalf("expected Indeterminate with fewer than 3 metriced observations, got %s", state.Type.Kind)
	}
}

func TestClassify_FixedPointOnDominantPositiveDeltas(t *testing.T) {
	obs := []types.Observation{
		observationWithDelta(0, 0.2, 0.3, true),
		observationWithDelta(1, 0.15, 0.45, true),
		observationWithDelta(2, 0.1, 0.55, true),
		observationWithDelta(3, 0.1, 0.65, true),
	}
	state := NewClassifier().Classify(obs, nil, types.ConvergenceBudget{})
	if state.Type.Kind != types.AttractorFixedPoint {
		t.Fatalf("expected FixedPoint on dominant positive deltas, got %s", state.Type.Kind)
	}
	if state.Type.RemainingIterations <= 0 {
		t.Fatalf("expected positive remaining iterations, got %d", state.Type.RemainingIterations)
	}
}

func TestClassify_DivergentOnDominantNegativeDeltas(t *testing.T) {
	obs := []types.Observation{
		observationWithDelta(0, -0.3, 0.6, true),
		observationWithDelta(1, -0.2, 0.4, true),
		observationWithDelta(2, -0.25, 0.15, true),
		observationWithDelta(3, 0.05, 0.2, true),
	}
	state := NewClassifier().Classify(obs, nil, types.ConvergenceBudget{})
	if state.Type.Kind != types.AttractorDivergent {
		t.Fatalf("expected Divergent on dominant negative deltas, got %s", state.Type.Kind)
	}
}

func TestClassify_DivergentCauseAccumulatedRegressionWins(t *testing.T) {
	obs := []types.Observation{
		observationWithDelta(0, -0.3, 0.6, true),
		observationWithDelta(1, -0.2, 0.4, true),
		observationWithDelta(2, -0.25, 0.15, true),
	}
	obs[1].Metrics.TestRegressionCount = 2
	state := NewClassifier().Classify(obs, nil, types.ConvergenceBudget{})
	if state.Type.Cause != types.CauseAccumulatedRegression {
		t.Fatalf("expected AccumulatedRegression cause, got %s", state.Type.Cause)
	}
}

func TestClassify_PlateauOnTinyDeltas(t *testing.T) {
	obs := []types.Observation{
		observationWithDelta(0, 0.005, 0.5, true),
		observationWithDelta(1, -0.003, 0.5, true),
		observationWithDelta(2, 0.001, 0.5, true),
		observationWithDelta(3, 0.002, 0.5, true),
	}
	state := NewClassifier().Classify(obs, nil, types.ConvergenceBudget{})
	if state.Type.Kind != types.AttractorPlateau {
		t.Fatalf("expected Plateau on tiny deltas, got %s", state.Type.Kind)
	}
	if state.Type.StallDuration < 4 {
		t.Fatalf("expected stall duration to cover all 4 tiny-delta observations, got %d", state.Type.StallDuration)
	}
}

func TestClassify_LimitCycleOnRepeatingSignatures(t *testing.T) {
	mk := func(seq int, passed bool, delta float64) types.Observation {
		return types.Observation{
			Sequence: seq,
			Signals: types.OverseerSignals{
				BuildResult: &types.CheckResult{Passed: passed},
				TestResults: &types.TestResults{Passed: 5, Total: 10},
			},
			Metrics: &types.ObservationMetrics{
				ConvergenceDelta: delta,
				ConvergenceLevel: 0.5,
			},
			Tokens: 1000,
		}
	}
	// Alternating pass/fail build signature with period 2, repeated twice:
	// enough to satisfy both the 2*period window and the fuzzy match.
	obs := []types.Observation{
		mk(0, true, 0.1),
		mk(1, false, -0.1),
		mk(2, true, 0.1),
		mk(3, false, -0.1),
	}
	state := NewClassifier().Classify(obs, nil, types.ConvergenceBudget{})
	if state.Type.Kind != types.AttractorLimitCycle {
		t.Fatalf("expected LimitCycle on repeating pass/fail signature, got %s", state.Type.Kind)
	}
	if state.Type.Period != 2 {
		t.Fatalf("expected period 2, got %d", state.Type.Period)
	}
}

func TestClassify_IndeterminateTendencyFromLastDelta(t *testing.T) {
	// Mixed deltas, neither dominant threshold met: 2/4 positive, none of the
	// negative/positive majorities or plateau/cycle conditions trigger.
	obs := []types.Observation{
		observationWithDelta(0, 0.2, 0.3, true),
		observationWithDelta(1, -0.2, 0.2, true),
		observationWithDelta(2, 0.2, 0.35, true),
		observationWithDelta(3, -0.2, 0.25, true),
	}
	obs[0].Signals.TestResults.Passed = 1
	obs[1].Signals.TestResults.Passed = 7
	obs[2].Signals.TestResults.Passed = 2
	obs[3].Signals.TestResults.Passed = 9
	state := NewClassifier().Classify(obs, nil, types.ConvergenceBudget{})
	if state.Type.Kind != types.AttractorIndeterminate {
		t.Fatalf("expected Indeterminate on balanced mixed deltas, got %s", state.Type.Kind)
	}
	if state.Type.Tendency != types.TendencyDeclining {
		t.Fatalf("expected Declining tendency from last negative delta, got %s", state.Type.Tendency)
	}
}
