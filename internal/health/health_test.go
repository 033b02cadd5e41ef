package health

import (
	"testing"

	"github.com/abathur-ai/abathur/internal/types"
)

func observationWith(diffNodes, vulnDelta int, delta float64) types.Observation {
	return types.Observation{
		Metrics: &types.ObservationMetrics{
			StructuralDiffNodes: diffNodes,
			VulnerabilityDelta:  vulnDelta,
			ConvergenceDelta:    delta,
		},
	}
}

func TestCompute_SignalToNoiseDefaultsHealthyWithNoData(t *testing.T) {
	health := Compute(ComputeInput{})
	if health.SignalToNoise != 1.0 {
		t.Fatalf("expected default signal-to-noise 1.0 with no context data, got %f", health.SignalToNoise)
	}
}

func TestCompute_ChurnRateAveragesLastThree(t *testing.T) {
	observations := []types.Observation{
		observationWith(10, 0, 0.1),
		observationWith(20, 0, 0.1),
		observationWith(30, 0, 0.1),
		observationWith(60, 0, 0.1),
	}
	health := Compute(ComputeInput{RecentObservations: observations})
	want := (20.0 + 30.0 + 60.0) / 3.0
	if health.StructuralChurnRate != want {
		t.Fatalf("expected churn rate %f over last 3, got %f", want, health.StructuralChurnRate)
	}
}

func TestShouldForceFreshStart_HighChurnWithStalledProgress(t *testing.T) {
	observations := []types.Observation{
		observationWith(60, 0, 0.01),
		observationWith(55, 0, -0.02),
		observationWith(70, 0, 0.02),
	}
	health := Compute(ComputeInput{RecentObservations: observations})
	trigger, reason := ShouldForceFreshStart(health, observations, 0, 3)
	if !trigger {
		t.Fatalf("expected high-churn stall to force fresh start, health=%+v", health)
	}
	if reason == "" {
		t.Fatal("expected non-empty rationale")
	}
}

func TestShouldForceFreshStart_LowSignalToNoise(t *testing.T) {
	health := types.ContextHealth{SignalToNoise: 0.3}
	trigger, _ := ShouldForceFreshStart(health, nil, 0, 3)
	if !trigger {
		t.Fatal("expected low signal-to-noise to force fresh start")
	}
}

func TestShouldForceFreshStart_VulnerabilitySpike(t *testing.T) {
	observations := []types.Observation{
		observationWith(5, 0, 0.1),
		observationWith(5, 3, 0.1),
		observationWith(5, 0, 0.1),
	}
	health := types.ContextHealth{SignalToNoise: 1.0}
	trigger, _ := ShouldForceFreshStart(health, observations, 0, 3)
	if !trigger {
		t.Fatal("expected vulnerability delta > 2 within last 3 to force fresh start")
	}
}

func TestShouldForceFreshStart_HighSelfSimilarity(t *testing.T) {
	observations := []types.Observation{
		observationWith(1, 0, 0.1),
		observationWith(1, 0, 0.1),
	}
	health := types.ContextHealth{SignalToNoise: 1.0, ArtifactSelfSimilarity: 0.95}
	trigger, _ := ShouldForceFreshStart(health, observations, 0, 3)
	if !trigger {
		t.Fatal("expected high self-similarity with >=2 observations to force fresh start")
	}
}

func TestShouldForceFreshStart_RespectsMaxFreshStarts(t *testing.T) {
	health := types.ContextHealth{SignalToNoise: 0.1}
	trigger, _ := ShouldForceFreshStart(health, nil, 3, 3)
	if trigger {
		t.Fatal("expected no forced fresh start once total_fresh_starts reaches the max")
	}
}

func TestShouldForceFreshStart_NoTriggerWhenHealthy(t *testing.T) {
	observations := []types.Observation{
		observationWith(30, 0, 0.1),
		observationWith(30, 0, 0.1),
		observationWith(30, 0, 0.1),
	}
	health := Compute(ComputeInput{RecentObservations: observations, UsefulContextTokens: 900, TotalContextTokens: 1000})
	trigger, _ := ShouldForceFreshStart(health, observations, 0, 3)
	if trigger {
		t.Fatalf("expected no trigger for healthy signals, health=%+v", health)
	}
}
