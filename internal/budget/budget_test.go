package budget

import (
	"testing"
	"time"

	"github.com/abathur-ai/abathur/internal/types"
)

func TestAllocate_ModerateBasinUsesBaseTable(t *testing.T) {
	basin := types.BasinEstimate{Score: 0.5, Classification: types.BasinModerate}
	got := Allocate(types.ComplexitySimple, basin)
	if got.MaxTokens != 150_000 || got.MaxIterations != 10 {
		t.Fatalf("expected unscaled Simple allocation, got %+v", got)
	}
}

func TestAllocate_WideBasinReducesIterations(t *testing.T) {
	basin := types.BasinEstimate{Score: 0.8, Classification: types.BasinWide}
	got := Allocate(types.ComplexityModerate, basin)
	want := int(float64(baseAllocations[types.ComplexityModerate].iterations) * 0.75)
	if got.MaxIterations != want {
		t.Fatalf("expected %d iterations for Wide basin, got %d", want, got.MaxIterations)
	}
}

func TestAllocate_NarrowBasinIncreasesTokensAndIterations(t *testing.T) {
	basin := types.BasinEstimate{Score: 0.2, Classification: types.BasinNarrow}
	got := Allocate(types.ComplexityModerate, basin)
	base := baseAllocations[types.ComplexityModerate]
	if got.MaxIterations != int(float64(base.iterations)*1.5) {
		t.Fatalf("expected 1.5x iterations for Narrow basin, got %d", got.MaxIterations)
	}
	if got.MaxTokens != int(float64(base.tokens)*1.3) {
		t.Fatalf("expected 1.3x tokens for Narrow basin, got %d", got.MaxTokens)
	}
}

func TestAdjustPolicy_NarrowForcesAcceptanceTests(t *testing.T) {
	basin := types.BasinEstimate{Classification: types.BasinNarrow}
	got := AdjustPolicy(types.DefaultConvergencePolicy(), basin)
	if !got.GenerateAcceptanceTests {
		t.Fatal("expected Narrow basin to force acceptance-test generation")
	}
	if got.ExplorationWeight != 0.6 {
		t.Fatalf("expected exploration weight 0.6 for Narrow basin, got %f", got.ExplorationWeight)
	}
}

func TestAdjustPolicy_WideLowersExploration(t *testing.T) {
	basin := types.BasinEstimate{Classification: types.BasinWide}
	got := AdjustPolicy(types.DefaultConvergencePolicy(), basin)
	if got.ExplorationWeight != 0.2 {
		t.Fatalf("expected exploration weight 0.2 for Wide basin, got %f", got.ExplorationWeight)
	}
}

func TestEstimateBasin_FullSignalsClassifyWide(t *testing.T) {
	task := types.TaskSubmission{
		Description:     "implement the thing with reasonable scope and detail to satisfy the acceptance tests below",
		AcceptanceTests: []string{"t1"},
		Examples:        []string{"e1"},
		Invariants:      []string{"i1"},
		AntiExamples:    []string{"a1"},
		ContextFiles:    []string{"f1"},
	}
	got := EstimateBasin(BasinInput{Task: task})
	if got.Classification != types.BasinWide {
		t.Fatalf("expected Wide classification with all signals present, got %v (score %f)", got.Classification, got.Score)
	}
}

func TestEstimateBasin_SparseDescriptionClassifiesNarrow(t *testing.T) {
	task := types.TaskSubmission{Description: "fix it"}
	got := EstimateBasin(BasinInput{Task: task})
	if got.Classification != types.BasinNarrow {
		t.Fatalf("expected Narrow classification for sparse spec, got %v (score %f)", got.Classification, got.Score)
	}
}

func TestEstimateBasin_BlendsHistoricalRateWhenSampled(t *testing.T) {
	task := types.TaskSubmission{Description: "a modestly detailed task description without any quality signals attached"}
	low := EstimateBasin(BasinInput{Task: task})
	high := EstimateBasin(BasinInput{Task: task, HistoricalConvergenceRate: 1.0, HistoricalSampleSize: 12})
	if high.Score <= low.Score {
		t.Fatalf("expected a high historical convergence rate to raise the blended score, low=%f high=%f", low.Score, high.Score)
	}
}

func TestEstimateConvergence_EmpiricalWhenTenOrMoreSamples(t *testing.T) {
	samples := make([]HistoricalSample, 10)
	for i := range samples {
		samples[i] = HistoricalSample{Iterations: 10 + i, Converged: i%2 == 0}
	}
	got := EstimateConvergence(types.ComplexityModerate, types.BasinEstimate{Score: 0.5}, samples)
	if !got.Empirical {
		t.Fatal("expected empirical estimate with 10 samples")
	}
	if got.ConvergenceProbability != 0.5 {
		t.Fatalf("expected 0.5 convergence probability, got %f", got.ConvergenceProbability)
	}
}

func TestEstimateConvergence_HeuristicWhenFewerThanTenSamples(t *testing.T) {
	got := EstimateConvergence(types.ComplexityModerate, types.BasinEstimate{Score: 0.2}, nil)
	if got.Empirical {
		t.Fatal("expected heuristic estimate with no historical samples")
	}
	base := float64(baseAllocations[types.ComplexityModerate].iterations)
	if got.ExpectedIterations != base/0.2 {
		t.Fatalf("expected heuristic scaling by 1/basin.score, got %f", got.ExpectedIterations)
	}
}

func TestShouldRequestExtension_LowRemainingFixedPoint(t *testing.T) {
	budget := types.ConvergenceBudget{MaxTokens: 1000, ConsumedTokens: 900, MaxExtensions: 2}
	if !ShouldRequestExtension(budget, types.AttractorFixedPoint) {
		t.Fatal("expected extension request for low-remaining FixedPoint trajectory")
	}
}

func TestShouldRequestExtension_NotFixedPointSkipsRequest(t *testing.T) {
	budget := types.ConvergenceBudget{MaxTokens: 1000, ConsumedTokens: 990, MaxExtensions: 2}
	if ShouldRequestExtension(budget, types.AttractorPlateau) {
		t.Fatal("expected no extension request outside FixedPoint")
	}
}

func TestShouldRequestExtension_ExhaustedExtensionsSkipsRequest(t *testing.T) {
	budget := types.ConvergenceBudget{MaxTokens: 1000, ConsumedTokens: 990, MaxExtensions: 1, ExtensionsRequested: 1}
	if ShouldRequestExtension(budget, types.AttractorFixedPoint) {
		t.Fatal("expected no extension request once max_extensions reached")
	}
}

func TestGrantExtension_AutoGrantsForNonThoroughPriority(t *testing.T) {
	budget := types.ConvergenceBudget{MaxTokens: 1000, MaxIterations: 10}
	granted, needsApproval := GrantExtension(budget, nil)
	if needsApproval {
		t.Fatal("expected auto-grant with no priority hint")
	}
	if granted.ExtensionsGranted != 1 {
		t.Fatalf("expected extensions_granted incremented, got %d", granted.ExtensionsGranted)
	}
	if granted.MaxTokens <= budget.MaxTokens {
		t.Fatal("expected granted budget to top up max tokens")
	}
}

func TestGrantExtension_ThoroughPriorityRequiresApproval(t *testing.T) {
	thorough := types.PriorityThorough
	budget := types.ConvergenceBudget{MaxTokens: 1000, MaxIterations: 10}
	granted, needsApproval := GrantExtension(budget, &thorough)
	if !needsApproval {
		t.Fatal("expected Thorough priority to require approval")
	}
	if granted.ExtensionsGranted != 0 {
		t.Fatal("expected no top-up until the pending extension is approved")
	}
	if granted.ExtensionsRequested != 1 {
		t.Fatal("expected extensions_requested incremented even while pending approval")
	}
}

func TestProjectBurnRate_TooFewObservationsIsLowConfidence(t *testing.T) {
	budget := types.ConvergenceBudget{MaxTokens: 1000}
	got := ProjectBurnRate(budget, []types.Observation{{Tokens: 100}})
	if got.Confidence != 0 {
		t.Fatalf("expected zero confidence with fewer than 2 observations, got %f", got.Confidence)
	}
}

func TestProjectBurnRate_ProjectsIterationsToExhaustion(t *testing.T) {
	budget := types.ConvergenceBudget{MaxTokens: 1000, ConsumedTokens: 400}
	observations := []types.Observation{
		{Tokens: 100, Timestamp: time.Unix(0, 0)},
		{Tokens: 100, Timestamp: time.Unix(1, 0)},
	}
	got := ProjectBurnRate(budget, observations)
	if got.TokensPerIteration != 100 {
		t.Fatalf("expected 100 tokens/iteration, got %f", got.TokensPerIteration)
	}
	if got.IterationsToExhaustion != 6 {
		t.Fatalf("expected 6 iterations to exhaustion (600 remaining / 100), got %f", got.IterationsToExhaustion)
	}
}
