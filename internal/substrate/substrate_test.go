package substrate

import (
	"errors"
	"testing"
	"time"

	"github.com/abathur-ai/abathur/internal/engine"
	"github.com/abathur-ai/abathur/internal/types"
)

func TestBuildExecutionPrompt_RetryWithFeedbackIncludesPreviousSignals(t *testing.T) {
	traj := types.NewTrajectory("task-1", "goal-1", "build a widget", types.ConvergenceBudget{MaxTokens: 10000, MaxIterations: 5}, types.DefaultConvergencePolicy())
	traj.AppendObservation(types.Observation{
		ArtifactRef: "package widget\n",
		Signals: types.OverseerSignals{
			TestResults: &types.TestResults{Passed: 2, Failed: 1, Total: 3, Regressions: []string{"TestFoo"}},
		},
	})

	prompt := buildExecutionPrompt(types.Strategy{Kind: types.StrategyRetryWithFeedback}, types.TaskSubmission{Description: "build a widget"}, traj)

	if !containsAll(prompt, "build a widget", "2/3 passing", "TestFoo", "package widget") {
		t.Fatalf("prompt missing expected content: %s", prompt)
	}
}

func TestBuildExecutionPrompt_FreshStartCarriesForwardSummary(t *testing.T) {
	traj := types.NewTrajectory("task-1", "goal-1", "build a widget", types.ConvergenceBudget{}, types.DefaultConvergencePolicy())

	strategy := types.Strategy{
		Kind: types.StrategyFreshStart,
		CarryForward: &types.CarryForward{
			EffectiveSpecification: "widgets must be blue",
			FailureSummary:         "kept reverting to red",
		},
	}

	prompt := buildExecutionPrompt(strategy, types.TaskSubmission{Description: "build a widget"}, traj)

	if !containsAll(prompt, "Start over from a blank slate", "widgets must be blue", "kept reverting to red") {
		t.Fatalf("prompt missing carry-forward content: %s", prompt)
	}
}

func TestBuildExecutionPrompt_AlternativeApproachOmitsPreviousArtifact(t *testing.T) {
	traj := types.NewTrajectory("task-1", "goal-1", "build a widget", types.ConvergenceBudget{}, types.DefaultConvergencePolicy())
	traj.AppendObservation(types.Observation{ArtifactRef: "old implementation"})

	prompt := buildExecutionPrompt(types.Strategy{Kind: types.StrategyAlternativeApproach}, types.TaskSubmission{Description: "build a widget"}, traj)

	if containsAll(prompt, "old implementation") {
		t.Fatalf("alternative-approach framing should not echo the previous artifact verbatim: %s", prompt)
	}
}

func containsAll(haystack string, needles ...string) bool {
	for _, n := range needles {
		if !contains(haystack, n) {
			return false
		}
	}
	return true
}

func contains(haystack, needle string) bool {
	return len(needle) == 0 || indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

func TestClassifyError_RateLimitMessagePattern(t *testing.T) {
	errorType, _ := classifyError(errors.New("429 rate limit exceeded, please try again in 30 seconds"))
	if errorType != ErrorQuota {
		t.Fatalf("expected ErrorQuota, got %s", errorType)
	}
}

func TestClassifyError_ServerErrorMessagePatternIsTransient(t *testing.T) {
	errorType, _ := classifyError(errors.New("502 bad gateway"))
	if errorType != ErrorTransient {
		t.Fatalf("expected ErrorTransient, got %s", errorType)
	}
}

func TestClassifyError_AuthMessagePatternIsNonRetriable(t *testing.T) {
	errorType, _ := classifyError(errors.New("401 unauthorized"))
	if errorType != ErrorAuth {
		t.Fatalf("expected ErrorAuth, got %s", errorType)
	}
}

func TestClassifyError_MessagePatternFallback(t *testing.T) {
	errorType, _ := classifyError(errors.New("request failed: connection reset by peer"))
	if errorType != ErrorTransient {
		t.Fatalf("expected ErrorTransient from message pattern, got %s", errorType)
	}
}

func TestParseRetryAfterFromMessage_Minutes(t *testing.T) {
	wait := parseRetryAfterFromMessage("please try again in 2 minutes")
	if wait != 2*time.Minute {
		t.Fatalf("expected 2m, got %v", wait)
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(3, 1, time.Minute)
	for i := 0; i < 3; i++ {
		cb.RecordFailure(ErrorTransient)
	}
	if cb.State() != CircuitOpen {
		t.Fatalf("expected circuit to open after 3 failures, got %s", cb.State())
	}
	if err := cb.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestCircuitBreaker_QuotaFailuresWeightTriple(t *testing.T) {
	cb := NewCircuitBreaker(3, 1, time.Minute)
	cb.RecordFailure(ErrorQuota)
	if cb.State() != CircuitOpen {
		t.Fatalf("expected a single quota failure (weight 3) to open a threshold-3 breaker, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenClosesAfterSuccesses(t *testing.T) {
	cb := NewCircuitBreaker(1, 2, 0)
	cb.RecordFailure(ErrorTransient)
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}
	// openTimeout is 0, so the very next Allow() transitions to half-open.
	if err := cb.Allow(); err != nil {
		t.Fatalf("expected half-open probe to be allowed, got %v", err)
	}
	cb.RecordSuccess()
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("expected still half-open after one success (threshold 2), got %s", cb.State())
	}
	cb.RecordSuccess()
	if cb.State() != CircuitClosed {
		t.Fatalf("expected closed after second success, got %s", cb.State())
	}
}

func TestDiffPercent_IdenticalTextIsZero(t *testing.T) {
	if p := diffPercent("line one\nline two\n", "line one\nline two\n"); p != 0 {
		t.Fatalf("expected 0%% diff for identical text, got %.1f", p)
	}
}

func TestDiffPercent_FullRewriteIsLarge(t *testing.T) {
	if p := diffPercent("line one\n", "something entirely different\nwith more lines\nand more\n"); p <= 100 {
		t.Fatalf("expected a full rewrite to exceed 100%% of the original line count, got %.1f", p)
	}
}

func TestChainedVerifier_DiffFallbackSatisfiedBelowThreshold(t *testing.T) {
	v := &ChainedVerifier{MaxDiffPercent: 50}
	task := types.TaskSubmission{ContextFiles: []string{"package widget\n\nfunc Widget() {}\n"}}
	result := v.diffFallback(task, engine.Artifact{Content: "package widget\n\nfunc Widget() {}\n"})
	if !result.Satisfied {
		t.Fatalf("expected satisfied for near-identical content, got gaps: %+v", result.Gaps)
	}
}

func TestChainedVerifier_DiffFallbackUnsatisfiedAboveThreshold(t *testing.T) {
	v := &ChainedVerifier{MaxDiffPercent: 1}
	task := types.TaskSubmission{ContextFiles: []string{"package widget\n"}}
	result := v.diffFallback(task, engine.Artifact{Content: "a completely rewritten artifact\nwith many new lines\nand more content\nand more\n"})
	if result.Satisfied {
		t.Fatalf("expected unsatisfied for a large rewrite above threshold")
	}
	if len(result.Gaps) != 1 || result.Gaps[0].Severity != "low" {
		t.Fatalf("expected one low-severity fallback gap, got %+v", result.Gaps)
	}
}

func TestChainedVerifier_DiffFallbackWithNoBaselineIsUnsatisfied(t *testing.T) {
	v := &ChainedVerifier{MaxDiffPercent: 50}
	result := v.diffFallback(types.TaskSubmission{}, engine.Artifact{Content: "anything"})
	if result.Satisfied {
		t.Fatalf("expected unsatisfied when there is no baseline to compare against")
	}
}

func TestComplexityFromString_FallsBackOnUnrecognized(t *testing.T) {
	if c := complexityFromString("banana", types.ComplexityModerate); c != types.ComplexityModerate {
		t.Fatalf("expected fallback to moderate, got %s", c)
	}
	if c := complexityFromString("Complex", types.ComplexityModerate); c != types.ComplexityComplex {
		t.Fatalf("expected case-insensitive match to complex, got %s", c)
	}
}
