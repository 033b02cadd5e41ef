package substrate

import (
	"fmt"
	"strings"

	"github.com/abathur-ai/abathur/internal/types"
)

// buildExecutionPrompt assembles the prompt one strategy execution sends
// to the substrate. It always carries the effective specification; the
// previous artifact's failing signals are included only for strategies
// that build on the last attempt, and strategy-specific framing
// (retry-with-feedback, reframe, fresh start, ...) is layered on top so
// the model is told not just what to produce but how this attempt differs
// from the last one.
func buildExecutionPrompt(strategy types.Strategy, task types.TaskSubmission, traj *types.Trajectory) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Task\n\n%s\n\n", traj.Specification.Effective)

	if len(task.AcceptanceTests) > 0 {
		b.WriteString("## Acceptance tests\n")
		for _, t := range task.AcceptanceTests {
			fmt.Fprintf(&b, "- %s\n", t)
		}
		b.WriteString("\n")
	}
	if len(task.Invariants) > 0 {
		b.WriteString("## Invariants that must hold\n")
		for _, inv := range task.Invariants {
			fmt.Fprintf(&b, "- %s\n", inv)
		}
		b.WriteString("\n")
	}
	if len(task.AntiExamples) > 0 {
		b.WriteString("## Known-bad outputs to avoid\n")
		for _, ex := range task.AntiExamples {
			fmt.Fprintf(&b, "- %s\n", ex)
		}
		b.WriteString("\n")
	}

	last := traj.LastObservation()
	writeStrategyFraming(&b, strategy, traj, last)

	return b.String()
}

func writeStrategyFraming(b *strings.Builder, strategy types.Strategy, traj *types.Trajectory, last *types.Observation) {
	switch strategy.Kind {
	case types.StrategyRetryWithFeedback, types.StrategyRetryAugmented, types.StrategyFocusedRepair, types.StrategyIncrementalRefinement:
		b.WriteString("## Instruction\n")
		b.WriteString("Revise the previous attempt to address the feedback below. Preserve everything that already works.\n\n")
		writeSignalFeedback(b, last)

	case types.StrategyReframe:
		b.WriteString("## Instruction\n")
		b.WriteString("The previous attempts have not converged. Step back and reconsider the approach rather than patching the last artifact; a different decomposition of the problem is likely needed.\n\n")
		writeSignalFeedback(b, last)

	case types.StrategyAlternativeApproach:
		b.WriteString("## Instruction\n")
		b.WriteString("Discard the previous implementation strategy entirely and solve the task with a materially different approach.\n\n")

	case types.StrategyArchitectReview:
		b.WriteString("## Instruction\n")
		b.WriteString("Produce an architectural critique of the current artifact first, then a revision that resolves the structural issues you identify.\n\n")
		writeSignalFeedback(b, last)

	case types.StrategyRevertAndBranch:
		fmt.Fprintf(b, "## Instruction\nRevert to observation #%d and branch from there, trying a different next step than what followed it originally.\n\n", strategy.TargetObservation)

	case types.StrategyFreshStart:
		b.WriteString("## Instruction\n")
		b.WriteString("Start over from a blank slate.\n\n")
		if strategy.CarryForward != nil {
			cf := strategy.CarryForward
			if cf.EffectiveSpecification != "" {
				fmt.Fprintf(b, "Carried-forward specification refinements:\n%s\n\n", cf.EffectiveSpecification)
			}
			if cf.FailureSummary != "" {
				fmt.Fprintf(b, "Why the previous line of attempts failed:\n%s\n\n", cf.FailureSummary)
			}
		}

	default:
		writeSignalFeedback(b, last)
	}
}

func writeSignalFeedback(b *strings.Builder, last *types.Observation) {
	if last == nil {
		return
	}
	signals := last.Signals
	b.WriteString("## Feedback from the previous attempt\n")
	if tr := signals.TestResults; tr != nil {
		fmt.Fprintf(b, "- tests: %d/%d passing", tr.Passed, tr.Total)
		if len(tr.Regressions) > 0 {
			fmt.Fprintf(b, " (regressions: %s)", strings.Join(tr.Regressions, ", "))
		}
		b.WriteString("\n")
	}
	if tc := signals.TypeCheck; tc != nil && !tc.Passed {
		fmt.Fprintf(b, "- type check failed: %s\n", strings.Join(tc.Errors, "; "))
	}
	if lr := signals.LintResults; lr != nil && !lr.Passed {
		fmt.Fprintf(b, "- lint failed: %s\n", strings.Join(lr.Errors, "; "))
	}
	if br := signals.BuildResult; br != nil && !br.Passed {
		fmt.Fprintf(b, "- build failed: %s\n", strings.Join(br.Errors, "; "))
	}
	if last.Verification != nil && !last.Verification.Satisfied {
		b.WriteString("- intent verifier found gaps:\n")
		for _, gap := range last.Verification.Gaps {
			fmt.Fprintf(b, "  - [%s] %s\n", gap.Severity, gap.Description)
		}
	}
	b.WriteString("\n## Previous artifact\n")
	b.WriteString("```\n")
	b.WriteString(last.ArtifactRef)
	b.WriteString("\n```\n\n")
}
