package substrate

import (
	"context"
	"fmt"
	"strings"

	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/hexops/gotextdiff/span"

	"github.com/abathur-ai/abathur/internal/ai"
	"github.com/abathur-ai/abathur/internal/engine"
	"github.com/abathur-ai/abathur/internal/types"
)

// ChainedVerifier is the default engine.IntentVerifier: it asks the
// substrate model directly whether the artifact satisfies the task's
// intent, and falls back to a diff-based heuristic against the task's
// context files when the AI call itself fails or its reply does not parse
// (not when the AI merely judges the intent unmet — that verdict is
// trusted). Grounded on
// internal/iterative/detector.go's ChainedDetector, which falls an
// AI-driven convergence check back to its DiffBasedDetector the same way.
type ChainedVerifier struct {
	client *client

	// MaxDiffPercent is the fallback's change-size threshold: below this
	// percentage of changed lines relative to the task's context files, the
	// fallback considers intent unchanged rather than regressed.
	MaxDiffPercent float64
}

var _ engine.IntentVerifier = (*ChainedVerifier)(nil)

// NewChainedVerifier constructs the default intent verifier sharing cfg's
// retry/circuit-breaker/rate-limit tuning with the substrate executor.
func NewChainedVerifier(cfg Config) (*ChainedVerifier, error) {
	c, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	return &ChainedVerifier{client: c, MaxDiffPercent: 5.0}, nil
}

type verificationResponse struct {
	Satisfied bool                 `json:"satisfied"`
	Gaps      []verificationGap    `json:"gaps"`
}

type verificationGap struct {
	Description string `json:"description"`
	Severity    string `json:"severity"`
}

// Verify implements engine.IntentVerifier.
func (v *ChainedVerifier) Verify(ctx context.Context, task types.TaskSubmission, artifact engine.Artifact, signals types.OverseerSignals) (types.VerificationResult, error) {
	prompt := buildVerificationPrompt(task, artifact, signals)

	text, _, _, err := v.client.call(ctx, "intent-verify", prompt, 2048)
	if err == nil {
		parsed := ai.Parse[verificationResponse](text, ai.ParseOptions{Context: "intent verification response"})
		if parsed.Success {
			return toVerificationResult(parsed.Data), nil
		}
		// AI responded but the response didn't parse; fall through to the
		// diff-based fallback rather than erroring the whole iteration out.
	}

	return v.diffFallback(task, artifact), nil
}

func toVerificationResult(r verificationResponse) types.VerificationResult {
	gaps := make([]types.IntentGap, 0, len(r.Gaps))
	for _, g := range r.Gaps {
		gaps = append(gaps, types.IntentGap{Description: g.Description, Severity: g.Severity})
	}
	return types.VerificationResult{Satisfied: r.Satisfied, Gaps: gaps}
}

// diffFallback mirrors internal/iterative/detector.go's DiffBasedDetector:
// when the model could not be reached or its reply did not parse, treat a small edit relative
// to the task's own context files as "nothing new to verify" rather than
// blocking the trajectory on a network failure.
func (v *ChainedVerifier) diffFallback(task types.TaskSubmission, artifact engine.Artifact) types.VerificationResult {
	baseline := strings.Join(task.ContextFiles, "\n")
	if baseline == "" {
		return types.VerificationResult{
			Satisfied: false,
			Gaps: []types.IntentGap{{
				Description: "intent verifier unreachable and no prior context to compare against",
				Severity:    "low",
			}},
		}
	}

	percent := diffPercent(baseline, artifact.Content)
	if percent <= v.MaxDiffPercent {
		return types.VerificationResult{Satisfied: true}
	}
	return types.VerificationResult{
		Satisfied: false,
		Gaps: []types.IntentGap{{
			Description: fmt.Sprintf("intent verifier unreachable; fallback diff check saw %.1f%% change against context, above the %.1f%% threshold", percent, v.MaxDiffPercent),
			Severity:    "low",
		}},
	}
}

func diffPercent(previous, current string) float64 {
	prevLines := strings.Count(previous, "\n") + 1
	if prevLines == 0 {
		prevLines = 1
	}
	edits := myers.ComputeEdits(span.URIFromPath("prev"), previous, current)
	unified := gotextdiff.ToUnified("prev", "current", previous, edits)

	changed := 0
	for _, hunk := range unified.Hunks {
		for _, line := range hunk.Lines {
			if line.Kind == gotextdiff.Delete || line.Kind == gotextdiff.Insert {
				changed++
			}
		}
	}
	return 100 * float64(changed) / float64(prevLines)
}

func buildVerificationPrompt(task types.TaskSubmission, artifact engine.Artifact, signals types.OverseerSignals) string {
	var b strings.Builder
	b.WriteString("Judge whether the artifact below satisfies the task's intent, beyond the structural checks already run.\n\n")
	fmt.Fprintf(&b, "# Task\n\n%s\n\n", task.Description)
	if len(task.Invariants) > 0 {
		b.WriteString("# Invariants\n")
		for _, inv := range task.Invariants {
			fmt.Fprintf(&b, "- %s\n", inv)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "# Structural signals\npassing: %v\n\n", signals.AllPassing())
	fmt.Fprintf(&b, "# Artifact\n```\n%s\n```\n\n", artifact.Content)
	b.WriteString("Respond with JSON: {\"satisfied\": bool, \"gaps\": [{\"description\": string, \"severity\": \"low\"|\"medium\"|\"high\"}]}.\n")
	return b.String()
}
