package prepare

import (
	"strings"

	"github.com/abathur-ai/abathur/internal/types"
)

// invariantMarkers are the modal phrases that mark a sentence as stating an
// invariant rather than a feature description.
var invariantMarkers = []string{
	"must not", "must always", "must", "never", "always",
	"should not", "required to", "is not allowed to",
}

// InferInvariants returns the task's explicitly stated invariants plus any
// invariant-shaped sentences discovered in the acceptance tests (§4.7
// "infer invariants"). A sentence counts as invariant-shaped if it
// contains one of the modal markers above; this is a coarse heuristic, not
// a semantic check, and duplicates of explicitly stated invariants are
// dropped.
func InferInvariants(task types.TaskSubmission, acceptanceTests []string) []string {
	seen := make(map[string]bool, len(task.Invariants))
	out := make([]string, 0, len(task.Invariants))
	for _, inv := range task.Invariants {
		trimmed := strings.TrimSpace(inv)
		if trimmed == "" || seen[trimmed] {
			continue
		}
		seen[trimmed] = true
		out = append(out, trimmed)
	}

	for _, sentence := range splitSentences(acceptanceTests) {
		if !looksLikeInvariant(sentence) {
			continue
		}
		if seen[sentence] {
			continue
		}
		seen[sentence] = true
		out = append(out, sentence)
	}

	return out
}

func looksLikeInvariant(sentence string) bool {
	lower := strings.ToLower(sentence)
	for _, marker := range invariantMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// splitSentences breaks acceptance-test strings into trimmed, non-empty
// sentences on '.', '\n', and ';'.
func splitSentences(texts []string) []string {
	var out []string
	for _, text := range texts {
		for _, piece := range strings.FieldsFunc(text, func(r rune) bool {
			return r == '.' || r == '\n' || r == ';'
		}) {
			trimmed := strings.TrimSpace(piece)
			if trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}
