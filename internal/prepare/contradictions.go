package prepare

import (
	"fmt"
	"strings"
)

// negationPair is a (assertive, negated) modal pair. A pair of acceptance
// tests is flagged as contradictory when one matches the assertive form,
// the other matches the negated form, and they otherwise talk about
// overlapping subject matter.
type negationPair struct {
	assertive string
	negated   string
}

var negationPairs = []negationPair{
	{assertive: "must", negated: "must not"},
	{assertive: "should", negated: "should not"},
	{assertive: "always", negated: "never"},
	{assertive: "can", negated: "cannot"},
	{assertive: "is", negated: "is not"},
}

// overlapThreshold is the minimum Jaccard word overlap between two
// remainders (the test text with its modal marker stripped) for two
// oppositely-polarized acceptance tests to count as talking about the
// same subject rather than unrelated claims that happen to both use
// "must"/"must not".
const overlapThreshold = 0.5

type polarizedClaim struct {
	text      string
	marker    negationPair
	positive  bool
	remainder map[string]bool
}

// DetectContradictions scans acceptance tests for pairs that assert and
// deny the same thing (§4.7 "detect test contradictions"). It returns the
// human-readable contradiction descriptions and a matching set of
// clarifying questions a human could answer to resolve them.
func DetectContradictions(acceptanceTests []string) (contradictions, clarifications []string) {
	var claims []polarizedClaim
	for _, test := range acceptanceTests {
		lower := strings.ToLower(test)
		for _, pair := range negationPairs {
			if strings.Contains(lower, pair.negated) {
				claims = append(claims, polarizedClaim{
					text:      test,
					marker:    pair,
					positive:  false,
					remainder: wordSet(strings.ReplaceAll(lower, pair.negated, "")),
				})
				continue
			}
			if strings.Contains(lower, pair.assertive) {
				claims = append(claims, polarizedClaim{
					text:      test,
					marker:    pair,
					positive:  true,
					remainder: wordSet(strings.ReplaceAll(lower, pair.assertive, "")),
				})
			}
		}
	}

	seen := make(map[string]bool)
	for i := 0; i < len(claims); i++ {
		for j := i + 1; j < len(claims); j++ {
			a, b := claims[i], claims[j]
			if a.marker != b.marker || a.positive == b.positive {
				continue
			}
			if jaccard(a.remainder, b.remainder) < overlapThreshold {
				continue
			}
			key := a.text + "|" + b.text
			if seen[key] {
				continue
			}
			seen[key] = true
			contradictions = append(contradictions, fmt.Sprintf(
				"%q and %q make opposing %q/%q claims about overlapping subject matter",
				a.text, b.text, a.marker.assertive, a.marker.negated,
			))
			clarifications = append(clarifications, fmt.Sprintf(
				"which should hold: %q or %q?", a.text, b.text,
			))
		}
	}

	return contradictions, clarifications
}

func wordSet(text string) map[string]bool {
	out := make(map[string]bool)
	for _, word := range strings.Fields(text) {
		word = strings.Trim(word, ".,;:!?\"'")
		if len(word) > 2 {
			out[word] = true
		}
	}
	return out
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for word := range a {
		if b[word] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
