package metrics

import (
	"strings"

	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/hexops/gotextdiff/span"
)

// diffNodeCount computes a structural change-size proxy using the Myers
// diff algorithm, counting the max of deletions vs insertions per hunk.
// Grounded on internal/iterative/detector.go's countDiffLinesWithOptions.
func diffNodeCount(previous, current string) int {
	prevNorm := normalizeNewlines(previous)
	currNorm := normalizeNewlines(current)

	edits := myers.ComputeEdits(span.URIFromPath("prev"), prevNorm, currNorm)
	unified := gotextdiff.ToUnified("prev", "current", prevNorm, edits)

	count := 0
	for _, hunk := range unified.Hunks {
		deletions, insertions := 0, 0
		for _, line := range hunk.Lines {
			switch line.Kind {
			case gotextdiff.Delete:
				deletions++
			case gotextdiff.Insert:
				insertions++
			}
		}
		if deletions > insertions {
			count += deletions
		} else {
			count += insertions
		}
	}
	return count
}

func normalizeNewlines(s string) string {
	if s == "" {
		return s
	}
	s = strings.TrimRight(s, "\n")
	return s + "\n"
}
