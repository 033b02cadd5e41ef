package attractor

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"

	"github.com/abathur-ai/abathur/internal/types"
)

// numberPattern canonicalises volatile numeric fragments (line numbers,
// addresses) out of error messages so that repeated failures of the same
// underlying defect fingerprint identically across iterations.
var numberPattern = regexp.MustCompile(`\d+`)

// signature fingerprints one observation's overseer signals as a short,
// order-independent hash of its pass/fail pattern plus canonicalised error
// text (§4.3 step 1). Two observations with the same signature are
// considered the same point in the pass/fail cycle.
func signature(signals types.OverseerSignals) string {
	var parts []string

	parts = append(parts, boolPart("build", signals.BuildResult))
	parts = append(parts, boolPart("type", signals.TypeCheck))
	parts = append(parts, boolPart("lint", signals.LintResults))

	if signals.TestResults != nil {
		parts = append(parts, "test:"+passFailBucket(signals.TestResults.PassFraction()))
		for _, r := range signals.TestResults.Regressions {
			parts = append(parts, "regression:"+canonicalize(r))
		}
	}
	if signals.SecurityScan != nil {
		parts = append(parts, "vuln:"+canonicalize(boolFromCount(signals.SecurityScan.VulnerabilityCount)))
		for _, f := range signals.SecurityScan.Findings {
			parts = append(parts, "finding:"+canonicalize(f))
		}
	}
	for _, c := range signals.CustomChecks {
		parts = append(parts, "custom:"+c.Name+":"+boolString(c.Passed))
	}

	sort.Strings(parts)
	joined := strings.Join(parts, "|")
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:8])
}

func boolPart(name string, r *types.CheckResult) string {
	if r == nil {
		return name + ":absent"
	}
	s := name + ":" + boolString(r.Passed)
	for _, e := range r.Errors {
		s += "|" + name + "_err:" + canonicalize(e)
	}
	return s
}

func boolString(b bool) string {
	if b {
		return "pass"
	}
	return "fail"
}

func boolFromCount(n int) string {
	if n == 0 {
		return "clean"
	}
	return "present"
}

// passFailBucket coarsens a pass fraction into deciles so near-identical
// test runs fingerprint the same while genuinely different runs don't.
func passFailBucket(frac float64) string {
	bucket := int(frac * 10)
	if bucket > 10 {
		bucket = 10
	}
	return strings.Repeat("x", bucket)
}

// canonicalize strips volatile numerics and whitespace so that the same
// underlying error fingerprints identically across runs.
func canonicalize(s string) string {
	s = numberPattern.ReplaceAllString(s, "#")
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 120 {
		s = s[:120]
	}
	return s
}

// similarity returns the fraction of equal-index matches between two
// equal-length signature slices, the fuzzy sequence match used for cycle
// detection (§4.3 step 1).
func similarity(a, b []string) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	matches := 0
	for i := range a {
		if a[i] == b[i] {
			matches++
		}
	}
	return float64(matches) / float64(len(a))
}
