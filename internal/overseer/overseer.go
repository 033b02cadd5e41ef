// Package overseer implements the Overseer Cluster (spec §4.2): phased,
// cost-ordered external measurement of an artifact. Grounded on
// internal/gates/gates.go's Runner.RunAll phased-execution and
// progress-heartbeat pattern, generalised from the teacher's fixed
// build→test→lint ordering to a declared cost-class ordering over
// pluggable overseer implementations.
package overseer

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/abathur-ai/abathur/internal/types"
)

// CostClass orders overseer execution phases, cheapest first (§4.2).
type CostClass int

const (
	CostCheap CostClass = iota
	CostModerate
	CostExpensive
)

func (c CostClass) String() string {
	switch c {
	case CostCheap:
		return "cheap"
	case CostModerate:
		return "moderate"
	case CostExpensive:
		return "expensive"
	default:
		return "unknown"
	}
}

// ArtifactRef is an opaque locator for the artifact under measurement; the
// engine never interprets or mutates it (§3).
type ArtifactRef string

// Measurement is the typed contribution one Overseer makes to the
// aggregate OverseerSignals. Only the field(s) relevant to the overseer's
// kind should be populated.
type Measurement struct {
	TestResults  *types.TestResults
	TypeCheck    *types.CheckResult
	LintResults  *types.CheckResult
	BuildResult  *types.CheckResult
	SecurityScan *types.SecurityScanResult
	Custom       *types.CustomCheckResult
}

// Overseer is an external deterministic verifier producing typed signals
// from an artifact (§6 Inputs).
type Overseer interface {
	Name() string
	CostClass() CostClass
	Measure(ctx context.Context, artifact ArtifactRef, task types.TaskSubmission) (Measurement, error)
}

// ProgressCallback reports phase-level progress during RunAll, mirroring
// gates.go's ProgressCallback shape.
type ProgressCallback func(phase CostClass, completed, total int, elapsedSeconds int64)

// Runner executes a set of overseers in cost-ordered phases.
type Runner struct {
	overseers        []Overseer
	progressCallback ProgressCallback
}

// NewRunner constructs a Runner over the given overseers.
func NewRunner(overseers []Overseer, progress ProgressCallback) *Runner {
	return &Runner{overseers: overseers, progressCallback: progress}
}

// RunAll executes Cheap, then Moderate, then Expensive overseers in strict
// order. If the cheap phase produces a blocking failure (build or type-check
// error), the moderate and expensive phases are not executed; if the policy
// requests skipping expensive overseers, the expensive phase is not
// executed. Signal fields of phases not executed remain absent (§4.2).
func (r *Runner) RunAll(ctx context.Context, artifact ArtifactRef, task types.TaskSubmission, policy types.ConvergencePolicy) (*types.OverseerSignals, []error) {
	signals := &types.OverseerSignals{}
	var errs []error

	phases := []CostClass{CostCheap, CostModerate, CostExpensive}
	start := time.Now()
	var completed atomic.Int32

	for _, phase := range phases {
		if ctx.Err() != nil {
			errs = append(errs, fmt.Errorf("overseer run canceled: %w", ctx.Err()))
			return signals, errs
		}

		group := r.overseersInPhase(phase)
		for _, o := range group {
			m, err := o.Measure(ctx, artifact, task)
			completed.Add(1)
			if r.progressCallback != nil {
				r.progressCallback(phase, int(completed.Load()), len(r.overseers), int64(time.Since(start).Seconds()))
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("overseer %s: %w", o.Name(), err))
				continue
			}
			mergeInto(signals, m)
		}

		if phase == CostCheap {
			if blockingFailure(signals) {
				break
			}
		}
		if phase == CostModerate && policy.SkipExpensiveOverseers {
			break
		}
	}

	return signals, errs
}

func (r *Runner) overseersInPhase(phase CostClass) []Overseer {
	var group []Overseer
	for _, o := range r.overseers {
		if o.CostClass() == phase {
			group = append(group, o)
		}
	}
	return group
}

// blockingFailure reports whether the aggregate so far contains a build or
// type-check failure, which halts further (more expensive) measurement.
func blockingFailure(signals *types.OverseerSignals) bool {
	if signals.BuildResult != nil && !signals.BuildResult.Passed {
		return true
	}
	if signals.TypeCheck != nil && !signals.TypeCheck.Passed {
		return true
	}
	return false
}

func mergeInto(dst *types.OverseerSignals, m Measurement) {
	if m.TestResults != nil {
		dst.TestResults = m.TestResults
	}
	if m.TypeCheck != nil {
		dst.TypeCheck = m.TypeCheck
	}
	if m.LintResults != nil {
		dst.LintResults = m.LintResults
	}
	if m.BuildResult != nil {
		dst.BuildResult = m.BuildResult
	}
	if m.SecurityScan != nil {
		dst.SecurityScan = m.SecurityScan
	}
	if m.Custom != nil {
		dst.CustomChecks = append(dst.CustomChecks, *m.Custom)
	}
}
