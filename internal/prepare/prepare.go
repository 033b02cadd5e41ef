// Package prepare implements the PREPARE phase of the engine loop (spec
// §4.7): snapshot the specification, merge in whatever references the
// caller supplied, optionally generate acceptance tests, infer invariants,
// and detect contradictions across the resulting acceptance criteria. New
// code; grounded structurally on internal/iterative/converge.go's
// pre-loop validation section — PREPARE plays the same role (get the
// inputs into a consistent, checked shape before the iteration loop
// starts) even though the checks themselves are domain-specific.
package prepare

import (
	"context"
	"fmt"
	"strings"

	"github.com/abathur-ai/abathur/internal/events"
	"github.com/abathur-ai/abathur/internal/types"
)

// AcceptanceTestGenerator is the external collaborator that proposes
// acceptance tests for a task when the caller didn't supply any and the
// policy calls for it (§4.6 AdjustPolicy forces this for a Narrow basin).
// Transport is unspecified by design (§6): implementations typically wrap
// a Substrate call.
type AcceptanceTestGenerator interface {
	GenerateAcceptanceTests(ctx context.Context, task types.TaskSubmission) ([]string, error)
}

// Result is what PREPARE hands to DECIDE: the (possibly augmented)
// acceptance tests and invariants, plus whatever ambiguity it found.
type Result struct {
	AcceptanceTests []string
	Invariants      []string
	Contradictions  []string
	Clarifications  []string
}

// Ambiguous reports whether contradiction detection found anything.
func (r Result) Ambiguous() bool {
	return len(r.Contradictions) > 0
}

// Preparer runs the PREPARE phase. Generator may be nil, in which case
// acceptance-test generation is skipped regardless of policy.
type Preparer struct {
	Generator AcceptanceTestGenerator
	Bus       events.Bus
}

// Prepare snapshots and merges the task's specification material onto the
// trajectory, generates acceptance tests if the policy requires it,
// infers invariants, and detects contradictions among the accumulated
// acceptance tests. It mutates traj.Specification in place via Amend and
// returns the resolved criteria for DECIDE/ITERATE to act on.
func (p *Preparer) Prepare(ctx context.Context, traj *types.Trajectory, task types.TaskSubmission) (Result, error) {
	p.mergeReferences(traj, task)

	acceptanceTests := append([]string(nil), task.AcceptanceTests...)
	if len(acceptanceTests) == 0 && traj.Policy.GenerateAcceptanceTests && p.Generator != nil {
		generated, err := p.Generator.GenerateAcceptanceTests(ctx, task)
		if err != nil {
			return Result{}, fmt.Errorf("generate acceptance tests: %w", err)
		}
		if len(generated) > 0 {
			acceptanceTests = generated
			traj.Specification.Amend(types.SpecificationAmendment{
				Source:      types.AmendmentImplicitRequirement,
				Description: fmt.Sprintf("generated %d acceptance test(s) in the absence of caller-supplied ones", len(generated)),
			})
		}
	}

	invariants := InferInvariants(task, acceptanceTests)

	contradictions, clarifications := DetectContradictions(acceptanceTests)
	result := Result{
		AcceptanceTests: acceptanceTests,
		Invariants:      invariants,
		Contradictions:  contradictions,
		Clarifications:  clarifications,
	}

	if result.Ambiguous() && p.Bus != nil {
		p.Bus.Publish(events.SpecificationAmbiguityDetected(traj.ID, contradictions, clarifications))
	}

	return result, nil
}

// mergeReferences folds examples, anti-examples, and context files into
// the specification's amendment trail (§4.7 "merge user references").
// Each reference kind that's present gets exactly one amendment; an empty
// submission produces none.
func (p *Preparer) mergeReferences(traj *types.Trajectory, task types.TaskSubmission) {
	if len(task.Examples) > 0 {
		traj.Specification.Amend(types.SpecificationAmendment{
			Source:      types.AmendmentUserHint,
			Description: "examples:\n" + strings.Join(task.Examples, "\n"),
		})
	}
	if len(task.AntiExamples) > 0 {
		traj.Specification.Amend(types.SpecificationAmendment{
			Source:      types.AmendmentUserHint,
			Description: "anti-examples:\n" + strings.Join(task.AntiExamples, "\n"),
		})
	}
	if len(task.ContextFiles) > 0 {
		traj.Specification.Amend(types.SpecificationAmendment{
			Source:      types.AmendmentUserHint,
			Description: "context files: " + strings.Join(task.ContextFiles, ", "),
		})
	}
}
