package prepare

import (
	"context"
	"testing"

	"github.com/abathur-ai/abathur/internal/events"
	"github.com/abathur-ai/abathur/internal/types"
)

type stubGenerator struct {
	tests []string
	err   error
}

func (s stubGenerator) GenerateAcceptanceTests(ctx context.Context, task types.TaskSubmission) ([]string, error) {
	return s.tests, s.err
}

func newTraj() *types.Trajectory {
	return types.NewTrajectory("task-1", "goal-1", "build a thing", types.ConvergenceBudget{}, types.DefaultConvergencePolicy())
}

func TestPrepare_MergesReferencesAsAmendments(t *testing.T) {
	traj := newTraj()
	task := types.TaskSubmission{
		Description:  "build a thing",
		Examples:     []string{"example one"},
		AntiExamples: []string{"anti example one"},
		ContextFiles: []string{"README.md"},
	}

	p := &Preparer{}
	if _, err := p.Prepare(context.Background(), traj, task); err != nil {
		t.Fatalf("prepare failed: %v", err)
	}

	if len(traj.Specification.Amendments) != 3 {
		t.Fatalf("expected 3 amendments (examples, anti-examples, context files), got %d", len(traj.Specification.Amendments))
	}
}

func TestPrepare_GeneratesAcceptanceTestsWhenPolicyRequiresAndNoneSupplied(t *testing.T) {
	traj := newTraj()
	traj.Policy.GenerateAcceptanceTests = true
	task := types.TaskSubmission{Description: "build a thing"}

	p := &Preparer{Generator: stubGenerator{tests: []string{"returns 200 on success"}}}
	result, err := p.Prepare(context.Background(), traj, task)
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	if len(result.AcceptanceTests) != 1 {
		t.Fatalf("expected generated acceptance test to be returned, got %v", result.AcceptanceTests)
	}

	found := false
	for _, a := range traj.Specification.Amendments {
		if a.Source == types.AmendmentImplicitRequirement {
			found = true
		}
	}
	if !found {
		t.Fatal("expected an AmendmentImplicitRequirement recording the generated tests")
	}
}

func TestPrepare_SkipsGenerationWhenAcceptanceTestsAlreadySupplied(t *testing.T) {
	traj := newTraj()
	traj.Policy.GenerateAcceptanceTests = true
	task := types.TaskSubmission{AcceptanceTests: []string{"already have one"}}

	p := &Preparer{Generator: stubGenerator{tests: []string{"should not appear"}}}
	result, err := p.Prepare(context.Background(), traj, task)
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	if len(result.AcceptanceTests) != 1 || result.AcceptanceTests[0] != "already have one" {
		t.Fatalf("expected caller-supplied acceptance test to win, got %v", result.AcceptanceTests)
	}
}

func TestPrepare_PublishesAmbiguityEventOnContradiction(t *testing.T) {
	traj := newTraj()
	task := types.TaskSubmission{
		AcceptanceTests: []string{
			"the response must include a retry header",
			"the response must not include a retry header",
		},
	}

	bus := events.NewInMemoryBus()
	p := &Preparer{Bus: bus}
	result, err := p.Prepare(context.Background(), traj, task)
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	if !result.Ambiguous() {
		t.Fatal("expected contradictory acceptance tests to be flagged as ambiguous")
	}

	published := bus.Events()
	if len(published) != 1 || published[0].Event.Type != events.TypeSpecificationAmbiguityDetected {
		t.Fatalf("expected a SpecificationAmbiguityDetected event, got %+v", published)
	}
}

func TestInferInvariants_CombinesExplicitAndDiscovered(t *testing.T) {
	task := types.TaskSubmission{Invariants: []string{"output is valid JSON"}}
	acceptanceTests := []string{"the worker must never drop a message"}

	invariants := InferInvariants(task, acceptanceTests)
	if len(invariants) != 2 {
		t.Fatalf("expected 2 invariants (1 explicit + 1 discovered), got %v", invariants)
	}
}

func TestInferInvariants_DeduplicatesExplicitInvariant(t *testing.T) {
	task := types.TaskSubmission{Invariants: []string{"the worker must never drop a message"}}
	acceptanceTests := []string{"the worker must never drop a message."}

	invariants := InferInvariants(task, acceptanceTests)
	if len(invariants) != 1 {
		t.Fatalf("expected duplicate invariant to collapse to 1, got %v", invariants)
	}
}

func TestDetectContradictions_FlagsOpposingClaims(t *testing.T) {
	tests := []string{
		"the endpoint must return 200 on success",
		"the endpoint must not return 200 on success",
	}
	contradictions, clarifications := DetectContradictions(tests)
	if len(contradictions) != 1 || len(clarifications) != 1 {
		t.Fatalf("expected 1 contradiction and 1 clarification, got %v / %v", contradictions, clarifications)
	}
}

func TestDetectContradictions_IgnoresUnrelatedClaims(t *testing.T) {
	tests := []string{
		"the endpoint must return 200 on success",
		"the worker must not exceed 5 retries",
	}
	contradictions, _ := DetectContradictions(tests)
	if len(contradictions) != 0 {
		t.Fatalf("expected unrelated must/must-not claims to not be flagged, got %v", contradictions)
	}
}
