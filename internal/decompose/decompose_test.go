package decompose

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/abathur-ai/abathur/internal/types"
)

func TestEvaluate_RecommendsWhenDecomposedBeatsDiscount(t *testing.T) {
	basin := types.BasinEstimate{Classification: types.BasinModerate, Score: 0.5}
	monolithic := types.ConvergenceEstimate{ExpectedIterations: 20}
	subtasks := []types.ConvergenceEstimate{
		{ExpectedIterations: 5},
		{ExpectedIterations: 5},
	}
	priority := types.PriorityThorough

	rec := Evaluate(basin, monolithic, subtasks, &priority)
	if !rec.Recommend {
		t.Fatalf("expected decomposition to be recommended, got %+v", rec)
	}
	if rec.AutoApply {
		t.Fatal("moderate basin should not auto-apply")
	}
}

func TestEvaluate_AutoAppliesOnNarrowBasinWithPriorityHint(t *testing.T) {
	basin := types.BasinEstimate{Classification: types.BasinNarrow, Score: 0.2}
	monolithic := types.ConvergenceEstimate{ExpectedIterations: 30}
	subtasks := []types.ConvergenceEstimate{{ExpectedIterations: 5}, {ExpectedIterations: 5}}
	priority := types.PriorityFast

	rec := Evaluate(basin, monolithic, subtasks, &priority)
	if !rec.AutoApply {
		t.Fatalf("expected auto-apply for narrow basin + priority hint, got %+v", rec)
	}
}

func TestEvaluate_SkipsWideBasin(t *testing.T) {
	basin := types.BasinEstimate{Classification: types.BasinWide, Score: 0.9}
	monolithic := types.ConvergenceEstimate{ExpectedIterations: 10}
	subtasks := []types.ConvergenceEstimate{{ExpectedIterations: 1}}

	rec := Evaluate(basin, monolithic, subtasks, nil)
	if rec.Recommend {
		t.Fatal("a wide basin should never be recommended for decomposition")
	}
}

func TestEvaluate_DoesNotRecommendWithoutDiscount(t *testing.T) {
	basin := types.BasinEstimate{Classification: types.BasinModerate, Score: 0.5}
	monolithic := types.ConvergenceEstimate{ExpectedIterations: 10}
	subtasks := []types.ConvergenceEstimate{{ExpectedIterations: 4}, {ExpectedIterations: 4}}

	rec := Evaluate(basin, monolithic, subtasks, nil)
	if rec.Recommend {
		t.Fatalf("decomposed total (9) is not under 80%% of monolithic (8), should not recommend: %+v", rec)
	}
}

type stubPlanner struct {
	subtasks []types.TaskSubmission
	err      error
}

func (s stubPlanner) ProposeSubtasks(ctx context.Context, task types.TaskSubmission) ([]types.TaskSubmission, error) {
	return s.subtasks, s.err
}

type stubRunner struct {
	converge bool
}

func (s stubRunner) Run(ctx context.Context, task types.TaskSubmission, budget types.ConvergenceBudget) (*types.Trajectory, error) {
	traj := types.NewTrajectory("task", "goal", task.Description, budget, types.DefaultConvergencePolicy())
	if s.converge {
		traj.Phase = types.PhaseConverged
	} else {
		traj.Phase = types.PhaseExhausted
	}
	traj.AppendObservation(types.Observation{
		ArtifactRef: fmt.Sprintf("artifact-%s", task.Description),
		Metrics:     &types.ObservationMetrics{ConvergenceDelta: 0.4},
	})
	return traj, nil
}

func TestCoordinate_AllChildrenConverge_ParentTakesIntegrationPhase(t *testing.T) {
	parent := types.NewTrajectory("task-1", "goal-1", "build the thing", types.ConvergenceBudget{MaxTokens: 1000, MaxIterations: 20, MaxWallTime: time.Hour}, types.DefaultConvergencePolicy())
	coordinator := &Coordinator{
		Planner: stubPlanner{subtasks: []types.TaskSubmission{{Description: "part-a"}, {Description: "part-b"}}},
		Runner:  stubRunner{converge: true},
	}

	subtasks := []types.TaskSubmission{{Description: "part-a"}, {Description: "part-b"}}
	outcome, err := coordinator.Coordinate(context.Background(), parent, types.TaskSubmission{Description: "build the thing"}, subtasks)
	if err != nil {
		t.Fatalf("coordinate failed: %v", err)
	}
	if len(outcome.ChildIDs) != 2 {
		t.Fatalf("expected 2 child IDs, got %d", len(outcome.ChildIDs))
	}
	if !outcome.AllChildrenConverged {
		t.Fatal("expected all children to have converged")
	}
	if parent.Phase != types.PhaseConverged {
		t.Fatalf("expected parent phase to mirror integration trajectory's Converged phase, got %v", parent.Phase)
	}
}

func TestCoordinate_ChildFailure_ParentDeltaIsWorstChildHalved(t *testing.T) {
	parent := types.NewTrajectory("task-1", "goal-1", "build the thing", types.ConvergenceBudget{MaxTokens: 1000, MaxIterations: 20, MaxWallTime: time.Hour}, types.DefaultConvergencePolicy())
	coordinator := &Coordinator{
		Planner: stubPlanner{subtasks: []types.TaskSubmission{{Description: "part-a"}}},
		Runner:  stubRunner{converge: false},
	}

	subtasks := []types.TaskSubmission{{Description: "part-a"}}
	outcome, err := coordinator.Coordinate(context.Background(), parent, types.TaskSubmission{Description: "build the thing"}, subtasks)
	if err != nil {
		t.Fatalf("coordinate failed: %v", err)
	}
	if outcome.AllChildrenConverged {
		t.Fatal("expected non-convergence to be reported")
	}
	if outcome.FinalDelta != 0.2 {
		t.Fatalf("expected final delta to be worst child's delta (0.4) halved, got %v", outcome.FinalDelta)
	}
	if parent.Phase != types.PhaseExhausted {
		t.Fatalf("expected parent phase Exhausted, got %v", parent.Phase)
	}
}

func TestCoordinate_EmptyPlanErrors(t *testing.T) {
	parent := types.NewTrajectory("task-1", "goal-1", "build the thing", types.ConvergenceBudget{}, types.DefaultConvergencePolicy())
	coordinator := &Coordinator{
		Planner: stubPlanner{subtasks: nil},
		Runner:  stubRunner{converge: true},
	}
	if _, err := coordinator.Coordinate(context.Background(), parent, types.TaskSubmission{}, nil); err == nil {
		t.Fatal("expected an error when given no subtasks")
	}
}

func TestPropose_DelegatesToPlanner(t *testing.T) {
	expected := []types.TaskSubmission{{Description: "part-a"}}
	coordinator := &Coordinator{Planner: stubPlanner{subtasks: expected}}

	subtasks, err := coordinator.Propose(context.Background(), types.TaskSubmission{Description: "build the thing"})
	if err != nil {
		t.Fatalf("propose failed: %v", err)
	}
	if len(subtasks) != 1 || subtasks[0].Description != "part-a" {
		t.Fatalf("expected planner's subtasks to pass through, got %+v", subtasks)
	}
}
