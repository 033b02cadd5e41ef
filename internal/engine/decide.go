package engine

import (
	"context"
	"fmt"

	"github.com/abathur-ai/abathur/internal/budget"
	"github.com/abathur-ai/abathur/internal/decompose"
	"github.com/abathur-ai/abathur/internal/events"
	"github.com/abathur-ai/abathur/internal/types"
)

// parallelSampleCount resolves the Parallel{n} selection table (§4.9):
// an explicit task override always wins; otherwise a Narrow basin picks
// n by priority hint, and every other basin stays Sequential (n<=1).
func parallelSampleCount(basin types.BasinEstimate, task types.TaskSubmission) int {
	if task.ParallelSamples != nil {
		return *task.ParallelSamples
	}
	if basin.Classification != types.BasinNarrow {
		return 1
	}
	if task.PriorityHint != nil && *task.PriorityHint == types.PriorityThorough {
		return 3
	}
	return 2
}

// decideAndRun runs the DECIDE phase (proactive decomposition check,
// convergence-mode selection) and then ITERATE, mutating traj in place
// until it reaches a terminal phase. Returns ErrCancelled if the
// context is cancelled mid-iteration.
func (e *Engine) decideAndRun(ctx context.Context, traj *types.Trajectory, task types.TaskSubmission, basin types.BasinEstimate) error {
	traj.Phase = types.PhaseIterating
	if e.Bus != nil {
		e.Bus.Publish(events.TrajectoryStarted(traj.ID, traj.TaskID, traj.GoalID))
	}

	if e.Decomposer != nil {
		decomposed, err := e.tryProactiveDecomposition(ctx, traj, task, basin)
		if err != nil {
			return err
		}
		if decomposed {
			return nil
		}
	}

	n := parallelSampleCount(basin, task)
	if n > 1 {
		return e.runParallel(ctx, traj, task, n)
	}
	return e.runSequential(ctx, traj, task)
}

// tryProactiveDecomposition runs §4.8's proactive check before any
// iteration begins. It reports true when the trajectory was handed off
// to the Decomposition Coordinator (auto-applied), in which case
// decideAndRun has nothing further to do.
func (e *Engine) tryProactiveDecomposition(ctx context.Context, traj *types.Trajectory, task types.TaskSubmission, basin types.BasinEstimate) (bool, error) {
	subtasks, err := e.Decomposer.Propose(ctx, task)
	if err != nil {
		return false, fmt.Errorf("propose subtasks: %w", err)
	}
	if len(subtasks) == 0 {
		return false, nil
	}

	monolithicSamples, err := e.historicalSamples(ctx, task)
	if err != nil {
		return false, err
	}
	monolithic := budget.EstimateConvergence(task.Complexity, basin, monolithicSamples)

	subtaskEstimates := make([]types.ConvergenceEstimate, len(subtasks))
	for i, st := range subtasks {
		stBasin, err := e.estimateBasin(ctx, st)
		if err != nil {
			return false, err
		}
		stSamples, err := e.historicalSamples(ctx, st)
		if err != nil {
			return false, err
		}
		subtaskEstimates[i] = budget.EstimateConvergence(st.Complexity, stBasin, stSamples)
	}

	rec := decompose.Evaluate(basin, monolithic, subtaskEstimates, task.PriorityHint)
	if !rec.Recommend {
		return false, nil
	}
	if !rec.AutoApply {
		if e.Bus != nil {
			e.Bus.Publish(events.DecompositionRecommended(traj.ID, len(subtasks), rec.SavingsEstimate))
		}
		return false, nil
	}

	if err := e.coordinateDecomposition(ctx, traj, task, subtasks); err != nil {
		return false, err
	}
	return true, nil
}

// coordinateDecomposition hands traj off to the Decomposition
// Coordinator and folds the resulting outcome back onto traj, so RESOLVE
// can treat a decomposed trajectory identically to an iterated one.
// traj itself never iterates; its one "observation" is the integration
// trajectory's final result, appended through AppendObservation so the
// sequence invariant holds.
func (e *Engine) coordinateDecomposition(ctx context.Context, traj *types.Trajectory, task types.TaskSubmission, subtasks []types.TaskSubmission) error {
	outcome, err := e.Decomposer.Coordinate(ctx, traj, task, subtasks)
	if err != nil {
		return fmt.Errorf("coordinate decomposition: %w", err)
	}

	integration := outcome.IntegrationTrajectory
	if integration != nil {
		if last := integration.LastObservation(); last != nil {
			traj.AppendObservation(*last)
		}
		traj.Attractor = integration.Attractor
		for _, o := range integration.Observations {
			traj.Budget.ConsumedTokens += o.Tokens
			traj.Budget.ConsumedWallTime += o.WallTime
		}
	}
	traj.Budget.ConsumedIterations++

	return nil
}
