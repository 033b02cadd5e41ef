package decompose

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/abathur-ai/abathur/internal/types"
)

// Outcome is what Coordinate hands back to the engine once every child and
// the integration trajectory have settled.
type Outcome struct {
	ChildIDs           []string
	IntegrationTrajectory *types.Trajectory
	FinalDelta         float64
	AllChildrenConverged bool
}

// Propose asks the configured SubtaskPlanner for a decomposition of task.
// Split out from Coordinate so the engine's DECIDE phase can reuse the
// same proposal both to evaluate the proactive check (§4.8) and, if
// decomposition is chosen, to drive Coordinate — one planning call instead
// of two.
func (c *Coordinator) Propose(ctx context.Context, task types.TaskSubmission) ([]types.TaskSubmission, error) {
	return c.Planner.ProposeSubtasks(ctx, task)
}

// Coordinate runs the decompose-and-coordinate sequence (§4.8): split the
// parent budget 75/25 across the given subtasks and a mandatory
// integration trajectory, run the children concurrently, then run
// integration. Integration failure propagates as parent failure. Parent
// convergence is the integration trajectory's final delta; if any child
// didn't converge, parent delta is the worst child's delta halved.
func (c *Coordinator) Coordinate(ctx context.Context, parent *types.Trajectory, task types.TaskSubmission, subtasks []types.TaskSubmission) (*Outcome, error) {
	if len(subtasks) == 0 {
		return nil, fmt.Errorf("decomposition requires at least one subtask")
	}

	parent.Phase = types.PhaseCoordinating
	childBudget := splitBudget(parent.Budget, childBudgetShare, len(subtasks))
	integrationBudget := splitBudget(parent.Budget, integrationBudgetShare, 1)

	children := make([]*types.Trajectory, len(subtasks))
	var mu sync.Mutex
	group, gctx := errgroup.WithContext(ctx)
	for i, subtask := range subtasks {
		i, subtask := i, subtask
		group.Go(func() error {
			traj, runErr := c.Runner.Run(gctx, subtask, childBudget)
			if runErr != nil {
				return fmt.Errorf("child %d/%d: %w", i+1, len(subtasks), runErr)
			}
			mu.Lock()
			children[i] = traj
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		parent.Phase = types.PhaseExhausted
		return nil, fmt.Errorf("decomposition children failed: %w", err)
	}

	childIDs := make([]string, len(children))
	allConverged := true
	worstDelta := 1.0
	for i, child := range children {
		childIDs[i] = child.ID
		if child.Phase != types.PhaseConverged {
			allConverged = false
		}
		if obs := child.LastObservation(); obs != nil && obs.Metrics != nil {
			if obs.Metrics.ConvergenceDelta < worstDelta {
				worstDelta = obs.Metrics.ConvergenceDelta
			}
		}
	}
	parent.Children = childIDs

	integrationTask := buildIntegrationTask(task, children)
	integration, err := c.Runner.Run(ctx, integrationTask, integrationBudget)
	if err != nil {
		parent.Phase = types.PhaseExhausted
		return nil, fmt.Errorf("integration trajectory failed: %w", err)
	}

	outcome := &Outcome{
		ChildIDs:              childIDs,
		IntegrationTrajectory: integration,
		AllChildrenConverged:  allConverged,
	}

	if allConverged {
		parent.Phase = integration.Phase
		if obs := integration.LastObservation(); obs != nil && obs.Metrics != nil {
			outcome.FinalDelta = obs.Metrics.ConvergenceDelta
		}
	} else {
		parent.Phase = types.PhaseExhausted
		outcome.FinalDelta = worstDelta / 2
	}

	return outcome, nil
}

// splitBudget scales a budget's three dimensions by share and divides
// across count independent shares (e.g. equal division across children).
func splitBudget(total types.ConvergenceBudget, share float64, count int) types.ConvergenceBudget {
	if count <= 0 {
		count = 1
	}
	return types.ConvergenceBudget{
		MaxTokens:     int(float64(total.MaxTokens) * share / float64(count)),
		MaxIterations: int(float64(total.MaxIterations) * share / float64(count)),
		MaxWallTime:   time.Duration(float64(total.MaxWallTime) * share / float64(count)),
	}
}

// buildIntegrationTask composes the mandatory integration trajectory's
// task: the parent's original description plus references to each
// converged child's artifact, so integration-specific overseers can check
// the children compose correctly.
func buildIntegrationTask(parent types.TaskSubmission, children []*types.Trajectory) types.TaskSubmission {
	refs := make([]string, 0, len(children))
	for _, child := range children {
		if obs := child.LastObservation(); obs != nil {
			refs = append(refs, obs.ArtifactRef)
		}
	}
	return types.TaskSubmission{
		Description:  "integrate subtask artifacts for: " + parent.Description,
		GoalID:       parent.GoalID,
		Complexity:   parent.Complexity,
		ContextFiles: refs,
		Tags:         append(append([]string{}, parent.Tags...), "integration"),
	}
}
