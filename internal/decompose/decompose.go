// Package decompose implements the Decomposition Coordinator (spec §4.8):
// a proactive check comparing estimated monolithic iterations against
// decomposed-plus-overhead iterations, and — once decomposition is
// chosen — fanning a parent trajectory out into child trajectories plus a
// mandatory integration trajectory. Grounded on internal/ai/decomposition.go's
// narrow-interface pattern (DecomposeIssue takes an IssueStore scoped to
// exactly the four operations it needs); here SubtaskPlanner and
// TrajectoryRunner are scoped the same way, to exactly what the
// coordinator needs from an external planner and from the engine.
package decompose

import (
	"context"

	"github.com/abathur-ai/abathur/internal/types"
)

// SubtaskPlanner proposes a decomposition of a task into subtasks. Spec
// §4.8 calls this "propose subtasks (via external planning step)"; the
// step's transport is unspecified, matching §6's treatment of every other
// external collaborator.
type SubtaskPlanner interface {
	ProposeSubtasks(ctx context.Context, task types.TaskSubmission) ([]types.TaskSubmission, error)
}

// TrajectoryRunner runs one task through the full engine loop to
// completion (SETUP through RESOLVE) and returns the resulting
// trajectory. The Decomposition Coordinator depends on this narrow
// interface rather than importing internal/engine directly, since
// internal/engine is the one that hands off to the coordinator when it
// selects the Decompose strategy — importing it back would cycle.
type TrajectoryRunner interface {
	Run(ctx context.Context, task types.TaskSubmission, budget types.ConvergenceBudget) (*types.Trajectory, error)
}

// Coordinator runs the proactive decomposition check and, when
// decomposition is chosen, the decompose-and-coordinate sequence.
type Coordinator struct {
	Planner SubtaskPlanner
	Runner  TrajectoryRunner
}

// childBudgetShare and integrationBudgetShare split the parent budget
// 75/25 across children and the mandatory integration trajectory (§4.8).
const (
	childBudgetShare       = 0.75
	integrationBudgetShare = 0.25
)
