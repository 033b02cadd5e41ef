package engine

import (
	"context"

	"github.com/abathur-ai/abathur/internal/types"
)

// runSequential drives a single trajectory through step() until it
// reaches a terminal phase (§4.9: "Sequential (default) iterates on a
// single trajectory").
func (e *Engine) runSequential(ctx context.Context, traj *types.Trajectory, task types.TaskSubmission) error {
	var prev *previousArtifact
	for {
		result, next, err := e.step(ctx, traj, task, prev)
		if err != nil {
			return err
		}
		prev = next
		if result.terminal {
			return nil
		}
	}
}
