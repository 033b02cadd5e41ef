package engine

import (
	"context"
	"fmt"

	"github.com/abathur-ai/abathur/internal/events"
	"github.com/abathur-ai/abathur/internal/types"
)

// buildOutcome derives the public Outcome a caller of Submit sees from a
// finished trajectory's terminal state. It is a pure function so tests
// can exercise it without an Engine.
func buildOutcome(traj *types.Trajectory) *types.Outcome {
	switch traj.Phase {
	case types.PhaseConverged:
		best := traj.BestObservation()
		totalTokens := 0
		for _, o := range traj.Observations {
			totalTokens += o.Tokens
		}
		ref := ""
		if best != nil {
			ref = best.ArtifactRef
		}
		return &types.Outcome{
			Kind:        types.OutcomeConverged,
			ArtifactRef: ref,
			Iterations:  len(traj.Observations),
			TotalTokens: totalTokens,
		}
	case types.PhaseTrapped:
		attractorType := traj.Attractor.Type
		return &types.Outcome{
			Kind:            types.OutcomeTrapped,
			BestArtifactRef: bestArtifactRef(traj),
			Attractor:       &attractorType,
			Cycle:           traj.Attractor.RecentSignatures,
		}
	default: // PhaseExhausted, or any other non-terminal phase caught here defensively.
		attractorType := traj.Attractor.Type
		return &types.Outcome{
			Kind:            types.OutcomeExhausted,
			BestArtifactRef: bestArtifactRef(traj),
			Attractor:       &attractorType,
		}
	}
}

func bestArtifactRef(traj *types.Trajectory) string {
	if best := traj.BestObservation(); best != nil {
		return best.ArtifactRef
	}
	return ""
}

// resolve implements the RESOLVE phase (§4.7): publish the terminal
// lifecycle event, escalate to a human for Exhausted/Trapped outcomes,
// persist the bandit's updated posteriors, and persist the trajectory.
func (e *Engine) resolve(ctx context.Context, traj *types.Trajectory, task types.TaskSubmission) error {
	last := traj.LastObservation()
	totalTokens := 0
	for _, o := range traj.Observations {
		totalTokens += o.Tokens
	}

	switch traj.Phase {
	case types.PhaseConverged:
		ref := ""
		if last != nil {
			ref = last.ArtifactRef
		}
		if e.Bus != nil {
			e.Bus.Publish(events.TrajectoryConverged(traj.ID, ref, len(traj.Observations), totalTokens))
		}
	case types.PhaseExhausted:
		if e.Bus != nil {
			e.Bus.Publish(events.TrajectoryExhausted(traj.ID, bestArtifactRef(traj), string(traj.Attractor.Type.Kind)))
			e.Bus.Publish(events.HumanEscalationRequired(traj.ID, "budget exhausted before convergence", "review best observation and decide whether to extend or accept"))
		}
	case types.PhaseTrapped:
		if e.Bus != nil {
			e.Bus.Publish(events.TrajectoryTrapped(traj.ID, traj.Attractor.RecentSignatures, bestArtifactRef(traj)))
			e.Bus.Publish(events.HumanEscalationRequired(traj.ID, "no eligible strategy remains for the current attractor", "review the cycle and supply a forced strategy or amend the specification"))
		}
	}

	if e.Bandit != nil && e.Store != nil {
		if err := e.Store.SaveBanditPriors(ctx, e.Bandit.Snapshot()); err != nil {
			return fmt.Errorf("save bandit priors: %w", err)
		}
	}

	if e.Store != nil {
		if err := e.Store.Save(ctx, traj, task); err != nil {
			return fmt.Errorf("save trajectory: %w", err)
		}
	}

	return nil
}
