// Package engine implements the Engine Loop (spec §4.7): the
// SETUP→PREPARE→DECIDE→ITERATE→RESOLVE phase sequence that drives one
// trajectory from a Task Submission to a terminal Outcome, plus the
// Sequential and Parallel{n} convergence modes (§4.9). Grounded
// structurally on internal/iterative/converge.go's Converge() shape
// (validate inputs, loop under a context/timeout, compute metrics each
// pass, check termination, return a result) generalised from that
// package's single detector-driven loop into the five-phase engine with
// pluggable strategy selection, decomposition handoff, and multiple
// convergence modes.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/abathur-ai/abathur/internal/attractor"
	"github.com/abathur-ai/abathur/internal/bandit"
	"github.com/abathur-ai/abathur/internal/budget"
	"github.com/abathur-ai/abathur/internal/decompose"
	"github.com/abathur-ai/abathur/internal/events"
	"github.com/abathur-ai/abathur/internal/overseer"
	"github.com/abathur-ai/abathur/internal/prepare"
	"github.com/abathur-ai/abathur/internal/types"
)

// ErrCancelled is returned by Submit/Run when the caller's context is
// cancelled mid-iteration. The trajectory is persisted as-is with no
// terminal event and no bandit mutation (§5: "frozen and resumable").
var ErrCancelled = fmt.Errorf("trajectory iteration cancelled")

// Artifact is what one strategy execution produces. Unlike
// overseer.ArtifactRef — an opaque locator the overseer cluster treats as
// a black box — the engine needs the artifact's actual content (for
// metrics.StructuralDiffNodes) and token accounting (for
// health.ComputeInput), so Execute returns this richer value instead of
// a bare ref; only Ref crosses into the persisted Observation.
type Artifact struct {
	Ref                 string
	Content             string
	Tokens              int
	WallTime            time.Duration
	UsefulContextTokens int
	TotalContextTokens  int
}

// SubstrateExecutor runs one strategy against a task and the trajectory's
// accumulated context, producing an artifact (§6 Inputs: "Substrate
// execution").
type SubstrateExecutor interface {
	Execute(ctx context.Context, strategy types.Strategy, task types.TaskSubmission, traj *types.Trajectory) (Artifact, error)
}

// IntentVerifier judges whether an artifact satisfies the task's intent
// beyond what the overseer cluster's structural signals capture (§6
// Inputs: "Intent verifier").
type IntentVerifier interface {
	Verify(ctx context.Context, task types.TaskSubmission, artifact Artifact, signals types.OverseerSignals) (types.VerificationResult, error)
}

// StoreRepository is the slice of internal/store.Store the engine needs:
// similarity search for basin estimation, persistence at resolution, and
// bandit-prior load/save. Scoped narrowly the same way
// internal/ai/decomposition.go's IssueStore is, so tests can supply an
// in-memory fake instead of a real database.
type StoreRepository interface {
	Similar(ctx context.Context, task types.TaskSubmission, limit int) ([]types.Trajectory, error)
	Save(ctx context.Context, traj *types.Trajectory, task types.TaskSubmission) error
	SaveBanditPriors(ctx context.Context, priors map[bandit.Key]bandit.Posterior) error
}

// historicalSampleLimit bounds the similarity search used for basin
// estimation and convergence-cost estimation.
const historicalSampleLimit = 50

// Engine owns every component the Engine Loop coordinates. It is the
// concrete TrajectoryRunner the Decomposition Coordinator hands
// subtasks back to (Run satisfies decompose.TrajectoryRunner).
type Engine struct {
	Substrate  SubstrateExecutor
	Overseers  *overseer.Runner
	Verifier   IntentVerifier // optional
	Classifier *attractor.Classifier
	Bandit     *bandit.Bandit
	Store      StoreRepository
	Bus        events.Bus
	Preparer   *prepare.Preparer
	Decomposer *decompose.Coordinator
}

// New wires a fully-configured Engine. Verifier, Store, Bus and Decomposer
// may be nil; every other field is required.
func New(substrate SubstrateExecutor, overseers *overseer.Runner, verifier IntentVerifier, classifier *attractor.Classifier, b *bandit.Bandit, store StoreRepository, bus events.Bus, preparer *prepare.Preparer, decomposer *decompose.Coordinator) *Engine {
	return &Engine{
		Substrate:  substrate,
		Overseers:  overseers,
		Verifier:   verifier,
		Classifier: classifier,
		Bandit:     b,
		Store:      store,
		Bus:        bus,
		Preparer:   preparer,
		Decomposer: decomposer,
	}
}

// Submit runs the SETUP phase for a brand-new top-level task — basin
// estimation and budget allocation — then hands off to Run for
// PREPARE/DECIDE/ITERATE/RESOLVE. Use Submit for tasks arriving from an
// external caller; use Run directly only when a budget has already been
// decided elsewhere (the Decomposition Coordinator's children).
func (e *Engine) Submit(ctx context.Context, task types.TaskSubmission) (*types.Trajectory, *types.Outcome, error) {
	basin, err := e.estimateBasin(ctx, task)
	if err != nil {
		return nil, nil, fmt.Errorf("estimate basin: %w", err)
	}

	allocated := budget.Allocate(task.Complexity, basin)

	traj, err := e.Run(ctx, task, allocated)
	if err != nil {
		return traj, nil, err
	}
	return traj, buildOutcome(traj), nil
}

// Run executes PREPARE through RESOLVE for task against the given
// budget, returning the finished trajectory. It satisfies
// decompose.TrajectoryRunner so the Decomposition Coordinator can invoke
// it directly for each child subtask with an already-apportioned budget
// share — which is also why its signature returns only the trajectory:
// the coordinator reads the outcome straight off traj.Phase and
// traj.LastObservation rather than a separate Outcome value. Basin
// estimation is recomputed here (even though Submit already did it)
// because Run must be self-sufficient for callers, like the
// coordinator, that never go through Submit; a similarity query is
// cheap next to one iteration's substrate call.
func (e *Engine) Run(ctx context.Context, task types.TaskSubmission, allocated types.ConvergenceBudget) (*types.Trajectory, error) {
	basin, err := e.estimateBasin(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("estimate basin: %w", err)
	}

	policy := assemblePolicy(basin, task.PriorityHint)
	taskID := uuid.NewString()
	traj := types.NewTrajectory(taskID, task.GoalID, task.Description, allocated, policy)

	prepResult, err := e.Preparer.Prepare(ctx, traj, task)
	if err != nil {
		return traj, fmt.Errorf("prepare: %w", err)
	}
	task.AcceptanceTests = prepResult.AcceptanceTests
	task.Invariants = prepResult.Invariants

	if err := e.decideAndRun(ctx, traj, task, basin); err != nil {
		if err == ErrCancelled {
			// §5: cancellation freezes the trajectory in place — persist it
			// with a background context (the original is already done) and
			// skip RESOLVE entirely, so no terminal event fires and bandit
			// state is left untouched.
			if e.Store != nil {
				_ = e.Store.Save(context.Background(), traj, task)
			}
			return traj, ErrCancelled
		}
		return traj, err
	}

	if err := e.resolve(ctx, traj, task); err != nil {
		return traj, fmt.Errorf("resolve: %w", err)
	}
	return traj, nil
}

// estimateBasin blends the task's specification-quality signals with the
// historical convergence rate of similar prior trajectories (§4.6).
func (e *Engine) estimateBasin(ctx context.Context, task types.TaskSubmission) (types.BasinEstimate, error) {
	input := budget.BasinInput{Task: task}
	if e.Store != nil {
		similar, err := e.Store.Similar(ctx, task, historicalSampleLimit)
		if err != nil {
			return types.BasinEstimate{}, fmt.Errorf("similarity search: %w", err)
		}
		if len(similar) > 0 {
			converged := 0
			for _, t := range similar {
				if t.Phase == types.PhaseConverged {
					converged++
				}
			}
			input.HistoricalSampleSize = len(similar)
			input.HistoricalConvergenceRate = float64(converged) / float64(len(similar))
		}
	}
	return budget.EstimateBasin(input), nil
}

// historicalSamples converts the Trajectory Store's similarity results
// into the iteration-count samples budget.EstimateConvergence expects.
func (e *Engine) historicalSamples(ctx context.Context, task types.TaskSubmission) ([]budget.HistoricalSample, error) {
	if e.Store == nil {
		return nil, nil
	}
	similar, err := e.Store.Similar(ctx, task, historicalSampleLimit)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	samples := make([]budget.HistoricalSample, len(similar))
	for i, t := range similar {
		samples[i] = budget.HistoricalSample{
			Iterations: len(t.Observations),
			Converged:  t.Phase == types.PhaseConverged,
		}
	}
	return samples, nil
}

// assemblePolicy applies the basin's policy multipliers (§4.6) and
// overlays the task's priority hint (§4.7 SETUP: "policy assembly,
// priority-hint overlay"). The hint-to-knob mapping is not specified by
// spec.md beyond its effect on budget extension approval and
// decomposition auto-apply; this overlay resolves the remaining
// ambiguity by the most direct reading of each hint's name (documented
// in DESIGN.md): Fast favours cheap/quick strategies and skips expensive
// overseers; Thorough favours verification and exploration; Cheap
// minimises overseer cost above all.
func assemblePolicy(basin types.BasinEstimate, hint *types.PriorityHint) types.ConvergencePolicy {
	policy := budget.AdjustPolicy(types.DefaultConvergencePolicy(), basin)
	policy.PriorityHint = hint
	if hint == nil {
		return policy
	}
	switch *hint {
	case types.PriorityFast:
		policy.PreferCheapStrategies = true
		policy.SkipExpensiveOverseers = true
	case types.PriorityThorough:
		policy.PreferCheapStrategies = false
		if policy.IntentVerificationFrequency == 0 {
			policy.IntentVerificationFrequency = 1
		}
	case types.PriorityCheap:
		policy.PreferCheapStrategies = true
		policy.SkipExpensiveOverseers = true
		policy.PartialAcceptance = true
	}
	return policy
}
