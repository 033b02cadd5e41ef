package engine

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/abathur-ai/abathur/internal/bandit"
	"github.com/abathur-ai/abathur/internal/types"
)

// sharedConvergenceBudget is the envelope n parallel trajectories draw
// from jointly. Consumption deltas are applied atomically under a mutex
// so concurrent starts never lose an update (§5: "shared budget
// consumption is linearised").
type sharedConvergenceBudget struct {
	mu     sync.Mutex
	budget types.ConvergenceBudget
}

func (s *sharedConvergenceBudget) snapshot() types.ConvergenceBudget {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.budget
}

func (s *sharedConvergenceBudget) applyDelta(before, after types.ConvergenceBudget) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.budget.ConsumedTokens += after.ConsumedTokens - before.ConsumedTokens
	s.budget.ConsumedWallTime += after.ConsumedWallTime - before.ConsumedWallTime
	s.budget.ConsumedIterations += after.ConsumedIterations - before.ConsumedIterations
}

func (s *sharedConvergenceBudget) exhausted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.budget.Exhausted()
}

// parallelTrial is one of the n independent starts a Parallel{n}
// convergence run maintains.
type parallelTrial struct {
	traj *types.Trajectory
	prev *previousArtifact
}

// runParallel implements §4.9's Parallel{n} mode: n independent starts
// share one budget; the first round runs concurrently, then further
// iterations are allocated one at a time by Thompson-sampling each live
// trial's own posterior, skipping divergent trials with three or more
// observations. A converged trial short-circuits the whole run.
func (e *Engine) runParallel(ctx context.Context, parent *types.Trajectory, task types.TaskSubmission, n int) error {
	shared := &sharedConvergenceBudget{budget: parent.Budget}

	trials := make([]*parallelTrial, n)
	for i := range trials {
		child := types.NewTrajectory(parent.TaskID, parent.GoalID, parent.Specification.Original, shared.snapshot(), parent.Policy)
		child.Specification = parent.Specification
		trials[i] = &parallelTrial{traj: child}
	}

	group, gctx := errgroup.WithContext(ctx)
	for _, trial := range trials {
		trial := trial
		group.Go(func() error {
			return e.runTrialStep(gctx, trial, task, shared)
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	if winner := firstConverged(trials); winner != nil {
		mergeIntoParent(parent, winner.traj)
		return nil
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for {
		if err := ctx.Err(); err != nil {
			return ErrCancelled
		}
		live := eligibleTrials(trials)
		if len(live) == 0 || shared.exhausted() {
			break
		}

		next := sampleTrial(live, rng)
		if err := e.runTrialStep(ctx, next, task, shared); err != nil {
			return err
		}
		if next.traj.Phase == types.PhaseConverged {
			mergeIntoParent(parent, next.traj)
			return nil
		}
	}

	best := bestTrial(trials)
	mergeIntoParent(parent, best.traj)
	return nil
}

// runTrialStep runs one iteration of a trial against the shared budget
// envelope, applying its consumption delta atomically afterward.
func (e *Engine) runTrialStep(ctx context.Context, trial *parallelTrial, task types.TaskSubmission, shared *sharedConvergenceBudget) error {
	before := shared.snapshot()
	trial.traj.Budget = before

	result, next, err := e.step(ctx, trial.traj, task, trial.prev)
	shared.applyDelta(before, trial.traj.Budget)
	if err != nil {
		return err
	}
	trial.prev = next
	_ = result
	return nil
}

func firstConverged(trials []*parallelTrial) *parallelTrial {
	for _, t := range trials {
		if t.traj.Phase == types.PhaseConverged {
			return t
		}
	}
	return nil
}

// eligibleTrials excludes terminal trials and divergent trials with
// three or more observations from further iteration allocation (§4.9).
func eligibleTrials(trials []*parallelTrial) []*parallelTrial {
	var live []*parallelTrial
	for _, t := range trials {
		switch t.traj.Phase {
		case types.PhaseExhausted, types.PhaseTrapped, types.PhaseConverged:
			continue
		}
		if t.traj.Attractor.Type.Kind == types.AttractorDivergent && len(t.traj.Observations) >= 3 {
			continue
		}
		live = append(live, t)
	}
	return live
}

// sampleTrial Thompson-samples a per-trial Beta posterior built from the
// trial's own strategy log outcomes (one posterior per trajectory, not
// per attractor/strategy pair as internal/bandit.Bandit tracks) and
// returns the trial with the highest draw.
func sampleTrial(trials []*parallelTrial, rng *rand.Rand) *parallelTrial {
	var best *parallelTrial
	bestScore := -1.0
	for _, t := range trials {
		p := trialPosterior(t.traj)
		score := p.Sample(rng)
		if score > bestScore {
			bestScore = score
			best = t
		}
	}
	return best
}

func trialPosterior(traj *types.Trajectory) *bandit.Posterior {
	p := bandit.NewPosterior()
	for _, entry := range traj.StrategyLog {
		if entry.AchievedDelta == nil {
			continue
		}
		switch bandit.ClassifyOutcome(*entry.AchievedDelta, bandit.DefaultSuccessThreshold) {
		case bandit.OutcomeSuccess:
			p.Alpha += 1
		case bandit.OutcomeMarginal:
			p.Alpha += 0.5
		case bandit.OutcomeFailure:
			p.Beta += 1
		}
	}
	return p
}

// bestTrial picks the trial with the highest best-observation
// convergence level, for when the shared budget runs out before any
// trial converges.
func bestTrial(trials []*parallelTrial) *parallelTrial {
	var best *parallelTrial
	bestLevel := -1.0
	for _, t := range trials {
		obs := t.traj.BestObservation()
		if obs == nil {
			continue
		}
		if obs.Metrics.ConvergenceLevel > bestLevel {
			bestLevel = obs.Metrics.ConvergenceLevel
			best = t
		}
	}
	if best == nil {
		best = trials[0]
	}
	return best
}

// mergeIntoParent folds a winning trial's state back onto the parent
// trajectory the caller (Run) is tracking, so RESOLVE can treat a
// Parallel{n} run identically to a Sequential one.
func mergeIntoParent(parent *types.Trajectory, winner *types.Trajectory) {
	parent.Observations = winner.Observations
	parent.Attractor = winner.Attractor
	parent.StrategyLog = winner.StrategyLog
	parent.Phase = winner.Phase
	parent.Context = winner.Context
	parent.TotalFreshStarts = winner.TotalFreshStarts
	parent.Budget.ConsumedTokens = winner.Budget.ConsumedTokens
	parent.Budget.ConsumedWallTime = winner.Budget.ConsumedWallTime
	parent.Budget.ConsumedIterations = winner.Budget.ConsumedIterations
}
