package engine

import (
	"context"
	"fmt"

	"github.com/abathur-ai/abathur/internal/bandit"
	"github.com/abathur-ai/abathur/internal/budget"
	"github.com/abathur-ai/abathur/internal/events"
	"github.com/abathur-ai/abathur/internal/health"
	"github.com/abathur-ai/abathur/internal/metrics"
	"github.com/abathur-ai/abathur/internal/overseer"
	"github.com/abathur-ai/abathur/internal/types"
)

// stepResult reports what happened after one call to step: either the
// trajectory reached a terminal phase, it was handed off to the
// Decomposition Coordinator (treated as terminal by the caller), or it
// should continue with another iteration.
type stepResult struct {
	terminal bool
}

// previousArtifact threads the prior iteration's raw content into the
// next iteration's metrics computation. It is iteration-loop-local state
// (§6: the persisted trajectory only ever carries opaque artifact
// references), never stored on the Trajectory itself.
type previousArtifact struct {
	content string
	signals *types.OverseerSignals
}

// step runs the Engine Loop's 10-step iteration sequence (§4.7) once
// against traj, mutating it in place. prev carries the previous
// iteration's artifact content and signals (nil before the first
// iteration).
func (e *Engine) step(ctx context.Context, traj *types.Trajectory, task types.TaskSubmission, prev *previousArtifact) (stepResult, *previousArtifact, error) {
	if err := ctx.Err(); err != nil {
		return stepResult{}, prev, ErrCancelled
	}

	// Step 1: select strategy.
	preIterationAttractor := traj.Attractor.Type.Kind
	preConsumptionRemaining := traj.Budget.RemainingFraction()

	selected, wasForced, ok := e.selectStrategy(traj)
	if !ok {
		traj.Phase = types.PhaseTrapped
		return stepResult{terminal: true}, prev, nil
	}

	if e.Bus != nil {
		e.Bus.Publish(events.StrategySelected(traj.ID, string(selected.Kind), string(preIterationAttractor), preConsumptionRemaining))
	}
	if selected.Kind == types.StrategyFreshStart {
		traj.TotalFreshStarts++
	}

	// Step 2: decomposition hand-off.
	if selected.Kind == types.StrategyDecompose && e.Decomposer != nil {
		subtasks, err := e.Decomposer.Propose(ctx, task)
		if err != nil {
			return stepResult{}, prev, fmt.Errorf("propose subtasks: %w", err)
		}
		if len(subtasks) > 0 {
			if err := e.coordinateDecomposition(ctx, traj, task, subtasks); err != nil {
				return stepResult{}, prev, err
			}
			return stepResult{terminal: true}, prev, nil
		}
	}

	// Step 3: execute strategy.
	artifact, err := e.Substrate.Execute(ctx, selected, task, traj)
	if err != nil {
		e.Bandit.Update(preIterationAttractor, selected.Kind, -1.0, wasForced)
		traj.Budget.ConsumedIterations++
		traj.AppendStrategyEntry(types.StrategyEntry{
			Kind:                selected.Kind,
			ObservationSequence: len(traj.Observations),
			WasForced:           wasForced,
		})
		if traj.Budget.Exhausted() {
			traj.Phase = types.PhaseExhausted
			return stepResult{terminal: true}, prev, nil
		}
		return stepResult{}, prev, nil
	}

	// Step 4: measure with the overseer cluster.
	signals, _ := e.Overseers.RunAll(ctx, overseer.ArtifactRef(artifact.Ref), task, traj.Policy)

	// Step 5: optional intent verification.
	var verification *types.VerificationResult
	if e.Verifier != nil && traj.Policy.IntentVerificationFrequency > 0 {
		if (len(traj.Observations)+1)%traj.Policy.IntentVerificationFrequency == 0 {
			v, err := e.Verifier.Verify(ctx, task, artifact, *signals)
			if err != nil {
				return stepResult{}, prev, fmt.Errorf("verify intent: %w", err)
			}
			verification = &v
		}
	}

	// Step 6: compute metrics against the prior observation, if any.
	astDiffNodes := 0
	var previousSignals *types.OverseerSignals
	if prev != nil {
		astDiffNodes = metrics.StructuralDiffNodes(prev.content, artifact.Content)
		previousSignals = prev.signals
	}
	obsMetrics := metrics.Compute(task.Complexity, traj.Policy, traj.Context, astDiffNodes, signals, previousSignals)

	// Step 7: append observation, consume budget, log strategy use.
	traj.AppendObservation(types.Observation{
		ArtifactRef:  artifact.Ref,
		Signals:      *signals,
		Verification: verification,
		Metrics:      obsMetrics,
		Tokens:       artifact.Tokens,
		WallTime:     artifact.WallTime,
		Strategy:     selected.Kind,
	})
	traj.Budget.ConsumedTokens += artifact.Tokens
	traj.Budget.ConsumedWallTime += artifact.WallTime
	traj.Budget.ConsumedIterations++

	var achievedDelta *float64
	if obsMetrics != nil {
		d := obsMetrics.ConvergenceDelta
		achievedDelta = &d
	}
	traj.AppendStrategyEntry(types.StrategyEntry{
		Kind:                selected.Kind,
		ObservationSequence: len(traj.Observations) - 1,
		AchievedDelta:       achievedDelta,
		TokensUsed:          artifact.Tokens,
		WasForced:           wasForced,
	})

	budgetRemaining := traj.Budget.RemainingFraction()
	if e.Bus != nil {
		e.Bus.Publish(events.ObservationRecorded(traj.ID, len(traj.Observations)-1, obsMetrics.ConvergenceDelta, obsMetrics.ConvergenceLevel, budgetRemaining))
	}

	// Step 8: recompute context health and classify the attractor.
	traj.Context = health.Compute(health.ComputeInput{
		UsefulContextTokens: artifact.UsefulContextTokens,
		TotalContextTokens:  artifact.TotalContextTokens,
		RecentObservations:  traj.Window(3),
	})
	traj.Attractor = e.Classifier.Classify(traj.Observations, traj.Specification.Amendments, traj.Budget)
	if e.Bus != nil {
		e.Bus.Publish(events.AttractorClassified(traj.ID, string(traj.Attractor.Type.Kind), traj.Attractor.Confidence))
	}

	// Step 9: update the bandit, unless this strategy was forced.
	e.Bandit.Update(preIterationAttractor, selected.Kind, obsMetrics.ConvergenceDelta, wasForced)

	next := &previousArtifact{content: artifact.Content, signals: signals}

	// Step 10: loop control.
	return e.applyLoopControl(traj, obsMetrics), next, nil
}

// selectStrategy implements step 1: use the forced strategy if the
// Context-Health Monitor (or a prior loop-control pass) set one, else
// filter to the attractor's eligible set and sample the bandit. An empty
// eligible set, or a bandit that selects nothing from it, resolves to
// "no selectable strategy" — which the caller treats as Trapped. This
// folds the loop-control table's separate "LimitCycle and eligibility
// set empty -> Trapped" condition into strategy selection rather than
// duplicating it one step later in applyLoopControl: both observe the
// exact same attractor/strategy-log state with no intervening
// observation between them.
func (e *Engine) selectStrategy(traj *types.Trajectory) (types.Strategy, bool, bool) {
	if traj.ForcedStrategy != nil {
		s := *traj.ForcedStrategy
		traj.ForcedStrategy = nil
		return s, true, true
	}

	eligible := bandit.Eligible(bandit.EligibilityInput{
		Attractor:               traj.Attractor,
		StrategyLog:             traj.StrategyLog,
		TotalFreshStarts:        traj.TotalFreshStarts,
		MaxFreshStarts:          traj.Policy.MaxFreshStarts,
		BestObservationSequence: bestObservationSequence(traj),
		Budget:                  traj.Budget,
	})
	if len(eligible) == 0 {
		return types.Strategy{}, false, false
	}

	selected, ok := e.Bandit.Select(traj.Attractor.Type.Kind, eligible, traj.Policy.PreferCheapStrategies)
	return selected, false, ok
}

func bestObservationSequence(traj *types.Trajectory) int {
	if best := traj.BestObservation(); best != nil {
		return best.Sequence
	}
	return 0
}

// applyLoopControl implements step 10's decision table (§4.7), evaluated
// in the table's own priority order. The LimitCycle-plus-empty-
// eligibility row is deliberately absent here; selectStrategy already
// resolves it one step earlier (see its doc comment).
func (e *Engine) applyLoopControl(traj *types.Trajectory, obsMetrics *types.ObservationMetrics) stepResult {
	last := traj.LastObservation()
	verificationSatisfied := last.Verification == nil ||
		last.Verification.Satisfied ||
		obsMetrics.ConvergenceLevel == 1 ||
		last.Signals.AllPassing()

	if obsMetrics.ConvergenceLevel >= traj.Policy.AcceptanceThreshold &&
		obsMetrics.VulnerabilityDelta <= 0 &&
		verificationSatisfied {
		traj.Phase = types.PhaseConverged
		return stepResult{terminal: true}
	}

	if traj.Budget.Exhausted() {
		if budget.ShouldRequestExtension(traj.Budget, traj.Attractor.Type.Kind) {
			current := traj.Budget.RemainingFraction()
			if e.Bus != nil {
				e.Bus.Publish(events.BudgetExtensionRequested(traj.ID, current, 1.0, traj.Attractor.Rationale))
			}
			granted, needsApproval := budget.GrantExtension(traj.Budget, traj.Policy.PriorityHint)
			traj.Budget = granted
			if !needsApproval {
				return stepResult{}
			}
		}

		if traj.Policy.PartialAcceptance {
			if best := traj.BestObservation(); best != nil && best.Metrics != nil &&
				best.Metrics.ConvergenceLevel >= traj.Policy.PartialThreshold {
				traj.Phase = types.PhaseConverged
				return stepResult{terminal: true}
			}
		}

		traj.Phase = types.PhaseExhausted
		return stepResult{terminal: true}
	}

	if degraded, reason := health.ShouldForceFreshStart(traj.Context, traj.Observations, traj.TotalFreshStarts, traj.Policy.MaxFreshStarts); degraded {
		if e.Bus != nil {
			e.Bus.Publish(events.ContextDegradationDetected(traj.ID, traj.Context.SignalToNoise, reason))
		}
		traj.ForcedStrategy = &types.Strategy{Kind: types.StrategyFreshStart}
		return stepResult{}
	}

	return stepResult{}
}
