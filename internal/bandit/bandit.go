// Package bandit implements the Strategy Bandit (spec §4.4): a
// deterministic eligibility filter (eligibility.go) plus a Thompson-sampling
// selector/updater (this file) over per-(attractor-kind, strategy-kind)
// Beta posteriors. Grounded structurally on internal/cost/budget.go's
// Tracker: a mutex-guarded in-memory state object with a load/mutate/persist
// lifecycle (§9's "posteriors are global state ... load at engine init;
// mutate in memory through the run; persist at finalisation"). Thompson
// sampling itself has no teacher analogue — the teacher's cost tracker only
// accumulates counters, never learns a distribution — so the sampling math
// is new code (see posterior.go).
package bandit

import (
	"math/rand"
	"sync"
	"time"

	"github.com/abathur-ai/abathur/internal/types"
)

// DefaultSuccessThreshold is the delta magnitude separating Success/Marginal
// from Failure outcomes for bandit updates. Not fixed by spec.md (§9 only
// resolves the metrics weight table); chosen in the same spirit — mid-range
// on the delta's [-1,1] scale so routine incremental progress reads as
// Marginal and only a strong iteration reads as Success.
const DefaultSuccessThreshold = 0.3

// Key identifies one Beta posterior: attractor kind crossed with strategy
// kind (§9: "flat mapping (attractor_kind, strategy_kind) -> Beta(a,b)").
type Key struct {
	Attractor types.AttractorKind
	Strategy  types.StrategyKind
}

// Outcome classifies an observation's delta for posterior updates (§4.4).
type Outcome int

const (
	OutcomeFailure Outcome = iota
	OutcomeNeutral
	OutcomeMarginal
	OutcomeSuccess
)

// ClassifyOutcome maps a convergence delta to a bandit update outcome.
func ClassifyOutcome(delta, successThreshold float64) Outcome {
	switch {
	case delta > successThreshold:
		return OutcomeSuccess
	case delta > 0:
		return OutcomeMarginal
	case delta == 0:
		return OutcomeNeutral
	case delta < -successThreshold:
		return OutcomeFailure
	default:
		return OutcomeNeutral
	}
}

// Bandit holds the live set of posteriors for one task category's worth of
// trajectories. Safe for concurrent use (Parallel convergence mode runs
// several trajectories' selections concurrently, §4.9).
type Bandit struct {
	mu               sync.Mutex
	posteriors       map[Key]*Posterior
	rng              *rand.Rand
	successThreshold float64

	// consecutiveUse tracks same-exploitation-strategy streaks for
	// decay-aware rotation (§4.4).
	lastStrategy      types.StrategyKind
	consecutiveUses   int
	recentDeltas      []float64
}

// New builds a Bandit with uninformative priors for any key not yet seen.
func New() *Bandit {
	return &Bandit{
		posteriors:       make(map[Key]*Posterior),
		rng:              rand.New(rand.NewSource(time.Now().UnixNano())),
		successThreshold: DefaultSuccessThreshold,
	}
}

// LoadPriors seeds the bandit from persisted priors (engine-init load, §9).
func (b *Bandit) LoadPriors(priors map[Key]Posterior) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k, p := range priors {
		v := p
		b.posteriors[k] = &v
	}
}

// Snapshot returns a copy of all posteriors for persistence.
func (b *Bandit) Snapshot() map[Key]Posterior {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[Key]Posterior, len(b.posteriors))
	for k, p := range b.posteriors {
		out[k] = *p
	}
	return out
}

func (b *Bandit) posteriorLocked(k Key) *Posterior {
	p, ok := b.posteriors[k]
	if !ok {
		p = NewPosterior()
		b.posteriors[k] = p
	}
	return p
}

// Select samples each eligible strategy's posterior for the given attractor
// kind, applies the optional cheap-cost multiplier, and returns the argmax
// (§4.4). Returns false if eligible is empty.
func (b *Bandit) Select(attractorKind types.AttractorKind, eligible []types.Strategy, preferCheap bool) (types.Strategy, bool) {
	if len(eligible) == 0 {
		return types.Strategy{}, false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var best types.Strategy
	bestScore := -1.0
	for _, s := range eligible {
		key := Key{Attractor: attractorKind, Strategy: s.Kind}
		score := b.posteriorLocked(key).Sample(b.rng)
		if preferCheap {
			score *= cheapCostMultiplier(s)
		}
		if score > bestScore {
			bestScore = score
			best = s
		}
	}
	return best, true
}

// cheapCostMultiplier nudges the sampled score in favour of lower-cost
// strategies when the policy prefers cheap strategies. Costs range roughly
// 1000-8000 tokens (types.Strategy.EstimatedCost); normalise against 8000
// so the multiplier stays in (0, 1].
func cheapCostMultiplier(s types.Strategy) float64 {
	cost := float64(s.EstimatedCost())
	if cost <= 0 {
		return 1.0
	}
	return 1.0 - 0.5*(cost/8000.0)
}

// Update applies an observation's outcome to the posterior for
// (attractorKind, strategyKind), unless wasForced (§4.4, §8 invariant:
// "Bandit posteriors are only updated when was_forced = false").
func (b *Bandit) Update(attractorKind types.AttractorKind, strategyKind types.StrategyKind, delta float64, wasForced bool) {
	if wasForced {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	p := b.posteriorLocked(Key{Attractor: attractorKind, Strategy: strategyKind})
	switch ClassifyOutcome(delta, b.successThreshold) {
	case OutcomeSuccess:
		p.Alpha += 1
	case OutcomeMarginal:
		p.Alpha += 0.5
	case OutcomeFailure:
		p.Beta += 1
	case OutcomeNeutral:
		// no-op
	}

	b.trackRotation(strategyKind, delta)
}

// trackRotation maintains the consecutive-use streak used by
// ShouldRotate (§4.4 decay-aware rotation).
func (b *Bandit) trackRotation(strategyKind types.StrategyKind, delta float64) {
	if strategyKind == b.lastStrategy {
		b.consecutiveUses++
	} else {
		b.lastStrategy = strategyKind
		b.consecutiveUses = 1
		b.recentDeltas = nil
	}
	b.recentDeltas = append(b.recentDeltas, delta)
	if len(b.recentDeltas) > 8 {
		b.recentDeltas = b.recentDeltas[len(b.recentDeltas)-8:]
	}
}

// ShouldRotate reports whether the same exploitation strategy has run long
// enough with diminishing returns that the bandit should be steered away
// from it (§4.4). It fits an exponential decay E0*e^(-lambda*t) to the
// recent deltas of this streak and checks whether projected progress has
// dropped below minUsefulProgress; if a decay curve cannot be fit (fewer
// than 3 points, or the deltas aren't decreasing), it falls back to
// rotating after 3 consecutive uses.
func (b *Bandit) ShouldRotate(minUsefulProgress float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.consecutiveUses < 3 {
		return false
	}

	lambda, e0, ok := fitExponentialDecay(b.recentDeltas)
	if !ok {
		return b.consecutiveUses >= 3
	}

	t := float64(len(b.recentDeltas))
	projected := e0 * expNeg(lambda*t)
	return projected < minUsefulProgress
}
