// Package types defines the Convergence Engine's data model: the Trajectory
// aggregate root, its Observations, and the supporting value types that
// describe a task's progress through solution space.
package types

import (
	"time"

	"github.com/google/uuid"
)

// Complexity is the inferred difficulty tag carried on a Task Submission.
type Complexity string

const (
	ComplexityTrivial     Complexity = "trivial"
	ComplexitySimple      Complexity = "simple"
	ComplexityModerate    Complexity = "moderate"
	ComplexityComplex     Complexity = "complex"
	ComplexityExploratory Complexity = "exploratory"
)

// PriorityHint biases strategy selection and budget extension approval.
type PriorityHint string

const (
	PriorityFast     PriorityHint = "fast"
	PriorityThorough PriorityHint = "thorough"
	PriorityCheap    PriorityHint = "cheap"
)

// ConvergencePhase is the trajectory's coarse lifecycle state.
type ConvergencePhase string

const (
	PhasePreparing   ConvergencePhase = "preparing"
	PhaseIterating   ConvergencePhase = "iterating"
	PhaseCoordinating ConvergencePhase = "coordinating"
	PhaseConverged   ConvergencePhase = "converged"
	PhaseExhausted   ConvergencePhase = "exhausted"
	PhaseTrapped     ConvergencePhase = "trapped"
)

// TaskSubmission is the inbound request that seeds a new trajectory.
type TaskSubmission struct {
	Description       string
	GoalID            string
	Complexity        Complexity
	AcceptanceTests   []string
	Examples          []string
	Invariants        []string
	AntiExamples      []string
	ContextFiles      []string
	Tags              []string
	PriorityHint      *PriorityHint
	ParallelSamples   *int
}

// AmendmentSource identifies why a SpecificationAmendment was introduced.
type AmendmentSource string

const (
	AmendmentUserHint                   AmendmentSource = "user_hint"
	AmendmentImplicitRequirement        AmendmentSource = "implicit_requirement_discovered"
	AmendmentOverseerDiscovery          AmendmentSource = "overseer_discovery"
	AmendmentArchitect                  AmendmentSource = "architect_amendment"
	AmendmentTestDisambiguation         AmendmentSource = "test_disambiguation"
	AmendmentSubmissionConstraint       AmendmentSource = "submission_constraint"
)

// SpecificationAmendment records one change to the effective specification.
type SpecificationAmendment struct {
	Source               AmendmentSource
	Description          string
	Rationale             string
	TriggeringObservation int
	Timestamp             time.Time
}

// SpecificationEvolution tracks a trajectory's specification as it is
// amended over the course of iteration.
type SpecificationEvolution struct {
	Original   string
	Amendments []SpecificationAmendment
	Effective  string
}

// Amend appends an amendment and recomputes the effective snapshot. The
// effective snapshot is the original text with each amendment's description
// appended in order; callers needing richer merging can post-process.
func (s *SpecificationEvolution) Amend(a SpecificationAmendment) {
	s.Amendments = append(s.Amendments, a)
	effective := s.Original
	for _, amendment := range s.Amendments {
		effective += "\n\n---\n" + amendment.Description
	}
	s.Effective = effective
}

// ConvergencePolicy is the set of tunables governing one trajectory's run.
type ConvergencePolicy struct {
	ExplorationWeight          float64
	AcceptanceThreshold        float64
	PartialAcceptance          bool
	PartialThreshold           float64
	SkipExpensiveOverseers     bool
	GenerateAcceptanceTests    bool
	IntentVerificationFrequency int
	PreferCheapStrategies      bool
	PriorityHint               *PriorityHint
	MaxFreshStarts             int
	// DeltaWeights optionally overrides the per-complexity weight table
	// (internal/metrics ships the SPEC_FULL.md §5 defaults).
	DeltaWeights map[Complexity]DeltaWeights
}

// DeltaWeights are the convergence_delta composite weights (§4.1).
type DeltaWeights struct {
	Test       float64
	Error      float64
	Regression float64
	Structural float64
}

// DefaultConvergencePolicy returns the baseline policy described in §3/§4.1.
func DefaultConvergencePolicy() ConvergencePolicy {
	return ConvergencePolicy{
		ExplorationWeight:           0.3,
		AcceptanceThreshold:         0.95,
		PartialAcceptance:           false,
		PartialThreshold:            0.7,
		SkipExpensiveOverseers:      false,
		GenerateAcceptanceTests:     false,
		IntentVerificationFrequency: 0,
		PreferCheapStrategies:       false,
		MaxFreshStarts:              3,
	}
}

// ConvergenceBudget is the multi-dimensional resource envelope for a
// trajectory.
type ConvergenceBudget struct {
	MaxTokens    int
	MaxWallTime  time.Duration
	MaxIterations int

	ConsumedTokens     int
	ConsumedWallTime   time.Duration
	ConsumedIterations int

	ExtensionsRequested int
	ExtensionsGranted   int
	MaxExtensions       int
}

// RemainingFraction returns the minimum remaining fraction across the three
// budget dimensions, clamped to [0, 1].
func (b *ConvergenceBudget) RemainingFraction() float64 {
	frac := func(consumed, max float64) float64 {
		if max <= 0 {
			return 1.0
		}
		r := 1.0 - consumed/max
		if r < 0 {
			return 0
		}
		if r > 1 {
			return 1
		}
		return r
	}
	tokens := frac(float64(b.ConsumedTokens), float64(b.MaxTokens))
	wall := frac(float64(b.ConsumedWallTime), float64(b.MaxWallTime))
	iters := frac(float64(b.ConsumedIterations), float64(b.MaxIterations))

	min := tokens
	if wall < min {
		min = wall
	}
	if iters < min {
		min = iters
	}
	return min
}

// Exhausted reports whether any budget dimension has reached zero.
func (b *ConvergenceBudget) Exhausted() bool {
	return b.RemainingFraction() <= 0
}

// CanExtend reports whether another extension may be requested.
func (b *ConvergenceBudget) CanExtend() bool {
	return b.ExtensionsRequested < b.MaxExtensions
}

// ContextHealth is the set of signals the Context-Health Monitor computes.
type ContextHealth struct {
	SignalToNoise          float64
	StructuralChurnRate    float64
	ArtifactSelfSimilarity float64
}

// BasinClassification buckets a BasinEstimate's Score into the three bands
// that drive budget/policy multipliers (§4.6).
type BasinClassification string

const (
	BasinWide     BasinClassification = "wide"
	BasinModerate BasinClassification = "moderate"
	BasinNarrow   BasinClassification = "narrow"
)

// BasinEstimate is the Budget & Basin component's estimate of how forgiving
// a task's specification is (§4.6). Score is the blended [0,1] value;
// Classification is the derived band.
type BasinEstimate struct {
	Score          float64
	Classification BasinClassification
	SpecSignal     float64
	HistoricalRate float64
	SampleSize     int
}

// ConvergenceEstimate is the Budget & Basin component's prediction of how
// many iterations a trajectory will need, used by the Decomposition
// Coordinator to compare monolithic vs. decomposed costs (§4.6, §4.8).
type ConvergenceEstimate struct {
	ExpectedIterations float64
	P95Iterations      float64
	ConvergenceProbability float64
	Empirical          bool
	SampleSize         int
}

// BurnRate projects remaining-budget decay across recent iterations so an
// extension can be requested before a bare threshold check would fire.
type BurnRate struct {
	TokensPerIteration   float64
	IterationsToExhaustion float64
	Confidence           float64
}

// StrategyKind is the tagged-union discriminant for strategies (§4.4,§9).
type StrategyKind string

const (
	StrategyRetryWithFeedback   StrategyKind = "retry_with_feedback"
	StrategyRetryAugmented      StrategyKind = "retry_augmented"
	StrategyFocusedRepair       StrategyKind = "focused_repair"
	StrategyIncrementalRefinement StrategyKind = "incremental_refinement"
	StrategyReframe             StrategyKind = "reframe"
	StrategyDecompose           StrategyKind = "decompose"
	StrategyAlternativeApproach StrategyKind = "alternative_approach"
	StrategyArchitectReview     StrategyKind = "architect_review"
	StrategyRevertAndBranch     StrategyKind = "revert_and_branch"
	StrategyFreshStart          StrategyKind = "fresh_start"
)

// Strategy is the payload-bearing strategy value. Only RevertAndBranch and
// FreshStart carry associated data; all others leave it zero.
type Strategy struct {
	Kind StrategyKind

	// RevertAndBranch payload.
	TargetObservation int

	// FreshStart payload.
	CarryForward *CarryForward
}

// EstimatedCost is the strategy's token-cost estimate used for budget
// gating and the cheap-strategy nudge.
func (s Strategy) EstimatedCost() int {
	switch s.Kind {
	case StrategyRetryWithFeedback, StrategyIncrementalRefinement:
		return 2000
	case StrategyRetryAugmented, StrategyFocusedRepair:
		return 3500
	case StrategyReframe, StrategyAlternativeApproach:
		return 6000
	case StrategyArchitectReview:
		return 8000
	case StrategyDecompose:
		return 4000
	case StrategyRevertAndBranch:
		return 1000
	case StrategyFreshStart:
		return 5000
	default:
		return 3000
	}
}

// IsExploration reports whether the strategy belongs to the exploration
// family (§4.4).
func (s Strategy) IsExploration() bool {
	switch s.Kind {
	case StrategyReframe, StrategyDecompose, StrategyAlternativeApproach, StrategyArchitectReview:
		return true
	default:
		return false
	}
}

// CarryForward is everything salvaged across a fresh start (§3).
type CarryForward struct {
	EffectiveSpecification string
	BestSignals            OverseerSignals
	BestArtifactRef        string
	FailureSummary         string
	RemainingGaps          []string
	Hints                  []string
}

// StrategyEntry is one line of the trajectory's strategy log.
type StrategyEntry struct {
	Kind               StrategyKind
	ObservationSequence int
	AchievedDelta      *float64
	TokensUsed         int
	WasForced          bool
	Timestamp          time.Time
}

// DivergentCause classifies why a Divergent attractor was detected.
type DivergentCause string

const (
	CauseSpecificationAmbiguity DivergentCause = "specification_ambiguity"
	CauseWrongApproach          DivergentCause = "wrong_approach"
	CauseAccumulatedRegression  DivergentCause = "accumulated_regression"
	CauseUnknown                DivergentCause = "unknown"
)

// Tendency classifies the rough direction of an Indeterminate attractor.
type Tendency string

const (
	TendencyImproving Tendency = "improving"
	TendencyDeclining Tendency = "declining"
	TendencyFlat      Tendency = "flat"
)

// AttractorKind is the tagged-union discriminant for AttractorType.
type AttractorKind string

const (
	AttractorFixedPoint    AttractorKind = "fixed_point"
	AttractorLimitCycle    AttractorKind = "limit_cycle"
	AttractorDivergent     AttractorKind = "divergent"
	AttractorPlateau       AttractorKind = "plateau"
	AttractorIndeterminate AttractorKind = "indeterminate"
)

// AttractorType is the classification payload (§3, §9: discriminant plus
// payload struct, dispatched by switching on Kind).
type AttractorType struct {
	Kind AttractorKind

	// FixedPoint payload.
	RemainingIterations int
	RemainingTokens     int

	// LimitCycle payload.
	Period     int
	Signatures []string

	// Divergent payload.
	Rate  float64
	Cause DivergentCause

	// Plateau payload.
	StallDuration int
	PlateauLevel  float64

	// Indeterminate payload.
	Tendency Tendency
}

// AttractorState is the classifier's output: the type plus confidence and
// evidence (§3).
type AttractorState struct {
	Type               AttractorType
	Confidence         float64
	DetectedAtObservation int
	RecentDeltas       []float64
	RecentSignatures   []string
	Rationale          string
}

// OverseerSignals aggregates independent, optional measurement outcomes
// (§3, §4.2).
type OverseerSignals struct {
	TestResults    *TestResults
	TypeCheck      *CheckResult
	LintResults    *CheckResult
	BuildResult    *CheckResult
	SecurityScan   *SecurityScanResult
	CustomChecks   []CustomCheckResult
}

// TestResults is the full-test-suite overseer's typed result.
type TestResults struct {
	Passed     int
	Failed     int
	Total      int
	Regressions []string
}

// PassFraction returns Passed/Total, or 0 when Total is 0.
func (t *TestResults) PassFraction() float64 {
	if t == nil || t.Total == 0 {
		return 0
	}
	return float64(t.Passed) / float64(t.Total)
}

// CheckResult is a generic pass/fail-with-errors overseer result (used for
// type-check, lint, build).
type CheckResult struct {
	Passed bool
	Errors []string
}

// SecurityScanResult reports discovered vulnerabilities.
type SecurityScanResult struct {
	VulnerabilityCount int
	Findings           []string
}

// CustomCheckResult is an arbitrary named pass/fail check.
type CustomCheckResult struct {
	Name        string
	Passed      bool
	Description string
}

// HasAnySignal reports whether at least one overseer produced a result.
func (s OverseerSignals) HasAnySignal() bool {
	if s.TestResults != nil || s.TypeCheck != nil || s.LintResults != nil ||
		s.BuildResult != nil || s.SecurityScan != nil {
		return true
	}
	return len(s.CustomChecks) > 0
}

// AllPassing reports whether every signal present indicates success.
func (s OverseerSignals) AllPassing() bool {
	if s.TestResults != nil && s.TestResults.Failed > 0 {
		return false
	}
	if s.TypeCheck != nil && !s.TypeCheck.Passed {
		return false
	}
	if s.LintResults != nil && !s.LintResults.Passed {
		return false
	}
	if s.BuildResult != nil && !s.BuildResult.Passed {
		return false
	}
	if s.SecurityScan != nil && s.SecurityScan.VulnerabilityCount > 0 {
		return false
	}
	for _, c := range s.CustomChecks {
		if !c.Passed {
			return false
		}
	}
	return true
}

// ErrorCount sums errors across type-check, lint, and build.
func (s OverseerSignals) ErrorCount() int {
	n := 0
	if s.TypeCheck != nil {
		n += len(s.TypeCheck.Errors)
	}
	if s.LintResults != nil {
		n += len(s.LintResults.Errors)
	}
	if s.BuildResult != nil {
		n += len(s.BuildResult.Errors)
	}
	return n
}

// VulnerabilityCount returns the security scan's finding count, or 0.
func (s OverseerSignals) VulnerabilityCount() int {
	if s.SecurityScan == nil {
		return 0
	}
	return s.SecurityScan.VulnerabilityCount
}

// RegressionCount returns the number of test regressions observed.
func (s OverseerSignals) RegressionCount() int {
	if s.TestResults == nil {
		return 0
	}
	return len(s.TestResults.Regressions)
}

// VerificationResult is the Intent Verifier's output for one observation.
type VerificationResult struct {
	Satisfied bool
	Gaps      []IntentGap
}

// IntentGap is a single unmet aspect of the task's intent.
type IntentGap struct {
	Description string
	Severity    string
}

// ObservationMetrics holds the per-iteration deltas and absolute level
// computed by the Metrics Core (§3, §4.1).
type ObservationMetrics struct {
	StructuralDiffNodes int
	TestPassDelta       float64
	TestRegressionCount int
	ErrorCountDelta     int
	VulnerabilityDelta  int
	ConvergenceDelta    float64
	ConvergenceLevel    float64
}

// Observation is one immutable snapshot produced by one iteration (§3).
type Observation struct {
	Sequence    int
	Timestamp   time.Time
	ArtifactRef string
	Signals     OverseerSignals
	Verification *VerificationResult
	Metrics     *ObservationMetrics
	Tokens      int
	WallTime    time.Duration
	Strategy    StrategyKind
}

// Trajectory is the aggregate root: the full state of one task's attempt
// sequence (§3).
type Trajectory struct {
	ID     string
	TaskID string
	GoalID string

	Specification SpecificationEvolution
	Observations  []Observation

	Attractor AttractorState
	Budget    ConvergenceBudget
	Policy    ConvergencePolicy

	StrategyLog []StrategyEntry
	Phase       ConvergencePhase

	Context ContextHealth

	Hints            []string
	ForcedStrategy   *Strategy
	TotalFreshStarts int

	Children []string // child trajectory IDs, set when Phase == Coordinating

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewTrajectory constructs a Trajectory in the Preparing phase.
func NewTrajectory(taskID, goalID, originalSpec string, budget ConvergenceBudget, policy ConvergencePolicy) *Trajectory {
	now := timeNow()
	return &Trajectory{
		ID:     uuid.NewString(),
		TaskID: taskID,
		GoalID: goalID,
		Specification: SpecificationEvolution{
			Original:  originalSpec,
			Effective: originalSpec,
		},
		Budget:    budget,
		Policy:    policy,
		Phase:     PhasePreparing,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// timeNow is a seam so tests can observe trajectory timestamping without
// depending on wall-clock time directly.
var timeNow = time.Now

// AppendObservation appends the next observation, enforcing the dense,
// strictly increasing sequence-number invariant (§3, §8).
func (t *Trajectory) AppendObservation(o Observation) {
	o.Sequence = len(t.Observations)
	t.Observations = append(t.Observations, o)
	t.UpdatedAt = timeNow()
}

// LastObservation returns the most recent observation, or nil if none.
func (t *Trajectory) LastObservation() *Observation {
	if len(t.Observations) == 0 {
		return nil
	}
	return &t.Observations[len(t.Observations)-1]
}

// BestObservation returns the observation with the highest convergence
// level seen so far, or nil if no observation carries metrics.
func (t *Trajectory) BestObservation() *Observation {
	var best *Observation
	for i := range t.Observations {
		m := t.Observations[i].Metrics
		if m == nil {
			continue
		}
		if best == nil || m.ConvergenceLevel > best.Metrics.ConvergenceLevel {
			best = &t.Observations[i]
		}
	}
	return best
}

// Window returns the last n observations (fewer if the trajectory is
// shorter), in chronological order.
func (t *Trajectory) Window(n int) []Observation {
	if n <= 0 || len(t.Observations) == 0 {
		return nil
	}
	start := len(t.Observations) - n
	if start < 0 {
		start = 0
	}
	return t.Observations[start:]
}

// AppendStrategyEntry records a strategy-log entry.
func (t *Trajectory) AppendStrategyEntry(e StrategyEntry) {
	t.StrategyLog = append(t.StrategyLog, e)
	t.UpdatedAt = timeNow()
}

// Outcome is the terminal result of a trajectory (§6).
type Outcome struct {
	Kind OutcomeKind

	// Converged payload.
	ArtifactRef  string
	Iterations   int
	TotalTokens  int

	// Exhausted/Trapped payload.
	BestArtifactRef string
	Attractor       *AttractorType
	Cycle           []string
}

// OutcomeKind discriminates the Outcome tagged union.
type OutcomeKind string

const (
	OutcomeConverged OutcomeKind = "converged"
	OutcomeExhausted OutcomeKind = "exhausted"
	OutcomeTrapped   OutcomeKind = "trapped"
)
