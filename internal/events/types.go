// Package events defines the Convergence Engine's output events (spec.md
// §6 Outputs) and the bus interface that accepts them. Grounded on
// internal/events/types.go's EventType-const-block-plus-typed-payload-struct
// pattern, trimmed from ~60 issue-tracker event types down to the dozen
// lifecycle/per-iteration/intervention events spec.md §6 names.
package events

import "time"

// Type is the discriminant for a trajectory lifecycle event.
type Type string

const (
	// Lifecycle events (§6).
	TypeTrajectoryStarted   Type = "trajectory_started"
	TypeTrajectoryConverged Type = "trajectory_converged"
	TypeTrajectoryExhausted Type = "trajectory_exhausted"
	TypeTrajectoryTrapped   Type = "trajectory_trapped"

	// Per-iteration events (§6).
	TypeStrategySelected    Type = "strategy_selected"
	TypeObservationRecorded Type = "observation_recorded"
	TypeAttractorClassified Type = "attractor_classified"

	// Intervention events (§6).
	TypeContextDegradationDetected      Type = "context_degradation_detected"
	TypeBudgetExtensionRequested        Type = "budget_extension_requested"
	TypeSpecificationAmbiguityDetected  Type = "specification_ambiguity_detected"
	TypeDecompositionRecommended        Type = "decomposition_recommended"
	TypeHumanEscalationRequired         Type = "human_escalation_required"
)

// Event is one emission from the engine: a typed payload plus routing
// metadata, mirroring AgentEvent's identity/timestamp envelope around a
// type-specific Data payload.
type Event struct {
	TrajectoryID string
	Type         Type
	Timestamp    time.Time
	Payload      interface{}
}

// TrajectoryStartedPayload fires once a trajectory enters the Iterating
// phase after SETUP/PREPARE.
type TrajectoryStartedPayload struct {
	TaskID string
	GoalID string
}

// TrajectoryConvergedPayload is the Converged outcome contract (§6).
type TrajectoryConvergedPayload struct {
	ArtifactRef string
	Iterations  int
	TotalTokens int
}

// TrajectoryExhaustedPayload is the Exhausted outcome contract (§6).
type TrajectoryExhaustedPayload struct {
	BestArtifactRef string
	AttractorKind   string
}

// TrajectoryTrappedPayload is the Trapped outcome contract (§6).
type TrajectoryTrappedPayload struct {
	Cycle           []string
	BestArtifactRef string
}

// StrategySelectedPayload fires once per iteration after the bandit picks
// a strategy (§6: "StrategySelected{strategy, attractor, budget_remaining}").
type StrategySelectedPayload struct {
	Strategy        string
	Attractor       string
	BudgetRemaining float64
}

// ObservationRecordedPayload fires once per iteration after an observation
// is appended (§6).
type ObservationRecordedPayload struct {
	Sequence        int
	Delta           float64
	Level           float64
	BudgetRemaining float64
}

// AttractorClassifiedPayload fires once per iteration after classification
// (§6).
type AttractorClassifiedPayload struct {
	Type       string
	Confidence float64
}

// ContextDegradationDetectedPayload fires when the Context-Health Monitor
// forces a FreshStart (§6, §4.5).
type ContextDegradationDetectedPayload struct {
	SignalToNoise float64
	Reason        string
}

// BudgetExtensionRequestedPayload fires when the engine requests more
// budget (§6, §4.6).
type BudgetExtensionRequestedPayload struct {
	Current   float64
	Requested float64
	Evidence  string
}

// SpecificationAmbiguityDetectedPayload fires when PREPARE finds
// contradicting acceptance criteria (§6, §4.7).
type SpecificationAmbiguityDetectedPayload struct {
	Contradictions []string
	Clarifications []string
}

// DecompositionRecommendedPayload fires when the Decomposition Coordinator
// declines to auto-apply but still surfaces the opportunity (§6, §4.8, §8
// scenario 4).
type DecompositionRecommendedPayload struct {
	SubtaskCount    int
	SavingsEstimate float64
}

// HumanEscalationRequiredPayload fires when a Trapped or Exhausted
// trajectory needs operator attention (§6, supplemented from
// internal/gates.go's recovery trichotomy).
type HumanEscalationRequiredPayload struct {
	Context string
	Action  string
}
