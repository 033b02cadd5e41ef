package events

import "time"

func New(trajectoryID string, typ Type, payload interface{}) Event {
	return Event{
		TrajectoryID: trajectoryID,
		Type:         typ,
		Timestamp:    time.Now(),
		Payload:      payload,
	}
}

func TrajectoryStarted(trajectoryID, taskID, goalID string) Event {
	return New(trajectoryID, TypeTrajectoryStarted, TrajectoryStartedPayload{TaskID: taskID, GoalID: goalID})
}

func TrajectoryConverged(trajectoryID, artifactRef string, iterations, totalTokens int) Event {
	return New(trajectoryID, TypeTrajectoryConverged, TrajectoryConvergedPayload{
		ArtifactRef: artifactRef,
		Iterations:  iterations,
		TotalTokens: totalTokens,
	})
}

func TrajectoryExhausted(trajectoryID, bestArtifactRef, attractorKind string) Event {
	return New(trajectoryID, TypeTrajectoryExhausted, TrajectoryExhaustedPayload{
		BestArtifactRef: bestArtifactRef,
		AttractorKind:   attractorKind,
	})
}

func TrajectoryTrapped(trajectoryID string, cycle []string, bestArtifactRef string) Event {
	return New(trajectoryID, TypeTrajectoryTrapped, TrajectoryTrappedPayload{
		Cycle:           cycle,
		BestArtifactRef: bestArtifactRef,
	})
}

func StrategySelected(trajectoryID, strategy, attractor string, budgetRemaining float64) Event {
	return New(trajectoryID, TypeStrategySelected, StrategySelectedPayload{
		Strategy:        strategy,
		Attractor:       attractor,
		BudgetRemaining: budgetRemaining,
	})
}

func ObservationRecorded(trajectoryID string, sequence int, delta, level, budgetRemaining float64) Event {
	return New(trajectoryID, TypeObservationRecorded, ObservationRecordedPayload{
		Sequence:        sequence,
		Delta:           delta,
		Level:           level,
		BudgetRemaining: budgetRemaining,
	})
}

func AttractorClassified(trajectoryID, attractorType string, confidence float64) Event {
	return New(trajectoryID, TypeAttractorClassified, AttractorClassifiedPayload{
		Type:       attractorType,
		Confidence: confidence,
	})
}

func ContextDegradationDetected(trajectoryID string, signalToNoise float64, reason string) Event {
	return New(trajectoryID, TypeContextDegradationDetected, ContextDegradationDetectedPayload{
		SignalToNoise: signalToNoise,
		Reason:        reason,
	})
}

func BudgetExtensionRequested(trajectoryID string, current, requested float64, evidence string) Event {
	return New(trajectoryID, TypeBudgetExtensionRequested, BudgetExtensionRequestedPayload{
		Current:   current,
		Requested: requested,
		Evidence:  evidence,
	})
}

func SpecificationAmbiguityDetected(trajectoryID string, contradictions, clarifications []string) Event {
	return New(trajectoryID, TypeSpecificationAmbiguityDetected, SpecificationAmbiguityDetectedPayload{
		Contradictions: contradictions,
		Clarifications: clarifications,
	})
}

func DecompositionRecommended(trajectoryID string, subtaskCount int, savingsEstimate float64) Event {
	return New(trajectoryID, TypeDecompositionRecommended, DecompositionRecommendedPayload{
		SubtaskCount:    subtaskCount,
		SavingsEstimate: savingsEstimate,
	})
}

func HumanEscalationRequired(trajectoryID, context, action string) Event {
	return New(trajectoryID, TypeHumanEscalationRequired, HumanEscalationRequiredPayload{
		Context: context,
		Action:  action,
	})
}
