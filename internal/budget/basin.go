package budget

import (
	"strings"

	"github.com/abathur-ai/abathur/internal/types"
)

// BasinInput is the raw material for basin-width estimation: the task
// submission's specification-quality signals plus the historical
// convergence rate for similar tasks (supplied by the Trajectory Store's
// similarity search).
type BasinInput struct {
	Task                  types.TaskSubmission
	HistoricalConvergenceRate float64
	HistoricalSampleSize  int
}

const (
	specSignalBase = 0.5

	wideWordCountFloor = 5
	tightWordCountCap  = 400

	specWeight       = 0.6
	historicalWeight = 0.4
)

// EstimateBasin derives a BasinEstimate from specification-quality signals
// blended with the historical convergence rate for similar tasks (§4.6).
func EstimateBasin(input BasinInput) types.BasinEstimate {
	signal := specSignal(input.Task)

	score := signal
	if input.HistoricalSampleSize > 0 {
		score = specWeight*signal + historicalWeight*input.HistoricalConvergenceRate
	}
	score = clamp01(score)

	return types.BasinEstimate{
		Score:          score,
		Classification: classify(score),
		SpecSignal:     signal,
		HistoricalRate: input.HistoricalConvergenceRate,
		SampleSize:     input.HistoricalSampleSize,
	}
}

// specSignal implements §4.6's additive signal table plus word-count
// penalties at the extremes.
func specSignal(task types.TaskSubmission) float64 {
	signal := specSignalBase
	if len(task.AcceptanceTests) > 0 {
		signal += 0.15
	}
	if len(task.Examples) > 0 {
		signal += 0.10
	}
	if len(task.Invariants) > 0 {
		signal += 0.10
	}
	if len(task.AntiExamples) > 0 {
		signal += 0.05
	}
	if len(task.ContextFiles) > 0 {
		signal += 0.05
	}

	words := len(strings.Fields(task.Description))
	switch {
	case words < wideWordCountFloor:
		// A near-empty description gives the model almost nothing to
		// converge toward: penalise as if no quality signals were present.
		signal -= 0.20
	case words > tightWordCountCap:
		// An overlong description usually means the task is under-scoped
		// rather than well-specified; a smaller penalty than the sparse case.
		signal -= 0.10
	}

	return clamp01(signal)
}

func classify(score float64) types.BasinClassification {
	switch {
	case score > 0.7:
		return types.BasinWide
	case score > 0.4:
		return types.BasinModerate
	default:
		return types.BasinNarrow
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
