package store

import (
	"context"
	"fmt"
)

// ComplexityMetrics rolls up trajectory outcomes for one complexity bucket,
// mirroring internal/iterative/metrics.go's TypeMetrics shape.
type ComplexityMetrics struct {
	Count          int
	ConvergedCount int
	MeanIterations float64
}

// AttractorMetrics rolls up how often each attractor kind was the
// trajectory's terminal classification.
type AttractorMetrics struct {
	Count int
}

// AggregateMetrics is the Trajectory Store's rollup query (§4 supplemented
// features: "bucketed by task complexity and attractor kind, mirroring the
// teacher's ByType/ByPriority/ByComplexity breakdowns").
type AggregateMetrics struct {
	TotalTrajectories int
	ByComplexity      map[string]*ComplexityMetrics
	ByAttractorKind   map[string]*AttractorMetrics
}

// Aggregate computes the rollup across every persisted trajectory.
func (s *Store) Aggregate(ctx context.Context) (*AggregateMetrics, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.complexity, t.phase, t.attractor_kind,
		       (SELECT COUNT(*) FROM observations o WHERE o.trajectory_id = t.id) AS iterations
		FROM trajectories t
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query aggregate metrics: %w", err)
	}
	defer rows.Close()

	agg := &AggregateMetrics{
		ByComplexity:    make(map[string]*ComplexityMetrics),
		ByAttractorKind: make(map[string]*AttractorMetrics),
	}

	for rows.Next() {
		var complexity, phase, attractorKind string
		var iterations int
		if err := rows.Scan(&complexity, &phase, &attractorKind, &iterations); err != nil {
			return nil, fmt.Errorf("failed to scan aggregate row: %w", err)
		}

		agg.TotalTrajectories++

		cm, ok := agg.ByComplexity[complexity]
		if !ok {
			cm = &ComplexityMetrics{}
			agg.ByComplexity[complexity] = cm
		}
		cm.Count++
		if phase == "converged" {
			cm.ConvergedCount++
		}
		cm.MeanIterations += (float64(iterations) - cm.MeanIterations) / float64(cm.Count)

		if attractorKind != "" {
			am, ok := agg.ByAttractorKind[attractorKind]
			if !ok {
				am = &AttractorMetrics{}
				agg.ByAttractorKind[attractorKind] = am
			}
			am.Count++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating aggregate rows: %w", err)
	}
	return agg, nil
}
