package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/abathur-ai/abathur/internal/types"
)

// Save persists a trajectory as a full JSON snapshot (the same
// blob-column-plus-queryable-index-columns shape
// internal/storage/sqlite/schema.go uses for agent_events.data), alongside
// the per-observation rows used for aggregate queries. task carries the
// complexity/tags used for similarity search; they are not part of the
// Trajectory aggregate itself.
func (s *Store) Save(ctx context.Context, traj *types.Trajectory, task types.TaskSubmission) error {
	data, err := json.Marshal(traj)
	if err != nil {
		return fmt.Errorf("failed to marshal trajectory: %w", err)
	}
	tags, err := json.Marshal(task.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO trajectories (id, task_id, goal_id, phase, complexity, attractor_kind, tags, data, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			phase = excluded.phase,
			attractor_kind = excluded.attractor_kind,
			data = excluded.data,
			updated_at = CURRENT_TIMESTAMP
	`, traj.ID, traj.TaskID, traj.GoalID, string(traj.Phase), string(task.Complexity), string(traj.Attractor.Type.Kind), string(tags), string(data))
	if err != nil {
		return fmt.Errorf("failed to upsert trajectory: %w", err)
	}

	for _, o := range traj.Observations {
		obsData, err := json.Marshal(o)
		if err != nil {
			return fmt.Errorf("failed to marshal observation %d: %w", o.Sequence, err)
		}
		level, delta := 0.0, 0.0
		if o.Metrics != nil {
			level, delta = o.Metrics.ConvergenceLevel, o.Metrics.ConvergenceDelta
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO observations (trajectory_id, sequence, convergence_delta, convergence_level, strategy, data)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(trajectory_id, sequence) DO UPDATE SET
				convergence_delta = excluded.convergence_delta,
				convergence_level = excluded.convergence_level,
				data = excluded.data
		`, traj.ID, o.Sequence, delta, level, string(o.Strategy), string(obsData))
		if err != nil {
			return fmt.Errorf("failed to upsert observation %d: %w", o.Sequence, err)
		}
	}

	return tx.Commit()
}

// Load reconstructs a trajectory by ID from its JSON snapshot.
func (s *Store) Load(ctx context.Context, id string) (*types.Trajectory, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM trajectories WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("trajectory %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load trajectory: %w", err)
	}

	var traj types.Trajectory
	if err := json.Unmarshal([]byte(data), &traj); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trajectory: %w", err)
	}
	return &traj, nil
}

// similarRow is the coarse candidate set pulled from SQL before the
// in-process tag-overlap scoring pass.
type similarRow struct {
	trajectory types.Trajectory
	tags       []string
}

// Similar returns up to limit trajectories of the same complexity, ranked
// by tag overlap with task, most similar first. Used by the Budget & Basin
// component's historical-convergence-rate signal (§4.6) and by the
// convergence-cost estimate (§4.6, used by the Decomposition Coordinator).
func (s *Store) Similar(ctx context.Context, task types.TaskSubmission, limit int) ([]types.Trajectory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data, tags FROM trajectories
		WHERE complexity = ? AND phase IN ('converged', 'exhausted', 'trapped')
		ORDER BY updated_at DESC
		LIMIT 500
	`, string(task.Complexity))
	if err != nil {
		return nil, fmt.Errorf("failed to query similar trajectories: %w", err)
	}
	defer rows.Close()

	var candidates []similarRow
	for rows.Next() {
		var data, tagsJSON string
		if err := rows.Scan(&data, &tagsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan trajectory row: %w", err)
		}
		var traj types.Trajectory
		if err := json.Unmarshal([]byte(data), &traj); err != nil {
			return nil, fmt.Errorf("failed to unmarshal trajectory: %w", err)
		}
		var tags []string
		if err := json.Unmarshal([]byte(tagsJSON), &tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
		candidates = append(candidates, similarRow{trajectory: traj, tags: tags})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating similar trajectories: %w", err)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return tagOverlap(task.Tags, candidates[i].tags) > tagOverlap(task.Tags, candidates[j].tags)
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]types.Trajectory, len(candidates))
	for i, c := range candidates {
		out[i] = c.trajectory
	}
	return out, nil
}

func tagOverlap(a, b []string) int {
	set := make(map[string]bool, len(b))
	for _, t := range b {
		set[strings.ToLower(t)] = true
	}
	count := 0
	for _, t := range a {
		if set[strings.ToLower(t)] {
			count++
		}
	}
	return count
}
