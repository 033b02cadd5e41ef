package store

import (
	"context"
	"fmt"

	"github.com/abathur-ai/abathur/internal/bandit"
	"github.com/abathur-ai/abathur/internal/types"
)

// SaveBanditPriors persists the Strategy Bandit's posteriors, keyed flat by
// (attractor_kind, strategy_kind) per §9's "flat mapping ... -> Beta(a,b)",
// global across all trajectories rather than scoped to one.
func (s *Store) SaveBanditPriors(ctx context.Context, priors map[bandit.Key]bandit.Posterior) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for key, p := range priors {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO bandit_priors (attractor_kind, strategy_kind, alpha, beta, updated_at)
			VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(attractor_kind, strategy_kind) DO UPDATE SET
				alpha = excluded.alpha,
				beta = excluded.beta,
				updated_at = CURRENT_TIMESTAMP
		`, string(key.Attractor), string(key.Strategy), p.Alpha, p.Beta)
		if err != nil {
			return fmt.Errorf("failed to upsert prior for %s/%s: %w", key.Attractor, key.Strategy, err)
		}
	}
	return tx.Commit()
}

// LoadBanditPriors reads the persisted posteriors back into a map suitable
// for Bandit.LoadPriors at engine init.
func (s *Store) LoadBanditPriors(ctx context.Context) (map[bandit.Key]bandit.Posterior, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT attractor_kind, strategy_kind, alpha, beta FROM bandit_priors`)
	if err != nil {
		return nil, fmt.Errorf("failed to query bandit priors: %w", err)
	}
	defer rows.Close()

	priors := make(map[bandit.Key]bandit.Posterior)
	for rows.Next() {
		var attractor, strategy string
		var p bandit.Posterior
		if err := rows.Scan(&attractor, &strategy, &p.Alpha, &p.Beta); err != nil {
			return nil, fmt.Errorf("failed to scan bandit prior: %w", err)
		}
		priors[bandit.Key{Attractor: types.AttractorKind(attractor), Strategy: types.StrategyKind(strategy)}] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating bandit priors: %w", err)
	}
	return priors, nil
}
