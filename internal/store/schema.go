package store

// schema mirrors internal/storage/sqlite/schema.go's shape (CREATE TABLE IF
// NOT EXISTS plus covering indexes, JSON blob columns for nested structs)
// adapted to the trajectory domain: one row per trajectory with a full JSON
// snapshot, an append-only observations table for queryable deltas, a
// global bandit-posterior table, and an append-only event log.
const schema = `
CREATE TABLE IF NOT EXISTS trajectories (
    id TEXT PRIMARY KEY,
    task_id TEXT NOT NULL,
    goal_id TEXT NOT NULL,
    phase TEXT NOT NULL,
    complexity TEXT NOT NULL DEFAULT '',
    attractor_kind TEXT NOT NULL DEFAULT '',
    tags TEXT NOT NULL DEFAULT '[]',
    data TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_trajectories_phase ON trajectories(phase);
CREATE INDEX IF NOT EXISTS idx_trajectories_complexity ON trajectories(complexity);
CREATE INDEX IF NOT EXISTS idx_trajectories_task ON trajectories(task_id);

CREATE TABLE IF NOT EXISTS observations (
    trajectory_id TEXT NOT NULL,
    sequence INTEGER NOT NULL,
    convergence_delta REAL NOT NULL DEFAULT 0,
    convergence_level REAL NOT NULL DEFAULT 0,
    strategy TEXT NOT NULL DEFAULT '',
    data TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (trajectory_id, sequence),
    FOREIGN KEY (trajectory_id) REFERENCES trajectories(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_observations_trajectory ON observations(trajectory_id);

CREATE TABLE IF NOT EXISTS bandit_priors (
    attractor_kind TEXT NOT NULL,
    strategy_kind TEXT NOT NULL,
    alpha REAL NOT NULL,
    beta REAL NOT NULL,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (attractor_kind, strategy_kind)
);

CREATE TABLE IF NOT EXISTS trajectory_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    trajectory_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    payload TEXT NOT NULL DEFAULT '{}',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_trajectory_events_trajectory ON trajectory_events(trajectory_id);
CREATE INDEX IF NOT EXISTS idx_trajectory_events_type ON trajectory_events(event_type);
`
