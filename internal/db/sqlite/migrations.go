package sqlite

import (
	"context"
	"fmt"
)

// migrations are applied in order; the schema version is tracked with
// PRAGMA user_version so re-opening an existing database is a no-op.
var migrations = []string{
	// 1: learned weight vectors, one row per user
	`CREATE TABLE IF NOT EXISTS ml_weights (
		user_id TEXT PRIMARY KEY,
		hourly_weights TEXT NOT NULL DEFAULT '{}',
		daily_weights TEXT NOT NULL DEFAULT '{}',
		category_weights TEXT NOT NULL DEFAULT '{}',
		task_success_rates TEXT NOT NULL DEFAULT '{}',
		category_success_rates TEXT NOT NULL DEFAULT '{}',
		category_avg_duration TEXT NOT NULL DEFAULT '{}',
		alpha REAL NOT NULL DEFAULT 0.2,
		last_updated_epoch INTEGER NOT NULL DEFAULT 0
	)`,

	// 2: append-only performance metrics
	`CREATE TABLE IF NOT EXISTS ml_performance_metrics (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		task_id TEXT NOT NULL,
		predicted_score REAL NOT NULL,
		actual_success INTEGER NOT NULL,
		predicted_duration REAL,
		actual_duration REAL,
		category TEXT NOT NULL DEFAULT '',
		timestamp_epoch INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_metrics_user_ts
		ON ml_performance_metrics(user_id, timestamp_epoch DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_metrics_ts
		ON ml_performance_metrics(timestamp_epoch)`,

	// 3: experiments
	`CREATE TABLE IF NOT EXISTS ml_experiments (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		start_epoch INTEGER NOT NULL,
		end_epoch INTEGER NOT NULL,
		parameters TEXT NOT NULL DEFAULT '{}',
		metrics TEXT NOT NULL DEFAULT '{}',
		active INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE INDEX IF NOT EXISTS idx_experiments_active
		ON ml_experiments(active, start_epoch)`,

	// 4: append-only anomaly audit trail
	`CREATE TABLE IF NOT EXISTS ml_anomalies (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		timestamp_epoch INTEGER NOT NULL,
		type TEXT NOT NULL,
		metric TEXT NOT NULL,
		expected REAL NOT NULL,
		actual REAL NOT NULL,
		z_score REAL NOT NULL,
		description TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_anomalies_user_ts
		ON ml_anomalies(user_id, timestamp_epoch DESC)`,

	// 5: directional user similarities, replaced wholesale per subject
	`CREATE TABLE IF NOT EXISTS user_similarities (
		user_id TEXT NOT NULL,
		other_user_id TEXT NOT NULL,
		score REAL NOT NULL,
		updated_at_epoch INTEGER NOT NULL,
		PRIMARY KEY (user_id, other_user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_similarities_score
		ON user_similarities(user_id, score DESC)`,

	// 6: task and habit mirrors consumed by the scoring repositories
	`CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		due_epoch INTEGER,
		created_epoch INTEGER,
		has_subtasks INTEGER NOT NULL DEFAULT 0,
		completed INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_user
		ON tasks(user_id, completed)`,
	`CREATE TABLE IF NOT EXISTS habits (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		frequency TEXT NOT NULL DEFAULT 'custom'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_habits_user
		ON habits(user_id)`,
}

// migrate applies any migrations newer than the stored schema version.
func (s *Store) migrate(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i := version; i < len(migrations); i++ {
		if _, err := s.db.ExecContext(ctx, migrations[i]); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}

	if version < len(migrations) {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", len(migrations))); err != nil {
			return fmt.Errorf("store schema version: %w", err)
		}
	}
	return nil
}
