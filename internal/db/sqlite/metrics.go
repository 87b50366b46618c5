package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fluxtask/fluxtask/pkg/models"
)

// AppendMetric inserts one performance metric. Metrics are write-once
// facts; there is no update path.
func (s *Store) AppendMetric(ctx context.Context, m *models.PerformanceMetric) error {
	const query = `
		INSERT INTO ml_performance_metrics (
			id, user_id, task_id, predicted_score, actual_success,
			predicted_duration, actual_duration, category, timestamp_epoch
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.ExecContext(ctx, query,
		m.ID, m.UserID, m.TaskID, m.PredictedScore, boolToInt(m.ActualSuccess),
		nullFloat(m.PredictedDuration), nullFloat(m.ActualDuration),
		m.Category, m.Timestamp.UnixMilli())
	if err != nil {
		return fmt.Errorf("append metric: %w", err)
	}
	return nil
}

const metricColumns = `
	id, user_id, task_id, predicted_score, actual_success,
	predicted_duration, actual_duration, category, timestamp_epoch
`

// MetricsInWindow returns a user's metrics within [from, to), oldest first.
func (s *Store) MetricsInWindow(ctx context.Context, userID string, from, to time.Time) ([]*models.PerformanceMetric, error) {
	const query = `
		SELECT ` + metricColumns + `
		FROM ml_performance_metrics
		WHERE user_id = ? AND timestamp_epoch >= ? AND timestamp_epoch < ?
		ORDER BY timestamp_epoch ASC
	`
	rows, err := s.QueryContext(ctx, query, userID, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, err
	}
	return collectMetrics(rows)
}

// AllMetricsInWindow returns every user's metrics within [from, to), oldest first.
func (s *Store) AllMetricsInWindow(ctx context.Context, from, to time.Time) ([]*models.PerformanceMetric, error) {
	const query = `
		SELECT ` + metricColumns + `
		FROM ml_performance_metrics
		WHERE timestamp_epoch >= ? AND timestamp_epoch < ?
		ORDER BY timestamp_epoch ASC
	`
	rows, err := s.QueryContext(ctx, query, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, err
	}
	return collectMetrics(rows)
}

// RecentMetrics returns up to limit most recent metrics for a user,
// newest first. A non-empty category filters rows to that category.
func (s *Store) RecentMetrics(ctx context.Context, userID, category string, limit int) ([]*models.PerformanceMetric, error) {
	if limit <= 0 {
		limit = 100
	}
	var (
		rows *sql.Rows
		err  error
	)
	if category != "" {
		const query = `
			SELECT ` + metricColumns + `
			FROM ml_performance_metrics
			WHERE user_id = ? AND category = ?
			ORDER BY timestamp_epoch DESC
			LIMIT ?
		`
		rows, err = s.QueryContext(ctx, query, userID, category, limit)
	} else {
		const query = `
			SELECT ` + metricColumns + `
			FROM ml_performance_metrics
			WHERE user_id = ?
			ORDER BY timestamp_epoch DESC
			LIMIT ?
		`
		rows, err = s.QueryContext(ctx, query, userID, limit)
	}
	if err != nil {
		return nil, err
	}
	return collectMetrics(rows)
}

func collectMetrics(rows *sql.Rows) ([]*models.PerformanceMetric, error) {
	defer rows.Close()

	var metrics []*models.PerformanceMetric
	for rows.Next() {
		var (
			m           models.PerformanceMetric
			success     int
			predDur     sql.NullFloat64
			actDur      sql.NullFloat64
			epochMillis int64
		)
		if err := rows.Scan(&m.ID, &m.UserID, &m.TaskID, &m.PredictedScore,
			&success, &predDur, &actDur, &m.Category, &epochMillis); err != nil {
			return nil, err
		}
		m.ActualSuccess = success != 0
		if predDur.Valid {
			v := predDur.Float64
			m.PredictedDuration = &v
		}
		if actDur.Valid {
			v := actDur.Float64
			m.ActualDuration = &v
		}
		m.Timestamp = time.UnixMilli(epochMillis).UTC()
		metrics = append(metrics, &m)
	}
	return metrics, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
