package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/fluxtask/fluxtask/pkg/models"
)

// AppendAnomaly inserts one anomaly record into the audit trail.
func (s *Store) AppendAnomaly(ctx context.Context, a *models.AnomalyRecord) error {
	const query = `
		INSERT INTO ml_anomalies (
			id, user_id, timestamp_epoch, type, metric,
			expected, actual, z_score, description
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.ExecContext(ctx, query,
		a.ID, a.UserID, a.Timestamp.UnixMilli(), string(a.Type), a.Metric,
		a.Expected, a.Actual, a.ZScore, a.Description)
	if err != nil {
		return fmt.Errorf("append anomaly: %w", err)
	}
	return nil
}

// RecentAnomalies returns up to limit most recent anomalies for a user.
func (s *Store) RecentAnomalies(ctx context.Context, userID string, limit int) ([]*models.AnomalyRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT id, user_id, timestamp_epoch, type, metric,
		       expected, actual, z_score, description
		FROM ml_anomalies
		WHERE user_id = ?
		ORDER BY timestamp_epoch DESC
		LIMIT ?
	`
	rows, err := s.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var anomalies []*models.AnomalyRecord
	for rows.Next() {
		var (
			a           models.AnomalyRecord
			epochMillis int64
			kind        string
		)
		if err := rows.Scan(&a.ID, &a.UserID, &epochMillis, &kind, &a.Metric,
			&a.Expected, &a.Actual, &a.ZScore, &a.Description); err != nil {
			return nil, err
		}
		a.Timestamp = time.UnixMilli(epochMillis).UTC()
		a.Type = models.AnomalyType(kind)
		anomalies = append(anomalies, &a)
	}
	return anomalies, rows.Err()
}
