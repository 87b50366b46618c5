package gorm

import (
	"context"
	"fmt"
	"time"

	"github.com/fluxtask/fluxtask/pkg/models"
)

// AppendMetric inserts one performance metric. Metrics are write-once
// facts; there is no update path.
func (s *Store) AppendMetric(ctx context.Context, m *models.PerformanceMetric) error {
	if err := s.DB.WithContext(ctx).Create(toMetricRow(m)).Error; err != nil {
		return fmt.Errorf("append metric: %w", err)
	}
	return nil
}

// MetricsInWindow returns a user's metrics within [from, to), oldest first.
func (s *Store) MetricsInWindow(ctx context.Context, userID string, from, to time.Time) ([]*models.PerformanceMetric, error) {
	var rows []MetricRow
	err := s.DB.WithContext(ctx).
		Where("user_id = ? AND timestamp_epoch >= ? AND timestamp_epoch < ?",
			userID, from.UnixMilli(), to.UnixMilli()).
		Order("timestamp_epoch ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("metrics in window: %w", err)
	}
	return toMetricModels(rows), nil
}

// AllMetricsInWindow returns every user's metrics within [from, to), oldest first.
func (s *Store) AllMetricsInWindow(ctx context.Context, from, to time.Time) ([]*models.PerformanceMetric, error) {
	var rows []MetricRow
	err := s.DB.WithContext(ctx).
		Where("timestamp_epoch >= ? AND timestamp_epoch < ?", from.UnixMilli(), to.UnixMilli()).
		Order("timestamp_epoch ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("all metrics in window: %w", err)
	}
	return toMetricModels(rows), nil
}

// RecentMetrics returns up to limit most recent metrics for a user,
// newest first. A non-empty category filters rows to that category.
func (s *Store) RecentMetrics(ctx context.Context, userID, category string, limit int) ([]*models.PerformanceMetric, error) {
	if limit <= 0 {
		limit = 100
	}
	q := s.DB.WithContext(ctx).Where("user_id = ?", userID)
	if category != "" {
		q = q.Where("category = ?", category)
	}
	var rows []MetricRow
	err := q.Order("timestamp_epoch DESC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("recent metrics: %w", err)
	}
	return toMetricModels(rows), nil
}

func toMetricModels(rows []MetricRow) []*models.PerformanceMetric {
	metrics := make([]*models.PerformanceMetric, 0, len(rows))
	for i := range rows {
		metrics = append(metrics, rows[i].toModel())
	}
	return metrics
}
