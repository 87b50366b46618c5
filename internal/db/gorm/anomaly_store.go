package gorm

import (
	"context"
	"fmt"
	"time"

	"github.com/fluxtask/fluxtask/pkg/models"
)

// AppendAnomaly inserts one anomaly record into the audit trail.
func (s *Store) AppendAnomaly(ctx context.Context, a *models.AnomalyRecord) error {
	row := &AnomalyRow{
		ID:             a.ID,
		UserID:         a.UserID,
		TimestampEpoch: a.Timestamp.UnixMilli(),
		Type:           string(a.Type),
		Metric:         a.Metric,
		Expected:       a.Expected,
		Actual:         a.Actual,
		ZScore:         a.ZScore,
		Description:    a.Description,
	}
	if err := s.DB.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("append anomaly: %w", err)
	}
	return nil
}

// RecentAnomalies returns up to limit most recent anomalies for a user.
func (s *Store) RecentAnomalies(ctx context.Context, userID string, limit int) ([]*models.AnomalyRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []AnomalyRow
	err := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("timestamp_epoch DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("recent anomalies: %w", err)
	}

	anomalies := make([]*models.AnomalyRecord, 0, len(rows))
	for i := range rows {
		r := &rows[i]
		anomalies = append(anomalies, &models.AnomalyRecord{
			ID:          r.ID,
			UserID:      r.UserID,
			Timestamp:   time.UnixMilli(r.TimestampEpoch).UTC(),
			Type:        models.AnomalyType(r.Type),
			Metric:      r.Metric,
			Expected:    r.Expected,
			Actual:      r.Actual,
			ZScore:      r.ZScore,
			Description: r.Description,
		})
	}
	return anomalies, nil
}
