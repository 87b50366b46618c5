package gorm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fluxtask/fluxtask/internal/db"
	"github.com/fluxtask/fluxtask/pkg/models"
)

// GetWeights returns the stored weight vector for a user.
func (s *Store) GetWeights(ctx context.Context, userID string) (*models.UserWeights, error) {
	var row WeightRow
	err := s.DB.WithContext(ctx).First(&row, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get weights: %w", err)
	}
	return row.toModel(), nil
}

// AllWeights returns every stored weight vector.
func (s *Store) AllWeights(ctx context.Context) ([]*models.UserWeights, error) {
	var rows []WeightRow
	if err := s.DB.WithContext(ctx).Order("user_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("all weights: %w", err)
	}
	all := make([]*models.UserWeights, 0, len(rows))
	for i := range rows {
		all = append(all, rows[i].toModel())
	}
	return all, nil
}

// UpsertWeights persists the vector with create-if-absent semantics. A
// non-zero expected timestamp turns the write into an optimistic
// compare-and-swap against last_updated_epoch.
func (s *Store) UpsertWeights(ctx context.Context, w *models.UserWeights, expected time.Time) error {
	row := toWeightRow(w)

	if !expected.IsZero() {
		result := s.DB.WithContext(ctx).
			Model(&WeightRow{}).
			Where("user_id = ? AND last_updated_epoch = ?", w.UserID, expected.UnixMilli()).
			Updates(map[string]interface{}{
				"hourly_weights":         row.HourlyWeights,
				"daily_weights":          row.DailyWeights,
				"category_weights":       row.CategoryWeights,
				"task_success_rates":     row.TaskSuccessRates,
				"category_success_rates": row.CategorySuccessRates,
				"category_avg_duration":  row.CategoryAvgDuration,
				"alpha":                  row.Alpha,
				"last_updated_epoch":     row.LastUpdatedEpoch,
			})
		if result.Error != nil {
			return fmt.Errorf("cas update weights: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return db.ErrConflict
		}
		return nil
	}

	err := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			UpdateAll: true,
		}).
		Create(row).Error
	if err != nil {
		return fmt.Errorf("upsert weights: %w", err)
	}
	return nil
}

// AllUserIDs enumerates users known to the engine (those with a stored
// weight vector). Satisfies db.UserRepository.
func (s *Store) AllUserIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.DB.WithContext(ctx).
		Model(&WeightRow{}).
		Order("user_id").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("all user ids: %w", err)
	}
	return ids, nil
}
