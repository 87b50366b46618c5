package gorm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/fluxtask/fluxtask/internal/db"
	"github.com/fluxtask/fluxtask/pkg/models"
)

// CreateExperiment stores a new experiment configuration.
func (s *Store) CreateExperiment(ctx context.Context, e *models.ExperimentConfig) error {
	if err := s.DB.WithContext(ctx).Create(toExperimentRow(e)).Error; err != nil {
		return fmt.Errorf("create experiment: %w", err)
	}
	return nil
}

// GetExperiment returns one experiment by id.
func (s *Store) GetExperiment(ctx context.Context, id string) (*models.ExperimentConfig, error) {
	var row ExperimentRow
	err := s.DB.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get experiment: %w", err)
	}
	return row.toModel(), nil
}

// ActiveExperiments returns experiments whose window contains now and
// whose active flag is set, oldest first.
func (s *Store) ActiveExperiments(ctx context.Context, now time.Time) ([]*models.ExperimentConfig, error) {
	millis := now.UnixMilli()
	var rows []ExperimentRow
	err := s.DB.WithContext(ctx).
		Where("active = 1 AND start_epoch <= ? AND end_epoch > ?", millis, millis).
		Order("start_epoch ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("active experiments: %w", err)
	}
	return toExperimentModels(rows), nil
}

// ListExperiments returns all experiments, newest first.
func (s *Store) ListExperiments(ctx context.Context) ([]*models.ExperimentConfig, error) {
	var rows []ExperimentRow
	err := s.DB.WithContext(ctx).Order("start_epoch DESC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list experiments: %w", err)
	}
	return toExperimentModels(rows), nil
}

// UpdateExperiment overwrites the metrics map and active flag. The
// metrics map replaces the stored one wholesale; it is never merged.
func (s *Store) UpdateExperiment(ctx context.Context, e *models.ExperimentConfig) error {
	row := toExperimentRow(e)
	result := s.DB.WithContext(ctx).
		Model(&ExperimentRow{}).
		Where("id = ?", e.ID).
		Updates(map[string]interface{}{
			"metrics": row.Metrics,
			"active":  row.Active,
		})
	if result.Error != nil {
		return fmt.Errorf("update experiment: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return db.ErrNotFound
	}
	return nil
}

func toExperimentModels(rows []ExperimentRow) []*models.ExperimentConfig {
	experiments := make([]*models.ExperimentConfig, 0, len(rows))
	for i := range rows {
		experiments = append(experiments, rows[i].toModel())
	}
	return experiments
}
