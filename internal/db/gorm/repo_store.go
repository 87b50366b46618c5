package gorm

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fluxtask/fluxtask/internal/db"
	"github.com/fluxtask/fluxtask/pkg/models"
)

// UpsertTask creates or replaces a task mirror row.
func (s *Store) UpsertTask(ctx context.Context, t *models.Task) error {
	err := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(toTaskRow(t)).Error
	if err != nil {
		return fmt.Errorf("upsert task: %w", err)
	}
	return nil
}

// MarkTaskCompleted flips the completed flag on a task.
func (s *Store) MarkTaskCompleted(ctx context.Context, id string, completed bool) error {
	flag := 0
	if completed {
		flag = 1
	}
	result := s.DB.WithContext(ctx).
		Model(&TaskRow{}).
		Where("id = ?", id).
		Update("completed", flag)
	if result.Error != nil {
		return fmt.Errorf("mark task completed: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return db.ErrNotFound
	}
	return nil
}

// IncompleteTasks returns a user's incomplete tasks.
func (s *Store) IncompleteTasks(ctx context.Context, userID string) ([]*models.Task, error) {
	var rows []TaskRow
	err := s.DB.WithContext(ctx).
		Where("user_id = ? AND completed = 0", userID).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("incomplete tasks: %w", err)
	}
	tasks := make([]*models.Task, 0, len(rows))
	for i := range rows {
		tasks = append(tasks, rows[i].toModel())
	}
	return tasks, nil
}

// TaskByID returns one task by id.
func (s *Store) TaskByID(ctx context.Context, id string) (*models.Task, error) {
	var row TaskRow
	err := s.DB.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("task by id: %w", err)
	}
	return row.toModel(), nil
}

// UpsertHabit creates or replaces a habit mirror row.
func (s *Store) UpsertHabit(ctx context.Context, h *models.Habit) error {
	row := &HabitRow{
		ID:        h.ID,
		UserID:    h.UserID,
		Name:      h.Name,
		Category:  h.Category,
		Frequency: string(h.Frequency),
	}
	err := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(row).Error
	if err != nil {
		return fmt.Errorf("upsert habit: %w", err)
	}
	return nil
}

// HabitsForUser returns a user's habits.
func (s *Store) HabitsForUser(ctx context.Context, userID string) ([]*models.Habit, error) {
	var rows []HabitRow
	err := s.DB.WithContext(ctx).Where("user_id = ?", userID).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("habits for user: %w", err)
	}
	habits := make([]*models.Habit, 0, len(rows))
	for _, r := range rows {
		habits = append(habits, &models.Habit{
			ID:        r.ID,
			UserID:    r.UserID,
			Name:      r.Name,
			Category:  r.Category,
			Frequency: models.HabitFrequency(r.Frequency),
		})
	}
	return habits, nil
}
