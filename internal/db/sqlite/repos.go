package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fluxtask/fluxtask/internal/db"
	"github.com/fluxtask/fluxtask/pkg/models"
)

// The engine treats tasks and habits as externally owned; these tables
// are a synced mirror maintained through UpsertTask/UpsertHabit so the
// worker can serve scoring requests without the main app backend.

// UpsertTask creates or replaces a task row.
func (s *Store) UpsertTask(ctx context.Context, t *models.Task) error {
	const query = `
		INSERT INTO tasks (id, user_id, title, description, category,
		                   due_epoch, created_epoch, has_subtasks, completed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			title = excluded.title,
			description = excluded.description,
			category = excluded.category,
			due_epoch = excluded.due_epoch,
			created_epoch = excluded.created_epoch,
			has_subtasks = excluded.has_subtasks,
			completed = excluded.completed
	`
	_, err := s.ExecContext(ctx, query,
		t.ID, t.UserID, t.Title, t.Description, t.Category,
		nullEpoch(t.DueDate), nullEpoch(t.CreatedAt),
		boolToInt(t.HasSubtasks), boolToInt(t.Completed))
	if err != nil {
		return fmt.Errorf("upsert task: %w", err)
	}
	return nil
}

// MarkTaskCompleted flips the completed flag on a task.
func (s *Store) MarkTaskCompleted(ctx context.Context, id string, completed bool) error {
	res, err := s.ExecContext(ctx,
		"UPDATE tasks SET completed = ? WHERE id = ?", boolToInt(completed), id)
	if err != nil {
		return fmt.Errorf("mark task completed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return db.ErrNotFound
	}
	return nil
}

const taskColumns = `id, user_id, title, description, category, due_epoch, created_epoch, has_subtasks, completed`

// IncompleteTasks returns a user's incomplete tasks.
func (s *Store) IncompleteTasks(ctx context.Context, userID string) ([]*models.Task, error) {
	const query = `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE user_id = ? AND completed = 0
		ORDER BY rowid ASC
	`
	rows, err := s.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// TaskByID returns one task by id.
func (s *Store) TaskByID(ctx context.Context, id string) (*models.Task, error) {
	const query = `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE id = ?
	`
	row, err := s.QueryRowContext(ctx, query, id)
	if err != nil {
		return nil, err
	}
	t, err := scanTask(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, db.ErrNotFound
	}
	return t, err
}

// UpsertHabit creates or replaces a habit row.
func (s *Store) UpsertHabit(ctx context.Context, h *models.Habit) error {
	const query = `
		INSERT INTO habits (id, user_id, name, category, frequency)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			name = excluded.name,
			category = excluded.category,
			frequency = excluded.frequency
	`
	_, err := s.ExecContext(ctx, query, h.ID, h.UserID, h.Name, h.Category, string(h.Frequency))
	if err != nil {
		return fmt.Errorf("upsert habit: %w", err)
	}
	return nil
}

// HabitsForUser returns a user's habits.
func (s *Store) HabitsForUser(ctx context.Context, userID string) ([]*models.Habit, error) {
	const query = `
		SELECT id, user_id, name, category, frequency
		FROM habits
		WHERE user_id = ?
		ORDER BY rowid ASC
	`
	rows, err := s.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var habits []*models.Habit
	for rows.Next() {
		var (
			h    models.Habit
			freq string
		)
		if err := rows.Scan(&h.ID, &h.UserID, &h.Name, &h.Category, &freq); err != nil {
			return nil, err
		}
		h.Frequency = models.HabitFrequency(freq)
		habits = append(habits, &h)
	}
	return habits, rows.Err()
}

func scanTask(scan func(dest ...any) error) (*models.Task, error) {
	var (
		t            models.Task
		dueMillis    sql.NullInt64
		createMillis sql.NullInt64
		hasSubtasks  int
		completed    int
	)
	if err := scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.Category,
		&dueMillis, &createMillis, &hasSubtasks, &completed); err != nil {
		return nil, err
	}
	if dueMillis.Valid {
		due := time.UnixMilli(dueMillis.Int64).UTC()
		t.DueDate = &due
	}
	if createMillis.Valid {
		created := time.UnixMilli(createMillis.Int64).UTC()
		t.CreatedAt = &created
	}
	t.HasSubtasks = hasSubtasks != 0
	t.Completed = completed != 0
	return &t, nil
}

func nullEpoch(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}
