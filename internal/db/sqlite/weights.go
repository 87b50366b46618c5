package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/fluxtask/fluxtask/internal/db"
	"github.com/fluxtask/fluxtask/pkg/models"
)

// GetWeights returns the stored weight vector for a user.
func (s *Store) GetWeights(ctx context.Context, userID string) (*models.UserWeights, error) {
	const query = `
		SELECT user_id, hourly_weights, daily_weights, category_weights,
		       task_success_rates, category_success_rates, category_avg_duration,
		       alpha, last_updated_epoch
		FROM ml_weights
		WHERE user_id = ?
	`
	row, err := s.QueryRowContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	w, err := scanWeights(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, db.ErrNotFound
	}
	return w, err
}

// AllWeights returns every stored weight vector.
func (s *Store) AllWeights(ctx context.Context) ([]*models.UserWeights, error) {
	const query = `
		SELECT user_id, hourly_weights, daily_weights, category_weights,
		       task_success_rates, category_success_rates, category_avg_duration,
		       alpha, last_updated_epoch
		FROM ml_weights
		ORDER BY user_id
	`
	rows, err := s.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var all []*models.UserWeights
	for rows.Next() {
		w, err := scanWeights(rows.Scan)
		if err != nil {
			return nil, err
		}
		all = append(all, w)
	}
	return all, rows.Err()
}

// UpsertWeights persists the vector with create-if-absent semantics.
// A non-zero expected timestamp turns the write into an optimistic
// compare-and-swap against last_updated_epoch.
func (s *Store) UpsertWeights(ctx context.Context, w *models.UserWeights, expected time.Time) error {
	cols, err := weightColumns(w)
	if err != nil {
		return err
	}

	if !expected.IsZero() {
		const casQuery = `
			UPDATE ml_weights
			SET hourly_weights = ?, daily_weights = ?, category_weights = ?,
			    task_success_rates = ?, category_success_rates = ?,
			    category_avg_duration = ?, alpha = ?, last_updated_epoch = ?
			WHERE user_id = ? AND last_updated_epoch = ?
		`
		res, err := s.ExecContext(ctx, casQuery,
			cols.hourly, cols.daily, cols.category,
			cols.taskRates, cols.categoryRates, cols.durations,
			w.Alpha, w.LastUpdated.UnixMilli(),
			w.UserID, expected.UnixMilli())
		if err != nil {
			return fmt.Errorf("cas update weights: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return db.ErrConflict
		}
		return nil
	}

	const upsertQuery = `
		INSERT INTO ml_weights (
			user_id, hourly_weights, daily_weights, category_weights,
			task_success_rates, category_success_rates, category_avg_duration,
			alpha, last_updated_epoch
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			hourly_weights = excluded.hourly_weights,
			daily_weights = excluded.daily_weights,
			category_weights = excluded.category_weights,
			task_success_rates = excluded.task_success_rates,
			category_success_rates = excluded.category_success_rates,
			category_avg_duration = excluded.category_avg_duration,
			alpha = excluded.alpha,
			last_updated_epoch = excluded.last_updated_epoch
	`
	_, err = s.ExecContext(ctx, upsertQuery,
		w.UserID, cols.hourly, cols.daily, cols.category,
		cols.taskRates, cols.categoryRates, cols.durations,
		w.Alpha, w.LastUpdated.UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert weights: %w", err)
	}
	return nil
}

// AllUserIDs enumerates users known to the engine (those with a stored
// weight vector). Satisfies db.UserRepository.
func (s *Store) AllUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.QueryContext(ctx, "SELECT user_id FROM ml_weights ORDER BY user_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type weightCols struct {
	hourly, daily, category, taskRates, categoryRates, durations string
}

func weightColumns(w *models.UserWeights) (weightCols, error) {
	var c weightCols
	var err error
	if c.hourly, err = marshalMap(w.HourlyWeights); err != nil {
		return c, err
	}
	if c.daily, err = marshalMap(w.DailyWeights); err != nil {
		return c, err
	}
	if c.category, err = marshalMap(w.CategoryWeights); err != nil {
		return c, err
	}
	if c.taskRates, err = marshalMap(w.TaskSuccessRates); err != nil {
		return c, err
	}
	if c.categoryRates, err = marshalMap(w.CategorySuccessRates); err != nil {
		return c, err
	}
	if c.durations, err = marshalMap(w.CategoryAvgDuration); err != nil {
		return c, err
	}
	return c, nil
}

func marshalMap[K comparable, V any](m map[K]V) (string, error) {
	if m == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal weight map: %w", err)
	}
	return string(raw), nil
}

func scanWeights(scan func(dest ...any) error) (*models.UserWeights, error) {
	var (
		w                 models.UserWeights
		hourly, daily     string
		category          string
		taskRates         string
		categoryRates     string
		durations         string
		lastUpdatedMillis int64
	)
	if err := scan(&w.UserID, &hourly, &daily, &category,
		&taskRates, &categoryRates, &durations,
		&w.Alpha, &lastUpdatedMillis); err != nil {
		return nil, err
	}

	for _, pair := range []struct {
		raw  string
		dest any
	}{
		{hourly, &w.HourlyWeights},
		{daily, &w.DailyWeights},
		{category, &w.CategoryWeights},
		{taskRates, &w.TaskSuccessRates},
		{categoryRates, &w.CategorySuccessRates},
		{durations, &w.CategoryAvgDuration},
	} {
		if err := json.Unmarshal([]byte(pair.raw), pair.dest); err != nil {
			return nil, fmt.Errorf("unmarshal weight map: %w", err)
		}
	}

	if lastUpdatedMillis > 0 {
		w.LastUpdated = time.UnixMilli(lastUpdatedMillis).UTC()
	}
	w.EnsureMaps()
	return &w, nil
}
